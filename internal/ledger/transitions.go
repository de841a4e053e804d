package ledger

import (
	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/shopspring/decimal"
)

// TxnDecision is what an incoming status does to a transaction.
type TxnDecision struct {
	Next    status.Status
	Changed bool
	Credit  bool // credit net to available; set only when entering PAID for the first time
}

// DecideTransaction applies one canonical status to a transaction.
// threshold <= 0 disables value-based review.
func DecideTransaction(t models.Transaction, incoming status.Status, threshold decimal.Decimal) TxnDecision {
	cur := t.Status
	keep := TxnDecision{Next: cur}
	if cur.Terminal() || incoming == cur {
		return keep
	}

	switch incoming {
	case status.Paid:
		switch cur {
		case status.Pending:
			if threshold.IsPositive() && t.Amount.GreaterThanOrEqual(threshold) {
				return TxnDecision{Next: status.UnderReview, Changed: true}
			}
			return paid(t)
		case status.Mediation:
			return paid(t)
		}
		// UNDER_REVIEW waits for an explicit approval
		return keep
	case status.UnderReview:
		if cur == status.Pending {
			return TxnDecision{Next: status.UnderReview, Changed: true}
		}
	case status.Mediation:
		if cur == status.Pending || cur == status.UnderReview {
			return TxnDecision{Next: status.Mediation, Changed: true}
		}
	case status.Failed, status.Canceled:
		return TxnDecision{Next: status.Failed, Changed: true}
	case status.Error:
		return TxnDecision{Next: status.Error, Changed: true}
	}
	return keep
}

// ApproveReview resolves UNDER_REVIEW to PAID.
func ApproveReview(t models.Transaction) TxnDecision {
	if t.Status != status.UnderReview {
		return TxnDecision{Next: t.Status}
	}
	return paid(t)
}

// RejectReview resolves UNDER_REVIEW to FAILED.
func RejectReview(t models.Transaction) TxnDecision {
	if t.Status != status.UnderReview {
		return TxnDecision{Next: t.Status}
	}
	return TxnDecision{Next: status.Failed, Changed: true}
}

func paid(t models.Transaction) TxnDecision {
	return TxnDecision{Next: status.Paid, Changed: true, Credit: !t.Credited() && t.Net().IsPositive()}
}

// WdDecision is what an incoming status does to a withdrawal.
type WdDecision struct {
	Next    models.WithdrawalStatus
	Changed bool
	Refund  bool // return GrossAmount; set only once per withdrawal
}

// DecideWithdrawal applies one canonical status to a withdrawal.
func DecideWithdrawal(w models.Withdrawal, incoming status.Status) WdDecision {
	keep := WdDecision{Next: w.Status}
	if w.Status.Terminal() {
		return keep
	}
	switch incoming {
	case status.Paid:
		return WdDecision{Next: models.WithdrawalPaid, Changed: true}
	case status.Failed, status.Error:
		return WdDecision{Next: models.WithdrawalFailed, Changed: true, Refund: !w.Refunded()}
	case status.Canceled:
		return WdDecision{Next: models.WithdrawalCanceled, Changed: true, Refund: !w.Refunded()}
	}
	return keep
}

// Cancel is allowed only from pending or processing; anything else is a no-op.
func Cancel(w models.Withdrawal) WdDecision {
	return DecideWithdrawal(w, status.Canceled)
}

// Claim moves a pending withdrawal to processing before it is sent to the provider.
func Claim(w models.Withdrawal) WdDecision {
	if w.Status != models.WithdrawalPending {
		return WdDecision{Next: w.Status}
	}
	return WdDecision{Next: models.WithdrawalProcessing, Changed: true}
}
