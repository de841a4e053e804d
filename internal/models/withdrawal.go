package models

import (
	"time"

	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalPaid       WithdrawalStatus = "paid"
	WithdrawalFailed     WithdrawalStatus = "failed"
	WithdrawalCanceled   WithdrawalStatus = "canceled"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalPaid || s == WithdrawalFailed || s == WithdrawalCanceled
}

// Canonical projects the withdrawal status onto the shared enum.
func (s WithdrawalStatus) Canonical() status.Status {
	switch s {
	case WithdrawalPaid:
		return status.Paid
	case WithdrawalFailed:
		return status.Failed
	case WithdrawalCanceled:
		return status.Canceled
	}
	return status.Pending
}

// Withdrawal is one payout request. GrossAmount is what was debited,
// Amount is what the beneficiary receives. IdempotencyKey is scoped to the
// merchant and never leaves the service.
type Withdrawal struct {
	ID                string           `json:"id"`
	TenantID          string           `json:"tenant_id,omitempty"`
	MerchantID        string           `json:"merchant_id"`
	UserID            string           `json:"user_id,omitempty"`
	Currency          string           `json:"currency"`
	Provider          string           `json:"provider"`
	Amount            decimal.Decimal  `json:"amount"`
	GrossAmount       decimal.Decimal  `json:"gross_amount"`
	FeeAmount         decimal.Decimal  `json:"fee_amount"`
	PixKey            string           `json:"pixkey"`
	PixKeyType        string           `json:"pixkey_type"`
	IdempotencyKey    string           `json:"idempotency_key"`
	Reference         string           `json:"reference"` // sent to providers; unique across merchants
	ExternalID        string           `json:"external_id,omitempty"`
	ProviderReference string           `json:"provider_reference,omitempty"`
	Meta              Payload          `json:"-"`
	Status            WithdrawalStatus `json:"status"`
	ProcessedAt       *time.Time       `json:"processed_at,omitempty"`
	CanceledAt        *time.Time       `json:"canceled_at,omitempty"`
	RefundedAt        *time.Time       `json:"refunded_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func (w Withdrawal) Refunded() bool { return w.RefundedAt != nil }
