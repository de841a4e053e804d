package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/baharkarakas/pixhub/internal/fees"
	"github.com/baharkarakas/pixhub/internal/models"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/shopspring/decimal"
)

const (
	KindPixIn      = "pix_in"
	KindPixOut     = "pix_out"
	KindWithdrawal = "withdrawal"
)

// Entry is one line of the merchant statement. Amount and Net are signed.
type Entry struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Net         decimal.Decimal `json:"net"`
	Status      status.Status   `json:"status"`
	StatusLabel string          `json:"status_label"`
	Reference   string          `json:"reference,omitempty"`
	Provider    string          `json:"provider,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type StatementService struct{ repos repo.Repositories }

func NewStatementService(r repo.Repositories) *StatementService { return &StatementService{repos: r} }

// Statement merges transactions and withdrawals into one feed, oldest first.
// It never writes; rows without a stored fee get one computed from the merchant's current setup.
func (s *StatementService) Statement(ctx context.Context, merchantID string) ([]Entry, error) {
	m, err := s.repos.Merchants.GetByID(ctx, merchantID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	txns, err := s.repos.Transactions.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	wds, err := s.repos.Withdrawals.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(txns)+len(wds))
	for _, t := range txns {
		out = append(out, transactionEntry(m, t))
	}
	for _, w := range wds {
		out = append(out, withdrawalEntry(m, w))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func signed(kind string, amount, fee decimal.Decimal, st status.Status) Entry {
	net := amount.Sub(fee)
	if kind != KindPixIn {
		amount, net = amount.Neg(), net.Neg()
	}
	return Entry{Kind: kind, Amount: amount, Fee: fee, Net: net, Status: st, StatusLabel: st.Label()}
}

func transactionEntry(m models.Merchant, t models.Transaction) Entry {
	kind, fee := KindPixIn, t.Fee
	if t.Direction == models.DirectionOut {
		kind = KindPixOut
		if fee.IsZero() {
			fee = fees.Compute(m.FeeOut, t.Amount)
		}
	} else if fee.IsZero() {
		fee = fees.CashIn(m.FeeIn, t.Amount)
	}
	e := signed(kind, t.Amount, fee, t.Status)
	e.ID, e.Reference, e.Provider = t.ID, t.ExternalReference, t.Provider
	e.CreatedAt, e.UpdatedAt = t.CreatedAt, t.UpdatedAt
	return e
}

func withdrawalEntry(m models.Merchant, w models.Withdrawal) Entry {
	gross, fee := w.GrossAmount, w.FeeAmount
	if gross.IsZero() {
		gross = w.Amount
	}
	if fee.IsZero() {
		fee = fees.CashOut(m.FeeOut, gross).Fee
	}
	e := signed(KindWithdrawal, gross, fee, w.Status.Canonical())
	ref := w.ExternalID
	if ref == "" {
		ref = w.IdempotencyKey
	}
	e.ID, e.Reference, e.Provider = w.ID, ref, w.Provider
	e.CreatedAt, e.UpdatedAt = w.CreatedAt, w.UpdatedAt
	return e
}
