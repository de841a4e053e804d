// Package ledger owns every mutation of a merchant's available balance.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/baharkarakas/pixhub/internal/metrics"
	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/repository"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be positive")
)

// Account is the lock token for one merchant balance row. It exists only
// inside the transaction that locked it.
type Account struct {
	tx         repository.Tx
	merchantID string
	balance    models.Balance
}

// Lock takes the row lock on the merchant balance. Call it before locking any entity row.
func Lock(ctx context.Context, tx repository.Tx, merchantID string) (*Account, error) {
	b, err := tx.LockBalance(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("lock balance %s: %w", merchantID, err)
	}
	return &Account{tx: tx, merchantID: merchantID, balance: b}, nil
}

func (a *Account) Balance() models.Balance { return a.balance }

// Credit adds a confirmed cash-in net amount.
func (a *Account) Credit(ctx context.Context, amount decimal.Decimal) error {
	return a.apply(ctx, "credit", amount)
}

// Debit removes amount, refusing to go below zero.
func (a *Account) Debit(ctx context.Context, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !a.balance.Covers(amount) {
		return ErrInsufficientFunds
	}
	return a.apply(ctx, "debit", amount.Neg())
}

// Refund returns a previously debited gross amount.
func (a *Account) Refund(ctx context.Context, amount decimal.Decimal) error {
	return a.apply(ctx, "refund", amount)
}

func (a *Account) apply(ctx context.Context, op string, delta decimal.Decimal) error {
	if delta.IsZero() {
		return ErrInvalidAmount
	}
	if op != "debit" && delta.IsNegative() {
		return ErrInvalidAmount
	}
	b, err := a.tx.AddAvailable(ctx, a.merchantID, delta)
	if err != nil {
		return fmt.Errorf("%s balance: %w", op, err)
	}
	a.balance = b
	metrics.BalanceMutations.WithLabelValues(op).Inc()
	return nil
}
