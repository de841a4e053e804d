// Package providers holds the narrow client contracts used to originate payments
// at upstream PIX providers.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnknownProvider = errors.New("unknown provider")

type Payer struct {
	Name     string `json:"name,omitempty"`
	Document string `json:"document,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

type ChargeRequest struct {
	TransactionID     string
	TxID              string
	ExternalReference string
	Amount            decimal.Decimal
	Payer             Payer
	CallbackURL       string
}

type Charge struct {
	ProviderTransactionID string
	TxID                  string
	QRCodeText            string
	ExpiresAt             *time.Time
	Raw                   map[string]any
}

type PayoutRequest struct {
	WithdrawalID      string
	InternalReference string
	Amount            decimal.Decimal // net paid to the beneficiary
	PixKey            string
	PixKeyType        string
	CallbackURL       string
}

type Payout struct {
	ProviderReference string
	Status            string // raw provider token, may be empty
	Raw               map[string]any
}

type CashIn interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
}

type CashOut interface {
	CreatePayout(ctx context.Context, req PayoutRequest) (Payout, error)
}

// Registry resolves provider clients by name.
type Registry struct {
	mu      sync.RWMutex
	cashIn  map[string]CashIn
	cashOut map[string]CashOut
}

func NewRegistry() *Registry {
	return &Registry{cashIn: map[string]CashIn{}, cashOut: map[string]CashOut{}}
}

func (r *Registry) RegisterCashIn(name string, c CashIn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cashIn[name] = c
}

func (r *Registry) RegisterCashOut(name string, c CashOut) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cashOut[name] = c
}

func (r *Registry) CashIn(name string) (CashIn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cashIn[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return c, nil
}

func (r *Registry) CashOut(name string) (CashOut, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cashOut[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return c, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	for n := range r.cashIn {
		seen[n] = true
	}
	for n := range r.cashOut {
		seen[n] = true
	}
	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
