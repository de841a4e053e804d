package models

import (
	"time"

	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transaction is one cash-in (or PIX cash-out) movement.
type Transaction struct {
	ID                    string          `json:"id"`
	TenantID              string          `json:"tenant_id,omitempty"`
	MerchantID            string          `json:"merchant_id"`
	UserID                string          `json:"user_id,omitempty"`
	Direction             Direction       `json:"direction"`
	Amount                decimal.Decimal `json:"amount"`
	Fee                   decimal.Decimal `json:"fee"`
	Currency              string          `json:"currency"`
	Method                string          `json:"method"`
	Provider              string          `json:"provider"`
	ProviderTransactionID string          `json:"provider_transaction_id,omitempty"`
	ExternalReference     string          `json:"external_reference"`
	TxID                  string          `json:"txid"`
	E2EID                 string          `json:"e2e_id,omitempty"`
	QRCodeText            string          `json:"qr_code_text,omitempty"`
	Status                status.Status   `json:"status"`
	// CreditedAmount is the net already credited to the balance; zero until PAID.
	CreditedAmount decimal.Decimal `json:"-"`
	Payload        Payload         `json:"-"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	ClientIP       string          `json:"-"`
	UserAgent      string          `json:"-"`
	AuthorizedAt   *time.Time      `json:"authorized_at,omitempty"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
	RefundedAt     *time.Time      `json:"refunded_at,omitempty"`
	CanceledAt     *time.Time      `json:"canceled_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"-"`
}

func (t Transaction) Net() decimal.Decimal { return t.Amount.Sub(t.Fee) }

func (t Transaction) Credited() bool { return t.CreditedAmount.IsPositive() }
