package repository

import (
	"context"
	"errors"

	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrAmbiguous: an external reference matched rows of more than one merchant.
	ErrAmbiguous = errors.New("reference matches several merchants")
)

// RefField names which identifier a provider echoed back.
type RefField string

const (
	RefExternal RefField = "external" // merchant external reference / external id
	RefProvider RefField = "provider" // provider transaction id / provider reference
	RefInternal RefField = "internal" // txid, withdrawal reference or our own id
)

type Merchants interface {
	Create(ctx context.Context, m models.Merchant) (models.Merchant, error)
	GetByID(ctx context.Context, id string) (models.Merchant, error)
	GetByAuthKey(ctx context.Context, authKey string) (models.Merchant, error)
}

type Transactions interface {
	GetByID(ctx context.Context, id string) (models.Transaction, error)
	GetByExternalReference(ctx context.Context, merchantID, ref string) (models.Transaction, error)
	// Find looks a transaction up by one echoed identifier; provider "" matches any provider.
	// External references are unique per merchant only, so a cross-merchant match is ErrAmbiguous.
	Find(ctx context.Context, provider string, field RefField, value string) (models.Transaction, error)
	ListByMerchant(ctx context.Context, merchantID string) ([]models.Transaction, error)
}

type Withdrawals interface {
	GetByID(ctx context.Context, id string) (models.Withdrawal, error)
	GetByExternalID(ctx context.Context, merchantID, externalID string) (models.Withdrawal, error)
	GetByIdempotencyKey(ctx context.Context, merchantID, key string) (models.Withdrawal, error)
	Find(ctx context.Context, provider string, field RefField, value string) (models.Withdrawal, error)
	ListByMerchant(ctx context.Context, merchantID string) ([]models.Withdrawal, error)
}

type AuditLogs interface {
	Create(ctx context.Context, l models.AuditLog) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]models.AuditLog, error)
}

// Tx is the set of row-locking operations available inside one database transaction.
// Lock order is always balance row first, entity row second.
type Tx interface {
	LockBalance(ctx context.Context, merchantID string) (models.Balance, error)
	AddAvailable(ctx context.Context, merchantID string, delta decimal.Decimal) (models.Balance, error)

	InsertTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error)
	LockTransaction(ctx context.Context, id string) (models.Transaction, error)
	UpdateTransaction(ctx context.Context, t models.Transaction) error

	InsertWithdrawal(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error)
	LockWithdrawal(ctx context.Context, id string) (models.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, w models.Withdrawal) error

	InsertAudit(ctx context.Context, l models.AuditLog) error
}

// TxRunner runs fn atomically: any error rolls everything back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

type Repositories struct {
	Merchants    Merchants
	Transactions Transactions
	Withdrawals  Withdrawals
	AuditLogs    AuditLogs
	Tx           TxRunner
}
