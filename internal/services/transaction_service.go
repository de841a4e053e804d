package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/baharkarakas/pixhub/internal/config"
	"github.com/baharkarakas/pixhub/internal/fees"
	"github.com/baharkarakas/pixhub/internal/ledger"
	"github.com/baharkarakas/pixhub/internal/metrics"
	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/notify"
	"github.com/baharkarakas/pixhub/internal/providers"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/baharkarakas/pixhub/internal/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9\-_]+$`)

type TransactionService struct {
	repos     repo.Repositories
	providers *providers.Registry
	notifier  notify.Notifier
	cfg       config.Config
	now       func() time.Time
}

func NewTransactionService(r repo.Repositories, p *providers.Registry, n notify.Notifier, cfg config.Config) *TransactionService {
	return &TransactionService{repos: r, providers: p, notifier: n, cfg: cfg, now: time.Now}
}

type CreatePixInput struct {
	Amount         decimal.Decimal
	ExternalID     string
	Payer          providers.Payer
	IdempotencyKey string
	ClientIP       string
	UserAgent      string
}

// ----------------- Helpers -----------------

func newTxID() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }

func validAmount(field string, a decimal.Decimal) error {
	if !a.IsPositive() {
		return invalid(field, "must be > 0")
	}
	if !a.Equal(a.Round(2)) {
		return invalid(field, "at most 2 decimal places")
	}
	return nil
}

func validExternalID(field, v string) error {
	if v == "" {
		return invalid(field, "required")
	}
	if len(v) > 64 || !externalIDPattern.MatchString(v) {
		return invalid(field, "must be 1-64 chars of letters, digits, - or _")
	}
	return nil
}

func (s *TransactionService) threshold(provider string) decimal.Decimal {
	return s.cfg.ReviewThresholds[provider]
}

func (s *TransactionService) callbackURL(provider string) string {
	return s.cfg.PublicBaseURL + "/webhooks/" + provider
}

func stampTransaction(t *models.Transaction, now time.Time) {
	switch t.Status {
	case status.Paid:
		t.PaidAt = &now
	case status.UnderReview, status.Mediation:
		if t.AuthorizedAt == nil {
			t.AuthorizedAt = &now
		}
	case status.Failed, status.Error:
		t.CanceledAt = &now
	}
}

// ----------------- CREATE -----------------

// CreatePix registers a cash-in charge and asks the merchant's provider for the payment code.
// A provider failure leaves the transaction in ERROR and returns ErrProviderFailed.
func (s *TransactionService) CreatePix(ctx context.Context, m models.Merchant, in CreatePixInput) (models.Transaction, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "TransactionService.CreatePix")
	defer span.End()

	if err := validAmount("amount", in.Amount); err != nil {
		return models.Transaction{}, err
	}
	if err := validExternalID("external_id", in.ExternalID); err != nil {
		return models.Transaction{}, err
	}
	provider := m.CashInProvider
	if ceiling := s.cfg.CashInCeiling(provider); ceiling.IsPositive() && in.Amount.GreaterThan(ceiling) {
		return models.Transaction{}, invalid("amount", "exceeds limit of "+ceiling.StringFixed(2))
	}
	client, err := s.providers.CashIn(provider)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	if _, err := s.repos.Transactions.GetByExternalReference(ctx, m.ID, in.ExternalID); err == nil {
		metrics.IntakeTotal.WithLabelValues("pix", "duplicate").Inc()
		return models.Transaction{}, ErrDuplicateExternalReference
	} else if !errors.Is(err, repo.ErrNotFound) {
		return models.Transaction{}, err
	}

	t := models.Transaction{
		TenantID:          m.TenantID,
		MerchantID:        m.ID,
		Direction:         models.DirectionIn,
		Amount:            in.Amount,
		Fee:               fees.CashIn(m.FeeIn, in.Amount),
		Currency:          "BRL",
		Method:            "pix",
		Provider:          provider,
		ExternalReference: in.ExternalID,
		TxID:              newTxID(),
		Status:            status.Pending,
		IdempotencyKey:    in.IdempotencyKey,
		ClientIP:          in.ClientIP,
		UserAgent:         in.UserAgent,
	}
	t.Payload.Set("payer", in.Payer)
	span.SetAttributes(attribute.String("provider", provider), attribute.String("txid", t.TxID))

	err = s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		var err error
		if t, err = tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, auditEntry(models.EntityTransaction, t.ID, "created", map[string]any{
			"amount": t.Amount.StringFixed(2), "fee": t.Fee.StringFixed(2), "provider": provider,
		}))
	})
	if errors.Is(err, repo.ErrConflict) {
		metrics.IntakeTotal.WithLabelValues("pix", "duplicate").Inc()
		return models.Transaction{}, ErrDuplicateExternalReference
	}
	if err != nil {
		return models.Transaction{}, err
	}

	charge, callErr := client.CreateCharge(ctx, providers.ChargeRequest{
		TransactionID:     t.ID,
		TxID:              t.TxID,
		ExternalReference: t.ExternalReference,
		Amount:            t.Amount,
		Payer:             in.Payer,
		CallbackURL:       s.callbackURL(provider),
	})
	if callErr != nil {
		metrics.ProviderFailures.WithLabelValues(provider, "charge").Inc()
		metrics.IntakeTotal.WithLabelValues("pix", "provider_error").Inc()
		slog.ErrorContext(ctx, "cash-in provider call failed", "transaction_id", t.ID, "provider", provider, "err", callErr)
		failed, err := s.failAtProvider(ctx, t.ID, callErr)
		if err != nil {
			return t, err
		}
		s.notifier.Notify(m, notify.EventPixCreated, ViewFromTransaction(failed))
		return failed, fmt.Errorf("%w: %v", ErrProviderFailed, callErr)
	}

	t, err = s.attachCharge(ctx, t.ID, charge)
	if err != nil {
		return t, err
	}
	metrics.IntakeTotal.WithLabelValues("pix", "created").Inc()
	s.notifier.Notify(m, notify.EventPixCreated, ViewFromTransaction(t))
	return t, nil
}

func (s *TransactionService) failAtProvider(ctx context.Context, id string, cause error) (models.Transaction, error) {
	var out models.Transaction
	err := s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		t, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		t.Payload.Set("provider_error", cause.Error())
		if !t.Status.Terminal() {
			t.Status = status.Error
			stampTransaction(&t, s.now())
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		out = t
		return tx.InsertAudit(ctx, auditEntry(models.EntityTransaction, id, "provider_failed", map[string]any{"error": cause.Error()}))
	})
	return out, err
}

// attachCharge stores the provider's identifiers. A provider txid already owned by
// another row is kept in the payload and the locally issued txid stays in place.
func (s *TransactionService) attachCharge(ctx context.Context, id string, ch providers.Charge) (models.Transaction, error) {
	t, err := s.storeCharge(ctx, id, ch, true)
	if errors.Is(err, repo.ErrConflict) {
		slog.WarnContext(ctx, "provider txid already in use", "transaction_id", id, "provider_txid", ch.TxID)
		t, err = s.storeCharge(ctx, id, ch, false)
	}
	return t, err
}

func (s *TransactionService) storeCharge(ctx context.Context, id string, ch providers.Charge, adoptTxID bool) (models.Transaction, error) {
	var out models.Transaction
	err := s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		t, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if t.ProviderTransactionID == "" {
			t.ProviderTransactionID = ch.ProviderTransactionID
		}
		if ch.TxID != "" {
			if adoptTxID {
				t.TxID = ch.TxID
			} else {
				t.Payload.Set("provider_txid", ch.TxID)
			}
		}
		t.QRCodeText = ch.QRCodeText
		t.Payload.Set("charge", ch.Raw)
		if ch.ExpiresAt != nil {
			t.Payload.Set("expires_at", ch.ExpiresAt.UTC().Format(time.RFC3339))
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	return out, err
}

// ----------------- WEBHOOK -----------------

// ApplyEvent drives one provider delivery into the transaction state machine.
// Balance row is locked before the transaction row; a PAID entry credits net once.
func (s *TransactionService) ApplyEvent(ctx context.Context, id string, ev ProviderEvent) (models.Transaction, Outcome, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "TransactionService.ApplyEvent")
	defer span.End()
	span.SetAttributes(attribute.String("provider", ev.Provider), attribute.String("status", string(ev.Status)))

	cur, err := s.repos.Transactions.GetByID(ctx, id)
	if err != nil {
		return models.Transaction{}, "", err
	}

	var (
		out     models.Transaction
		outcome Outcome
		from    status.Status
	)
	err = s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		acct, err := ledger.Lock(ctx, tx, cur.MerchantID)
		if err != nil {
			return err
		}
		t, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		out = t
		if t.Payload.Seen(ev.EventID) {
			outcome = OutcomeDuplicate
			return nil
		}

		t.Payload.Record(ev.record())
		if t.E2EID == "" && ev.E2EID != "" {
			t.E2EID = ev.E2EID
		}
		if t.ProviderTransactionID == "" && ev.ProviderReference != "" {
			t.ProviderTransactionID = ev.ProviderReference
		}
		if ev.PayerDocument != "" || ev.PayerName != "" {
			t.Payload.Set("paid_by", map[string]any{"name": ev.PayerName, "document": ev.PayerDocument})
		}

		d := ledger.DecideTransaction(t, ev.Status, s.threshold(t.Provider))
		outcome = OutcomeRecorded
		if d.Changed {
			from = t.Status
			t.Status = d.Next
			stampTransaction(&t, s.now())
			outcome = OutcomeApplied
		}
		if d.Credit {
			if err := acct.Credit(ctx, t.Net()); err != nil {
				return err
			}
			t.CreditedAmount = t.Net()
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		out = t
		if !d.Changed {
			return nil
		}
		return tx.InsertAudit(ctx, auditEntry(models.EntityTransaction, id, "status_change", map[string]any{
			"from": from, "to": t.Status, "provider": ev.Provider, "event_id": ev.EventID,
			"raw_status": ev.RawStatus, "credited": d.Credit,
		}))
	})
	if err != nil {
		return models.Transaction{}, "", err
	}

	if outcome == OutcomeApplied {
		s.notifyUpdated(ctx, out)
	}
	return out, outcome, nil
}

func (s *TransactionService) notifyUpdated(ctx context.Context, t models.Transaction) {
	m, err := s.repos.Merchants.GetByID(ctx, t.MerchantID)
	if err != nil {
		slog.WarnContext(ctx, "notify: merchant lookup failed", "merchant_id", t.MerchantID, "err", err)
		return
	}
	s.notifier.Notify(m, notify.EventPixUpdated, ViewFromTransaction(t))
}

// ----------------- REVIEW -----------------

// ApproveReview confirms an UNDER_REVIEW transaction and credits its net.
func (s *TransactionService) ApproveReview(ctx context.Context, id, operator string) (models.Transaction, error) {
	return s.resolveReview(ctx, id, operator, "review_approved", ledger.ApproveReview)
}

// RejectReview fails an UNDER_REVIEW transaction without touching the balance.
func (s *TransactionService) RejectReview(ctx context.Context, id, operator string) (models.Transaction, error) {
	return s.resolveReview(ctx, id, operator, "review_rejected", ledger.RejectReview)
}

func (s *TransactionService) resolveReview(ctx context.Context, id, operator, action string, decide func(models.Transaction) ledger.TxnDecision) (models.Transaction, error) {
	cur, err := s.repos.Transactions.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Transaction{}, ErrNotFound
	}
	if err != nil {
		return models.Transaction{}, err
	}

	var out models.Transaction
	err = s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		acct, err := ledger.Lock(ctx, tx, cur.MerchantID)
		if err != nil {
			return err
		}
		t, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		d := decide(t)
		if !d.Changed {
			return fmt.Errorf("%w: transaction is %s", ErrInvalidStatus, t.Status)
		}
		t.Status = d.Next
		stampTransaction(&t, s.now())
		if d.Credit {
			if err := acct.Credit(ctx, t.Net()); err != nil {
				return err
			}
			t.CreditedAmount = t.Net()
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		out = t
		return tx.InsertAudit(ctx, auditEntry(models.EntityTransaction, id, action, map[string]any{
			"operator": operator, "to": t.Status, "credited": d.Credit,
		}))
	})
	if err != nil {
		return models.Transaction{}, err
	}
	s.notifyUpdated(ctx, out)
	return out, nil
}

// ----------------- Queries -----------------

func (s *TransactionService) GetByID(ctx context.Context, id string) (models.Transaction, error) {
	t, err := s.repos.Transactions.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return t, ErrNotFound
	}
	return t, err
}

// Lookup resolves a merchant external id to either a transaction or a withdrawal.
func (s *TransactionService) Lookup(ctx context.Context, merchantID, externalID string) (StatusView, error) {
	t, err := s.repos.Transactions.GetByExternalReference(ctx, merchantID, externalID)
	if err == nil {
		return ViewFromTransaction(t), nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return StatusView{}, err
	}
	w, err := s.repos.Withdrawals.GetByExternalID(ctx, merchantID, externalID)
	if err == nil {
		return ViewFromWithdrawal(w), nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return StatusView{}, ErrNotFound
	}
	return StatusView{}, err
}

func (s *TransactionService) ListByMerchant(ctx context.Context, merchantID string) ([]models.Transaction, error) {
	return s.repos.Transactions.ListByMerchant(ctx, merchantID)
}
