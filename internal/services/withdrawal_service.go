package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/baharkarakas/pixhub/internal/config"
	"github.com/baharkarakas/pixhub/internal/fees"
	"github.com/baharkarakas/pixhub/internal/ledger"
	"github.com/baharkarakas/pixhub/internal/metrics"
	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/notify"
	"github.com/baharkarakas/pixhub/internal/pixkey"
	"github.com/baharkarakas/pixhub/internal/providers"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/baharkarakas/pixhub/internal/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

type WithdrawalService struct {
	repos     repo.Repositories
	providers *providers.Registry
	notifier  notify.Notifier
	cfg       config.Config
	now       func() time.Time
}

func NewWithdrawalService(r repo.Repositories, p *providers.Registry, n notify.Notifier, cfg config.Config) *WithdrawalService {
	return &WithdrawalService{repos: r, providers: p, notifier: n, cfg: cfg, now: time.Now}
}

type CreateWithdrawalInput struct {
	Amount         decimal.Decimal // gross, debited from available
	PixKey         string
	PixKeyType     string
	ExternalID     string
	IdempotencyKey string
}

type BulkResult struct {
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func newInternalRef() string {
	b := make([]byte, 10)
	_, _ = rand.Read(b)
	return "WD" + strings.ToUpper(hex.EncodeToString(b))
}

func (s *WithdrawalService) callbackURL(provider string) string {
	return s.cfg.PublicBaseURL + "/webhooks/" + provider + "-out"
}

// settle applies a decision to w under the caller's balance lock.
func (s *WithdrawalService) settle(ctx context.Context, acct *ledger.Account, w *models.Withdrawal, d ledger.WdDecision) error {
	if !d.Changed {
		return nil
	}
	now := s.now()
	w.Status = d.Next
	switch d.Next {
	case models.WithdrawalPaid, models.WithdrawalFailed:
		w.ProcessedAt = &now
	case models.WithdrawalCanceled:
		w.CanceledAt = &now
	}
	if d.Refund {
		if err := acct.Refund(ctx, w.GrossAmount); err != nil {
			return err
		}
		w.RefundedAt = &now
	}
	return nil
}

func (s *WithdrawalService) notifyUpdated(ctx context.Context, w models.Withdrawal) {
	m, err := s.repos.Merchants.GetByID(ctx, w.MerchantID)
	if err != nil {
		slog.WarnContext(ctx, "notify: merchant lookup failed", "merchant_id", w.MerchantID, "err", err)
		return
	}
	s.notifier.Notify(m, notify.EventWithdrawUpdated, ViewFromWithdrawal(w))
}

// ----------------- CREATE -----------------

// Create debits gross and records a pending withdrawal in one atomic unit.
// Replaying an idempotency key returns the withdrawal it created.
func (s *WithdrawalService) Create(ctx context.Context, m models.Merchant, in CreateWithdrawalInput) (models.Withdrawal, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "WithdrawalService.Create")
	defer span.End()

	if !m.CashOutEnabled {
		return models.Withdrawal{}, ErrCashOutDisabled
	}
	if err := validAmount("amount", in.Amount); err != nil {
		return models.Withdrawal{}, err
	}
	if in.Amount.LessThan(s.cfg.WithdrawMinAmount) {
		return models.Withdrawal{}, invalid("amount", "minimum is "+s.cfg.WithdrawMinAmount.StringFixed(2))
	}
	keyType, key, err := pixkey.Normalize(in.PixKeyType, in.PixKey)
	if errors.Is(err, pixkey.ErrUnknownType) {
		return models.Withdrawal{}, invalid("pixkey_type", err.Error())
	}
	if err != nil {
		return models.Withdrawal{}, invalid("pixkey", err.Error())
	}
	if in.ExternalID != "" {
		if err := validExternalID("external_id", in.ExternalID); err != nil {
			return models.Withdrawal{}, err
		}
	}

	ref := newInternalRef()
	if in.IdempotencyKey != "" {
		prev, err := s.repos.Withdrawals.GetByIdempotencyKey(ctx, m.ID, in.IdempotencyKey)
		if err == nil {
			metrics.IntakeTotal.WithLabelValues("withdrawal", "replay").Inc()
			return prev, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return models.Withdrawal{}, err
		}
	} else {
		in.IdempotencyKey = ref
	}
	if in.ExternalID != "" {
		if _, err := s.repos.Withdrawals.GetByExternalID(ctx, m.ID, in.ExternalID); err == nil {
			metrics.IntakeTotal.WithLabelValues("withdrawal", "duplicate").Inc()
			return models.Withdrawal{}, ErrDuplicateExternalReference
		} else if !errors.Is(err, repo.ErrNotFound) {
			return models.Withdrawal{}, err
		}
	}

	provider := m.CashOutProvider
	if _, err := s.providers.CashOut(provider); err != nil {
		return models.Withdrawal{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	split := fees.CashOut(m.FeeOut, in.Amount)
	if !split.Net.IsPositive() {
		return models.Withdrawal{}, ErrNonPositiveNet
	}
	span.SetAttributes(attribute.String("provider", provider), attribute.String("gross", split.Gross.StringFixed(2)))

	w := models.Withdrawal{
		TenantID:       m.TenantID,
		MerchantID:     m.ID,
		Currency:       "BRL",
		Provider:       provider,
		Amount:         split.Net,
		GrossAmount:    split.Gross,
		FeeAmount:      split.Fee,
		PixKey:         key,
		PixKeyType:     string(keyType),
		IdempotencyKey: in.IdempotencyKey,
		Reference:      ref,
		ExternalID:     in.ExternalID,
		Status:         models.WithdrawalPending,
	}
	err = s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		acct, err := ledger.Lock(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		if err := acct.Debit(ctx, split.Gross); err != nil {
			return err
		}
		if w, err = tx.InsertWithdrawal(ctx, w); err != nil {
			return err
		}
		return tx.InsertAudit(ctx, auditEntry(models.EntityWithdrawal, w.ID, "created", map[string]any{
			"gross": split.Gross.StringFixed(2), "fee": split.Fee.StringFixed(2), "net": split.Net.StringFixed(2),
			"provider": provider,
		}))
	})
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		metrics.IntakeTotal.WithLabelValues("withdrawal", "insufficient_funds").Inc()
		return models.Withdrawal{}, ErrInsufficientFunds
	case errors.Is(err, repo.ErrConflict):
		// a concurrent request with the same key won the insert
		if prev, perr := s.repos.Withdrawals.GetByIdempotencyKey(ctx, m.ID, in.IdempotencyKey); perr == nil {
			metrics.IntakeTotal.WithLabelValues("withdrawal", "replay").Inc()
			return prev, nil
		}
		metrics.IntakeTotal.WithLabelValues("withdrawal", "duplicate").Inc()
		return models.Withdrawal{}, ErrDuplicateExternalReference
	case err != nil:
		return models.Withdrawal{}, err
	}
	metrics.IntakeTotal.WithLabelValues("withdrawal", "created").Inc()
	s.notifier.Notify(m, notify.EventWithdrawCreated, ViewFromWithdrawal(w))

	if m.AutoApproveWithdrawals {
		sent, err := s.Send(ctx, w.ID, "auto")
		if err != nil {
			slog.WarnContext(ctx, "auto-approve send failed", "withdrawal_id", w.ID, "err", err)
			return s.reload(ctx, w)
		}
		return sent, nil
	}
	return w, nil
}

func (s *WithdrawalService) reload(ctx context.Context, w models.Withdrawal) (models.Withdrawal, error) {
	cur, err := s.repos.Withdrawals.GetByID(ctx, w.ID)
	if err != nil {
		return w, nil
	}
	return cur, nil
}

// ----------------- SEND -----------------

// Send claims a pending withdrawal and submits it to the provider. The provider
// call runs outside any transaction; a failure puts the row back to pending and
// keeps the debit in place.
func (s *WithdrawalService) Send(ctx context.Context, id, actor string) (models.Withdrawal, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "WithdrawalService.Send")
	defer span.End()

	cur, err := s.repos.Withdrawals.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Withdrawal{}, ErrNotFound
	}
	if err != nil {
		return models.Withdrawal{}, err
	}
	client, err := s.providers.CashOut(cur.Provider)
	if err != nil {
		return cur, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var claimed models.Withdrawal
	err = s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		d := ledger.Claim(w)
		if !d.Changed {
			return fmt.Errorf("%w: withdrawal is %s", ErrInvalidStatus, w.Status)
		}
		w.Status = d.Next
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		claimed = w
		return tx.InsertAudit(ctx, auditEntry(models.EntityWithdrawal, id, "send_claimed", map[string]any{"actor": actor}))
	})
	if err != nil {
		return cur, err
	}

	payout, callErr := client.CreatePayout(ctx, providers.PayoutRequest{
		WithdrawalID:      claimed.ID,
		InternalReference: claimed.Reference,
		Amount:            claimed.Amount,
		PixKey:            claimed.PixKey,
		PixKeyType:        claimed.PixKeyType,
		CallbackURL:       s.callbackURL(claimed.Provider),
	})
	if callErr != nil {
		metrics.ProviderFailures.WithLabelValues(claimed.Provider, "payout").Inc()
		slog.ErrorContext(ctx, "cash-out provider call failed", "withdrawal_id", id, "provider", claimed.Provider, "err", callErr)
		w, err := s.releaseClaim(ctx, id, callErr)
		if err != nil {
			return claimed, err
		}
		return w, fmt.Errorf("%w: %v", ErrProviderFailed, callErr)
	}

	var (
		out     models.Withdrawal
		changed bool
	)
	err = s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		acct, err := ledger.Lock(ctx, tx, claimed.MerchantID)
		if err != nil {
			return err
		}
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.ProviderReference == "" {
			w.ProviderReference = payout.ProviderReference
		}
		w.Meta.Set("provider_response", payout.Raw)
		w.Meta.Unset("last_send_error")
		if payout.Status != "" {
			d := ledger.DecideWithdrawal(w, status.Normalize(payout.Status))
			if err := s.settle(ctx, acct, &w, d); err != nil {
				return err
			}
			changed = d.Changed
		}
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		out = w
		return tx.InsertAudit(ctx, auditEntry(models.EntityWithdrawal, id, "sent", map[string]any{
			"actor": actor, "provider_reference": w.ProviderReference, "status": w.Status,
		}))
	})
	if err != nil {
		return claimed, err
	}
	s.notifyUpdated(ctx, out)
	if changed {
		slog.InfoContext(ctx, "withdrawal settled on send", "withdrawal_id", id, "status", out.Status)
	}
	return out, nil
}

// releaseClaim returns a processing withdrawal to pending unless a webhook already moved it.
func (s *WithdrawalService) releaseClaim(ctx context.Context, id string, cause error) (models.Withdrawal, error) {
	var out models.Withdrawal
	err := s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.Status == models.WithdrawalProcessing && w.ProviderReference == "" {
			w.Status = models.WithdrawalPending
		}
		w.Meta.Set("last_send_error", cause.Error())
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		out = w
		return tx.InsertAudit(ctx, auditEntry(models.EntityWithdrawal, id, "send_failed", map[string]any{"error": cause.Error()}))
	})
	return out, err
}

// ----------------- CANCEL -----------------

// Cancel refunds gross and marks the withdrawal canceled. Already terminal rows are left
// untouched and reported with changed=false.
func (s *WithdrawalService) Cancel(ctx context.Context, id, reason string) (models.Withdrawal, bool, error) {
	cur, err := s.repos.Withdrawals.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Withdrawal{}, false, ErrNotFound
	}
	if err != nil {
		return models.Withdrawal{}, false, err
	}

	var (
		out     models.Withdrawal
		changed bool
	)
	err = s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		acct, err := ledger.Lock(ctx, tx, cur.MerchantID)
		if err != nil {
			return err
		}
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		out = w
		d := ledger.Cancel(w)
		if !d.Changed {
			return nil
		}
		if err := s.settle(ctx, acct, &w, d); err != nil {
			return err
		}
		if reason != "" {
			w.Meta.Set("cancel_reason", reason)
		}
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		out, changed = w, true
		return tx.InsertAudit(ctx, auditEntry(models.EntityWithdrawal, id, "canceled", map[string]any{
			"reason": reason, "refunded": d.Refund, "gross": w.GrossAmount.StringFixed(2),
		}))
	})
	if err != nil {
		return models.Withdrawal{}, false, err
	}
	if changed {
		s.notifyUpdated(ctx, out)
	}
	return out, changed, nil
}

// BulkCancel runs one transaction per id; a failing item does not affect the rest.
func (s *WithdrawalService) BulkCancel(ctx context.Context, ids []string, reason string) []BulkResult {
	out := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		w, changed, err := s.Cancel(ctx, id, reason)
		switch {
		case err != nil:
			out = append(out, BulkResult{ID: id, Error: err.Error()})
		case !changed:
			out = append(out, BulkResult{ID: id, Status: string(w.Status), Error: "already " + string(w.Status)})
		default:
			out = append(out, BulkResult{ID: id, OK: true, Status: string(w.Status)})
		}
	}
	return out
}

// BulkApprove sends each pending withdrawal to its provider.
func (s *WithdrawalService) BulkApprove(ctx context.Context, ids []string, actor string) []BulkResult {
	out := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		w, err := s.Send(ctx, id, actor)
		if err != nil {
			out = append(out, BulkResult{ID: id, Status: string(w.Status), Error: err.Error()})
			continue
		}
		out = append(out, BulkResult{ID: id, OK: true, Status: string(w.Status)})
	}
	return out
}

// ----------------- WEBHOOK -----------------

// ApplyEvent drives one provider delivery into the withdrawal state machine.
// Failure and cancellation refund gross exactly once.
func (s *WithdrawalService) ApplyEvent(ctx context.Context, id string, ev ProviderEvent) (models.Withdrawal, Outcome, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "WithdrawalService.ApplyEvent")
	defer span.End()
	span.SetAttributes(attribute.String("provider", ev.Provider), attribute.String("status", string(ev.Status)))

	cur, err := s.repos.Withdrawals.GetByID(ctx, id)
	if err != nil {
		return models.Withdrawal{}, "", err
	}

	var (
		out     models.Withdrawal
		outcome Outcome
	)
	err = s.repos.Tx.WithTx(ctx, func(tx repo.Tx) error {
		acct, err := ledger.Lock(ctx, tx, cur.MerchantID)
		if err != nil {
			return err
		}
		w, err := tx.LockWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		out = w
		if w.Meta.Seen(ev.EventID) {
			outcome = OutcomeDuplicate
			return nil
		}
		w.Meta.Record(ev.record())
		if w.ProviderReference == "" && ev.ProviderReference != "" {
			w.ProviderReference = ev.ProviderReference
		}
		if ev.E2EID != "" {
			w.Meta.Set("e2e_id", ev.E2EID)
		}

		from := w.Status
		d := ledger.DecideWithdrawal(w, ev.Status)
		if err := s.settle(ctx, acct, &w, d); err != nil {
			return err
		}
		outcome = OutcomeRecorded
		if d.Changed {
			outcome = OutcomeApplied
		}
		if err := tx.UpdateWithdrawal(ctx, w); err != nil {
			return err
		}
		out = w
		if !d.Changed {
			return nil
		}
		return tx.InsertAudit(ctx, auditEntry(models.EntityWithdrawal, id, "status_change", map[string]any{
			"from": from, "to": w.Status, "provider": ev.Provider, "event_id": ev.EventID,
			"raw_status": ev.RawStatus, "refunded": d.Refund,
		}))
	})
	if err != nil {
		return models.Withdrawal{}, "", err
	}
	if outcome == OutcomeApplied {
		s.notifyUpdated(ctx, out)
	}
	return out, outcome, nil
}

// ----------------- Queries -----------------

func (s *WithdrawalService) GetByID(ctx context.Context, id string) (models.Withdrawal, error) {
	w, err := s.repos.Withdrawals.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return w, ErrNotFound
	}
	return w, err
}

func (s *WithdrawalService) ListByMerchant(ctx context.Context, merchantID string) ([]models.Withdrawal, error) {
	return s.repos.Withdrawals.ListByMerchant(ctx, merchantID)
}
