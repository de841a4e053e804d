// Package webhooks turns provider callbacks into state-machine events.
// Each provider is described by an ordered set of extraction rules; one
// generic adapter interprets them.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/baharkarakas/pixhub/internal/jsonpath"
	"github.com/baharkarakas/pixhub/internal/models"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/services"
	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownProvider = errors.New("unknown webhook provider")
	ErrMalformed       = errors.New("malformed payload")
	ErrNoReference     = errors.New("payload carries no identifying reference")
	ErrUnresolved      = errors.New("reference does not match any entity")
)

type Target string

const (
	TargetTransaction Target = "transaction"
	TargetWithdrawal  Target = "withdrawal"
)

// Ref is one identifier found in a payload.
type Ref struct {
	Field repo.RefField
	Value string
}

// Event is a normalized delivery plus the identifiers used to resolve it.
type Event struct {
	services.ProviderEvent
	Refs []Ref
}

// Entity is what a delivery resolved to.
type Entity struct {
	Kind       Target
	ID         string
	MerchantID string
	Amount     decimal.Decimal
	Status     string
}

type Adapter interface {
	Provider() string
	NormalizeEvent(doc map[string]any, body []byte) (Event, error)
	Resolve(ctx context.Context, ev Event) (Entity, error)
	ApplyTransition(ctx context.Context, ent Entity, ev Event) (services.Outcome, string, error)
}

type TransactionApplier interface {
	ApplyEvent(ctx context.Context, id string, ev services.ProviderEvent) (models.Transaction, services.Outcome, error)
}

type WithdrawalApplier interface {
	ApplyEvent(ctx context.Context, id string, ev services.ProviderEvent) (models.Withdrawal, services.Outcome, error)
}

// Rule describes where one provider keeps each field. Paths are tried in order.
type Rule struct {
	Provider string // route key: /webhooks/{provider}
	StoredAs string // provider name on stored rows; "" matches any
	Target   Target

	External    []string
	ProviderRef []string
	Internal    []string
	EventID     []string
	Status      []string
	Amount      []string
	E2E         []string
	PayerName   []string
	PayerDoc    []string

	AmountInCents bool
	// Adjust lets a provider override the normalized status from other fields.
	Adjust func(doc map[string]any, ev *services.ProviderEvent)
}

type ruleAdapter struct {
	rule Rule
	txns repo.Transactions
	wds  repo.Withdrawals
	txa  TransactionApplier
	wda  WithdrawalApplier
	now  func() time.Time
}

func NewAdapter(r Rule, repos repo.Repositories, txa TransactionApplier, wda WithdrawalApplier) Adapter {
	return &ruleAdapter{rule: r, txns: repos.Transactions, wds: repos.Withdrawals, txa: txa, wda: wda, now: time.Now}
}

func (a *ruleAdapter) Provider() string { return a.rule.Provider }

func (a *ruleAdapter) NormalizeEvent(doc map[string]any, body []byte) (Event, error) {
	if doc == nil {
		return Event{}, ErrMalformed
	}
	r := a.rule
	var ev Event
	add := func(field repo.RefField, paths []string) {
		seen := map[string]bool{}
		for _, p := range paths {
			if v, ok := jsonpath.String(doc, p); ok && !seen[v] {
				seen[v] = true
				ev.Refs = append(ev.Refs, Ref{Field: field, Value: v})
			}
		}
	}
	add(repo.RefExternal, r.External)
	add(repo.RefProvider, r.ProviderRef)
	add(repo.RefInternal, r.Internal)
	if len(ev.Refs) == 0 {
		return Event{}, ErrNoReference
	}

	raw, _ := jsonpath.First(doc, r.Status...)
	ev.Provider = r.Provider
	ev.RawStatus = raw
	ev.Status = status.Normalize(raw)
	ev.ProviderReference, _ = jsonpath.First(doc, r.ProviderRef...)
	ev.E2EID, _ = jsonpath.First(doc, r.E2E...)
	ev.PayerName, _ = jsonpath.First(doc, r.PayerName...)
	ev.PayerDocument, _ = jsonpath.First(doc, r.PayerDoc...)
	ev.Body = json.RawMessage(body)
	ev.ReceivedAt = a.now().UTC()

	for _, p := range r.Amount {
		if amt, ok := jsonpath.Decimal(doc, p); ok {
			if r.AmountInCents {
				amt = amt.Shift(-2)
			}
			ev.Amount, ev.HasAmount = amt, true
			break
		}
	}

	if r.Adjust != nil {
		r.Adjust(doc, &ev.ProviderEvent)
	}

	if id, ok := jsonpath.First(doc, r.EventID...); ok {
		ev.EventID = id
	} else {
		// no explicit id: one event per (reference, status) pair
		ev.EventID = ev.Refs[0].Value + ":" + strings.ToLower(raw)
		if ev.Status != status.Normalize(raw) {
			ev.EventID += ":" + strings.ToLower(string(ev.Status))
		}
	}
	return ev, nil
}

// Resolve tries external reference, then provider id, then internal reference.
// An external reference shared by several merchants is skipped in favour of the next identifier.
func (a *ruleAdapter) Resolve(ctx context.Context, ev Event) (Entity, error) {
	for _, ref := range ev.Refs {
		var (
			ent Entity
			err error
		)
		switch a.rule.Target {
		case TargetWithdrawal:
			var w models.Withdrawal
			w, err = a.wds.Find(ctx, a.rule.StoredAs, ref.Field, ref.Value)
			ent = Entity{Kind: TargetWithdrawal, ID: w.ID, MerchantID: w.MerchantID, Amount: w.Amount, Status: string(w.Status)}
		default:
			var t models.Transaction
			t, err = a.txns.Find(ctx, a.rule.StoredAs, ref.Field, ref.Value)
			ent = Entity{Kind: TargetTransaction, ID: t.ID, MerchantID: t.MerchantID, Amount: t.Amount, Status: string(t.Status)}
		}
		if errors.Is(err, repo.ErrAmbiguous) {
			slog.WarnContext(ctx, "webhook reference ambiguous across merchants",
				"provider", a.rule.Provider, "field", ref.Field, "value", ref.Value)
			continue
		}
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return Entity{}, err
		}
		return ent, nil
	}
	return Entity{}, ErrUnresolved
}

func (a *ruleAdapter) ApplyTransition(ctx context.Context, ent Entity, ev Event) (services.Outcome, string, error) {
	if ev.HasAmount && !ev.Amount.Equal(ent.Amount) {
		slog.WarnContext(ctx, "webhook amount differs from stored amount",
			"provider", a.rule.Provider, "entity_id", ent.ID,
			"stored", ent.Amount.StringFixed(2), "reported", ev.Amount.StringFixed(2))
	}
	if ent.Kind == TargetWithdrawal {
		w, outcome, err := a.wda.ApplyEvent(ctx, ent.ID, ev.ProviderEvent)
		return outcome, string(w.Status), err
	}
	t, outcome, err := a.txa.ApplyEvent(ctx, ent.ID, ev.ProviderEvent)
	return outcome, string(t.Status), err
}
