package webhooks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/baharkarakas/pixhub/internal/jsonpath"
	"github.com/baharkarakas/pixhub/internal/metrics"
	"github.com/baharkarakas/pixhub/internal/models"
	repo "github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/services"
	"github.com/baharkarakas/pixhub/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type Result struct {
	Outcome    services.Outcome `json:"outcome"`
	EntityKind Target           `json:"entity_kind"`
	EntityID   string           `json:"entity_id"`
	Status     string           `json:"status"`
}

// Processor routes a raw delivery to its provider adapter.
type Processor struct {
	adapters map[string]Adapter
	audits   repo.AuditLogs
}

func NewProcessor(audits repo.AuditLogs, adapters ...Adapter) *Processor {
	p := &Processor{adapters: make(map[string]Adapter, len(adapters)), audits: audits}
	for _, a := range adapters {
		p.adapters[a.Provider()] = a
	}
	return p
}

func (p *Processor) Providers() []string {
	out := make([]string, 0, len(p.adapters))
	for k := range p.adapters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Handle normalizes, resolves and applies one delivery.
func (p *Processor) Handle(ctx context.Context, provider string, body []byte) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "webhooks.Handle")
	defer span.End()
	span.SetAttributes(attribute.String("provider", provider))

	res, err := p.handle(ctx, provider, body)
	outcome := string(res.Outcome)
	switch {
	case errors.Is(err, ErrUnknownProvider):
		outcome = "unknown_provider"
	case errors.Is(err, ErrMalformed), errors.Is(err, ErrNoReference):
		outcome = "invalid"
	case errors.Is(err, ErrUnresolved):
		outcome = "unresolved"
	case err != nil:
		outcome = "error"
	}
	metrics.WebhooksTotal.WithLabelValues(provider, outcome).Inc()
	return res, err
}

func (p *Processor) handle(ctx context.Context, provider string, body []byte) (Result, error) {
	a, ok := p.adapters[provider]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	doc, err := jsonpath.Decode(body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ev, err := a.NormalizeEvent(doc, body)
	if err != nil {
		slog.WarnContext(ctx, "webhook rejected", "provider", provider, "err", err)
		return Result{}, err
	}

	ent, err := a.Resolve(ctx, ev)
	if errors.Is(err, ErrUnresolved) {
		refs := make([]string, 0, len(ev.Refs))
		for _, r := range ev.Refs {
			refs = append(refs, string(r.Field)+"="+r.Value)
		}
		slog.WarnContext(ctx, "webhook unresolved", "provider", provider, "refs", refs, "raw_status", ev.RawStatus)
		l := models.AuditLog{EntityType: models.EntityWebhook, Action: "webhook_unresolved", Details: map[string]any{
			"provider": provider, "refs": refs, "raw_status": ev.RawStatus, "event_id": ev.EventID,
		}}
		if err := p.audits.Create(ctx, l); err != nil {
			slog.WarnContext(ctx, "audit write failed", "action", l.Action, "err", err)
		}
		return Result{}, err
	}
	if err != nil {
		return Result{}, err
	}

	outcome, st, err := a.ApplyTransition(ctx, ent, ev)
	if err != nil {
		slog.ErrorContext(ctx, "webhook apply failed", "provider", provider, "entity_id", ent.ID, "err", err)
		return Result{}, err
	}
	slog.InfoContext(ctx, "webhook processed",
		"provider", provider, "entity", ent.Kind, "entity_id", ent.ID,
		"event_id", ev.EventID, "raw_status", ev.RawStatus, "outcome", outcome, "status", st)
	return Result{Outcome: outcome, EntityKind: ent.Kind, EntityID: ent.ID, Status: st}, nil
}
