package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/repository"
	"github.com/baharkarakas/pixhub/internal/status"
	"github.com/shopspring/decimal"
)

// ProviderEvent is one normalized provider delivery, ready to drive a state machine.
type ProviderEvent struct {
	Provider          string // webhook route key
	EventID           string // explicit or derived dedup key
	RawStatus         string
	Status            status.Status
	Amount            decimal.Decimal
	HasAmount         bool
	E2EID             string
	ProviderReference string
	PayerName         string
	PayerDocument     string
	Body              json.RawMessage
	ReceivedAt        time.Time
}

func (ev ProviderEvent) record() models.PayloadEvent {
	at := ev.ReceivedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return models.PayloadEvent{
		Provider:   ev.Provider,
		EventID:    ev.EventID,
		RawStatus:  ev.RawStatus,
		Status:     string(ev.Status),
		ReceivedAt: at,
		Body:       ev.Body,
	}
}

type Outcome string

const (
	OutcomeApplied   Outcome = "applied"   // status changed
	OutcomeRecorded  Outcome = "recorded"  // stored in history, no transition
	OutcomeDuplicate Outcome = "duplicate" // event id already processed
)

func auditEntry(entityType, entityID, action string, details map[string]any) models.AuditLog {
	return models.AuditLog{
		EntityType: entityType,
		EntityID:   &entityID,
		Action:     action,
		Details:    details,
	}
}

// audit writes outside any transaction; failures are only logged.
func audit(ctx context.Context, logs repository.AuditLogs, l models.AuditLog) {
	if err := logs.Create(ctx, l); err != nil {
		slog.WarnContext(ctx, "audit write failed", "entity_type", l.EntityType, "action", l.Action, "err", err)
	}
}
