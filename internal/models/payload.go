package models

import (
	"encoding/json"
	"slices"
	"time"
)

// Payload is the append-only provider blob kept on transactions and withdrawals.
// Deliveries are appended to Events; Data holds intake-time and provider-response fields.
type Payload struct {
	Events            []PayloadEvent `json:"events,omitempty"`
	ProcessedEventIDs []string       `json:"processed_event_ids,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
}

type PayloadEvent struct {
	Provider   string          `json:"provider"`
	EventID    string          `json:"event_id,omitempty"`
	RawStatus  string          `json:"raw_status,omitempty"`
	Status     string          `json:"status"`
	ReceivedAt time.Time       `json:"received_at"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Seen reports whether an event id was already processed.
func (p Payload) Seen(eventID string) bool {
	return eventID != "" && slices.Contains(p.ProcessedEventIDs, eventID)
}

// Record appends a delivery and marks its id as processed.
func (p *Payload) Record(ev PayloadEvent) {
	p.Events = append(p.Events, ev)
	if ev.EventID != "" && !slices.Contains(p.ProcessedEventIDs, ev.EventID) {
		p.ProcessedEventIDs = append(p.ProcessedEventIDs, ev.EventID)
	}
}

// Set merges one key into Data without touching the others.
func (p *Payload) Set(key string, v any) {
	if p.Data == nil {
		p.Data = map[string]any{}
	}
	p.Data[key] = v
}

func (p *Payload) Unset(key string) { delete(p.Data, key) }

func (p Payload) Get(key string) (any, bool) {
	v, ok := p.Data[key]
	return v, ok
}

// Clone returns a copy that shares no slices or maps with p.
func (p Payload) Clone() Payload {
	out := Payload{
		Events:            slices.Clone(p.Events),
		ProcessedEventIDs: slices.Clone(p.ProcessedEventIDs),
	}
	if p.Data != nil {
		out.Data = make(map[string]any, len(p.Data))
		for k, v := range p.Data {
			out.Data[k] = v
		}
	}
	return out
}
