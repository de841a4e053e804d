package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRecordAndSeen(t *testing.T) {
	var p Payload
	assert.False(t, p.Seen("evt-1"))

	p.Record(PayloadEvent{Provider: "podpay", EventID: "evt-1", Status: "PAID"})
	p.Record(PayloadEvent{Provider: "podpay", EventID: "evt-1", Status: "PAID"})
	p.Record(PayloadEvent{Provider: "podpay", Status: "PENDING"})

	assert.True(t, p.Seen("evt-1"))
	assert.False(t, p.Seen(""))
	assert.Len(t, p.Events, 3)
	assert.Equal(t, []string{"evt-1"}, p.ProcessedEventIDs)
}

func TestPayloadCloneIsDetached(t *testing.T) {
	p := Payload{}
	p.Set("payer", "ana")
	p.Record(PayloadEvent{EventID: "a"})

	c := p.Clone()
	c.Set("payer", "bia")
	c.Record(PayloadEvent{EventID: "b"})

	assert.Equal(t, "ana", p.Data["payer"])
	assert.Len(t, p.Events, 1)
	assert.False(t, p.Seen("b"))
}

func TestPayloadJSON(t *testing.T) {
	p := Payload{}
	p.Record(PayloadEvent{Provider: "rapdyn", EventID: "x", Body: json.RawMessage(`{"a":1}`)})
	b, err := json.Marshal(p)
	require.NoError(t, err)

	var back Payload
	require.NoError(t, json.Unmarshal(b, &back))
	assert.True(t, back.Seen("x"))
	assert.JSONEq(t, `{"a":1}`, string(back.Events[0].Body))
}

func TestBalanceTotalAndCovers(t *testing.T) {
	b := Balance{
		Available: decimal.RequireFromString("50.00"),
		Retained:  decimal.RequireFromString("10.50"),
		Blocked:   decimal.RequireFromString("2"),
	}
	assert.True(t, decimal.RequireFromString("62.5").Equal(b.Total()))
	assert.True(t, b.Covers(decimal.RequireFromString("50")))
	assert.False(t, b.Covers(decimal.RequireFromString("50.01")))
}
