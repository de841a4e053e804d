package jsonpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{
  "id": 12345678901234567890,
  "status": "PAID",
  "data": {"pix": {"end2EndId": "E123"}, "amount": "10.50", "empty": ""},
  "receipt": [{"identifier": "r-1"}],
  "flag": true,
  "nothing": null
}`

func TestGetAndString(t *testing.T) {
	doc, err := Decode([]byte(sample))
	require.NoError(t, err)

	s, ok := String(doc, "data.pix.end2EndId")
	assert.True(t, ok)
	assert.Equal(t, "E123", s)

	s, ok = String(doc, "receipt.0.identifier")
	assert.True(t, ok)
	assert.Equal(t, "r-1", s)

	s, ok = String(doc, "id")
	assert.True(t, ok)
	assert.Equal(t, "12345678901234567890", s)

	s, _ = String(doc, "flag")
	assert.Equal(t, "true", s)

	_, ok = String(doc, "data.empty")
	assert.False(t, ok)
	_, ok = String(doc, "nothing")
	assert.False(t, ok)
	_, ok = String(doc, "receipt.3.identifier")
	assert.False(t, ok)
	_, ok = String(doc, "status.deeper")
	assert.False(t, ok)
}

func TestFirstAndDecimal(t *testing.T) {
	doc, err := Decode([]byte(sample))
	require.NoError(t, err)

	s, ok := First(doc, "external_id", "data.empty", "status")
	assert.True(t, ok)
	assert.Equal(t, "PAID", s)

	_, ok = First(doc, "a", "b")
	assert.False(t, ok)

	amt, ok := Decimal(doc, "data.amount")
	assert.True(t, ok)
	assert.Equal(t, "10.5", amt.String())

	_, ok = Decimal(doc, "status")
	assert.False(t, ok)

	obj, ok := Object(doc, "data.pix")
	assert.True(t, ok)
	assert.Equal(t, "E123", obj["end2EndId"])
}

func TestDecodeRejectsNonObject(t *testing.T) {
	_, err := Decode([]byte(`[1,2]`))
	assert.Error(t, err)
	_, err = Decode([]byte(`{bad`))
	assert.Error(t, err)
}
