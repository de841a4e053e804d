package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProdLogsJSON(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "prod", "pixhub").Info("hello", "k", 1)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "pixhub", line["service"])
}

func TestDevLogsTextAtDebug(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "dev", "pixhub").Debug("dbg")
	assert.Contains(t, buf.String(), "msg=dbg")
	assert.Contains(t, buf.String(), "env=dev")
}
