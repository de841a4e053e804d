package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/baharkarakas/pixhub/internal/models"
	"github.com/baharkarakas/pixhub/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifySignsAndPosts(t *testing.T) {
	got := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- b
		got <- r
	}))
	defer srv.Close()

	pool := worker.NewPool(1, 4)
	n := NewHTTPNotifier(pool, "k", time.Second)
	m := models.Merchant{ID: "m1", WebhookEnabled: true, WebhookInURL: srv.URL}

	n.Notify(m, EventPixUpdated, map[string]string{"id": "t1"})
	pool.Stop()

	r := <-got
	b := <-bodies
	assert.Equal(t, EventPixUpdated, r.Header.Get("X-Event"))
	assert.Equal(t, Sign([]byte("k"), b), r.Header.Get("X-Signature"))

	var env map[string]any
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, EventPixUpdated, env["event"])
}

func TestURLFor(t *testing.T) {
	m := models.Merchant{WebhookEnabled: true, WebhookInURL: "in", WebhookOutURL: "out"}
	assert.Equal(t, "in", URLFor(m, EventPixCreated))
	assert.Equal(t, "out", URLFor(m, EventWithdrawUpdated))
	m.WebhookEnabled = false
	assert.Equal(t, "", URLFor(m, EventPixCreated))
}

func TestNotifySkipsDisabledMerchant(t *testing.T) {
	pool := worker.NewPool(1, 1)
	defer pool.Stop()
	n := NewHTTPNotifier(pool, "", time.Second)
	// nothing to deliver, must not panic or enqueue
	n.Notify(models.Merchant{}, EventPixCreated, nil)
}
