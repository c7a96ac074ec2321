package outbox

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookSender_Send(t *testing.T) {
	var gotBody []byte
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewWebhookSender(srv.URL)
	err := s.Send(context.Background(), json.RawMessage(`{"event":"merged"}`))
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"event":"merged"}`, string(gotBody))
}

func TestWebhookSender_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookSender(srv.URL).Send(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookSender_NoURL(t *testing.T) {
	err := NewWebhookSender("").Send(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestSendPool_FailedSendLandsInQueue(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := New(t.TempDir(), NewWebhookSender(srv.URL), Options{MaxRetries: 3, BaseDelay: time.Minute})
	pool := NewSendPool(NewWebhookSender(srv.URL), q)

	pool.Notify(json.RawMessage(`{"event":"closed"}`))
	require.True(t, pool.Shutdown(5*time.Second, 30*time.Second))

	assert.Equal(t, int64(1), calls.Load())
	st := q.QueueStatus()
	assert.Equal(t, 1, st.Size)
	assert.Positive(t, st.NextRetryInSeconds)
}

func TestSendPool_SuccessfulSendSkipsQueue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := New(t.TempDir(), NewWebhookSender(srv.URL), Options{})
	pool := NewSendPool(NewWebhookSender(srv.URL), q)

	pool.Notify(json.RawMessage(`{"event":"merged"}`))
	require.True(t, pool.Shutdown(5*time.Second, 30*time.Second))
	assert.Equal(t, 0, q.QueueStatus().Size)
}

func TestSendPool_UnconfiguredURLDropsWithoutQueueing(t *testing.T) {
	q := New(t.TempDir(), NewWebhookSender(""), Options{})
	pool := NewSendPool(NewWebhookSender(""), q)

	pool.Notify(json.RawMessage(`{"event":"merged"}`))
	require.True(t, pool.Shutdown(5*time.Second, 30*time.Second))
	assert.Equal(t, 0, q.QueueStatus().Size, "nothing to deliver to, nothing to retry")
}

func TestWebhookSender_Enabled(t *testing.T) {
	assert.False(t, NewWebhookSender("").Enabled())
	assert.True(t, NewWebhookSender("https://example.test/hook").Enabled())
}

func TestSendPool_ShutdownWithNothingInFlight(t *testing.T) {
	q := New(t.TempDir(), NewWebhookSender(""), Options{})
	pool := NewSendPool(NewWebhookSender(""), q)
	assert.True(t, pool.Shutdown(time.Second, time.Second))
}
