package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jandubois/healthagent/internal/probe"
)

func TestFormatAlert(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	result := probe.New(probe.StatusCritical, "sda reallocated sectors: 12")
	result.Timestamp = ts

	alert := FormatAlert("web-1", "disk", result)
	assert.Equal(t, "Health Check Alert: disk", alert.Title)
	assert.Equal(t, "Status: CRITICAL\nsda reallocated sectors: 12", alert.Message)
	assert.Equal(t, ts, alert.Timestamp)
	assert.Equal(t, "web-1", alert.Server)
	assert.Equal(t, "disk", alert.Check)
	assert.Equal(t, probe.StatusCritical, alert.Status)

	alert = FormatAlert("web-1", "disk", &probe.Result{Status: probe.StatusWarning})
	assert.Equal(t, "Status: WARNING\nNo message provided", alert.Message)
}

func TestWebhookNotify(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, "web-1", zap.NewNop())
	result := probe.New(probe.StatusWarning, "cert expires in 20 days")
	result.Timestamp = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.True(t, wh.Notify(context.Background(), "ssl", result))
	assert.Equal(t, "Health Check Alert: ssl", got["title"])
	assert.Equal(t, "Status: WARNING\ncert expires in 20 days", got["message"])
	assert.Equal(t, "2024-05-01T12:00:00Z", got["timestamp"])
	assert.Equal(t, "web-1", got["server"])
	assert.Equal(t, "ssl", got["check"])
	assert.Equal(t, "warning", got["status"])
}

func TestWebhookNonOKIsFailure(t *testing.T) {
	for _, code := range []int{http.StatusCreated, http.StatusNoContent, http.StatusBadRequest, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		wh := NewWebhook(srv.URL, "web-1", zap.NewNop())
		assert.False(t, wh.Notify(context.Background(), "disk", probe.New(probe.StatusCritical, "x")), "status %d", code)
		srv.Close()
	}
}

func TestWebhookUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	wh := NewWebhook(url, "web-1", zap.NewNop())
	assert.False(t, wh.Notify(context.Background(), "disk", probe.New(probe.StatusCritical, "x")))
}

func TestWebhookDisabled(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	wh := NewWebhook("", "web-1", zap.NewNop())
	assert.False(t, wh.Enabled())
	assert.True(t, NewWebhook(srv.URL, "web-1", zap.NewNop()).Enabled())
	assert.False(t, wh.Notify(context.Background(), "disk", probe.New(probe.StatusCritical, "x")))
	assert.Zero(t, calls.Load())
}
