package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Trigger(t *testing.T) {
	var received TriggerRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"workflowRunId":"wfr_123"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(ClientConfig{TriggerURL: server.URL, Token: "secret"}, nil, nil)

	runID, err := client.Trigger(context.Background(), TriggerRequest{
		URL:     "http://localhost:5500/api/v1/workflows/subscription/reminder",
		Body:    map[string]string{"subscriptionId": "abc"},
		Headers: map[string]string{"content-type": "application/json"},
		Retries: 0,
	})

	require.NoError(t, err)
	assert.Equal(t, "wfr_123", runID)
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "http://localhost:5500/api/v1/workflows/subscription/reminder", received.URL)
	assert.Equal(t, 0, received.Retries)
	assert.Equal(t, "application/json", received.Headers["content-type"])
}

func TestHTTPClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(ClientConfig{TriggerURL: server.URL}, nil, nil)
	_, err := client.Trigger(context.Background(), TriggerRequest{})

	assert.ErrorIs(t, err, ErrTriggerFailed)
}

func TestHTTPClient_MissingRunID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewHTTPClient(ClientConfig{TriggerURL: server.URL}, nil, nil)
	_, err := client.Trigger(context.Background(), TriggerRequest{})

	assert.ErrorIs(t, err, ErrTriggerFailed)
}

func TestHTTPClient_Disabled(t *testing.T) {
	client := NewHTTPClient(ClientConfig{}, nil, nil)
	_, err := client.Trigger(context.Background(), TriggerRequest{})
	assert.ErrorIs(t, err, ErrTriggerDisabled)
}

func TestHTTPClient_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(ClientConfig{
		TriggerURL:      server.URL,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
	}, nil, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.Trigger(ctx, TriggerRequest{})
		assert.ErrorIs(t, err, ErrTriggerFailed)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	_, err := client.Trigger(ctx, TriggerRequest{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}
