package aiclient_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/avoronkov/lab_ingest/internal/aiclient"
	"github.com/avoronkov/lab_ingest/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionBody(content string) []byte {
	data, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return data
}

func TestClient_Complete_HappyPath(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "extractor-1", req["model"])

		w.Write(completionBody(`[{"markerName":"Glucose","value":92,"unit":"mg/dL"}]`))
	}))
	defer srv.Close()

	client := aiclient.New(slog.New(slog.DiscardHandler), config.AI{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "extractor-1",
	})

	content, err := client.Complete(context.Background(), aiclient.CompletionRequest{
		SystemPrompt: "extract",
		UserPrompt:   "Glucose: 92 mg/dL",
	})
	require.NoError(t, err)
	assert.Contains(t, content, "Glucose")
}

func TestClient_Complete_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		w.Write(completionBody("[]"))
	}))
	defer srv.Close()

	client := aiclient.New(slog.New(slog.DiscardHandler), config.AI{BaseURL: srv.URL, APIKey: "k", Model: "m"})

	content, err := client.Complete(context.Background(), aiclient.CompletionRequest{UserPrompt: "text"})
	require.NoError(t, err)
	assert.Equal(t, "[]", content)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Complete_DoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := aiclient.New(slog.New(slog.DiscardHandler), config.AI{BaseURL: srv.URL, APIKey: "k", Model: "m"})

	_, err := client.Complete(context.Background(), aiclient.CompletionRequest{UserPrompt: "text"})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
