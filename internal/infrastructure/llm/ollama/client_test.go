package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

func testExecutor(attempts int) *resilience.Executor {
	cfg := resilience.DefaultConfig()
	cfg.RetryMaxAttempts = attempts
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = time.Millisecond
	cfg.BreakerEnabled = false
	return resilience.NewExecutor(cfg)
}

func TestEmbedSendsModelAndInputs(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "nomic-embed-text", Options{}))
	vectors, err := embedder.Embed(context.Background(), []string{"Art. 1º", "Art. 2º"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 2 || vectors[1][1] != 0.4 {
		t.Fatalf("unexpected vectors %v", vectors)
	}
	if captured["model"] != "nomic-embed-text" {
		t.Fatalf("unexpected model %v", captured["model"])
	}
	if inputs, _ := captured["input"].([]any); len(inputs) != 2 {
		t.Fatalf("unexpected input %v", captured["input"])
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "embed", Options{ResilienceExecutor: testExecutor(1)}))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("bad gateway should be temporary, got %v", err)
	}
	if store, ok := domain.FailedStore(err); !ok || store != domain.StoreEmbedder {
		t.Fatalf("expected embedder store error, got %v", err)
	}
}

func TestEmbedRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "embed", Options{ResilienceExecutor: testExecutor(3)}))
	vector, err := embedder.EmbedQuery(context.Background(), "multa")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 2 || calls.Load() != 2 {
		t.Fatalf("expected retry then success, vector=%v calls=%d", vector, calls.Load())
	}
}

func TestEmbedRejectsMismatchedCount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "embed", Options{}))
	if _, err := embedder.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatalf("expected count mismatch error")
	}
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "missing", Options{ResilienceExecutor: testExecutor(3)}))
	_, err := embedder.Embed(context.Background(), []string{"a"})
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single attempt, got %d", calls.Load())
	}
}

func TestEmbedReportsUndecodableResponseWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("unexpected content type %q", ct)
		}
		_, _ = w.Write([]byte(`<html>proxy error</html>`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "embed", Options{ResilienceExecutor: testExecutor(3)}))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil || !strings.Contains(err.Error(), "decode embed response") {
		t.Fatalf("expected decode error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("decode failure should not be temporary: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt, got %d", calls.Load())
	}
}
