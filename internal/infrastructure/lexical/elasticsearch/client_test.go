package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	handler  func(w http.ResponseWriter, r *http.Request, body string)
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	body, _ := io.ReadAll(r.Body)
	if r.Method == http.MethodGet && r.URL.Path == "/" {
		_, _ = w.Write([]byte(`{"version":{"number":"8.17.0","build_flavor":"default"},"tagline":"You Know, for Search"}`))
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)})
	f.mu.Unlock()
	f.handler(w, r, string(body))
}

func (f *fakeCluster) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func newTestClient(t *testing.T, cluster *fakeCluster, executor *resilience.Executor) *Client {
	t.Helper()
	srv := httptest.NewServer(cluster)
	t.Cleanup(srv.Close)

	client, err := New(srv.URL, "anvisa_docs", Options{ResilienceExecutor: executor})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client
}

func fastExecutor(attempts int) *resilience.Executor {
	cfg := resilience.DefaultConfig()
	cfg.RetryMaxAttempts = attempts
	cfg.RetryInitialBackoff = time.Millisecond
	cfg.RetryMaxBackoff = time.Millisecond
	cfg.BreakerEnabled = false
	return resilience.NewExecutor(cfg)
}

func TestSearchDocumentsReturnsHitsWithTitles(t *testing.T) {
	cluster := &fakeCluster{handler: func(w http.ResponseWriter, r *http.Request, body string) {
		if r.URL.Path != "/anvisa_docs/_search" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_id":"L9784","_score":7.5,"_source":{"title":"Lei 9.784/1999"}},
			{"_id":"L6437","_score":3.1,"_source":{"title":"Lei 6.437/1977"}}
		]}}`))
	}}
	client := newTestClient(t, cluster, fastExecutor(1))

	hits, err := client.SearchDocuments(context.Background(), "penalidades", 5)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(hits) != 2 || hits[0].LawID != "L9784" || hits[0].Title != "Lei 9.784/1999" || hits[0].Score != 7.5 {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	reqs := cluster.recorded()
	if len(reqs) != 1 {
		t.Fatalf("expected one search request, got %d", len(reqs))
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte(reqs[0].Body), &sent); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	if sent["size"].(float64) != 5 {
		t.Fatalf("expected size 5, got %v", sent["size"])
	}
	match := sent["query"].(map[string]any)["match"].(map[string]any)
	if match["content"] != "penalidades" {
		t.Fatalf("expected match on content, got %v", match)
	}
}

func TestSearchDocumentsRetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	cluster := &fakeCluster{handler: func(w http.ResponseWriter, r *http.Request, body string) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"unavailable"}`))
			return
		}
		_, _ = w.Write([]byte(`{"hits":{"hits":[{"_id":"L1","_score":1}]}}`))
	}}
	client := newTestClient(t, cluster, fastExecutor(3))

	hits, err := client.SearchDocuments(context.Background(), "multa", 10)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(hits) != 1 || calls.Load() != 2 {
		t.Fatalf("expected success on second attempt, hits=%v calls=%d", hits, calls.Load())
	}
}

func TestSearchDocumentsReportsStoreOnFailure(t *testing.T) {
	cluster := &fakeCluster{handler: func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}}
	client := newTestClient(t, cluster, fastExecutor(2))

	_, err := client.SearchDocuments(context.Background(), "multa", 10)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrRetrieval) || !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected retrieval+temporary error, got %v", err)
	}
	if store, ok := domain.FailedStore(err); !ok || store != domain.StoreElasticsearch {
		t.Fatalf("expected elasticsearch store, got %q", store)
	}
	if n := len(cluster.recorded()); n != 2 {
		t.Fatalf("expected 2 attempts, got %d", n)
	}
}

func TestSearchDocumentsDoesNotRetryBadRequest(t *testing.T) {
	cluster := &fakeCluster{handler: func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"parsing_exception"}}`))
	}}
	client := newTestClient(t, cluster, fastExecutor(3))

	_, err := client.SearchDocuments(context.Background(), "multa", 10)
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if !strings.Contains(err.Error(), "parsing_exception") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if n := len(cluster.recorded()); n != 1 {
		t.Fatalf("expected single attempt, got %d", n)
	}
}

func TestSearchDocumentsTreatsMissingIndexAsEmpty(t *testing.T) {
	cluster := &fakeCluster{handler: func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"root_cause":[{"type":"index_not_found_exception","reason":"no such index [anvisa_docs]"}],"type":"index_not_found_exception","reason":"no such index [anvisa_docs]","index":"anvisa_docs"},"status":404}`))
	}}
	client := newTestClient(t, cluster, fastExecutor(3))

	hits, err := client.SearchDocuments(context.Background(), "multa", 10)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("expected empty non-nil hits, got %#v", hits)
	}
	if got := len(cluster.recorded()); got != 1 {
		t.Fatalf("expected a single request, got %d", got)
	}
}

func TestSearchDocumentsReportsOtherNotFound(t *testing.T) {
	cluster := &fakeCluster{handler: func(w http.ResponseWriter, r *http.Request, body string) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no handler found"}`))
	}}
	client := newTestClient(t, cluster, fastExecutor(1))

	if _, err := client.SearchDocuments(context.Background(), "multa", 10); !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
}

func TestIndexLawCreatesIndexAndStoresDocument(t *testing.T) {
	cluster := &fakeCluster{}
	cluster.handler = func(w http.ResponseWriter, r *http.Request, body string) {
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/anvisa_docs":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/anvisa_docs":
			_, _ = w.Write([]byte(`{"acknowledged":true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/anvisa_docs/_doc/L9784":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"result":"created"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}
	client := newTestClient(t, cluster, fastExecutor(1))

	doc := domain.SourceDocument{
		Law:        domain.Law{ID: "L9784", Title: "Lei 9.784/1999", Type: "lei"},
		Text:       "Art. 1º Esta Lei estabelece normas básicas.",
		SourcePath: "data/l9784.html",
	}
	for i := 0; i < 2; i++ {
		if err := client.IndexLaw(context.Background(), doc); err != nil {
			t.Fatalf("IndexLaw() error = %v", err)
		}
	}

	reqs := cluster.recorded()
	// index creation happens once, the document is written twice
	if len(reqs) != 4 {
		t.Fatalf("expected 4 requests, got %+v", reqs)
	}
	if !strings.Contains(reqs[1].Body, `"content"`) {
		t.Fatalf("expected mapping body, got %s", reqs[1].Body)
	}
	if !strings.Contains(reqs[2].Query, "refresh=true") {
		t.Fatalf("expected refresh on index, got %q", reqs[2].Query)
	}
	var stored lawDocument
	if err := json.Unmarshal([]byte(reqs[2].Body), &stored); err != nil {
		t.Fatalf("decode stored doc: %v", err)
	}
	if stored.LawID != "L9784" || stored.Title != "Lei 9.784/1999" || stored.SourcePath != "data/l9784.html" {
		t.Fatalf("unexpected stored doc: %+v", stored)
	}
}

func TestIndexLawRejectsInvalidLawID(t *testing.T) {
	cluster := &fakeCluster{handler: func(w http.ResponseWriter, r *http.Request, body string) {
		t.Fatalf("no request expected")
	}}
	client := newTestClient(t, cluster, nil)

	err := client.IndexLaw(context.Background(), domain.SourceDocument{Law: domain.Law{ID: "L 1"}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
