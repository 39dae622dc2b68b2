package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

const defaultSearchSize = 10

// indexMapping is created once per index; laws are stored whole, one document per law.
const indexMapping = `{
  "mappings": {
    "properties": {
      "law_id":      {"type": "keyword"},
      "title":       {"type": "text"},
      "law_type":    {"type": "keyword"},
      "date":        {"type": "date", "ignore_malformed": true},
      "source_path": {"type": "keyword"},
      "content":     {"type": "text"}
    }
  }
}`

type Client struct {
	es       *elasticsearch.Client
	index    string
	executor *resilience.Executor

	ensureMu sync.Mutex
	ensured  bool
}

type Options struct {
	ResilienceExecutor *resilience.Executor
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

func New(url, index string, options Options) (*Client, error) {
	if strings.TrimSpace(index) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "elasticsearch new", fmt.Errorf("index name is empty"))
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{strings.TrimRight(url, "/")},
		Transport: options.Transport,
		// Retries belong to the resilience executor.
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return &Client{
		es:       es,
		index:    index,
		executor: options.ResilienceExecutor,
	}, nil
}

// EnsureIndex creates the law index with its mapping when missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensured {
		return nil
	}

	err := c.execute(ctx, "elasticsearch.ensure_index", func(ctx context.Context) error {
		res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("elasticsearch index exists request: %w", err)
		}
		drain(res)
		switch {
		case res.StatusCode == http.StatusOK:
			return nil
		case res.StatusCode != http.StatusNotFound:
			return &StatusError{Operation: "index exists", StatusCode: res.StatusCode, Status: res.Status()}
		}

		res, err = c.es.Indices.Create(
			c.index,
			c.es.Indices.Create.WithBody(strings.NewReader(indexMapping)),
			c.es.Indices.Create.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch create index request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			statusErr := newStatusError("create index", res)
			// Another process created it first.
			if strings.Contains(statusErr.Body, "resource_already_exists_exception") {
				return nil
			}
			return statusErr
		}
		return nil
	})
	if err != nil {
		return domain.NewStoreError(domain.StoreElasticsearch, "ensure index", wrapTemporaryIfNeeded("elasticsearch ensure index", err))
	}
	c.ensured = true
	return nil
}

type lawDocument struct {
	LawID      string `json:"law_id"`
	Title      string `json:"title,omitempty"`
	LawType    string `json:"law_type,omitempty"`
	Date       string `json:"date,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
	Content    string `json:"content"`
}

// IndexLaw stores the full text of a law under its id and refreshes the index.
func (c *Client) IndexLaw(ctx context.Context, doc domain.SourceDocument) error {
	if err := domain.ValidateLawID(doc.Law.ID); err != nil {
		return err
	}
	if err := c.EnsureIndex(ctx); err != nil {
		return err
	}

	body, err := json.Marshal(lawDocument{
		LawID:      doc.Law.ID,
		Title:      doc.Law.Title,
		LawType:    doc.Law.Type,
		Date:       doc.Law.Date,
		SourcePath: doc.SourcePath,
		Content:    doc.Text,
	})
	if err != nil {
		return fmt.Errorf("marshal law document: %w", err)
	}

	err = c.execute(ctx, "elasticsearch.index", func(ctx context.Context) error {
		res, err := c.es.Index(
			c.index,
			bytes.NewReader(body),
			c.es.Index.WithDocumentID(doc.Law.ID),
			c.es.Index.WithRefresh("true"),
			c.es.Index.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch index request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			return newStatusError("index", res)
		}
		return nil
	})
	if err != nil {
		return domain.NewStoreError(domain.StoreElasticsearch, "index law", wrapTemporaryIfNeeded("elasticsearch index law", err))
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Title string `json:"title"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchDocuments runs a full-text match on law content and returns hits by descending score.
func (c *Client) SearchDocuments(ctx context.Context, query string, size int) ([]domain.DocHit, error) {
	if size <= 0 {
		size = defaultSearchSize
	}
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"match": map[string]any{"content": query},
		},
		"_source": []string{"title"},
		"size":    size,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	hits, err := resilience.Do(ctx, c.executor, "elasticsearch.search", func(ctx context.Context) ([]domain.DocHit, error) {
		res, err := c.es.Search(
			c.es.Search.WithIndex(c.index),
			c.es.Search.WithBody(bytes.NewReader(body)),
			c.es.Search.WithContext(ctx),
		)
		if err != nil {
			return nil, fmt.Errorf("elasticsearch search request: %w", err)
		}
		defer res.Body.Close()
		if res.IsError() {
			statusErr := newStatusError("search", res)
			// Nothing ingested yet: the index is created on first write.
			if statusErr.indexMissing() {
				return []domain.DocHit{}, nil
			}
			return nil, statusErr
		}
		var decoded searchResponse
		if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}
		out := make([]domain.DocHit, 0, len(decoded.Hits.Hits))
		for _, h := range decoded.Hits.Hits {
			out = append(out, domain.DocHit{LawID: h.ID, Title: h.Source.Title, Score: h.Score})
		}
		return out, nil
	}, classifyElasticError)
	if err != nil {
		return nil, domain.NewStoreError(domain.StoreElasticsearch, "search", wrapTemporaryIfNeeded("elasticsearch search", err))
	}
	return hits, nil
}

// Ping reports whether the cluster answers.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return domain.NewStoreError(domain.StoreElasticsearch, "ping", wrapTemporaryIfNeeded("elasticsearch ping", err))
	}
	drain(res)
	if res.IsError() {
		return domain.NewStoreError(domain.StoreElasticsearch, "ping", &StatusError{Operation: "ping", StatusCode: res.StatusCode, Status: res.Status()})
	}
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	return c.executor.Execute(ctx, operation, fn, classifyElasticError)
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
