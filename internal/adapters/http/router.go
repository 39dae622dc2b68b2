package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gmontinny/ia-rag/internal/config"
	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/core/ports"
	"github.com/gmontinny/ia-rag/internal/observability/metrics"
)

const maxRequestBody = 1 << 20

const (
	defaultAskTemperature = 0.2
	defaultAskTopK        = 6
	defaultAskMaxTokens   = 800
	defaultSearchSize     = 10
	defaultSearchLimit    = 5
)

type Options struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Ready backs GET /readyz. Nil reports ready.
	Ready func(ctx context.Context) error
}

type Router struct {
	cfg      config.Config
	searcher ports.Searcher
	asker    ports.Asker
	catalog  ports.LawCatalog
	metrics  *metrics.Metrics
	logger   *slog.Logger
	ready    func(ctx context.Context) error
}

func NewRouter(cfg config.Config, searcher ports.Searcher, asker ports.Asker, catalog ports.LawCatalog, opts Options) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:      cfg,
		searcher: searcher,
		asker:    asker,
		catalog:  catalog,
		metrics:  opts.Metrics,
		logger:   logger,
		ready:    opts.Ready,
	}
}

func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware(rt.logger))
	if rt.metrics != nil {
		r.Use(rt.metrics.Middleware)
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/readyz", rt.readyz)
	if rt.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(rateLimitMiddleware(rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst))
		r.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
		})
		if rt.cfg.APIRequestTimeout > 0 {
			r.Use(middleware.Timeout(rt.cfg.APIRequestTimeout))
		}
		r.Post("/search", rt.search)
		r.Post("/ask", rt.ask)
		r.Get("/laws", rt.listLaws)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, r *http.Request) {
	if rt.ready != nil {
		if err := rt.ready(r.Context()); err != nil {
			rt.logger.Warn("readiness_failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	Query     string `json:"query"`
	Mode      string `json:"mode"`
	Size      int    `json:"size"`
	Limit     int    `json:"limit"`
	Explain   *bool  `json:"explain"`
	FilterLaw string `json:"filter_law"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode, err := domain.ParseRetrievalMode(req.Mode)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}

	result, err := rt.searcher.Search(r.Context(), domain.SearchRequest{
		Query:     req.Query,
		Mode:      mode,
		Size:      positiveOr(req.Size, defaultSearchSize),
		Limit:     positiveOr(req.Limit, defaultSearchLimit),
		Explain:   boolOr(req.Explain, true),
		FilterLaw: strings.TrimSpace(req.FilterLaw),
	})
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type askRequest struct {
	Query       string   `json:"query"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model"`
	TopK        int      `json:"top_k"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   int      `json:"max_tokens"`
	Hybrid      *bool    `json:"hybrid"`
	FilterLaw   string   `json:"filter_law"`
	Debug       bool     `json:"debug"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	temperature := defaultAskTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	answer, err := rt.asker.Ask(r.Context(), domain.AskRequest{
		Query:       req.Query,
		Provider:    req.Provider,
		Model:       strings.TrimSpace(req.Model),
		TopK:        positiveOr(req.TopK, defaultAskTopK),
		Temperature: temperature,
		MaxTokens:   positiveOr(req.MaxTokens, defaultAskMaxTokens),
		Hybrid:      boolOr(req.Hybrid, true),
		FilterLaw:   strings.TrimSpace(req.FilterLaw),
		Debug:       req.Debug,
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrUnanswerable) && answer != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error(), "answer": answer})
			return
		}
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) listLaws(w http.ResponseWriter, r *http.Request) {
	records, err := rt.catalog.List(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"laws": records})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		attrs := []any{"request_id", requestIDFromContext(r.Context()), "path", r.URL.Path, "error", err}
		if store, ok := domain.FailedStore(err); ok {
			attrs = append(attrs, "store", store)
		}
		rt.logger.Error("request_failed", attrs...)
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxRequestBody)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("request body is required")
		default:
			return fmt.Errorf("invalid json: %v", err)
		}
	}
	return nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
