package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/legal-assistant/internal/config"
	"github.com/kirillkom/legal-assistant/internal/core/domain"
	"github.com/kirillkom/legal-assistant/internal/core/ports"
	"github.com/kirillkom/legal-assistant/internal/observability/metrics"
)

const (
	maxAskBodyBytes  = 64 << 10
	backpressureWait = 250 * time.Millisecond
)

type Router struct {
	cfg     config.Config
	search  ports.SearchService
	ask     ports.QuestionAnswerer
	traces  ports.TraceRepository
	metrics *metrics.HTTPServerMetrics
}

// NewRouter wires the API handlers. traces and httpMetrics may be nil.
func NewRouter(
	cfg config.Config,
	search ports.SearchService,
	ask ports.QuestionAnswerer,
	traces ports.TraceRepository,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:     cfg,
		search:  search,
		ask:     ask,
		traces:  traces,
		metrics: httpMetrics,
	}
}

// Handler builds the chain: request id, access log, metrics, rate limit,
// backpressure, OpenAPI validation, mux.
func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /ask", rt.handleAsk)
	mux.HandleFunc("GET /search", rt.handleSearch)
	mux.HandleFunc("GET /ask/traces/{traceId}", rt.getTrace)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if validator, err := newRequestValidator(); err != nil {
		slog.Error("openapi_validator_disabled", "error", err)
	} else {
		handler = validator.middleware(handler)
	}

	var observer trafficObserver = noopTrafficObserver{}
	if rt.metrics != nil {
		observer = rt.metrics
	}
	handler = backpressureMiddlewareWithObserver(handler, rt.cfg.APIMaxInFlight, backpressureWait, observer)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, observer)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req domain.AskRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	result, err := rt.ask.Ask(r.Context(), req)
	if err != nil {
		slog.Error("ask_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := rt.search.Search(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseSearchRequest(r *http.Request) (domain.SearchRequest, error) {
	q := r.URL.Query()
	req := domain.SearchRequest{Query: strings.TrimSpace(q.Get("query"))}
	if req.Query == "" {
		return req, invalidParam("query", "is required")
	}

	searchType, err := domain.ParseSearchType(q.Get("searchType"))
	if err != nil {
		return req, err
	}
	req.Type = searchType

	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return req, invalidParam("limit", "must be a positive integer")
		}
		req.Limit = limit
	}
	if raw := strings.TrimSpace(q.Get("threshold")); raw != "" {
		threshold, err := strconv.ParseFloat(raw, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			return req, invalidParam("threshold", "must be a number within [0,1]")
		}
		req.Threshold = threshold
	}
	return req, nil
}

func invalidParam(name, reason string) error {
	return domain.WrapError(domain.ErrInvalidInput, "parse search request", fmt.Errorf("%s %s", name, reason))
}

func (rt *Router) getTrace(w http.ResponseWriter, r *http.Request) {
	if rt.traces == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "trace lookup is disabled"})
		return
	}
	id := strings.TrimSpace(r.PathValue("traceId"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "trace id is required"})
		return
	}

	event, err := rt.traces.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
