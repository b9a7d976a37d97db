package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/legal-assistant/internal/core/domain"
)

func TestObserveSourceFetchCountsFailures(t *testing.T) {
	m := NewHTTPServerMetrics("api")

	m.ObserveSourceFetch("vector", 0, true, 10*time.Millisecond)
	m.ObserveSourceFetch("vector", 0, true, 10*time.Millisecond)
	m.ObserveSourceFetch("graph_keyword", 3, false, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.sourceFailuresTotal.WithLabelValues("vector")); got != 2 {
		t.Fatalf("expected 2 vector failures, got %v", got)
	}
	if got := testutil.ToFloat64(m.sourceFailuresTotal.WithLabelValues("graph_keyword")); got != 0 {
		t.Fatalf("expected no keyword failures, got %v", got)
	}
}

func TestObserveHybridSearchCountsEmpty(t *testing.T) {
	m := NewHTTPServerMetrics("api")

	m.ObserveHybridSearch(0, time.Millisecond)
	m.ObserveHybridSearch(7, time.Millisecond)

	if got := testutil.ToFloat64(m.hybridEmptyTotal); got != 1 {
		t.Fatalf("expected 1 empty search, got %v", got)
	}
}

func TestObserveAskByStatus(t *testing.T) {
	m := NewHTTPServerMetrics("api")

	m.ObserveAsk(domain.StatusSuccess, time.Second)
	m.ObserveAsk(domain.StatusNoResults, time.Second)
	m.ObserveAsk(domain.StatusSuccess, time.Second)

	if got := testutil.ToFloat64(m.askTotal.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 successful asks, got %v", got)
	}
	if got := testutil.ToFloat64(m.askTotal.WithLabelValues("no_results")); got != 1 {
		t.Fatalf("expected 1 no_results ask, got %v", got)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ask/traces/abc", nil))

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/ask/traces/{trace_id}", "418")); got != 1 {
		t.Fatalf("expected normalized path counter, got %v", got)
	}

	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(res.Body.String(), "legal_http_requests_total") {
		t.Fatalf("expected exposition to contain request counter")
	}
}

func TestWorkerMetricsFinishTrace(t *testing.T) {
	m := NewWorkerMetrics("worker")

	m.StartTrace()
	m.FinishTrace(time.Millisecond, nil)
	m.StartTrace()
	m.FinishTrace(time.Millisecond, errors.New("db down"))
	m.ObserveTraceLag(-time.Second)

	if got := testutil.ToFloat64(m.persistTotal.WithLabelValues("worker", "error")); got != 1 {
		t.Fatalf("expected 1 failed persist, got %v", got)
	}
	if got := testutil.ToFloat64(m.persistInFlight); got != 0 {
		t.Fatalf("expected in-flight gauge back to 0, got %v", got)
	}
}
