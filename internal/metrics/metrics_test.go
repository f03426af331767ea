package metrics

import (
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/liamcoop/ruleeval/rules"
)

func TestNew(t *testing.T) {
	m := New()
	if m.Registry == nil {
		t.Fatal("expected non-nil Registry")
	}

	m.EvaluationsTotal.Inc()
	fams, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if len(fams) == 0 {
		t.Fatal("expected at least one metric family after increment")
	}
}

func TestRecordRuleOutcome(t *testing.T) {
	m := New()

	var rec rules.Recorder = m
	rec.RecordRuleOutcome(rules.OutcomeMatched)
	rec.RecordRuleOutcome(rules.OutcomeMatched)
	rec.RecordRuleOutcome(rules.OutcomeError)

	if got := testutil.ToFloat64(m.RuleOutcomesTotal.WithLabelValues("matched")); got != 2 {
		t.Fatalf("expected matched count 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.RuleOutcomesTotal.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected error count 1, got %v", got)
	}
}

func TestRecordSnapshotLoad(t *testing.T) {
	m := New()

	m.RecordSnapshotLoad(true)
	m.RecordSnapshotLoad(false)
	m.RecordSnapshotLoad(true)

	if got := testutil.ToFloat64(m.SnapshotLoadsTotal.WithLabelValues("cache")); got != 2 {
		t.Fatalf("expected cache count 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.SnapshotLoadsTotal.WithLabelValues("store")); got != 1 {
		t.Fatalf("expected store count 1, got %v", got)
	}
}

func TestObserveEvaluation(t *testing.T) {
	m := New()

	m.ObserveEvaluation(15 * time.Millisecond)

	if got := testutil.ToFloat64(m.EvaluationsTotal); got != 1 {
		t.Fatalf("expected 1 evaluation, got %v", got)
	}
	if got := testutil.CollectAndCount(m.EvaluationDuration); got != 1 {
		t.Fatalf("expected 1 histogram series, got %d", got)
	}
}

func TestSetDBStats(t *testing.T) {
	m := New()

	m.SetDBStats(sql.DBStats{OpenConnections: 10, InUse: 3, Idle: 7})

	if got := testutil.ToFloat64(m.DBOpenConnections); got != 10 {
		t.Fatalf("expected open 10, got %v", got)
	}
	if got := testutil.ToFloat64(m.DBInUseConnections); got != 3 {
		t.Fatalf("expected in use 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.DBIdleConnections); got != 7 {
		t.Fatalf("expected idle 7, got %v", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/rules/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/api/v1/rules/1", "/api/v1/rules/2"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/rules/{id}", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests on route pattern, got %v", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordRuleOutcome(rules.OutcomeUnmatched)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "ruleeval_rule_outcomes_total") {
		t.Fatalf("expected rule outcome metric in output, got:\n%s", body)
	}
}
