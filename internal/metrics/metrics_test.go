package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveAction("create_group", "ok")
	m.ObserveAssistantCall("chat", time.Second, nil)
	m.ObserveFlush(time.Millisecond, errors.New("boom"))
	m.ObserveEvent("group.created", nil)
	m.ObserveHTTP("/api/chat", 200, time.Millisecond)
	m.ObserveCache(true)
	m.ObserveSync("expense.recorded", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil handler status = %d, want 404", rec.Code)
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	return rec.Body.String()
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveAction("add_expense", "ok")
	m.ObserveAction("add_expense", "ok")
	m.ObserveAction("join_group", "invalid_group")
	m.ObserveFlush(time.Millisecond, nil)
	m.ObserveFlush(time.Millisecond, errors.New("disk full"))
	m.ObserveCache(false)
	m.ObserveEvent("expense.recorded", nil)
	m.ObserveSync("expense.recorded", errors.New("quota"))

	body := scrape(t, m)
	for _, want := range []string{
		`shadiflow_actions_total{action="add_expense",outcome="ok"} 2`,
		`shadiflow_actions_total{action="join_group",outcome="invalid_group"} 1`,
		`shadiflow_store_flushes_total{result="error"} 1`,
		`shadiflow_store_flushes_total{result="ok"} 1`,
		`shadiflow_store_flush_duration_seconds_count 2`,
		`shadiflow_summary_cache_lookups_total{result="miss"} 1`,
		`shadiflow_events_published_total{result="ok",type="expense.recorded"} 1`,
		`shadiflow_sheet_syncs_total{result="error",type="expense.recorded"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/group", 201, 20*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`shadiflow_http_requests_total{code="201",route="/api/group"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("exposition missing %q", want)
		}
	}
}
