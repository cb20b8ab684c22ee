package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"rentcase/internal/domain"
)

func TestObserveCountsOutcomes(t *testing.T) {
	m := NewMetrics()
	events := []domain.QueryEvent{
		{Kind: domain.EventChatStart, Phase: domain.PhaseReceived},
		{Kind: domain.EventRetrievalSuccess, Phase: domain.PhaseRetrievalOK, Count: 2, Duration: 10 * time.Millisecond},
		{Kind: domain.EventStreamSuccess, Phase: domain.PhaseCompleted, Duration: time.Second},

		{Kind: domain.EventChatStart, Phase: domain.PhaseReceived},
		{Kind: domain.EventRetrievalDegraded, Phase: domain.PhaseRetrievalDegraded},
		{Kind: domain.EventStreamError, Phase: domain.PhaseFailed},

		{Kind: domain.EventChatStart, Phase: domain.PhaseReceived},
		{Kind: domain.EventInvalidInput, Phase: domain.PhaseFailed},
	}
	for _, e := range events {
		m.Observe(e)
	}

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"completed", testutil.ToFloat64(m.QueriesTotal.WithLabelValues("completed")), 1},
		{"failed", testutil.ToFloat64(m.QueriesTotal.WithLabelValues("failed")), 1},
		{"invalid", testutil.ToFloat64(m.QueriesTotal.WithLabelValues("invalid")), 1},
		{"retrieval ok", testutil.ToFloat64(m.RetrievalTotal.WithLabelValues("ok")), 1},
		{"retrieval degraded", testutil.ToFloat64(m.RetrievalTotal.WithLabelValues("degraded")), 1},
		{"in flight", testutil.ToFloat64(m.InFlight), 0},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.SetSnapshotRecords(42)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	if !strings.Contains(string(body), "rentcase_snapshot_records 42") {
		t.Fatalf("snapshot gauge missing from output:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatal("runtime collector missing")
	}
}

func TestMetricsAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.SetSnapshotRecords(1)
	if got := testutil.ToFloat64(b.SnapshotRecords); got != 0 {
		t.Fatalf("registries share state: %v", got)
	}
}
