package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIngestOutcomeCounter(t *testing.T) {
	m := New()
	m.IngestAds.WithLabelValues(OutcomeStored).Inc()
	m.IngestAds.WithLabelValues(OutcomeStored).Inc()
	m.IngestAds.WithLabelValues(OutcomeFetchFailed).Inc()

	if got := testutil.ToFloat64(m.IngestAds.WithLabelValues(OutcomeStored)); got != 2 {
		t.Fatalf("stored = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.IngestAds.WithLabelValues(OutcomeFetchFailed)); got != 1 {
		t.Fatalf("fetch_failed = %v, want 1", got)
	}
}

func TestObserveSince(t *testing.T) {
	m := New()
	ObserveSince(m.EmbedDuration, time.Now().Add(-time.Second))
	if n := testutil.CollectAndCount(m.EmbedDuration); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
}

func TestHandlerExposesNamespacedMetrics(t *testing.T) {
	m := New()
	m.SearchErrors.WithLabelValues("semantic").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`carsearch_search_errors_total{branch="semantic"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("missing %q in exposition", want)
		}
	}
}
