package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveLedger(t *testing.T) {
	m := New()
	m.ObserveLedger("CreateLandTitle", "submit", "ok", 20*time.Millisecond)
	m.ObserveLedger("CreateLandTitle", "submit", "ok", 30*time.Millisecond)
	m.ObserveLedger("ReadLandTitle", "evaluate", "NotFound", time.Millisecond)

	if got := testutil.ToFloat64(m.ledgerCalls.WithLabelValues("CreateLandTitle", "submit", "ok")); got != 2 {
		t.Fatalf("expected 2 create calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.ledgerCalls.WithLabelValues("ReadLandTitle", "evaluate", "NotFound")); got != 1 {
		t.Fatalf("expected 1 read call, got %v", got)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveStore("upload", "ok", time.Millisecond)
	m.AddUploadedBytes(36)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{"titlegate_store_calls_total", "titlegate_store_uploaded_bytes_total 36", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in exposition", want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveLedger("x", "submit", "ok", time.Second)
	m.ObserveStore("x", "ok", time.Second)
	m.ObserveAPI("GET", "/", "200", time.Second)
	m.IncLedgerConnect("ok")
	m.AddUploadedBytes(1)
	m.APIInflightInc()
	m.APIInflightDec()
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}
}
