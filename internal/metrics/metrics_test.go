package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordOperation(t *testing.T) {
	m := newMetricsWithRegistry(prometheus.NewRegistry())

	m.RecordOperation("encrypt", 32, time.Millisecond, nil)
	m.RecordOperation("encrypt", 16, time.Millisecond, nil)
	m.RecordOperation("decrypt", 48, time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(m.cryptoOperations.WithLabelValues("encrypt")); got != 2 {
		t.Errorf("encrypt operations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cryptoBytes.WithLabelValues("encrypt")); got != 48 {
		t.Errorf("encrypt bytes = %v, want 48", got)
	}
	if got := testutil.ToFloat64(m.cryptoErrors.WithLabelValues("decrypt")); got != 1 {
		t.Errorf("decrypt errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.cryptoErrors.WithLabelValues("encrypt")); got != 0 {
		t.Errorf("encrypt errors = %v, want 0", got)
	}
}

func TestOpenFilesGauge(t *testing.T) {
	m := NewMetrics()

	m.FileOpened()
	m.FileOpened()
	m.FileClosed()

	if got := testutil.ToFloat64(m.openFiles); got != 1 {
		t.Errorf("open files = %v, want 1", got)
	}
}

func TestHandlerServesSideFileRecords(t *testing.T) {
	m := NewMetrics()
	m.RecordSideFileRecord("IV")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `logcrypt_side_file_records_total{type="IV"} 1`) {
		t.Errorf("metrics output missing side-file record counter:\n%s", body)
	}
}
