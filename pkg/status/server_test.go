package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mzau/mlxk-launcher/pkg/logging"
)

func testServer(t *testing.T) (*httptest.Server, *Exporter) {
	t.Helper()
	exporter := NewExporter()
	logger := logging.NewLogger(logging.FATAL, false)
	logger.SetOutput(io.Discard)
	s := NewServer("127.0.0.1:0", exporter, logger)

	ts := httptest.NewServer(s.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, exporter
}

func TestHealthzRunning(t *testing.T) {
	ts, exporter := testServer(t)
	exporter.ChildStarted(999)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	var snap Session
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if snap.State != StateRunning || snap.ChildPID != 999 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestHealthzAfterExit(t *testing.T) {
	ts, exporter := testServer(t)
	exporter.ChildStarted(999)
	exporter.ChildExited(0)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d after exit, want 503", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, exporter := testServer(t)
	exporter.ChildStarted(1234)

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "mlxk_launcher_child_up 1") {
		t.Errorf("metrics output missing child_up gauge:\n%s", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := testServer(t)

	resp, err := http.Post(ts.URL+"/healthz", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /healthz failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d for POST, want 405", resp.StatusCode)
	}
}
