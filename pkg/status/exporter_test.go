package status

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
)

// scrape renders the exporter's registry and parses it back
func scrape(t *testing.T, e *Exporter) map[string]float64 {
	t.Helper()

	handler := promhttp.HandlerFor(e.Registry(), promhttp.HandlerOpts{})
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	parser := expfmt.NewTextParser(model.LegacyValidation)
	families, err := parser.TextToMetricFamilies(strings.NewReader(w.Body.String()))
	if err != nil {
		t.Fatalf("failed to parse exposition: %v", err)
	}

	values := make(map[string]float64)
	for name, family := range families {
		for _, m := range family.GetMetric() {
			key := name
			for _, l := range m.GetLabel() {
				key += "{" + l.GetName() + "=" + l.GetValue() + "}"
			}
			switch {
			case m.GetGauge() != nil:
				values[key] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				values[key] = m.GetCounter().GetValue()
			}
		}
	}
	return values
}

func TestExporterSessionLifecycle(t *testing.T) {
	e := NewExporter()

	if got := e.Snapshot().State; got != StateStarting {
		t.Errorf("initial state = %s, want %s", got, StateStarting)
	}

	e.ChildStarted(4242)
	snap := e.Snapshot()
	if snap.State != StateRunning || snap.ChildPID != 4242 {
		t.Errorf("after start: %+v", snap)
	}

	values := scrape(t, e)
	if values["mlxk_launcher_child_up"] != 1 {
		t.Errorf("child_up = %v, want 1", values["mlxk_launcher_child_up"])
	}
	if values["mlxk_launcher_child_pid"] != 4242 {
		t.Errorf("child_pid = %v, want 4242", values["mlxk_launcher_child_pid"])
	}

	e.SignalReceived("terminated")
	e.SignalReceived("terminated")
	e.Escalated()
	e.ChildExited(137)

	snap = e.Snapshot()
	if snap.State != StateExited || !snap.Escalated {
		t.Errorf("after exit: %+v", snap)
	}
	if snap.ExitCode == nil || *snap.ExitCode != 137 {
		t.Errorf("exit code not recorded: %+v", snap.ExitCode)
	}
	if len(snap.Signals) != 2 {
		t.Errorf("expected 2 recorded signals, got %v", snap.Signals)
	}

	values = scrape(t, e)
	if values["mlxk_launcher_child_up"] != 0 {
		t.Errorf("child_up = %v after exit, want 0", values["mlxk_launcher_child_up"])
	}
	if values["mlxk_launcher_signals_total{signal=terminated}"] != 2 {
		t.Errorf("signals_total = %v, want 2", values["mlxk_launcher_signals_total{signal=terminated}"])
	}
	if values["mlxk_launcher_escalations_total"] != 1 {
		t.Errorf("escalations_total = %v, want 1", values["mlxk_launcher_escalations_total"])
	}
	if values["mlxk_launcher_child_exit_code"] != 137 {
		t.Errorf("child_exit_code = %v, want 137", values["mlxk_launcher_child_exit_code"])
	}
}

func TestExporterSampleChildNoChild(t *testing.T) {
	e := NewExporter()
	// Must be a no-op before a child exists
	e.SampleChild()
	if v := scrape(t, e)["mlxk_launcher_child_cpu_percent"]; v != 0 {
		t.Errorf("cpu gauge moved without a child: %v", v)
	}
}
