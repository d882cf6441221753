package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/crystal-mush/gridadmin/pkg/attach"
)

func TestObserveDiscovery(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveDiscovery(attach.All, 3, attach.Stats{BlocksExamined: 12, ReverseGridsScanned: 5})
	m.ObserveDiscovery(attach.StaticOnly, 1, attach.Stats{BlocksExamined: 2})

	if got := testutil.ToFloat64(m.discoveries.WithLabelValues("all")); got != 1 {
		t.Errorf("all discoveries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.blocksExamined); got != 14 {
		t.Errorf("blocks examined = %v, want 14", got)
	}
	if got := testutil.ToFloat64(m.reverseGridsScanned); got != 5 {
		t.Errorf("reverse grids = %v, want 5", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveDiscovery(attach.All, 1, attach.Stats{})
	m.GridsHalted(2)
	m.PilotsEjected(1)
	m.BlockSynced("power_on")
	m.SetWorldGrids(4)
}

func TestHandlerRefreshes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	refreshed := false

	srv := httptest.NewServer(Handler(reg, func() {
		refreshed = true
		m.SetWorldGrids(7)
	}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !refreshed {
		t.Error("refresh callback not invoked")
	}
	if !strings.Contains(string(body), "gridadmin_world_grids 7") {
		t.Errorf("expected world grid gauge in output, got:\n%s", body)
	}
}
