// Package metrics exposes Prometheus instrumentation for admin operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crystal-mush/gridadmin/pkg/attach"
)

// Metrics holds Prometheus metric descriptors for gridadmin.
type Metrics struct {
	discoveries         *prometheus.CounterVec
	setSize             *prometheus.HistogramVec
	blocksExamined      prometheus.Counter
	reverseGridsScanned prometheus.Counter
	gridsHalted         prometheus.Counter
	pilotsEjected       prometheus.Counter
	blockSyncs          *prometheus.CounterVec
	worldGrids          prometheus.Gauge
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridadmin_discoveries_total",
			Help: "Attachment discoveries run, by traversal mode.",
		}, []string{"mode"}),
		setSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gridadmin_attachment_set_size",
			Help:    "Number of grids in each discovered attachment set.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
		}, []string{"mode"}),
		blocksExamined: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridadmin_blocks_examined_total",
			Help: "Blocks classified during attachment discovery.",
		}),
		reverseGridsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridadmin_reverse_scan_grids_total",
			Help: "Grids read by the landing-gear reverse scan.",
		}),
		gridsHalted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridadmin_grids_halted_total",
			Help: "Dynamic grids whose velocity was cleared.",
		}),
		pilotsEjected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gridadmin_pilots_ejected_total",
			Help: "Pilots removed from cockpits and remote controls.",
		}),
		blockSyncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gridadmin_block_syncs_total",
			Help: "Block state changes applied, by sync type.",
		}, []string{"type"}),
		worldGrids: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gridadmin_world_grids",
			Help: "Grids currently loaded in the world.",
		}),
	}

	reg.MustRegister(
		m.discoveries,
		m.setSize,
		m.blocksExamined,
		m.reverseGridsScanned,
		m.gridsHalted,
		m.pilotsEjected,
		m.blockSyncs,
		m.worldGrids,
	)
	return m
}

// ObserveDiscovery records one traversal.
func (m *Metrics) ObserveDiscovery(mode attach.Mode, size int, st attach.Stats) {
	if m == nil {
		return
	}
	m.discoveries.WithLabelValues(mode.String()).Inc()
	m.setSize.WithLabelValues(mode.String()).Observe(float64(size))
	m.blocksExamined.Add(float64(st.BlocksExamined))
	m.reverseGridsScanned.Add(float64(st.ReverseGridsScanned))
}

// GridsHalted adds n halted grids.
func (m *Metrics) GridsHalted(n int) {
	if m == nil {
		return
	}
	m.gridsHalted.Add(float64(n))
}

// PilotsEjected adds n ejected pilots.
func (m *Metrics) PilotsEjected(n int) {
	if m == nil {
		return
	}
	m.pilotsEjected.Add(float64(n))
}

// BlockSynced counts one applied block state change.
func (m *Metrics) BlockSynced(syncType string) {
	if m == nil {
		return
	}
	m.blockSyncs.WithLabelValues(syncType).Inc()
}

// SetWorldGrids sets the loaded grid gauge.
func (m *Metrics) SetWorldGrids(n int) {
	if m == nil {
		return
	}
	m.worldGrids.Set(float64(n))
}

// Handler serves the metrics gathered by g, calling refresh first when set.
func Handler(g prometheus.Gatherer, refresh func()) http.Handler {
	h := promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refresh != nil {
			refresh()
		}
		h.ServeHTTP(w, r)
	})
}
