// Package metrics holds the prometheus collectors of the room agent.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics.
var (
	JoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceroom_joins_total",
			Help: "Join attempts by result",
		},
		[]string{"result"},
	)
	DeviceOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceroom_device_operations_total",
			Help: "Device toggles and switches by device and result",
		},
		[]string{"device", "result"},
	)
	ReconcileCorrections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceroom_reconcile_corrections_total",
			Help: "Device flags corrected by the reconciliation tick",
		},
		[]string{"device"},
	)
	ParticipantsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voiceroom_participants_active",
			Help: "Remote participants in the current session",
		},
	)
	SurfacesActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voiceroom_surfaces_active",
			Help: "Attached rendering surfaces by track source",
		},
		[]string{"source"},
	)
	SurfacePackets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceroom_surface_packets_total",
			Help: "RTP packets rendered by remote surfaces by track source",
		},
		[]string{"source"},
	)
	NoticesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voiceroom_notices_total",
			Help: "User notices by severity",
		},
		[]string{"severity"},
	)
)

// Result labels a finished operation.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
