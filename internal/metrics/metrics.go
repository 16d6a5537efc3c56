// Package metrics holds the prometheus collectors of the sync layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Writes counts coordinator writes by collection and outcome (confirmed, pending)
	Writes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lovesync_writes_total",
			Help: "Coordinator writes by collection and resulting sync state.",
		},
		[]string{"collection", "state"},
	)

	// Snapshots counts remote snapshots applied to the local view
	Snapshots = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lovesync_snapshots_total",
			Help: "Remote snapshots applied by collection.",
		},
		[]string{"collection"},
	)

	// Migrations counts records handled by the migration runner by outcome
	Migrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lovesync_migration_records_total",
			Help: "Pending records resubmitted by the migration runner.",
		},
		[]string{"outcome"},
	)

	// IdentityCollisions counts derived ids that matched an existing record with different content
	IdentityCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lovesync_identity_collisions_total",
			Help: "Derived ids colliding with an unrelated existing record.",
		},
	)

	// RemoteAvailable is 1 while the remote store is reachable
	RemoteAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lovesync_remote_available",
			Help: "Whether the remote store is currently available.",
		},
	)

	// WebSocketClients is the number of connected websocket clients
	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lovesync_websocket_clients",
			Help: "Connected websocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(Writes)
	prometheus.MustRegister(Snapshots)
	prometheus.MustRegister(Migrations)
	prometheus.MustRegister(IdentityCollisions)
	prometheus.MustRegister(RemoteAvailable)
	prometheus.MustRegister(WebSocketClients)
}

// SetRemoteAvailable records the remote availability flag
func SetRemoteAvailable(available bool) {
	if available {
		RemoteAvailable.Set(1)
		return
	}
	RemoteAvailable.Set(0)
}
