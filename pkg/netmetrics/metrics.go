// Package netmetrics defines the Prometheus collectors a netsync host
// exposes: packet drops, bandwidth usage, rollback depth, and
// determinism checksum mismatches.
package netmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsDropped counts datagrams discarded before channel dispatch,
	// labeled by reason (malformed_packet, unknown_channel,
	// bandwidth_exhausted).
	PacketsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsync_packets_dropped_total",
			Help: "Datagrams dropped before reaching a channel receiver, by reason.",
		}, []string{"reason"})

	// BytesSent tracks outbound packet bytes under a "channel" label;
	// pkg/session records every packet under the single value "total".
	BytesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsync_bytes_sent_total",
			Help: "Payload bytes sent per channel.",
		}, []string{"channel"})

	// BytesReceived tracks inbound packet bytes under a "channel" label;
	// pkg/session records every packet under the single value "total".
	BytesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsync_bytes_received_total",
			Help: "Payload bytes received per channel.",
		}, []string{"channel"})

	// BandwidthBypassed counts sends that exceeded the priority manager's
	// bypass threshold and skipped the token bucket entirely.
	BandwidthBypassed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsync_bandwidth_bypass_total",
			Help: "Sends that bypassed the bandwidth token bucket via the high-priority threshold.",
		},
	)

	// RollbackDepth records the tick distance of each triggered rollback.
	RollbackDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netsync_rollback_depth_ticks",
			Help:    "Number of ticks resimulated per rollback.",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10, 15, 20, 32},
		},
	)

	// RollbackCount counts triggered rollbacks, labeled by clamp status.
	RollbackCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netsync_rollback_total",
			Help: "Rollbacks triggered, labeled by whether depth was clamped to the configured maximum.",
		}, []string{"clamped"})

	// ChecksumMismatches counts determinism checksum disagreements between
	// client and server for a completed tick.
	ChecksumMismatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "netsync_checksum_mismatch_total",
			Help: "Ticks where the client and server determinism checksums disagreed.",
		},
	)

	// RTT tracks the EWMA round-trip estimate per peer.
	RTT = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "netsync_rtt_seconds",
			Help: "Smoothed round-trip time per peer.",
			Buckets: []float64{
				0.005, 0.01, 0.02, 0.03, 0.05, 0.075, 0.1, 0.15, 0.2, 0.3, 0.5, 1,
			},
		}, []string{"peer"})

	// ConnectedPeers reports the current number of active connections.
	ConnectedPeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "netsync_connected_peers",
			Help: "Number of currently connected peers.",
		},
	)
)
