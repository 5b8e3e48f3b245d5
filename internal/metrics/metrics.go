// Package metrics holds the relay's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay connection metrics
	RelayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blackboard_relay_connections",
			Help: "Current number of open participant websocket connections",
		},
	)

	RelayRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blackboard_relay_rooms",
			Help: "Current number of rooms with at least one local participant",
		},
	)

	RelayFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackboard_relay_frames_total",
			Help: "Total number of frames accepted from participants, by message kind",
		},
		[]string{"kind"},
	)

	RelayFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackboard_relay_frames_dropped_total",
			Help: "Total number of frames dropped by the relay",
		},
		[]string{"reason"}, // "invalid", "oversized", "rate_limited", "slow_consumer", "publish_failed"
	)

	RelayFrameBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blackboard_relay_frame_bytes",
			Help:    "Size of frames accepted from participants",
			Buckets: prometheus.ExponentialBuckets(64, 4, 9), // 64B .. 4MB
		},
	)

	// Room store metrics
	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blackboard_store_operation_duration_seconds",
			Help:    "Duration of room store operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	StoreOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blackboard_store_operation_errors_total",
			Help: "Total number of failed room store operations",
		},
		[]string{"op"},
	)
)

// Drop reasons.
const (
	DropInvalid       = "invalid"
	DropOversized     = "oversized"
	DropRateLimited   = "rate_limited"
	DropSlowConsumer  = "slow_consumer"
	DropPublishFailed = "publish_failed"
)

// RecordFrame counts an accepted frame.
func RecordFrame(kind string, size int) {
	RelayFrames.WithLabelValues(kind).Inc()
	RelayFrameBytes.Observe(float64(size))
}

// RecordDrop counts a dropped frame.
func RecordDrop(reason string) {
	RelayFramesDropped.WithLabelValues(reason).Inc()
}

// RecordStoreOp observes a room store operation.
func RecordStoreOp(op string, duration time.Duration, err error) {
	StoreOperationDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		StoreOperationErrors.WithLabelValues(op).Inc()
	}
}
