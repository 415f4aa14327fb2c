package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Session
	MessagesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_messages_received_total",
		Help: "Inbound frames by message kind",
	}, []string{"kind"})
	FramesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_frames_dropped_total",
		Help: "Malformed inbound frames dropped",
	})
	Reconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "session_reconnects_total",
		Help: "Reconnection attempts scheduled",
	})
	ConnectionState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "session_connected",
		Help: "1 while the session is connected",
	})

	// Reconstruction
	SnapshotsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconstruct_snapshots_emitted_total",
		Help: "Book snapshots emitted by reconstruction runs",
	})
	SequenceGaps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconstruct_sequence_gaps_total",
		Help: "Sequence gaps observed in delta batches",
	})

	// Archive
	ArchiveInserts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_inserts_total",
		Help: "Rows inserted by the archive writer, by table",
	}, []string{"table"})
	ArchiveErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_errors_total",
		Help: "Archive batch insert failures, by table",
	}, []string{"table"})
	ArchiveFlushSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_flush_seconds",
		Help:    "Archive flush duration",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	ArchiveQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "archive_queue_depth",
		Help: "Records waiting in the archive queue",
	})
)

// NewRegistry builds a registry with all depthstream collectors plus the
// standard go/process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		MessagesReceived, FramesDropped, Reconnects, ConnectionState,
		SnapshotsEmitted, SequenceGaps,
		ArchiveInserts, ArchiveErrors, ArchiveFlushSeconds, ArchiveQueueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
