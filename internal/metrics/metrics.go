package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yixuanG/eurex-mms-liq-data-demo/internal/version"
)

const namespace = "liq"

// Recorder holds the run counters. Each Recorder owns its registry, so
// several may coexist in one process.
type Recorder struct {
	registry *prometheus.Registry

	LinesScanned     prometheus.Counter
	EntriesDecoded   prometheus.Counter
	MalformedEntries prometheus.Counter
	FieldErrors      prometheus.Counter
	EventsApplied    prometheus.Counter
	EventsUnchanged  prometheus.Counter
	EventsIgnored    *prometheus.CounterVec
	SnapshotsEmitted prometheus.Counter
	ChunksWritten    prometheus.Counter
	MergeBatches     prometheus.Counter
	MetricRecords    prometheus.Counter
	QueueDepth       *prometheus.GaugeVec
}

// New creates a Recorder registered on a fresh registry, including Go
// runtime and build info collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	r := &Recorder{
		registry:         reg,
		LinesScanned:     counter("lines_scanned_total", "Input lines read."),
		EntriesDecoded:   counter("entries_decoded_total", "Entries tokenized and decoded."),
		MalformedEntries: counter("malformed_entries_total", "Unterminated entries discarded by the tokenizer."),
		FieldErrors:      counter("field_errors_total", "Present tokens that failed numeric conversion."),
		EventsApplied:    counter("events_applied_total", "Events that changed a ladder."),
		EventsUnchanged:  counter("events_unchanged_total", "Accepted events that left a ladder unchanged."),
		EventsIgnored: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ignored_total",
			Help:      "Events rejected before reaching a ladder, by reason.",
		}, []string{"reason"}),
		SnapshotsEmitted: counter("snapshots_emitted_total", "Snapshots produced by ladder changes."),
		ChunksWritten:    counter("chunks_written_total", "Leaf chunks flushed by spoolers."),
		MergeBatches:     counter("merge_batches_total", "Chunk merge batches completed."),
		MetricRecords:    counter("metric_records_total", "Per-second liquidity records emitted."),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events waiting in each partition queue.",
		}, []string{"partition"}),
	}

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build version and commit.",
	}, []string{"version", "commit"})
	buildInfo.WithLabelValues(version.Version, version.Commit).Set(1)

	reg.MustRegister(
		r.LinesScanned,
		r.EntriesDecoded,
		r.MalformedEntries,
		r.FieldErrors,
		r.EventsApplied,
		r.EventsUnchanged,
		r.EventsIgnored,
		r.SnapshotsEmitted,
		r.ChunksWritten,
		r.MergeBatches,
		r.MetricRecords,
		r.QueueDepth,
		buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Ignored counts one rejected event.
func (r *Recorder) Ignored(reason string) {
	r.EventsIgnored.WithLabelValues(reason).Inc()
}

// SetQueueDepth records the backlog of one partition.
func (r *Recorder) SetQueueDepth(partition, depth int) {
	r.QueueDepth.WithLabelValues(strconv.Itoa(partition)).Set(float64(depth))
}
