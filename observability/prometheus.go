package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/knncache"
)

const namespace = "knncache"

var _ knncache.MetricsCollector = (*PrometheusCollector)(nil)

// PrometheusCollector implements knncache.MetricsCollector.
type PrometheusCollector struct {
	opLatency    *prometheus.HistogramVec
	queries      *prometheus.CounterVec
	written      prometheus.Counter
	mergeRead    prometheus.Counter
	mergeAdded   prometheus.Counter
	pieceRecords *prometheus.GaugeVec
	pieces       prometheus.Counter
}

// NewPrometheusCollector creates the collector and registers its metrics
// on reg.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	pc := &PrometheusCollector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_latency_seconds",
			Help:      "Latency of cache operations",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
		}, []string{"op", "status"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Neighbor-list lookups by source",
		}, []string{"source"}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Records written to cache files",
		}),
		mergeRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_records_read_total",
			Help:      "Records read from merged cache files",
		}),
		mergeAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_records_added_total",
			Help:      "Records inserted by merges",
		}),
		pieceRecords: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "piece_records",
			Help:      "Records written by the last build of each piece",
		}, []string{"piece"}),
		pieces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pieces_built_total",
			Help:      "Pieces built",
		}),
	}

	for _, c := range []prometheus.Collector{
		pc.opLatency, pc.queries, pc.written, pc.mergeRead, pc.mergeAdded, pc.pieceRecords, pc.pieces,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordQuery implements knncache.MetricsCollector.
func (pc *PrometheusCollector) RecordQuery(cached bool, d time.Duration, err error) {
	pc.opLatency.WithLabelValues("query", status(err)).Observe(d.Seconds())
	if err != nil {
		return
	}
	source := "computed"
	if cached {
		source = "cached"
	}
	pc.queries.WithLabelValues(source).Inc()
}

// RecordWrite implements knncache.MetricsCollector.
func (pc *PrometheusCollector) RecordWrite(records int, d time.Duration, err error) {
	pc.opLatency.WithLabelValues("write", status(err)).Observe(d.Seconds())
	if err == nil {
		pc.written.Add(float64(records))
	}
}

// RecordMerge implements knncache.MetricsCollector.
func (pc *PrometheusCollector) RecordMerge(read, added int, d time.Duration, err error) {
	pc.opLatency.WithLabelValues("merge", status(err)).Observe(d.Seconds())
	if err == nil {
		pc.mergeRead.Add(float64(read))
		pc.mergeAdded.Add(float64(added))
	}
}

// RecordPiece implements knncache.MetricsCollector.
func (pc *PrometheusCollector) RecordPiece(piece, records int, d time.Duration) {
	pc.opLatency.WithLabelValues("piece", "success").Observe(d.Seconds())
	pc.pieceRecords.WithLabelValues(strconv.Itoa(piece)).Set(float64(records))
	pc.pieces.Inc()
}
