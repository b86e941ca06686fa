package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backup holds the counters and histograms emitted by the backup pipeline.
// A nil *Backup is safe to call methods on; every method becomes a no-op,
// matching the zero-overhead contract used throughout this package.
type Backup struct {
	blocksWritten   prometheus.Counter
	blocksDeduped   prometheus.Counter
	bytesRead       prometheus.Counter
	entriesFailed   *prometheus.CounterVec
	entryDuration   prometheus.Histogram
	hunksFinalized  prometheus.Counter
}

// NewBackupMetrics returns Backup metrics registered against the shared
// registry, or nil if metrics are not enabled.
func NewBackupMetrics() *Backup {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &Backup{
		blocksWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "conserve_blocks_written_total",
			Help: "Number of new blocks written to the blockdir.",
		}),
		blocksDeduped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "conserve_blocks_deduped_total",
			Help: "Number of block stores short-circuited because the content already existed.",
		}),
		bytesRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "conserve_source_bytes_read_total",
			Help: "Bytes read from the source tree during backup.",
		}),
		entriesFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "conserve_entries_failed_total",
			Help: "Per-entry failures during backup, labeled by error kind.",
		}, []string{"kind"}),
		entryDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "conserve_entry_duration_seconds",
			Help:    "Time to process a single source entry during backup.",
			Buckets: prometheus.DefBuckets,
		}),
		hunksFinalized: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "conserve_hunks_finalized_total",
			Help: "Index hunks finalized and made visible in the current band.",
		}),
	}
}

func (b *Backup) BlockWritten() {
	if b != nil {
		b.blocksWritten.Inc()
	}
}

func (b *Backup) BlockDeduped() {
	if b != nil {
		b.blocksDeduped.Inc()
	}
}

func (b *Backup) BytesRead(n int64) {
	if b != nil {
		b.bytesRead.Add(float64(n))
	}
}

func (b *Backup) EntryFailed(kind string) {
	if b != nil {
		b.entriesFailed.WithLabelValues(kind).Inc()
	}
}

func (b *Backup) ObserveEntry(d time.Duration) {
	if b != nil {
		b.entryDuration.Observe(d.Seconds())
	}
}

func (b *Backup) HunkFinalized() {
	if b != nil {
		b.hunksFinalized.Inc()
	}
}

// GC holds counters emitted by a garbage-collection run.
type GC struct {
	blocksDeleted  prometheus.Counter
	bandsDeleted   prometheus.Counter
	bytesReclaimed prometheus.Counter
	runsRefused    *prometheus.CounterVec
}

func NewGCMetrics() *GC {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &GC{
		blocksDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "conserve_gc_blocks_deleted_total",
			Help: "Unreferenced blocks removed by garbage collection.",
		}),
		bandsDeleted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "conserve_gc_bands_deleted_total",
			Help: "Bands removed by garbage collection.",
		}),
		bytesReclaimed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "conserve_gc_bytes_reclaimed_total",
			Help: "Estimated uncompressed bytes reclaimed by garbage collection.",
		}),
		runsRefused: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "conserve_gc_runs_refused_total",
			Help: "GC runs refused, labeled by reason (lock_held, incomplete_band).",
		}, []string{"reason"}),
	}
}

func (g *GC) BlockDeleted(size int64) {
	if g != nil {
		g.blocksDeleted.Inc()
		g.bytesReclaimed.Add(float64(size))
	}
}

func (g *GC) BandDeleted() {
	if g != nil {
		g.bandsDeleted.Inc()
	}
}

func (g *GC) Refused(reason string) {
	if g != nil {
		g.runsRefused.WithLabelValues(reason).Inc()
	}
}

// Validate holds counters emitted by archive validation.
type Validate struct {
	errorsFound *prometheus.CounterVec
	blocksDeep  prometheus.Counter
}

func NewValidateMetrics() *Validate {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &Validate{
		errorsFound: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "conserve_validate_errors_total",
			Help: "Validation errors found, labeled by error kind.",
		}, []string{"kind"}),
		blocksDeep: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "conserve_validate_blocks_deep_checked_total",
			Help: "Blocks rehashed and decompressed during deep validation.",
		}),
	}
}

func (v *Validate) ErrorFound(kind string) {
	if v != nil {
		v.errorsFound.WithLabelValues(kind).Inc()
	}
}

func (v *Validate) DeepBlockChecked() {
	if v != nil {
		v.blocksDeep.Inc()
	}
}
