// Package writer implements CacheBolt's asynchronous cache-writer
// pipeline: the proxy handler enqueues persist jobs without blocking on
// object-store I/O, and a single background consumer drains the queue,
// honoring the storage circuit breaker and dropping jobs when the queue
// is full.
//
// The channel-fed, single-consumer shape is grounded in the teacher's
// pkg/pagination worker pool (pagination.BatchFetcher), simplified from
// many-producer/many-consumer fan-out down to many-producer/one-consumer
// since object-store writes for a single app share one backend and
// don't benefit from concurrent workers the way paginated fetches do.
package writer

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/cachebolt/cachebolt/pkg/circuit"
	"github.com/cachebolt/cachebolt/pkg/objectstore"
)

var (
	persistAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_persist_attempts_total",
		Help: "Total object-store write attempts made by the cache writer.",
	}, []string{"backend"})

	persistErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cachebolt_persist_errors_total",
		Help: "Total object-store write failures.",
	}, []string{"backend"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cachebolt_writer_queue_depth",
		Help: "Current number of pending jobs in the cache writer's queue.",
	})
)

// Job is a single persist request: encode the response bytes (already
// framed by pkg/cacheentry) and write them under key.
type Job struct {
	Key  string
	Body []byte
}

// Writer is the async, non-blocking cache-writer pipeline described in
// spec §4.6. Enqueue never blocks the calling request: once the queue is
// full, new jobs are dropped rather than applying backpressure to the
// proxy hot path.
type Writer struct {
	backend     objectstore.Backend
	backendName string
	storage     *circuit.StorageCircuit
	logger      zerolog.Logger

	jobs chan Job

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Writer bounded at queueCapacity pending jobs.
// backendName labels the persist_attempts_total/persist_errors_total
// metrics (e.g. "s3", "gcs", "azure", "local").
func New(backend objectstore.Backend, backendName string, storage *circuit.StorageCircuit, queueCapacity int, logger zerolog.Logger) *Writer {
	return &Writer{
		backend:     backend,
		backendName: backendName,
		storage:     storage,
		logger:      logger,
		jobs:        make(chan Job, queueCapacity),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the single background consumer. It returns immediately;
// call Stop (or cancel ctx) to shut it down.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the consumer to exit and waits for it to drain its
// current job, if any. Queued-but-unstarted jobs are discarded.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

// Enqueue submits a persist job without blocking. If the queue is full,
// the job is dropped and counted against persist_errors_total{backend},
// per spec §4.6. The storage circuit is re-checked at dequeue time in
// persist, not here, so a job queued while the circuit is closed but
// dequeued after it opens is still correctly skipped rather than sent to
// a backend already known to be down.
func (w *Writer) Enqueue(job Job) {
	select {
	case w.jobs <- job:
		queueDepth.Set(float64(len(w.jobs)))
	default:
		persistErrorsTotal.WithLabelValues(w.backendName).Inc()
		w.logger.Warn().Str("key", job.Key).Msg("cache writer queue full, dropping persist job")
	}
}

func (w *Writer) run(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case job := <-w.jobs:
			queueDepth.Set(float64(len(w.jobs)))
			w.persist(ctx, job)
		}
	}
}

// persist dequeues one job: if the storage circuit is open, the write is
// skipped and counted as an error (spec §4.6) without contacting the
// backend (spec §4.5); otherwise it serializes and puts as normal.
func (w *Writer) persist(ctx context.Context, job Job) {
	persistAttemptsTotal.WithLabelValues(w.backendName).Inc()

	if w.storage.IsOpen() {
		persistErrorsTotal.WithLabelValues(w.backendName).Inc()
		w.logger.Warn().Str("key", job.Key).Msg("storage circuit open, skipping persist")
		return
	}

	err := w.backend.Put(ctx, job.Key, job.Body)
	if err != nil {
		persistErrorsTotal.WithLabelValues(w.backendName).Inc()
		w.storage.RecordError(w.backend.IsAvailabilityError(err))
		w.logger.Warn().Err(err).Str("key", job.Key).Msg("failed to persist cache entry to object store")
		return
	}
	w.storage.RecordSuccess()
}
