package queue

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/natours/tours-api/internal/api/metrics"
	"github.com/natours/tours-api/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 256
	jobTimeout     = 15 * time.Second
)

// ErrStopped is returned when a job is submitted after Stop.
var ErrStopped = errors.New("dispatcher stopped")

// Dispatcher moves rating recalculations off the request path. Jobs are
// routed to a fixed set of workers by hashing the tour id, so all
// recalculations of one tour run one after another in submission order.
type Dispatcher struct {
	workers []chan string
	target  ports.RatingRecalculator
	log     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, target ports.RatingRecalculator, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan string, numWorkers),
		target:  target,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan string, channelBuffer)
	}
	return d
}

// Start launches the workers. Jobs run under ctx; cancelling it fails
// pending jobs fast, Stop still drains the queues.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(ctx, i, ch)
	}
}

// Recalculate implements ports.RatingRecalculator by queueing the job. It
// blocks only while the tour's worker queue is full.
func (d *Dispatcher) Recalculate(_ context.Context, tourID string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrStopped
	}
	idx := d.shardIndex(tourID)
	d.workers[idx] <- tourID
	metrics.RatingsQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(d.workers[idx])))
	return nil
}

// Stop rejects new jobs, waits for queued ones to finish and returns.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.workers {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// shardIndex maps a tour id deterministically to a worker index.
func (d *Dispatcher) shardIndex(tourID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tourID))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan string) {
	defer d.wg.Done()
	label := strconv.Itoa(id)
	for tourID := range ch {
		metrics.RatingsQueueDepth.WithLabelValues(label).Set(float64(len(ch)))

		start := time.Now()
		jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
		err := d.target.Recalculate(jobCtx, tourID)
		cancel()

		result := "ok"
		if err != nil {
			result = "error"
			d.log.Error().Err(err).
				Str("tour_id", tourID).
				Int("worker_id", id).
				Msg("rating recalculation failed")
		}
		metrics.RatingRecalculationsTotal.WithLabelValues(result).Inc()
		metrics.RatingRecalculationDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	}
}
