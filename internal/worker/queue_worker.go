package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// QueueWorker drains one Redis list into PostgreSQL in batches. A failed bulk
// write falls back to row-by-row writes; rows that still fail go back to the
// tail of the queue.
type QueueWorker[T any] struct {
	rdb    *redis.Client
	queue  string
	bulk   func(context.Context, []T) error
	single func(context.Context, T) error
	log    zerolog.Logger

	batchSize    int
	batchTimeout time.Duration
	pollTimeout  time.Duration
	backoff      time.Duration // pause after a requeue or a Redis error
}

func newQueueWorker[T any](rdb *redis.Client, queue, component string, bulk func(context.Context, []T) error, single func(context.Context, T) error, log zerolog.Logger) *QueueWorker[T] {
	return &QueueWorker[T]{
		rdb:          rdb,
		queue:        queue,
		bulk:         bulk,
		single:       single,
		log:          log.With().Str("component", component).Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		pollTimeout:  PollTimeout,
		backoff:      2 * time.Second,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds. It always
// returns nil so it can sit in an errgroup next to the HTTP server.
func (w *QueueWorker[T]) Start(ctx context.Context) error {
	w.log.Info().Str("queue", w.queue).Msg("Worker started")

	buffer := make([]T, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return nil
		default:
		}

		result, err := w.rdb.BLPop(ctx, w.pollTimeout, w.queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Dur("backoff", w.backoff).Msg("Redis error, backing off")
			w.sleep(ctx, w.backoff)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var item T
		if err := json.Unmarshal([]byte(result[1]), &item); err != nil {
			// A malformed payload can never succeed; drop it.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		buffer = append(buffer, item)
	}
}

// flushSafe attempts the bulk write, then the row-by-row fallback, then requeue.
func (w *QueueWorker[T]) flushSafe(ctx context.Context, batch []T) {
	if len(batch) == 0 {
		return
	}
	if err := w.bulk(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk write failed, attempting row-by-row recovery")
		w.fallback(ctx, batch)
		return
	}
	w.log.Debug().Int("count", len(batch)).Msg("Batch persisted")
}

func (w *QueueWorker[T]) fallback(ctx context.Context, batch []T) {
	var failed []T
	for _, item := range batch {
		if err := w.single(ctx, item); err != nil {
			w.log.Error().Err(err).Msg("Write failed, requeueing")
			failed = append(failed, item)
		}
	}
	if len(failed) > 0 {
		w.requeue(ctx, failed)
	}
}

func (w *QueueWorker[T]) requeue(ctx context.Context, items []T) {
	pipe := w.rdb.Pipeline()
	for _, item := range items {
		data, _ := json.Marshal(item)
		pipe.RPush(ctx, w.queue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the database is down.
	w.sleep(ctx, w.backoff)
}

func (w *QueueWorker[T]) shutdown(buffer []T) {
	w.log.Info().Int("buffered", len(buffer)).Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flushSafe(shutdownCtx, buffer)
}

func (w *QueueWorker[T]) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
