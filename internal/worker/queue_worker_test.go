package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type fakeResultStore struct {
	mu       sync.Mutex
	bulkErr  error
	failFor  map[int]bool
	bulk     [][]model.TestResult
	inserted []model.TestResult
}

func (f *fakeResultStore) CopyResults(_ context.Context, batch []model.TestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return f.bulkErr
	}
	f.bulk = append(f.bulk, append([]model.TestResult(nil), batch...))
	return nil
}

func (f *fakeResultStore) InsertResult(_ context.Context, r model.TestResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[r.StudentID] {
		return errors.New("insert failed")
	}
	f.inserted = append(f.inserted, r)
	return nil
}

func (f *fakeResultStore) persisted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.inserted)
	for _, b := range f.bulk {
		n += len(b)
	}
	return n
}

func newTestWorker(t *testing.T, store *fakeResultStore) (*QueueWorker[model.TestResult], *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	w := NewResultWorker(rdb, store, zerolog.Nop())
	w.batchTimeout = 10 * time.Millisecond
	w.backoff = time.Millisecond
	return w, rdb
}

func pushResult(t *testing.T, rdb *redis.Client, r model.TestResult) {
	t.Helper()
	raw, err := json.Marshal(r)
	require.NoError(t, err)
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistResultsQueue, raw).Err())
}

func TestQueueWorkerBulkPath(t *testing.T) {
	store := &fakeResultStore{}
	w, _ := newTestWorker(t, store)

	w.flushSafe(context.Background(), []model.TestResult{{StudentID: 1}, {StudentID: 2}})

	require.Len(t, store.bulk, 1)
	assert.Len(t, store.bulk[0], 2)
	assert.Empty(t, store.inserted)
}

func TestQueueWorkerFallbackAndRequeue(t *testing.T) {
	store := &fakeResultStore{bulkErr: errors.New("copy failed"), failFor: map[int]bool{2: true}}
	w, rdb := newTestWorker(t, store)
	ctx := context.Background()

	w.flushSafe(ctx, []model.TestResult{{StudentID: 1}, {StudentID: 2}, {StudentID: 3}})

	require.Len(t, store.inserted, 2)
	assert.Equal(t, 1, store.inserted[0].StudentID)
	assert.Equal(t, 3, store.inserted[1].StudentID)

	queued, err := rdb.LRange(ctx, config.WorkerKey.PersistResultsQueue, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, queued, 1)
	var back model.TestResult
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &back))
	assert.Equal(t, 2, back.StudentID)
}

func TestQueueWorkerDrainsQueue(t *testing.T) {
	store := &fakeResultStore{}
	w, rdb := newTestWorker(t, store)

	for i := 1; i <= 3; i++ {
		pushResult(t, rdb, model.TestResult{StudentID: i, Score: i, SubmissionType: model.TriggerManual})
	}
	require.NoError(t, rdb.RPush(context.Background(), config.WorkerKey.PersistResultsQueue, "{broken").Err())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool { return store.persisted() == 3 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	n, err := rdb.LLen(context.Background(), config.WorkerKey.PersistResultsQueue).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "malformed payload is discarded, not requeued")
}

func TestQueueWorkerFlushesOnShutdown(t *testing.T) {
	store := &fakeResultStore{}
	w, rdb := newTestWorker(t, store)
	w.batchTimeout = time.Hour
	w.batchSize = 100

	pushResult(t, rdb, model.TestResult{StudentID: 9})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	require.Eventually(t, func() bool {
		n, err := rdb.LLen(context.Background(), config.WorkerKey.PersistResultsQueue).Result()
		return err == nil && n == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, store.persisted(), "batch is held until timeout or shutdown")

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, store.persisted())
}
