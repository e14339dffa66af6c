package worker

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ResultStore persists graded submissions.
type ResultStore interface {
	CopyResults(ctx context.Context, batch []model.TestResult) error
	InsertResult(ctx context.Context, r model.TestResult) error
}

// ViolationStore persists the tab-switch audit trail.
type ViolationStore interface {
	CopyViolations(ctx context.Context, batch []model.Violation) error
	InsertViolation(ctx context.Context, v model.Violation) error
}

// AnswerStore persists autosaved answer maps.
type AnswerStore interface {
	UpsertAnswersBatch(ctx context.Context, batch []model.AnswerSnapshot) error
	UpsertAnswers(ctx context.Context, s model.AnswerSnapshot) error
}

// NewResultWorker drains persist_results_queue.
func NewResultWorker(rdb *redis.Client, store ResultStore, log zerolog.Logger) *QueueWorker[model.TestResult] {
	return newQueueWorker(rdb, config.WorkerKey.PersistResultsQueue, "result_worker", store.CopyResults, store.InsertResult, log)
}

// NewViolationWorker drains persist_violations_queue.
func NewViolationWorker(rdb *redis.Client, store ViolationStore, log zerolog.Logger) *QueueWorker[model.Violation] {
	return newQueueWorker(rdb, config.WorkerKey.PersistViolationsQueue, "violation_worker", store.CopyViolations, store.InsertViolation, log)
}

// NewAutosaveWorker drains persist_answers_queue.
func NewAutosaveWorker(rdb *redis.Client, store AnswerStore, log zerolog.Logger) *QueueWorker[model.AnswerSnapshot] {
	return newQueueWorker(rdb, config.WorkerKey.PersistAnswersQueue, "autosave_worker", store.UpsertAnswersBatch, store.UpsertAnswers, log)
}
