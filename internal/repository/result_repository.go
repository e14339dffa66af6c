package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ResultRepository handles graded submission rows.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

var resultColumns = []string{
	"student_id", "username", "class_level", "stream", "assigned_set",
	"score", "total_questions", "tab_switches", "submission_type", "attempt_id", "submitted_at",
}

func resultRow(r model.TestResult) []interface{} {
	var attemptID *string
	if r.AttemptID != "" {
		attemptID = &r.AttemptID
	}
	return []interface{}{
		r.StudentID, r.Username, r.ClassLevel, r.Stream, r.AssignedSet,
		r.Score, r.TotalQuestions, r.TabSwitches, string(r.SubmissionType), attemptID, r.SubmittedAt,
	}
}

// CopyResults bulk-inserts a batch with COPY.
func (r *ResultRepository) CopyResults(ctx context.Context, batch []model.TestResult) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, res := range batch {
		rows = append(rows, resultRow(res))
	}
	_, err := r.pool.CopyFrom(ctx, pgx.Identifier{"test_results"}, resultColumns, pgx.CopyFromRows(rows))
	return err
}

// InsertResult inserts one result, ignoring a duplicate for the same student.
func (r *ResultRepository) InsertResult(ctx context.Context, res model.TestResult) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO test_results
		 (student_id, username, class_level, stream, assigned_set,
		  score, total_questions, tab_switches, submission_type, attempt_id, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (student_id) DO NOTHING`,
		resultRow(res)...,
	)
	return err
}

// ViolationRepository handles the tab-switch audit trail.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// CopyViolations bulk-inserts a batch with COPY.
func (r *ViolationRepository) CopyViolations(ctx context.Context, batch []model.Violation) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []interface{}{v.StudentID, v.Count, v.RecordedAt})
	}
	_, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"tab_violations"},
		[]string{"student_id", "count", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// InsertViolation inserts one audit row.
func (r *ViolationRepository) InsertViolation(ctx context.Context, v model.Violation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tab_violations (student_id, count, recorded_at) VALUES ($1, $2, $3)`,
		v.StudentID, v.Count, v.RecordedAt,
	)
	return err
}

// AnswerRepository keeps the latest autosaved answers per student.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

const upsertAnswers = `INSERT INTO student_answers (student_id, answers, saved_at)
	VALUES ($1, $2::jsonb, $3)
	ON CONFLICT (student_id) DO UPDATE
	SET answers = EXCLUDED.answers, saved_at = EXCLUDED.saved_at
	WHERE student_answers.saved_at <= EXCLUDED.saved_at`

// UpsertAnswersBatch writes a batch in one round trip. Older snapshots never
// overwrite newer ones.
func (r *AnswerRepository) UpsertAnswersBatch(ctx context.Context, batch []model.AnswerSnapshot) error {
	b := &pgx.Batch{}
	for _, s := range batch {
		raw, err := json.Marshal(s.Answers)
		if err != nil {
			return fmt.Errorf("marshal answers: %w", err)
		}
		b.Queue(upsertAnswers, s.StudentID, string(raw), s.SavedAt)
	}
	return r.pool.SendBatch(ctx, b).Close()
}

// UpsertAnswers writes one snapshot.
func (r *AnswerRepository) UpsertAnswers(ctx context.Context, s model.AnswerSnapshot) error {
	raw, err := json.Marshal(s.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = r.pool.Exec(ctx, upsertAnswers, s.StudentID, string(raw), s.SavedAt)
	return err
}
