package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Exam session errors.
var (
	ErrAlreadySubmitted = errors.New("test already submitted")
	ErrNotSubmitted     = errors.New("test not submitted")
)

// ExamSessionService runs the server side of a student's sitting: grading the
// one submission, counting tab switches and keeping autosaved answers. Redis is
// the source of truth while the exam runs; workers copy everything to
// PostgreSQL from the persist queues.
type ExamSessionService struct {
	rdb       *redis.Client
	questions *QuestionService
	log       zerolog.Logger
	now       func() time.Time
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(rdb *redis.Client, questions *QuestionService, log zerolog.Logger) *ExamSessionService {
	return &ExamSessionService{
		rdb:       rdb,
		questions: questions,
		log:       log.With().Str("component", "exam_session_service").Logger(),
		now:       time.Now,
	}
}

// Submit grades a submission and queues it for persistence. Only the first
// successful call per student is accepted; later calls get ErrAlreadySubmitted
// together with the recorded result, or a nil result while the first call is
// still grading. A failure after the claim releases it so the client can retry.
func (s *ExamSessionService) Submit(ctx context.Context, student model.Student, req model.SubmitRequest) (*model.TestResult, error) {
	claimKey := config.CacheKey.StudentSubmittedKey(student.ID)
	claimed, err := s.rdb.SetNX(ctx, claimKey, s.now().Unix(), 0).Result()
	if err != nil {
		return nil, fmt.Errorf("claim submission: %w", err)
	}
	if !claimed {
		recorded, err := s.result(ctx, student.ID)
		if err != nil && !errors.Is(err, ErrNotSubmitted) {
			s.log.Warn().Err(err).Int("student_id", student.ID).Msg("Failed to load recorded result")
		}
		return recorded, ErrAlreadySubmitted
	}

	result, err := s.grade(ctx, student, req)
	if err != nil {
		if delErr := s.rdb.Del(context.WithoutCancel(ctx), claimKey).Err(); delErr != nil {
			s.log.Error().Err(delErr).Int("student_id", student.ID).Msg("Failed to release submission claim")
		}
		return nil, err
	}
	return result, nil
}

func (s *ExamSessionService) grade(ctx context.Context, student model.Student, req model.SubmitRequest) (*model.TestResult, error) {
	answerKey, err := s.questions.AnswerKey(ctx, student)
	if err != nil {
		return nil, err
	}

	score, total := Grade(answerKey, req.Answers)
	result := &model.TestResult{
		StudentID:      student.ID,
		Username:       student.Username,
		ClassLevel:     student.ClassLevel,
		Stream:         student.EffectiveStream(),
		AssignedSet:    student.AssignedSet,
		Score:          score,
		TotalQuestions: total,
		TabSwitches:    req.TabSwitches,
		SubmissionType: req.SubmissionType,
		AttemptID:      req.AttemptID,
		SubmittedAt:    s.now().UTC(),
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.StudentResultKey(student.ID), data, 0)
	pipe.RPush(ctx, config.WorkerKey.PersistResultsQueue, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}

	s.log.Info().
		Int("student_id", student.ID).
		Str("set", student.AssignedSet).
		Str("submission_type", string(req.SubmissionType)).
		Str("attempt_id", req.AttemptID).
		Int("score", score).
		Int("total", total).
		Int("tab_switches", req.TabSwitches).
		Msg("Test submitted and graded")
	return result, nil
}

// Score returns the summary of a student's graded submission.
func (s *ExamSessionService) Score(ctx context.Context, student model.Student) (*model.ScoreSummary, error) {
	result, err := s.result(ctx, student.ID)
	if err != nil {
		return nil, err
	}
	summary := Summarize(*result)
	return &summary, nil
}

func (s *ExamSessionService) result(ctx context.Context, studentID int) (*model.TestResult, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.StudentResultKey(studentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotSubmitted
		}
		return nil, fmt.Errorf("get result: %w", err)
	}

	var result model.TestResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &result, nil
}

// LogViolation counts one tab switch and queues it for the audit table. It
// returns the running count.
func (s *ExamSessionService) LogViolation(ctx context.Context, student model.Student) (int64, error) {
	count, err := s.rdb.Incr(ctx, config.CacheKey.StudentTabSwitchesKey(student.ID)).Result()
	if err != nil {
		return 0, fmt.Errorf("count tab switch: %w", err)
	}

	payload, _ := json.Marshal(model.Violation{
		StudentID:  student.ID,
		Count:      count,
		RecordedAt: s.now().UTC(),
	})
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		// The counter is authoritative; the audit row is best effort.
		s.log.Warn().Err(err).Int("student_id", student.ID).Msg("Failed to queue violation")
	}

	s.log.Debug().Int("student_id", student.ID).Int64("count", count).Msg("Tab switch logged")
	return count, nil
}

// SaveAnswers keeps the latest answer map and queues it for persistence.
// Autosaves after the submission are ignored.
func (s *ExamSessionService) SaveAnswers(ctx context.Context, student model.Student, answers map[int]int) error {
	submitted, err := s.rdb.Exists(ctx, config.CacheKey.StudentSubmittedKey(student.ID)).Result()
	if err != nil {
		return fmt.Errorf("check submission: %w", err)
	}
	if submitted > 0 {
		return ErrAlreadySubmitted
	}

	if answers == nil {
		answers = map[int]int{}
	}
	snapshot := model.AnswerSnapshot{StudentID: student.ID, Answers: answers, SavedAt: s.now().UTC()}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, config.CacheKey.StudentAnswersKey(student.ID), data, 0)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save answers: %w", err)
	}
	return nil
}
