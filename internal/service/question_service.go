package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Question set errors.
var (
	ErrQuestionSetNotFound = errors.New("no question set available")
	ErrInvalidQuestionFile = errors.New("invalid question file")
)

// defaultSets is handed out when no per-set files exist yet.
var defaultSets = []string{"a", "b", "c", "d"}

// questionExts are tried in order for every candidate file name.
var questionExts = []string{".json", ".yaml", ".yml"}

// QuestionService resolves question files on disk and serves them through a
// Redis cache: the student payload as a JSON string and the answer key as a hash.
type QuestionService struct {
	dir string
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewQuestionService creates a new QuestionService reading from dir.
func NewQuestionService(dir string, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		dir: dir,
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "question_service").Logger(),
	}
}

// classAliases lists the file-name spellings of a class level.
func classAliases(classLevel string) []string {
	if classLevel == "dropper" {
		return []string{"dropper", "droppers"}
	}
	return []string{classLevel}
}

// AvailableSets returns the set letters that have a dedicated file for the
// class and stream, or the default letters when there are none.
func (s *QuestionService) AvailableSets(classLevel, stream string) []string {
	if stream == "" {
		stream = string(model.StreamGeneral)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return append([]string(nil), defaultSets...)
	}

	found := make(map[string]struct{})
	for _, alias := range classAliases(classLevel) {
		pattern := regexp.MustCompile(`^questions_` + regexp.QuoteMeta(alias) + `_` + regexp.QuoteMeta(stream) + `_([a-z])\.(json|ya?ml)$`)
		for _, e := range entries {
			if m := pattern.FindStringSubmatch(e.Name()); m != nil {
				found[m[1]] = struct{}{}
			}
		}
	}

	if len(found) == 0 {
		return append([]string(nil), defaultSets...)
	}
	sets := make([]string, 0, len(found))
	for set := range found {
		sets = append(sets, set)
	}
	sort.Strings(sets)
	return sets
}

// Load resolves the question file for a class, stream and set. Resolution
// order: the set's own file, then the shared file for the stream, then the
// first available set. It returns the questions and the file it read.
func (s *QuestionService) Load(classLevel, stream, set string) ([]model.Question, string, error) {
	if stream == "" {
		stream = string(model.StreamGeneral)
	}
	aliases := classAliases(classLevel)

	var candidates []string
	for _, alias := range aliases {
		candidates = append(candidates, fmt.Sprintf("questions_%s_%s_%s", alias, stream, set))
	}
	for _, alias := range aliases {
		candidates = append(candidates, fmt.Sprintf("questions_%s_%s", alias, stream))
	}
	for _, fallback := range s.AvailableSets(classLevel, stream) {
		for _, alias := range aliases {
			candidates = append(candidates, fmt.Sprintf("questions_%s_%s_%s", alias, stream, fallback))
		}
	}

	for _, base := range candidates {
		for _, ext := range questionExts {
			path := filepath.Join(s.dir, base+ext)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			questions, err := readQuestionFile(path)
			if err != nil {
				return nil, path, err
			}
			if len(questions) == 0 {
				continue
			}
			return questions, path, nil
		}
	}

	return nil, "", fmt.Errorf("%s/%s/%s: %w", classLevel, stream, set, ErrQuestionSetNotFound)
}

func readQuestionFile(path string) ([]model.Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var questions []model.Question
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &questions)
	default:
		err = json.Unmarshal(raw, &questions)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrInvalidQuestionFile, err)
	}

	if err := validateQuestions(questions); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return questions, nil
}

func validateQuestions(questions []model.Question) error {
	seen := make(map[int]struct{}, len(questions))
	for i, q := range questions {
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate id %d", ErrInvalidQuestionFile, q.ID)
		}
		seen[q.ID] = struct{}{}

		if len(q.Options) < model.MinOptions || len(q.Options) > model.MaxOptions {
			return fmt.Errorf("%w: question %d (position %d) has %d options", ErrInvalidQuestionFile, q.ID, i+1, len(q.Options))
		}
		if q.Correct < 0 || q.Correct >= len(q.Options) {
			return fmt.Errorf("%w: question %d has correct=%d", ErrInvalidQuestionFile, q.ID, q.Correct)
		}
	}
	return nil
}

// WarmPaper loads a student's question set from disk and caches the payload
// and the answer key together.
func (s *QuestionService) WarmPaper(ctx context.Context, student model.Student) (*model.Paper, error) {
	stream := student.EffectiveStream()
	questions, path, err := s.Load(student.ClassLevel, stream, student.AssignedSet)
	if err != nil {
		return nil, err
	}

	studentQuestions := make([]model.QuestionForStudent, len(questions))
	answerKey := make(map[string]interface{}, len(questions))
	for i, q := range questions {
		studentQuestions[i] = q.ForStudent()
		answerKey[strconv.Itoa(q.ID)] = q.Correct
	}

	paper := &model.Paper{
		ClassLevel:      student.ClassLevel,
		Stream:          stream,
		Set:             student.AssignedSet,
		DurationSeconds: model.DurationFor(student.ClassLevel),
		Questions:       studentQuestions,
	}

	payloadJSON, err := json.Marshal(paper)
	if err != nil {
		return nil, fmt.Errorf("marshal paper: %w", err)
	}

	paperKey := config.CacheKey.PaperKey(student.ClassLevel, stream, student.AssignedSet)
	answerKeyKey := config.CacheKey.PaperAnswerKey(student.ClassLevel, stream, student.AssignedSet)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, paperKey, payloadJSON, s.ttl)
	pipe.Del(ctx, answerKeyKey)
	pipe.HSet(ctx, answerKeyKey, answerKey)
	pipe.Expire(ctx, answerKeyKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("file", filepath.Base(path)).
		Str("class_level", student.ClassLevel).
		Str("stream", stream).
		Str("set", student.AssignedSet).
		Int("questions", len(questions)).
		Msg("Paper cache warmed")
	return paper, nil
}

// Paper returns the student-facing payload, warming the cache on a miss.
func (s *QuestionService) Paper(ctx context.Context, student model.Student) (*model.Paper, error) {
	key := config.CacheKey.PaperKey(student.ClassLevel, student.EffectiveStream(), student.AssignedSet)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s.WarmPaper(ctx, student)
		}
		return nil, fmt.Errorf("get paper: %w", err)
	}

	var paper model.Paper
	if err := json.Unmarshal(data, &paper); err != nil {
		return nil, fmt.Errorf("unmarshal paper: %w", err)
	}
	return &paper, nil
}

// AnswerKey returns question id (decimal string) to correct option index.
func (s *QuestionService) AnswerKey(ctx context.Context, student model.Student) (map[string]string, error) {
	key := config.CacheKey.PaperAnswerKey(student.ClassLevel, student.EffectiveStream(), student.AssignedSet)
	result, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(result) > 0 {
		return result, nil
	}

	if _, err := s.WarmPaper(ctx, student); err != nil {
		return nil, err
	}
	result, err = s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	return result, nil
}

// Invalidate drops every cached paper and answer key.
func (s *QuestionService) Invalidate(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, config.CacheKey.PaperPattern(), 100).Result()
		if err != nil {
			return removed, fmt.Errorf("scan paper keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := s.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, fmt.Errorf("delete paper keys: %w", err)
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// NextSet hands out question sets round-robin per class and stream.
func (s *QuestionService) NextSet(ctx context.Context, classLevel, stream string) (string, error) {
	sets := s.AvailableSets(classLevel, stream)
	n, err := s.rdb.Incr(ctx, config.CacheKey.SetCounterKey(classLevel, stream)).Result()
	if err != nil {
		return "", fmt.Errorf("advance set counter: %w", err)
	}
	return sets[int((n-1)%int64(len(sets)))], nil
}

// Watch invalidates the paper cache whenever a question file changes. It
// blocks until ctx is done.
func (s *QuestionService) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watch %s: %w", s.dir, err)
	}
	s.log.Info().Str("dir", s.dir).Msg("Watching question files")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(filepath.Base(ev.Name), "questions_") {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			removed, err := s.Invalidate(ctx)
			if err != nil {
				s.log.Error().Err(err).Str("file", ev.Name).Msg("Paper cache invalidation failed")
				continue
			}
			s.log.Info().Str("file", filepath.Base(ev.Name)).Str("op", ev.Op.String()).Int("keys", removed).Msg("Question file changed, cache invalidated")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("Watcher error")
		}
	}
}
