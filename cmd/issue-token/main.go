package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func main() {
	var (
		student model.Student
		reset   bool
	)
	flag.IntVar(&student.ID, "id", 0, "Student ID (required)")
	flag.StringVar(&student.Username, "username", "", "Display name")
	flag.StringVar(&student.ClassLevel, "class", "", "Class level (class9, class10, class11, class12, dropper)")
	flag.StringVar(&student.Stream, "stream", "", "Stream (pcm, pcb, ...); ignored for class9/class10")
	flag.StringVar(&student.AssignedSet, "set", "", "Question set letter; empty assigns the next set round-robin")
	flag.BoolVar(&reset, "reset", false, "Invalidate the student's current token first")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// stdout carries the token only.
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx := context.Background()

	// ─── Interactive fallback ──────────────────────────────────────────
	if term.IsTerminal(int(os.Stdin.Fd())) {
		reader := bufio.NewReader(os.Stdin)
		if student.Username == "" {
			student.Username = prompt(reader, "Enter Username: ")
		}
		if student.ClassLevel == "" {
			student.ClassLevel = prompt(reader, "Enter Class Level: ")
		}
		if student.Stream == "" && student.ClassLevel != "class9" && student.ClassLevel != "class10" {
			student.Stream = prompt(reader, "Enter Stream: ")
		}
	}

	if student.ID <= 0 || student.ClassLevel == "" {
		fmt.Fprintln(os.Stderr, "Error: --id and --class are required")
		flag.Usage()
		os.Exit(2)
	}
	student.Stream = student.EffectiveStream()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	authService := service.NewAuthService(cfg, rdb)
	questionService := service.NewQuestionService(cfg.QuestionDir, rdb, cfg.PaperCacheTTL, log)

	// ─── Logic ─────────────────────────────────────────────────────────
	if student.AssignedSet == "" {
		set, err := questionService.NextSet(ctx, student.ClassLevel, student.Stream)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to assign question set")
		}
		student.AssignedSet = set
	}

	// Fail early if nothing would be served to this student.
	if _, path, err := questionService.Load(student.ClassLevel, student.Stream, student.AssignedSet); err != nil {
		log.Fatal().Err(err).Msg("No usable question file")
	} else {
		log.Info().Str("file", path).Msg("Question file resolved")
	}

	if reset {
		if err := authService.ResetStudentSession(ctx, student.ID); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset session")
		}
	}

	token, err := authService.GenerateStudentToken(ctx, student)
	if err != nil {
		if errors.Is(err, service.ErrSessionAlreadyActive) {
			log.Fatal().Int("student_id", student.ID).Msg("Student already holds a token; rerun with --reset")
		}
		log.Fatal().Err(err).Msg("Failed to issue token")
	}

	log.Info().
		Int("student_id", student.ID).
		Str("class_level", student.ClassLevel).
		Str("stream", student.Stream).
		Str("set", student.AssignedSet).
		Msg("Token issued")
	fmt.Println(token)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Fprint(os.Stderr, label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}
