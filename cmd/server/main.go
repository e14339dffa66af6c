package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, nil)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Str("question_dir", cfg.QuestionDir).
		Msg("Starting exam gateway")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	questionService := service.NewQuestionService(cfg.QuestionDir, rdb, cfg.PaperCacheTTL, log)
	sessionService := service.NewExamSessionService(rdb, questionService, log)

	// Drop papers cached by a previous run; the files may have changed.
	if n, err := questionService.Invalidate(ctx); err != nil {
		log.Warn().Err(err).Msg("Paper cache reset failed")
	} else if n > 0 {
		log.Info().Int("keys", n).Msg("Stale paper cache dropped")
	}

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentPortal: handler.NewStudentPortalHandler(questionService, sessionService, log),
		WS:            handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins),
	}
	tabLimiter := middleware.NewRateLimiter(cfg.TabLogPerMin, time.Minute)

	r := router.SetupRouter(authService, handlers, tabLimiter, cfg)
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Run server, workers and watcher together ──────────────────────
	g, gctx := errgroup.WithContext(ctx)

	// Workers get their own context so they keep draining until the HTTP
	// server has stopped producing.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	g.Go(func() error {
		return worker.NewResultWorker(rdb, repository.NewResultRepository(pool), log).Start(workerCtx)
	})
	g.Go(func() error {
		return worker.NewViolationWorker(rdb, repository.NewViolationRepository(pool), log).Start(workerCtx)
	})
	g.Go(func() error {
		return worker.NewAutosaveWorker(rdb, repository.NewAnswerRepository(pool), log).Start(workerCtx)
	})
	g.Go(func() error {
		return questionService.Watch(gctx)
	})
	g.Go(func() error {
		tabLimiter.Cleanup(gctx.Done())
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down gracefully...")

		// 1. Stop accepting new HTTP requests (5s timeout).
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}

		// 2. Let the workers flush what they hold.
		workerCancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Gateway stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
