package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learnbuddy/questbuddy/api/rest"
	"github.com/learnbuddy/questbuddy/api/sse"
	"github.com/learnbuddy/questbuddy/audit"
	"github.com/learnbuddy/questbuddy/cache"
	"github.com/learnbuddy/questbuddy/game/badge"
	"github.com/learnbuddy/questbuddy/game/learner"
	"github.com/learnbuddy/questbuddy/game/quest"
	"github.com/learnbuddy/questbuddy/game/ranking"
	"github.com/learnbuddy/questbuddy/hook"
	"github.com/learnbuddy/questbuddy/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints are disabled")
	}
	if cfg.Security.JWTSecret == "" {
		return errors.New("security.jwt_secret must be set")
	}

	// ---- Database ----
	db, err := openDB(cfg, logger)
	if err != nil {
		return err
	}

	// ---- Audit ----
	auditSvc := audit.New(db, audit.Config{}, logger)
	defer auditSvc.Stop(context.Background())

	// ---- Cache / PubSub ----
	c, err := cache.NewCache(cacheConfig(cfg))
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer c.Close()
	pubsub, err := cache.NewPubSub(cacheConfig(cfg))
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	// ---- Quest definitions ----
	var starter []quest.Definition
	if cfg.Quest.SeedFile != "" {
		starter, err = quest.LoadDefinitions(cfg.Quest.SeedFile)
		if err != nil {
			return fmt.Errorf("quest seed: %w", err)
		}
		logger.Info("starter quests loaded", zap.Int("count", len(starter)))
	}

	// ---- Services ----
	hooks := hook.NewCenter()
	questSvc := quest.NewService(db, c, pubsub, hooks, quest.Config{
		Starter:      starter,
		StreakWindow: cfg.Scheduler.StreakWindow,
	}, logger)
	questSvc.RegisterHooks()
	badgeSvc := badge.NewService(db, logger)
	badgeSvc.RegisterHooks(hooks)
	learners := learner.NewService(db, hooks, badgeSvc, logger)
	board := ranking.NewBoard(db, c, cfg.Quest.RankingLimit, logger)

	// ---- Periodic Scheduler Tasks ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	sched.AddTicker("ranking_refresh", cfg.Scheduler.RankingRefresh, func(ctx context.Context) error {
		n, err := board.Refresh(ctx)
		if err == nil {
			logger.Debug("ranking refreshed", zap.Int("users", n))
		}
		return err
	})
	sched.AddTicker("streak_decay", cfg.Scheduler.StreakDecay, func(ctx context.Context) error {
		n, err := learners.DecayStreaks(ctx, time.Now(), cfg.Scheduler.StreakWindow)
		if err == nil && n > 0 {
			logger.Info("streaks reset", zap.Int64("users", n))
		}
		return err
	})
	if err := sched.RunNow("ranking_refresh"); err != nil {
		logger.Warn("initial ranking refresh failed", zap.Error(err))
	}

	// ---- HTTP ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r := rest.NewRouter(cfg, c, rest.Handlers{
		Auth:    rest.NewAuthHandler(learners, c, cfg.Security, auditSvc, logger),
		Quest:   rest.NewQuestHandler(questSvc, auditSvc),
		User:    rest.NewUserHandler(learners),
		Ranking: rest.NewRankingHandler(board),
		Admin:   rest.NewAdminHandler(db, c, board, sched, sseH, auditSvc, logger),
		SSE:     sseH.ServeSSE,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
