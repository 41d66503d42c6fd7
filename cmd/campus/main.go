package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nidhogg/campus-eval/internal/api"
	"github.com/nidhogg/campus-eval/internal/campus"
	"github.com/nidhogg/campus-eval/internal/cascade"
	"github.com/nidhogg/campus-eval/internal/checkpoint"
	"github.com/nidhogg/campus-eval/internal/config"
	"github.com/nidhogg/campus-eval/internal/evaluation"
	"github.com/nidhogg/campus-eval/internal/graph"
	"github.com/nidhogg/campus-eval/internal/notify"
	"github.com/nidhogg/campus-eval/internal/orchestrator"
	"github.com/nidhogg/campus-eval/internal/provider"
	pgstore "github.com/nidhogg/campus-eval/internal/store"
	"github.com/nidhogg/campus-eval/internal/task"
)

func main() {
	serve := flag.Bool("serve", false, "keep the status API up after the run finishes")
	flag.Parse()

	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	// Load configuration
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/campus.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	if cfg.Server.LogLevel != "" {
		if lvl, err := zap.ParseAtomicLevel(cfg.Server.LogLevel); err == nil {
			zc := zap.NewDevelopmentConfig()
			zc.Level = lvl
			if l, err := zc.Build(); err == nil {
				logger = l
			}
		}
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize provider router and agent
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		p, err := provider.New(provider.Config{
			ID: pc.ID, Type: pc.Type,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Timeout: pc.Timeout(),
		}, logger)
		if err != nil {
			logger.Warn("skipping provider", zap.String("id", pc.ID), zap.Error(err))
			continue
		}
		router.Register(p)
	}
	if router.Len() == 0 {
		logger.Fatal("no usable provider configured")
	}
	agent := provider.NewAgent(router, provider.AgentConfig{
		ID:            cfg.Agent.ID,
		Provider:      cfg.Agent.Provider,
		Fallbacks:     cfg.Agent.Fallbacks,
		Model:         cfg.Agent.Model,
		Temperature:   cfg.Agent.Temperature,
		MaxTokens:     cfg.Agent.MaxTokens,
		ContextTokens: cfg.Agent.ContextTokens,
	}, logger)

	// Load the campus background and the task list
	data, err := campus.LoadData(cfg.Run.DataDir, logger)
	if err != nil {
		logger.Fatal("failed to load campus data", zap.String("dir", cfg.Run.DataDir), zap.Error(err))
	}
	world := campus.NewWorld(data, logger)

	tasks, err := task.Load(cfg.Run.TasksPath)
	if err != nil {
		logger.Fatal("failed to load tasks", zap.String("path", cfg.Run.TasksPath), zap.Error(err))
	}
	logger.Info("Tasks loaded", zap.Int("count", len(tasks)))

	runID := uuid.NewString()

	// Prerequisite failures are mirrored to Neo4j when configured
	var failureSink cascade.Sink
	var g *graph.Graph
	if cfg.Database.Neo4j.URI != "" {
		g, err = graph.New(ctx, cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, runID, logger)
		if err != nil {
			logger.Warn("Neo4j unavailable, running without failure graph", zap.Error(err))
			g = nil
		} else {
			if err := g.EnsureSchema(ctx); err != nil {
				logger.Warn("graph schema", zap.Error(err))
			}
			failureSink = g
		}
	}
	tracker := cascade.New(failureSink, logger)

	orch := orchestrator.New(world, tracker, orchestrator.Options{
		Checkpoints: checkpoint.NewManager(cfg.Run.OutputDir, logger),
		Resume:      cfg.Run.Resume,
	}, logger)

	// Result sinks
	dispatcher := orchestrator.NewDispatcher(4, 10*time.Second, logger)

	fileSink, err := orchestrator.NewFileSink(cfg.Run.OutputDir)
	if err != nil {
		logger.Fatal("failed to open results file", zap.Error(err))
	}
	dispatcher.Add(fileSink)

	var pgStore *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(ctx, cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else {
			if mErr := ps.Migrate(ctx, cfg.Database.Postgres.Migrations); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			pgStore = ps
			dispatcher.Add(pgStore)
		}
	}

	var bus *orchestrator.EventBus
	if cfg.Database.Redis.URL != "" {
		b, busErr := orchestrator.NewEventBus(ctx, cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, running without event stream", zap.Error(busErr))
		} else {
			bus = b
			dispatcher.Add(bus)
		}
	}

	var done []evaluation.Result
	if cfg.Run.Resume {
		done, err = orchestrator.ReadResults(cfg.Run.OutputDir)
		if err != nil {
			logger.Warn("failed to read earlier results", zap.Error(err))
		}
	}

	runner := orchestrator.NewRunner(orch, agent, dispatcher, orchestrator.RunnerConfig{
		RunID:     runID,
		MaxRounds: cfg.Run.MaxRounds,
		Done:      done,
	}, logger)

	// Notifiers
	if pgStore != nil {
		runner.AddNotifier(pgStore)
	}
	if cfg.Notify.Slack.Enabled {
		runner.AddNotifier(notify.NewSlack(cfg.Notify.Slack.BotToken, cfg.Notify.Slack.Channel, logger))
	}
	if cfg.Notify.Discord.Enabled {
		d, dErr := notify.NewDiscord(cfg.Notify.Discord.BotToken, cfg.Notify.Discord.ChannelID, logger)
		if dErr != nil {
			logger.Warn("Discord unavailable", zap.Error(dErr))
		} else {
			runner.AddNotifier(d)
		}
	}

	// Build HTTP handler
	var runs api.RunStore
	if pgStore != nil {
		runs = pgStore
	}
	var events api.EventSource
	if bus != nil {
		events = bus
	}
	handler := api.NewHandler(runner, runs, events, logger)

	port := fmt.Sprintf("%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: handler.Router(),
	}
	go func() {
		logger.Info("Status API listening", zap.String("port", port))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	summary, runErr := runner.Run(ctx, tasks)
	if runErr != nil {
		logger.Warn("run interrupted", zap.Error(runErr))
	}
	logger.Info("Evaluation finished",
		zap.String("run", runID),
		zap.Int("correct", summary.Correct),
		zap.Int("total", summary.Total),
		zap.Float64("accuracy", summary.Accuracy),
		zap.String("results", fileSink.Path()))

	if *serve && runErr == nil {
		logger.Info("Serving results until interrupted")
		<-ctx.Done()
	}

	// Graceful shutdown
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	fileSink.Close()
	if bus != nil {
		bus.Close()
	}
	if pgStore != nil {
		pgStore.Close()
	}
	if g != nil {
		g.Close(shutdownCtx)
	}
}
