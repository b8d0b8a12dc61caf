package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"askhub.app/askhub/common/id"
	"askhub.app/askhub/common/logger"
	"askhub.app/askhub/common/otel"
	"askhub.app/askhub/core/config"
	"askhub.app/askhub/core/db"
	"askhub.app/askhub/internal/dedup"
	"askhub.app/askhub/internal/feedback"
	"askhub.app/askhub/internal/http/handler"
	"askhub.app/askhub/internal/http/middleware"
	httprouter "askhub.app/askhub/internal/http/router"
	"askhub.app/askhub/internal/index"
	"askhub.app/askhub/internal/pipeline"
	"askhub.app/askhub/internal/platform"
	"askhub.app/askhub/internal/platform/googlechat"
	slackadapter "askhub.app/askhub/internal/platform/slack"
	teamsadapter "askhub.app/askhub/internal/platform/teams"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "askhub starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	var feedbackStore feedback.Store
	if cfg.Feedback.UsePostgres() {
		database, err := db.New(ctx, db.Config{
			DSN:      cfg.Feedback.DatabaseURL,
			MaxConns: cfg.Feedback.MaxConns,
			MinConns: cfg.Feedback.MinConns,
		})
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()

		pgStore := feedback.NewPostgresStore(database)
		if err := pgStore.Migrate(ctx); err != nil {
			slog.ErrorContext(ctx, "failed to migrate feedback schema", "error", err)
			os.Exit(1)
		}
		feedbackStore = pgStore
		slog.InfoContext(ctx, "feedback store: postgres")
	} else {
		feedbackStore = feedback.NewMemoryStore()
		slog.InfoContext(ctx, "feedback store: in-memory")
	}

	var deduper dedup.Deduper
	if cfg.Dedup.UseRedis() {
		redisOpts, err := redis.ParseURL(cfg.Dedup.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		deduper = dedup.NewRedis(redisClient, cfg.Dedup.TTL)
		slog.InfoContext(ctx, "dedup store: redis")
	} else {
		deduper = dedup.NewMemory(cfg.Dedup.TTL)
		slog.InfoContext(ctx, "dedup store: in-memory")
	}

	idx := index.FromConfig(cfg)

	slackAd := slackadapter.New(slackadapter.Config{
		BotToken:      cfg.Slack.BotToken,
		SigningSecret: cfg.Slack.SigningSecret,
		BotUserID:     cfg.Slack.BotUserID,
	})
	teamsAd := teamsadapter.New(teamsadapter.Config{
		AppID:       cfg.Teams.AppID,
		AppPassword: cfg.Teams.AppPassword,
		TokenURL:    cfg.Teams.TokenURL,
		TokenScope:  cfg.Teams.TokenScope,
		BotMention:  cfg.Teams.BotMention,
	})
	chatAd := googlechat.New(googlechat.Config{BotMention: cfg.GoogleChat.BotMention})

	registry := platform.NewRegistry(slackAd, teamsAd, chatAd)

	pipe := pipeline.New(pipeline.Config{
		QueueSize:    cfg.Pipeline.QueueSize,
		Workers:      cfg.Pipeline.Workers,
		QueryTimeout: cfg.Pipeline.QueryTimeout,
	}, idx, registry)

	go func() {
		if err := pipe.Run(ctx); err != nil {
			slog.ErrorContext(ctx, "pipeline error", "error", err)
		}
	}()

	recorder := feedback.NewRecorder(feedbackStore)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Handlers{
		Slack:      handler.NewSlackHandler(slackAd, pipe, recorder, deduper),
		Teams:      handler.NewTeamsHandler(teamsAd, pipe, recorder),
		GoogleChat: handler.NewGoogleChatHandler(chatAd, pipe),
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// Drain queued questions so accepted events still get answers.
	pipe.Stop()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, handlers httprouter.Handlers) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, handlers)

	return router
}

const banner = `
 █████╗ ███████╗██╗  ██╗██╗  ██╗██╗   ██╗██████╗
██╔══██╗██╔════╝██║ ██╔╝██║  ██║██║   ██║██╔══██╗
███████║███████╗█████╔╝ ███████║██║   ██║██████╔╝
██╔══██║╚════██║██╔═██╗ ██╔══██║██║   ██║██╔══██╗
██║  ██║███████║██║  ██╗██║  ██║╚██████╔╝██████╔╝
╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝ ╚═════╝
`
