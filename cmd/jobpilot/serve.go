package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/martin/jobpilot/internal/config"
	"github.com/martin/jobpilot/internal/credits"
	"github.com/martin/jobpilot/internal/db"
	"github.com/martin/jobpilot/internal/extraction"
	"github.com/martin/jobpilot/internal/gate"
	"github.com/martin/jobpilot/internal/kit"
	"github.com/martin/jobpilot/internal/llm"
	"github.com/martin/jobpilot/internal/logger"
	"github.com/martin/jobpilot/internal/outreach"
	"github.com/martin/jobpilot/internal/packs"
	"github.com/martin/jobpilot/internal/ratelimit"
	"github.com/martin/jobpilot/internal/scoring"
	"github.com/martin/jobpilot/internal/server"
	"github.com/martin/jobpilot/internal/sprint"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Start the HTTP server exposing the scoring, kit, outreach, and sprint endpoints.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(true, cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	if err := database.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	client, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.GeminiAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create completion client: %w", err)
	}
	defer func() { _ = client.Close() }()
	client = llm.WithTimeout(client, cfg.LLMTimeout)

	registry, err := packs.Load()
	if err != nil {
		return fmt.Errorf("failed to load scoring packs: %w", err)
	}

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer func() { _ = rdb.Close() }()
		limiter = ratelimit.NewRedisLimiter(rdb, nil)
		log.Info("using shared rate-limit window", zap.String("addr", cfg.RedisAddr))
	} else {
		ml := ratelimit.NewMemoryLimiter(nil)
		defer ml.Stop()
		limiter = ml
	}

	creditSvc := credits.NewService(database, log.Named("credits"))
	g := gate.New(creditSvc, limiter, log.Named("gate"))
	scorer := scoring.NewService(database, client, registry, log.Named("scoring"))

	deps := server.Deps{
		Store:     database,
		Extractor: extraction.NewService(database, client, log.Named("extraction")),
		Scorer:    scorer,
		Kits:      kit.NewService(database, client, registry, log.Named("kit")),
		Outreach:  outreach.NewService(database, client, outreach.HTTPFetcher{}, registry, log.Named("outreach")),
		Sprints:   sprint.NewService(database, scorer, g, log.Named("sprint")),
		Credits:   creditSvc,
		Gate:      g,
		Verifier:  server.NewJWTVerifier(cfg.JWTSecret),
		Log:       log.Named("http"),
	}

	return server.New(cfg.Port, deps).Start()
}
