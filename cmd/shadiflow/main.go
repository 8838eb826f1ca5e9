package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"shadiflow/internal/agent"
	"shadiflow/internal/assistant/gemini"
	"shadiflow/internal/backend"
	"shadiflow/internal/cache"
	"shadiflow/internal/cli"
	"shadiflow/internal/config"
	apphttp "shadiflow/internal/http"
	"shadiflow/internal/log"
	"shadiflow/internal/metrics"
	"shadiflow/internal/services"
	"shadiflow/internal/storage"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateAssistant)
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	m := metrics.New()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	opened, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).Open(ctx, backendCfg,
		storage.WithLogger(logger.WithComponent(log.ComponentStorage).Logger),
		storage.WithFlushObserver(m.ObserveFlush),
	)
	if err != nil {
		cli.Fatal(logger, "Failed to open ledger", err, "backend", cfg.DataBackend)
	}

	ledger := services.NewLedgerService(opened.Store, opened.Events(),
		services.WithEventObserver(m.ObserveEvent),
		services.WithLogger(logger.WithComponent(log.ComponentLedger).Logger))

	llm, err := gemini.New(ctx, gemini.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		Timeout: cfg.AssistantTimeout,
	})
	if err != nil {
		cli.Fatal(logger, "Failed to create assistant client", err)
	}

	answers := cache.NewLRUCache[string](cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	sweeper := cache.NewManager()
	sweeper.Register(answers)
	sweeper.Start(ctx, cfg.SummaryCacheTTL)

	agentCfg := agent.DefaultConfig()
	agentCfg.Temperature = cfg.AssistantTemperature
	agentCfg.MaxTokens = cfg.AssistantMaxTokens
	chat := agent.New(ledger, llm,
		agent.WithConfig(agentCfg),
		agent.WithAnswerCache(answers),
		agent.WithMetrics(m),
		agent.WithLogger(logger.WithComponent(log.ComponentAgent).Logger),
	)

	opts := []apphttp.Option{
		apphttp.WithMetrics(m),
		apphttp.WithLogger(logger.WithComponent(log.ComponentHTTP)),
	}
	if opened.Publisher != nil {
		opts = append(opts, apphttp.WithReadinessCheck("amqp", opened.Publisher.Check))
	}
	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               cfg.Addr(),
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
	}, ledger, chat, opts...)
	if err != nil {
		cli.Fatal(logger, "Failed to configure HTTP server", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting shadiflow server",
			"addr", cfg.Addr(),
			"backend", cfg.DataBackend,
			"model", cfg.GeminiModel,
			"events", opened.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	sweeper.Stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ledger.Close(closeCtx); err != nil {
		logger.Error("Failed to close ledger", log.FieldError, err)
	}
	if runErr != nil {
		cli.Fatal(logger, "Server error", runErr, "addr", cfg.Addr())
	}
	logger.Info("Server stopped gracefully")
}
