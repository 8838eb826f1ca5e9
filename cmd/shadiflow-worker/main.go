package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"shadiflow/internal/amqp"
	"shadiflow/internal/backend"
	"shadiflow/internal/cli"
	"shadiflow/internal/config"
	"shadiflow/internal/log"
	"shadiflow/internal/metrics"
	"shadiflow/internal/sheets"
	gsheet "shadiflow/internal/sheets/google"
	"shadiflow/internal/sheets/memory"
	"shadiflow/internal/worker"
)

func main() {
	backfill := flag.Bool("backfill", false, "append every stored expense to the sheet before consuming")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address (disabled when empty)")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig((*config.Config).ValidateWorker)
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	logger.Info("Starting shadiflow-worker", log.FieldOperation, log.OpStartup)
	m := metrics.New()

	var writer sheets.ExpenseWriter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SheetName:       cfg.GoogleSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.CredentialsFile(),
		})
		if err != nil {
			cli.Fatal(logger, "Failed to initialize Google Sheets client", err)
		}
		if err := client.EnsureHeader(ctx); err != nil {
			logger.Warn("Failed to ensure sheet header", log.FieldError, err)
		}
		logger.Info("Google Sheets client initialized",
			"spreadsheet_id", cfg.GoogleSpreadsheetID,
			"sheet", cfg.GoogleSheetName)
		writer = client
	} else {
		logger.Info("Google Sheets disabled, mirroring expenses in memory")
		writer = memory.New()
	}

	syncWorker := worker.NewSyncWorker(writer,
		worker.WithLogger(logger.WithComponent(log.ComponentSheets).Logger),
		worker.WithObserver(m.ObserveSync),
	)

	if *backfill {
		if err := runBackfill(ctx, cfg, logger, syncWorker); err != nil {
			cli.Fatal(logger, "Backfill failed", err)
		}
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize AMQP client", err)
	}
	defer client.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := client.Consume(gctx, syncWorker.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if *metricsAddr != "" {
		srv := &http.Server{
			Addr:              *metricsAddr,
			Handler:           m.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Serving metrics", "addr", *metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		cli.Fatal(logger, "Worker stopped with error", err)
	}
	logger.Info("Worker stopped gracefully", log.FieldOperation, log.OpShutdown)
}

// runBackfill appends every group's expenses from a read-only snapshot of the
// ledger, so the running server keeps sole ownership of the document.
func runBackfill(ctx context.Context, cfg *config.Config, logger *log.Logger, w *worker.SyncWorker) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}

	store, err := backend.NewFactory(logger.WithComponent(log.ComponentStorage).Logger).OpenReadOnly(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer store.Close(context.Background())

	total := 0
	for _, group := range store.Groups() {
		n, err := w.Backfill(ctx, store.Expenses(group.GroupID))
		total += n
		if err != nil {
			return err
		}
	}
	logger.Info("Backfill complete", "rows", total)
	return nil
}
