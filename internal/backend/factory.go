// Package backend opens the ledger persistence and event publishing
// selected by configuration.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"shadiflow/internal/amqp"
	"shadiflow/internal/services"
	"shadiflow/internal/storage"
	"shadiflow/internal/storage/jsonfile"
	"shadiflow/internal/storage/sqlite"
)

// Result bundles what the factory opened. Close releases all of it.
type Result struct {
	Store     *storage.Store
	Publisher *amqp.Client // nil when no broker is configured
}

// Events returns the publisher as a services.EventPublisher, or nil without
// a broker so the service sees an untyped nil.
func (r *Result) Events() services.EventPublisher {
	if r.Publisher == nil {
		return nil
	}
	return r.Publisher
}

// Close flushes the store and closes the broker connection.
func (r *Result) Close(ctx context.Context) error {
	var first error
	if r.Store != nil {
		if err := r.Store.Close(ctx); err != nil {
			first = err
		}
	}
	if r.Publisher != nil {
		if err := r.Publisher.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Factory opens backends.
type Factory struct {
	logger *slog.Logger
}

// NewFactory creates a backend factory.
func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

// OpenPersister returns the persister for cfg.Type.
func (f *Factory) OpenPersister(cfg Config) (storage.Persister, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case SQLiteBackend:
		p, err := sqlite.New(cfg.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite persister: %w", err)
		}
		f.logger.Info("Using SQLite backend", "path", cfg.SQLiteDBPath)
		return p, nil
	default:
		p, err := jsonfile.New(cfg.DataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize data file: %w", err)
		}
		f.logger.Info("Using file backend", "path", p.Path())
		return p, nil
	}
}

// OpenReadOnly opens a snapshot of the ledger for readers running beside the
// server. It never publishes and never writes the document back.
func (f *Factory) OpenReadOnly(ctx context.Context, cfg Config) (*storage.Store, error) {
	p, err := f.OpenPersister(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, p, storage.WithReadOnly(), storage.WithLogger(f.logger))
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// Open opens the store and, when AMQPURL is set, the event publisher.
// A broker that cannot be reached is logged and skipped.
func (f *Factory) Open(ctx context.Context, cfg Config, opts ...storage.Option) (*Result, error) {
	p, err := f.OpenPersister(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, p, opts...)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	res := &Result{Store: store}
	if cfg.AMQPURL == "" {
		f.logger.Info("AMQP not configured, ledger events disabled")
		return res, nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to connect to AMQP, ledger events disabled", "error", err)
		return res, nil
	}
	f.logger.Info("AMQP publisher connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	res.Publisher = client
	return res, nil
}
