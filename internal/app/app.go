// Package app wires storage, services and transports from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"stockcount/internal/api"
	"stockcount/internal/catalog"
	"stockcount/internal/config"
	"stockcount/internal/connectors"
	"stockcount/internal/listener"
	"stockcount/internal/logger"
	"stockcount/internal/pipeline"
	"stockcount/internal/searchcache"
	"stockcount/internal/stock"
	"stockcount/internal/storage"
	"stockcount/internal/storage/postgres"
)

// RunStore records and lists import runs.
type RunStore interface {
	pipeline.RunRecorder
	api.RunLister
}

type App struct {
	Config config.Config
	Log    *logger.Logger

	// DB always holds mailbox state and metadata.
	DB       *storage.DB
	Products catalog.Store
	Runs     RunStore

	Catalog  *catalog.Service
	Importer *pipeline.Importer
	Stock    *stock.Service
	Mail     *pipeline.MailImportService

	closers []io.Closer
}

func NewLogger(cfg config.Config, service string) *logger.Logger {
	return logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		File:        cfg.LogFile,
		MaxSizeMB:   cfg.LogMaxSizeMB,
		MaxBackups:  cfg.LogMaxBackups,
		MaxAgeDays:  cfg.LogMaxAgeDays,
		Compress:    cfg.LogCompress,
		ServiceName: service,
	})
}

// New opens the backend selected by CATALOG_BACKEND and builds the services on top of it.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	a := &App{Config: cfg, Log: log, DB: db, closers: []io.Closer{db}}

	var stockStore stock.Store
	switch cfg.CatalogBackend {
	case config.BackendLocal:
		a.Products, a.Runs, stockStore = db, db, db
	case config.BackendRemote:
		pg, err := postgres.Connect(ctx, postgres.Config{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			DBName:   cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSLMode,
		})
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect remote catalog: %w", err)
		}
		a.closers = append(a.closers, pg)
		a.Products, a.Runs, stockStore = pg, pg, pg
	case config.BackendMemory:
		a.Products, a.Runs, stockStore = catalog.NewMemoryStore(), db, db
	default:
		_ = a.Close()
		return nil, fmt.Errorf("unsupported CATALOG_BACKEND: %s", cfg.CatalogBackend)
	}

	cache := searchcache.New(a.Products, searchcache.Options{
		Capacity: cfg.SearchCacheCapacity,
		Coalesce: cfg.SearchCoalesce,
	})
	a.Catalog = catalog.NewService(a.Products, cache, log.WithField("component", "catalog"), cfg.ProductsPageSize)
	a.Importer = pipeline.NewImporter(a.Products, pipeline.Options{
		Mode:      cfg.ImportCommitMode,
		BatchSize: cfg.ImportBatchSize,
		Runs:      a.Runs,
	}, log.WithField("component", "import"))
	a.Stock = stock.NewService(stockStore, a.Products, cfg.Location(), log.WithField("component", "stock"))
	a.Mail = pipeline.NewMailImportService(db, a.Importer, cfg.MailAttachmentExts, log.WithField("component", "mail"))

	log.WithFields(logger.Fields{
		"backend": cfg.CatalogBackend,
		"mode":    string(cfg.ImportCommitMode),
	}).Debug("app ready")
	return a, nil
}

// Sync returns the feed sync service, or an error when no feed is configured.
func (a *App) Sync() (*catalog.SyncService, error) {
	if strings.TrimSpace(a.Config.CatalogFeedURL) == "" {
		return nil, errors.New("CATALOG_FEED_URL is not set")
	}
	return catalog.NewSyncService(a.DB, catalog.NewClient(a.Config), a.Importer, a.Log.WithField("component", "sync")), nil
}

func (a *App) Fetcher(ctx context.Context, provider string) (*connectors.FetchService, error) {
	conn, err := connectors.NewConnector(ctx, provider, a.Config)
	if err != nil {
		return nil, err
	}
	return connectors.NewFetchService(a.DB, a.Config.RawMailDir, conn, a.Log.WithField("component", "fetch")), nil
}

// Listener builds the mailbox poller configured by the MAIL_LISTENER_* settings.
func (a *App) Listener(ctx context.Context) (*listener.Service, error) {
	cfg := a.Config
	fetch, err := a.Fetcher(ctx, cfg.MailListenerProvider)
	if err != nil {
		return nil, err
	}

	var feed listener.Syncer
	if cfg.MailListenerFeedSync {
		sync, err := a.Sync()
		if err != nil {
			return nil, err
		}
		feed = sync
	}

	return listener.NewService(listener.Config{
		Provider:     strings.ToLower(strings.TrimSpace(cfg.MailListenerProvider)),
		Label:        cfg.MailListenerLabel,
		Interval:     time.Duration(cfg.MailListenerIntervalSec) * time.Second,
		FetchMax:     cfg.MailListenerFetchMax,
		ProcessBatch: cfg.MailListenerProcessBatch,
		FeedSync:     cfg.MailListenerFeedSync,
	}, fetch, a.Mail, feed, a.Log.WithField("component", "listener")), nil
}

func (a *App) Handler() *api.Handler {
	return api.NewHandler(a.Catalog, a.Importer, a.Stock, a.Runs, api.Options{
		SearchLimit:       a.Config.SearchResultLimit,
		AutocompleteLimit: a.Config.AutocompleteLimit,
	}, a.Log.WithField("component", "api"))
}

// Close releases stores in reverse open order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
