package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/amaumene/fetcharr/internal/api"
	"github.com/amaumene/fetcharr/internal/config"
	"github.com/amaumene/fetcharr/internal/engine"
	"github.com/amaumene/fetcharr/internal/events"
	"github.com/amaumene/fetcharr/internal/importer"
	"github.com/amaumene/fetcharr/internal/jobs"
	"github.com/amaumene/fetcharr/internal/models"
	"github.com/amaumene/fetcharr/internal/monitor"
	"github.com/amaumene/fetcharr/internal/probe"
	"github.com/amaumene/fetcharr/internal/scheduler"
	"github.com/amaumene/fetcharr/internal/services/downloadclient"
	"github.com/amaumene/fetcharr/internal/services/indexer"
	"github.com/amaumene/fetcharr/internal/services/trakt"
	"github.com/amaumene/fetcharr/internal/utils"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Setup logger
	logger := utils.NewLogger(cfg.LogLevel)
	logger.Info("Starting Fetcharr")
	logger.WithField("config_dir", filepath.Dir(cfg.DatabaseFile)).Info("Configuration loaded")

	// 3. Initialize database
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()
	logger.Info("Database initialized")

	// 4. Initialize services
	indexerClient, err := indexer.NewClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize indexer client: %w", err)
	}
	logger.Info("Indexer client initialized")

	registry := downloadclient.NewRegistry()
	registry.Register(downloadclient.NewTorBox(logger))
	registry.Register(downloadclient.NewSABnzbd(logger))

	clientCfg := downloadclient.Config{
		Type:   cfg.DownloadClientType,
		URL:    cfg.DownloadClientURL,
		APIKey: cfg.DownloadClientKey,
	}
	client, err := registry.Get(clientCfg.Type)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	testCtx, testCancel := context.WithTimeout(ctx, 30*time.Second)
	info, err := client.TestConnection(testCtx, clientCfg)
	testCancel()
	if err != nil {
		logger.WithError(err).Warn("Download client connection test failed, continuing anyway")
	} else {
		logger.WithField("client", info).Info("Download client connected")
	}

	// Trakt is optional; without it season backfill is disabled
	var seasons importer.SeasonFetcher
	if cfg.TraktClientID != "" {
		traktClient, err := trakt.NewClient(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Trakt client: %w", err)
		}
		seasons = &seasonFetcher{client: traktClient}
		logger.Info("Trakt client initialized")
	} else {
		logger.Info("No Trakt client ID configured, episode backfill disabled")
	}

	// 5. Initialize the pipeline components
	sink := events.Fanout{events.NewLogSink(logger)}
	prober := probe.NewFFProbe(cfg.FFProbeBinary)

	eng := engine.New(cfg, db, indexerClient, registry, logger)
	imp := importer.New(cfg, db, registry, clientCfg, prober, seasons, sink, logger)
	matcher := monitor.NewMatcher(db, registry, clientCfg, logger)

	// 6. Wire the job queues
	dispatcher := jobs.NewDispatcher(logger)

	enqueueImport := func(downloadID uint64) error {
		payload := jobs.Payload{}
		payload.SetUint64("download_id", downloadID)
		return dispatcher.Enqueue(scheduler.QueueImport, payload)
	}
	mon := monitor.New(db, registry, clientCfg, sink, enqueueImport, matcher, logger)

	err = dispatcher.AddQueue(jobs.QueueConfig{
		Name:        scheduler.QueueMonitor,
		Workers:     1,
		MaxRetries:  2,
		DedupWindow: time.Minute,
		Handler: func(ctx context.Context, payload jobs.Payload) error {
			_, err := mon.RunPass(ctx)
			return err
		},
	})
	if err != nil {
		return err
	}

	err = dispatcher.AddQueue(jobs.QueueConfig{
		Name:        scheduler.QueueSearch,
		Workers:     1,
		MaxRetries:  2,
		DedupWindow: time.Duration(cfg.DedupWindowMinutes) * time.Minute,
		Handler: func(ctx context.Context, payload jobs.Payload) error {
			_, err := eng.RunPass(ctx)
			return err
		},
	})
	if err != nil {
		return err
	}

	err = dispatcher.AddQueue(jobs.QueueConfig{
		Name:        scheduler.QueueImport,
		Workers:     cfg.QueueWorkers,
		MaxRetries:  3,
		DedupWindow: time.Minute,
		Handler: func(ctx context.Context, payload jobs.Payload) error {
			id := payload.GetUint64("download_id")
			if id == 0 {
				return jobs.Permanent(fmt.Errorf("import payload missing download_id"))
			}
			_, err := imp.Run(ctx, id)
			if err != nil && models.IsNotFound(err) {
				return jobs.Permanent(err)
			}
			return err
		},
	})
	if err != nil {
		return err
	}

	dispatcher.Start(ctx)
	defer dispatcher.Stop()
	logger.Info("Job dispatcher started")

	// 7. Initialize scheduler
	sched := scheduler.NewScheduler(dispatcher, cfg, logger)
	if err := sched.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// 8. Initialize HTTP server
	server := api.NewServer(cfg, db, dispatcher, logger)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			serverErrChan <- err
		}
	}()

	// 9. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Fetcharr is running")

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		logger.WithField("signal", sig).Info("Received shutdown signal")
		cancel()
		if err := server.Shutdown(context.Background()); err != nil {
			logger.WithError(err).Error("Error during server shutdown")
		}
	}

	logger.Info("Fetcharr stopped")
	return nil
}

// seasonFetcher adapts the Trakt client to the importer's backfill
// interface.
type seasonFetcher struct {
	client *trakt.Client
}

func (s *seasonFetcher) FetchSeason(ctx context.Context, providerID string, season int) ([]importer.EpisodeMeta, error) {
	episodes, err := s.client.FetchSeason(ctx, providerID, season)
	if err != nil {
		return nil, err
	}

	metas := make([]importer.EpisodeMeta, 0, len(episodes))
	for _, ep := range episodes {
		metas = append(metas, importer.EpisodeMeta{
			Number:  ep.Number,
			Title:   ep.Title,
			AirDate: ep.AirDate,
		})
	}
	return metas, nil
}
