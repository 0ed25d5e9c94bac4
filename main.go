package main

import (
	"context"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"media-pipeline/internal/analytics"
	"media-pipeline/internal/catalog"
	"media-pipeline/internal/config"
	"media-pipeline/internal/dedup"
	"media-pipeline/internal/delivery"
	"media-pipeline/internal/imagegen"
	"media-pipeline/internal/ingest"
	"media-pipeline/internal/inspect"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/startup"
	"media-pipeline/internal/transcode"
	"media-pipeline/internal/workers"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	startup.PrintBanner()
	startup.LogSystemInfo()

	cfg, err := config.Load()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	if err := imagegen.InitVips(); err != nil {
		logging.Warn("libvips unavailable, falling back to pure-Go encoders: %v", err)
	}
	defer imagegen.ShutdownVips()

	// Catalog
	catStart := time.Now()
	cat, err := catalog.Open(context.Background(), cfg.CatalogPath)
	if err != nil {
		startup.LogFatal("Failed to open catalog: %v", err)
	}
	defer cat.Close()
	startup.LogCatalogInit(time.Since(catStart))
	// also seeds the catalog asset gauges
	if stats, err := cat.CalculateStats(context.Background()); err == nil {
		logging.Info("catalog: %d assets (%d images, %d videos), %d variants",
			stats.TotalAssets, stats.TotalImages, stats.TotalVideos, stats.TotalVariants)
	}

	// Analytics
	store, err := analytics.OpenStore(context.Background(), cfg.AnalyticsPath)
	if err != nil {
		startup.LogFatal("Failed to open analytics store: %v", err)
	}
	defer store.Close()

	var pub analytics.Publisher
	var natsPub *analytics.NATSPublisher
	if cfg.NATSURL != "" {
		natsPub, err = analytics.ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logging.Warn("NATS unavailable, serve events stay local: %v", err)
		} else {
			pub = natsPub
			defer natsPub.Close()
		}
	}
	recorder := analytics.NewRecorder(store, pub)
	startup.LogComponent("Analytics", true)
	startup.LogComponent("NATS fan-out", pub != nil)

	// Delivery backend
	var backend delivery.Backend
	switch cfg.Backend {
	case "s3":
		backend, err = delivery.NewS3Backend(context.Background(),
			cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix, cfg.CDNBaseURL)
	default:
		backend, err = delivery.NewLocalBackend(cfg.StorageRoot, cfg.BaseURL)
	}
	if err != nil {
		startup.LogFatal("Failed to initialize %s backend: %v", cfg.Backend, err)
	}
	router, err := delivery.NewRouter(cat, backend)
	if err != nil {
		startup.LogFatal("Failed to initialize delivery router: %v", err)
	}

	// Generators
	images, err := imagegen.New(imagegen.DefaultPresets, imagegen.DefaultFormats)
	if err != nil {
		startup.LogFatal("Failed to initialize image generator: %v", err)
	}
	var videos *transcode.Pipeline
	if cfg.VideoEnabled {
		videos = transcode.New(cfg.ScratchDir, cfg.RungTimeout)
	}
	startup.LogComponent("Transcoding", cfg.VideoEnabled)

	// Orchestrator
	index := dedup.NewIndex(cat, dedup.DefaultReservationTTL)
	inspector := inspect.New(cfg.ScratchDir, cfg.VideoEnabled)
	orchestrator := ingest.New(cfg, cat, index, inspector, images, videos, router)

	advisor := analytics.NewAdvisor(cat, store, analytics.Policy{
		UnusedAfter:     cfg.UnusedAfter,
		RecompressRatio: cfg.RecompressRatio,
		OversizeFactor:  cfg.OversizeFactor,
	})

	// Metrics endpoint
	var metricsSrv *http.Server
	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("metrics server: %v", err)
			}
		}()
	}

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = workers.ForMixed(0)
	}
	startup.LogPipelineReady(startup.PipelineConfig{
		Backend:         backend.Name(),
		MetricsPort:     cfg.MetricsPort,
		MetricsEnabled:  cfg.MetricsEnabled,
		Workers:         workerCount,
		StartupDuration: time.Since(startTime),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Directories on the command line are bulk-ingested at startup.
	for _, dir := range os.Args[1:] {
		ingestDirectory(ctx, orchestrator, dir)
	}
	if len(os.Args) > 1 {
		// refresh the asset gauges after bulk ingestion
		if _, err := cat.CalculateStats(ctx); err != nil {
			logging.Warn("catalog stats: %v", err)
		}
	}

	<-ctx.Done()
	shutdown(metricsSrv, recorder, advisor)
}

// ingestDirectory walks dir and batch-ingests every regular file in it.
func ingestDirectory(ctx context.Context, o *ingest.Orchestrator, dir string) {
	var items []ingest.BatchItem
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return err
		}
		items = append(items, ingest.BatchItem{
			Open: func() (io.ReadCloser, error) {
				return os.Open(path)
			},
			DeclaredMime: mime.TypeByExtension(filepath.Ext(path)),
			Meta:         ingest.Meta{Filename: d.Name()},
		})
		return nil
	})
	if err != nil {
		logging.Error("walk %s: %v", dir, err)
		return
	}
	if len(items) == 0 {
		logging.Info("nothing to ingest under %s", dir)
		return
	}

	logging.Info("ingesting %d files from %s", len(items), dir)
	var created, deduplicated, failed int
	for out := range o.IngestBatch(ctx, items, nil) {
		switch {
		case out.Err != nil:
			failed++
		case out.Deduplicated:
			deduplicated++
		default:
			created++
		}
	}
	logging.Info("batch complete: %d created, %d deduplicated, %d failed",
		created, deduplicated, failed)
}

func shutdown(metricsSrv *http.Server, recorder *analytics.Recorder, advisor *analytics.Advisor) {
	startup.LogShutdownInitiated("signal")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Flushing analytics recorder")
	recorder.Close()
	startup.LogShutdownStepComplete("Analytics recorder flushed")

	// one last advisory pass so operators see fresh recommendations on restart
	if recs, err := advisor.Recommend(ctx, ""); err == nil && len(recs) > 0 {
		logging.Info("  %d optimization recommendations pending", len(recs))
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Stopping metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("metrics server shutdown: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownComplete()
}
