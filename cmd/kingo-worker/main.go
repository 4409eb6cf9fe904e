// Command kingo-worker is the composition root: it wires the database,
// queue broker, client factory, and scheduler together, registers every
// processor, and runs until a termination signal is received.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"kingoacquire/internal/app"
	"kingoacquire/internal/broker"
	"kingoacquire/internal/clients"
	"kingoacquire/internal/config"
	"kingoacquire/internal/logger"
	"kingoacquire/internal/processor"
	"kingoacquire/internal/scheduler"
	"kingoacquire/internal/storage"
)

// Version is set at build time via ldflags.
var Version string

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kingo-worker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	paths, err := app.GetPaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	if err := logger.Init(paths.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize logger: %v\n", err)
	}
	logger.Log.Info().Str("version", Version).Str("dataDir", paths.DataDir).Msg("kingo-worker starting up")

	cfg, err := config.Load(paths.DataDir)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("failed to load config, using defaults")
		cfg = config.Default()
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = paths.DownloadDir
	}
	if cfg.MediaDir == "" {
		cfg.MediaDir = paths.MediaDir
	}

	db, err := storage.New(paths.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	logger.Log.Info().Msg("database initialized")

	if err := seedConfiguration(storage.NewConfigurationRepository(db), cfg, paths); err != nil {
		logger.Log.Error().Err(err).Msg("failed to seed runtime configuration overrides")
	}

	redisAddr := os.Getenv("KINGOACQUIRE_REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	b, err := broker.NewRedisBroker(redisAddr, "kingoacquire")
	if err != nil {
		db.Close()
		return fmt.Errorf("connect broker: %w", err)
	}
	logger.Log.Info().Str("addr", redisAddr).Msg("broker connected")

	// No networked client implementation is in scope for this core (spec
	// §1/§6) — the factory starts empty. Processors that need a client
	// degrade to a terminal-config error or a graceful no-op, per their own
	// contracts, until an operator registers a concrete implementation.
	factory := clients.NewFactory()

	deps := processor.NewDeps(db, b, factory)
	deps.InstallCallbacks()
	registerProcessors(deps, b)

	sched := scheduler.New(b, deps.ScheduledJobs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		db.Close()
		return fmt.Errorf("start broker: %w", err)
	}
	if err := sched.Start(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("failed to start scheduler")
	}
	logger.Log.Info().Msg("kingo-worker ready")

	<-ctx.Done()
	logger.Log.Info().Msg("shutdown signal received")

	// Close in reverse dependency order: broker before DB (spec.md §9).
	if err := b.Close(); err != nil {
		logger.Log.Error().Err(err).Msg("failed to close broker")
	}
	if err := db.Close(); err != nil {
		logger.Log.Error().Err(err).Msg("failed to close database")
	}
	logger.Log.Info().Msg("kingo-worker shutdown complete")
	return nil
}

// registerProcessors wires every job type the core dispatches to its typed
// handler, bounded by the per-type concurrency budgets of spec.md §4.2.
// plex_library_scan reuses scan_library's handler (same media-server
// rescan trigger, run on a schedule instead of right after an import).
// sync_goodreads_shelves has no concrete collaborator anywhere in
// internal/clients and is left unregistered; its scheduler seed row starts
// disabled for the same reason, so no job of that type is ever enqueued.
func registerProcessors(d *processor.Deps, b broker.Broker) {
	must := func(jobType string, concurrency int, handler broker.Handler) {
		if err := b.SetProcessor(jobType, concurrency, handler); err != nil {
			logger.Log.Error().Err(err).Str("jobType", jobType).Msg("failed to register processor")
		}
	}

	must("search_indexers", 3, processor.Wrap("search_indexers", d.SearchIndexers))
	must("download_torrent", 3, processor.Wrap("download_torrent", d.DownloadTorrent))
	must("start_direct_download", 3, processor.Wrap("start_direct_download", d.StartDirectDownload))
	must("monitor_download", 5, processor.Wrap("monitor_download", d.MonitorDownload))
	must("organize_files", 2, processor.Wrap("organize_files", d.OrganizeFiles))
	must("scan_library", 1, processor.Wrap("scan_library", d.ScanLibrary))
	must("plex_library_scan", 1, processor.Wrap("scan_library", d.ScanLibrary))
	must("match_library", 3, processor.Wrap("match_library", d.MatchLibrary))
	must("notify", 5, processor.Wrap("notify", d.Notify))

	must("retry_missing_torrents", 1, processor.Wrap("retry_missing_search", d.RetryMissingSearch))
	must("retry_failed_imports", 1, processor.Wrap("retry_failed_imports", d.RetryFailedImports))
	must("monitor_rss_feeds", 1, processor.Wrap("monitor_rss_feeds", d.MonitorRSSFeeds))
	must("cleanup_seeded_torrents", 1, processor.Wrap("cleanup_seeded_torrents", d.CleanupSeededTorrents))
	must("audible_refresh", 1, processor.Wrap("refresh_metadata_cache", d.RefreshMetadataCache))
	must("plex_recently_added_check", 1, processor.Wrap("plex_recently_added_check", d.RecentlyAddedCheck))
}

// seedConfiguration fills any runtime configuration key that has no
// operator-set override yet, from the bootstrap settings file and resolved
// paths. ConfigurationRepository entries always win over these defaults.
func seedConfiguration(repo *storage.ConfigurationRepository, cfg *config.Config, paths *app.Paths) error {
	defaults := map[string]string{
		"download_dir":                             cfg.DownloadDir,
		"media_dir":                                cfg.MediaDir,
		"audiobook_path_template":                  cfg.AudiobookPathTemplate,
		"thumbnail_cache_dir":                       filepath.Join(paths.DataDir, "thumbnails"),
		"plex_library_id":                           cfg.Plex.LibraryID,
		"plex.trigger_scan_after_import":            boolString(cfg.Plex.TriggerScanAfterImport),
		"audiobookshelf.trigger_scan_after_import":  boolString(cfg.Audiobookshelf.TriggerScanAfterImport),
		"ebook_sidecar_base_url":                    cfg.EbookSidecar.BaseURL,
		"ebook_sidecar_preferred_format":             cfg.EbookSidecar.PreferredFormat,
		"ebook_sidecar_flaresolverr_url":             cfg.EbookSidecar.FlaresolverrURL,
	}

	if len(cfg.ProwlarrIndexers) > 0 {
		raw, err := json.Marshal(cfg.ProwlarrIndexers)
		if err != nil {
			return err
		}
		defaults["prowlarr_indexers"] = string(raw)
	}

	for key, value := range defaults {
		if value == "" {
			continue
		}
		if _, ok, err := repo.Get(key); err != nil {
			return err
		} else if ok {
			continue
		}
		if err := repo.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
