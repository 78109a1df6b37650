package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trophy-manager/core/config"
	"trophy-manager/core/database"
	"trophy-manager/core/logger"
	"trophy-manager/core/storage"
	"trophy-manager/feature/achievements/provider"
	"trophy-manager/feature/achievements/reconcile"
	achievementstore "trophy-manager/feature/achievements/store"
	"trophy-manager/feature/iconcache"
	"trophy-manager/feature/library"
	"trophy-manager/feature/refresh"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var refreshFlags struct {
	mode            string
	gameIDs         []string
	game            string
	providers       []string
	quickCount      int
	includeUnplayed bool
	skipKnownEmpty  bool
	hardOverwrite   bool
	sequential      bool
}

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one achievement refresh batch",
	Long: `Resolves a set of refresh targets and fetches + merges each one into
the achievement cache. Explicit --ids win over --game, which wins over --mode;
with none given a quick scan of recently played titles runs.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()

		// 3. Open the achievement cache. An unavailable cache degrades the
		// batch to fetch-only instead of aborting it.
		var cacheStore *achievementstore.Store
		var reconciler *reconcile.Reconciler
		db, err := database.Connect(cfg.Database)
		switch {
		case err == nil:
			if err := achievementstore.Migrate(db); err != nil {
				logg.Fatal("Failed to migrate cache schema", zap.Error(err))
			}
			cacheStore = achievementstore.New(db)
			reconciler = reconcile.New(cacheStore, logg)
		case errors.Is(err, database.ErrCacheUnavailable):
			logg.Warn("Achievement cache unavailable, running fetch-only", zap.Error(err))
		default:
			logg.Fatal("Failed to open cache database", zap.Error(err))
		}

		// 4. Build the provider registry from the snapshot export directory
		registry := provider.NewRegistry(cfg.Providers.EnabledKeys())
		if err := provider.DiscoverDirFetchers(registry, cfg.Providers.SnapshotDir); err != nil {
			logg.Fatal("Failed to discover providers", zap.Error(err))
		}
		if cfg.Providers.RatePerSecond > 0 {
			for _, key := range registry.Keys() {
				f, err := registry.Get(key)
				if err != nil {
					continue
				}
				registry.Register(provider.RateLimited(f, cfg.Providers.RatePerSecond, cfg.Providers.Burst))
			}
		}
		if len(registry.Keys()) == 0 {
			logg.Fatal("No providers enabled", zap.String("snapshot_dir", cfg.Providers.SnapshotDir))
		}

		// 5. Optional library metadata for scan-mode predicates
		var lib library.Metadata
		if cfg.Refresh.LibraryFile != "" {
			lib, err = library.LoadFile(cfg.Refresh.LibraryFile)
			if err != nil {
				logg.Fatal("Failed to load library file", zap.Error(err))
			}
		}

		// 6. Optional icon mirror
		var mirror *iconcache.Mirror
		if cfg.Storage.Enabled {
			client, err := storage.NewClient(cfg.Storage)
			if err != nil {
				logg.Fatal("Failed to create storage client", zap.Error(err))
			}
			mirror = iconcache.New(client, cfg.Storage.Bucket, iconcache.HTTPSource(30*time.Second), logg)
		}

		coordinator := refresh.NewCoordinator(refresh.Params{
			Store:      cacheStore,
			Reconciler: reconciler,
			Registry:   registry,
			Library:    lib,
			Mirror:     mirror,
			Workers:    cfg.Refresh.Workers,
			QuickCount: cfg.Refresh.QuickCount,
			Sequential: cfg.Refresh.Sequential || refreshFlags.sequential,
			Logger:     logg,
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		req := refresh.Request{
			GameIDs:         refreshFlags.gameIDs,
			GameID:          refreshFlags.game,
			ModeKey:         refreshFlags.mode,
			QuickCount:      refreshFlags.quickCount,
			IncludeUnplayed: refreshFlags.includeUnplayed || cfg.Refresh.IncludeUnplayed,
			SkipKnownEmpty:  refreshFlags.skipKnownEmpty,
			HardOverwrite:   refreshFlags.hardOverwrite,
		}
		if len(refreshFlags.providers) > 0 {
			req.Custom = &refresh.CustomOptions{
				ProviderKeys:      refreshFlags.providers,
				Scope:             refresh.ScopeAll,
				RespectExclusions: true,
			}
			if len(refreshFlags.gameIDs) > 0 {
				req.Custom.Scope = refresh.ScopeExplicit
				req.Custom.GameIDs = refreshFlags.gameIDs
				req.GameIDs = nil
			}
		}

		// 7. Run the batch and report
		result, err := coordinator.Run(ctx, req)
		if result != nil {
			report(logg, result)
		}
		if err != nil {
			logg.Fatal("Refresh batch failed", zap.Error(err))
		}
	},
}

// report logs the batch outcome, one line per failed target.
func report(logg *zap.Logger, result *refresh.BatchResult) {
	logg.Info("Refresh batch finished",
		zap.String("batch_id", result.BatchID),
		zap.Int("total", result.Total),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", len(result.Failed)),
		zap.Bool("cache_unavailable", result.CacheUnavailable),
		zap.Duration("duration", result.Duration),
	)
	for _, failure := range result.Failed {
		logg.Warn("Target failed",
			zap.String("provider", failure.Target.Provider),
			zap.String("game_id", failure.Target.ProviderGameID),
			zap.Error(failure.Err),
		)
	}
}

func init() {
	refreshCmd.Flags().StringVar(&refreshFlags.mode, "mode", "", "scan mode (quick, full, installed, favorites, missing)")
	refreshCmd.Flags().StringSliceVar(&refreshFlags.gameIDs, "ids", nil, "explicit game ids to rescan")
	refreshCmd.Flags().StringVar(&refreshFlags.game, "game", "", "single game id to rescan")
	refreshCmd.Flags().StringSliceVar(&refreshFlags.providers, "providers", nil, "limit the batch to these provider keys")
	refreshCmd.Flags().IntVar(&refreshFlags.quickCount, "quick-count", 0, "number of recent titles a quick scan targets")
	refreshCmd.Flags().BoolVar(&refreshFlags.includeUnplayed, "include-unplayed", false, "let quick scans pick titles with no play time")
	refreshCmd.Flags().BoolVar(&refreshFlags.skipKnownEmpty, "skip-known-empty", false, "skip titles known to have no achievements")
	refreshCmd.Flags().BoolVar(&refreshFlags.hardOverwrite, "hard-overwrite", false, "let provider data overwrite cached unlocks (re-import)")
	refreshCmd.Flags().BoolVar(&refreshFlags.sequential, "sequential", false, "run providers one target at a time")
	RootCmd.AddCommand(refreshCmd)
}
