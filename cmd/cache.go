package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"trophy-manager/core/config"
	"trophy-manager/core/database"
	"trophy-manager/core/logger"
	"trophy-manager/core/storage"
	"trophy-manager/feature/achievements/models"
	achievementstore "trophy-manager/feature/achievements/store"
	"trophy-manager/feature/iconcache"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var cacheClearFlags struct {
	provider string
	game     string
	all      bool
	icons    bool
}

// cacheCmd groups the cache maintenance subcommands.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Maintain the achievement cache database",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete cached achievement data",
	Long: `Deletes cached rows for one title (--provider with --game) or for the
entire cache (--all). This is the only path that removes title and identity
rows; refresh batches only prune definitions and unlocks.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logg, db := openCache()
		defer logg.Sync()
		store := achievementstore.New(db)
		ctx := context.Background()

		switch {
		case cacheClearFlags.all:
			if err := store.ClearAll(ctx); err != nil {
				logg.Fatal("Failed to clear cache", zap.Error(err))
			}
			logg.Info("Cache cleared")
		case cacheClearFlags.provider != "" && cacheClearFlags.game != "":
			err := store.ClearTitle(ctx, cacheClearFlags.provider, cacheClearFlags.game)
			if err != nil {
				logg.Fatal("Failed to clear title",
					zap.String("provider", cacheClearFlags.provider),
					zap.String("game_id", cacheClearFlags.game),
					zap.Error(err),
				)
			}
			logg.Info("Title cleared",
				zap.String("provider", cacheClearFlags.provider),
				zap.String("game_id", cacheClearFlags.game),
			)
		default:
			logg.Fatal("Nothing to clear: pass --all or both --provider and --game")
		}

		if cacheClearFlags.icons && cfg.Storage.Enabled {
			client, err := storage.NewClient(cfg.Storage)
			if err != nil {
				logg.Fatal("Failed to create storage client", zap.Error(err))
			}
			mirror := iconcache.New(client, cfg.Storage.Bucket, iconcache.HTTPSource(30*time.Second), logg)
			if cacheClearFlags.provider != "" {
				if err := mirror.Purge(ctx, cacheClearFlags.provider); err != nil {
					logg.Fatal("Failed to purge mirrored icons", zap.Error(err))
				}
				logg.Info("Mirrored icons purged", zap.String("provider", cacheClearFlags.provider))
			}
		}
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print row counts for every cache table",
	Run: func(cmd *cobra.Command, args []string) {
		_, logg, db := openCache()
		defer logg.Sync()

		for _, table := range models.TableNames() {
			var count int64
			if err := db.Table(table).Count(&count).Error; err != nil {
				logg.Fatal("Failed to count rows", zap.String("table", table), zap.Error(err))
			}
			fmt.Printf("%-25s %d\n", table, count)
		}
	},
}

var cacheVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the cache schema against the expected tables",
	Run: func(cmd *cobra.Command, args []string) {
		_, logg, db := openCache()
		defer logg.Sync()

		missing, err := database.VerifyTables(db, models.TableNames())
		if err != nil {
			logg.Fatal("Failed to inspect schema", zap.Error(err))
		}
		if len(missing) > 0 {
			logg.Fatal("Schema drift detected", zap.Strings("missing_tables", missing))
		}

		for _, table := range models.TableNames() {
			columns, err := database.GetTableColumns(db, table)
			if err != nil {
				logg.Fatal("Failed to inspect table", zap.String("table", table), zap.Error(err))
			}
			logg.Info("Table verified", zap.String("table", table), zap.Int("columns", len(columns)))
		}
	},
}

// openCache loads config and opens the cache database. Maintenance commands
// have no degraded mode; an unavailable cache is fatal.
func openCache() (*config.Config, *zap.Logger, *gorm.DB) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logg, err := logger.New(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	db, err := database.Connect(cfg.Database)
	if err != nil {
		logg.Fatal("Failed to open cache database", zap.Error(err))
	}
	if err := achievementstore.Migrate(db); err != nil {
		logg.Fatal("Failed to migrate cache schema", zap.Error(err))
	}
	return cfg, logg, db
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheClearFlags.provider, "provider", "", "provider key of the title to clear")
	cacheClearCmd.Flags().StringVar(&cacheClearFlags.game, "game", "", "provider game id of the title to clear")
	cacheClearCmd.Flags().BoolVar(&cacheClearFlags.all, "all", false, "clear the entire cache")
	cacheClearCmd.Flags().BoolVar(&cacheClearFlags.icons, "icons", false, "also purge mirrored icons for --provider")
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheVerifyCmd)
	RootCmd.AddCommand(cacheCmd)
}
