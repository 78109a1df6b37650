package cmd

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"trophy-manager/core/config"
	"trophy-manager/core/database"
	"trophy-manager/core/logger"
	"trophy-manager/feature/achievements"
	achievementstore "trophy-manager/feature/achievements/store"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the read-only achievement API server",
	Long:  `Starts the HTTP server exposing cached titles and unlock progress.`,
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
		zap.ReplaceGlobals(logg)

		// 3. Open the achievement cache
		db, err := database.Connect(cfg.Database)
		if err != nil {
			// The API has nothing to serve without the cache; unlike refresh
			// batches there is no degraded mode here.
			if errors.Is(err, database.ErrCacheUnavailable) {
				logg.Fatal("Achievement cache unavailable", zap.Error(err))
			}
			logg.Fatal("Failed to open cache database", zap.Error(err))
		}
		if err := achievementstore.Migrate(db); err != nil {
			logg.Fatal("Failed to migrate cache schema", zap.Error(err))
		}
		store := achievementstore.New(db)

		// 4. Initialize Fiber App
		app := fiber.New(fiber.Config{
			DisableStartupMessage: true, // We will log our own startup message
		})

		// Request logging; every request gets a ray id for log correlation
		app.Use(func(c *fiber.Ctx) error {
			c.Locals("ray_id", uuid.NewString())
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		// API key guard
		if cfg.Server.ApiKey != "" {
			app.Use(func(c *fiber.Ctx) error {
				if c.Get("X-Api-Key") != cfg.Server.ApiKey {
					return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
						"error": "invalid api key",
					})
				}
				return c.Next()
			})
		}

		// 5. Register routes
		service := achievements.NewService(store, logg, nil)
		handler := achievements.NewHandler(service)
		handler.RegisterRoutes(app.Group("/api"))

		// 6. Start Server
		go func() {
			logg.Info("Starting server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 7. Graceful Shutdown
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		logg.Info("Shutting down server...")
		_ = app.Shutdown()
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
