package config

import (
	"reflect"
	"strings"

	"trophy-manager/core/database"
	"trophy-manager/core/logger"
	"trophy-manager/core/server"
	"trophy-manager/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Server holds configuration for the HTTP server.
	Server server.Config `mapstructure:"server"`
	// Storage holds configuration for the icon mirror object storage.
	Storage storage.Config `mapstructure:"storage"`
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Database holds configuration for the achievement cache database.
	Database database.Config `mapstructure:"database"`
	// Refresh holds configuration for refresh batches.
	Refresh RefreshConfig `mapstructure:"refresh"`
	// Providers holds per-provider enablement and rate limits.
	Providers ProvidersConfig `mapstructure:"providers"`
}

// RefreshConfig controls refresh batch defaults.
type RefreshConfig struct {
	// QuickCount is the number of recently played titles a quick scan targets.
	QuickCount int `mapstructure:"quick_count" default:"10"`
	// IncludeUnplayed lets quick scans pick titles with no recorded play time.
	IncludeUnplayed bool `mapstructure:"include_unplayed" default:"false"`
	// Workers bounds concurrent provider calls in flight.
	Workers int `mapstructure:"workers" default:"4"`
	// Sequential forces per-provider sequential execution for every batch.
	Sequential bool `mapstructure:"sequential" default:"false"`
	// LibraryFile is an optional JSON export of the host library, consulted
	// by scan-mode predicates. Empty disables library-aware modes.
	LibraryFile string `mapstructure:"library_file" default:""`
}

// ProvidersConfig controls which achievement providers participate in scans.
type ProvidersConfig struct {
	// Enabled is a comma-separated list of provider keys. Empty enables all.
	Enabled string `mapstructure:"enabled" default:""`
	// RatePerSecond caps outbound fetches per provider. Zero disables limiting.
	RatePerSecond float64 `mapstructure:"rate_per_second" default:"0"`
	// Burst is the limiter burst size when rate limiting is enabled.
	Burst int `mapstructure:"burst" default:"1"`
	// SnapshotDir is the root directory of exported provider payloads. One
	// subdirectory per provider key, one "<gameID>.json" file per title.
	SnapshotDir string `mapstructure:"snapshot_dir" default:"snapshots"`
}

// EnabledKeys returns the parsed provider enable-list, or nil when all
// providers are enabled.
func (p ProvidersConfig) EnabledKeys() []string {
	if strings.TrimSpace(p.Enabled) == "" {
		return nil
	}
	parts := strings.Split(p.Enabled, ",")
	keys := make([]string, 0, len(parts))
	for _, part := range parts {
		if key := strings.TrimSpace(part); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	// We construct the path to .env
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. SERVER_PORT -> server.port)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
