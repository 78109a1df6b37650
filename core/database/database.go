package database

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrCacheUnavailable indicates the cache database could not be opened or
// failed its liveness check. Callers are expected to degrade to fetch-only
// operation rather than terminate.
var ErrCacheUnavailable = errors.New("achievement cache unavailable")

// Connect establishes a connection to the cache database.
// The default driver is sqlite (single-file cache); mysql is supported for
// shared-host deployments. A failure never panics: corruption and version
// mismatch both surface as ErrCacheUnavailable.
func Connect(cfg Config) (*gorm.DB, error) {
	// Suppress GORM logging for cleaner optional warnings in main logger
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}

	var db *gorm.DB
	var err error

	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = cfg.Name
		}
		db, err = gorm.Open(sqlite.Open(path), gormConfig)
	case "mysql":
		// Special characters in the password must be URL encoded for the DSN.
		userInfo := url.UserPassword(cfg.User, cfg.Password).String()
		dsn := fmt.Sprintf("%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
			userInfo, cfg.Host, cfg.Port, cfg.Name, timeout, timeout, timeout)
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrCacheUnavailable, cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	// The cache is single-writer; sqlite serializes writes anyway, and a small
	// pool keeps readers from starving on mysql.
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Verify the connection with a context timeout.
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	return db, nil
}
