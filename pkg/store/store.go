package store

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"BranchChat/pkg/logger"
)

// Options selects and tunes the backing database.
type Options struct {
	Driver string // sqlite, mysql, postgres
	DSN    string
	Debug  bool
}

// Open connects to the configured database. Timestamps written by gorm are
// always UTC so string-typed datetime columns (sqlite) order correctly.
func Open(opts Options, log *logger.Logger) (*gorm.DB, error) {
	opts.Driver = normalizeDriver(opts.Driver)
	dialector, err := dialectorFor(opts)
	if err != nil {
		return nil, err
	}
	level := gormLogger.Warn
	if opts.Debug {
		level = gormLogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  gormLogger.Default.LogMode(level),
	})
	if err != nil {
		log.Error("failed to connect database", "driver", opts.Driver, "error", err)
		return nil, fmt.Errorf("connect %s: %w", opts.Driver, err)
	}
	if opts.Driver == "sqlite" {
		// sqlite allows a single writer; serialise through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	log.Info("database connected", "driver", opts.Driver)
	return db, nil
}

// normalizeDriver lowercases the driver name; empty means sqlite.
func normalizeDriver(driver string) string {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		return "sqlite"
	}
	return driver
}

func dialectorFor(opts Options) (gorm.Dialector, error) {
	switch normalizeDriver(opts.Driver) {
	case "sqlite":
		return sqlite.Open(sqliteDSN(opts.DSN)), nil
	case "mysql":
		return mysql.Open(opts.DSN), nil
	case "postgres":
		return postgres.Open(opts.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

// sqliteDSN turns on foreign key enforcement, which sqlite leaves off per connection.
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "app.db"
	}
	if strings.Contains(dsn, "_foreign_keys") || strings.Contains(dsn, "_fk=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_foreign_keys=1"
}
