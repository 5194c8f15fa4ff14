// Package database owns the GORM connection. Four dialects are supported;
// only postgres and mysql take row locks during order placement, the others
// rely on their own write serialization.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
)

const (
	maxOpenConns    = 25
	maxIdleConns    = 10
	connMaxLifetime = 5 * time.Minute
	connMaxIdleTime = 2 * time.Minute

	slowQuery = 200 * time.Millisecond
)

var DB *gorm.DB

var dialects = map[string]func(dsn string) gorm.Dialector{
	"sqlite":    sqlite.Open,
	"postgres":  postgres.Open,
	"mysql":     mysql.Open,
	"sqlserver": sqlserver.Open,
}

// Connect opens the configured database, sizes its pool, pings it and
// stores it in DB.
func Connect() error {
	db, err := Open(config.DatabaseDriver(), config.DatabaseDSN())
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database: ping %s: %w", config.DatabaseDriver(), err)
	}
	DB = db
	return nil
}

// Open returns a connection without touching DB. Unique-key violations
// surface as gorm.ErrDuplicatedKey.
func Open(driver, dsn string) (*gorm.DB, error) {
	open, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("database: unsupported DB_DRIVER %q (sqlite, postgres, mysql, sqlserver)", driver)
	}
	db, err := gorm.Open(open(dsn), &gorm.Config{
		Logger:         queryLogger{},
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driver, err)
	}
	return db, nil
}

func Ping() error {
	if DB == nil {
		return errors.New("database: not connected")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// SupportsRowLocks reports whether SELECT ... FOR UPDATE works on db.
func SupportsRowLocks(db *gorm.DB) bool {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return true
	}
	return false
}

// queryLogger sends GORM's slow queries and real errors to the request
// logger. Not-found lookups are expected and stay quiet.
type queryLogger struct{}

func (l queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (queryLogger) Info(context.Context, string, ...interface{}) {}

func (queryLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	logger.WithCtx(ctx).Warn("gorm: " + fmt.Sprintf(msg, args...))
}

func (queryLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	logger.WithCtx(ctx).Error("gorm: " + fmt.Sprintf(msg, args...))
}

func (queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, gorm.ErrDuplicatedKey)
	if !failed && elapsed < slowQuery {
		return
	}
	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if failed {
		logger.WithCtx(ctx).LogAttrs(ctx, slog.LevelError, "query failed", append(attrs, slog.String("error", err.Error()))...)
		return
	}
	logger.WithCtx(ctx).LogAttrs(ctx, slog.LevelWarn, "slow query", attrs...)
}
