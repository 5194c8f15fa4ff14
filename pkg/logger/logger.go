// Package logger holds the process logger. Production writes JSON to
// stdout; everything else writes text. Handlers that need the request id
// on every line pull the request-scoped logger out of the context:
//
//	log := logger.WithCtx(ctx)
//	log.Info("order placed", "order_id", order.ID, "total", order.TotalAmount)
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/shashiranjanraj/kashvi-shop/config"
)

var (
	L    *slog.Logger
	base slog.Handler
	mu   sync.Mutex
)

func init() {
	out := os.Stdout
	if config.AppEnv() == "test" {
		out = os.Stderr
	}
	base = newHandler(config.AppEnv(), config.LogLevel(), out)
	L = slog.New(base)
	slog.SetDefault(L)
}

func newHandler(env, level string, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(level, env)}
	if env == "production" || env == "prod" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func parseLevel(level, env string) slog.Level {
	var l slog.Level
	if level != "" && l.UnmarshalText([]byte(level)) == nil {
		return l
	}
	switch env {
	case "production", "prod":
		return slog.LevelInfo
	case "test":
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

// AttachMongo tees every record into MongoDB next to the console handler.
// Call the returned func on shutdown to flush.
func AttachMongo(uri, db, collection string) (func(), error) {
	h, err := NewMongoHandler(uri, db, collection)
	if err != nil {
		return func() {}, err
	}

	mu.Lock()
	defer mu.Unlock()
	L = slog.New(NewMultiHandler(base, h))
	slog.SetDefault(L)
	return h.Close, nil
}

type ctxKey struct{}

// WithCtx returns the logger the HTTP middleware stored in ctx, falling
// back to L.
func WithCtx(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if log, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && log != nil {
			return log
		}
	}
	return L
}

func InjectLogger(ctx context.Context, log *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, log)
}

func Debug(msg string, args ...any) { L.Debug(msg, args...) }

func Info(msg string, args ...any) { L.Info(msg, args...) }

func Warn(msg string, args ...any) { L.Warn(msg, args...) }

func Error(msg string, args ...any) { L.Error(msg, args...) }
