// Package server boots the shop: connections, background workers, event
// listeners and the HTTP and gRPC listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shashiranjanraj/kashvi-shop/app/jobs"
	"github.com/shashiranjanraj/kashvi-shop/app/listeners"
	"github.com/shashiranjanraj/kashvi-shop/app/routes"
	"github.com/shashiranjanraj/kashvi-shop/app/schema"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/internal/kernel"
	"github.com/shashiranjanraj/kashvi-shop/pkg/broker"
	"github.com/shashiranjanraj/kashvi-shop/pkg/cache"
	"github.com/shashiranjanraj/kashvi-shop/pkg/database"
	"github.com/shashiranjanraj/kashvi-shop/pkg/event"
	"github.com/shashiranjanraj/kashvi-shop/pkg/grpc"
	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/notification"
	"github.com/shashiranjanraj/kashvi-shop/pkg/queue"
	"github.com/shashiranjanraj/kashvi-shop/pkg/router"
	"github.com/shashiranjanraj/kashvi-shop/pkg/schedule"
	"github.com/shashiranjanraj/kashvi-shop/pkg/storage"
	"github.com/shashiranjanraj/kashvi-shop/pkg/workerpool"
	"github.com/shashiranjanraj/kashvi-shop/pkg/ws"
)

const (
	eventPoolSize   = 16
	shutdownTimeout = 15 * time.Second
	logMongoDB      = "kshop"
	logMongoColl    = "logs"
)

// Backend holds the connections and background machinery shared by the
// serve and queue:work commands.
type Backend struct {
	Hub     *ws.Hub
	pool    *workerpool.Pool
	broker  *broker.Publisher
	events  listeners.Deps
	closers []func()
}

// Boot loads config, connects the database, the cache and the storage
// disks, selects the queue driver and registers the jobs and event
// listeners. Redis, Mongo and Kafka are optional; failures are logged and
// the shop runs without them.
func Boot(ctx context.Context) (*Backend, error) {
	if err := config.Load(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.Connect(); err != nil {
		return nil, err
	}

	b := &Backend{Hub: ws.NewHub()}

	if uri := config.LogMongoURI(); uri != "" {
		flush, err := logger.AttachMongo(uri, logMongoDB, logMongoColl)
		if err != nil {
			logger.Warn("mongo log sink disabled", "error", err)
		} else {
			b.closers = append(b.closers, flush)
		}
	}

	if err := cache.Connect(ctx); err != nil {
		logger.Warn("redis unavailable, running without cache", "error", err)
	}
	if config.QueueDriver() == "redis" && cache.RDB != nil {
		queue.SetDriver(queue.NewRedisDriver(ctx, cache.RDB))
	} else {
		queue.SetDriver(queue.NewMemoryDriver())
	}
	queue.UseDB(database.DB)

	storage.Connect(ctx)

	b.pool = workerpool.New(eventPoolSize)
	event.UsePool(b.pool)

	notification.SetSlackWebhook(config.SlackWebhookURL())
	jobs.Register()

	deps := listeners.Deps{
		Feed:              b.Hub,
		LowStockThreshold: config.LowStockThreshold(),
	}
	if brokers := config.KafkaBrokers(); len(brokers) > 0 {
		b.broker = broker.NewKafkaPublisher(brokers, config.KafkaOrderTopic())
		deps.Broker = b.broker
		logger.Info("publishing domain events to kafka", "brokers", strings.Join(brokers, ","), "topic", config.KafkaOrderTopic())
	}
	listeners.Register(deps)
	b.events = deps

	return b, nil
}

// Close stops the event pool and flushes the Kafka writer and log sink.
func (b *Backend) Close() {
	event.UsePool(nil)
	if b.pool != nil {
		b.pool.Close()
	}
	if b.broker != nil {
		if err := b.broker.Close(); err != nil {
			logger.Warn("kafka writer close", "error", err)
		}
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Routes returns the route registration for the booted services.
func (b *Backend) Routes() (func(*router.Router), error) {
	disk, err := storage.Default()
	if err != nil {
		logger.Warn("image uploads disabled", "error", err)
	}

	orders := services.NewOrderService(database.DB)
	catalog := services.NewCatalogService(database.DB, disk)
	sch, err := schema.New(orders, catalog)
	if err != nil {
		return nil, fmt.Errorf("graphql schema: %w", err)
	}

	deps := routes.Deps{
		Auth:      services.NewAuthService(database.DB),
		Orders:    orders,
		Catalog:   catalog,
		StockFeed: b.Hub,
		Schema:    &sch,
	}
	return func(r *router.Router) {
		routes.RegisterAPI(r, deps)
		if config.StorageDefault() == "local" {
			files := http.StripPrefix("/storage/", http.FileServer(http.Dir(config.StorageLocalRoot())))
			r.Handle("/storage/*", "storage", files)
		}
	}, nil
}

// Start serves HTTP (and gRPC when GRPC_PORT is set) until ctx is done,
// then drains in-flight requests and background workers.
func Start(ctx context.Context) error {
	b, err := Boot(ctx)
	if err != nil {
		return err
	}
	defer b.Close()

	register, err := b.Routes()
	if err != nil {
		return err
	}
	handler := kernel.NewHTTPKernel(database.Ping, register).Handler()

	workCtx, stopWork := context.WithCancel(context.Background())
	var hubDone sync.WaitGroup
	hubDone.Add(1)
	go func() {
		defer hubDone.Done()
		b.Hub.Run(workCtx)
	}()
	workers := queue.StartWorkers(workCtx, config.QueueWorkers())

	sched := schedule.New()
	if every := config.LowStockSweepInterval(); every > 0 {
		sweep := b.events.Sweep(services.NewCatalogService(database.DB, nil))
		sched.Every(every).Name("low-stock-sweep").WithoutOverlapping().Run(sweep)
	}
	sched.Start(workCtx)

	if port := config.GRPCPort(); port != "" {
		srv, err := grpc.Start(port, database.Ping)
		if err != nil {
			stopWork()
			return err
		}
		defer grpc.Stop(srv)
	}

	httpSrv := &http.Server{
		Addr:              ":" + config.AppPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("kshop listening", "addr", httpSrv.Addr, "env", config.AppEnv(), "db", config.DatabaseDriver())
		serveErr <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stopWork()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	stopWork()
	workers.Wait()
	sched.Wait()
	hubDone.Wait()
	return nil
}
