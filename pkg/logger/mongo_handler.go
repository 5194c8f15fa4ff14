package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	mongoQueueSize = 4096
	mongoBatchSize = 50
	mongoFlushTick = 2 * time.Second
	mongoOpTimeout = 5 * time.Second
)

// LogDocument is one record in the log collection. request_id, order_id
// and product_id are lifted out of the attributes and indexed so an
// order's trail can be pulled with a single query.
type LogDocument struct {
	Time      time.Time `bson:"time"`
	Level     string    `bson:"level"`
	Msg       string    `bson:"msg"`
	RequestID string    `bson:"request_id,omitempty"`
	OrderID   any       `bson:"order_id,omitempty"`
	ProductID any       `bson:"product_id,omitempty"`
	Attrs     bson.M    `bson:"attrs,omitempty"`
}

// inserter is the part of *mongo.Collection the sink writes through.
type inserter interface {
	InsertMany(ctx context.Context, docs []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
}

// mongoSink is shared by every handler derived through WithAttrs/WithGroup.
type mongoSink struct {
	col     inserter
	queue   chan LogDocument
	done    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
	dropped atomic.Int64
	failed  atomic.Int64
	onClose func()
}

// MongoHandler is a slog.Handler that batches records into MongoDB from a
// single background goroutine. Logging never blocks: when the queue is
// full the record is dropped and counted.
type MongoHandler struct {
	sink   *mongoSink
	level  slog.Level
	attrs  []slog.Attr
	prefix string
}

// NewMongoHandler connects to uri and writes INFO and above into
// db.collection. Close must be called to flush on shutdown.
func NewMongoHandler(uri, db, collection string) (*MongoHandler, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).
		SetConnectTimeout(5*time.Second).
		SetServerSelectionTimeout(5*time.Second).
		SetMaxPoolSize(10))
	if err != nil {
		return nil, fmt.Errorf("logger/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("logger/mongo: ping: %w", err)
	}

	col := client.Database(db).Collection(collection)
	_, _ = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "time", Value: -1}}},
		{Keys: bson.D{{Key: "order_id", Value: 1}}, Options: options.Index().SetSparse(true)},
		{Keys: bson.D{{Key: "request_id", Value: 1}}, Options: options.Index().SetSparse(true)},
	})

	h := newMongoHandler(col, slog.LevelInfo, mongoQueueSize)
	h.sink.onClose = func() {
		ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
		defer cancel()
		_ = client.Disconnect(ctx)
	}
	return h, nil
}

func newMongoHandler(col inserter, level slog.Level, queueSize int) *MongoHandler {
	s := &mongoSink{
		col:   col,
		queue: make(chan LogDocument, queueSize),
		done:  make(chan struct{}),
	}
	s.stopped.Add(1)
	go s.run()
	return &MongoHandler{sink: s, level: level}
}

func (h *MongoHandler) Enabled(_ context.Context, l slog.Level) bool { return l >= h.level }

func (h *MongoHandler) Handle(_ context.Context, r slog.Record) error {
	doc := LogDocument{Time: r.Time, Level: r.Level.String(), Msg: r.Message, Attrs: bson.M{}}
	for _, a := range h.attrs {
		doc.add(a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		doc.add(a, h.prefix)
		return true
	})

	select {
	case h.sink.queue <- doc:
	default:
		h.sink.dropped.Add(1)
	}
	return nil
}

func (d *LogDocument) add(a slog.Attr, prefix string) {
	switch a.Key {
	case "request_id":
		d.RequestID = a.Value.String()
	case "order_id":
		d.OrderID = a.Value.Any()
	case "product_id":
		d.ProductID = a.Value.Any()
	default:
		d.Attrs[prefix+a.Key] = a.Value.Any()
	}
}

// WithAttrs bakes the current group prefix into the keys so a later
// WithGroup does not move them.
func (h *MongoHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		switch a.Key {
		case "request_id", "order_id", "product_id":
		default:
			a.Key = h.prefix + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

// WithGroup flattens the group into a dotted key prefix.
func (h *MongoHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

func (s *mongoSink) run() {
	defer s.stopped.Done()
	ticker := time.NewTicker(mongoFlushTick)
	defer ticker.Stop()

	batch := make([]interface{}, 0, mongoBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
		defer cancel()
		if _, err := s.col.InsertMany(ctx, batch); err != nil {
			s.failed.Add(int64(len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case doc := <-s.queue:
			if batch = append(batch, doc); len(batch) >= mongoBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			for {
				select {
				case doc := <-s.queue:
					if batch = append(batch, doc); len(batch) >= mongoBatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Dropped counts records discarded because the queue was full; Failed
// counts records lost to insert errors.
func (h *MongoHandler) Dropped() int64 { return h.sink.dropped.Load() }

func (h *MongoHandler) Failed() int64 { return h.sink.failed.Load() }

// Close flushes what is queued, then disconnects. Safe to call twice.
func (h *MongoHandler) Close() {
	h.sink.once.Do(func() {
		close(h.sink.done)
		h.sink.stopped.Wait()
		if h.sink.onClose != nil {
			h.sink.onClose()
		}
	})
}

// MultiHandler sends each record to every handler that wants it.
type MultiHandler struct {
	handlers []slog.Handler
}

func NewMultiHandler(hs ...slog.Handler) *MultiHandler {
	return &MultiHandler{handlers: hs}
}

func (m *MultiHandler) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

// Handle reports the first handler error but still feeds the rest.
func (m *MultiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (m *MultiHandler) WithGroup(name string) slog.Handler {
	return m.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (m *MultiHandler) each(f func(slog.Handler) slog.Handler) *MultiHandler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = f(h)
	}
	return &MultiHandler{handlers: hs}
}
