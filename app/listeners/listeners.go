// Package listeners fans committed domain events out to the low-stock
// queue, the websocket stock feed and Kafka.
package listeners

import (
	"context"
	"fmt"
	"time"

	"github.com/shashiranjanraj/kashvi-shop/app/jobs"
	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/services"
	"github.com/shashiranjanraj/kashvi-shop/pkg/event"
	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/queue"
)

const publishTimeout = 5 * time.Second

// StockFeed is satisfied by *ws.Hub.
type StockFeed interface {
	Publish(typ string, data interface{})
}

// Publisher is satisfied by *broker.Publisher.
type Publisher interface {
	Publish(ctx context.Context, eventType, key string, v interface{}) error
}

// Deps are the sinks events are delivered to. Nil sinks are skipped.
type Deps struct {
	Feed              StockFeed
	Broker            Publisher
	LowStockThreshold int
	// Dispatch defaults to queue.Dispatch.
	Dispatch func(ctx context.Context, job queue.Job) error
}

// Register subscribes the listeners. Call once at boot.
func Register(d Deps) {
	if d.Dispatch == nil {
		d.Dispatch = queue.Dispatch
	}
	event.Listen(services.EventOrderPlaced, d.onOrderPlaced)
	event.Listen(services.EventStockChanged, d.onStockChanged)
	event.Listen(services.EventOrderStatusChanged, d.onStatusChanged)
}

func (d Deps) onOrderPlaced(payload interface{}) {
	ev, ok := payload.(services.OrderPlaced)
	if !ok {
		return
	}
	for _, l := range ev.Levels {
		d.publishLevel(l)
		d.alertIfLow(context.Background(), l)
	}
	d.publish(services.EventOrderPlaced, ev.Order.OrderNumber, ev)
}

func (d Deps) onStockChanged(payload interface{}) {
	ev, ok := payload.(services.StockChanged)
	if !ok {
		return
	}
	d.publishLevel(ev.Level)
	if ev.Delta < 0 {
		d.alertIfLow(context.Background(), ev.Level)
	}
	d.publish(services.EventStockChanged, stockKey(ev.Level), ev)
}

func (d Deps) onStatusChanged(payload interface{}) {
	ev, ok := payload.(services.OrderStatusChanged)
	if !ok {
		return
	}
	logger.Info("order status changed", "order_id", ev.OrderID, "from", ev.From, "to", ev.To)
	d.publish(services.EventOrderStatusChanged, fmt.Sprint(ev.OrderID), ev)
}

func (d Deps) publishLevel(l services.StockLevel) {
	if d.Feed != nil {
		d.Feed.Publish(services.EventStockChanged, l)
	}
}

// LowStockLister is satisfied by *services.CatalogService.
type LowStockLister interface {
	LowStock(ctx context.Context, req services.Requester, threshold int) ([]services.StockLevel, error)
}

// Sweep returns a scheduled task that queues an alert for every record at
// or below the threshold, catching stock that drifted low without an event.
func (d Deps) Sweep(catalog LowStockLister) func(ctx context.Context) {
	if d.Dispatch == nil {
		d.Dispatch = queue.Dispatch
	}
	sweeper := services.Requester{Role: models.RoleStaff}
	return func(ctx context.Context) {
		levels, err := catalog.LowStock(ctx, sweeper, d.LowStockThreshold)
		if err != nil {
			logger.Error("low stock sweep failed", "error", err)
			return
		}
		for _, l := range levels {
			d.alertIfLow(ctx, l)
		}
		logger.Info("low stock sweep finished", "low", len(levels))
	}
}

func (d Deps) alertIfLow(ctx context.Context, l services.StockLevel) {
	if l.Remaining > d.LowStockThreshold {
		return
	}
	job := &jobs.LowStockAlert{
		ProductID:   l.ProductID,
		VariantID:   l.VariantID,
		ProductName: l.ProductName,
		Label:       l.Label,
		Remaining:   l.Remaining,
		Threshold:   d.LowStockThreshold,
	}
	if err := d.Dispatch(ctx, job); err != nil {
		logger.Error("low stock alert not queued", "product_id", l.ProductID, "error", err)
	}
}

func (d Deps) publish(eventType, key string, v interface{}) {
	if d.Broker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := d.Broker.Publish(ctx, eventType, key, v); err != nil {
		logger.Error("event not published", "event", eventType, "key", key, "error", err)
	}
}

func stockKey(l services.StockLevel) string {
	if l.VariantID != nil {
		return fmt.Sprintf("%d/%d", l.ProductID, *l.VariantID)
	}
	return fmt.Sprint(l.ProductID)
}
