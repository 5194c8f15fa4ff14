package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/shashiranjanraj/kashvi-shop/app/models"
	"github.com/shashiranjanraj/kashvi-shop/app/repositories"
	"github.com/shashiranjanraj/kashvi-shop/config"
	"github.com/shashiranjanraj/kashvi-shop/pkg/cache"
	"github.com/shashiranjanraj/kashvi-shop/pkg/database"
	"github.com/shashiranjanraj/kashvi-shop/pkg/event"
	"github.com/shashiranjanraj/kashvi-shop/pkg/logger"
	"github.com/shashiranjanraj/kashvi-shop/pkg/metrics"
)

const maxIdempotencyKeyLen = 100

// Shipping is the delivery information copied onto the order header.
type Shipping struct {
	Method  string `json:"method"`
	Address string `json:"address"`
}

// LineItem is one requested (product, variant, quantity) tuple. UnitPrice is
// the price the client displayed; when set it must equal the catalog price.
type LineItem struct {
	ProductID  uint             `json:"product_id"`
	Descriptor Descriptor       `json:"descriptor"`
	Quantity   int              `json:"quantity"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty"`
}

// PlaceOrderInput is a cart ready to be turned into an order.
type PlaceOrderInput struct {
	Shipping       Shipping
	Items          []LineItem
	IdempotencyKey string
}

// OrderOption configures an OrderService.
type OrderOption func(*OrderService)

// WithInitialStatus overrides ORDER_INITIAL_STATUS.
func WithInitialStatus(s models.OrderStatus) OrderOption {
	return func(o *OrderService) { o.initialStatus = s }
}

// WithMaxLines overrides ORDER_MAX_LINES.
func WithMaxLines(n int) OrderOption {
	return func(o *OrderService) { o.maxLines = n }
}

// OrderService places, lists and updates orders.
type OrderService struct {
	db            *gorm.DB
	products      *repositories.ProductRepository
	orders        *repositories.OrderRepository
	resolver      *StockResolver
	initialStatus models.OrderStatus
	maxLines      int
}

func NewOrderService(db *gorm.DB, opts ...OrderOption) *OrderService {
	products := repositories.NewProductRepository(db)
	s := &OrderService{
		db:            db,
		products:      products,
		orders:        repositories.NewOrderRepository(db),
		resolver:      NewStockResolver(products),
		initialStatus: models.OrderStatus(config.OrderInitialStatus()),
		maxLines:      config.OrderMaxLines(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// resolvedLine pairs a request line with the record it resolved to.
type resolvedLine struct {
	item   LineItem
	record *StockRecord
}

func recordKey(r *StockRecord) string {
	if r.VariantID != nil {
		return fmt.Sprintf("v%d", *r.VariantID)
	}
	return fmt.Sprintf("p%d", r.ProductID)
}

// PlaceOrder resolves every line, checks availability for the summed
// quantity of each record, decrements in line order and stores the order,
// all in one transaction. On any error nothing is written.
//
// With an idempotency key, a repeat of an already placed order returns that
// order and moves no stock.
func (s *OrderService) PlaceOrder(ctx context.Context, req Requester, in PlaceOrderInput) (*models.Order, error) {
	log := logger.WithCtx(ctx)
	start := time.Now()

	order, levels, replayed, err := s.placeOrder(ctx, req, in)
	if err != nil {
		metrics.RecordOrderRejection(RejectionReason(err))
		log.Warn("order rejected", "user_id", req.UserID, "lines", len(in.Items), "error", err)
		return nil, err
	}
	if replayed {
		log.Info("order replayed", "order_id", order.ID, "order_number", order.OrderNumber)
		return order, nil
	}

	metrics.OrderPlacementDuration.Observe(time.Since(start).Seconds())
	metrics.OrdersPlaced.WithLabelValues(string(order.Status)).Inc()
	for _, it := range order.Items {
		kind := KindProduct
		if it.VariantID != nil {
			kind = KindVariant
		}
		metrics.StockDecrements.WithLabelValues(string(kind)).Add(float64(it.Quantity))
	}
	log.Info("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", order.UserID,
		"total", order.TotalAmount.StringFixed(2),
		"lines", len(order.Items),
	)

	s.afterCommit(ctx, order, levels)
	return order, nil
}

func (s *OrderService) placeOrder(ctx context.Context, req Requester, in PlaceOrderInput) (*models.Order, []StockLevel, bool, error) {
	if err := s.validate(req, in); err != nil {
		return nil, nil, false, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	hash := fingerprint(in)

	var (
		order    *models.Order
		levels   []StockLevel
		replayed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		products := s.products.WithTx(tx)

		if key != "" {
			existing, err := orders.FindByIdempotencyKey(ctx, req.UserID, key)
			switch {
			case err == nil:
				if err := sameRequest(existing, hash); err != nil {
					return err
				}
				order, replayed = existing, true
				return nil
			case !errors.Is(err, gorm.ErrRecordNotFound):
				return persistence("load order by idempotency key", err)
			}
		}

		lines := make([]resolvedLine, 0, len(in.Items))
		for _, item := range in.Items {
			rec, err := s.resolver.Resolve(ctx, tx, item.ProductID, item.Descriptor, ResolveOptions{RequireActive: true})
			if err != nil {
				return err
			}
			lines = append(lines, resolvedLine{item: item, record: rec})
		}

		var err error
		if levels, err = checkAvailability(lines); err != nil {
			return err
		}

		for _, l := range lines {
			if err := decrement(ctx, products, l); err != nil {
				return err
			}
		}

		order = s.buildOrder(req, in.Shipping, key, lines)
		order.RequestHash = hash
		if err := orders.Create(ctx, order); err != nil {
			return err
		}
		return nil
	})

	if err != nil && key != "" && database.IsDuplicateKey(err) {
		// Lost a race with a concurrent retry of the same request.
		existing, ferr := s.orders.FindByIdempotencyKey(ctx, req.UserID, key)
		if ferr == nil {
			if err := sameRequest(existing, hash); err != nil {
				return nil, nil, false, err
			}
			return existing, nil, true, nil
		}
	}
	if err != nil {
		if isDomainError(err) {
			return nil, nil, false, err
		}
		return nil, nil, false, persistence("place order", err)
	}
	return order, levels, replayed, nil
}

func (s *OrderService) validate(req Requester, in PlaceOrderInput) error {
	if !req.Authenticated() {
		return invalid("user", "an authenticated requester is required")
	}
	if len(in.Items) == 0 {
		return invalid("items", "at least one line item is required")
	}
	if s.maxLines > 0 && len(in.Items) > s.maxLines {
		return invalid("items", "at most %d line items are allowed", s.maxLines)
	}
	if len(strings.TrimSpace(in.IdempotencyKey)) > maxIdempotencyKeyLen {
		return invalid("idempotency_key", "must be at most %d characters", maxIdempotencyKeyLen)
	}
	for i, item := range in.Items {
		if item.ProductID == 0 {
			return invalid(fmt.Sprintf("items[%d].product_id", i), "is required")
		}
		if item.Quantity < 1 {
			return invalid(fmt.Sprintf("items[%d].quantity", i), "must be at least 1, got %d", item.Quantity)
		}
		if item.UnitPrice != nil && item.UnitPrice.IsNegative() {
			return invalid(fmt.Sprintf("items[%d].unit_price", i), "must not be negative")
		}
	}
	return nil
}

// fingerprint hashes the cart as the client sent it. Descriptors are
// compared the way the resolver compares them, case-insensitively.
func fingerprint(in PlaceOrderInput) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\n", strings.TrimSpace(in.Shipping.Method), strings.TrimSpace(in.Shipping.Address))
	for _, it := range in.Items {
		d := it.Descriptor.normalized()
		unit := ""
		if it.UnitPrice != nil {
			unit = it.UnitPrice.StringFixed(2)
		}
		fmt.Fprintf(h, "%d\x00%s\x00%s\x00%s\x00%d\x00%s\n", it.ProductID,
			strings.ToLower(d.Color), strings.ToLower(d.Storage), strings.ToLower(d.Label), it.Quantity, unit)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// sameRequest rejects a reused idempotency key whose cart differs from the
// one that placed existing. Orders stored without a fingerprint replay.
func sameRequest(existing *models.Order, hash string) error {
	if existing.RequestHash == "" || existing.RequestHash == hash {
		return nil
	}
	return invalid("idempotency_key", "already used for order %s with a different cart", existing.OrderNumber)
}

// checkAvailability sums the requested quantity per record and compares it
// with the stock read in this transaction. It also rejects stale cart
// prices. Levels are returned in first-seen line order.
func checkAvailability(lines []resolvedLine) ([]StockLevel, error) {
	requested := make(map[string]int, len(lines))
	for _, l := range lines {
		requested[recordKey(l.record)] += l.item.Quantity
	}

	seen := make(map[string]bool, len(lines))
	levels := make([]StockLevel, 0, len(requested))
	for i, l := range lines {
		rec := l.record
		if l.item.UnitPrice != nil && !l.item.UnitPrice.Equal(rec.UnitPrice) {
			return nil, invalid(fmt.Sprintf("items[%d].unit_price", i),
				"price of %s (%s) changed from %s to %s", rec.ProductName, rec.Label,
				l.item.UnitPrice.StringFixed(2), rec.UnitPrice.StringFixed(2))
		}

		k := recordKey(rec)
		if seen[k] {
			continue
		}
		seen[k] = true

		if want := requested[k]; want > rec.Available {
			return nil, &InsufficientStockError{
				ProductID:   rec.ProductID,
				VariantID:   rec.VariantID,
				ProductName: rec.ProductName,
				Label:       rec.Label,
				Requested:   want,
				Available:   rec.Available,
			}
		}
		levels = append(levels, StockLevel{
			Kind:        rec.Kind,
			ProductID:   rec.ProductID,
			VariantID:   rec.VariantID,
			ProductName: rec.ProductName,
			Label:       rec.Label,
			Remaining:   rec.Available - requested[k],
		})
	}
	return levels, nil
}

// decrement applies the guarded update for one line. The guard only fails
// if another writer got in between the read and the write, which row locks
// or the immediate transaction rule out on supported drivers.
func decrement(ctx context.Context, products *repositories.ProductRepository, l resolvedLine) error {
	var (
		ok  bool
		err error
	)
	if l.record.VariantID != nil {
		ok, err = products.DecrementVariantStock(ctx, *l.record.VariantID, l.item.Quantity)
	} else {
		ok, err = products.DecrementProductStock(ctx, l.record.ProductID, l.item.Quantity)
	}
	if err != nil {
		return persistence("decrement stock", err)
	}
	if ok {
		return nil
	}

	var available int
	if l.record.VariantID != nil {
		v, ferr := products.FindVariant(ctx, l.record.ProductID, *l.record.VariantID)
		if ferr != nil {
			return persistence("reload stock", ferr)
		}
		available = v.Stock
	} else {
		p, ferr := products.FindWithVariants(ctx, l.record.ProductID, false)
		if ferr != nil {
			return persistence("reload stock", ferr)
		}
		available = p.Stock
	}
	return &InsufficientStockError{
		ProductID:   l.record.ProductID,
		VariantID:   l.record.VariantID,
		ProductName: l.record.ProductName,
		Label:       l.record.Label,
		Requested:   l.item.Quantity,
		Available:   available,
	}
}

func (s *OrderService) buildOrder(req Requester, ship Shipping, key string, lines []resolvedLine) *models.Order {
	order := &models.Order{
		OrderNumber:     uuid.NewString(),
		UserID:          req.UserID,
		Status:          s.initialStatus,
		ShippingMethod:  strings.TrimSpace(ship.Method),
		ShippingAddress: strings.TrimSpace(ship.Address),
		Items:           make([]models.OrderItem, 0, len(lines)),
	}
	if key != "" {
		order.IdempotencyKey = &key
	}
	for _, l := range lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:   l.record.ProductID,
			VariantID:   l.record.VariantID,
			ProductName: l.record.ProductName,
			VariantName: l.record.Label,
			Quantity:    l.item.Quantity,
			UnitPrice:   l.record.UnitPrice,
		})
	}
	order.RecomputeTotal()
	return order
}

// afterCommit invalidates cached products and fires order.placed. Nothing
// here can fail the placement.
func (s *OrderService) afterCommit(ctx context.Context, order *models.Order, levels []StockLevel) {
	done := make(map[uint]bool, len(levels))
	for _, l := range levels {
		if done[l.ProductID] {
			continue
		}
		done[l.ProductID] = true
		if err := cache.Forget(ctx, ProductCacheKey(l.ProductID)); err != nil {
			logger.WithCtx(ctx).Warn("product cache invalidation failed", "product_id", l.ProductID, "error", err)
		}
	}
	event.FireAsync(EventOrderPlaced, OrderPlaced{Order: *order, Levels: levels})
}

// ListOrders returns every order for staff and the requester's own orders
// otherwise, newest first.
func (s *OrderService) ListOrders(ctx context.Context, req Requester) ([]models.Order, error) {
	if !req.Authenticated() {
		return nil, invalid("user", "an authenticated requester is required")
	}

	var (
		orders []models.Order
		err    error
	)
	if req.CanViewAllOrders() {
		orders, err = s.orders.ListAll(ctx)
	} else {
		orders, err = s.orders.ListByUser(ctx, req.UserID)
	}
	if err != nil {
		return nil, persistence("list orders", err)
	}
	return orders, nil
}

// GetOrder applies the ListOrders visibility rule to a single order. Orders
// the requester may not see are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, req Requester, id uint) (*models.Order, error) {
	if !req.Authenticated() {
		return nil, invalid("user", "an authenticated requester is required")
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
		}
		return nil, persistence("load order", err)
	}
	if order.UserID != req.UserID && !req.CanViewAllOrders() {
		return nil, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	return order, nil
}

// UpdateStatus overwrites an order's status. Any known status may follow any
// other; cancelling does not return stock.
func (s *OrderService) UpdateStatus(ctx context.Context, req Requester, id uint, status models.OrderStatus) (*models.Order, error) {
	if !req.CanManageOrders() {
		return nil, ErrForbidden
	}
	if !status.Valid() {
		return nil, invalid("status", "unknown order status %q", status)
	}

	var (
		order *models.Order
		from  models.OrderStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)

		o, err := orders.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
			}
			return persistence("load order", err)
		}
		from = o.Status

		ok, err := orders.UpdateStatus(ctx, id, status)
		if err != nil {
			return persistence("update order status", err)
		}
		if !ok {
			return fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
		}
		o.Status = status
		order = o
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			return nil, err
		}
		return nil, persistence("update order status", err)
	}

	logger.WithCtx(ctx).Info("order status updated", "order_id", id, "from", from, "to", status, "by", req.UserID)
	event.FireAsync(EventOrderStatusChanged, OrderStatusChanged{OrderID: id, UserID: order.UserID, From: from, To: status})
	return order, nil
}

func isDomainError(err error) bool {
	for _, target := range []error{
		ErrProductNotFound, ErrVariantNotFound, ErrInsufficientStock, ErrInvalidRequest,
		ErrPersistence, ErrOrderNotFound, ErrForbidden, ErrDuplicateSKU, ErrDuplicateVariant,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
