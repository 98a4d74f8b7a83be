package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/domain/dto"
	"pizzeria-system/internal/microservices/order/repository"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100

	// recentWindow is how long a delivered or cancelled order still shows up
	// in a phone lookup.
	recentWindow = 24 * time.Hour

	systemActor        = "order-service"
	maxNumberCollision = 5
)

type OrderServiceInterface interface {
	CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (dao.Order, error)
	CancelOrder(ctx context.Context, id int64, changedBy string) (dao.Order, error)
	AdvanceStatus(ctx context.Context, id int64, to dao.Status, changedBy string) (dao.Order, error)

	GetOrder(ctx context.Context, id int64) (dao.Order, error)
	ListOrders(ctx context.Context, filter dao.OrderFilter) ([]dao.Order, error)
	FindByPhone(ctx context.Context, phone string) ([]dao.Order, error)
	FindByCustomer(ctx context.Context, customerID int64) ([]dao.Order, error)
	Timeline(ctx context.Context, id int64) ([]dao.StatusLogEntry, error)
	DeleteOrder(ctx context.Context, id int64) error
}

// OrderService coordinates every order mutation. Stock checks, order rows and
// stock deltas of one request always share a single transaction.
type OrderService struct {
	db      repository.OrderRepositoryInterface
	ledger  StockLedgerInterface
	recipes RecipeResolverInterface
	events  EventPublisherInterface
	log     *logger.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*OrderService)

// WithClock replaces time.Now for order numbers and the phone lookup window.
func WithClock(now func() time.Time) Option {
	return func(s *OrderService) { s.now = now }
}

func NewOrderService(db repository.OrderRepositoryInterface, ledger StockLedgerInterface, recipes RecipeResolverInterface,
	events EventPublisherInterface, log *logger.Logger, opts ...Option) OrderServiceInterface {
	s := &OrderService{
		db:      db,
		ledger:  ledger,
		recipes: recipes,
		events:  events,
		log:     log,
		tracer:  otel.Tracer("pizzeria-system/order"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.events == nil {
		s.events = NopPublisher{}
	}
	return s
}

func (s *OrderService) CreateOrder(ctx context.Context, req dto.CreateOrderRequest) (dao.Order, error) {
	ctx, span := s.tracer.Start(ctx, "order.create")
	defer span.End()
	log := logger.FromContext(ctx, s.log)

	req.Normalize()
	if err := req.Validate(); err != nil {
		recordErr(span, err)
		return dao.Order{}, err
	}
	span.SetAttributes(attribute.Int("order.lines", len(req.Items)))

	var order dao.Order
	err := s.db.WithinTx(ctx, func(tx repository.TxInterface) error {
		var err error
		order, err = s.createInTx(ctx, tx, &req)
		return err
	})
	if err != nil {
		err = txErr("create order", err)
		recordErr(span, err)
		s.logFailure(log, "order_create_failed", err, map[string]any{"customer_phone": req.CustomerPhone})
		return dao.Order{}, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID), attribute.String("order.number", order.OrderNumber))
	log.Info("order_created", map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"total":        order.Total.String(),
		"lines":        len(order.Items),
	})
	s.publish(ctx, log, order.OrderNumber, func(ctx context.Context) error {
		return s.events.OrderCreated(ctx, order)
	})
	return order, nil
}

func (s *OrderService) createInTx(ctx context.Context, tx repository.TxInterface, req *dto.CreateOrderRequest) (dao.Order, error) {
	if req.OrderNumber != "" {
		exists, err := tx.OrderNumberExists(ctx, req.OrderNumber)
		if err != nil {
			return dao.Order{}, err
		}
		if exists {
			return dao.Order{}, fmt.Errorf("%w: %s", dao.ErrDuplicateOrderNumber, req.OrderNumber)
		}
	}

	lines := make([]Line, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	productIDs := uniqueProductIDs(lines)

	products, err := tx.LockProducts(ctx, productIDs)
	if err != nil {
		return dao.Order{}, err
	}
	for _, id := range productIDs {
		p, ok := products[id]
		if !ok {
			return dao.Order{}, dao.NotFound(dao.KindProduct, id)
		}
		if !p.Available {
			return dao.Order{}, fmt.Errorf("%w: product %d %q is not available", dao.ErrInvalidOrder, id, p.Name)
		}
	}

	items, subtotal, err := priceItems(req.Items, products)
	if err != nil {
		return dao.Order{}, err
	}
	discount, total, err := totals(req, subtotal)
	if err != nil {
		return dao.Order{}, err
	}

	needs, err := s.recipes.Resolve(ctx, tx, lines)
	if err != nil {
		return dao.Order{}, err
	}
	if err := s.ledger.Check(ctx, tx, needs, products); err != nil {
		return dao.Order{}, err
	}

	number := req.OrderNumber
	if number == "" {
		if number, err = s.nextOrderNumber(ctx, tx); err != nil {
			return dao.Order{}, err
		}
	}

	order := dao.Order{
		OrderNumber:   number,
		CustomerID:    req.CustomerID,
		EmployeeID:    req.EmployeeID,
		SaleType:      req.SaleType,
		PaymentMethod: req.PaymentMethod,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		CustomerNotes: req.CustomerNotes,
		InternalNotes: req.InternalNotes,
		Subtotal:      subtotal,
		Discount:      discount,
		Total:         total,
		Status:        dao.StatusPending,
		Items:         items,
	}
	if err := tx.InsertOrder(ctx, &order); err != nil {
		return dao.Order{}, err
	}
	if err := s.ledger.Apply(ctx, tx, needs); err != nil {
		return dao.Order{}, err
	}
	return order, nil
}

// nextOrderNumber draws from the sequence, skipping numbers a caller already
// used by hand.
func (s *OrderService) nextOrderNumber(ctx context.Context, tx repository.TxInterface) (string, error) {
	day := s.now().UTC().Format("20060102")
	for i := 0; i < maxNumberCollision; i++ {
		seq, err := tx.NextOrderSequence(ctx)
		if err != nil {
			return "", err
		}
		number := fmt.Sprintf("ORD-%s-%04d", day, seq)
		exists, err := tx.OrderNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
	}
	return "", fmt.Errorf("%w: no free number after %d attempts", dao.ErrDuplicateOrderNumber, maxNumberCollision)
}

// priceItems snapshots catalog names and prices onto the lines. Client
// supplied prices and subtotals must match what the catalog says.
func priceItems(in []dto.OrderItemInput, products map[int64]dao.Product) ([]dao.OrderItem, decimal.Decimal, error) {
	items := make([]dao.OrderItem, 0, len(in))
	subtotal := decimal.Zero
	for i, it := range in {
		p := products[it.ProductID]
		lineTotal := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		if it.UnitPrice != nil && !it.UnitPrice.Equal(p.Price) {
			return nil, decimal.Zero, fmt.Errorf("%w: items[%d]: unit_price %s does not match price %s of %q",
				dao.ErrInvalidOrder, i, it.UnitPrice, p.Price, p.Name)
		}
		if it.Subtotal != nil && !it.Subtotal.Equal(lineTotal) {
			return nil, decimal.Zero, fmt.Errorf("%w: items[%d]: subtotal %s, expected %s",
				dao.ErrInvalidOrder, i, it.Subtotal, lineTotal)
		}
		items = append(items, dao.OrderItem{
			ProductID:   p.ID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    it.Quantity,
			Subtotal:    lineTotal,
			Notes:       it.Notes,
		})
		subtotal = subtotal.Add(lineTotal)
	}
	return items, subtotal, nil
}

func totals(req *dto.CreateOrderRequest, subtotal decimal.Decimal) (discount, total decimal.Decimal, err error) {
	if req.Subtotal != nil && !req.Subtotal.Equal(subtotal) {
		return discount, total, fmt.Errorf("%w: subtotal %s, expected %s", dao.ErrInvalidOrder, req.Subtotal, subtotal)
	}
	discount = decimal.Zero
	if req.Discount != nil {
		discount = *req.Discount
	}
	if discount.IsNegative() || discount.GreaterThan(subtotal) {
		return discount, total, fmt.Errorf("%w: discount %s must be between 0 and subtotal %s",
			dao.ErrInvalidOrder, discount, subtotal)
	}
	total = subtotal.Sub(discount)
	if req.Total != nil && !req.Total.Equal(total) {
		return discount, total, fmt.Errorf("%w: total %s, expected %s", dao.ErrInvalidOrder, req.Total, total)
	}
	return discount, total, nil
}

func (s *OrderService) CancelOrder(ctx context.Context, id int64, changedBy string) (dao.Order, error) {
	return s.transition(ctx, "order.cancel", id, dao.StatusCancelled, changedBy)
}

// AdvanceStatus moves the order along one edge of the state machine. Moving to
// cancelled restores stock exactly like CancelOrder.
func (s *OrderService) AdvanceStatus(ctx context.Context, id int64, to dao.Status, changedBy string) (dao.Order, error) {
	if !to.Valid() {
		return dao.Order{}, fmt.Errorf("%w: unknown status %q", dao.ErrInvalidOrder, to)
	}
	if to == dao.StatusCancelled {
		return s.CancelOrder(ctx, id, changedBy)
	}
	return s.transition(ctx, "order.transition", id, to, changedBy)
}

func (s *OrderService) transition(ctx context.Context, spanName string, id int64, to dao.Status, changedBy string) (dao.Order, error) {
	ctx, span := s.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.Int64("order.id", id),
		attribute.String("order.status.to", string(to)),
	))
	defer span.End()
	log := logger.FromContext(ctx, s.log)

	if changedBy = strings.TrimSpace(changedBy); changedBy == "" {
		changedBy = systemActor
	}

	var (
		order dao.Order
		from  dao.Status
	)
	err := s.db.WithinTx(ctx, func(tx repository.TxInterface) error {
		o, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		from = o.Status
		if err := dao.Transition(o.Status, to); err != nil {
			return err
		}

		notes := ""
		if to == dao.StatusCancelled {
			needs, err := s.recipes.Resolve(ctx, tx, linesOf(o.Items))
			if err != nil {
				return err
			}
			if err := s.ledger.Restore(ctx, tx, needs); err != nil {
				return err
			}
			notes = "stock restored"
		}
		if err := tx.SetOrderStatus(ctx, id, to, changedBy, notes); err != nil {
			return err
		}
		o.Status = to
		o.UpdatedAt = s.now().UTC()
		order = o
		return nil
	})
	if err != nil {
		err = txErr(spanName, err)
		recordErr(span, err)
		s.logFailure(log, "order_transition_failed", err, map[string]any{
			"order_id": id, "from": string(from), "to": string(to),
		})
		return dao.Order{}, err
	}

	span.SetAttributes(attribute.String("order.status.from", string(from)))
	log.Info("order_status_changed", map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"from":         string(from),
		"to":           string(to),
		"changed_by":   changedBy,
	})
	s.publish(ctx, log, order.OrderNumber, func(ctx context.Context) error {
		return s.events.StatusChanged(ctx, order, from, changedBy)
	})
	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (dao.Order, error) {
	return s.db.GetOrder(ctx, id)
}

func (s *OrderService) ListOrders(ctx context.Context, filter dao.OrderFilter) ([]dao.Order, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultListLimit
	case filter.Limit > MaxListLimit:
		filter.Limit = MaxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.db.ListOrders(ctx, filter)
}

// FindByPhone returns the orders a walk-in customer is still waiting for,
// plus finished ones placed in the last day.
func (s *OrderService) FindByPhone(ctx context.Context, phone string) ([]dao.Order, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, fmt.Errorf("%w: phone is required", dao.ErrInvalidOrder)
	}
	orders, err := s.db.ListOrders(ctx, dao.OrderFilter{Phone: phone})
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-recentWindow)
	out := make([]dao.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status.Active() || o.CreatedAt.After(cutoff) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *OrderService) FindByCustomer(ctx context.Context, customerID int64) ([]dao.Order, error) {
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: customer id must be positive", dao.ErrInvalidOrder)
	}
	return s.db.ListOrders(ctx, dao.OrderFilter{CustomerID: &customerID})
}

func (s *OrderService) Timeline(ctx context.Context, id int64) ([]dao.StatusLogEntry, error) {
	if _, err := s.db.GetOrder(ctx, id); err != nil {
		return nil, err
	}
	return s.db.Timeline(ctx, id)
}

// DeleteOrder hides the order from every read. Stock is left as it is.
func (s *OrderService) DeleteOrder(ctx context.Context, id int64) error {
	if err := s.db.SoftDeleteOrder(ctx, id); err != nil {
		return err
	}
	logger.FromContext(ctx, s.log).Info("order_deleted", map[string]any{"order_id": id})
	return nil
}

// publish runs after commit. A failure is logged and never undoes the order.
func (s *OrderService) publish(ctx context.Context, log *logger.Logger, orderNumber string, fn func(context.Context) error) {
	if err := fn(context.WithoutCancel(ctx)); err != nil {
		log.Error("event_publish_failed", err, map[string]any{"order_number": orderNumber})
	}
}

func (s *OrderService) logFailure(log *logger.Logger, action string, err error, fields map[string]any) {
	if dao.IsBusiness(err) {
		fields["reason"] = err.Error()
		log.Warn(action, fields)
		return
	}
	log.Error(action, err, fields)
}

// txErr leaves domain errors untouched and wraps everything else, so callers
// can tell a rejected request from a failed store.
func txErr(op string, err error) error {
	if dao.IsBusiness(err) || errors.Is(err, dao.ErrTransactionFailed) {
		return err
	}
	return &dao.TxError{Op: op, Err: err}
}

func recordErr(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func uniqueProductIDs(lines []Line) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; !ok {
			seen[l.ProductID] = struct{}{}
			ids = append(ids, l.ProductID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func linesOf(items []dao.OrderItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}
