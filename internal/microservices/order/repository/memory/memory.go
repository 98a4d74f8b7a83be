// Package memory is an in-process order store for tests. It enforces the
// same stock guards and unit-of-work semantics as the Postgres repository.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/repository"
)

// OrderRepository keeps everything in process. Transactions are fully
// serialized: WithinTx holds the lock for the whole unit of work and only
// publishes the working copy if fn returns nil.
type OrderRepository struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time

	// Fault, when set, is consulted before every transactional operation and
	// can abort the unit of work midway.
	Fault func(op string) error
}

type memState struct {
	products    map[int64]dao.Product
	ingredients map[int64]dao.Ingredient
	recipes     map[int64][]dao.RecipeEntry
	orders      map[int64]dao.Order
	statusLog   []dao.StatusLogEntry

	orderSeq   int64
	nextOrder  int64
	nextItem   int64
	nextLogRow int64
}

func New() *OrderRepository {
	return &OrderRepository{
		state: &memState{
			products:    make(map[int64]dao.Product),
			ingredients: make(map[int64]dao.Ingredient),
			recipes:     make(map[int64][]dao.RecipeEntry),
			orders:      make(map[int64]dao.Order),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source used for timestamps.
func (m *OrderRepository) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *OrderRepository) SeedProduct(p dao.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	p.CreatedAt, p.UpdatedAt = now, now
	m.state.products[p.ID] = p
}

func (m *OrderRepository) SeedIngredient(in dao.Ingredient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	in.CreatedAt, in.UpdatedAt = now, now
	m.state.ingredients[in.ID] = in
}

func (m *OrderRepository) SeedRecipe(e dao.RecipeEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.recipes[e.ProductID] = append(m.state.recipes[e.ProductID], e)
}

// RetireProduct soft-deletes a product the way the catalog admin would.
func (m *OrderRepository) RetireProduct(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.state.products[id]; ok {
		now := m.now()
		p.DeletedAt = &now
		m.state.products[id] = p
	}
}

// OrderCount counts persisted orders, deleted ones included.
func (m *OrderRepository) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.orders)
}

func (m *OrderRepository) WithinTx(ctx context.Context, fn func(tx repository.TxInterface) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(&memTx{s: work, now: m.now(), fault: m.Fault}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *OrderRepository) GetOrder(_ context.Context, id int64) (dao.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok || o.DeletedAt != nil {
		return dao.Order{}, fmt.Errorf("%w: id %d", dao.ErrOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *OrderRepository) ListOrders(_ context.Context, filter dao.OrderFilter) ([]dao.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []dao.Order
	for _, o := range m.state.orders {
		if o.DeletedAt != nil {
			continue
		}
		if filter.Phone != "" && o.CustomerPhone != filter.Phone {
			continue
		}
		if filter.CustomerID != nil && (o.CustomerID == nil || *o.CustomerID != *filter.CustomerID) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *OrderRepository) Timeline(_ context.Context, orderID int64) ([]dao.StatusLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dao.StatusLogEntry
	for _, e := range m.state.statusLog {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *OrderRepository) GetStock(_ context.Context, kind dao.StockKind, id int64) (dao.StockItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.stock(kind, id)
}

func (m *OrderRepository) SoftDeleteOrder(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.state.orders[id]
	if !ok || o.DeletedAt != nil {
		return fmt.Errorf("%w: id %d", dao.ErrOrderNotFound, id)
	}
	now := m.now()
	o.DeletedAt = &now
	m.state.orders[id] = o
	return nil
}

type memTx struct {
	s     *memState
	now   time.Time
	fault func(op string) error
}

func (t *memTx) check(op string) error {
	if t.fault == nil {
		return nil
	}
	return t.fault(op)
}

func (t *memTx) LockProducts(_ context.Context, ids []int64) (map[int64]dao.Product, error) {
	if err := t.check("LockProducts"); err != nil {
		return nil, err
	}
	out := make(map[int64]dao.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.s.products[id]; ok && p.DeletedAt == nil {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) LockIngredients(_ context.Context, ids []int64) (map[int64]dao.Ingredient, error) {
	if err := t.check("LockIngredients"); err != nil {
		return nil, err
	}
	out := make(map[int64]dao.Ingredient, len(ids))
	for _, id := range ids {
		if in, ok := t.s.ingredients[id]; ok && in.DeletedAt == nil {
			out[id] = in
		}
	}
	return out, nil
}

func (t *memTx) Recipes(_ context.Context, productIDs []int64) (map[int64][]dao.RecipeEntry, error) {
	if err := t.check("Recipes"); err != nil {
		return nil, err
	}
	out := make(map[int64][]dao.RecipeEntry, len(productIDs))
	for _, id := range productIDs {
		if entries := t.s.recipes[id]; len(entries) > 0 {
			out[id] = append([]dao.RecipeEntry(nil), entries...)
		}
	}
	return out, nil
}

func (t *memTx) LockStock(_ context.Context, kind dao.StockKind, id int64) (dao.StockItem, error) {
	if err := t.check("LockStock"); err != nil {
		return dao.StockItem{}, err
	}
	return t.s.stock(kind, id)
}

func (t *memTx) Decrement(_ context.Context, kind dao.StockKind, id int64, amount decimal.Decimal) error {
	if err := t.check("Decrement"); err != nil {
		return err
	}
	item, err := t.s.stock(kind, id)
	if err != nil {
		return err
	}
	if item.Stock.LessThan(amount) {
		return &dao.InsufficientStockError{Shortfalls: []dao.Shortfall{{
			Kind: kind, ID: id, Name: item.Name, Required: amount, Available: item.Stock,
		}}}
	}
	return t.s.addStock(kind, id, amount.Neg(), t.now)
}

func (t *memTx) Increment(_ context.Context, kind dao.StockKind, id int64, amount decimal.Decimal) error {
	if err := t.check("Increment"); err != nil {
		return err
	}
	return t.s.addStock(kind, id, amount, t.now)
}

func (t *memTx) NextOrderSequence(context.Context) (int64, error) {
	if err := t.check("NextOrderSequence"); err != nil {
		return 0, err
	}
	t.s.orderSeq++
	return t.s.orderSeq, nil
}

func (t *memTx) OrderNumberExists(_ context.Context, number string) (bool, error) {
	if err := t.check("OrderNumberExists"); err != nil {
		return false, err
	}
	for _, o := range t.s.orders {
		if o.OrderNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *dao.Order) error {
	if err := t.check("InsertOrder"); err != nil {
		return err
	}
	if exists, _ := t.OrderNumberExists(ctx, order.OrderNumber); exists {
		return fmt.Errorf("%w: %s", dao.ErrDuplicateOrderNumber, order.OrderNumber)
	}
	t.s.nextOrder++
	order.ID = t.s.nextOrder
	order.CreatedAt, order.UpdatedAt = t.now, t.now
	for i := range order.Items {
		t.s.nextItem++
		order.Items[i].ID = t.s.nextItem
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = t.now
	}
	t.s.orders[order.ID] = cloneOrder(*order)
	t.s.appendLog(order.ID, order.Status, "order-service", "", t.now)
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id int64) (dao.Order, error) {
	if err := t.check("LockOrder"); err != nil {
		return dao.Order{}, err
	}
	o, ok := t.s.orders[id]
	if !ok || o.DeletedAt != nil {
		return dao.Order{}, fmt.Errorf("%w: id %d", dao.ErrOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (t *memTx) SetOrderStatus(_ context.Context, id int64, status dao.Status, changedBy, notes string) error {
	if err := t.check("SetOrderStatus"); err != nil {
		return err
	}
	o, ok := t.s.orders[id]
	if !ok {
		return fmt.Errorf("%w: id %d", dao.ErrOrderNotFound, id)
	}
	o.Status = status
	o.UpdatedAt = t.now
	t.s.orders[id] = o
	t.s.appendLog(id, status, changedBy, notes, t.now)
	return nil
}

func (s *memState) stock(kind dao.StockKind, id int64) (dao.StockItem, error) {
	switch kind {
	case dao.KindProduct:
		p, ok := s.products[id]
		if !ok || p.DeletedAt != nil {
			return dao.StockItem{}, dao.NotFound(kind, id)
		}
		return dao.StockItem{Kind: kind, ID: id, Name: p.Name, Stock: decimal.NewFromInt(int64(p.Stock))}, nil
	case dao.KindIngredient:
		in, ok := s.ingredients[id]
		if !ok || in.DeletedAt != nil {
			return dao.StockItem{}, dao.NotFound(kind, id)
		}
		return dao.StockItem{Kind: kind, ID: id, Name: in.Name, Unit: in.Unit, Stock: in.Stock}, nil
	}
	return dao.StockItem{}, fmt.Errorf("unknown stock kind %q", kind)
}

// addStock applies delta without a lower bound; callers guard decrements.
// Soft-deleted rows still accept restorations.
func (s *memState) addStock(kind dao.StockKind, id int64, delta decimal.Decimal, now time.Time) error {
	switch kind {
	case dao.KindProduct:
		p, ok := s.products[id]
		if !ok {
			return dao.NotFound(kind, id)
		}
		p.Stock += int(delta.IntPart())
		p.UpdatedAt = now
		s.products[id] = p
		return nil
	case dao.KindIngredient:
		in, ok := s.ingredients[id]
		if !ok {
			return dao.NotFound(kind, id)
		}
		in.Stock = in.Stock.Add(delta)
		in.UpdatedAt = now
		s.ingredients[id] = in
		return nil
	}
	return fmt.Errorf("unknown stock kind %q", kind)
}

func (s *memState) appendLog(orderID int64, status dao.Status, changedBy, notes string, at time.Time) {
	s.nextLogRow++
	s.statusLog = append(s.statusLog, dao.StatusLogEntry{
		ID: s.nextLogRow, OrderID: orderID, Status: status, ChangedBy: changedBy, ChangedAt: at, Notes: notes,
	})
}

func (s *memState) clone() *memState {
	c := *s
	c.products = make(map[int64]dao.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.ingredients = make(map[int64]dao.Ingredient, len(s.ingredients))
	for k, v := range s.ingredients {
		c.ingredients[k] = v
	}
	c.recipes = make(map[int64][]dao.RecipeEntry, len(s.recipes))
	for k, v := range s.recipes {
		c.recipes[k] = append([]dao.RecipeEntry(nil), v...)
	}
	c.orders = make(map[int64]dao.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = cloneOrder(v)
	}
	c.statusLog = append([]dao.StatusLogEntry(nil), s.statusLog...)
	return &c
}

func cloneOrder(o dao.Order) dao.Order {
	o.Items = append([]dao.OrderItem(nil), o.Items...)
	return o
}
