package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"pizzeria-system/internal/microservices/order/domain/dao"
)

const (
	uniqueViolation       = "23505"
	orderNumberConstraint = "orders_order_number_key"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) OrderRepositoryInterface {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithinTx(ctx context.Context, fn func(tx TxInterface) error) (err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, id int64) (dao.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, selectOrder+` WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		return dao.Order{}, orderErr(err, id)
	}
	items, err := loadItems(ctx, r.pool, []int64{id})
	if err != nil {
		return dao.Order{}, err
	}
	order.Items = items[id]
	return order, nil
}

func (r *OrderRepository) ListOrders(ctx context.Context, filter dao.OrderFilter) ([]dao.Order, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "deleted_at IS NULL")
	if filter.Phone != "" {
		args = append(args, filter.Phone)
		where = append(where, fmt.Sprintf("customer_phone = $%d", len(args)))
	}
	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		where = append(where, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	// LIMIT NULL means no limit
	var limit any
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	args = append(args, limit, filter.Offset)
	query := fmt.Sprintf("%s WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d",
		selectOrder, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}
	defer rows.Close()

	var (
		orders []dao.Order
		ids    []int64
	)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan order")
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list orders")
	}

	items, err := loadItems(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *OrderRepository) Timeline(ctx context.Context, orderID int64) ([]dao.StatusLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_id, status, changed_by, changed_at, notes
		FROM order_status_log WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load timeline of order %d", orderID)
	}
	defer rows.Close()

	var out []dao.StatusLogEntry
	for rows.Next() {
		var e dao.StatusLogEntry
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &e.ChangedBy, &e.ChangedAt, &e.Notes); err != nil {
			return nil, errors.Wrap(err, "failed to scan status log entry")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "failed to load timeline")
}

func (r *OrderRepository) GetStock(ctx context.Context, kind dao.StockKind, id int64) (dao.StockItem, error) {
	return readStock(ctx, r.pool, kind, id)
}

func (r *OrderRepository) SoftDeleteOrder(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", dao.ErrOrderNotFound, id)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockProducts(ctx context.Context, ids []int64) (map[int64]dao.Product, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, price, stock, available, created_at, updated_at
		FROM products
		WHERE id = ANY($1) AND deleted_at IS NULL
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock products")
	}
	defer rows.Close()

	out := make(map[int64]dao.Product, len(ids))
	for rows.Next() {
		var p dao.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Available, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan product")
		}
		out[p.ID] = p
	}
	return out, errors.Wrap(rows.Err(), "failed to lock products")
}

func (t *pgTx) LockIngredients(ctx context.Context, ids []int64) (map[int64]dao.Ingredient, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, name, unit, stock, created_at, updated_at
		FROM ingredients
		WHERE id = ANY($1) AND deleted_at IS NULL
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock ingredients")
	}
	defer rows.Close()

	out := make(map[int64]dao.Ingredient, len(ids))
	for rows.Next() {
		var in dao.Ingredient
		if err := rows.Scan(&in.ID, &in.Name, &in.Unit, &in.Stock, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan ingredient")
		}
		out[in.ID] = in
	}
	return out, errors.Wrap(rows.Err(), "failed to lock ingredients")
}

func (t *pgTx) Recipes(ctx context.Context, productIDs []int64) (map[int64][]dao.RecipeEntry, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT product_id, ingredient_id, quantity
		FROM product_ingredients
		WHERE product_id = ANY($1)
		ORDER BY product_id, ingredient_id
	`, productIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recipes")
	}
	defer rows.Close()

	out := make(map[int64][]dao.RecipeEntry)
	for rows.Next() {
		var e dao.RecipeEntry
		if err := rows.Scan(&e.ProductID, &e.IngredientID, &e.Quantity); err != nil {
			return nil, errors.Wrap(err, "failed to scan recipe entry")
		}
		out[e.ProductID] = append(out[e.ProductID], e)
	}
	return out, errors.Wrap(rows.Err(), "failed to load recipes")
}

func (t *pgTx) LockStock(ctx context.Context, kind dao.StockKind, id int64) (dao.StockItem, error) {
	return selectStock(ctx, t.tx, kind, id, " FOR UPDATE")
}

func (t *pgTx) Decrement(ctx context.Context, kind dao.StockKind, id int64, amount decimal.Decimal) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch kind {
	case dao.KindProduct:
		tag, err = t.tx.Exec(ctx, `
			UPDATE products SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND deleted_at IS NULL AND stock >= $1
		`, amount.IntPart(), id)
	case dao.KindIngredient:
		tag, err = t.tx.Exec(ctx, `
			UPDATE ingredients SET stock = stock - $1, updated_at = now()
			WHERE id = $2 AND deleted_at IS NULL AND stock >= $1
		`, amount, id)
	default:
		return fmt.Errorf("unknown stock kind %q", kind)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to decrement %s %d", kind, id)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Nothing updated: either the row is gone or the guard rejected it.
	item, err := readStock(ctx, t.tx, kind, id)
	if err != nil {
		return err
	}
	return &dao.InsufficientStockError{Shortfalls: []dao.Shortfall{{
		Kind: kind, ID: id, Name: item.Name, Required: amount, Available: item.Stock,
	}}}
}

func (t *pgTx) Increment(ctx context.Context, kind dao.StockKind, id int64, amount decimal.Decimal) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch kind {
	case dao.KindProduct:
		tag, err = t.tx.Exec(ctx, `UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2`, amount.IntPart(), id)
	case dao.KindIngredient:
		tag, err = t.tx.Exec(ctx, `UPDATE ingredients SET stock = stock + $1, updated_at = now() WHERE id = $2`, amount, id)
	default:
		return fmt.Errorf("unknown stock kind %q", kind)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to increment %s %d", kind, id)
	}
	if tag.RowsAffected() == 0 {
		return dao.NotFound(kind, id)
	}
	return nil
}

func (t *pgTx) NextOrderSequence(ctx context.Context) (int64, error) {
	var n int64
	if err := t.tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to get next order sequence")
	}
	return n, nil
}

func (t *pgTx) OrderNumberExists(ctx context.Context, number string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`, number).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "failed to check order number")
	}
	return exists, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, order *dao.Order) error {
	// 1. Insert order
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders
		    (order_number, customer_id, employee_id, sale_type, payment_method, customer_name, customer_phone,
		     customer_email, customer_notes, internal_notes, subtotal, discount, total, status, created_at, updated_at)
		VALUES
		    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`,
		order.OrderNumber,
		order.CustomerID,
		order.EmployeeID,
		order.SaleType,
		order.PaymentMethod,
		order.CustomerName,
		order.CustomerPhone,
		order.CustomerEmail,
		order.CustomerNotes,
		order.InternalNotes,
		order.Subtotal,
		order.Discount,
		order.Total,
		order.Status,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == orderNumberConstraint {
			return fmt.Errorf("%w: %s", dao.ErrDuplicateOrderNumber, order.OrderNumber)
		}
		return errors.Wrap(err, "failed to insert order")
	}

	// 2. Insert order items
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = order.ID
		err = t.tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, product_name, unit_price, quantity, subtotal, notes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			RETURNING id, created_at
		`, order.ID, item.ProductID, item.ProductName, item.UnitPrice, item.Quantity, item.Subtotal, item.Notes,
		).Scan(&item.ID, &item.CreatedAt)
		if err != nil {
			return errors.Wrapf(err, "failed to insert order item %s", item.ProductName)
		}
	}

	// 3. Insert into order_status_log
	_, err = t.tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at, notes)
		VALUES ($1, $2, 'order-service', NOW(), '')
	`, order.ID, order.Status)
	return errors.Wrap(err, "failed to insert order status log")
}

func (t *pgTx) LockOrder(ctx context.Context, id int64) (dao.Order, error) {
	order, err := scanOrder(t.tx.QueryRow(ctx, selectOrder+` WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id))
	if err != nil {
		return dao.Order{}, orderErr(err, id)
	}
	items, err := loadItems(ctx, t.tx, []int64{id})
	if err != nil {
		return dao.Order{}, err
	}
	order.Items = items[id]
	return order, nil
}

func (t *pgTx) SetOrderStatus(ctx context.Context, id int64, status dao.Status, changedBy, notes string) error {
	tag, err := t.tx.Exec(ctx, `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return errors.Wrapf(err, "failed to update status of order %d", id)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", dao.ErrOrderNotFound, id)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, status, changed_by, changed_at, notes)
		VALUES ($1, $2, $3, now(), $4)
	`, id, status, changedBy, notes)
	return errors.Wrap(err, "failed to insert order status log")
}

const selectOrder = `
	SELECT id, order_number, customer_id, employee_id, sale_type, payment_method, customer_name, customer_phone,
	       customer_email, customer_notes, internal_notes, subtotal, discount, total, status, created_at, updated_at
	FROM orders`

func scanOrder(row rowScanner) (dao.Order, error) {
	var o dao.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.CustomerID, &o.EmployeeID, &o.SaleType, &o.PaymentMethod, &o.CustomerName,
		&o.CustomerPhone, &o.CustomerEmail, &o.CustomerNotes, &o.InternalNotes, &o.Subtotal, &o.Discount,
		&o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func loadItems(ctx context.Context, q querier, orderIDs []int64) (map[int64][]dao.OrderItem, error) {
	out := make(map[int64][]dao.OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, product_name, unit_price, quantity, subtotal, notes, created_at
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, id
	`, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load order items")
	}
	defer rows.Close()

	for rows.Next() {
		var it dao.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.UnitPrice, &it.Quantity,
			&it.Subtotal, &it.Notes, &it.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan order item")
		}
		out[it.OrderID] = append(out[it.OrderID], it)
	}
	return out, errors.Wrap(rows.Err(), "failed to load order items")
}

func readStock(ctx context.Context, q querier, kind dao.StockKind, id int64) (dao.StockItem, error) {
	return selectStock(ctx, q, kind, id, "")
}

func selectStock(ctx context.Context, q querier, kind dao.StockKind, id int64, lock string) (dao.StockItem, error) {
	item := dao.StockItem{Kind: kind, ID: id}

	var err error
	switch kind {
	case dao.KindProduct:
		var stock int
		err = q.QueryRow(ctx, `SELECT name, stock FROM products WHERE id = $1 AND deleted_at IS NULL`+lock, id).
			Scan(&item.Name, &stock)
		item.Stock = decimal.NewFromInt(int64(stock))
	case dao.KindIngredient:
		err = q.QueryRow(ctx, `SELECT name, unit, stock FROM ingredients WHERE id = $1 AND deleted_at IS NULL`+lock, id).
			Scan(&item.Name, &item.Unit, &item.Stock)
	default:
		return dao.StockItem{}, fmt.Errorf("unknown stock kind %q", kind)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return dao.StockItem{}, dao.NotFound(kind, id)
	}
	if err != nil {
		return dao.StockItem{}, errors.Wrapf(err, "failed to read %s stock %d", kind, id)
	}
	return item, nil
}

func orderErr(err error, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: id %d", dao.ErrOrderNotFound, id)
	}
	return errors.Wrapf(err, "failed to load order %d", id)
}
