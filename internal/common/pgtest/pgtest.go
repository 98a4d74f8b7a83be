// Package pgtest gives integration tests a migrated, empty Postgres database.
// Tests using it are skipped unless PIZZERIA_TEST_DATABASE_URL is set.
package pgtest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pizzeria-system/internal/migrations"
)

const EnvURL = "PIZZERIA_TEST_DATABASE_URL"

// packages run in parallel under go test, so each test holds this lock while
// it owns the tables
const lockKey = 7_246_001

// Open applies migrations, takes the database lock for the rest of the test
// and empties every table.
func Open(t testing.TB) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(EnvURL)
	if dsn == "" {
		t.Skipf("%s is not set", EnvURL)
	}
	ctx := context.Background()

	_, err := migrations.Up(dsn)
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, lockKey)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, lockKey)
		conn.Release()
	})

	_, err = pool.Exec(ctx, `
		TRUNCATE workers, order_status_log, order_items, orders, product_ingredients, ingredients, products
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `ALTER SEQUENCE order_number_seq RESTART WITH 1`)
	require.NoError(t, err)
	return pool
}

func SeedProduct(t testing.TB, pool *pgxpool.Pool, name, price string, stock int) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO products (name, price, stock) VALUES ($1, $2, $3) RETURNING id
	`, name, decimal.RequireFromString(price), stock).Scan(&id)
	require.NoError(t, err)
	return id
}

func SeedIngredient(t testing.TB, pool *pgxpool.Pool, name, unit, stock string) int64 {
	t.Helper()
	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO ingredients (name, unit, stock) VALUES ($1, $2, $3) RETURNING id
	`, name, unit, decimal.RequireFromString(stock)).Scan(&id)
	require.NoError(t, err)
	return id
}

func SeedRecipe(t testing.TB, pool *pgxpool.Pool, productID, ingredientID int64, quantity string) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO product_ingredients (product_id, ingredient_id, quantity) VALUES ($1, $2, $3)
	`, productID, ingredientID, decimal.RequireFromString(quantity))
	require.NoError(t, err)
}
