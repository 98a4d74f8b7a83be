package dao

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// StockKind tells the ledger which table a stock row lives in.
type StockKind string

const (
	KindProduct    StockKind = "product"
	KindIngredient StockKind = "ingredient"
)

func (k StockKind) Valid() bool {
	return k == KindProduct || k == KindIngredient
}

// Column limits: products.stock is INTEGER, ingredients.stock NUMERIC(12,3).
var (
	maxProductStock    = decimal.NewFromInt(math.MaxInt32)
	maxIngredientStock = decimal.RequireFromString("999999999.999")
)

const ingredientScale = 3

// MaxStock is the largest quantity a row of this kind can hold.
func (k StockKind) MaxStock() decimal.Decimal {
	if k == KindProduct {
		return maxProductStock
	}
	return maxIngredientStock
}

// Representable reports whether amount fits the kind's column without
// rounding: whole units for products, at most three decimals for ingredients.
func (k StockKind) Representable(amount decimal.Decimal) bool {
	if amount.GreaterThan(k.MaxStock()) {
		return false
	}
	if k == KindProduct {
		return amount.Equal(amount.Truncate(0))
	}
	return amount.Equal(amount.Truncate(ingredientScale))
}

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Available bool            `json:"available"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *time.Time      `json:"-"`
}

type Ingredient struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Unit      string          `json:"unit"`
	Stock     decimal.Decimal `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	DeletedAt *time.Time      `json:"-"`
}

// RecipeEntry is one line of a product's bill of materials: Quantity of the
// ingredient consumed per unit of product sold.
type RecipeEntry struct {
	ProductID    int64           `json:"product_id"`
	IngredientID int64           `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// StockItem is the ledger's view of a product or ingredient row.
type StockItem struct {
	Kind  StockKind       `json:"kind"`
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Unit  string          `json:"unit,omitempty"`
	Stock decimal.Decimal `json:"stock"`
}
