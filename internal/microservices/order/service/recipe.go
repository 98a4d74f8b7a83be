package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/repository"
)

// Line is one (product, quantity) pair of an order, before or after it is
// persisted.
type Line struct {
	ProductID int64
	Quantity  int
}

// Requirements is the total stock an order consumes, per product and per
// ingredient.
type Requirements struct {
	Products    map[int64]decimal.Decimal
	Ingredients map[int64]decimal.Decimal
}

func newRequirements() Requirements {
	return Requirements{
		Products:    make(map[int64]decimal.Decimal),
		Ingredients: make(map[int64]decimal.Decimal),
	}
}

func (r Requirements) add(kind dao.StockKind, id int64, amount decimal.Decimal) {
	m := r.Products
	if kind == dao.KindIngredient {
		m = r.Ingredients
	}
	m[id] = m[id].Add(amount)
}

func (r Requirements) ProductIDs() []int64    { return sortedKeys(r.Products) }
func (r Requirements) IngredientIDs() []int64 { return sortedKeys(r.Ingredients) }

func sortedKeys(m map[int64]decimal.Decimal) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

type RecipeResolverInterface interface {
	// RequirementsFor lists the ingredients one unit of the product consumes.
	// A product without a recipe yields an empty list.
	RequirementsFor(ctx context.Context, tx repository.TxInterface, productID int64) ([]dao.RecipeEntry, error)
	// Resolve sums product and ingredient demand over all lines.
	Resolve(ctx context.Context, tx repository.TxInterface, lines []Line) (Requirements, error)
}

type RecipeResolver struct{}

func NewRecipeResolver() RecipeResolverInterface { return RecipeResolver{} }

func (RecipeResolver) RequirementsFor(ctx context.Context, tx repository.TxInterface, productID int64) ([]dao.RecipeEntry, error) {
	recipes, err := tx.Recipes(ctx, []int64{productID})
	if err != nil {
		return nil, err
	}
	if entries := recipes[productID]; entries != nil {
		return entries, nil
	}
	return []dao.RecipeEntry{}, nil
}

func (RecipeResolver) Resolve(ctx context.Context, tx repository.TxInterface, lines []Line) (Requirements, error) {
	req := newRequirements()
	for _, l := range lines {
		req.add(dao.KindProduct, l.ProductID, decimal.NewFromInt(int64(l.Quantity)))
	}

	recipes, err := tx.Recipes(ctx, req.ProductIDs())
	if err != nil {
		return Requirements{}, err
	}
	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.Quantity))
		for _, e := range recipes[l.ProductID] {
			req.add(dao.KindIngredient, e.IngredientID, e.Quantity.Mul(qty))
		}
	}
	return req, nil
}
