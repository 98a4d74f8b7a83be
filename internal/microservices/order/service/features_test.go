package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"testing"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"

	"pizzeria-system/internal/common/logger"
	"pizzeria-system/internal/microservices/order/domain/dao"
	"pizzeria-system/internal/microservices/order/domain/dto"
	"pizzeria-system/internal/microservices/order/repository"
	"pizzeria-system/internal/microservices/order/repository/memory"
)

var orderLine = regexp.MustCompile(`(\d+) "([^"]*)"`)

type inventoryTestContext struct {
	repo        *memory.OrderRepository
	svc         *Service
	products    map[string]int64
	ingredients map[string]int64
	nextID      int64

	order dao.Order
	err   error
}

func (c *inventoryTestContext) reset() {
	c.repo = memory.New()
	c.svc = New(repository.Repository{OrderRepo: c.repo}, NopPublisher{}, logger.NewNop())
	c.products = map[string]int64{}
	c.ingredients = map[string]int64{}
	c.nextID = 0
	c.order, c.err = dao.Order{}, nil
}

func (c *inventoryTestContext) aProductPricedWithStock(name, price string, stock int) error {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	c.nextID++
	c.products[name] = c.nextID
	c.repo.SeedProduct(dao.Product{ID: c.nextID, Name: name, Price: p, Stock: stock, Available: true})
	return nil
}

func (c *inventoryTestContext) anIngredientWithStock(name, stock string) error {
	s, err := decimal.NewFromString(stock)
	if err != nil {
		return err
	}
	c.nextID++
	c.ingredients[name] = c.nextID
	c.repo.SeedIngredient(dao.Ingredient{ID: c.nextID, Name: name, Unit: "g", Stock: s})
	return nil
}

func (c *inventoryTestContext) eachUsesOf(product, quantity, ingredient string) error {
	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return err
	}
	pid, iid := c.products[product], c.ingredients[ingredient]
	if pid == 0 || iid == 0 {
		return fmt.Errorf("unknown product %q or ingredient %q", product, ingredient)
	}
	c.repo.SeedRecipe(dao.RecipeEntry{ProductID: pid, IngredientID: iid, Quantity: q})
	return nil
}

func (c *inventoryTestContext) iOrder(lines string) error {
	req := dto.CreateOrderRequest{
		SaleType:      dao.SaleInStore,
		PaymentMethod: dao.PaymentCash,
		CustomerName:  "Walk-in",
		CustomerPhone: "555-0199",
	}
	for _, m := range orderLine.FindAllStringSubmatch(lines, -1) {
		qty, _ := strconv.Atoi(m[1])
		id, ok := c.products[m[2]]
		if !ok {
			return fmt.Errorf("unknown product %q", m[2])
		}
		req.Items = append(req.Items, dto.OrderItemInput{ProductID: id, Quantity: qty})
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("no order lines in %q", lines)
	}
	order, err := c.svc.OrderService.CreateOrder(context.Background(), req)
	c.err = err
	if err == nil {
		c.order = order
	}
	return nil
}

func (c *inventoryTestContext) iCancelTheOrder() error {
	c.order.Status, c.err = c.advance(dao.StatusCancelled)
	return nil
}

func (c *inventoryTestContext) theOrderMovesTo(status string) error {
	s, err := c.advance(dao.Status(status))
	if err != nil {
		return fmt.Errorf("move to %s: %w", status, err)
	}
	c.order.Status = s
	return nil
}

func (c *inventoryTestContext) advance(to dao.Status) (dao.Status, error) {
	if c.order.ID == 0 {
		return "", errors.New("no order was created")
	}
	o, err := c.svc.OrderService.AdvanceStatus(context.Background(), c.order.ID, to, "godog")
	if err != nil {
		return c.order.Status, err
	}
	return o.Status, nil
}

func (c *inventoryTestContext) theOrderIsCreatedWithTotal(total string) error {
	if c.err != nil {
		return fmt.Errorf("expected an order, got %v", c.err)
	}
	want, err := decimal.NewFromString(total)
	if err != nil {
		return err
	}
	if !c.order.Total.Equal(want) {
		return fmt.Errorf("total %s, want %s", c.order.Total, want)
	}
	if c.order.Status != dao.StatusPending {
		return fmt.Errorf("status %s, want pending", c.order.Status)
	}
	return nil
}

func (c *inventoryTestContext) theOrderIsCancelled() error {
	if c.err != nil {
		return fmt.Errorf("expected cancellation, got %v", c.err)
	}
	if c.order.Status != dao.StatusCancelled {
		return fmt.Errorf("status %s, want cancelled", c.order.Status)
	}
	return nil
}

func (c *inventoryTestContext) theOrderIsRejectedForInsufficientStock() error {
	if !errors.Is(c.err, dao.ErrInsufficientStock) {
		return fmt.Errorf("expected insufficient stock, got %v", c.err)
	}
	return nil
}

func (c *inventoryTestContext) theShortfallForIs(name string, required, available string) error {
	var serr *dao.InsufficientStockError
	if !errors.As(c.err, &serr) {
		return fmt.Errorf("no shortfall list in %v", c.err)
	}
	for _, s := range serr.Shortfalls {
		if s.Name != name {
			continue
		}
		if s.Required.String() != required || s.Available.String() != available {
			return fmt.Errorf("shortfall for %s: required %s available %s", name, s.Required, s.Available)
		}
		return nil
	}
	return fmt.Errorf("no shortfall for %q in %v", name, serr)
}

func (c *inventoryTestContext) theRequestFailsWithAnInvalidStateTransition() error {
	if !errors.Is(c.err, dao.ErrInvalidStateTransition) {
		return fmt.Errorf("expected invalid state transition, got %v", c.err)
	}
	return nil
}

func (c *inventoryTestContext) productHasStock(name, want string) error {
	id, ok := c.products[name]
	if !ok {
		return fmt.Errorf("unknown product %q", name)
	}
	item, err := c.svc.StockService.ProductStock(context.Background(), id)
	return stockEquals(item, err, want)
}

func (c *inventoryTestContext) ingredientHasStock(name, want string) error {
	id, ok := c.ingredients[name]
	if !ok {
		return fmt.Errorf("unknown ingredient %q", name)
	}
	item, err := c.svc.StockService.IngredientStock(context.Background(), id)
	return stockEquals(item, err, want)
}

func stockEquals(item dao.StockItem, err error, want string) error {
	if err != nil {
		return err
	}
	if item.Stock.String() != want {
		return fmt.Errorf("%s %q stock %s, want %s", item.Kind, item.Name, item.Stock, want)
	}
	return nil
}

func (c *inventoryTestContext) noOrderWasStored() error {
	if n := c.repo.OrderCount(); n != 0 {
		return fmt.Errorf("%d orders stored", n)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &inventoryTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	ctx.Step(`^a product "([^"]*)" priced ([\d.]+) with stock (\d+)$`, tc.aProductPricedWithStock)
	ctx.Step(`^an ingredient "([^"]*)" with stock ([\d.]+)$`, tc.anIngredientWithStock)
	ctx.Step(`^each "([^"]*)" uses ([\d.]+) of "([^"]*)"$`, tc.eachUsesOf)

	ctx.Step(`^I order (.+)$`, tc.iOrder)
	ctx.Step(`^I cancel the order$`, tc.iCancelTheOrder)
	ctx.Step(`^the order moves to "([^"]*)"$`, tc.theOrderMovesTo)

	ctx.Step(`^the order is created with total ([\d.]+)$`, tc.theOrderIsCreatedWithTotal)
	ctx.Step(`^the order is cancelled$`, tc.theOrderIsCancelled)
	ctx.Step(`^the order is rejected for insufficient stock$`, tc.theOrderIsRejectedForInsufficientStock)
	ctx.Step(`^the shortfall for "([^"]*)" is ([\d.]+) required with ([\d.]+) available$`, tc.theShortfallForIs)
	ctx.Step(`^the request fails with an invalid state transition$`, tc.theRequestFailsWithAnInvalidStateTransition)
	ctx.Step(`^product "([^"]*)" has stock ([\d.]+)$`, tc.productHasStock)
	ctx.Step(`^ingredient "([^"]*)" has stock ([\d.]+)$`, tc.ingredientHasStock)
	ctx.Step(`^no order was stored$`, tc.noOrderWasStored)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
