package dao

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrIngredientNotFound     = errors.New("ingredient not found")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrDuplicateOrderNumber   = errors.New("order number already exists")
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrTransactionFailed      = errors.New("transaction failed")
	ErrInvalidOrder           = errors.New("invalid order")
)

// NotFound returns the sentinel matching the stock kind, wrapped with the id.
func NotFound(kind StockKind, id int64) error {
	if kind == KindIngredient {
		return fmt.Errorf("%w: id %d", ErrIngredientNotFound, id)
	}
	return fmt.Errorf("%w: id %d", ErrProductNotFound, id)
}

type Shortfall struct {
	Kind      StockKind       `json:"kind"`
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Required  decimal.Decimal `json:"required"`
	Available decimal.Decimal `json:"available"`
}

// InsufficientStockError lists every deficient product and ingredient of a
// request, not only the first one found.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s %d %q: required %s, available %s",
			s.Kind, s.ID, s.Name, s.Required.String(), s.Available.String()))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type InvalidTransitionError struct {
	From    Status
	To      Status
	Allowed []Status
}

func (e *InvalidTransitionError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	if e.To == StatusCancelled {
		return fmt.Sprintf("cannot cancel order in status %s; cancellable statuses: %s",
			e.From, strings.Join(allowed, ", "))
	}
	return fmt.Sprintf("cannot move order from %s to %s; allowed: [%s]",
		e.From, e.To, strings.Join(allowed, ", "))
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidStateTransition }

// TxError wraps a store failure that aborted a transaction.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string { return fmt.Sprintf("%s: transaction failed: %v", e.Op, e.Err) }

func (e *TxError) Unwrap() error { return e.Err }

func (e *TxError) Is(target error) bool { return target == ErrTransactionFailed }

// IsBusiness reports whether err is one of the domain errors above rather than
// an infrastructure failure.
func IsBusiness(err error) bool {
	for _, target := range []error{
		ErrProductNotFound, ErrIngredientNotFound, ErrInsufficientStock, ErrDuplicateOrderNumber,
		ErrOrderNotFound, ErrInvalidStateTransition, ErrInvalidOrder,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
