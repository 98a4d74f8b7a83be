package dto

import (
	"fmt"
	"strings"

	"pizzeria-system/internal/microservices/order/domain/dao"
)

// Rule is one row of the request validation table.
type Rule struct {
	Field   string
	Message string
	Invalid func(r *CreateOrderRequest) bool
}

type ItemRule struct {
	Field   string
	Message string
	Invalid func(it *OrderItemInput) bool
}

var orderRules = []Rule{
	{"order_number", "order_number must not exceed 50 characters", func(r *CreateOrderRequest) bool { return len(r.OrderNumber) > 50 }},
	{"sale_type", "sale_type must be online or in_store", func(r *CreateOrderRequest) bool {
		return r.SaleType != dao.SaleOnline && r.SaleType != dao.SaleInStore
	}},
	{"payment_method", "payment_method must be qr, debit, cash or card", func(r *CreateOrderRequest) bool {
		switch r.PaymentMethod {
		case dao.PaymentQR, dao.PaymentDebit, dao.PaymentCash, dao.PaymentCard:
			return false
		}
		return true
	}},
	{"customer_name", "customer_name is required", func(r *CreateOrderRequest) bool { return r.CustomerName == "" }},
	{"customer_name", "customer_name must not exceed 100 characters", func(r *CreateOrderRequest) bool { return len(r.CustomerName) > 100 }},
	{"customer_phone", "customer_phone is required", func(r *CreateOrderRequest) bool { return r.CustomerPhone == "" }},
	{"customer_phone", "customer_phone must not exceed 20 characters", func(r *CreateOrderRequest) bool { return len(r.CustomerPhone) > 20 }},
	{"customer_email", "customer_email must not exceed 100 characters", func(r *CreateOrderRequest) bool { return len(r.CustomerEmail) > 100 }},
	{"customer_id", "customer_id must be positive", func(r *CreateOrderRequest) bool { return r.CustomerID != nil && *r.CustomerID <= 0 }},
	{"employee_id", "employee_id must be positive", func(r *CreateOrderRequest) bool { return r.EmployeeID != nil && *r.EmployeeID <= 0 }},
	{"subtotal", "subtotal must be positive", func(r *CreateOrderRequest) bool { return r.Subtotal != nil && !r.Subtotal.IsPositive() }},
	{"discount", "discount must not be negative", func(r *CreateOrderRequest) bool { return r.Discount != nil && r.Discount.IsNegative() }},
	{"total", "total must be positive", func(r *CreateOrderRequest) bool { return r.Total != nil && !r.Total.IsPositive() }},
	{"items", "at least one item is required", func(r *CreateOrderRequest) bool { return len(r.Items) == 0 }},
}

var itemRules = []ItemRule{
	{"product_id", "product_id is required", func(it *OrderItemInput) bool { return it.ProductID <= 0 }},
	{"quantity", "quantity must be a positive integer", func(it *OrderItemInput) bool { return it.Quantity <= 0 }},
	{"unit_price", "unit_price must be positive", func(it *OrderItemInput) bool { return it.UnitPrice != nil && !it.UnitPrice.IsPositive() }},
	{"subtotal", "subtotal must be positive", func(it *OrderItemInput) bool { return it.Subtotal != nil && !it.Subtotal.IsPositive() }},
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "invalid order: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == dao.ErrInvalidOrder }

// Validate evaluates the rule table and returns every failing field at once.
func (r *CreateOrderRequest) Validate() error {
	var fields []FieldError
	for _, rule := range orderRules {
		if rule.Invalid(r) {
			fields = append(fields, FieldError{Field: rule.Field, Message: rule.Message})
		}
	}
	for i := range r.Items {
		for _, rule := range itemRules {
			if rule.Invalid(&r.Items[i]) {
				fields = append(fields, FieldError{
					Field:   fmt.Sprintf("items[%d].%s", i, rule.Field),
					Message: fmt.Sprintf("items[%d]: %s", i, rule.Message),
				})
			}
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
