package dto

import (
	"strings"

	"github.com/shopspring/decimal"

	"pizzeria-system/internal/microservices/order/domain/dao"
)

// CreateOrderRequest is the inbound shape of POST /orders. Prices and totals
// are optional; when present they are checked against the catalog.
type CreateOrderRequest struct {
	OrderNumber   string            `json:"order_number,omitempty"`
	CustomerID    *int64            `json:"customer_id,omitempty"`
	EmployeeID    *int64            `json:"employee_id,omitempty"`
	SaleType      dao.SaleType      `json:"sale_type"`
	PaymentMethod dao.PaymentMethod `json:"payment_method"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	CustomerEmail string            `json:"customer_email,omitempty"`
	CustomerNotes string            `json:"customer_notes,omitempty"`
	InternalNotes string            `json:"internal_notes,omitempty"`
	Subtotal      *decimal.Decimal  `json:"subtotal,omitempty"`
	Discount      *decimal.Decimal  `json:"discount,omitempty"`
	Total         *decimal.Decimal  `json:"total,omitempty"`
	Items         []OrderItemInput  `json:"items"`
}

type OrderItemInput struct {
	ProductID int64            `json:"product_id"`
	Quantity  int              `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	Subtotal  *decimal.Decimal `json:"subtotal,omitempty"`
	Notes     string           `json:"notes,omitempty"`
}

// Normalize trims free-text fields in place.
func (r *CreateOrderRequest) Normalize() {
	r.OrderNumber = strings.TrimSpace(r.OrderNumber)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerPhone = strings.TrimSpace(r.CustomerPhone)
	r.CustomerEmail = strings.TrimSpace(r.CustomerEmail)
	r.CustomerNotes = strings.TrimSpace(r.CustomerNotes)
	r.InternalNotes = strings.TrimSpace(r.InternalNotes)
	for i := range r.Items {
		r.Items[i].Notes = strings.TrimSpace(r.Items[i].Notes)
	}
}

type UpdateStatusRequest struct {
	Status    dao.Status `json:"status"`
	ChangedBy string     `json:"changed_by,omitempty"`
}

type CancelOrderRequest struct {
	ChangedBy string `json:"changed_by,omitempty"`
}

type ReceiveStockRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type CreateOrderResponse struct {
	OrderNumber string          `json:"order_number"`
	Status      dao.Status      `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Order       *dao.Order      `json:"order"`
}
