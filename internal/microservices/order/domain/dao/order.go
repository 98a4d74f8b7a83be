package dao

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleType string

const (
	SaleOnline  SaleType = "online"
	SaleInStore SaleType = "in_store"
)

type PaymentMethod string

const (
	PaymentQR    PaymentMethod = "qr"
	PaymentDebit PaymentMethod = "debit"
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
)

type Order struct {
	ID            int64           `json:"id"`
	OrderNumber   string          `json:"order_number"`
	CustomerID    *int64          `json:"customer_id,omitempty"`
	EmployeeID    *int64          `json:"employee_id,omitempty"`
	SaleType      SaleType        `json:"sale_type"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	CustomerNotes string          `json:"customer_notes,omitempty"`
	InternalNotes string          `json:"internal_notes,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	Total         decimal.Decimal `json:"total"`
	Status        Status          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     *time.Time      `json:"-"`
	Items         []OrderItem     `json:"items"`
}

// OrderItem keeps the product name and price as they were at the time of sale.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Notes       string          `json:"notes,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

type StatusLogEntry struct {
	ID        int64     `json:"id"`
	OrderID   int64     `json:"order_id"`
	Status    Status    `json:"status"`
	ChangedBy string    `json:"changed_by"`
	ChangedAt time.Time `json:"changed_at"`
	Notes     string    `json:"notes,omitempty"`
}

type OrderFilter struct {
	Phone      string
	CustomerID *int64
	Limit      int
	Offset     int
}

// FOR RABBITMQ MESSAGE

type OrderEvent struct {
	Type         string          `json:"type"`
	OrderID      int64           `json:"order_id"`
	OrderNumber  string          `json:"order_number"`
	CustomerName string          `json:"customer_name"`
	SaleType     SaleType        `json:"sale_type"`
	OldStatus    Status          `json:"old_status,omitempty"`
	NewStatus    Status          `json:"new_status"`
	ChangedBy    string          `json:"changed_by"`
	Total        decimal.Decimal `json:"total"`
	Items        []EventItem     `json:"items,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

type EventItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
}
