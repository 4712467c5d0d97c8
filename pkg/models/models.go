// Package models defines the row shapes of the remote tables and the
// records kept by the local sync machinery.
package models

import (
	"encoding/json"
	"time"
)

// Row is an opaque field snapshot of a single remote table row, as it
// travels over the wire and through the offline queue.
type Row = map[string]any

// OpKind is the kind of a queued write operation.
type OpKind string

const (
	OpInsert OpKind = "insert"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// QueuedOperation is a single pending write recorded while offline,
// awaiting replay against the remote service. EnqueuedAt is a unique,
// strictly increasing nanosecond stamp that doubles as the queue key.
type QueuedOperation struct {
	EnqueuedAt int64
	Table      string
	Kind       OpKind
	TargetID   string
	Payload    Row
	Attempts   int
}

// DeadLetter is a queued operation that was definitively rejected by the
// remote service too many times and has been taken out of the queue.
type DeadLetter struct {
	QueuedOperation
	LastError string
	FailedAt  time.Time
}

type Product struct {
	ID           string  `json:"id,omitempty"`
	Name         string  `json:"name"`
	Stock        int     `json:"stock"`
	MinimalStock int     `json:"minimal_stock"`
	CostPrice    float64 `json:"cost_price"`
	SellingPrice float64 `json:"selling_price"`
	CreatedAt    string  `json:"created_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

type Transaction struct {
	ID          string  `json:"id,omitempty"`
	TotalAmount float64 `json:"total_amount"`
	Profit      float64 `json:"profit"`
	Type        string  `json:"type"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

type TransactionItem struct {
	ID            string  `json:"id,omitempty"`
	TransactionID string  `json:"transaction_id"`
	ProductID     string  `json:"product_id"`
	Quantity      int     `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	TotalPrice    float64 `json:"total_price"`
}

type Expense struct {
	ID              string  `json:"id,omitempty"`
	Description     string  `json:"description"`
	Amount          float64 `json:"amount"`
	Category        string  `json:"category"`
	ExpenseType     string  `json:"expense_type"`
	ExpenseCategory string  `json:"expense_category"`
	CreatedAt       string  `json:"created_at,omitempty"`
}

type Debt struct {
	ID           string  `json:"id,omitempty"`
	CustomerName string  `json:"customer_name"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
	CreatedAt    string  `json:"created_at,omitempty"`
	PaidAt       *string `json:"paid_at"`
}

type DebtItem struct {
	ID         string  `json:"id,omitempty"`
	DebtID     string  `json:"debt_id"`
	ProductID  string  `json:"product_id"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

type RestockTransaction struct {
	ID          string  `json:"id,omitempty"`
	TotalAmount float64 `json:"total_amount"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

type RestockItem struct {
	ID                   string  `json:"id,omitempty"`
	RestockTransactionID string  `json:"restock_transaction_id"`
	ProductID            string  `json:"product_id"`
	Quantity             int     `json:"quantity"`
	CostPrice            float64 `json:"cost_price"`
	TotalPrice           float64 `json:"total_price"`
}

type Notification struct {
	ID        string `json:"id,omitempty"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	RelatedID string `json:"related_id,omitempty"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ToRow converts a model struct into the generic row representation used
// by the remote client and the offline queue.
func ToRow(v any) (Row, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r Row
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// DecodeRow fills a model struct from a generic row.
func DecodeRow(r Row, dst any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

// DecodeRows fills a slice of model structs from generic rows; dst must
// be a pointer to a slice.
func DecodeRows(rows []Row, dst any) error {
	b, err := json.Marshal(rows)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
