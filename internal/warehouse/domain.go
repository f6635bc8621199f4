// Package warehouse implements the client/product ledger and the order
// fulfillment engine that allocates stock, queues backorders and bills clients.
package warehouse

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Identifier prefixes minted by the ledger sequences.
const (
	ClientPrefix    = "C"
	SupplierPrefix  = "S"
	ProductPrefix   = "P"
	OrderPrefix     = "O"
	InvoicePrefix   = "I"
	BackorderPrefix = "B"
)

// MaxQuantity caps a single order line or shipment.
const MaxQuantity = 1_000_000_000

// TransactionType tags entries in a client's transaction log.
type TransactionType string

const (
	// TransactionTypeOrder records order creation.
	TransactionTypeOrder TransactionType = "ORDER"
	// TransactionTypeInvoice records an invoice attached to the account.
	TransactionTypeInvoice TransactionType = "INVOICE"
	// TransactionTypeBilling records a balance change (charge or payment).
	TransactionTypeBilling TransactionType = "BILLING"
)

// InvoiceSource tells which engine produced an invoice.
type InvoiceSource string

const (
	InvoiceSourceAllocation    InvoiceSource = "ALLOCATION"
	InvoiceSourceReplenishment InvoiceSource = "REPLENISHMENT"
)

// Client is an account holder with a running balance.
type Client struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Balance      decimal.Decimal `json:"balance"`
	OrderIDs     []string        `json:"order_ids"`
	InvoiceIDs   []string        `json:"invoice_ids"`
	Transactions []Transaction   `json:"transactions"`
}

// Supplier provides products.
type Supplier struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	ProductIDs []string `json:"product_ids"`
}

// Product is a stocked item. Backorders holds entry ids in FIFO order.
type Product struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	SupplierIDs []string        `json:"supplier_ids"`
	Backorders  []string        `json:"backorders"`
}

// LineItem is a product quantity at a unit price. It is used for order
// requests and invoice lines alike.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Total returns quantity × unit price.
func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a single allocation event requested by a client.
type Order struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"client_id"`
	Lines       []LineItem `json:"lines"`
	Backorders  []string   `json:"backorders"`
	Allocated   bool       `json:"allocated"`
	CreatedAt   time.Time  `json:"created_at"`
	AllocatedAt *time.Time `json:"allocated_at,omitempty"`
}

// Invoice is an immutable billed record.
type Invoice struct {
	ID        string        `json:"id"`
	ClientID  string        `json:"client_id"`
	OrderID   string        `json:"order_id"`
	Source    InvoiceSource `json:"source"`
	Lines     []LineItem    `json:"lines"`
	CreatedAt time.Time     `json:"created_at"`
}

// Total sums the invoice lines.
func (i Invoice) Total() decimal.Decimal {
	total := decimal.Zero
	for _, line := range i.Lines {
		total = total.Add(line.Total())
	}
	return total
}

// BackorderEntry is outstanding demand for a product tied to one order.
// Requested keeps the original shortfall; Quantity is what is still owed.
type BackorderEntry struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	OrderID   string    `json:"order_id"`
	ClientID  string    `json:"client_id"`
	Quantity  int       `json:"quantity"`
	Requested int       `json:"requested"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is an append-only account log record. Amount and the balance
// fields are only meaningful for BILLING records.
type Transaction struct {
	Type          TransactionType `json:"type"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	At            time.Time       `json:"at"`
}

// FormatMoney renders an amount with two decimal places.
func FormatMoney(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

var (
	ErrClientNotFound    = errors.New("warehouse: client not found")
	ErrSupplierNotFound  = errors.New("warehouse: supplier not found")
	ErrProductNotFound   = errors.New("warehouse: product not found")
	ErrOrderNotFound     = errors.New("warehouse: order not found")
	ErrInvoiceNotFound   = errors.New("warehouse: invoice not found")
	ErrBackorderNotFound = errors.New("warehouse: backorder entry not found")

	// ErrInvalidQuantity rejects zero, negative or oversized requested/incoming quantities.
	ErrInvalidQuantity = errors.New("warehouse: invalid quantity")
	// ErrStockOverflow rejects shipments that would push stock past the int range.
	ErrStockOverflow = fmt.Errorf("%w: stock would overflow", ErrInvalidQuantity)
	// ErrInvalidAmount rejects non-positive payment amounts.
	ErrInvalidAmount = errors.New("warehouse: amount must be greater than zero")
	// ErrInvalidPrice rejects negative product prices.
	ErrInvalidPrice = errors.New("warehouse: price must be >= 0")
	// ErrInvalidName rejects blank entity names.
	ErrInvalidName = errors.New("warehouse: name is required")

	// ErrAlreadyAllocated guards against processing an order twice.
	ErrAlreadyAllocated = errors.New("warehouse: order already processed")
	// ErrEmptyOrder rejects processing an order without lines.
	ErrEmptyOrder = errors.New("warehouse: order has no lines")

	ErrAlreadyAssociated = errors.New("warehouse: product and supplier already associated")
	ErrNotAssociated     = errors.New("warehouse: product and supplier not associated")

	// ErrOverpayment is returned by the UI layer for payments above the balance.
	ErrOverpayment = errors.New("warehouse: payment exceeds balance")

	ErrSnapshotNotFound = errors.New("warehouse: snapshot not found")
	ErrCorruptSnapshot  = errors.New("warehouse: snapshot failed validation")
)
