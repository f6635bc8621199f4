package warehouse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Sequences holds the last issued number per identifier kind.
type Sequences struct {
	Client    int64 `json:"client"`
	Supplier  int64 `json:"supplier"`
	Product   int64 `json:"product"`
	Order     int64 `json:"order"`
	Invoice   int64 `json:"invoice"`
	Backorder int64 `json:"backorder"`
}

// Ledger is the in-memory arena owning every entity. It is not safe for
// concurrent use; Service serialises access to it.
type Ledger struct {
	clients    map[string]*Client
	suppliers  map[string]*Supplier
	products   map[string]*Product
	orders     map[string]*Order
	invoices   map[string]*Invoice
	backorders map[string]*BackorderEntry

	// registration order, used for listings
	clientIDs   []string
	supplierIDs []string
	productIDs  []string

	seq Sequences
	now func() time.Time
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger builds an empty ledger.
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		clients:    make(map[string]*Client),
		suppliers:  make(map[string]*Supplier),
		products:   make(map[string]*Product),
		orders:     make(map[string]*Order),
		invoices:   make(map[string]*Invoice),
		backorders: make(map[string]*BackorderEntry),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func nextID(prefix string, counter *int64) string {
	*counter++
	return prefix + strconv.FormatInt(*counter, 10)
}

func (l *Ledger) addClient(name string) (*Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	c := &Client{ID: nextID(ClientPrefix, &l.seq.Client), Name: name, Balance: decimal.Zero}
	l.clients[c.ID] = c
	l.clientIDs = append(l.clientIDs, c.ID)
	return c, nil
}

func (l *Ledger) addSupplier(name string) (*Supplier, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	s := &Supplier{ID: nextID(SupplierPrefix, &l.seq.Supplier), Name: name}
	l.suppliers[s.ID] = s
	l.supplierIDs = append(l.supplierIDs, s.ID)
	return s, nil
}

func (l *Ledger) addProduct(name string, price decimal.Decimal) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	if price.IsNegative() {
		return nil, ErrInvalidPrice
	}
	p := &Product{ID: nextID(ProductPrefix, &l.seq.Product), Name: name, Price: price}
	l.products[p.ID] = p
	l.productIDs = append(l.productIDs, p.ID)
	return p, nil
}

func (l *Ledger) client(id string) (*Client, error) {
	c, ok := l.clients[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, id)
	}
	return c, nil
}

func (l *Ledger) supplier(id string) (*Supplier, error) {
	s, ok := l.suppliers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSupplierNotFound, id)
	}
	return s, nil
}

func (l *Ledger) product(id string) (*Product, error) {
	p, ok := l.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, id)
	}
	return p, nil
}

// order resolves an order that must belong to clientID.
func (l *Ledger) order(clientID, orderID string) (*Client, *Order, error) {
	c, err := l.client(clientID)
	if err != nil {
		return nil, nil, err
	}
	o, ok := l.orders[orderID]
	if !ok || o.ClientID != c.ID {
		return nil, nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return c, o, nil
}

func (l *Ledger) invoice(clientID, invoiceID string) (*Invoice, error) {
	c, err := l.client(clientID)
	if err != nil {
		return nil, err
	}
	inv, ok := l.invoices[invoiceID]
	if !ok || inv.ClientID != c.ID {
		return nil, fmt.Errorf("%w: %s", ErrInvoiceNotFound, invoiceID)
	}
	return inv, nil
}

func (l *Ledger) associate(productID, supplierID string) error {
	p, err := l.product(productID)
	if err != nil {
		return err
	}
	s, err := l.supplier(supplierID)
	if err != nil {
		return err
	}
	if containsID(p.SupplierIDs, s.ID) && containsID(s.ProductIDs, p.ID) {
		return ErrAlreadyAssociated
	}
	if !containsID(p.SupplierIDs, s.ID) {
		p.SupplierIDs = append(p.SupplierIDs, s.ID)
	}
	if !containsID(s.ProductIDs, p.ID) {
		s.ProductIDs = append(s.ProductIDs, p.ID)
	}
	return nil
}

func (l *Ledger) disassociate(productID, supplierID string) error {
	p, err := l.product(productID)
	if err != nil {
		return err
	}
	s, err := l.supplier(supplierID)
	if err != nil {
		return err
	}
	if !containsID(p.SupplierIDs, s.ID) && !containsID(s.ProductIDs, p.ID) {
		return ErrNotAssociated
	}
	p.SupplierIDs = removeID(p.SupplierIDs, s.ID)
	s.ProductIDs = removeID(s.ProductIDs, p.ID)
	return nil
}

func (l *Ledger) createOrder(clientID string) (*Order, error) {
	c, err := l.client(clientID)
	if err != nil {
		return nil, err
	}
	now := l.now()
	o := &Order{ID: nextID(OrderPrefix, &l.seq.Order), ClientID: c.ID, CreatedAt: now}
	l.orders[o.ID] = o
	c.OrderIDs = append(c.OrderIDs, o.ID)
	c.appendTransaction(Transaction{
		Type:        TransactionTypeOrder,
		Description: fmt.Sprintf("Order received: [%s]", o.ID),
		At:          now,
	})
	return o, nil
}

// addOrderLine snapshots the product's current price onto the order.
func (l *Ledger) addOrderLine(clientID, orderID, productID string, qty int) (LineItem, error) {
	if err := checkQuantity(qty); err != nil {
		return LineItem{}, err
	}
	_, o, err := l.order(clientID, orderID)
	if err != nil {
		return LineItem{}, err
	}
	if o.Allocated {
		return LineItem{}, fmt.Errorf("%w: %s", ErrAlreadyAllocated, o.ID)
	}
	p, err := l.product(productID)
	if err != nil {
		return LineItem{}, err
	}
	line := LineItem{ProductID: p.ID, Quantity: qty, UnitPrice: p.Price}
	o.Lines = append(o.Lines, line)
	return line, nil
}

func checkQuantity(qty int) error {
	switch {
	case qty <= 0:
		return ErrInvalidQuantity
	case qty > MaxQuantity:
		return fmt.Errorf("%w: %d exceeds %d", ErrInvalidQuantity, qty, MaxQuantity)
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// removeID drops the first occurrence of id, preserving order.
func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
