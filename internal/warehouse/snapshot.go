package warehouse

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// State is the serialisable form of the whole ledger arena.
type State struct {
	Sequences  Sequences        `json:"sequences"`
	Clients    []Client         `json:"clients"`
	Suppliers  []Supplier       `json:"suppliers"`
	Products   []Product        `json:"products"`
	Orders     []Order          `json:"orders"`
	Invoices   []Invoice        `json:"invoices"`
	Backorders []BackorderEntry `json:"backorders"`
}

// SnapshotMeta identifies a persisted snapshot.
type SnapshotMeta struct {
	ID      string    `json:"id"`
	TakenAt time.Time `json:"taken_at"`
}

// SnapshotPort persists whole-ledger snapshots.
type SnapshotPort interface {
	Save(ctx context.Context, state State) (SnapshotMeta, error)
	Latest(ctx context.Context) (State, SnapshotMeta, error)
}

// Export deep-copies the arena. Entities are emitted in registration order so
// two exports of the same ledger are identical.
func (l *Ledger) Export() State {
	st := State{
		Sequences:  l.seq,
		Clients:    make([]Client, 0, len(l.clientIDs)),
		Suppliers:  make([]Supplier, 0, len(l.supplierIDs)),
		Products:   make([]Product, 0, len(l.productIDs)),
		Orders:     make([]Order, 0, len(l.orders)),
		Invoices:   make([]Invoice, 0, len(l.invoices)),
		Backorders: make([]BackorderEntry, 0, len(l.backorders)),
	}
	for _, id := range l.clientIDs {
		c := l.clients[id]
		st.Clients = append(st.Clients, cloneClient(c))
		for _, oid := range c.OrderIDs {
			st.Orders = append(st.Orders, cloneOrder(l.orders[oid]))
		}
		for _, iid := range c.InvoiceIDs {
			st.Invoices = append(st.Invoices, cloneInvoice(l.invoices[iid]))
		}
	}
	for _, id := range l.supplierIDs {
		st.Suppliers = append(st.Suppliers, cloneSupplier(l.suppliers[id]))
	}
	for _, id := range l.productIDs {
		p := l.products[id]
		st.Products = append(st.Products, cloneProduct(p))
		for _, bid := range p.Backorders {
			st.Backorders = append(st.Backorders, *l.mustBackorder(bid))
		}
	}
	return st
}

// Restore rebuilds a ledger from st and validates it. The returned ledger
// shares nothing with st.
func Restore(st State, opts ...LedgerOption) (*Ledger, error) {
	l := NewLedger(opts...)
	l.seq = st.Sequences
	for i := range st.Clients {
		c := cloneClient(&st.Clients[i])
		if _, dup := l.clients[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate client %s", ErrCorruptSnapshot, c.ID)
		}
		if err := issued(ClientPrefix, c.ID, st.Sequences.Client); err != nil {
			return nil, err
		}
		l.clients[c.ID] = &c
		l.clientIDs = append(l.clientIDs, c.ID)
	}
	for i := range st.Suppliers {
		s := cloneSupplier(&st.Suppliers[i])
		if _, dup := l.suppliers[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate supplier %s", ErrCorruptSnapshot, s.ID)
		}
		if err := issued(SupplierPrefix, s.ID, st.Sequences.Supplier); err != nil {
			return nil, err
		}
		l.suppliers[s.ID] = &s
		l.supplierIDs = append(l.supplierIDs, s.ID)
	}
	for i := range st.Products {
		p := cloneProduct(&st.Products[i])
		if _, dup := l.products[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate product %s", ErrCorruptSnapshot, p.ID)
		}
		if err := issued(ProductPrefix, p.ID, st.Sequences.Product); err != nil {
			return nil, err
		}
		l.products[p.ID] = &p
		l.productIDs = append(l.productIDs, p.ID)
	}
	for i := range st.Orders {
		o := cloneOrder(&st.Orders[i])
		if _, dup := l.orders[o.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate order %s", ErrCorruptSnapshot, o.ID)
		}
		if err := issued(OrderPrefix, o.ID, st.Sequences.Order); err != nil {
			return nil, err
		}
		if _, ok := l.clients[o.ClientID]; !ok {
			return nil, fmt.Errorf("%w: order %s references unknown client %s", ErrCorruptSnapshot, o.ID, o.ClientID)
		}
		l.orders[o.ID] = &o
	}
	for i := range st.Invoices {
		inv := cloneInvoice(&st.Invoices[i])
		if _, dup := l.invoices[inv.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate invoice %s", ErrCorruptSnapshot, inv.ID)
		}
		if err := issued(InvoicePrefix, inv.ID, st.Sequences.Invoice); err != nil {
			return nil, err
		}
		if _, ok := l.clients[inv.ClientID]; !ok {
			return nil, fmt.Errorf("%w: invoice %s references unknown client %s", ErrCorruptSnapshot, inv.ID, inv.ClientID)
		}
		l.invoices[inv.ID] = &inv
	}
	for i := range st.Backorders {
		entry := st.Backorders[i]
		if _, dup := l.backorders[entry.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate backorder %s", ErrCorruptSnapshot, entry.ID)
		}
		if err := issued(BackorderPrefix, entry.ID, st.Sequences.Backorder); err != nil {
			return nil, err
		}
		l.backorders[entry.ID] = &entry
	}
	for _, c := range l.clients {
		for _, oid := range c.OrderIDs {
			if o, ok := l.orders[oid]; !ok || o.ClientID != c.ID {
				return nil, fmt.Errorf("%w: client %s lists foreign order %s", ErrCorruptSnapshot, c.ID, oid)
			}
		}
		for _, iid := range c.InvoiceIDs {
			if inv, ok := l.invoices[iid]; !ok || inv.ClientID != c.ID {
				return nil, fmt.Errorf("%w: client %s lists foreign invoice %s", ErrCorruptSnapshot, c.ID, iid)
			}
		}
	}
	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// issued reports whether id could have been minted by a sequence that has
// reached seq, so restored counters never hand out an existing id.
func issued(prefix, id string, seq int64) error {
	n, err := strconv.ParseInt(strings.TrimPrefix(id, prefix), 10, 64)
	if err != nil || !strings.HasPrefix(id, prefix) || n <= 0 {
		return fmt.Errorf("%w: malformed id %q", ErrCorruptSnapshot, id)
	}
	if n > seq {
		return fmt.Errorf("%w: id %s is ahead of sequence %d", ErrCorruptSnapshot, id, seq)
	}
	return nil
}

func cloneClient(c *Client) Client {
	out := *c
	out.OrderIDs = cloneIDs(c.OrderIDs)
	out.InvoiceIDs = cloneIDs(c.InvoiceIDs)
	out.Transactions = append([]Transaction{}, c.Transactions...)
	return out
}

func cloneSupplier(s *Supplier) Supplier {
	out := *s
	out.ProductIDs = cloneIDs(s.ProductIDs)
	return out
}

func cloneProduct(p *Product) Product {
	out := *p
	out.SupplierIDs = cloneIDs(p.SupplierIDs)
	out.Backorders = cloneIDs(p.Backorders)
	return out
}

func cloneOrder(o *Order) Order {
	out := *o
	out.Lines = append([]LineItem{}, o.Lines...)
	out.Backorders = cloneIDs(o.Backorders)
	if o.AllocatedAt != nil {
		at := *o.AllocatedAt
		out.AllocatedAt = &at
	}
	return out
}

func cloneInvoice(inv *Invoice) Invoice {
	out := *inv
	out.Lines = append([]LineItem{}, inv.Lines...)
	return out
}

func cloneIDs(ids []string) []string {
	return append([]string{}, ids...)
}

// Summary is a headline view of a ledger state.
type Summary struct {
	Clients          int             `json:"clients"`
	Suppliers        int             `json:"suppliers"`
	Products         int             `json:"products"`
	Orders           int             `json:"orders"`
	Invoices         int             `json:"invoices"`
	PendingEntries   int             `json:"pending_entries"`
	PendingUnits     int             `json:"pending_units"`
	UnitsInStock     int             `json:"units_in_stock"`
	Receivables      decimal.Decimal `json:"receivables"`
	UnpaidClients    int             `json:"unpaid_clients"`
	LastInvoiceID    string          `json:"last_invoice_id,omitempty"`
	LastBackorderSeq int64           `json:"last_backorder_seq"`
}

// Summarize computes headline figures for st. Receivables only count
// positive balances.
func Summarize(st State) Summary {
	sum := Summary{
		Clients:          len(st.Clients),
		Suppliers:        len(st.Suppliers),
		Products:         len(st.Products),
		Orders:           len(st.Orders),
		Invoices:         len(st.Invoices),
		PendingEntries:   len(st.Backorders),
		Receivables:      decimal.Zero,
		LastBackorderSeq: st.Sequences.Backorder,
	}
	if st.Sequences.Invoice > 0 {
		sum.LastInvoiceID = InvoicePrefix + strconv.FormatInt(st.Sequences.Invoice, 10)
	}
	for _, entry := range st.Backorders {
		sum.PendingUnits += entry.Quantity
	}
	for _, p := range st.Products {
		sum.UnitsInStock += p.Quantity
	}
	for _, c := range st.Clients {
		if c.Balance.IsPositive() {
			sum.Receivables = sum.Receivables.Add(c.Balance)
			sum.UnpaidClients++
		}
	}
	return sum
}
