package warehouse

import (
	"fmt"
	"math"
)

// FillTarget selects which backorder entry the first fill of a shipment goes
// to. The zero value is FIFO.
type FillTarget struct {
	entryID string
}

// FIFO fills the oldest pending entry first.
func FIFO() FillTarget { return FillTarget{} }

// Targeted fills entryID first, ahead of older entries on the same product.
func Targeted(entryID string) FillTarget { return FillTarget{entryID: entryID} }

// EntryID returns the targeted entry, or "" for FIFO.
func (t FillTarget) EntryID() string { return t.entryID }

// IsFIFO reports whether no explicit entry was selected.
func (t FillTarget) IsFIFO() bool { return t.entryID == "" }

// Fill describes quantity delivered to one backorder entry.
type Fill struct {
	EntryID   string `json:"entry_id"`
	OrderID   string `json:"order_id"`
	ClientID  string `json:"client_id"`
	Quantity  int    `json:"quantity"`
	InvoiceID string `json:"invoice_id,omitempty"`
	Completed bool   `json:"completed"`
}

// ShipmentResult summarises one received shipment.
type ShipmentResult struct {
	ProductID  string `json:"product_id"`
	Received   int    `json:"received"`
	Fills      []Fill `json:"fills"`
	Stocked    int    `json:"stocked"`
	StockAfter int    `json:"stock_after"`
}

// FilledUnits sums the quantity routed to backorders.
func (r ShipmentResult) FilledUnits() int {
	total := 0
	for _, f := range r.Fills {
		total += f.Quantity
	}
	return total
}

// fillOne routes incoming units to a single entry, or to stock when the queue
// is empty and no entry is given. It returns the units still unplaced.
func (l *Ledger) fillOne(p *Product, entry *BackorderEntry, incoming int, result *ShipmentResult) int {
	if entry == nil {
		p.Quantity += incoming
		result.Stocked += incoming
		return 0
	}
	qty := incoming
	leftover := 0
	completed := false
	if entry.Quantity <= incoming {
		qty = entry.Quantity
		leftover = incoming - entry.Quantity
		completed = true
	}

	c, ok := l.clients[entry.ClientID]
	if !ok {
		panic(fmt.Sprintf("warehouse: backorder %s owned by missing client %s", entry.ID, entry.ClientID))
	}
	fill := Fill{EntryID: entry.ID, OrderID: entry.OrderID, ClientID: entry.ClientID, Quantity: qty, Completed: completed}
	if inv := l.bill(c, entry.OrderID, InvoiceSourceReplenishment, []LineItem{{ProductID: p.ID, Quantity: qty, UnitPrice: p.Price}}); inv != nil {
		fill.InvoiceID = inv.ID
	}
	if completed {
		l.removeBackorder(entry.ID)
	} else {
		entry.Quantity -= qty
	}
	result.Fills = append(result.Fills, fill)
	return leftover
}

// receiveShipment runs the targeted fill (if any) and then FIFO fills until
// the shipment is used up; whatever the queue cannot absorb goes to stock.
func (l *Ledger) receiveShipment(productID string, qty int, target FillTarget) (ShipmentResult, error) {
	if err := checkQuantity(qty); err != nil {
		return ShipmentResult{}, err
	}
	p, err := l.product(productID)
	if err != nil {
		return ShipmentResult{}, err
	}
	if qty > math.MaxInt-p.Quantity {
		return ShipmentResult{}, fmt.Errorf("%w: product %s holds %d", ErrStockOverflow, p.ID, p.Quantity)
	}
	var targeted *BackorderEntry
	if !target.IsFIFO() {
		if targeted, err = l.productBackorder(p, target.EntryID()); err != nil {
			return ShipmentResult{}, err
		}
	}

	result := ShipmentResult{ProductID: p.ID, Received: qty, Fills: []Fill{}}
	leftover := qty
	if targeted != nil {
		leftover = l.fillOne(p, targeted, leftover, &result)
	}
	for leftover > 0 {
		leftover = l.fillOne(p, l.headBackorder(p), leftover, &result)
	}
	result.StockAfter = p.Quantity
	return result, nil
}
