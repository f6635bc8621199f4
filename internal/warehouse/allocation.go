package warehouse

import "fmt"

// LineOutcome reports how one order line was split between billing and
// backorder. Billed + Backordered always equals Requested.
type LineOutcome struct {
	ProductID   string `json:"product_id"`
	Requested   int    `json:"requested"`
	Billed      int    `json:"billed"`
	Backordered int    `json:"backordered"`
}

// AllocationResult is returned by ProcessOrder.
type AllocationResult struct {
	OrderID    string           `json:"order_id"`
	Invoice    *Invoice         `json:"invoice,omitempty"`
	Backorders []BackorderEntry `json:"backorders"`
	Lines      []LineOutcome    `json:"lines"`
}

// BilledUnits sums the billed quantity over all lines.
func (r AllocationResult) BilledUnits() int {
	total := 0
	for _, line := range r.Lines {
		total += line.Billed
	}
	return total
}

// BackorderedUnits sums the backordered quantity over all lines.
func (r AllocationResult) BackorderedUnits() int {
	total := 0
	for _, line := range r.Lines {
		total += line.Backordered
	}
	return total
}

// allocate fills the order lines from stock in order of addition. Shortfalls
// are queued as backorders; billed quantities become a single invoice.
func (l *Ledger) allocate(clientID, orderID string) (AllocationResult, error) {
	c, o, err := l.order(clientID, orderID)
	if err != nil {
		return AllocationResult{}, err
	}
	if o.Allocated {
		return AllocationResult{}, fmt.Errorf("%w: %s", ErrAlreadyAllocated, o.ID)
	}
	if len(o.Lines) == 0 {
		return AllocationResult{}, fmt.Errorf("%w: %s", ErrEmptyOrder, o.ID)
	}
	products := make([]*Product, len(o.Lines))
	for i, line := range o.Lines {
		p, err := l.product(line.ProductID)
		if err != nil {
			return AllocationResult{}, err
		}
		products[i] = p
	}

	result := AllocationResult{
		OrderID:    o.ID,
		Backorders: []BackorderEntry{},
		Lines:      make([]LineOutcome, 0, len(o.Lines)),
	}
	var billed []LineItem
	for i, line := range o.Lines {
		p := products[i]
		outcome := LineOutcome{ProductID: p.ID, Requested: line.Quantity}
		switch {
		case p.Quantity >= line.Quantity:
			outcome.Billed = line.Quantity
			p.Quantity -= line.Quantity
		default:
			outcome.Billed = p.Quantity
			outcome.Backordered = line.Quantity - p.Quantity
			p.Quantity = 0
			entry := l.enqueueBackorder(p, o, outcome.Backordered)
			result.Backorders = append(result.Backorders, *entry)
		}
		if outcome.Billed > 0 {
			billed = append(billed, LineItem{ProductID: p.ID, Quantity: outcome.Billed, UnitPrice: p.Price})
		}
		result.Lines = append(result.Lines, outcome)
	}

	now := l.now()
	o.Allocated = true
	o.AllocatedAt = &now
	if inv := l.bill(c, o.ID, InvoiceSourceAllocation, billed); inv != nil {
		cp := *inv
		result.Invoice = &cp
	}
	return result, nil
}
