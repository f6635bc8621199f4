package warehouse

import "fmt"

// enqueueBackorder records a shortfall at the tail of the product queue and on
// the order's backorder list.
func (l *Ledger) enqueueBackorder(p *Product, o *Order, qty int) *BackorderEntry {
	if qty <= 0 {
		panic(fmt.Sprintf("warehouse: backorder for %s/%s with quantity %d", p.ID, o.ID, qty))
	}
	entry := &BackorderEntry{
		ID:        nextID(BackorderPrefix, &l.seq.Backorder),
		ProductID: p.ID,
		OrderID:   o.ID,
		ClientID:  o.ClientID,
		Quantity:  qty,
		Requested: qty,
		CreatedAt: l.now(),
	}
	l.backorders[entry.ID] = entry
	p.Backorders = append(p.Backorders, entry.ID)
	o.Backorders = append(o.Backorders, entry.ID)
	return entry
}

// headBackorder peeks the oldest pending entry of p, or nil.
func (l *Ledger) headBackorder(p *Product) *BackorderEntry {
	if len(p.Backorders) == 0 {
		return nil
	}
	return l.mustBackorder(p.Backorders[0])
}

// productBackorder resolves entryID and checks it is queued on p.
func (l *Ledger) productBackorder(p *Product, entryID string) (*BackorderEntry, error) {
	entry, ok := l.backorders[entryID]
	if !ok || entry.ProductID != p.ID {
		return nil, fmt.Errorf("%w: %s", ErrBackorderNotFound, entryID)
	}
	return entry, nil
}

// removeBackorder deletes the entry from the product queue, the order list and
// the arena in one step.
func (l *Ledger) removeBackorder(entryID string) {
	entry := l.mustBackorder(entryID)
	if p, ok := l.products[entry.ProductID]; ok {
		p.Backorders = removeID(p.Backorders, entryID)
	}
	if o, ok := l.orders[entry.OrderID]; ok {
		o.Backorders = removeID(o.Backorders, entryID)
	}
	delete(l.backorders, entryID)
}

func (l *Ledger) productBackorders(p *Product) []BackorderEntry {
	return l.copyBackorders(p.Backorders)
}

func (l *Ledger) orderBackorders(o *Order) []BackorderEntry {
	return l.copyBackorders(o.Backorders)
}

func (l *Ledger) copyBackorders(ids []string) []BackorderEntry {
	out := make([]BackorderEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, *l.mustBackorder(id))
	}
	return out
}

func (l *Ledger) mustBackorder(id string) *BackorderEntry {
	entry, ok := l.backorders[id]
	if !ok {
		panic(fmt.Sprintf("warehouse: backorder %s referenced but missing from ledger", id))
	}
	return entry
}

// Validate checks the structural invariants of the arena: every backorder
// entry is queued exactly once on its product and listed exactly once on its
// order, quantities are positive and stock is never negative.
func (l *Ledger) Validate() error {
	queued := make(map[string]int, len(l.backorders))
	listed := make(map[string]int, len(l.backorders))
	for _, p := range l.products {
		if p.Quantity < 0 {
			return fmt.Errorf("%w: product %s has negative stock %d", ErrCorruptSnapshot, p.ID, p.Quantity)
		}
		for _, id := range p.Backorders {
			entry, ok := l.backorders[id]
			if !ok {
				return fmt.Errorf("%w: product %s queues unknown backorder %s", ErrCorruptSnapshot, p.ID, id)
			}
			if entry.ProductID != p.ID {
				return fmt.Errorf("%w: backorder %s queued on %s but belongs to %s", ErrCorruptSnapshot, id, p.ID, entry.ProductID)
			}
			queued[id]++
		}
	}
	for _, o := range l.orders {
		for _, id := range o.Backorders {
			entry, ok := l.backorders[id]
			if !ok {
				return fmt.Errorf("%w: order %s lists unknown backorder %s", ErrCorruptSnapshot, o.ID, id)
			}
			if entry.OrderID != o.ID {
				return fmt.Errorf("%w: backorder %s listed on %s but belongs to %s", ErrCorruptSnapshot, id, o.ID, entry.OrderID)
			}
			listed[id]++
		}
	}
	for id, entry := range l.backorders {
		if entry.Quantity <= 0 {
			return fmt.Errorf("%w: backorder %s has quantity %d", ErrCorruptSnapshot, id, entry.Quantity)
		}
		if queued[id] != 1 || listed[id] != 1 {
			return fmt.Errorf("%w: backorder %s queued %d times and listed %d times", ErrCorruptSnapshot, id, queued[id], listed[id])
		}
		o, ok := l.orders[entry.OrderID]
		if !ok || o.ClientID != entry.ClientID {
			return fmt.Errorf("%w: backorder %s has inconsistent owner", ErrCorruptSnapshot, id)
		}
	}
	return nil
}
