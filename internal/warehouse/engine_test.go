package warehouse

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Equal(t, want, got.StringFixed(2))
}

type fixture struct {
	ledger *Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return &fixture{ledger: NewLedger(WithClock(fixedClock))}
}

func (f *fixture) client(t *testing.T, name string) *Client {
	t.Helper()
	c, err := f.ledger.addClient(name)
	require.NoError(t, err)
	return c
}

func (f *fixture) product(t *testing.T, name, price string, stock int) *Product {
	t.Helper()
	p, err := f.ledger.addProduct(name, money(price))
	require.NoError(t, err)
	if stock > 0 {
		_, err = f.ledger.receiveShipment(p.ID, stock, FIFO())
		require.NoError(t, err)
	}
	return p
}

// order creates an order with one line per (product, qty) pair.
func (f *fixture) order(t *testing.T, c *Client, lines ...any) *Order {
	t.Helper()
	o, err := f.ledger.createOrder(c.ID)
	require.NoError(t, err)
	for i := 0; i < len(lines); i += 2 {
		p := lines[i].(*Product)
		qty := lines[i+1].(int)
		_, err := f.ledger.addOrderLine(c.ID, o.ID, p.ID, qty)
		require.NoError(t, err)
	}
	return o
}

func (f *fixture) allocate(t *testing.T, o *Order) AllocationResult {
	t.Helper()
	res, err := f.ledger.allocate(o.ClientID, o.ID)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Validate())
	return res
}

func TestAllocateFromStockWithoutBackorder(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "2.50", 10)
	o := f.order(t, c, p, 4)

	res := f.allocate(t, o)

	require.NotNil(t, res.Invoice)
	require.Equal(t, "I1", res.Invoice.ID)
	require.Equal(t, InvoiceSourceAllocation, res.Invoice.Source)
	require.Equal(t, []LineItem{{ProductID: p.ID, Quantity: 4, UnitPrice: p.Price}}, res.Invoice.Lines)
	require.Empty(t, res.Backorders)
	require.Equal(t, []LineOutcome{{ProductID: p.ID, Requested: 4, Billed: 4}}, res.Lines)
	require.Equal(t, 6, p.Quantity)
	require.True(t, o.Allocated)
	require.NotNil(t, o.AllocatedAt)
	requireMoney(t, "10.00", c.Balance)
	require.Equal(t, []string{"I1"}, c.InvoiceIDs)

	require.Len(t, c.Transactions, 3)
	require.Equal(t, TransactionTypeOrder, c.Transactions[0].Type)
	require.Equal(t, "Order received: [O1]", c.Transactions[0].Description)
	require.Equal(t, TransactionTypeInvoice, c.Transactions[1].Type)
	require.Equal(t, "Invoice created: [I1] for [1] item(s), total cost: [$10.00]", c.Transactions[1].Description)
	require.Equal(t, TransactionTypeBilling, c.Transactions[2].Type)
	require.Equal(t, "Charge was applied for [$10.00]. Balance on account went from [$0.00] to [$10.00]", c.Transactions[2].Description)
}

func TestAllocatePartialStockQueuesShortfall(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "3.00", 3)
	o := f.order(t, c, p, 5)

	res := f.allocate(t, o)

	require.NotNil(t, res.Invoice)
	require.Equal(t, 3, res.Invoice.Lines[0].Quantity)
	requireMoney(t, "9.00", res.Invoice.Total())
	require.Len(t, res.Backorders, 1)
	entry := res.Backorders[0]
	require.Equal(t, 2, entry.Quantity)
	require.Equal(t, 2, entry.Requested)
	require.Equal(t, o.ID, entry.OrderID)
	require.Equal(t, c.ID, entry.ClientID)
	require.Equal(t, 0, p.Quantity)
	require.Equal(t, []string{entry.ID}, p.Backorders)
	require.Equal(t, []string{entry.ID}, o.Backorders)
	requireMoney(t, "9.00", c.Balance)
}

func TestAllocateWithoutStockProducesNoInvoice(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "3.00", 0)
	o := f.order(t, c, p, 5)

	res := f.allocate(t, o)

	require.Nil(t, res.Invoice)
	require.Len(t, res.Backorders, 1)
	require.Equal(t, 5, res.Backorders[0].Quantity)
	require.Empty(t, c.InvoiceIDs)
	require.True(t, c.Balance.IsZero())
	require.Len(t, c.Transactions, 1, "only the ORDER record is written")
}

func TestAllocateConservesQuantities(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	a := f.product(t, "A", "1.00", 2)
	b := f.product(t, "B", "4.00", 10)
	d := f.product(t, "D", "0.50", 0)
	o := f.order(t, c, a, 5, b, 3, d, 1, a, 1)

	res := f.allocate(t, o)

	require.Len(t, res.Lines, 4)
	for _, line := range res.Lines {
		require.Equal(t, line.Requested, line.Billed+line.Backordered, "line %s", line.ProductID)
	}
	require.Equal(t, []LineOutcome{
		{ProductID: a.ID, Requested: 5, Billed: 2, Backordered: 3},
		{ProductID: b.ID, Requested: 3, Billed: 3},
		{ProductID: d.ID, Requested: 1, Backordered: 1},
		{ProductID: a.ID, Requested: 1, Backordered: 1},
	}, res.Lines)
	require.Equal(t, 5, res.BilledUnits())
	require.Equal(t, 5, res.BackorderedUnits())
	require.Len(t, res.Invoice.Lines, 2)
	requireMoney(t, "14.00", res.Invoice.Total())
	require.Equal(t, 7, b.Quantity)
	require.Len(t, a.Backorders, 2)
	require.Len(t, o.Backorders, 3)
}

func TestAllocateRejectsSecondRunAndEmptyOrders(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "1.00", 1)
	o := f.order(t, c, p, 2)
	f.allocate(t, o)

	_, err := f.ledger.allocate(c.ID, o.ID)
	require.ErrorIs(t, err, ErrAlreadyAllocated)
	require.Len(t, p.Backorders, 1)
	requireMoney(t, "1.00", c.Balance)

	_, err = f.ledger.addOrderLine(c.ID, o.ID, p.ID, 1)
	require.ErrorIs(t, err, ErrAlreadyAllocated)

	empty := f.order(t, c)
	_, err = f.ledger.allocate(c.ID, empty.ID)
	require.ErrorIs(t, err, ErrEmptyOrder)
	require.False(t, empty.Allocated)

	other := f.client(t, "Other")
	_, err = f.ledger.allocate(other.ID, o.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestAddOrderLineValidation(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "1.00", 0)
	o := f.order(t, c)

	_, err := f.ledger.addOrderLine(c.ID, o.ID, p.ID, 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.ledger.addOrderLine(c.ID, o.ID, "P99", 1)
	require.ErrorIs(t, err, ErrProductNotFound)
	_, err = f.ledger.addOrderLine("C99", o.ID, p.ID, 1)
	require.ErrorIs(t, err, ErrClientNotFound)
}

func TestReceiveShipmentFillsQueueInArrivalOrder(t *testing.T) {
	f := newFixture(t)
	first := f.client(t, "First")
	second := f.client(t, "Second")
	p := f.product(t, "Widget", "2.00", 0)
	o1 := f.order(t, first, p, 5)
	o2 := f.order(t, second, p, 3)
	f.allocate(t, o1)
	f.allocate(t, o2)
	require.Len(t, p.Backorders, 2)

	res, err := f.ledger.receiveShipment(p.ID, 6, FIFO())
	require.NoError(t, err)
	require.NoError(t, f.ledger.Validate())

	require.Equal(t, 6, res.Received)
	require.Len(t, res.Fills, 2)
	require.Equal(t, Fill{EntryID: "B1", OrderID: o1.ID, ClientID: first.ID, Quantity: 5, InvoiceID: "I1", Completed: true}, res.Fills[0])
	require.Equal(t, Fill{EntryID: "B2", OrderID: o2.ID, ClientID: second.ID, Quantity: 1, InvoiceID: "I2"}, res.Fills[1])
	require.Equal(t, 0, res.Stocked)
	require.Equal(t, 0, p.Quantity)

	require.Empty(t, o1.Backorders)
	require.Equal(t, []string{"B2"}, p.Backorders)
	require.Equal(t, 2, f.ledger.backorders["B2"].Quantity)
	require.Equal(t, 3, f.ledger.backorders["B2"].Requested)
	requireMoney(t, "10.00", first.Balance)
	requireMoney(t, "2.00", second.Balance)

	inv := f.ledger.invoices["I1"]
	require.Equal(t, InvoiceSourceReplenishment, inv.Source)
	require.Equal(t, o1.ID, inv.OrderID)

	res, err = f.ledger.receiveShipment(p.ID, 10, FIFO())
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	require.True(t, res.Fills[0].Completed)
	require.Equal(t, 2, res.Fills[0].Quantity)
	require.Equal(t, 8, res.Stocked)
	require.Equal(t, 8, res.StockAfter)
	require.Empty(t, p.Backorders)
	require.Empty(t, o2.Backorders)
	requireMoney(t, "6.00", second.Balance)
}

func TestReceiveShipmentExactFillLeavesNothing(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "1.00", 0)
	f.allocate(t, f.order(t, c, p, 4))

	res, err := f.ledger.receiveShipment(p.ID, 4, FIFO())
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	require.True(t, res.Fills[0].Completed)
	require.Equal(t, 0, res.Stocked)
	require.Equal(t, 0, p.Quantity)
	require.Empty(t, f.ledger.backorders)
}

func TestReceiveShipmentTargetedSkipsHead(t *testing.T) {
	f := newFixture(t)
	first := f.client(t, "First")
	second := f.client(t, "Second")
	p := f.product(t, "Widget", "1.00", 0)
	f.allocate(t, f.order(t, first, p, 5))
	f.allocate(t, f.order(t, second, p, 2))

	res, err := f.ledger.receiveShipment(p.ID, 3, Targeted("B2"))
	require.NoError(t, err)
	require.NoError(t, f.ledger.Validate())

	require.Len(t, res.Fills, 2)
	require.Equal(t, "B2", res.Fills[0].EntryID)
	require.Equal(t, 2, res.Fills[0].Quantity)
	require.True(t, res.Fills[0].Completed)
	require.Equal(t, "B1", res.Fills[1].EntryID)
	require.Equal(t, 1, res.Fills[1].Quantity)
	require.False(t, res.Fills[1].Completed)
	require.Equal(t, []string{"B1"}, p.Backorders)
	require.Equal(t, 4, f.ledger.backorders["B1"].Quantity)
	requireMoney(t, "2.00", second.Balance)
	requireMoney(t, "1.00", first.Balance)
}

func TestReceiveShipmentPartialFillKeepsPosition(t *testing.T) {
	f := newFixture(t)
	first := f.client(t, "First")
	second := f.client(t, "Second")
	p := f.product(t, "Widget", "1.00", 0)
	f.allocate(t, f.order(t, first, p, 5))
	f.allocate(t, f.order(t, second, p, 2))

	_, err := f.ledger.receiveShipment(p.ID, 1, Targeted("B2"))
	require.NoError(t, err)
	require.Equal(t, []string{"B1", "B2"}, p.Backorders)
	require.Equal(t, 1, f.ledger.backorders["B2"].Quantity)
}

func TestReceiveShipmentRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "1.00", 0)
	other := f.product(t, "Gadget", "1.00", 0)
	f.allocate(t, f.order(t, c, other, 2))

	_, err := f.ledger.receiveShipment(p.ID, 0, FIFO())
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.ledger.receiveShipment("P99", 1, FIFO())
	require.ErrorIs(t, err, ErrProductNotFound)
	_, err = f.ledger.receiveShipment(p.ID, 5, Targeted("B404"))
	require.ErrorIs(t, err, ErrBackorderNotFound)
	_, err = f.ledger.receiveShipment(p.ID, 5, Targeted("B1"))
	require.ErrorIs(t, err, ErrBackorderNotFound, "entry belongs to another product")

	require.Equal(t, 0, p.Quantity)
	require.Equal(t, 2, f.ledger.backorders["B1"].Quantity)
	require.True(t, c.Balance.IsZero())
}

func TestReceiveShipmentRejectsStockOverflow(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Widget", "1.00", 0)
	p.Quantity = math.MaxInt - 3

	_, err := f.ledger.receiveShipment(p.ID, 4, FIFO())
	require.ErrorIs(t, err, ErrStockOverflow)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Equal(t, StatusInvalidQuantity, StatusOf(err))
	require.Equal(t, math.MaxInt-3, p.Quantity)

	res, err := f.ledger.receiveShipment(p.ID, 3, FIFO())
	require.NoError(t, err)
	require.Equal(t, math.MaxInt, res.StockAfter)
	require.NoError(t, f.ledger.Validate())

	_, err = f.ledger.receiveShipment(p.ID, 1, FIFO())
	require.ErrorIs(t, err, ErrStockOverflow)
	require.Equal(t, math.MaxInt, p.Quantity)
}

func TestQuantityCeiling(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "1.00", 0)
	o, err := f.ledger.createOrder(c.ID)
	require.NoError(t, err)

	_, err = f.ledger.receiveShipment(p.ID, MaxQuantity+1, FIFO())
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.ledger.addOrderLine(c.ID, o.ID, p.ID, MaxQuantity+1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	require.Empty(t, o.Lines)
	require.Equal(t, 0, p.Quantity)

	_, err = f.ledger.receiveShipment(p.ID, MaxQuantity, FIFO())
	require.NoError(t, err)
	require.Equal(t, MaxQuantity, p.Quantity)
}

func TestReceiveShipmentIntoEmptyQueueStocks(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Widget", "1.00", 0)

	res, err := f.ledger.receiveShipment(p.ID, 7, FIFO())
	require.NoError(t, err)
	require.Empty(t, res.Fills)
	require.Equal(t, 7, res.Stocked)
	require.Equal(t, 7, p.Quantity)
}

func TestZeroPricedInvoiceIsAttachedWithoutCharge(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Sample", "0", 5)

	res := f.allocate(t, f.order(t, c, p, 2))

	require.NotNil(t, res.Invoice)
	require.True(t, res.Invoice.Total().IsZero())
	require.Equal(t, []string{res.Invoice.ID}, c.InvoiceIDs)
	require.True(t, c.Balance.IsZero())
	require.Len(t, c.Transactions, 2)
	require.Equal(t, "Invoice created: [I1] for [1] item(s), total cost: [$0.00]", c.Transactions[1].Description)
}

func TestBalanceMatchesBillingLog(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "1.25", 3)
	f.allocate(t, f.order(t, c, p, 5))
	_, err := f.ledger.receiveShipment(p.ID, 2, FIFO())
	require.NoError(t, err)
	_, err = c.acceptPayment(money("4.00"), fixedClock())
	require.NoError(t, err)

	sum := decimal.Zero
	var last Transaction
	for _, tx := range c.Transactions {
		if tx.Type != TransactionTypeBilling {
			continue
		}
		if tx.BalanceAfter.GreaterThan(tx.BalanceBefore) {
			sum = sum.Add(tx.Amount)
		} else {
			sum = sum.Sub(tx.Amount)
		}
		require.True(t, tx.BalanceBefore.Equal(last.BalanceAfter), "records chain")
		last = tx
	}
	require.True(t, sum.Equal(c.Balance))
	requireMoney(t, "2.25", c.Balance)
	require.Equal(t, "Payment was received for [$4.00]. Balance on account went from [$6.25] to [$2.25]", last.Description)
}

func TestChargeAndPaymentRejectNonPositiveAmounts(t *testing.T) {
	c := &Client{ID: "C1", Balance: decimal.Zero}
	_, err := c.charge(decimal.Zero, fixedClock())
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = c.acceptPayment(money("-1"), fixedClock())
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Empty(t, c.Transactions)
}

func TestOverpaymentIsAllowedByLedger(t *testing.T) {
	c := &Client{ID: "C1", Balance: money("1.00")}
	tx, err := c.acceptPayment(money("3.00"), fixedClock())
	require.NoError(t, err)
	requireMoney(t, "-2.00", tx.BalanceAfter)
}

func TestRegistryAssociations(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "Widget", "1.00", 0)
	s, err := f.ledger.addSupplier("Supply Co")
	require.NoError(t, err)

	require.NoError(t, f.ledger.associate(p.ID, s.ID))
	require.ErrorIs(t, f.ledger.associate(p.ID, s.ID), ErrAlreadyAssociated)
	require.Equal(t, []string{s.ID}, p.SupplierIDs)
	require.Equal(t, []string{p.ID}, s.ProductIDs)

	require.NoError(t, f.ledger.disassociate(p.ID, s.ID))
	require.ErrorIs(t, f.ledger.disassociate(p.ID, s.ID), ErrNotAssociated)
	require.Empty(t, p.SupplierIDs)
	require.Empty(t, s.ProductIDs)

	require.ErrorIs(t, f.ledger.associate(p.ID, "S9"), ErrSupplierNotFound)
	_, err = f.ledger.addProduct("Bad", money("-0.01"))
	require.ErrorIs(t, err, ErrInvalidPrice)
	_, err = f.ledger.addClient("   ")
	require.ErrorIs(t, err, ErrInvalidName)
}

func TestValidateDetectsBrokenDualMembership(t *testing.T) {
	f := newFixture(t)
	c := f.client(t, "Acme")
	p := f.product(t, "Widget", "1.00", 0)
	o := f.order(t, c, p, 2)
	f.allocate(t, o)

	o.Backorders = nil
	require.ErrorIs(t, f.ledger.Validate(), ErrCorruptSnapshot)

	o.Backorders = []string{"B1"}
	p.Backorders = []string{"B1", "B1"}
	require.ErrorIs(t, f.ledger.Validate(), ErrCorruptSnapshot)

	p.Backorders = []string{"B1"}
	require.NoError(t, f.ledger.Validate())
}
