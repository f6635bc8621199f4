package warehouse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func populatedLedger(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	acme := f.client(t, "Acme")
	beta := f.client(t, "Beta")
	widget := f.product(t, "Widget", "2.50", 3)
	gadget := f.product(t, "Gadget", "10.00", 0)
	s, err := f.ledger.addSupplier("Supply Co")
	require.NoError(t, err)
	require.NoError(t, f.ledger.associate(widget.ID, s.ID))

	f.allocate(t, f.order(t, acme, widget, 5, gadget, 1))
	f.allocate(t, f.order(t, beta, gadget, 2))
	f.order(t, beta, widget, 1)
	_, err = f.ledger.receiveShipment(gadget.ID, 2, Targeted("B3"))
	require.NoError(t, err)
	_, err = acme.acceptPayment(money("5.00"), fixedClock())
	require.NoError(t, err)
	return f
}

func TestExportRestoreRoundTrip(t *testing.T) {
	f := populatedLedger(t)
	before := f.ledger.Export()

	raw, err := json.Marshal(before)
	require.NoError(t, err)
	var decoded State
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored, err := Restore(decoded, WithClock(fixedClock))
	require.NoError(t, err)
	after, err := json.Marshal(restored.Export())
	require.NoError(t, err)
	require.JSONEq(t, string(raw), string(after))

	require.Equal(t, f.ledger.seq, restored.seq)
	require.Equal(t, f.ledger.clientIDs, restored.clientIDs)
	require.Equal(t, f.ledger.productIDs, restored.productIDs)
}

func TestRestoredLedgerContinuesSequences(t *testing.T) {
	f := populatedLedger(t)
	restored, err := Restore(f.ledger.Export(), WithClock(fixedClock))
	require.NoError(t, err)

	c, err := restored.addClient("Gamma")
	require.NoError(t, err)
	require.Equal(t, "C3", c.ID)

	gadget, err := restored.product("P2")
	require.NoError(t, err)
	require.Equal(t, []string{"B2"}, gadget.Backorders)
	res, err := restored.receiveShipment(gadget.ID, 1, FIFO())
	require.NoError(t, err)
	require.Equal(t, "B2", res.Fills[0].EntryID)
	require.Equal(t, f.ledger.seq.Invoice+1, restored.seq.Invoice)

	// the source ledger is untouched
	orig, err := f.ledger.product("P2")
	require.NoError(t, err)
	require.Equal(t, []string{"B2"}, orig.Backorders)
}

func TestRestoreRejectsInconsistentState(t *testing.T) {
	f := populatedLedger(t)

	st := f.ledger.Export()
	st.Backorders = st.Backorders[1:]
	_, err := Restore(st)
	require.ErrorIs(t, err, ErrCorruptSnapshot)

	st = f.ledger.Export()
	st.Orders[0].ClientID = "C42"
	_, err = Restore(st)
	require.ErrorIs(t, err, ErrCorruptSnapshot)

	st = f.ledger.Export()
	st.Clients = append(st.Clients, st.Clients[0])
	_, err = Restore(st)
	require.ErrorIs(t, err, ErrCorruptSnapshot)
}

func TestRestoreRejectsIDCollisions(t *testing.T) {
	f := populatedLedger(t)

	cases := []struct {
		name   string
		mutate func(st *State)
	}{
		{"invoice sequence behind", func(st *State) { st.Sequences.Invoice-- }},
		{"backorder sequence behind", func(st *State) { st.Sequences.Backorder = 1 }},
		{"client sequence behind", func(st *State) { st.Sequences.Client = 0 }},
		{"duplicate order", func(st *State) { st.Orders = append(st.Orders, st.Orders[0]) }},
		{"duplicate invoice", func(st *State) { st.Invoices = append(st.Invoices, st.Invoices[0]) }},
		{"duplicate backorder", func(st *State) { st.Backorders = append(st.Backorders, st.Backorders[0]) }},
		{"malformed id", func(st *State) { st.Suppliers[0].ID = "supplier-1" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := f.ledger.Export()
			tc.mutate(&st)
			_, err := Restore(st)
			require.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

func TestSummarize(t *testing.T) {
	f := populatedLedger(t)
	sum := Summarize(f.ledger.Export())

	require.Equal(t, 2, sum.Clients)
	require.Equal(t, 1, sum.Suppliers)
	require.Equal(t, 2, sum.Products)
	require.Equal(t, 3, sum.Orders)
	require.Equal(t, 2, sum.PendingEntries)
	require.Equal(t, 3, sum.PendingUnits)
	require.Equal(t, 0, sum.UnitsInStock)
	require.Equal(t, 2, sum.UnpaidClients)
	requireMoney(t, "22.50", sum.Receivables)
	require.Equal(t, "I2", sum.LastInvoiceID)
}
