package warehouse

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/warehouse/internal/platform/httpx"
)

type nameRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type productRequest struct {
	Name  string `json:"name" validate:"required,max=200"`
	Price string `json:"price" validate:"required,numeric"`
}

type orderLineRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"lte=1000000000"`
}

type paymentRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

type shipmentRequest struct {
	Quantity      int    `json:"quantity" validate:"lte=1000000000"`
	TargetEntryID string `json:"target_entry_id" validate:"omitempty,startswith=B"`
}

func (r shipmentRequest) target() FillTarget {
	if r.TargetEntryID == "" {
		return FIFO()
	}
	return Targeted(r.TargetEntryID)
}

func parseMoney(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", httpx.ErrValidation, field, err)
	}
	return d, nil
}

type clientView struct {
	Client
	BalanceDisplay string `json:"balance_display"`
}

func newClientView(c Client) clientView {
	return clientView{Client: c, BalanceDisplay: FormatMoney(c.Balance)}
}

func newClientViews(clients []Client) []clientView {
	out := make([]clientView, 0, len(clients))
	for _, c := range clients {
		out = append(out, newClientView(c))
	}
	return out
}

type invoiceView struct {
	Invoice
	Total        decimal.Decimal `json:"total"`
	TotalDisplay string          `json:"total_display"`
}

func newInvoiceView(inv Invoice) invoiceView {
	total := inv.Total()
	return invoiceView{Invoice: inv, Total: total, TotalDisplay: FormatMoney(total)}
}

func newInvoiceViews(invoices []Invoice) []invoiceView {
	out := make([]invoiceView, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, newInvoiceView(inv))
	}
	return out
}

type allocationView struct {
	OrderID    string           `json:"order_id"`
	Invoice    *invoiceView     `json:"invoice,omitempty"`
	Backorders []BackorderEntry `json:"backorders"`
	Lines      []LineOutcome    `json:"lines"`
}

func newAllocationView(r AllocationResult) allocationView {
	view := allocationView{OrderID: r.OrderID, Backorders: r.Backorders, Lines: r.Lines}
	if r.Invoice != nil {
		inv := newInvoiceView(*r.Invoice)
		view.Invoice = &inv
	}
	return view
}

type balanceView struct {
	ClientID       string          `json:"client_id"`
	Balance        decimal.Decimal `json:"balance"`
	BalanceDisplay string          `json:"balance_display"`
	Transaction    Transaction     `json:"transaction"`
}
