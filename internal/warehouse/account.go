package warehouse

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func (c *Client) appendTransaction(tx Transaction) {
	c.Transactions = append(c.Transactions, tx)
}

// charge raises the balance and logs a BILLING record.
func (c *Client) charge(amount decimal.Decimal, at time.Time) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	before := c.Balance
	c.Balance = before.Add(amount)
	tx := Transaction{
		Type: TransactionTypeBilling,
		Description: fmt.Sprintf("Charge was applied for [%s]. Balance on account went from [%s] to [%s]",
			FormatMoney(amount), FormatMoney(before), FormatMoney(c.Balance)),
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  c.Balance,
		At:            at,
	}
	c.appendTransaction(tx)
	return tx, nil
}

// acceptPayment lowers the balance and logs a BILLING record. Paying more
// than the balance is allowed here; callers decide whether to permit it.
func (c *Client) acceptPayment(amount decimal.Decimal, at time.Time) (Transaction, error) {
	if !amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	before := c.Balance
	c.Balance = before.Sub(amount)
	tx := Transaction{
		Type: TransactionTypeBilling,
		Description: fmt.Sprintf("Payment was received for [%s]. Balance on account went from [%s] to [%s]",
			FormatMoney(amount), FormatMoney(before), FormatMoney(c.Balance)),
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  c.Balance,
		At:            at,
	}
	c.appendTransaction(tx)
	return tx, nil
}

// bill turns lines into an invoice for c, attaches it and charges its total.
// No invoice is produced for an empty line set. Zero-total invoices are
// attached without a charge.
func (l *Ledger) bill(c *Client, orderID string, source InvoiceSource, lines []LineItem) *Invoice {
	if len(lines) == 0 {
		return nil
	}
	now := l.now()
	inv := &Invoice{
		ID:        nextID(InvoicePrefix, &l.seq.Invoice),
		ClientID:  c.ID,
		OrderID:   orderID,
		Source:    source,
		Lines:     append([]LineItem(nil), lines...),
		CreatedAt: now,
	}
	l.invoices[inv.ID] = inv
	c.InvoiceIDs = append(c.InvoiceIDs, inv.ID)

	total := inv.Total()
	c.appendTransaction(Transaction{
		Type:        TransactionTypeInvoice,
		Description: fmt.Sprintf("Invoice created: [%s] for [%d] item(s), total cost: [%s]", inv.ID, len(inv.Lines), FormatMoney(total)),
		Amount:      total,
		At:          now,
	})
	if total.IsPositive() {
		if _, err := c.charge(total, now); err != nil {
			panic(fmt.Sprintf("warehouse: charge invoice %s: %v", inv.ID, err))
		}
	}
	return inv
}
