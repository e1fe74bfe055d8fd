package ticket

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/ticket-engine/internal/ledger"
)

// Payment is an amount settled against the ticket through a payment method.
type Payment struct {
	ID                ID              `json:"id"`
	TransactionID     uuid.UUID       `json:"transactionId"`
	Amount            decimal.Decimal `json:"amount"`
	Name              string          `json:"name"`
	PaymentTemplateID int64           `json:"paymentTemplateId"`
	UserID            int64           `json:"userId"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// AddPayment records a payment and its own ledger transaction. Paid items are cleared once
// nothing remains to be paid.
func (t *Ticket) AddPayment(tmpl PaymentTemplate, account ledger.Account, amount decimal.Decimal, userID int64) *Payment {
	now := t.now()
	txID := t.Ledger.AddNewTransaction(tmpl.TransactionTemplate, t.AccountTemplateID, t.AccountID, account, amount)
	p := &Payment{
		TransactionID:     txID,
		Amount:            amount,
		Name:              account.Name,
		PaymentTemplateID: tmpl.ID,
		UserID:            userID,
		CreatedAt:         now,
	}
	t.Payments = append(t.Payments, p)
	t.LastPaymentDate = now
	t.RemainingAmount = t.Remaining()
	if t.RemainingAmount.IsZero() {
		t.PaidItems = nil
	}
	t.UpdateIsClosed()
	t.touch()
	return p
}

// RemovePayment removes p and exactly its ledger transaction.
func (t *Ticket) RemovePayment(p *Payment) {
	for i, existing := range t.Payments {
		if existing == p {
			t.Payments = append(t.Payments[:i], t.Payments[i+1:]...)
			break
		}
	}
	t.Ledger.RemoveTransaction(p.TransactionID)
	t.RemainingAmount = t.Remaining()
	t.UpdateIsClosed()
	t.touch()
}

// PaymentAmount sums all payments.
func (t *Ticket) PaymentAmount() decimal.Decimal {
	total := decimal.Zero
	for _, p := range t.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// AddPaidItem records quantity of an item as paid, merging with an existing entry at the same price.
func (t *Ticket) AddPaidItem(menuItemID int64, price, quantity decimal.Decimal) {
	for i := range t.PaidItems {
		item := &t.PaidItems[i]
		if item.MenuItemID == menuItemID && item.Price.Equal(price) {
			item.Quantity = item.Quantity.Add(quantity)
			return
		}
	}
	t.PaidItems = append(t.PaidItems, PaidItem{MenuItemID: menuItemID, Price: price, Quantity: quantity})
}

// PaidQuantity returns the paid quantity recorded for an item.
func (t *Ticket) PaidQuantity(menuItemID int64) decimal.Decimal {
	total := decimal.Zero
	for _, item := range t.PaidItems {
		if item.MenuItemID == menuItemID {
			total = total.Add(item.Quantity)
		}
	}
	return total
}
