package ledger

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Template describes an account transaction template. Singleton entries are keyed by its ID.
type Template struct {
	ID                      int64
	Name                    string
	SourceAccountTemplateID int64
	TargetAccountTemplateID int64
}

// Account identifies the counterparty of a payment transaction.
type Account struct {
	ID         int64
	TemplateID int64
	Name       string
}

// Transaction is a single monetary entry in the document.
type Transaction struct {
	ID                      uuid.UUID       `json:"id"`
	TemplateID              int64           `json:"templateId"`
	Name                    string          `json:"name"`
	Amount                  decimal.Decimal `json:"amount"`
	SourceAccountTemplateID int64           `json:"sourceAccountTemplateId"`
	SourceAccountID         int64           `json:"sourceAccountId"`
	TargetAccountTemplateID int64           `json:"targetAccountTemplateId"`
	TargetAccountID         int64           `json:"targetAccountId"`
}

// Document holds the transactions mirrored from a ticket. Singleton transactions are indexed
// by template so orders and calculations sharing a template share one entry.
type Document struct {
	Name         string
	transactions []*Transaction
	singletons   map[int64]*Transaction
	newID        func() uuid.UUID
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{
		singletons: make(map[int64]*Transaction),
		newID:      uuid.New,
	}
}

// SetName names the document after the owning ticket number.
func (d *Document) SetName(ticketNumber string) {
	d.Name = fmt.Sprintf("Ticket Transaction [%s]", ticketNumber)
}

// AddSingletonTransaction registers the singleton entry for templateID unless it already exists.
func (d *Document) AddSingletonTransaction(templateID int64, tmpl Template, accountTemplateID, accountID int64) {
	d.ensure()
	if _, ok := d.singletons[templateID]; ok {
		return
	}
	tx := &Transaction{
		ID:                      d.newID(),
		TemplateID:              templateID,
		Name:                    tmpl.Name,
		Amount:                  decimal.Zero,
		SourceAccountTemplateID: accountTemplateID,
		SourceAccountID:         accountID,
		TargetAccountTemplateID: tmpl.TargetAccountTemplateID,
	}
	d.singletons[templateID] = tx
	d.transactions = append(d.transactions, tx)
}

// AddNewTransaction appends a non-singleton transaction and returns its reference.
func (d *Document) AddNewTransaction(tmpl Template, accountTemplateID, accountID int64, to Account, amount decimal.Decimal) uuid.UUID {
	d.ensure()
	tx := &Transaction{
		ID:                      d.newID(),
		TemplateID:              tmpl.ID,
		Name:                    tmpl.Name,
		Amount:                  amount,
		SourceAccountTemplateID: accountTemplateID,
		SourceAccountID:         accountID,
		TargetAccountTemplateID: to.TemplateID,
		TargetAccountID:         to.ID,
	}
	d.transactions = append(d.transactions, tx)
	return tx.ID
}

// UpdateSingletonTransactionAmount sets the amount of the singleton entry for templateID.
// An empty name keeps the current one. Missing templates are ignored.
func (d *Document) UpdateSingletonTransactionAmount(templateID int64, name string, amount decimal.Decimal) {
	tx, ok := d.singletons[templateID]
	if !ok {
		return
	}
	if name != "" {
		tx.Name = name
	}
	tx.Amount = amount
}

// RemoveTransaction deletes the transaction with the given reference.
func (d *Document) RemoveTransaction(id uuid.UUID) {
	for i, tx := range d.transactions {
		if tx.ID != id {
			continue
		}
		d.transactions = append(d.transactions[:i], d.transactions[i+1:]...)
		if s, ok := d.singletons[tx.TemplateID]; ok && s == tx {
			delete(d.singletons, tx.TemplateID)
		}
		return
	}
}

// RemoveTemplateTransactions deletes the singleton entry of templateID. Transactions added
// with AddNewTransaction are only removed by reference, even when they share the template.
func (d *Document) RemoveTemplateTransactions(templateID int64) {
	tx, ok := d.singletons[templateID]
	if !ok {
		return
	}
	delete(d.singletons, templateID)
	for i, existing := range d.transactions {
		if existing == tx {
			d.transactions = append(d.transactions[:i], d.transactions[i+1:]...)
			return
		}
	}
}

// UpdateAccounts rebinds the source account of every transaction.
func (d *Document) UpdateAccounts(accountTemplateID, accountID int64) {
	for _, tx := range d.transactions {
		tx.SourceAccountTemplateID = accountTemplateID
		tx.SourceAccountID = accountID
	}
}

// Transactions returns a copy of all transactions in insertion order.
func (d *Document) Transactions() []Transaction {
	out := make([]Transaction, 0, len(d.transactions))
	for _, tx := range d.transactions {
		out = append(out, *tx)
	}
	return out
}

// ByTemplate returns the transactions created from templateID.
func (d *Document) ByTemplate(templateID int64) []Transaction {
	var out []Transaction
	for _, tx := range d.transactions {
		if tx.TemplateID == templateID {
			out = append(out, *tx)
		}
	}
	return out
}

// Singleton returns the singleton entry for templateID.
func (d *Document) Singleton(templateID int64) (Transaction, bool) {
	tx, ok := d.singletons[templateID]
	if !ok {
		return Transaction{}, false
	}
	return *tx, true
}

// HasTemplate reports whether a singleton entry exists for templateID.
func (d *Document) HasTemplate(templateID int64) bool {
	_, ok := d.singletons[templateID]
	return ok
}

// Total sums the amount of every transaction.
func (d *Document) Total() decimal.Decimal {
	total := decimal.Zero
	for _, tx := range d.transactions {
		total = total.Add(tx.Amount)
	}
	return total
}

// Len returns the number of transactions.
func (d *Document) Len() int {
	return len(d.transactions)
}

func (d *Document) ensure() {
	if d.singletons == nil {
		d.singletons = make(map[int64]*Transaction)
	}
	if d.newID == nil {
		d.newID = uuid.New
	}
}
