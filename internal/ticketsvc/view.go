package ticketsvc

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/ticket-engine/internal/ledger"
	"github.com/noah-isme/ticket-engine/internal/ticket"
)

// Totals breaks the ticket sum down into its stages.
type Totals struct {
	PlainSum        decimal.Decimal `json:"plainSum"`
	PreTaxServices  decimal.Decimal `json:"preTaxServices"`
	Tax             decimal.Decimal `json:"tax"`
	PostTaxServices decimal.Decimal `json:"postTaxServices"`
	Total           decimal.Decimal `json:"total"`
	Paid            decimal.Decimal `json:"paid"`
	Remaining       decimal.Decimal `json:"remaining"`
}

// View is a detached snapshot of a ticket, safe to use after the ticket lock is released.
type View struct {
	ID              int64                `json:"id"`
	Number          string               `json:"number"`
	DepartmentID    int64                `json:"departmentId"`
	Date            time.Time            `json:"date"`
	LastOrderDate   time.Time            `json:"lastOrderDate"`
	LastPaymentDate time.Time            `json:"lastPaymentDate"`
	IsClosed        bool                 `json:"isClosed"`
	LockState       string               `json:"lockState"`
	AccountID       int64                `json:"accountId"`
	AccountName     string               `json:"accountName,omitempty"`
	Tags            []ticket.TagValue    `json:"tags"`
	Orders          []ticket.Order       `json:"orders"`
	Calculations    []ticket.Calculation `json:"calculations"`
	Payments        []ticket.Payment     `json:"payments"`
	Resources       []ticket.Resource    `json:"resources"`
	Totals          Totals               `json:"totals"`
	Ledger          []ledger.Transaction `json:"ledger"`
}

func newView(t *ticket.Ticket) View {
	plain := t.PlainSum()
	pre := t.PreTaxServicesTotal()
	v := View{
		ID:              t.ID.Int64(),
		Number:          t.TicketNumber,
		DepartmentID:    t.DepartmentID,
		Date:            t.Date,
		LastOrderDate:   t.LastOrderDate,
		LastPaymentDate: t.LastPaymentDate,
		IsClosed:        t.IsClosed,
		LockState:       t.LockState().String(),
		AccountID:       t.AccountID,
		AccountName:     t.AccountName,
		Tags:            t.TagValues(),
		Orders:          make([]ticket.Order, 0, len(t.Orders)),
		Calculations:    make([]ticket.Calculation, 0, len(t.Calculations)),
		Payments:        make([]ticket.Payment, 0, len(t.Payments)),
		Resources:       make([]ticket.Resource, 0, len(t.Resources)),
		Totals: Totals{
			PlainSum:        plain,
			PreTaxServices:  pre,
			Tax:             t.Rounding.Round(t.CalculateTax(plain, pre)),
			PostTaxServices: t.PostTaxServicesTotal(),
			Total:           t.Sum(),
			Paid:            t.PaymentAmount(),
			Remaining:       t.Remaining(),
		},
	}
	for _, o := range t.Orders {
		c := *o
		c.Modifiers = append([]ticket.Modifier(nil), o.Modifiers...)
		if o.Timer != nil {
			timer := *o.Timer
			c.Timer = &timer
		}
		v.Orders = append(v.Orders, c)
	}
	for _, c := range t.Calculations {
		v.Calculations = append(v.Calculations, *c)
	}
	for _, p := range t.Payments {
		v.Payments = append(v.Payments, *p)
	}
	for _, r := range t.Resources {
		v.Resources = append(v.Resources, *r)
	}
	if doc, ok := t.Ledger.(*ledger.Document); ok {
		v.Ledger = doc.Transactions()
	}
	return v
}
