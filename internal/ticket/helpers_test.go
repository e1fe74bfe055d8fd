package ticket_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/ticket-engine/internal/ledger"
	"github.com/noah-isme/ticket-engine/internal/ticket"
)

var (
	fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	saleTemplate = ledger.Template{ID: 1, Name: "Sale", TargetAccountTemplateID: 10}
	vatTemplate  = ledger.Template{ID: 2, Name: "VAT"}
	vat          = &ticket.TaxTemplate{ID: 1, Name: "VAT", Rate: dec("10"), TransactionTemplate: vatTemplate}

	burger = ticket.MenuItem{ID: 1, Name: "Burger", TaxTemplate: vat}
	cola   = ticket.MenuItem{ID: 2, Name: "Cola"}

	regular = ticket.Portion{Name: "Regular", Price: dec("100")}
	small   = ticket.Portion{Name: "Small", Price: dec("3")}

	cashTemplate = ticket.PaymentTemplate{ID: 1, Name: "Cash", TransactionTemplate: ledger.Template{ID: 30, Name: "Cash Payment"}}
	till         = ledger.Account{ID: 5, TemplateID: 3, Name: "Till"}
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTicket() (*ticket.Ticket, *ledger.Document) {
	doc := ledger.NewDocument()
	t := ticket.New()
	t.Ledger = doc
	t.Now = func() time.Time { return fixedNow }
	t.AccountTemplateID = 1
	t.AccountID = 100
	return t, doc
}

func discountTemplate(id int64, method ticket.Method, amount string) ticket.CalculationTemplate {
	return ticket.CalculationTemplate{
		ID:                  id,
		Name:                "Discount",
		Method:              method,
		Amount:              dec(amount),
		DecreaseAmount:      true,
		Order:               1,
		TransactionTemplate: ledger.Template{ID: 100 + id, Name: "Discount"},
	}
}

func serviceTemplate(id int64, method ticket.Method, amount string) ticket.CalculationTemplate {
	return ticket.CalculationTemplate{
		ID:                  id,
		Name:                "Service",
		Method:              method,
		Amount:              dec(amount),
		IncludeTax:          true,
		Order:               2,
		TransactionTemplate: ledger.Template{ID: 100 + id, Name: "Service"},
	}
}
