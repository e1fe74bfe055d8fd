package ticket

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/ticket-engine/internal/ledger"
)

// Department binds new tickets to a sale transaction template.
type Department struct {
	ID                      int64
	Name                    string
	SaleTransactionTemplate ledger.Template
}

// TaxTemplate describes how tax is derived from an order price.
type TaxTemplate struct {
	ID                  int64
	Name                string
	Rate                decimal.Decimal
	TaxIncluded         bool
	TransactionTemplate ledger.Template
}

// MenuItem is the product an order line is created from.
type MenuItem struct {
	ID          int64
	Name        string
	TaxTemplate *TaxTemplate
}

// Portion is a priced variant of a menu item. Prices holds optional per price-tag overrides.
type Portion struct {
	Name   string
	Price  decimal.Decimal
	Prices map[string]decimal.Decimal
}

// PriceFor returns the tagged price when one is configured, otherwise the base price.
func (p Portion) PriceFor(priceTag string) decimal.Decimal {
	if priceTag != "" {
		if v, ok := p.Prices[priceTag]; ok && !v.IsZero() {
			return v
		}
	}
	return p.Price
}

// TimerTemplate starts a timer on orders billed by duration.
type TimerTemplate struct {
	ID   int64
	Name string
}

// CalculationTemplate configures a discount or service charge.
type CalculationTemplate struct {
	ID                  int64
	Name                string
	Method              Method
	Amount              decimal.Decimal
	IncludeTax          bool
	DecreaseAmount      bool
	Order               int
	TransactionTemplate ledger.Template
}

// PaymentTemplate configures a payment method.
type PaymentTemplate struct {
	ID                  int64
	Name                string
	TransactionTemplate ledger.Template
}
