package ticket

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Modifier is a tag value attached to an order line (extra topping, cooking note, ...).
// Price and TaxAmount are per modifier unit.
type Modifier struct {
	ID        ID              `json:"id"`
	TagName   string          `json:"tagName"`
	TagValue  string          `json:"tagValue"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	TaxAmount decimal.Decimal `json:"taxAmount"`
}

// Value is the price contribution of the modifier to one unit of its order.
func (m Modifier) Value() decimal.Decimal {
	return m.Price.Mul(m.Quantity)
}

// Tax is the modifier's tax for one unit of its order.
func (m Modifier) Tax() decimal.Decimal {
	return m.TaxAmount.Mul(m.Quantity)
}

// Timer tracks duration-billed orders.
type Timer struct {
	TemplateID int64      `json:"templateId"`
	StartedAt  time.Time  `json:"startedAt"`
	StoppedAt  *time.Time `json:"stoppedAt,omitempty"`
}

// IsActive reports whether the timer is still running.
func (t *Timer) IsActive() bool {
	return t != nil && t.StoppedAt == nil
}

// Order is one purchased item line on a ticket.
type Order struct {
	ID                       ID              `json:"id"`
	MenuItemID               int64           `json:"menuItemId"`
	MenuItemName             string          `json:"menuItemName"`
	PortionName              string          `json:"portionName"`
	PriceTag                 string          `json:"priceTag,omitempty"`
	Price                    decimal.Decimal `json:"price"`
	Quantity                 decimal.Decimal `json:"quantity"`
	SelectedQuantity         decimal.Decimal `json:"selectedQuantity"`
	CalculatePrice           bool            `json:"calculatePrice"`
	TaxAmount                decimal.Decimal `json:"taxAmount"`
	TaxRate                  decimal.Decimal `json:"taxRate"`
	TaxIncluded              bool            `json:"taxIncluded"`
	TaxTemplateID            int64           `json:"taxTemplateId,omitempty"`
	TaxTransactionTemplateID int64           `json:"taxTransactionTemplateId,omitempty"`
	TransactionTemplateID    int64           `json:"transactionTemplateId"`
	Modifiers                []Modifier      `json:"modifiers"`
	Locked                   bool            `json:"locked"`
	OrderNumber              int             `json:"orderNumber"`
	StateGroupName           string          `json:"stateGroupName,omitempty"`
	CreatedBy                string          `json:"createdBy"`
	CreatedAt                time.Time       `json:"createdAt"`
	Timer                    *Timer          `json:"timer,omitempty"`
}

// UpdateMenuItem binds the order to a menu item portion.
func (o *Order) UpdateMenuItem(userName string, item MenuItem, portion Portion, priceTag string, quantity decimal.Decimal, now time.Time) {
	o.MenuItemID = item.ID
	o.MenuItemName = item.Name
	o.PortionName = portion.Name
	o.PriceTag = priceTag
	o.Quantity = quantity
	o.CalculatePrice = true
	o.CreatedBy = userName
	o.CreatedAt = now
	o.UpdateTaxTemplate(item.TaxTemplate)
	o.UpdatePrice(portion.PriceFor(priceTag))
}

// UpdatePrice sets the unit price. With a tax-included rate the tax share is carved out of price.
func (o *Order) UpdatePrice(price decimal.Decimal) {
	o.Price, o.TaxAmount = o.splitTax(price)
}

// splitTax splits a gross unit price into net price and tax at the order's rate.
func (o *Order) splitTax(gross decimal.Decimal) (price, tax decimal.Decimal) {
	switch {
	case !o.TaxRate.IsPositive():
		return gross, decimal.Zero
	case o.TaxIncluded:
		tax = gross.Mul(o.TaxRate).Div(hundred.Add(o.TaxRate))
		return gross.Sub(tax), tax
	default:
		return gross, gross.Mul(o.TaxRate).Div(hundred)
	}
}

// gross is the unit price the customer saw before tax was split off.
func (o *Order) gross(price, tax decimal.Decimal) decimal.Decimal {
	if o.TaxIncluded {
		return price.Add(tax)
	}
	return price
}

// UpdateTaxTemplate applies tmpl (nil clears tax) to the order and its modifiers, keeping the
// gross prices the customer saw. Modifier taxes are always re-derived at the new rate.
func (o *Order) UpdateTaxTemplate(tmpl *TaxTemplate) {
	gross := o.gross(o.Price, o.TaxAmount)
	modifierGross := make([]decimal.Decimal, len(o.Modifiers))
	for i, m := range o.Modifiers {
		modifierGross[i] = o.gross(m.Price, m.TaxAmount)
	}
	if tmpl == nil {
		o.TaxRate = decimal.Zero
		o.TaxIncluded = false
		o.TaxTemplateID = 0
		o.TaxTransactionTemplateID = 0
	} else {
		o.TaxRate = tmpl.Rate
		o.TaxIncluded = tmpl.TaxIncluded
		o.TaxTemplateID = tmpl.ID
		o.TaxTransactionTemplateID = tmpl.TransactionTemplate.ID
	}
	o.UpdatePrice(gross)
	for i := range o.Modifiers {
		o.Modifiers[i].Price, o.Modifiers[i].TaxAmount = o.splitTax(modifierGross[i])
	}
}

// AddModifier attaches a tag value to the order. A modifier without an explicit tax amount
// is taxed at the order's rate, the same way UpdatePrice taxes the order price.
func (o *Order) AddModifier(m Modifier) {
	if m.Quantity.IsZero() {
		m.Quantity = one
	}
	if m.TaxAmount.IsZero() {
		m.Price, m.TaxAmount = o.splitTax(m.Price)
	}
	o.Modifiers = append(o.Modifiers, m)
}

// ItemPrice is the unit price including modifier prices.
func (o *Order) ItemPrice() decimal.Decimal {
	price := o.Price
	for _, m := range o.Modifiers {
		price = price.Add(m.Value())
	}
	return price
}

// ItemValue is quantity times item price, regardless of CalculatePrice.
func (o *Order) ItemValue() decimal.Decimal {
	return o.Quantity.Mul(o.ItemPrice())
}

// Total is the order's contribution to the plain sum.
func (o *Order) Total() decimal.Decimal {
	if !o.CalculatePrice {
		return decimal.Zero
	}
	return o.ItemValue()
}

// TaxTotal is the unscaled tax of the line.
func (o *Order) TaxTotal() decimal.Decimal {
	if !o.CalculatePrice {
		return decimal.Zero
	}
	tax := o.TaxAmount
	for _, m := range o.Modifiers {
		tax = tax.Add(m.Tax())
	}
	return tax.Mul(o.Quantity)
}

// TotalTaxAmount is the line tax after the proportional shift caused by pre-tax services.
func (o *Order) TotalTaxAmount(plainSum, preTaxServices decimal.Decimal) decimal.Decimal {
	tax := o.TaxTotal()
	if preTaxServices.IsZero() || plainSum.IsZero() {
		return tax
	}
	return tax.Add(tax.Mul(preTaxServices).Div(plainSum))
}

// SelectedValue is the value of the selected quantity.
func (o *Order) SelectedValue() decimal.Decimal {
	return o.SelectedQuantity.Mul(o.ItemPrice())
}

// StopTimer stops an active timer.
func (o *Order) StopTimer(now time.Time) {
	if !o.Timer.IsActive() {
		return
	}
	stopped := now
	o.Timer.StoppedAt = &stopped
}
