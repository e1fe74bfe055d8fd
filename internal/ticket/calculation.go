package ticket

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/ticket-engine/internal/ledger"
	"github.com/noah-isme/ticket-engine/internal/pricing"
)

// Method selects how a calculation derives its effect.
type Method int

const (
	// MethodPercentOfBase applies a percentage of the sum the pass started with.
	MethodPercentOfBase Method = iota
	// MethodPercentOfRunning applies a percentage of the running sum.
	MethodPercentOfRunning
	// MethodFixedAmount applies the configured amount verbatim.
	MethodFixedAmount
	// MethodFixedTarget brings the running sum to the configured amount.
	MethodFixedTarget
	// MethodRoundTo rounds the running sum to a multiple of the configured amount.
	// A negative multiple always rounds towards zero.
	MethodRoundTo
)

var methodNames = map[Method]string{
	MethodPercentOfBase:    "percent_of_base",
	MethodPercentOfRunning: "percent_of_running",
	MethodFixedAmount:      "fixed_amount",
	MethodFixedTarget:      "fixed_target",
	MethodRoundTo:          "round_to",
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod resolves a method name.
func ParseMethod(value string) (Method, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	for m, name := range methodNames {
		if name == v {
			return m, nil
		}
	}
	return MethodFixedAmount, fmt.Errorf("ticket: unknown calculation method %q", value)
}

// Calculation is a discount or service charge applied to a ticket.
type Calculation struct {
	ID                  ID              `json:"id"`
	TemplateID          int64           `json:"templateId"`
	Name                string          `json:"name"`
	Method              Method          `json:"method"`
	Amount              decimal.Decimal `json:"amount"`
	CalculationAmount   decimal.Decimal `json:"calculationAmount"`
	IncludeTax          bool            `json:"includeTax"`
	DecreaseAmount      bool            `json:"decreaseAmount"`
	Order               int             `json:"order"`
	TransactionTemplate ledger.Template `json:"-"`
}

// TransactionTemplateID is the ledger template the calculation is mirrored under.
func (c *Calculation) TransactionTemplateID() int64 {
	return c.TransactionTemplate.ID
}

// effect computes the raw adjustment before rounding. base is the sum the pass started with.
// Methods that resolve to a no-op zero the configured amount so the caller drops the calculation.
func (c *Calculation) effect(base, current decimal.Decimal) decimal.Decimal {
	switch c.Method {
	case MethodPercentOfBase:
		if !c.Amount.IsPositive() {
			return decimal.Zero
		}
		return pricing.Percent(base, c.Amount)
	case MethodPercentOfRunning:
		if !c.Amount.IsPositive() {
			return decimal.Zero
		}
		return pricing.Percent(current, c.Amount)
	case MethodFixedTarget:
		return c.targetEffect(current)
	case MethodRoundTo:
		return c.roundingEffect(current)
	default:
		return c.Amount
	}
}

func (c *Calculation) targetEffect(current decimal.Decimal) decimal.Decimal {
	switch {
	case c.Amount.Equal(current),
		c.DecreaseAmount && c.Amount.GreaterThan(current),
		!c.DecreaseAmount && c.Amount.LessThan(current):
		c.Amount = decimal.Zero
		return decimal.Zero
	}
	return c.Amount.Sub(current)
}

func (c *Calculation) roundingEffect(current decimal.Decimal) decimal.Decimal {
	if c.Amount.IsZero() {
		return decimal.Zero
	}
	steps := current.Div(c.Amount)
	if c.Amount.IsPositive() {
		steps = steps.Round(0)
	} else {
		steps = steps.Truncate(0)
	}
	adjustment := steps.Mul(c.Amount).Sub(current)
	if c.DecreaseAmount && adjustment.IsPositive() {
		return decimal.Zero
	}
	if !c.DecreaseAmount && adjustment.IsNegative() {
		return decimal.Zero
	}
	return adjustment
}

// orderedCalculations returns a stable, ordering-key sorted copy of the calculations
// on the requested side of tax.
func (t *Ticket) orderedCalculations(includeTax bool) []*Calculation {
	out := make([]*Calculation, 0, len(t.Calculations))
	for _, c := range t.Calculations {
		if c.IncludeTax == includeTax {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// calculateServices applies calculations in order over sum and returns the rounded total effect.
func (t *Ticket) calculateServices(calculations []*Calculation, sum decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	current := sum
	for _, c := range calculations {
		amount := t.Rounding.Round(c.effect(sum, current))
		if c.DecreaseAmount {
			amount = amount.Abs().Neg()
		}
		c.CalculationAmount = amount
		total = total.Add(amount)
		current = current.Add(amount)

		if c.Amount.IsZero() {
			t.dropCalculation(c)
		}
		t.UpdateCalculationTransaction(c, amount.Abs())
	}
	return t.Rounding.Round(total)
}

// CalculateTax returns the line tax, shifted proportionally by pre-tax services.
func (t *Ticket) CalculateTax(plainSum, preTaxServices decimal.Decimal) decimal.Decimal {
	tax := decimal.Zero
	for _, o := range t.Orders {
		tax = tax.Add(o.TaxTotal())
	}
	if preTaxServices.IsZero() || plainSum.IsZero() {
		return tax
	}
	return tax.Add(tax.Mul(preTaxServices).Div(plainSum))
}

// Sum returns the ticket total: plain sum, pre-tax services, tax, then post-tax services.
func (t *Ticket) Sum() decimal.Decimal {
	plain := t.PlainSum()
	services := t.calculateServices(t.orderedCalculations(false), plain)
	tax := t.CalculateTax(plain, services)
	base := plain.Add(services).Add(tax)
	return base.Add(t.calculateServices(t.orderedCalculations(true), base))
}

// PlainSum is the sum of priced order totals before any calculation or tax.
func (t *Ticket) PlainSum() decimal.Decimal {
	sum := decimal.Zero
	for _, o := range t.Orders {
		sum = sum.Add(o.Total())
	}
	return sum
}

// PreTaxServicesTotal is the effect of calculations applied before tax.
func (t *Ticket) PreTaxServicesTotal() decimal.Decimal {
	return t.calculateServices(t.orderedCalculations(false), t.PlainSum())
}

// PostTaxServicesTotal is the effect of calculations applied after tax.
func (t *Ticket) PostTaxServicesTotal() decimal.Decimal {
	plain := t.PlainSum()
	services := t.calculateServices(t.orderedCalculations(false), plain)
	tax := t.CalculateTax(plain, services)
	return t.calculateServices(t.orderedCalculations(true), plain.Add(services).Add(tax))
}

// AddCalculation applies tmpl with amount. Applying the amount a calculation already has
// toggles it off. It returns the active calculation, or nil when it was removed.
func (t *Ticket) AddCalculation(tmpl CalculationTemplate, amount decimal.Decimal) *Calculation {
	c := t.findCalculation(tmpl.ID, tmpl.TransactionTemplate.ID)
	switch {
	case c == nil:
		c = &Calculation{
			TemplateID:          tmpl.ID,
			Name:                tmpl.Name,
			Method:              tmpl.Method,
			Amount:              amount,
			IncludeTax:          tmpl.IncludeTax,
			DecreaseAmount:      tmpl.DecreaseAmount,
			Order:               tmpl.Order,
			TransactionTemplate: tmpl.TransactionTemplate,
		}
		t.Calculations = append(t.Calculations, c)
		t.Ledger.AddSingletonTransaction(c.TransactionTemplateID(), c.TransactionTemplate, t.AccountTemplateID, t.AccountID)
	case c.Amount.Equal(amount):
		amount = decimal.Zero
	default:
		c.Amount = amount
	}
	c.Name = tmpl.Name
	if amount.IsZero() {
		t.dropCalculation(c)
		t.UpdateCalculationTransaction(c, decimal.Zero)
		return nil
	}
	t.touch()
	return c
}

// RemoveCalculation removes c and its ledger entry when no other calculation shares the template.
func (t *Ticket) RemoveCalculation(c *Calculation) {
	t.dropCalculation(c)
	templateID := c.TransactionTemplateID()
	for _, other := range t.Calculations {
		if other.TransactionTemplateID() == templateID {
			return
		}
	}
	t.Ledger.RemoveTemplateTransactions(templateID)
}

// UpdateCalculationTransaction mirrors amount into the calculation's ledger entry. A zero
// amount deletes the entry.
func (t *Ticket) UpdateCalculationTransaction(c *Calculation, amount decimal.Decimal) {
	templateID := c.TransactionTemplateID()
	if amount.IsZero() {
		t.Ledger.RemoveTemplateTransactions(templateID)
		return
	}
	t.Ledger.AddSingletonTransaction(templateID, c.TransactionTemplate, t.AccountTemplateID, t.AccountID)
	t.Ledger.UpdateSingletonTransactionAmount(templateID, c.Name, amount)
}

// CalculationTotal sums the effects of calculations named name, or all of them when name is empty.
func (t *Ticket) CalculationTotal(name string) decimal.Decimal {
	total := decimal.Zero
	for _, c := range t.Calculations {
		if name == "" || c.Name == name {
			total = total.Add(c.CalculationAmount)
		}
	}
	return total
}

func (t *Ticket) findCalculation(templateID, transactionTemplateID int64) *Calculation {
	for _, c := range t.Calculations {
		if c.TemplateID == templateID {
			return c
		}
	}
	for _, c := range t.Calculations {
		if c.TransactionTemplateID() == transactionTemplateID {
			return c
		}
	}
	return nil
}

func (t *Ticket) dropCalculation(c *Calculation) {
	for i, existing := range t.Calculations {
		if existing == c {
			t.Calculations = append(t.Calculations[:i], t.Calculations[i+1:]...)
			return
		}
	}
}
