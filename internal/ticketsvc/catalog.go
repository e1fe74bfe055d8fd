package ticketsvc

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/ticket-engine/internal/ledger"
	"github.com/noah-isme/ticket-engine/internal/ticket"
)

// ErrUnknownReference is returned when a request names a catalog entry that does not exist.
var ErrUnknownReference = errors.New("unknown reference")

// Catalog resolves the templates and master data tickets are built from.
type Catalog interface {
	Department(id int64) (ticket.Department, error)
	MenuItem(id int64) (ticket.MenuItem, []ticket.Portion, error)
	CalculationTemplate(id int64) (ticket.CalculationTemplate, error)
	DefaultCalculations(departmentID int64) []ticket.CalculationTemplate
	PaymentTemplate(id int64) (ticket.PaymentTemplate, error)
	TimerTemplate(id int64) (ticket.TimerTemplate, error)
	Account(id int64) (ledger.Account, error)
}

// MenuEntry is a menu item with its portions.
type MenuEntry struct {
	Item     ticket.MenuItem
	Portions []ticket.Portion
}

// MemoryCatalog is a Catalog backed by maps. It is read-only once built.
type MemoryCatalog struct {
	Departments  map[int64]ticket.Department
	Menu         map[int64]MenuEntry
	Calculations map[int64]ticket.CalculationTemplate
	// AutoCalculations lists, per department, the calculation templates applied to new tickets.
	AutoCalculations map[int64][]int64
	Payments         map[int64]ticket.PaymentTemplate
	Timers           map[int64]ticket.TimerTemplate
	Accounts         map[int64]ledger.Account
}

func (c *MemoryCatalog) Department(id int64) (ticket.Department, error) {
	d, ok := c.Departments[id]
	if !ok {
		return ticket.Department{}, fmt.Errorf("department %d: %w", id, ErrUnknownReference)
	}
	return d, nil
}

func (c *MemoryCatalog) MenuItem(id int64) (ticket.MenuItem, []ticket.Portion, error) {
	e, ok := c.Menu[id]
	if !ok {
		return ticket.MenuItem{}, nil, fmt.Errorf("menu item %d: %w", id, ErrUnknownReference)
	}
	return e.Item, e.Portions, nil
}

func (c *MemoryCatalog) CalculationTemplate(id int64) (ticket.CalculationTemplate, error) {
	t, ok := c.Calculations[id]
	if !ok {
		return ticket.CalculationTemplate{}, fmt.Errorf("calculation template %d: %w", id, ErrUnknownReference)
	}
	return t, nil
}

func (c *MemoryCatalog) DefaultCalculations(departmentID int64) []ticket.CalculationTemplate {
	ids := c.AutoCalculations[departmentID]
	out := make([]ticket.CalculationTemplate, 0, len(ids))
	for _, id := range ids {
		if t, ok := c.Calculations[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func (c *MemoryCatalog) PaymentTemplate(id int64) (ticket.PaymentTemplate, error) {
	t, ok := c.Payments[id]
	if !ok {
		return ticket.PaymentTemplate{}, fmt.Errorf("payment template %d: %w", id, ErrUnknownReference)
	}
	return t, nil
}

func (c *MemoryCatalog) TimerTemplate(id int64) (ticket.TimerTemplate, error) {
	t, ok := c.Timers[id]
	if !ok {
		return ticket.TimerTemplate{}, fmt.Errorf("timer template %d: %w", id, ErrUnknownReference)
	}
	return t, nil
}

func (c *MemoryCatalog) Account(id int64) (ledger.Account, error) {
	a, ok := c.Accounts[id]
	if !ok {
		return ledger.Account{}, fmt.Errorf("account %d: %w", id, ErrUnknownReference)
	}
	return a, nil
}

// findPortion returns the named portion, or the first one when name is empty.
func findPortion(portions []ticket.Portion, name string) (ticket.Portion, error) {
	if len(portions) == 0 {
		return ticket.Portion{}, fmt.Errorf("no portions: %w", ErrUnknownReference)
	}
	if name == "" {
		return portions[0], nil
	}
	for _, p := range portions {
		if p.Name == name {
			return p, nil
		}
	}
	return ticket.Portion{}, fmt.Errorf("portion %q: %w", name, ErrUnknownReference)
}

// DemoCatalog returns a small restaurant catalog used by the server when no
// other source is configured.
func DemoCatalog() *MemoryCatalog {
	sale := ledger.Template{ID: 1, Name: "Sale Transaction", SourceAccountTemplateID: 1, TargetAccountTemplateID: 2}
	vatTx := ledger.Template{ID: 2, Name: "VAT Transaction", SourceAccountTemplateID: 1, TargetAccountTemplateID: 3}
	vat := &ticket.TaxTemplate{ID: 1, Name: "VAT", Rate: decimal.NewFromInt(10), TransactionTemplate: vatTx}

	calcs := map[int64]ticket.CalculationTemplate{
		1: {ID: 1, Name: "Discount", Method: ticket.MethodPercentOfBase, Amount: decimal.NewFromInt(10), DecreaseAmount: true, Order: 1,
			TransactionTemplate: ledger.Template{ID: 10, Name: "Discount Transaction"}},
		2: {ID: 2, Name: "Service", Method: ticket.MethodPercentOfRunning, Amount: decimal.NewFromInt(5), IncludeTax: true, Order: 2,
			TransactionTemplate: ledger.Template{ID: 11, Name: "Service Transaction"}},
		3: {ID: 3, Name: "Round", Method: ticket.MethodRoundTo, Amount: decimal.RequireFromString("0.05"), DecreaseAmount: true, IncludeTax: true, Order: 9,
			TransactionTemplate: ledger.Template{ID: 12, Name: "Rounding Transaction"}},
		4: {ID: 4, Name: "Fixed Total", Method: ticket.MethodFixedTarget, DecreaseAmount: true, IncludeTax: true, Order: 8,
			TransactionTemplate: ledger.Template{ID: 13, Name: "Fixed Total Transaction"}},
	}
	return &MemoryCatalog{
		Departments: map[int64]ticket.Department{
			1: {ID: 1, Name: "Restaurant", SaleTransactionTemplate: sale},
		},
		Menu: map[int64]MenuEntry{
			1: {Item: ticket.MenuItem{ID: 1, Name: "Burger", TaxTemplate: vat}, Portions: []ticket.Portion{
				{Name: "Normal", Price: decimal.NewFromInt(100)},
				{Name: "Large", Price: decimal.NewFromInt(130), Prices: map[string]decimal.Decimal{"happy": decimal.NewFromInt(110)}},
			}},
			2: {Item: ticket.MenuItem{ID: 2, Name: "Cola"}, Portions: []ticket.Portion{
				{Name: "Can", Price: decimal.RequireFromString("2.99")},
			}},
			3: {Item: ticket.MenuItem{ID: 3, Name: "Pool Table"}, Portions: []ticket.Portion{
				{Name: "Hour", Price: decimal.NewFromInt(8)},
			}},
		},
		Calculations:     calcs,
		AutoCalculations: map[int64][]int64{},
		Payments: map[int64]ticket.PaymentTemplate{
			1: {ID: 1, Name: "Cash", TransactionTemplate: ledger.Template{ID: 20, Name: "Cash Payment"}},
			2: {ID: 2, Name: "Card", TransactionTemplate: ledger.Template{ID: 21, Name: "Card Payment"}},
		},
		Timers: map[int64]ticket.TimerTemplate{
			1: {ID: 1, Name: "Table Time"},
		},
		Accounts: map[int64]ledger.Account{
			1: {ID: 1, TemplateID: 4, Name: "Cash Drawer"},
			2: {ID: 2, TemplateID: 5, Name: "Card Terminal"},
			3: {ID: 3, TemplateID: 6, Name: "Walk-in Customer"},
		},
	}
}
