// Package ticket implements the ticket aggregate: order lines, discounts and service charges,
// taxes and payments, kept consistent with a ledger of account transactions on every mutation.
package ticket

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/ticket-engine/internal/ledger"
	"github.com/noah-isme/ticket-engine/internal/pricing"
)

// Ledger is the transaction document a ticket mirrors its orders, calculations and payments into.
type Ledger interface {
	AddSingletonTransaction(templateID int64, tmpl ledger.Template, accountTemplateID, accountID int64)
	AddNewTransaction(tmpl ledger.Template, accountTemplateID, accountID int64, to ledger.Account, amount decimal.Decimal) uuid.UUID
	UpdateSingletonTransactionAmount(templateID int64, name string, amount decimal.Decimal)
	RemoveTransaction(id uuid.UUID)
	RemoveTemplateTransactions(templateID int64)
	UpdateAccounts(accountTemplateID, accountID int64)
	SetName(ticketNumber string)
}

// Resource links the ticket to an external entity such as a table or a customer.
type Resource struct {
	ResourceTemplateID int64  `json:"resourceTemplateId"`
	ResourceID         int64  `json:"resourceId"`
	ResourceName       string `json:"resourceName"`
	AccountID          int64  `json:"accountId"`
	CustomData         string `json:"customData,omitempty"`
}

// PaidItem records a quantity of an item settled through a partial payment.
type PaidItem struct {
	MenuItemID int64           `json:"menuItemId"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// Ticket is the order aggregate for one customer visit. It is not safe for concurrent use.
type Ticket struct {
	ID                ID
	TicketNumber      string
	DepartmentID      int64
	Date              time.Time
	LastOrderDate     time.Time
	LastPaymentDate   time.Time
	LastUpdateTime    time.Time
	IsClosed          bool
	Locked            bool
	TotalAmount       decimal.Decimal
	RemainingAmount   decimal.Decimal
	AccountID         int64
	AccountTemplateID int64
	AccountName       string
	Note              string
	// Tags is the serialized tag value list.
	Tags string

	Orders       []*Order
	Calculations []*Calculation
	Payments     []*Payment
	PaidItems    []PaidItem
	Resources    []*Resource

	Ledger   Ledger
	Rounding pricing.Policy
	Now      func() time.Time

	pendingLock bool
	tagCache    tagCache
}

// New returns an open, unlocked ticket with an empty ledger document.
func New() *Ticket {
	t := &Ticket{
		Ledger:   ledger.NewDocument(),
		Rounding: pricing.DefaultPolicy(),
	}
	now := t.now()
	t.Date = now
	t.LastOrderDate = now
	t.LastPaymentDate = now
	t.LastUpdateTime = now
	return t
}

// Create builds a ticket for department bound to account and seeds it with the default
// calculations in ascending order.
func Create(department Department, account *ledger.Account, calculationTemplates []CalculationTemplate) *Ticket {
	t := New()
	t.DepartmentID = department.ID
	t.AccountTemplateID = department.SaleTransactionTemplate.TargetAccountTemplateID
	t.UpdateAccount(account)

	templates := append([]CalculationTemplate(nil), calculationTemplates...)
	sort.SliceStable(templates, func(i, j int) bool { return templates[i].Order < templates[j].Order })
	for _, tmpl := range templates {
		t.AddCalculation(tmpl, tmpl.Amount)
	}
	return t
}

// SetTicketNumber assigns the ticket number and renames the ledger document.
func (t *Ticket) SetTicketNumber(number string) {
	t.TicketNumber = number
	if t.Ledger != nil {
		t.Ledger.SetName(number)
	}
}

// UpdateAccount binds the ticket and its ledger entries to account. nil is ignored.
func (t *Ticket) UpdateAccount(account *ledger.Account) {
	if account == nil {
		return
	}
	t.AccountID = account.ID
	t.AccountTemplateID = account.TemplateID
	t.AccountName = account.Name
	t.Ledger.UpdateAccounts(t.AccountTemplateID, t.AccountID)
}

// Recalculate refreshes order and tax ledger amounts, the cached totals and the closed flag.
func (t *Ticket) Recalculate() {
	if len(t.Orders) > 0 {
		plain := t.PlainSum()
		preTax := t.PreTaxServicesTotal()

		amounts, keys := groupOrders(t.Orders, func(o *Order) int64 { return o.TransactionTemplateID }, (*Order).Total)
		for _, key := range keys {
			t.Ledger.UpdateSingletonTransactionAmount(key, "", amounts[key])
		}
		taxes, taxKeys := groupOrders(t.Orders, func(o *Order) int64 { return o.TaxTransactionTemplateID }, func(o *Order) decimal.Decimal {
			return o.TotalTaxAmount(plain, preTax)
		})
		for _, key := range taxKeys {
			if key > 0 {
				t.Ledger.UpdateSingletonTransactionAmount(key, "", taxes[key])
			}
		}
		t.Ledger.UpdateAccounts(t.AccountTemplateID, t.AccountID)
	}
	t.RemainingAmount = t.Remaining()
	t.TotalAmount = t.Sum()
	t.UpdateIsClosed()
}

func groupOrders(orders []*Order, key func(*Order) int64, value func(*Order) decimal.Decimal) (map[int64]decimal.Decimal, []int64) {
	sums := make(map[int64]decimal.Decimal)
	var keys []int64
	for _, o := range orders {
		k := key(o)
		if _, ok := sums[k]; !ok {
			keys = append(keys, k)
			sums[k] = decimal.Zero
		}
		sums[k] = sums[k].Add(value(o))
	}
	return sums, keys
}

// Remaining is the rounded difference between the ticket sum and the payments.
func (t *Ticket) Remaining() decimal.Decimal {
	return t.Rounding.Round(t.Sum().Sub(t.PaymentAmount()))
}

// UpdateIsClosed closes the ticket when nothing is left to pay and no timer is running.
// A ticket without orders has nothing to settle and stays open; only ForceClose closes it.
func (t *Ticket) UpdateIsClosed() {
	t.IsClosed = len(t.Orders) > 0 && t.RemainingAmount.IsZero() && t.ActiveTimerAmount().IsZero()
}

// ForceClose closes the ticket regardless of the remaining amount.
func (t *Ticket) ForceClose() {
	t.IsClosed = true
	t.touch()
}

// CanSubmit reports whether the ticket still accepts changes from the order flow.
func (t *Ticket) CanSubmit() bool {
	return !t.IsClosed
}

// CanCloseTicket reports whether the ticket may be closed without settling it.
func (t *Ticket) CanCloseTicket() bool {
	return t.Remaining().IsZero() || len(t.Resources) > 0 || t.IsTagged() || len(t.Orders) == 0
}

// ActiveTimerAmount is the value of orders whose timers are still running.
func (t *Ticket) ActiveTimerAmount() decimal.Decimal {
	total := decimal.Zero
	for _, o := range t.Orders {
		if o.Timer.IsActive() {
			total = total.Add(o.ItemValue())
		}
	}
	return total
}

// StopActiveTimers stops every running order timer.
func (t *Ticket) StopActiveTimers() {
	now := t.now()
	for _, o := range t.Orders {
		o.StopTimer(now)
	}
}

// UpdateResource links, relinks or, with resourceID 0, unlinks the resource of a template.
func (t *Ticket) UpdateResource(resourceTemplateID, resourceID int64, resourceName string, accountID int64, customData string) {
	var existing *Resource
	idx := -1
	for i, r := range t.Resources {
		if r.ResourceTemplateID == resourceTemplateID {
			existing, idx = r, i
			break
		}
	}
	switch {
	case existing == nil && resourceID > 0:
		t.Resources = append(t.Resources, &Resource{
			ResourceTemplateID: resourceTemplateID,
			ResourceID:         resourceID,
			ResourceName:       resourceName,
			AccountID:          accountID,
			CustomData:         customData,
		})
	case existing != nil && resourceID > 0:
		existing.ResourceID = resourceID
		existing.ResourceName = resourceName
		existing.AccountID = accountID
		existing.CustomData = customData
	case existing != nil:
		t.Resources = append(t.Resources[:idx], t.Resources[idx+1:]...)
	}
	t.touch()
}

// ResourceName returns the cached name of the resource linked for a template.
func (t *Ticket) ResourceName(resourceTemplateID int64) string {
	for _, r := range t.Resources {
		if r.ResourceTemplateID == resourceTemplateID {
			return r.ResourceName
		}
	}
	return ""
}

func (t *Ticket) now() time.Time {
	if t != nil && t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t *Ticket) touch() {
	t.LastUpdateTime = t.now()
}
