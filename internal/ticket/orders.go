package ticket

import (
	"fmt"
	"sort"

	"github.com/jinzhu/copier"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/ticket-engine/internal/ledger"
)

// AddOrder adds one unit of portion and registers the order's charge and tax ledger entries.
func (t *Ticket) AddOrder(template ledger.Template, userName string, item MenuItem, portion Portion, priceTag string, timer *TimerTemplate) *Order {
	t.Locked = false
	now := t.now()
	o := &Order{}
	o.UpdateMenuItem(userName, item, portion, priceTag, one, now)
	o.TransactionTemplateID = template.ID

	t.Ledger.AddSingletonTransaction(template.ID, template, t.AccountTemplateID, t.AccountID)
	if item.TaxTemplate != nil {
		t.Ledger.AddSingletonTransaction(o.TaxTransactionTemplateID, item.TaxTemplate.TransactionTemplate, t.AccountTemplateID, t.AccountID)
	}
	if timer != nil {
		o.Timer = &Timer{TemplateID: timer.ID, StartedAt: now}
	}
	t.Orders = append(t.Orders, o)
	t.touch()
	return o
}

// RemoveOrder removes o. Ledger entries are deleted once no remaining order uses their template.
func (t *Ticket) RemoveOrder(o *Order) {
	for i, existing := range t.Orders {
		if existing == o {
			t.Orders = append(t.Orders[:i], t.Orders[i+1:]...)
			break
		}
	}
	if !t.orderUsesTemplate(o.TransactionTemplateID, false) {
		t.Ledger.RemoveTemplateTransactions(o.TransactionTemplateID)
	}
	if o.TaxTransactionTemplateID > 0 && !t.orderUsesTemplate(o.TaxTransactionTemplateID, true) {
		t.Ledger.RemoveTemplateTransactions(o.TaxTransactionTemplateID)
	}
	t.touch()
}

// RemoveOrders removes every order in orders.
func (t *Ticket) RemoveOrders(orders []*Order) {
	for _, o := range append([]*Order(nil), orders...) {
		t.RemoveOrder(o)
	}
}

// CancelOrders removes the uncommitted orders among orders and unlocks the ticket.
func (t *Ticket) CancelOrders(orders []*Order) {
	t.Locked = false
	for _, o := range append([]*Order(nil), orders...) {
		if !o.ID.IsAssigned() {
			t.RemoveOrder(o)
		}
	}
}

// CanCancelSelectedOrders reports whether all selected orders are uncommitted lines of this ticket.
func (t *Ticket) CanCancelSelectedOrders(selected []*Order) bool {
	if len(selected) == 0 {
		return false
	}
	for _, o := range selected {
		if o.ID.IsAssigned() || !t.owns(o) {
			return false
		}
	}
	return true
}

// CanRemoveSelectedOrders reports whether the selected value fits in the remaining amount.
func (t *Ticket) CanRemoveSelectedOrders(selected []*Order) bool {
	total := decimal.Zero
	for _, o := range selected {
		if o.CalculatePrice {
			total = total.Add(o.SelectedValue())
		}
	}
	return total.LessThanOrEqual(t.Remaining())
}

// UnlockedOrders returns the unlocked orders ordered by identity, uncommitted first.
func (t *Ticket) UnlockedOrders() []*Order {
	var out []*Order
	for _, o := range t.Orders {
		if !o.Locked {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID.Int64() < out[j].ID.Int64() })
	return out
}

// ItemCount returns the number of order lines.
func (t *Ticket) ItemCount() int {
	return len(t.Orders)
}

// OrderStateTotal sums the value of orders in a state group.
func (t *Ticket) OrderStateTotal(group string) decimal.Decimal {
	total := decimal.Zero
	for _, o := range t.Orders {
		if o.StateGroupName == group {
			total = total.Add(o.ItemValue())
		}
	}
	return total
}

// UpdateTax applies tmpl to every order. nil clears tax.
func (t *Ticket) UpdateTax(tmpl *TaxTemplate) {
	for _, o := range t.Orders {
		previous := o.TaxTransactionTemplateID
		o.UpdateTaxTemplate(tmpl)
		if tmpl != nil {
			t.Ledger.AddSingletonTransaction(o.TaxTransactionTemplateID, tmpl.TransactionTemplate, t.AccountTemplateID, t.AccountID)
		}
		if previous > 0 && previous != o.TaxTransactionTemplateID && !t.orderUsesTemplate(previous, true) {
			t.Ledger.RemoveTemplateTransactions(previous)
		}
	}
	t.touch()
}

// CloneOrder appends an uncommitted copy of o with zero quantity and returns it.
func (t *Ticket) CloneOrder(o *Order) (*Order, error) {
	if !t.owns(o) {
		return nil, ErrOrderNotOwned
	}
	clone := &Order{}
	if err := copier.Copy(clone, o); err != nil {
		return nil, fmt.Errorf("ticket: clone order: %w", err)
	}
	clone.ID = Unassigned
	clone.CreatedAt = t.now()
	clone.Quantity = decimal.Zero
	clone.Modifiers = make([]Modifier, len(o.Modifiers))
	for i, m := range o.Modifiers {
		m.ID = Unassigned
		clone.Modifiers[i] = m
	}
	if o.Timer != nil {
		timer := *o.Timer
		clone.Timer = &timer
	}
	t.Orders = append(t.Orders, clone)
	return clone, nil
}

// ExtractSelectedOrders splits the selected quantity of each order into a new uncommitted
// line. Orders whose whole quantity is selected are left as they are.
func (t *Ticket) ExtractSelectedOrders(selected []*Order) ([]*Order, error) {
	for _, o := range selected {
		if !o.SelectedQuantity.IsPositive() {
			return nil, fmt.Errorf("%w: %s has %s selected", ErrInvalidSelection, o.MenuItemName, o.SelectedQuantity)
		}
		if !t.owns(o) {
			return nil, fmt.Errorf("%w: %s", ErrOrderNotOwned, o.MenuItemName)
		}
	}
	var extracted []*Order
	for _, o := range selected {
		if o.SelectedQuantity.GreaterThanOrEqual(o.Quantity) {
			continue
		}
		clone, err := t.CloneOrder(o)
		if err != nil {
			return nil, err
		}
		clone.Quantity = o.SelectedQuantity
		o.Quantity = o.Quantity.Sub(o.SelectedQuantity)
		extracted = append(extracted, clone)
	}
	return extracted, nil
}

// MergeOrdersAndUpdateOrderNumbers collapses new single-quantity lines of the same item into
// one line and stamps unnumbered unlocked orders with orderNumber.
func (t *Ticket) MergeOrdersAndUpdateOrderNumbers(orderNumber int) {
	t.LastOrderDate = t.now()

	var candidates []*Order
	for _, o := range t.Orders {
		if !o.Locked && !o.ID.IsAssigned() {
			candidates = append(candidates, o)
		}
	}

	var merged []*Order
	seeded := make(map[int64]bool)
	for _, o := range candidates {
		if !o.Quantity.Equal(one) {
			merged = append(merged, o)
			seeded[o.MenuItemID] = true
		}
	}
	for _, o := range candidates {
		if o.Quantity.Equal(one) && seeded[o.MenuItemID] {
			merged = append(merged, o)
		}
	}
	for _, o := range candidates {
		if !o.Quantity.Equal(one) || seeded[o.MenuItemID] {
			continue
		}
		if len(o.Modifiers) > 0 {
			merged = append(merged, o)
			continue
		}
		if target := findMergeTarget(merged, o); target != nil {
			target.Quantity = target.Quantity.Add(o.Quantity)
			continue
		}
		merged = append(merged, o)
	}

	kept := make(map[*Order]bool, len(merged))
	for _, o := range merged {
		kept[o] = true
	}
	for _, o := range candidates {
		if !kept[o] {
			t.RemoveOrder(o)
		}
	}

	for _, o := range t.Orders {
		if !o.Locked && o.OrderNumber == 0 {
			o.OrderNumber = orderNumber
		}
	}
}

func findMergeTarget(merged []*Order, o *Order) *Order {
	for _, m := range merged {
		if len(m.Modifiers) == 0 &&
			m.MenuItemID == o.MenuItemID &&
			m.PortionName == o.PortionName &&
			m.CalculatePrice == o.CalculatePrice {
			return m
		}
	}
	return nil
}

func (t *Ticket) owns(o *Order) bool {
	for _, existing := range t.Orders {
		if existing == o {
			return true
		}
	}
	return false
}

func (t *Ticket) orderUsesTemplate(templateID int64, tax bool) bool {
	for _, o := range t.Orders {
		if !tax && o.TransactionTemplateID == templateID {
			return true
		}
		if tax && o.TaxTransactionTemplateID == templateID {
			return true
		}
	}
	return false
}
