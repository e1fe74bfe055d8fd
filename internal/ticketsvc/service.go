package ticketsvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/ticket-engine/internal/events"
	"github.com/noah-isme/ticket-engine/internal/ledger"
	"github.com/noah-isme/ticket-engine/internal/lock"
	"github.com/noah-isme/ticket-engine/internal/obs"
	"github.com/noah-isme/ticket-engine/internal/pricing"
	"github.com/noah-isme/ticket-engine/internal/ticket"
)

var (
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTicketClosed is returned when a closed ticket receives a change that needs an open one.
	ErrTicketClosed = errors.New("ticket is closed")
	// ErrNothingToPay is returned when a payment is attempted on a settled ticket.
	ErrNothingToPay = errors.New("nothing left to pay")
	// ErrCannotClose is returned when a ticket with an unpaid, untagged balance is closed.
	ErrCannotClose = errors.New("ticket cannot be closed")
)

// Service runs ticket operations one at a time per ticket, keeping the store,
// the event stream, logs and metrics in step with every change.
type Service struct {
	Store   Store
	Catalog Catalog
	Locker  lock.Locker
	Events  *events.Bus
	Logger  zerolog.Logger
	Metrics *obs.TicketMetrics
	// Rounding defaults to pricing.DefaultPolicy when nil.
	Rounding *pricing.Policy
	LockTTL  time.Duration
	Now      func() time.Time
}

// OpenInput describes a new ticket.
type OpenInput struct {
	DepartmentID int64
	AccountID    int64
	Note         string
}

// ModifierInput describes a modifier attached to a new order.
type ModifierInput struct {
	TagName  string
	TagValue string
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// AddOrderInput describes a new order line. A zero quantity means one.
type AddOrderInput struct {
	MenuItemID      int64
	PortionName     string
	PriceTag        string
	Quantity        decimal.Decimal
	UserName        string
	TimerTemplateID int64
	Modifiers       []ModifierInput
}

// AddPaymentInput describes a payment. A nil amount pays the remaining balance.
type AddPaymentInput struct {
	PaymentTemplateID int64
	AccountID         int64
	Amount            *decimal.Decimal
	UserID            int64
}

// ResourceInput links, relinks or (ResourceID 0) unlinks a resource.
type ResourceInput struct {
	TemplateID int64
	ResourceID int64
	Name       string
	AccountID  int64
	CustomData string
}

// Selection picks a quantity of the order at Index.
type Selection struct {
	Index    int
	Quantity decimal.Decimal
}

// change is what a mutation reports for the event stream.
type change struct {
	topic   string
	payload any
	// forceClosed keeps the ticket closed through the recalculation that follows.
	forceClosed bool
	// commit assigns identities to uncommitted lines on save.
	commit bool
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) rounding() pricing.Policy {
	if s.Rounding != nil {
		return *s.Rounding
	}
	return pricing.DefaultPolicy()
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 10 * time.Second
	}
	return s.LockTTL
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil || s.Catalog == nil || s.Locker == nil {
		return errors.New("ticket service not configured")
	}
	return nil
}

// bind attaches the service clock and rounding policy to t.
func (s *Service) bind(t *ticket.Ticket) {
	t.Rounding = s.rounding()
	if s.Now != nil {
		t.Now = s.Now
	}
}

// Open creates a ticket for a department, optionally bound to a customer account, and
// applies the department's automatic calculations.
func (s *Service) Open(ctx context.Context, in OpenInput) (View, error) {
	const op = "open"
	if err := s.ready(); err != nil {
		return View{}, err
	}
	ctx, span := obs.Tracer().Start(ctx, "ticket."+op, trace.WithAttributes(attribute.String("ticket.op", op)))
	defer span.End()

	view, err := s.open(ctx, in)
	if err != nil {
		s.fail(span, op, 0, err)
		return View{}, err
	}
	span.SetAttributes(attribute.Int64("ticket.id", view.ID))
	s.succeed(ctx, op, view, false, change{
		topic:   events.TopicTicketCreated,
		payload: map[string]any{"departmentId": view.DepartmentID, "number": view.Number},
	})
	return view, nil
}

func (s *Service) open(ctx context.Context, in OpenInput) (View, error) {
	dept, err := s.Catalog.Department(in.DepartmentID)
	if err != nil {
		return View{}, err
	}
	var account *ledger.Account
	if in.AccountID > 0 {
		a, err := s.Catalog.Account(in.AccountID)
		if err != nil {
			return View{}, err
		}
		account = &a
	}

	t := ticket.Create(dept, account, s.Catalog.DefaultCalculations(dept.ID))
	s.bind(t)
	now := s.now()
	t.Date, t.LastOrderDate, t.LastPaymentDate, t.LastUpdateTime = now, now, now, now
	t.Note = in.Note

	if err := s.Store.Save(ctx, t); err != nil {
		return View{}, fmt.Errorf("save ticket: %w", err)
	}
	t.SetTicketNumber(strconv.FormatInt(t.ID.Int64(), 10))
	if err := s.Store.Save(ctx, t); err != nil {
		return View{}, fmt.Errorf("save ticket: %w", err)
	}
	return newView(t), nil
}

// Get returns a snapshot of the ticket.
func (s *Service) Get(ctx context.Context, id int64) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	var view View
	err := s.Locker.WithLock(ctx, lock.TicketKey(id), s.lockTTL(), func(ctx context.Context) error {
		t, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		s.bind(t)
		view = newView(t)
		return nil
	})
	return view, err
}

// AddOrder adds a line for a menu item portion.
func (s *Service) AddOrder(ctx context.Context, id int64, in AddOrderInput) (View, error) {
	return s.mutate(ctx, "add_order", id, func(t *ticket.Ticket) (change, error) {
		if !t.CanSubmit() {
			return change{}, ErrTicketClosed
		}
		if in.Quantity.IsNegative() {
			return change{}, fmt.Errorf("quantity must be positive: %w", ErrInvalidInput)
		}
		dept, err := s.Catalog.Department(t.DepartmentID)
		if err != nil {
			return change{}, err
		}
		item, portions, err := s.Catalog.MenuItem(in.MenuItemID)
		if err != nil {
			return change{}, err
		}
		portion, err := findPortion(portions, in.PortionName)
		if err != nil {
			return change{}, err
		}
		var timer *ticket.TimerTemplate
		if in.TimerTemplateID > 0 {
			tt, err := s.Catalog.TimerTemplate(in.TimerTemplateID)
			if err != nil {
				return change{}, err
			}
			timer = &tt
		}

		o := t.AddOrder(dept.SaleTransactionTemplate, in.UserName, item, portion, in.PriceTag, timer)
		if in.Quantity.IsPositive() {
			o.Quantity = in.Quantity
		}
		for _, m := range in.Modifiers {
			o.AddModifier(ticket.Modifier{
				ID:       ticket.Unassigned,
				TagName:  m.TagName,
				TagValue: m.TagValue,
				Price:    m.Price,
				Quantity: m.Quantity,
			})
		}
		return change{
			topic: events.TopicOrderAdded,
			payload: map[string]any{
				"menuItemId": o.MenuItemID,
				"portion":    o.PortionName,
				"quantity":   o.Quantity,
				"index":      len(t.Orders) - 1,
			},
		}, nil
	})
}

// CancelOrders removes uncommitted orders by index.
func (s *Service) CancelOrders(ctx context.Context, id int64, indexes []int) (View, error) {
	return s.mutate(ctx, "cancel_orders", id, func(t *ticket.Ticket) (change, error) {
		orders, err := ordersAt(t, indexes)
		if err != nil {
			return change{}, err
		}
		if !t.CanCancelSelectedOrders(orders) {
			return change{}, fmt.Errorf("only uncommitted orders can be cancelled: %w", ErrInvalidInput)
		}
		t.CancelOrders(orders)
		return change{topic: events.TopicOrdersCancelled, payload: map[string]any{"count": len(orders)}}, nil
	})
}

// Extract splits the selected quantities off their orders into new uncommitted lines.
func (s *Service) Extract(ctx context.Context, id int64, selections []Selection) (View, error) {
	return s.mutate(ctx, "extract", id, func(t *ticket.Ticket) (change, error) {
		indexes := make([]int, 0, len(selections))
		for _, sel := range selections {
			indexes = append(indexes, sel.Index)
		}
		orders, err := ordersAt(t, indexes)
		if err != nil {
			return change{}, err
		}
		defer func() {
			for _, o := range t.Orders {
				o.SelectedQuantity = decimal.Zero
			}
		}()
		for i, o := range orders {
			o.SelectedQuantity = selections[i].Quantity
		}
		extracted, err := t.ExtractSelectedOrders(orders)
		if err != nil {
			return change{}, err
		}
		return change{topic: events.TopicOrdersExtracted, payload: map[string]any{"count": len(extracted)}}, nil
	})
}

// ApplyCalculation applies a calculation template. A nil amount uses the template amount.
// Applying the amount a calculation already has removes it.
func (s *Service) ApplyCalculation(ctx context.Context, id, templateID int64, amount *decimal.Decimal) (View, error) {
	return s.mutate(ctx, "apply_calculation", id, func(t *ticket.Ticket) (change, error) {
		if !t.CanSubmit() {
			return change{}, ErrTicketClosed
		}
		tmpl, err := s.Catalog.CalculationTemplate(templateID)
		if err != nil {
			return change{}, err
		}
		value := tmpl.Amount
		if amount != nil {
			value = *amount
		}
		c := t.AddCalculation(tmpl, value)
		return change{
			topic: events.TopicCalculationChanged,
			payload: map[string]any{
				"templateId": templateID,
				"amount":     value,
				"active":     c != nil,
			},
		}, nil
	})
}

// AddPayment settles part or all of the remaining balance. Tendering more than the
// balance records the balance and returns the difference as change.
func (s *Service) AddPayment(ctx context.Context, id int64, in AddPaymentInput) (View, decimal.Decimal, error) {
	changeDue := decimal.Zero
	view, err := s.mutate(ctx, "add_payment", id, func(t *ticket.Ticket) (change, error) {
		if !t.CanSubmit() {
			return change{}, ErrTicketClosed
		}
		tmpl, err := s.Catalog.PaymentTemplate(in.PaymentTemplateID)
		if err != nil {
			return change{}, err
		}
		account, err := s.Catalog.Account(in.AccountID)
		if err != nil {
			return change{}, err
		}
		remaining := t.Remaining()
		if !remaining.IsPositive() {
			return change{}, ErrNothingToPay
		}
		tendered := remaining
		if in.Amount != nil {
			tendered = *in.Amount
		}
		if !tendered.IsPositive() {
			return change{}, fmt.Errorf("amount must be positive: %w", ErrInvalidInput)
		}
		amount := decimal.Min(tendered, remaining)
		changeDue = tendered.Sub(amount)
		t.AddPayment(tmpl, account, amount, in.UserID)
		f, _ := amount.Float64()
		s.Metrics.ObservePayment(f)
		return change{
			topic: events.TopicPaymentAdded,
			payload: map[string]any{
				"paymentTemplateId": tmpl.ID,
				"amount":            amount,
				"change":            changeDue,
			},
		}, nil
	})
	if err != nil {
		return View{}, decimal.Zero, err
	}
	return view, changeDue, nil
}

// RemovePayment removes the payment at index and its ledger transaction.
func (s *Service) RemovePayment(ctx context.Context, id int64, index int) (View, error) {
	return s.mutate(ctx, "remove_payment", id, func(t *ticket.Ticket) (change, error) {
		if index < 0 || index >= len(t.Payments) {
			return change{}, fmt.Errorf("payment %d: %w", index, ErrInvalidInput)
		}
		p := t.Payments[index]
		t.RemovePayment(p)
		return change{topic: events.TopicPaymentRemoved, payload: map[string]any{"amount": p.Amount}}, nil
	})
}

// Submit merges new lines, numbers them, locks them and commits the ticket. With lockTicket
// the ticket itself is locked against further orders.
func (s *Service) Submit(ctx context.Context, id int64, lockTicket bool) (View, error) {
	return s.mutate(ctx, "submit", id, func(t *ticket.Ticket) (change, error) {
		orderNumber := nextOrderNumber(t)
		t.MergeOrdersAndUpdateOrderNumbers(orderNumber)
		if lockTicket {
			t.RequestLock()
		}
		t.Recalculate()
		t.LockTicket()
		return change{
			topic:   events.TopicOrdersSubmitted,
			payload: map[string]any{"orderNumber": orderNumber, "locked": t.Locked},
			commit:  true,
		}, nil
	})
}

// SetTag sets or, with an empty value, clears a ticket tag.
func (s *Service) SetTag(ctx context.Context, id int64, name, value string) (View, error) {
	return s.mutate(ctx, "set_tag", id, func(t *ticket.Ticket) (change, error) {
		if name == "" {
			return change{}, fmt.Errorf("tag name is required: %w", ErrInvalidInput)
		}
		if err := t.SetTagValue(name, value); err != nil {
			return change{}, err
		}
		return change{topic: events.TopicTagsChanged, payload: map[string]any{"tagName": name, "tagValue": value}}, nil
	})
}

// UpdateResource links or unlinks a resource such as a table or customer.
func (s *Service) UpdateResource(ctx context.Context, id int64, in ResourceInput) (View, error) {
	return s.mutate(ctx, "update_resource", id, func(t *ticket.Ticket) (change, error) {
		if in.TemplateID <= 0 {
			return change{}, fmt.Errorf("resource template is required: %w", ErrInvalidInput)
		}
		t.UpdateResource(in.TemplateID, in.ResourceID, in.Name, in.AccountID, in.CustomData)
		return change{
			topic:   events.TopicResourceChanged,
			payload: map[string]any{"resourceTemplateId": in.TemplateID, "resourceId": in.ResourceID},
		}, nil
	})
}

// Close stops running timers and closes the ticket when it may be closed without settling.
func (s *Service) Close(ctx context.Context, id int64) (View, error) {
	return s.mutate(ctx, "close", id, func(t *ticket.Ticket) (change, error) {
		if !t.CanCloseTicket() {
			return change{}, ErrCannotClose
		}
		t.StopActiveTimers()
		t.ForceClose()
		t.LockTicket()
		return change{
			topic:       events.TopicTicketClosed,
			payload:     map[string]any{"total": t.Sum(), "forced": true},
			forceClosed: true,
			commit:      true,
		}, nil
	})
}

// mutate runs fn on the ticket under its lock, then recalculates, saves and reports the change.
func (s *Service) mutate(ctx context.Context, op string, id int64, fn func(*ticket.Ticket) (change, error)) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	ctx, span := obs.Tracer().Start(ctx, "ticket."+op, trace.WithAttributes(
		attribute.String("ticket.op", op),
		attribute.Int64("ticket.id", id),
	))
	defer span.End()

	var (
		view      View
		ch        change
		wasClosed bool
	)
	err := s.Locker.WithLock(ctx, lock.TicketKey(id), s.lockTTL(), func(ctx context.Context) error {
		t, err := s.Store.Get(ctx, id)
		if err != nil {
			return err
		}
		s.bind(t)
		if finalized(t) {
			return ErrTicketClosed
		}
		wasClosed = t.IsClosed
		ch, err = fn(t)
		if err != nil {
			return err
		}
		t.Recalculate()
		if ch.forceClosed {
			t.ForceClose()
		}
		if ch.commit {
			err = s.Store.Commit(ctx, t)
		} else {
			err = s.Store.Save(ctx, t)
		}
		if err != nil {
			return fmt.Errorf("save ticket: %w", err)
		}
		view = newView(t)
		return nil
	})
	if err != nil {
		s.fail(span, op, id, err)
		return View{}, err
	}
	s.succeed(ctx, op, view, wasClosed, ch)
	return view, nil
}

func (s *Service) succeed(ctx context.Context, op string, view View, wasClosed bool, ch change) {
	s.Metrics.ObserveMutation(op, obs.ResultOK)
	s.Metrics.ObserveLedger(len(view.Ledger))
	if n, err := s.Store.CountOpen(ctx); err == nil {
		s.Metrics.SetOpenTickets(n)
	}
	s.Logger.Info().
		Int64("ticket_id", view.ID).
		Str("op", op).
		Str("total", view.Totals.Total.String()).
		Str("remaining", view.Totals.Remaining.String()).
		Bool("closed", view.IsClosed).
		Msg("ticket updated")

	if ch.topic != "" {
		s.emit(ctx, ch.topic, view.ID, ch.payload)
	}
	if !wasClosed && view.IsClosed && ch.topic != events.TopicTicketClosed {
		s.emit(ctx, events.TopicTicketClosed, view.ID, map[string]any{"total": view.Totals.Total})
	}
}

func (s *Service) emit(ctx context.Context, topic string, id int64, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, id, payload); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Int64("ticket_id", id).Msg("emit ticket event")
	}
}

func (s *Service) fail(span trace.Span, op string, id int64, err error) {
	result := obs.ResultError
	if isRejection(err) {
		result = obs.ResultRejected
	} else {
		span.SetStatus(codes.Error, err.Error())
	}
	span.RecordError(err)
	s.Metrics.ObserveMutation(op, result)
	evt := s.Logger.Warn()
	if result == obs.ResultError {
		evt = s.Logger.Error()
	}
	evt.Err(err).Int64("ticket_id", id).Str("op", op).Msg("ticket mutation failed")
}

// isRejection reports whether err is a caller mistake rather than a failure of the service.
func isRejection(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidInput, ErrTicketClosed, ErrNothingToPay, ErrCannotClose, ErrUnknownReference,
		ticket.ErrInvalidSelection, ticket.ErrOrderNotOwned,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// finalized reports whether the ticket was closed and locked and so takes no further changes.
func finalized(t *ticket.Ticket) bool {
	return t.IsClosed && t.Locked
}

func ordersAt(t *ticket.Ticket, indexes []int) ([]*ticket.Order, error) {
	if len(indexes) == 0 {
		return nil, fmt.Errorf("no orders selected: %w", ErrInvalidInput)
	}
	seen := make(map[int]bool, len(indexes))
	out := make([]*ticket.Order, 0, len(indexes))
	for _, i := range indexes {
		if i < 0 || i >= len(t.Orders) {
			return nil, fmt.Errorf("order %d: %w", i, ErrInvalidInput)
		}
		if seen[i] {
			return nil, fmt.Errorf("order %d selected twice: %w", i, ErrInvalidInput)
		}
		seen[i] = true
		out = append(out, t.Orders[i])
	}
	return out, nil
}

func nextOrderNumber(t *ticket.Ticket) int {
	highest := 0
	for _, o := range t.Orders {
		if o.OrderNumber > highest {
			highest = o.OrderNumber
		}
	}
	return highest + 1
}
