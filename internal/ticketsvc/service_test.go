package ticketsvc_test

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ticket-engine/internal/events"
	"github.com/noah-isme/ticket-engine/internal/lock"
	"github.com/noah-isme/ticket-engine/internal/obs"
	"github.com/noah-isme/ticket-engine/internal/ticketsvc"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *ticketsvc.Service
	events  *events.MemoryStore
	metrics *obs.TicketMetrics
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, locker lock.Locker) fixture {
	t.Helper()
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	store := &events.MemoryStore{}
	logs := &bytes.Buffer{}
	metrics := obs.NewTicketMetrics("test", prometheus.NewRegistry())
	now := func() time.Time { return fixedNow }
	svc := &ticketsvc.Service{
		Store:   ticketsvc.NewMemoryStore(),
		Catalog: ticketsvc.DemoCatalog(),
		Locker:  locker,
		Events:  &events.Bus{Store: store, Now: now},
		Logger:  zerolog.New(logs),
		Metrics: metrics,
		Now:     now,
	}
	return fixture{svc: svc, events: store, metrics: metrics, logs: logs}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func topics(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Topic)
	}
	return out
}

func openTicket(t *testing.T, f fixture) int64 {
	t.Helper()
	view, err := f.svc.Open(context.Background(), ticketsvc.OpenInput{DepartmentID: 1})
	require.NoError(t, err)
	return view.ID
}

func TestOpenAssignsNumber(t *testing.T) {
	f := newFixture(t, nil)
	view, err := f.svc.Open(context.Background(), ticketsvc.OpenInput{DepartmentID: 1, AccountID: 3, Note: "window"})
	require.NoError(t, err)

	require.Equal(t, int64(1), view.ID)
	require.Equal(t, "1", view.Number)
	require.Equal(t, "Walk-in Customer", view.AccountName)
	require.False(t, view.IsClosed)
	require.Equal(t, fixedNow, view.Date)
	require.Equal(t, []string{events.TopicTicketCreated}, topics(f.events.Events(view.ID)))
}

func TestOpenRejectsUnknownDepartment(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Open(context.Background(), ticketsvc.OpenInput{DepartmentID: 9})
	require.ErrorIs(t, err, ticketsvc.ErrUnknownReference)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Mutations.WithLabelValues("open", obs.ResultRejected)))
}

func TestOpenAppliesDepartmentCalculations(t *testing.T) {
	f := newFixture(t, nil)
	catalog := ticketsvc.DemoCatalog()
	catalog.AutoCalculations[1] = []int64{2, 1}
	f.svc.Catalog = catalog
	ctx := context.Background()

	id := openTicket(t, f)
	view, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 1})
	require.NoError(t, err)

	require.Len(t, view.Calculations, 2)
	require.Equal(t, "Discount", view.Calculations[0].Name)
	// 100 - 10 discount + 9 tax, then 5% service on 99 = 4.95
	requireDecimal(t, "103.95", view.Totals.Total)
}

func TestGetUnknownTicket(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, ticketsvc.ErrNotFound)
}

func TestAddOrderAndDiscountMirrorLedger(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)

	view, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 1, UserName: "ana"})
	require.NoError(t, err)
	requireDecimal(t, "110", view.Totals.Total)
	require.Len(t, view.Orders, 1)
	require.Equal(t, "Normal", view.Orders[0].PortionName)
	require.False(t, view.Orders[0].ID.IsAssigned())

	view, err = f.svc.ApplyCalculation(ctx, id, 1, nil)
	require.NoError(t, err)
	requireDecimal(t, "-10", view.Totals.PreTaxServices)
	requireDecimal(t, "9", view.Totals.Tax)
	requireDecimal(t, "99", view.Totals.Total)
	requireDecimal(t, "99", view.Totals.Remaining)
	require.Len(t, view.Ledger, 3)

	amounts := map[int64]decimal.Decimal{}
	for _, tx := range view.Ledger {
		amounts[tx.TemplateID] = tx.Amount
	}
	requireDecimal(t, "100", amounts[1])
	requireDecimal(t, "9", amounts[2])
	requireDecimal(t, "10", amounts[10])

	view, err = f.svc.ApplyCalculation(ctx, id, 1, nil)
	require.NoError(t, err)
	require.Empty(t, view.Calculations)
	requireDecimal(t, "110", view.Totals.Total)
	require.Len(t, view.Ledger, 2)

	require.Equal(t,
		[]string{events.TopicTicketCreated, events.TopicOrderAdded, events.TopicCalculationChanged, events.TopicCalculationChanged},
		topics(f.events.Events(id)))
}

func TestAddOrderWithQuantityModifiersAndPriceTag(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)

	view, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{
		MenuItemID:  1,
		PortionName: "Large",
		PriceTag:    "happy",
		Quantity:    dec("2"),
		Modifiers: []ticketsvc.ModifierInput{
			{TagName: "Extra", TagValue: "Cheese", Price: dec("10")},
		},
	})
	require.NoError(t, err)
	// (110 + 10) * 2 = 240 plus 10% tax
	requireDecimal(t, "240", view.Totals.PlainSum)
	requireDecimal(t, "264", view.Totals.Total)

	_, err = f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 1, PortionName: "Huge"})
	require.ErrorIs(t, err, ticketsvc.ErrUnknownReference)
	_, err = f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 1, Quantity: dec("-1")})
	require.ErrorIs(t, err, ticketsvc.ErrInvalidInput)
}

func TestAddPaymentCapsAtRemaining(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)
	_, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 1})
	require.NoError(t, err)

	view, change, err := f.svc.AddPayment(ctx, id, ticketsvc.AddPaymentInput{PaymentTemplateID: 1, AccountID: 1, Amount: ptr(dec("150"))})
	require.NoError(t, err)
	requireDecimal(t, "40", change)
	requireDecimal(t, "110", view.Totals.Paid)
	require.True(t, view.Totals.Remaining.IsZero())
	require.True(t, view.IsClosed)
	require.Equal(t, 110.0, testutil.ToFloat64(f.metrics.PaymentAmount))
	require.Contains(t, topics(f.events.Events(id)), events.TopicTicketClosed)

	_, err = f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 2})
	require.ErrorIs(t, err, ticketsvc.ErrTicketClosed)

	view, err = f.svc.RemovePayment(ctx, id, 0)
	require.NoError(t, err)
	require.False(t, view.IsClosed)
	requireDecimal(t, "110", view.Totals.Remaining)
	require.Len(t, view.Ledger, 2)

	_, err = f.svc.RemovePayment(ctx, id, 0)
	require.ErrorIs(t, err, ticketsvc.ErrInvalidInput)
}

func TestAddPaymentDefaultsToRemaining(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)

	_, _, err := f.svc.AddPayment(ctx, id, ticketsvc.AddPaymentInput{PaymentTemplateID: 1, AccountID: 1})
	require.ErrorIs(t, err, ticketsvc.ErrNothingToPay)

	_, err = f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 2})
	require.NoError(t, err)
	view, _, err := f.svc.AddPayment(ctx, id, ticketsvc.AddPaymentInput{PaymentTemplateID: 2, AccountID: 2, Amount: ptr(dec("1"))})
	require.NoError(t, err)
	requireDecimal(t, "1.99", view.Totals.Remaining)

	view, change, err := f.svc.AddPayment(ctx, id, ticketsvc.AddPaymentInput{PaymentTemplateID: 1, AccountID: 1})
	require.NoError(t, err)
	require.True(t, change.IsZero())
	require.Len(t, view.Payments, 2)
	require.True(t, view.IsClosed)
}

func TestSubmitMergesNumbersAndCommits(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)
	for i := 0; i < 3; i++ {
		_, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 1})
		require.NoError(t, err)
	}

	view, err := f.svc.Submit(ctx, id, true)
	require.NoError(t, err)
	require.Len(t, view.Orders, 1)
	requireDecimal(t, "3", view.Orders[0].Quantity)
	require.True(t, view.Orders[0].ID.IsAssigned())
	require.True(t, view.Orders[0].Locked)
	require.Equal(t, 1, view.Orders[0].OrderNumber)
	require.Equal(t, "locked", view.LockState)
	requireDecimal(t, "330", view.Totals.Total)

	view, err = f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 2})
	require.NoError(t, err)
	require.Equal(t, "unlocked", view.LockState)

	view, err = f.svc.Submit(ctx, id, false)
	require.NoError(t, err)
	require.Equal(t, 2, view.Orders[1].OrderNumber)
	require.Equal(t, "unlocked", view.LockState)
}

func TestCancelOrdersOnlyUncommitted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)
	_, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 1})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, id, false)
	require.NoError(t, err)
	_, err = f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 2})
	require.NoError(t, err)

	_, err = f.svc.CancelOrders(ctx, id, []int{0})
	require.ErrorIs(t, err, ticketsvc.ErrInvalidInput)
	_, err = f.svc.CancelOrders(ctx, id, []int{5})
	require.ErrorIs(t, err, ticketsvc.ErrInvalidInput)
	_, err = f.svc.CancelOrders(ctx, id, []int{1, 1})
	require.ErrorIs(t, err, ticketsvc.ErrInvalidInput)

	view, err := f.svc.CancelOrders(ctx, id, []int{1})
	require.NoError(t, err)
	require.Len(t, view.Orders, 1)
	requireDecimal(t, "110", view.Totals.Total)
}

func TestExtractSplitsSelectedQuantity(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)
	_, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 2, Quantity: dec("5")})
	require.NoError(t, err)

	view, err := f.svc.Extract(ctx, id, []ticketsvc.Selection{{Index: 0, Quantity: dec("2")}})
	require.NoError(t, err)
	require.Len(t, view.Orders, 2)
	requireDecimal(t, "3", view.Orders[0].Quantity)
	requireDecimal(t, "2", view.Orders[1].Quantity)
	require.True(t, view.Orders[0].SelectedQuantity.IsZero())
	requireDecimal(t, "14.95", view.Totals.Total)

	_, err = f.svc.Extract(ctx, id, []ticketsvc.Selection{{Index: 0, Quantity: decimal.Zero}})
	require.Error(t, err)
}

func TestCloseRequiresSettlementOrTag(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)
	_, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 1})
	require.NoError(t, err)

	_, err = f.svc.Close(ctx, id)
	require.ErrorIs(t, err, ticketsvc.ErrCannotClose)

	_, err = f.svc.SetTag(ctx, id, "Table", "5")
	require.NoError(t, err)
	view, err := f.svc.Close(ctx, id)
	require.NoError(t, err)
	require.True(t, view.IsClosed)
	require.Equal(t, "locked", view.LockState)
	requireDecimal(t, "110", view.Totals.Remaining)
	require.True(t, view.Orders[0].ID.IsAssigned())

	_, err = f.svc.SetTag(ctx, id, "Table", "6")
	require.ErrorIs(t, err, ticketsvc.ErrTicketClosed)

	closed := 0
	for _, topic := range topics(f.events.Events(id)) {
		if topic == events.TopicTicketClosed {
			closed++
		}
	}
	require.Equal(t, 1, closed)
}

func TestActiveTimerKeepsTicketOpen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)
	_, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 3, TimerTemplateID: 1})
	require.NoError(t, err)

	view, _, err := f.svc.AddPayment(ctx, id, ticketsvc.AddPaymentInput{PaymentTemplateID: 1, AccountID: 1})
	require.NoError(t, err)
	require.True(t, view.Totals.Remaining.IsZero())
	require.False(t, view.IsClosed)
	require.True(t, view.Orders[0].Timer.IsActive())

	view, err = f.svc.Close(ctx, id)
	require.NoError(t, err)
	require.True(t, view.IsClosed)
	require.False(t, view.Orders[0].Timer.IsActive())
}

func TestEmptyTicketStaysOpen(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)

	view, err := f.svc.SetTag(ctx, id, "Guests", "2")
	require.NoError(t, err)
	require.False(t, view.IsClosed)
	require.Equal(t, "2", view.Tags[0].TagValue)

	_, err = f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 2})
	require.NoError(t, err)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OpenTickets))
}

func TestSubmitEmptyTicketLeavesItUnlocked(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)

	view, err := f.svc.Submit(ctx, id, false)
	require.NoError(t, err)
	require.False(t, view.IsClosed)
	require.Equal(t, "unlocked", view.LockState)
	require.Empty(t, view.Orders)

	view, err = f.svc.Submit(ctx, id, true)
	require.NoError(t, err)
	require.False(t, view.IsClosed)
	require.Equal(t, "locked", view.LockState)
}

func TestUpdateResource(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)

	view, err := f.svc.UpdateResource(ctx, id, ticketsvc.ResourceInput{TemplateID: 1, ResourceID: 12, Name: "Table 12"})
	require.NoError(t, err)
	require.Len(t, view.Resources, 1)
	require.Equal(t, "Table 12", view.Resources[0].ResourceName)

	view, err = f.svc.UpdateResource(ctx, id, ticketsvc.ResourceInput{TemplateID: 1})
	require.NoError(t, err)
	require.Empty(t, view.Resources)

	_, err = f.svc.UpdateResource(ctx, id, ticketsvc.ResourceInput{ResourceID: 1})
	require.ErrorIs(t, err, ticketsvc.ErrInvalidInput)
}

func TestMutationsAreLoggedAndCounted(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	id := openTicket(t, f)
	_, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 1})
	require.NoError(t, err)
	_, err = f.svc.AddOrder(ctx, 99, ticketsvc.AddOrderInput{MenuItemID: 1})
	require.ErrorIs(t, err, ticketsvc.ErrNotFound)

	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Mutations.WithLabelValues("add_order", obs.ResultOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Mutations.WithLabelValues("add_order", obs.ResultRejected)))
	require.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LedgerEntries))
	require.Contains(t, f.logs.String(), `"message":"ticket updated"`)
	require.Contains(t, f.logs.String(), `"op":"add_order"`)
	require.Contains(t, f.logs.String(), `"message":"ticket mutation failed"`)
}

func TestConcurrentOrdersAreSerialized(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for name, locker := range map[string]lock.Locker{
		"local": lock.NewLocalLocker(),
		"redis": lock.RedisLocker{R: client, RetryBackoff: time.Millisecond, MaxBackoff: 10 * time.Millisecond},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, locker)
			f.svc.Logger = zerolog.Nop()
			ctx := context.Background()
			id := openTicket(t, f)

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.svc.AddOrder(ctx, id, ticketsvc.AddOrderInput{MenuItemID: 2})
					require.NoError(t, err)
				}()
			}
			wg.Wait()

			view, err := f.svc.Get(ctx, id)
			require.NoError(t, err)
			require.Len(t, view.Orders, 10)
			requireDecimal(t, "29.9", view.Totals.Total)
		})
	}
}
