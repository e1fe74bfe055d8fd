package ticket_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ticket-engine/internal/ticket"
)

func TestSumWithoutCalculationsIsPlainSumPlusTax(t *testing.T) {
	tk, _ := newTicket()
	tk.AddOrder(saleTemplate, "alice", burger, regular, "", nil)
	tk.AddOrder(saleTemplate, "alice", cola, small, "", nil)

	require.True(t, tk.PlainSum().Equal(dec("103")))
	require.True(t, tk.CalculateTax(tk.PlainSum(), dec("0")).Equal(dec("10")))
	require.True(t, tk.Sum().Equal(dec("113")), "sum %s", tk.Sum())
}

func TestSumAppliesPreTaxDiscountAndPostTaxService(t *testing.T) {
	tk, doc := newTicket()
	tk.AddOrder(saleTemplate, "alice", burger, regular, "", nil)
	discount := tk.AddCalculation(discountTemplate(1, ticket.MethodPercentOfBase, "10"), dec("10"))
	service := tk.AddCalculation(serviceTemplate(2, ticket.MethodPercentOfRunning, "5"), dec("5"))
	require.NotNil(t, discount)
	require.NotNil(t, service)

	require.True(t, tk.Sum().Equal(dec("103.95")), "sum %s", tk.Sum())
	require.True(t, discount.CalculationAmount.Equal(dec("-10")))
	require.True(t, service.CalculationAmount.Equal(dec("4.95")))
	require.True(t, tk.PreTaxServicesTotal().Equal(dec("-10")))
	require.True(t, tk.PostTaxServicesTotal().Equal(dec("4.95")))
	require.True(t, tk.CalculationTotal("").Equal(dec("-5.05")))

	entry, ok := doc.Singleton(discount.TransactionTemplateID())
	require.True(t, ok)
	require.True(t, entry.Amount.Equal(dec("10")))
	entry, ok = doc.Singleton(service.TransactionTemplateID())
	require.True(t, ok)
	require.True(t, entry.Amount.Equal(dec("4.95")))
}

func TestCalculationOrderingKeyDecidesRunningBase(t *testing.T) {
	tk, _ := newTicket()
	tk.AddOrder(saleTemplate, "alice", cola, ticket.Portion{Name: "Big", Price: dec("100")}, "", nil)

	first := discountTemplate(1, ticket.MethodFixedAmount, "20")
	first.Order = 5
	second := discountTemplate(2, ticket.MethodPercentOfRunning, "10")
	second.Order = 1
	tk.AddCalculation(first, first.Amount)
	pct := tk.AddCalculation(second, second.Amount)

	// percent runs first (order 1) over 100, then the fixed 20.
	require.True(t, tk.Sum().Equal(dec("70")), "sum %s", tk.Sum())
	require.True(t, pct.CalculationAmount.Equal(dec("-10")))
}

func TestZeroAmountCalculationIsRemoved(t *testing.T) {
	tk, doc := newTicket()
	tmpl := discountTemplate(1, ticket.MethodPercentOfBase, "0")

	require.Nil(t, tk.AddCalculation(tmpl, dec("0")))
	require.Empty(t, tk.Calculations)
	require.False(t, doc.HasTemplate(tmpl.TransactionTemplate.ID))
}

func TestReapplyingSameAmountTogglesCalculationOff(t *testing.T) {
	tk, doc := newTicket()
	tk.AddOrder(saleTemplate, "alice", cola, small, "", nil)
	tmpl := serviceTemplate(1, ticket.MethodFixedAmount, "2")

	require.NotNil(t, tk.AddCalculation(tmpl, dec("2")))
	tk.Sum()
	require.True(t, doc.HasTemplate(tmpl.TransactionTemplate.ID))

	require.Nil(t, tk.AddCalculation(tmpl, dec("2")))
	require.Empty(t, tk.Calculations)
	require.False(t, doc.HasTemplate(tmpl.TransactionTemplate.ID))
	require.True(t, tk.Sum().Equal(dec("3")))
}

func TestChangingAmountUpdatesExistingCalculation(t *testing.T) {
	tk, doc := newTicket()
	tk.AddOrder(saleTemplate, "alice", cola, ticket.Portion{Name: "Big", Price: dec("50")}, "", nil)
	tmpl := discountTemplate(1, ticket.MethodPercentOfBase, "10")

	tk.AddCalculation(tmpl, dec("10"))
	c := tk.AddCalculation(tmpl, dec("20"))
	require.Len(t, tk.Calculations, 1)
	require.True(t, c.Amount.Equal(dec("20")))
	require.True(t, tk.Sum().Equal(dec("40")))

	entry, _ := doc.Singleton(tmpl.TransactionTemplate.ID)
	require.True(t, entry.Amount.Equal(dec("10")))
}

func TestFixedTargetBringsSumToTarget(t *testing.T) {
	tk, _ := newTicket()
	tk.AddOrder(saleTemplate, "alice", cola, ticket.Portion{Name: "Big", Price: dec("100")}, "", nil)
	c := tk.AddCalculation(discountTemplate(1, ticket.MethodFixedTarget, "90"), dec("90"))

	require.True(t, tk.Sum().Equal(dec("90")))
	require.True(t, c.CalculationAmount.Equal(dec("-10")))
}

func TestFixedTargetTombstones(t *testing.T) {
	cases := []struct {
		name   string
		tmpl   ticket.CalculationTemplate
		target string
	}{
		{name: "equal to sum", tmpl: discountTemplate(1, ticket.MethodFixedTarget, "100"), target: "100"},
		{name: "discount above sum", tmpl: discountTemplate(1, ticket.MethodFixedTarget, "120"), target: "120"},
		{name: "surcharge below sum", tmpl: serviceTemplate(1, ticket.MethodFixedTarget, "80"), target: "80"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tk, doc := newTicket()
			tk.AddOrder(saleTemplate, "alice", cola, ticket.Portion{Name: "Big", Price: dec("100")}, "", nil)
			require.NotNil(t, tk.AddCalculation(tc.tmpl, dec(tc.target)))

			require.True(t, tk.Sum().Equal(dec("100")), "sum %s", tk.Sum())
			require.Empty(t, tk.Calculations)
			require.False(t, doc.HasTemplate(tc.tmpl.TransactionTemplate.ID))
		})
	}
}

func TestRoundToMultiple(t *testing.T) {
	cases := []struct {
		name     string
		price    string
		multiple string
		decrease bool
		want     string
		effect   string
	}{
		{name: "decrease rounds down to nearest", price: "9.97", multiple: "0.05", decrease: true, want: "9.95", effect: "-0.02"},
		{name: "increase clamped when nearest is lower", price: "9.97", multiple: "0.05", decrease: false, want: "9.97", effect: "0"},
		{name: "increase rounds up to nearest", price: "9.98", multiple: "0.05", decrease: false, want: "10", effect: "0.02"},
		{name: "midpoint goes away from zero", price: "9.975", multiple: "0.05", decrease: false, want: "10.005", effect: "0.03"},
		{name: "negative multiple always rounds down", price: "9.99", multiple: "-0.05", decrease: true, want: "9.95", effect: "-0.04"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tk, _ := newTicket()
			tk.Rounding.Decimals = 2
			tk.AddOrder(saleTemplate, "alice", cola, ticket.Portion{Name: "Big", Price: dec(tc.price)}, "", nil)
			tmpl := serviceTemplate(1, ticket.MethodRoundTo, tc.multiple)
			tmpl.DecreaseAmount = tc.decrease
			c := tk.AddCalculation(tmpl, tmpl.Amount)
			require.NotNil(t, c)

			sum := tk.Sum()
			require.True(t, c.CalculationAmount.Equal(dec(tc.effect)), "effect %s", c.CalculationAmount)
			require.True(t, sum.Equal(dec(tc.want)), "sum %s", sum)
		})
	}
}

func TestZeroPlainSumWithPreTaxServiceDoesNotDivideByZero(t *testing.T) {
	tk, _ := newTicket()
	o := tk.AddOrder(saleTemplate, "alice", burger, regular, "", nil)
	o.CalculatePrice = false
	fee := discountTemplate(1, ticket.MethodFixedAmount, "5")
	fee.DecreaseAmount = false
	tk.AddCalculation(fee, fee.Amount)

	require.NotPanics(t, func() { tk.Sum() })
	require.True(t, tk.Sum().Equal(dec("5")))
}

func TestZeroEffectRemovesLedgerEntryUntilEffectReturns(t *testing.T) {
	tk, doc := newTicket()
	tmpl := discountTemplate(1, ticket.MethodPercentOfBase, "10")
	c := tk.AddCalculation(tmpl, tmpl.Amount)

	require.True(t, tk.Sum().IsZero())
	require.Len(t, tk.Calculations, 1)
	require.False(t, doc.HasTemplate(tmpl.TransactionTemplate.ID))

	tk.AddOrder(saleTemplate, "alice", cola, ticket.Portion{Name: "Big", Price: dec("20")}, "", nil)
	require.True(t, tk.Sum().Equal(dec("18")))
	entry, ok := doc.Singleton(tmpl.TransactionTemplate.ID)
	require.True(t, ok)
	require.True(t, entry.Amount.Equal(dec("2")))
	require.True(t, c.CalculationAmount.Equal(dec("-2")))
}

func TestRemoveCalculationDeletesLedgerEntry(t *testing.T) {
	tk, doc := newTicket()
	tk.AddOrder(saleTemplate, "alice", cola, small, "", nil)
	tmpl := serviceTemplate(1, ticket.MethodFixedAmount, "1")
	c := tk.AddCalculation(tmpl, tmpl.Amount)
	tk.Sum()

	tk.RemoveCalculation(c)
	require.Empty(t, tk.Calculations)
	require.False(t, doc.HasTemplate(tmpl.TransactionTemplate.ID))
}

func TestParseMethod(t *testing.T) {
	m, err := ticket.ParseMethod(" Round_To ")
	require.NoError(t, err)
	require.Equal(t, ticket.MethodRoundTo, m)
	require.Equal(t, "round_to", m.String())

	_, err = ticket.ParseMethod("bogus")
	require.Error(t, err)
}
