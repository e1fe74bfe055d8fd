package pricing

import "github.com/shopspring/decimal"

// Money is the decimal type used for every monetary value on a ticket.
type Money = decimal.Decimal

// DefaultDecimals is the precision applied when no policy is configured.
const DefaultDecimals int32 = 2

// Policy rounds monetary values to a fixed number of decimal places.
type Policy struct {
	Decimals int32
}

// NewPolicy returns a policy for the given precision. Negative values are treated as zero.
func NewPolicy(decimals int32) Policy {
	if decimals < 0 {
		decimals = 0
	}
	return Policy{Decimals: decimals}
}

// DefaultPolicy returns the two-decimal policy.
func DefaultPolicy() Policy {
	return Policy{Decimals: DefaultDecimals}
}

// Round rounds v to the configured precision, half away from zero.
func (p Policy) Round(v Money) Money {
	return v.Round(p.Decimals)
}

// Percent returns pct percent of base.
func Percent(base Money, pct Money) Money {
	return base.Mul(pct).Div(decimal.NewFromInt(100))
}
