// Package withholding computes tax withheld at source (TDS): the portion of
// an invoice amount retained for tax remittance instead of being paid out.
package withholding

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// RoundingPolicy controls how a computed withheld amount is rounded. It is a
// property of the invoice and is captured per payment at record time, so a
// later change never retroactively alters settled payments.
type RoundingPolicy string

const (
	PolicyNone    RoundingPolicy = "none"
	PolicyRoundUp RoundingPolicy = "round_up"
)

func (p RoundingPolicy) IsValid() bool {
	return p == PolicyNone || p == PolicyRoundUp
}

// Calculation is the withheld/payable split for one amount.
type Calculation struct {
	Withheld decimal.Decimal
	Payable  decimal.Decimal
}

// Calculate splits amount into withheld and payable portions. A nil or
// non-positive rate withholds nothing. Round-up ceils the withheld amount to
// the currency's minor-unit precision.
func Calculate(amount decimal.Decimal, ratePercent *decimal.Decimal, policy RoundingPolicy, currencyCode string) Calculation {
	if ratePercent == nil || !ratePercent.IsPositive() {
		return Calculation{Withheld: decimal.Zero, Payable: amount}
	}

	withheld := amount.Mul(*ratePercent).Div(decimal.NewFromInt(100))
	if policy == PolicyRoundUp {
		withheld = withheld.RoundCeil(minorUnits(currencyCode))
	}
	return Calculation{
		Withheld: withheld,
		Payable:  amount.Sub(withheld),
	}
}

// minorUnits resolves a currency's fraction digits from the ISO registry,
// defaulting to 2 for unknown codes.
func minorUnits(code string) int32 {
	if c := money.GetCurrency(code); c != nil {
		return int32(c.Fraction)
	}
	return 2
}
