package order

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// MaxQuantity bounds a single order line.
	MaxQuantity = 999

	// Stored amounts are NUMERIC(12, 2).
	amountIntDigits  = 10
	amountFracDigits = 2
	// amountMaxDigits caps the coefficient before it is normalised, so
	// trailing zeros cannot be used to make stripping expensive.
	amountMaxDigits = 32
)

var bigTen = big.NewInt(10)

// NormalizeAmount checks that d fits a stored money or points column and
// returns it with trailing fractional zeros removed. It never rescales d, so
// an absurd exponent costs nothing and is not echoed back.
func NormalizeAmount(field string, d decimal.Decimal) (decimal.Decimal, error) {
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return decimal.Zero, nil
	}
	abs := new(big.Int).Abs(coef)
	digits := len(abs.String())
	if digits > amountMaxDigits {
		return decimal.Zero, invalidInput(field, "too many digits")
	}

	exp := int64(d.Exponent())
	rem := new(big.Int)
	for exp < 0 {
		q, r := new(big.Int).QuoRem(coef, bigTen, rem)
		if r.Sign() != 0 {
			break
		}
		coef = q
		exp++
		digits--
	}
	if exp < -amountFracDigits {
		return decimal.Zero, invalidInput(field, "at most 2 decimal places")
	}
	if int64(digits)+exp > amountIntDigits {
		return decimal.Zero, invalidInput(field, "out of range")
	}
	return decimal.NewFromBigInt(coef, int32(exp)), nil
}
