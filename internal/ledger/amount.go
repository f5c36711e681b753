package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Precision is the number of fractional digits the ledger stores.
const Precision = 2

// ParseAmount converts a decimal string such as "40.00" into a validated
// positive amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Decimal{}, err
	}
	return d, nil
}

// ValidateAmount rejects non-positive amounts and amounts finer than a cent.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if !d.Equal(d.Truncate(Precision)) {
		return fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, Precision)
	}
	return nil
}

// ParseBalance is like ParseAmount but admits zero, for balance overrides.
func ParseBalance(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is not a decimal", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%w: balance cannot be negative", ErrInvalidAmount)
	}
	if !d.Equal(d.Truncate(Precision)) {
		return decimal.Decimal{}, fmt.Errorf("%w: at most %d decimal places", ErrInvalidAmount, Precision)
	}
	return d, nil
}

// Share divides total evenly among n participants, rounded half-up to ledger
// precision. Every participant owes the same share.
func Share(total decimal.Decimal, n int) (decimal.Decimal, error) {
	if n <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: no participants", ErrInvalidAmount)
	}
	if err := ValidateAmount(total); err != nil {
		return decimal.Decimal{}, err
	}
	share := total.DivRound(decimal.NewFromInt(int64(n)), Precision)
	if !share.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: share rounds to zero", ErrInvalidAmount)
	}
	return share, nil
}

// Format renders an amount with exactly Precision fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Precision)
}
