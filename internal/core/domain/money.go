package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// MaxScale is the number of decimal places a monetary amount may carry (cents).
const MaxScale = 2

var (
	errAmountNotPositive = errors.New("amount must be greater than zero")
	errAmountScale       = fmt.Errorf("amount cannot have more than %d decimal places", MaxScale)
)

// ValidateAmount checks that amount is a positive value expressible in cents.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errAmountNotPositive
	}
	if !amount.Equal(amount.Round(MaxScale)) {
		return errAmountScale
	}
	return nil
}

// ParseAmount parses a user supplied amount string and validates it.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", raw)
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// Debit subtracts amount from balance, refusing to go below zero.
func Debit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if balance.LessThan(amount) {
		return balance, fmt.Errorf("%w: balance %s, amount %s", ErrInsufficientFunds, balance.StringFixed(MaxScale), amount.StringFixed(MaxScale))
	}
	return balance.Sub(amount), nil
}
