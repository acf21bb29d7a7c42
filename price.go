package x402

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParsePrice converts a human price string such as "0.10" or "$0.10" into
// atomic units for a token with the given number of decimals.
func ParsePrice(price string, decimals int32) (*big.Int, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(price), "$"))
	if s == "" {
		return nil, fmt.Errorf("price is empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("price %q is negative", price)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return nil, fmt.Errorf("price %q has more precision than %d decimals allow", price, decimals)
	}
	return shifted.BigInt(), nil
}
