package publish

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseUnits converts a decimal string such as "1000" or "0.5" into base
// units for a token with the given decimals. w3.FromWei formats the result
// back.
func ParseUnits(value string, decimals uint8) (*big.Int, error) {
	value = strings.TrimSpace(value)
	whole, frac, _ := strings.Cut(value, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("parse units: empty amount")
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("parse units %q: more than %d fractional digits", value, decimals)
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	out, ok := new(big.Int).SetString(digits, 10)
	if !ok || out.Sign() < 0 {
		return nil, fmt.Errorf("parse units %q: not a non-negative decimal", value)
	}
	return out, nil
}
