package lostfound

import (
	"fmt"
	"math/big"
	"strings"
)

// Amounts are held in the ledger's smallest integer unit. One display coin is
// 10^9 base units.
const CoinDecimals = 9

var baseUnitsPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(CoinDecimals), nil)

// Policy minimums, in base units. The engine itself only requires positive
// amounts; these thresholds are enforced at the RPC boundary before a
// transition is attempted.
var (
	MinReward       = big.NewInt(100_000_000) // 0.1 coins
	MinClaimDeposit = big.NewInt(10_000_000)  // 0.01 coins
)

// ToBaseUnits converts a decimal coin amount such as "0.5" into base units,
// rounding down. Truncation rather than rounding means a conversion can never
// over-credit an escrow.
func ToBaseUnits(amount string) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: amount must not be empty", ErrConstraint)
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrConstraint)
	}
	intPart := trimmed
	fracPart := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		intPart, fracPart = trimmed[:idx], trimmed[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, fmt.Errorf("%w: malformed amount %q", ErrConstraint, amount)
	}
	result := new(big.Int).Mul(whole, baseUnitsPerCoin)
	if fracPart != "" {
		// Excess fractional digits are dropped: floor semantics.
		if len(fracPart) > CoinDecimals {
			fracPart = fracPart[:CoinDecimals]
		}
		padded := fracPart + strings.Repeat("0", CoinDecimals-len(fracPart))
		frac, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, fmt.Errorf("%w: malformed amount %q", ErrConstraint, amount)
		}
		result.Add(result, frac)
	}
	return result, nil
}

// FormatBaseUnits renders a base-unit amount as a decimal coin string with
// trailing zeros trimmed.
func FormatBaseUnits(amount *big.Int) string {
	if amount == nil {
		return "0"
	}
	quo, rem := new(big.Int).QuoRem(amount, baseUnitsPerCoin, new(big.Int))
	if rem.Sign() == 0 {
		return quo.String()
	}
	frac := fmt.Sprintf("%09d", rem)
	frac = strings.TrimRight(frac, "0")
	return quo.String() + "." + frac
}
