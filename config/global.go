package config

import (
	"fmt"
	"math/big"

	"findare/native/lostfound"
)

// PolicyLimits represents the parsed marketplace admission thresholds.
type PolicyLimits struct {
	MinReward       *big.Int
	MinClaimDeposit *big.Int
}

// Limits parses the configured decimal thresholds into base-unit values.
func (p Policy) Limits() (PolicyLimits, error) {
	limits := PolicyLimits{}
	minReward, err := lostfound.ToBaseUnits(p.MinReward)
	if err != nil {
		return limits, fmt.Errorf("invalid policy.MinReward: %w", err)
	}
	limits.MinReward = minReward
	minDeposit, err := lostfound.ToBaseUnits(p.MinClaimDeposit)
	if err != nil {
		return limits, fmt.Errorf("invalid policy.MinClaimDeposit: %w", err)
	}
	limits.MinClaimDeposit = minDeposit
	return limits, nil
}
