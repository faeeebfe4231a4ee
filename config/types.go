package config

// Policy carries the marketplace admission thresholds enforced at the RPC
// boundary. Amounts are decimal coin strings, e.g. "0.1".
type Policy struct {
	MinReward       string `toml:"MinReward"`
	MinClaimDeposit string `toml:"MinClaimDeposit"`
}

const (
	defaultMinReward       = "0.1"
	defaultMinClaimDeposit = "0.01"
)

func (p *Policy) applyDefaults() {
	if p.MinReward == "" {
		p.MinReward = defaultMinReward
	}
	if p.MinClaimDeposit == "" {
		p.MinClaimDeposit = defaultMinClaimDeposit
	}
}
