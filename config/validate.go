package config

import "fmt"

func ValidateConfig(cfg *Config) error {
	if cfg.RPCAddress == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	limits, err := cfg.Policy.Limits()
	if err != nil {
		return err
	}
	if limits.MinReward.Sign() <= 0 {
		return fmt.Errorf("config: policy.MinReward must be positive")
	}
	if limits.MinClaimDeposit.Sign() <= 0 {
		return fmt.Errorf("config: policy.MinClaimDeposit must be positive")
	}
	return nil
}
