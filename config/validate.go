package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Rate ceilings accepted by the escrow engine's update path. Genesis is held
// to the same bounds so a fresh deployment starts inside them.
const (
	MaxGenesisTaxBps     = 2000
	MaxGenesisFeePercent = 20
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must not be empty")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.IdleTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if err := c.Genesis.validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: HMACSecret required when auth is enabled (set %s)", c.Auth.HMACSecretEnv)
	}
	if c.Auth.ClockSkewSeconds < 0 {
		return fmt.Errorf("auth: ClockSkewSeconds must not be negative")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	if c.Observability.TraceSampleRatio < 0 || c.Observability.TraceSampleRatio > 1 {
		return fmt.Errorf("observability: TraceSampleRatio must be within [0,1]")
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation values must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", c.Logging.Level)
	}
	return nil
}

func (g Genesis) validate() error {
	if strings.TrimSpace(g.Judge) == "" {
		if len(g.Allocations) > 0 || len(g.Tokens) > 0 {
			return fmt.Errorf("tokens and allocations require a judge")
		}
		return nil
	}
	if _, err := ParseAddress(g.Judge); err != nil {
		return fmt.Errorf("judge: %w", err)
	}
	if _, err := ParseAddress(g.Treasury); err != nil {
		return fmt.Errorf("treasury: %w", err)
	}
	if g.TaxBps > MaxGenesisTaxBps {
		return fmt.Errorf("TaxBps %d exceeds %d", g.TaxBps, MaxGenesisTaxBps)
	}
	if g.FeePercent > MaxGenesisFeePercent {
		return fmt.Errorf("FeePercent %d exceeds %d", g.FeePercent, MaxGenesisFeePercent)
	}
	mints := make(map[common.Address]struct{}, len(g.Tokens))
	for i, token := range g.Tokens {
		mint, err := ParseAddress(token.Mint)
		if err != nil {
			return fmt.Errorf("tokens[%d]: %w", i, err)
		}
		if _, dup := mints[mint]; dup {
			return fmt.Errorf("tokens[%d]: duplicate mint %s", i, mint.Hex())
		}
		if strings.TrimSpace(token.Symbol) == "" {
			return fmt.Errorf("tokens[%d]: symbol required", i)
		}
		mints[mint] = struct{}{}
	}
	for i, alloc := range g.Allocations {
		if _, err := ParseAddress(alloc.Holder); err != nil {
			return fmt.Errorf("allocations[%d]: %w", i, err)
		}
		if strings.TrimSpace(alloc.Mint) != "" {
			mint, err := ParseAddress(alloc.Mint)
			if err != nil {
				return fmt.Errorf("allocations[%d]: %w", i, err)
			}
			if _, ok := mints[mint]; !ok {
				return fmt.Errorf("allocations[%d]: mint %s is not listed in tokens", i, mint.Hex())
			}
		}
		if _, err := ParseAmount(alloc.Amount); err != nil {
			return fmt.Errorf("allocations[%d]: %w", i, err)
		}
	}
	return nil
}

// ParseAddress decodes a 0x-prefixed hex address.
func ParseAddress(raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

// ParseAmount decodes a positive base-10 integer amount.
func ParseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}
