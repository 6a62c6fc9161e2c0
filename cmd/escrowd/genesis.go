package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"judgedescrow/config"
	"judgedescrow/core/state"
	"judgedescrow/native/escrow"
)

// applyGenesis seeds an empty data directory from the genesis section. It is
// a no-op once the arbitration configuration exists. Every entry is parsed
// before anything is written; tokens and allocations then land in one batch
// guarded by a marker key, so a retry after a failed start never credits an
// allocation twice.
func applyGenesis(ctx context.Context, g config.Genesis, engine *escrow.Engine, st *state.Manager, logger *slog.Logger) error {
	if strings.TrimSpace(g.Judge) == "" {
		logger.Info("genesis judge not set; waiting for initialize call")
		return nil
	}
	if _, err := engine.Config(ctx); err == nil {
		return nil
	} else if !errors.Is(err, escrow.ErrConfigNotFound) {
		return fmt.Errorf("read escrow config: %w", err)
	}

	judge, err := config.ParseAddress(g.Judge)
	if err != nil {
		return fmt.Errorf("genesis judge: %w", err)
	}
	treasury, err := config.ParseAddress(g.Treasury)
	if err != nil {
		return fmt.Errorf("genesis treasury: %w", err)
	}
	tokens, err := genesisTokens(g.Tokens)
	if err != nil {
		return err
	}
	allocs, err := genesisAllocations(g.Allocations)
	if err != nil {
		return err
	}

	seeded, err := st.SeedGenesis(tokens, allocs)
	if err != nil {
		return fmt.Errorf("seed genesis state: %w", err)
	}
	if !seeded {
		logger.Info("genesis balances already seeded; finishing initialization")
	}

	cfg, err := engine.Initialize(ctx, judge, treasury, g.TaxBps, g.FeePercent)
	if err != nil {
		return fmt.Errorf("initialize escrow config: %w", err)
	}
	logger.Info("escrow genesis applied",
		"judge", cfg.Judge.Hex(),
		"treasury", cfg.Treasury.Hex(),
		"taxBps", cfg.TaxBps,
		"feePercent", cfg.FeePercent,
		"tokens", len(tokens),
		"allocations", len(allocs))
	return nil
}

func genesisTokens(entries []config.Token) ([]state.TokenMetadata, error) {
	tokens := make([]state.TokenMetadata, 0, len(entries))
	for i, token := range entries {
		mint, err := config.ParseAddress(token.Mint)
		if err != nil {
			return nil, fmt.Errorf("genesis token %d: %w", i, err)
		}
		tokens = append(tokens, state.TokenMetadata{Mint: mint, Symbol: token.Symbol, Decimals: token.Decimals})
	}
	return tokens, nil
}

func genesisAllocations(entries []config.Allocation) ([]state.Allocation, error) {
	allocs := make([]state.Allocation, 0, len(entries))
	for i, alloc := range entries {
		holder, err := config.ParseAddress(alloc.Holder)
		if err != nil {
			return nil, fmt.Errorf("genesis allocation %d: %w", i, err)
		}
		amount, err := config.ParseAmount(alloc.Amount)
		if err != nil {
			return nil, fmt.Errorf("genesis allocation %d for %s: %w", i, holder.Hex(), err)
		}
		asset := escrow.NativeAsset()
		if strings.TrimSpace(alloc.Mint) != "" {
			mint, err := config.ParseAddress(alloc.Mint)
			if err != nil {
				return nil, fmt.Errorf("genesis allocation %d for %s: %w", i, holder.Hex(), err)
			}
			asset = escrow.TokenAsset(mint)
		}
		allocs = append(allocs, state.Allocation{Asset: asset, Holder: holder, Amount: amount})
	}
	return allocs, nil
}
