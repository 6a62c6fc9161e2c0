package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"judgedescrow/config"
	"judgedescrow/core/state"
	"judgedescrow/native/escrow"
	"judgedescrow/storage"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newGenesisEngine(st *state.Manager) *escrow.Engine {
	engine := escrow.NewEngine()
	engine.SetStore(st)
	return engine
}

func TestApplyGenesisSeedsOnce(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	engine := newGenesisEngine(st)
	mint := "0x000000000000000000000000000000000000c0de"
	holder := "0x0000000000000000000000000000000000000001"
	g := config.Genesis{
		Judge:      "0x00000000000000000000000000000000000000aa",
		Treasury:   "0x00000000000000000000000000000000000000fe",
		TaxBps:     250,
		FeePercent: 5,
		Tokens:     []config.Token{{Mint: mint, Symbol: "usdc", Decimals: 6}},
		Allocations: []config.Allocation{
			{Holder: holder, Amount: "1000"},
			{Holder: holder, Mint: mint, Amount: "42"},
		},
	}

	ctx := context.Background()
	require.NoError(t, applyGenesis(ctx, g, engine, st, quietLogger()))
	// A second start must not credit the allocations again.
	require.NoError(t, applyGenesis(ctx, g, engine, st, quietLogger()))

	cfg, err := engine.Config(ctx)
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(g.Judge), cfg.Judge)
	require.Equal(t, uint16(250), cfg.TaxBps)
	require.Equal(t, uint8(5), cfg.FeePercent)

	token, err := st.Token(common.HexToAddress(mint))
	require.NoError(t, err)
	require.Equal(t, "USDC", token.Symbol)

	native, err := st.Balance(escrow.NativeAsset(), common.HexToAddress(holder))
	require.NoError(t, err)
	require.Equal(t, "1000", native.String())
	tokens, err := st.Balance(escrow.TokenAsset(common.HexToAddress(mint)), common.HexToAddress(holder))
	require.NoError(t, err)
	require.Equal(t, "42", tokens.String())
}

func TestApplyGenesisWithoutJudge(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	engine := newGenesisEngine(st)

	require.NoError(t, applyGenesis(context.Background(), config.Genesis{}, engine, st, quietLogger()))
	_, err := engine.Config(context.Background())
	require.ErrorIs(t, err, escrow.ErrConfigNotFound)
}

func TestApplyGenesisRejectsUnknownTokenAllocation(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	engine := newGenesisEngine(st)
	g := config.Genesis{
		Judge:       "0x00000000000000000000000000000000000000aa",
		Treasury:    "0x00000000000000000000000000000000000000fe",
		Allocations: []config.Allocation{{Holder: "0x0000000000000000000000000000000000000001", Mint: "0x000000000000000000000000000000000000beef", Amount: "1"}},
	}
	err := applyGenesis(context.Background(), g, engine, st, quietLogger())
	require.ErrorIs(t, err, escrow.ErrInvalidAsset)

	_, err = engine.Config(context.Background())
	require.ErrorIs(t, err, escrow.ErrConfigNotFound)
}

func TestApplyGenesisRetryAfterBadAllocation(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	engine := newGenesisEngine(st)
	holder := common.HexToAddress("0x0000000000000000000000000000000000000001")
	g := config.Genesis{
		Judge:    "0x00000000000000000000000000000000000000aa",
		Treasury: "0x00000000000000000000000000000000000000fe",
		Allocations: []config.Allocation{
			{Holder: holder.Hex(), Amount: "1000"},
			{Holder: holder.Hex(), Amount: "oops"},
		},
	}
	ctx := context.Background()
	require.Error(t, applyGenesis(ctx, g, engine, st, quietLogger()))

	balance, err := st.Balance(escrow.NativeAsset(), holder)
	require.NoError(t, err)
	require.Zero(t, balance.Sign(), "nothing may be credited before every allocation parses")

	g.Allocations[1].Amount = "1"
	require.NoError(t, applyGenesis(ctx, g, engine, st, quietLogger()))

	balance, err = st.Balance(escrow.NativeAsset(), holder)
	require.NoError(t, err)
	require.Equal(t, "1001", balance.String())
}

func TestApplyGenesisFinishesAfterSeeding(t *testing.T) {
	st := state.NewManager(storage.NewMemDB())
	engine := newGenesisEngine(st)
	holder := common.HexToAddress("0x0000000000000000000000000000000000000001")
	g := config.Genesis{
		Judge:       "0x00000000000000000000000000000000000000aa",
		Treasury:    "0x00000000000000000000000000000000000000fe",
		Allocations: []config.Allocation{{Holder: holder.Hex(), Amount: "1000"}},
	}
	// A previous start committed the balances but stopped before the
	// configuration was written.
	allocs, err := genesisAllocations(g.Allocations)
	require.NoError(t, err)
	seeded, err := st.SeedGenesis(nil, allocs)
	require.NoError(t, err)
	require.True(t, seeded)

	require.NoError(t, applyGenesis(context.Background(), g, engine, st, quietLogger()))

	cfg, err := engine.Config(context.Background())
	require.NoError(t, err)
	require.Equal(t, common.HexToAddress(g.Judge), cfg.Judge)
	balance, err := st.Balance(escrow.NativeAsset(), holder)
	require.NoError(t, err)
	require.Equal(t, "1000", balance.String())
}
