package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"judgedescrow/native/escrow"
)

func TestSeedGenesisAppliesOnce(t *testing.T) {
	m := newTestManager(t)
	tokens := []TokenMetadata{{Mint: mint, Symbol: " usdc ", Decimals: 6}}
	allocs := []Allocation{
		{Asset: escrow.NativeAsset(), Holder: alice, Amount: big.NewInt(1000)},
		{Asset: escrow.TokenAsset(mint), Holder: alice, Amount: big.NewInt(42)},
		{Asset: escrow.NativeAsset(), Holder: alice, Amount: big.NewInt(1)},
	}

	applied, err := m.SeedGenesis(tokens, allocs)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = m.SeedGenesis(tokens, allocs)
	require.NoError(t, err)
	require.False(t, applied)

	done, err := m.GenesisApplied()
	require.NoError(t, err)
	require.True(t, done)

	native, err := m.Balance(escrow.NativeAsset(), alice)
	require.NoError(t, err)
	require.Equal(t, "1001", native.String())
	held, err := m.Balance(escrow.TokenAsset(mint), alice)
	require.NoError(t, err)
	require.Equal(t, "42", held.String())

	meta, err := m.Token(mint)
	require.NoError(t, err)
	require.Equal(t, "USDC", meta.Symbol)
}

func TestSeedGenesisFailureCommitsNothing(t *testing.T) {
	m := newTestManager(t)
	allocs := []Allocation{
		{Asset: escrow.NativeAsset(), Holder: alice, Amount: big.NewInt(1000)},
		// Token mint was never registered.
		{Asset: escrow.TokenAsset(mint), Holder: bob, Amount: big.NewInt(5)},
	}

	applied, err := m.SeedGenesis(nil, allocs)
	require.ErrorIs(t, err, escrow.ErrInvalidAsset)
	require.False(t, applied)

	done, err := m.GenesisApplied()
	require.NoError(t, err)
	require.False(t, done)
	native, err := m.Balance(escrow.NativeAsset(), alice)
	require.NoError(t, err)
	require.Zero(t, native.Sign())

	// Retrying with the token registered succeeds and credits exactly once.
	applied, err = m.SeedGenesis([]TokenMetadata{{Mint: mint, Symbol: "USDC"}}, allocs)
	require.NoError(t, err)
	require.True(t, applied)
	native, err = m.Balance(escrow.NativeAsset(), alice)
	require.NoError(t, err)
	require.Equal(t, "1000", native.String())
}

func TestSeedGenesisKeepsRegisteredToken(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.RegisterToken(mint, "OLD", 2))

	_, err := m.SeedGenesis([]TokenMetadata{{Mint: mint, Symbol: "NEW", Decimals: 6}}, nil)
	require.NoError(t, err)

	meta, err := m.Token(mint)
	require.NoError(t, err)
	require.Equal(t, "OLD", meta.Symbol)
	require.Equal(t, uint8(2), meta.Decimals)
}
