package state

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"judgedescrow/native/escrow"
	"judgedescrow/storage"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	mint  = common.HexToAddress("0x000000000000000000000000000000000000c0de")
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB())
}

func TestTxConfigRoundTrip(t *testing.T) {
	m := newTestManager(t)
	pending := bob
	tx := m.NewTx()
	_, ok, err := tx.ConfigGet()
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tx.ConfigPut(&escrow.Config{Judge: alice, PendingJudge: &pending, Treasury: bob, TaxBps: 500, FeePercent: 10}))
	require.NoError(t, tx.Commit())

	cfg, ok, err := m.NewTx().ConfigGet()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, alice, cfg.Judge)
	require.NotNil(t, cfg.PendingJudge)
	require.Equal(t, bob, *cfg.PendingJudge)
	require.Equal(t, uint16(500), cfg.TaxBps)
	require.Equal(t, uint8(10), cfg.FeePercent)
}

func TestTxEscrowLifecycle(t *testing.T) {
	m := newTestManager(t)
	esc := &escrow.Escrow{
		Payer:         alice,
		Payee:         bob,
		Asset:         escrow.NativeAsset(),
		Amount:        big.NewInt(1000),
		TaxBps:        500,
		FeePercent:    10,
		CreatedAt:     100,
		Deadline:      100 + escrow.DisputeWindowSeconds,
		JudgeDeadline: 100 + escrow.DisputeWindowSeconds + escrow.JudgeWindowSeconds,
	}
	tx := m.NewTx()
	require.NoError(t, tx.EscrowPut(esc))
	got, ok, err := tx.EscrowGet(alice)
	require.NoError(t, err)
	require.True(t, ok, "pending write must be visible inside the transaction")
	require.Equal(t, esc.Amount, got.Amount)
	require.NoError(t, tx.Commit())

	got, ok, err = m.NewTx().EscrowGet(alice)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, esc.JudgeDeadline, got.JudgeDeadline)

	tx = m.NewTx()
	require.NoError(t, tx.EscrowDelete(alice))
	require.NoError(t, tx.Commit())
	_, ok, err = m.NewTx().EscrowGet(alice)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTxDiscardLeavesStateUntouched(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Mint(escrow.NativeAsset(), alice, big.NewInt(100)))

	tx := m.NewTx()
	ledger, err := tx.Ledger(escrow.NativeAsset())
	require.NoError(t, err)
	require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(60)))
	tx.Discard()

	bal, err := m.Balance(escrow.NativeAsset(), alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), bal.Int64())
	require.Error(t, tx.Commit())
}

func TestLedgerTransferRejectsOverdraft(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Mint(escrow.NativeAsset(), alice, big.NewInt(50)))

	tx := m.NewTx()
	ledger, err := tx.Ledger(escrow.NativeAsset())
	require.NoError(t, err)
	err = ledger.Transfer(alice, bob, big.NewInt(51))
	require.True(t, errors.Is(err, escrow.ErrInsufficientBalance))

	require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(30)))
	bal, err := ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.Equal(t, int64(20), bal.Int64())
	require.NoError(t, tx.Commit())

	bal, err = m.Balance(escrow.NativeAsset(), bob)
	require.NoError(t, err)
	require.Equal(t, int64(30), bal.Int64())
}

func TestCommitRejectsConflictingDebits(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Mint(escrow.NativeAsset(), alice, big.NewInt(100)))

	first := m.NewTx()
	second := m.NewTx()
	for _, tx := range []*Tx{first, second} {
		ledger, err := tx.Ledger(escrow.NativeAsset())
		require.NoError(t, err)
		require.NoError(t, ledger.Transfer(alice, bob, big.NewInt(80)))
	}
	require.NoError(t, first.Commit())
	require.True(t, errors.Is(second.Commit(), escrow.ErrInsufficientBalance))

	bal, err := m.Balance(escrow.NativeAsset(), bob)
	require.NoError(t, err)
	require.Equal(t, int64(80), bal.Int64())
}

func TestTokenLedgerRequiresRegistration(t *testing.T) {
	m := newTestManager(t)
	asset := escrow.TokenAsset(mint)

	_, err := m.NewTx().Ledger(asset)
	require.True(t, errors.Is(err, escrow.ErrInvalidAsset))
	require.Error(t, m.Mint(asset, alice, big.NewInt(1)))

	require.NoError(t, m.RegisterToken(mint, " usdc ", 6))
	require.Error(t, m.RegisterToken(mint, "USDC", 6))
	meta, err := m.Token(mint)
	require.NoError(t, err)
	require.Equal(t, "USDC", meta.Symbol)

	require.NoError(t, m.Mint(asset, alice, big.NewInt(7)))
	bal, err := m.Balance(asset, alice)
	require.NoError(t, err)
	require.Equal(t, int64(7), bal.Int64())

	native, err := m.Balance(escrow.NativeAsset(), alice)
	require.NoError(t, err)
	require.Zero(t, native.Sign())
}
