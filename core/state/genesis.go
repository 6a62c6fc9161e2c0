package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"judgedescrow/native/escrow"
)

var genesisKey = ethcrypto.Keccak256([]byte("escrow/genesis"))

// Allocation is a balance credited when the data directory is seeded.
type Allocation struct {
	Asset  escrow.Asset
	Holder common.Address
	Amount *big.Int
}

// GenesisApplied reports whether SeedGenesis has already committed.
func (m *Manager) GenesisApplied() (bool, error) {
	_, ok, err := m.read(genesisKey)
	return ok, err
}

// SeedGenesis registers tokens and credits allocations in a single batch
// together with a marker key. It returns false without touching state when
// the marker is already present, so a restart never credits twice. Tokens
// that are already registered are left as they are.
func (m *Manager) SeedGenesis(tokens []TokenMetadata, allocs []Allocation) (bool, error) {
	if m == nil || m.db == nil {
		return false, fmt.Errorf("state: database not configured")
	}
	tx := m.NewTx()
	if _, ok, err := tx.get(genesisKey); err != nil {
		tx.Discard()
		return false, err
	} else if ok {
		tx.Discard()
		return false, nil
	}

	for _, token := range tokens {
		encoded, err := encodeToken(token)
		if err != nil {
			tx.Discard()
			return false, err
		}
		key := tokenMetadataKey(token.Mint)
		if _, ok, err := tx.get(key); err != nil {
			tx.Discard()
			return false, err
		} else if ok {
			continue
		}
		if err := tx.put(key, encoded); err != nil {
			tx.Discard()
			return false, err
		}
	}

	for i, alloc := range allocs {
		if alloc.Amount == nil || alloc.Amount.Sign() <= 0 {
			tx.Discard()
			return false, fmt.Errorf("allocation %d: amount must be positive", i)
		}
		if _, err := tx.Ledger(alloc.Asset); err != nil {
			tx.Discard()
			return false, fmt.Errorf("allocation %d: %w", i, err)
		}
		tx.adjust(balanceKey(alloc.Asset, alloc.Holder), alloc.Amount)
	}

	if err := tx.put(genesisKey, []byte{1}); err != nil {
		tx.Discard()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
