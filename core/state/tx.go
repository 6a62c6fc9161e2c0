package state

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"judgedescrow/native/escrow"
	"judgedescrow/storage"
)

var errTxClosed = errors.New("state: transaction already closed")

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Tx buffers record writes and balance deltas until Commit. Reads observe the
// transaction's own pending writes on top of committed state.
type Tx struct {
	m      *Manager
	writes map[string]pendingWrite
	deltas map[string]*big.Int
	closed bool
}

func (tx *Tx) get(key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, errTxClosed
	}
	if w, ok := tx.writes[string(key)]; ok {
		if w.deleted {
			return nil, false, nil
		}
		return w.value, true, nil
	}
	return tx.m.read(key)
}

func (tx *Tx) put(key []byte, value []byte) error {
	if tx.closed {
		return errTxClosed
	}
	tx.writes[string(key)] = pendingWrite{value: value}
	return nil
}

func (tx *Tx) del(key []byte) error {
	if tx.closed {
		return errTxClosed
	}
	tx.writes[string(key)] = pendingWrite{deleted: true}
	return nil
}

// ConfigGet implements escrow.StateTx.
func (tx *Tx) ConfigGet() (*escrow.Config, bool, error) {
	data, ok, err := tx.get(configKey)
	if err != nil || !ok {
		return nil, false, err
	}
	stored := new(storedConfig)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, err
	}
	return stored.toConfig(), true, nil
}

// ConfigPut implements escrow.StateTx.
func (tx *Tx) ConfigPut(cfg *escrow.Config) error {
	if cfg == nil {
		return fmt.Errorf("state: nil config")
	}
	encoded, err := rlp.EncodeToBytes(newStoredConfig(cfg))
	if err != nil {
		return err
	}
	return tx.put(configKey, encoded)
}

// EscrowGet implements escrow.StateTx.
func (tx *Tx) EscrowGet(payer common.Address) (*escrow.Escrow, bool, error) {
	data, ok, err := tx.get(escrowKey(payer))
	if err != nil || !ok {
		return nil, false, err
	}
	stored := new(storedEscrow)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, false, err
	}
	esc, err := stored.toEscrow()
	if err != nil {
		return nil, false, err
	}
	return esc, true, nil
}

// EscrowPut implements escrow.StateTx.
func (tx *Tx) EscrowPut(e *escrow.Escrow) error {
	sanitized, err := escrow.SanitizeEscrow(e)
	if err != nil {
		return err
	}
	stored, err := newStoredEscrow(sanitized)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return tx.put(escrowKey(sanitized.Payer), encoded)
}

// EscrowDelete implements escrow.StateTx.
func (tx *Tx) EscrowDelete(payer common.Address) error {
	return tx.del(escrowKey(payer))
}

// Ledger implements escrow.StateTx. Token ledgers require the mint to be
// registered.
func (tx *Tx) Ledger(asset escrow.Asset) (escrow.Ledger, error) {
	if tx.closed {
		return nil, errTxClosed
	}
	if err := asset.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", escrow.ErrInvalidAsset, err)
	}
	if asset.IsNative() {
		return &nativeLedger{tx: tx}, nil
	}
	if _, ok, err := tx.get(tokenMetadataKey(asset.Mint)); err != nil {
		return nil, err
	} else if !ok {
		return nil, fmt.Errorf("%w: token %s not registered", escrow.ErrInvalidAsset, asset.Mint.Hex())
	}
	return &tokenLedger{tx: tx, mint: asset.Mint}, nil
}

// balance returns the committed balance under key plus this transaction's
// pending delta.
func (tx *Tx) balance(key []byte) (*big.Int, error) {
	if tx.closed {
		return nil, errTxClosed
	}
	base, err := tx.m.loadBigInt(key)
	if err != nil {
		return nil, err
	}
	if delta, ok := tx.deltas[string(key)]; ok {
		base.Add(base, delta)
	}
	return base, nil
}

func (tx *Tx) adjust(key []byte, amount *big.Int) {
	current, ok := tx.deltas[string(key)]
	if !ok {
		current = big.NewInt(0)
	}
	tx.deltas[string(key)] = current.Add(current, amount)
}

func (tx *Tx) move(fromKey, toKey []byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	available, err := tx.balance(fromKey)
	if err != nil {
		return err
	}
	if available.Cmp(amount) < 0 {
		return escrow.ErrInsufficientBalance
	}
	tx.adjust(fromKey, new(big.Int).Neg(amount))
	tx.adjust(toKey, amount)
	return nil
}

// Commit applies the pending writes and balance deltas in one batch. Deltas
// are re-applied against the latest committed balances; if any balance would
// go negative the whole transaction is rejected.
func (tx *Tx) Commit() error {
	if tx.closed {
		return errTxClosed
	}
	tx.closed = true

	tx.m.commitMu.Lock()
	defer tx.m.commitMu.Unlock()

	batch := storage.NewBatch()
	for key, w := range tx.writes {
		if w.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), w.value)
	}
	for key, delta := range tx.deltas {
		if delta.Sign() == 0 {
			continue
		}
		current, err := tx.m.loadBigInt([]byte(key))
		if err != nil {
			return err
		}
		next := current.Add(current, delta)
		if next.Sign() < 0 {
			return escrow.ErrInsufficientBalance
		}
		encoded, err := rlp.EncodeToBytes(next)
		if err != nil {
			return err
		}
		batch.Put([]byte(key), encoded)
	}
	return tx.m.db.Write(batch)
}

// Discard drops every pending change.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
	tx.deltas = nil
}
