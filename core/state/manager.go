package state

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"judgedescrow/native/escrow"
	"judgedescrow/storage"
)

var (
	configKey     = ethcrypto.Keccak256([]byte("escrow/config"))
	escrowPrefix  = []byte("escrow/record/")
	nativePrefix  = []byte("balance/native/")
	tokenPrefix   = []byte("balance/token/")
	tokenMetaPref = []byte("token/meta/")
)

// Manager persists escrow configuration, escrow records and ledger balances
// on top of a key/value database. Writes happen through transactions opened
// with Begin.
type Manager struct {
	db storage.Database
	// commitMu serialises commits so balance deltas from concurrent
	// transactions are applied against the latest committed balances.
	commitMu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction for the escrow engine.
func (m *Manager) Begin() (escrow.StateTx, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state: database not configured")
	}
	return m.NewTx(), nil
}

// NewTx opens a concrete transaction.
func (m *Manager) NewTx() *Tx {
	return &Tx{
		m:      m,
		writes: make(map[string]pendingWrite),
		deltas: make(map[string]*big.Int),
	}
}

// TokenMetadata describes a fungible token that escrows may hold.
type TokenMetadata struct {
	Mint     common.Address
	Symbol   string
	Decimals uint8
}

func escrowKey(payer common.Address) []byte {
	buf := make([]byte, len(escrowPrefix)+common.AddressLength)
	copy(buf, escrowPrefix)
	copy(buf[len(escrowPrefix):], payer.Bytes())
	return ethcrypto.Keccak256(buf)
}

func nativeBalanceKey(holder common.Address) []byte {
	buf := make([]byte, len(nativePrefix)+common.AddressLength)
	copy(buf, nativePrefix)
	copy(buf[len(nativePrefix):], holder.Bytes())
	return ethcrypto.Keccak256(buf)
}

func tokenBalanceKey(mint, holder common.Address) []byte {
	buf := make([]byte, len(tokenPrefix)+2*common.AddressLength+1)
	copy(buf, tokenPrefix)
	copy(buf[len(tokenPrefix):], mint.Bytes())
	buf[len(tokenPrefix)+common.AddressLength] = ':'
	copy(buf[len(tokenPrefix)+common.AddressLength+1:], holder.Bytes())
	return ethcrypto.Keccak256(buf)
}

func tokenMetadataKey(mint common.Address) []byte {
	buf := make([]byte, len(tokenMetaPref)+common.AddressLength)
	copy(buf, tokenMetaPref)
	copy(buf[len(tokenMetaPref):], mint.Bytes())
	return ethcrypto.Keccak256(buf)
}

func balanceKey(asset escrow.Asset, holder common.Address) []byte {
	if asset.IsNative() {
		return nativeBalanceKey(holder)
	}
	return tokenBalanceKey(asset.Mint, holder)
}

func (m *Manager) read(key []byte) ([]byte, bool, error) {
	data, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	data, ok, err := m.read(key)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return big.NewInt(0), nil
	}
	value := new(big.Int)
	if err := rlp.DecodeBytes(data, value); err != nil {
		return nil, err
	}
	return value, nil
}

// RegisterToken records the metadata of a token mint so escrows can hold it.
func (m *Manager) RegisterToken(mint common.Address, symbol string, decimals uint8) error {
	encoded, err := encodeToken(TokenMetadata{Mint: mint, Symbol: symbol, Decimals: decimals})
	if err != nil {
		return err
	}
	key := tokenMetadataKey(mint)
	if _, ok, err := m.read(key); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("token %s already registered", mint.Hex())
	}
	return m.db.Put(key, encoded)
}

// encodeToken validates meta and returns its stored form with the symbol
// normalised to upper case.
func encodeToken(meta TokenMetadata) ([]byte, error) {
	if meta.Mint == (common.Address{}) {
		return nil, fmt.Errorf("token mint must not be empty")
	}
	meta.Symbol = strings.ToUpper(strings.TrimSpace(meta.Symbol))
	if meta.Symbol == "" {
		return nil, fmt.Errorf("token %s: symbol must not be empty", meta.Mint.Hex())
	}
	return rlp.EncodeToBytes(&meta)
}

// Token retrieves metadata for a registered token mint.
func (m *Manager) Token(mint common.Address) (*TokenMetadata, error) {
	data, ok, err := m.read(tokenMetadataKey(mint))
	if err != nil || !ok {
		return nil, err
	}
	meta := new(TokenMetadata)
	if err := rlp.DecodeBytes(data, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Balance returns the committed balance of holder for asset.
func (m *Manager) Balance(asset escrow.Asset, holder common.Address) (*big.Int, error) {
	if err := asset.Validate(); err != nil {
		return nil, err
	}
	return m.loadBigInt(balanceKey(asset, holder))
}

// Mint credits amount of asset to holder outside of any escrow flow. Genesis
// goes through SeedGenesis instead so every credit lands in one batch.
func (m *Manager) Mint(asset escrow.Asset, holder common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("mint amount must be positive")
	}
	tx := m.NewTx()
	if _, err := tx.Ledger(asset); err != nil {
		tx.Discard()
		return err
	}
	tx.adjust(balanceKey(asset, holder), amount)
	return tx.Commit()
}
