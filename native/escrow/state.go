package escrow

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger moves value of a single asset between holders.
type Ledger interface {
	BalanceOf(holder common.Address) (*big.Int, error)
	// Transfer fails with ErrInsufficientBalance when from cannot cover
	// amount.
	Transfer(from, to common.Address, amount *big.Int) error
}

// StateTx stages the reads and writes of one engine operation. Nothing is
// visible to other transactions until Commit succeeds.
type StateTx interface {
	ConfigGet() (*Config, bool, error)
	ConfigPut(*Config) error
	EscrowGet(payer common.Address) (*Escrow, bool, error)
	EscrowPut(*Escrow) error
	EscrowDelete(payer common.Address) error
	Ledger(asset Asset) (Ledger, error)
	Commit() error
	Discard()
}

// Store opens state transactions for the engine.
type Store interface {
	Begin() (StateTx, error)
}

// payerLocks serialises operations on the escrow owned by a single payer while
// letting different payers proceed in parallel.
type payerLocks struct {
	mu    sync.Mutex
	locks map[common.Address]*payerLock
}

type payerLock struct {
	mu   sync.Mutex
	refs int
}

func (p *payerLocks) lock(payer common.Address) func() {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = make(map[common.Address]*payerLock)
	}
	l, ok := p.locks[payer]
	if !ok {
		l = &payerLock{}
		p.locks[payer] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, payer)
		}
		p.mu.Unlock()
	}
}
