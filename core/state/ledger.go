package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// nativeLedger moves the chain's native balance.
type nativeLedger struct {
	tx *Tx
}

func (l *nativeLedger) BalanceOf(holder common.Address) (*big.Int, error) {
	return l.tx.balance(nativeBalanceKey(holder))
}

func (l *nativeLedger) Transfer(from, to common.Address, amount *big.Int) error {
	return l.tx.move(nativeBalanceKey(from), nativeBalanceKey(to), amount)
}

// tokenLedger moves balances of a single registered token mint.
type tokenLedger struct {
	tx   *Tx
	mint common.Address
}

func (l *tokenLedger) BalanceOf(holder common.Address) (*big.Int, error) {
	return l.tx.balance(tokenBalanceKey(l.mint, holder))
}

func (l *tokenLedger) Transfer(from, to common.Address, amount *big.Int) error {
	return l.tx.move(tokenBalanceKey(l.mint, from), tokenBalanceKey(l.mint, to), amount)
}
