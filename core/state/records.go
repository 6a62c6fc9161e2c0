package state

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"judgedescrow/native/escrow"
)

type storedConfig struct {
	Judge           common.Address
	Treasury        common.Address
	HasPendingJudge bool
	PendingJudge    common.Address
	TaxBps          uint16
	FeePercent      uint8
}

func newStoredConfig(c *escrow.Config) *storedConfig {
	out := &storedConfig{
		Judge:      c.Judge,
		Treasury:   c.Treasury,
		TaxBps:     c.TaxBps,
		FeePercent: c.FeePercent,
	}
	if c.PendingJudge != nil {
		out.HasPendingJudge = true
		out.PendingJudge = *c.PendingJudge
	}
	return out
}

func (s *storedConfig) toConfig() *escrow.Config {
	out := &escrow.Config{
		Judge:      s.Judge,
		Treasury:   s.Treasury,
		TaxBps:     s.TaxBps,
		FeePercent: s.FeePercent,
	}
	if s.HasPendingJudge {
		pending := s.PendingJudge
		out.PendingJudge = &pending
	}
	return out
}

type storedEscrow struct {
	Payer         common.Address
	Payee         common.Address
	AssetKind     uint8
	Mint          common.Address
	Amount        *big.Int
	TaxBps        uint16
	FeePercent    uint8
	Disputed      bool
	Funded        bool
	CreatedAt     uint64
	Deadline      uint64
	JudgeDeadline uint64
}

func newStoredEscrow(e *escrow.Escrow) (*storedEscrow, error) {
	if e.CreatedAt < 0 || e.Deadline < 0 || e.JudgeDeadline < 0 {
		return nil, fmt.Errorf("escrow: negative timestamp")
	}
	return &storedEscrow{
		Payer:         e.Payer,
		Payee:         e.Payee,
		AssetKind:     uint8(e.Asset.Kind),
		Mint:          e.Asset.Mint,
		Amount:        new(big.Int).Set(e.Amount),
		TaxBps:        e.TaxBps,
		FeePercent:    e.FeePercent,
		Disputed:      e.Disputed,
		Funded:        e.Funded,
		CreatedAt:     uint64(e.CreatedAt),
		Deadline:      uint64(e.Deadline),
		JudgeDeadline: uint64(e.JudgeDeadline),
	}, nil
}

func (s *storedEscrow) toEscrow() (*escrow.Escrow, error) {
	if s == nil {
		return nil, fmt.Errorf("escrow: nil storage record")
	}
	out := &escrow.Escrow{
		Payer:         s.Payer,
		Payee:         s.Payee,
		Asset:         escrow.Asset{Kind: escrow.AssetKind(s.AssetKind), Mint: s.Mint},
		Amount:        big.NewInt(0),
		TaxBps:        s.TaxBps,
		FeePercent:    s.FeePercent,
		Disputed:      s.Disputed,
		Funded:        s.Funded,
		CreatedAt:     int64(s.CreatedAt),
		Deadline:      int64(s.Deadline),
		JudgeDeadline: int64(s.JudgeDeadline),
	}
	if s.Amount != nil {
		out.Amount = new(big.Int).Set(s.Amount)
	}
	return escrow.SanitizeEscrow(out)
}
