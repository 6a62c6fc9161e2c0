package routes

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"judgedescrow/native/escrow"
)

type assetView struct {
	Kind string `json:"kind"`
	Mint string `json:"mint,omitempty"`
}

func newAssetView(a escrow.Asset) assetView {
	if a.IsNative() {
		return assetView{Kind: escrow.AssetNative.String()}
	}
	return assetView{Kind: escrow.AssetToken.String(), Mint: a.Mint.Hex()}
}

// toAsset parses the wire form. A missing asset means native.
func (v *assetView) toAsset() (escrow.Asset, error) {
	if v == nil {
		return escrow.NativeAsset(), nil
	}
	switch strings.ToLower(strings.TrimSpace(v.Kind)) {
	case "", escrow.AssetNative.String():
		if strings.TrimSpace(v.Mint) != "" {
			return escrow.Asset{}, fmt.Errorf("%w: native asset must not carry a mint", escrow.ErrInvalidAsset)
		}
		return escrow.NativeAsset(), nil
	case escrow.AssetToken.String():
		mint, err := parseAddress("mint", v.Mint)
		if err != nil {
			return escrow.Asset{}, fmt.Errorf("%w: %v", escrow.ErrInvalidAsset, err)
		}
		return escrow.TokenAsset(mint), nil
	default:
		return escrow.Asset{}, fmt.Errorf("%w: unknown kind %q", escrow.ErrInvalidAsset, v.Kind)
	}
}

type configView struct {
	Judge        string `json:"judge"`
	PendingJudge string `json:"pendingJudge,omitempty"`
	Treasury     string `json:"treasury"`
	TaxBps       uint16 `json:"taxBps"`
	FeePercent   uint8  `json:"feePercent"`
}

func newConfigView(c *escrow.Config) configView {
	view := configView{
		Judge:      c.Judge.Hex(),
		Treasury:   c.Treasury.Hex(),
		TaxBps:     c.TaxBps,
		FeePercent: c.FeePercent,
	}
	if c.PendingJudge != nil {
		view.PendingJudge = c.PendingJudge.Hex()
	}
	return view
}

type escrowView struct {
	Payer         string    `json:"payer"`
	Payee         string    `json:"payee"`
	Asset         assetView `json:"asset"`
	Amount        string    `json:"amount"`
	TaxBps        uint16    `json:"taxBps"`
	FeePercent    uint8     `json:"feePercent"`
	Status        string    `json:"status"`
	Disputed      bool      `json:"disputed"`
	Funded        bool      `json:"funded"`
	CreatedAt     int64     `json:"createdAt"`
	Deadline      int64     `json:"deadline"`
	JudgeDeadline int64     `json:"judgeDeadline"`
	Vault         string    `json:"vault"`
	Held          string    `json:"held,omitempty"`
}

func newEscrowView(e *escrow.Escrow, held *big.Int) escrowView {
	view := escrowView{
		Payer:         e.Payer.Hex(),
		Payee:         e.Payee.Hex(),
		Asset:         newAssetView(e.Asset),
		Amount:        e.Amount.String(),
		TaxBps:        e.TaxBps,
		FeePercent:    e.FeePercent,
		Status:        e.Status().String(),
		Disputed:      e.Disputed,
		Funded:        e.Funded,
		CreatedAt:     e.CreatedAt,
		Deadline:      e.Deadline,
		JudgeDeadline: e.JudgeDeadline,
		Vault:         e.Vault().Hex(),
	}
	if held != nil {
		view.Held = held.String()
	}
	return view
}

type settlementView struct {
	Outcome string `json:"outcome"`
	Balance string `json:"balance"`
	Payout  string `json:"payout"`
	Fee     string `json:"fee"`
}

func newSettlementView(outcome escrow.Outcome, s escrow.Settlement) settlementView {
	return settlementView{
		Outcome: string(outcome),
		Balance: s.Balance.String(),
		Payout:  s.Payout.String(),
		Fee:     s.Fee.String(),
	}
}

func parseAddress(field, raw string) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount must be a base-10 integer", escrow.ErrInvalidEscrowAmount)
	}
	return amount, nil
}
