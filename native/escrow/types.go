package escrow

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxTaxBps caps the routine settlement tax at 20%.
	MaxTaxBps uint16 = 2000
	// MaxFeePercent caps the arbitration fee at 20%.
	MaxFeePercent uint8 = 20

	// DisputeWindowSeconds is the time after creation before the judge may
	// open a dispute on their own initiative.
	DisputeWindowSeconds int64 = 14 * 24 * 60 * 60
	// JudgeWindowSeconds is the time after the deadline during which the
	// judge is expected to rule. Once it elapses the payer may recover.
	JudgeWindowSeconds int64 = 28 * 24 * 60 * 60
)

var vaultPrefix = []byte("escrow/vault/")

// AssetKind distinguishes native balances from fungible-token balances.
type AssetKind uint8

const (
	AssetNative AssetKind = iota
	AssetToken
)

func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetToken:
		return "token"
	default:
		return "unknown"
	}
}

// Asset identifies what an escrow holds. Token assets are identified by the
// address of their mint; native assets carry a zero mint.
type Asset struct {
	Kind AssetKind
	Mint common.Address
}

// NativeAsset returns the descriptor for the chain's native balance.
func NativeAsset() Asset { return Asset{Kind: AssetNative} }

// TokenAsset returns the descriptor for the fungible token minted at mint.
func TokenAsset(mint common.Address) Asset { return Asset{Kind: AssetToken, Mint: mint} }

// IsNative reports whether the asset is the native balance.
func (a Asset) IsNative() bool { return a.Kind == AssetNative }

func (a Asset) String() string {
	if a.IsNative() {
		return AssetNative.String()
	}
	return AssetToken.String() + ":" + a.Mint.Hex()
}

// Validate checks the kind/mint combination.
func (a Asset) Validate() error {
	switch a.Kind {
	case AssetNative:
		if a.Mint != (common.Address{}) {
			return fmt.Errorf("escrow: native asset must not carry a mint")
		}
		return nil
	case AssetToken:
		if a.Mint == (common.Address{}) {
			return fmt.Errorf("escrow: token asset requires a mint")
		}
		return nil
	default:
		return fmt.Errorf("escrow: unknown asset kind %d", a.Kind)
	}
}

// Config is the process-wide arbitration configuration. It is created once by
// Initialize and afterwards only mutated by the current judge.
type Config struct {
	Judge        common.Address
	PendingJudge *common.Address
	Treasury     common.Address
	TaxBps       uint16
	FeePercent   uint8
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.PendingJudge != nil {
		pending := *c.PendingJudge
		clone.PendingJudge = &pending
	}
	return &clone
}

// ConfigUpdate is a partial configuration patch. Nil fields are left
// untouched.
type ConfigUpdate struct {
	Treasury     *common.Address
	PendingJudge *common.Address
	TaxBps       *uint16
	FeePercent   *uint8
}

// Status is the lifecycle position of a live escrow. Settled escrows are
// removed from state and therefore have no status.
type Status uint8

const (
	StatusCreated Status = iota
	StatusFunded
	StatusDisputed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusFunded:
		return "funded"
	case StatusDisputed:
		return "disputed"
	default:
		return "unknown"
	}
}

// Outcome names the terminal transition that closed an escrow.
type Outcome string

const (
	OutcomeReleased  Outcome = "released"
	OutcomeReturned  Outcome = "returned"
	OutcomeJudged    Outcome = "judged"
	OutcomeRecovered Outcome = "recovered"
)

// Escrow captures a single payer's commitment. Rates are snapshotted from the
// configuration at creation time and never change afterwards.
type Escrow struct {
	Payer         common.Address
	Payee         common.Address
	Asset         Asset
	Amount        *big.Int
	TaxBps        uint16
	FeePercent    uint8
	Disputed      bool
	Funded        bool
	CreatedAt     int64
	Deadline      int64
	JudgeDeadline int64
}

// Clone returns a deep copy of the escrow object so callers can safely mutate
// the copy without affecting the stored instance.
func (e *Escrow) Clone() *Escrow {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Amount != nil {
		clone.Amount = new(big.Int).Set(e.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Status derives the lifecycle position from the dispute and funding flags.
func (e *Escrow) Status() Status {
	switch {
	case e.Disputed:
		return StatusDisputed
	case e.Funded:
		return StatusFunded
	default:
		return StatusCreated
	}
}

// Vault returns the ledger holder that custodies this escrow's funds.
func (e *Escrow) Vault() common.Address { return VaultAddress(e.Payer) }

// VaultAddress derives the deterministic custody address for the escrow owned
// by payer.
func VaultAddress(payer common.Address) common.Address {
	buf := make([]byte, len(vaultPrefix)+common.AddressLength)
	copy(buf, vaultPrefix)
	copy(buf[len(vaultPrefix):], payer.Bytes())
	return common.BytesToAddress(ethcrypto.Keccak256(buf))
}

// SanitizeEscrow validates the supplied escrow definition and returns a cloned
// instance with a non-nil amount. The input is not mutated.
func SanitizeEscrow(e *Escrow) (*Escrow, error) {
	if e == nil {
		return nil, fmt.Errorf("nil escrow")
	}
	clone := e.Clone()
	if err := clone.Asset.Validate(); err != nil {
		return nil, err
	}
	if clone.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("escrow amount must be positive")
	}
	if !clone.Amount.IsUint64() {
		return nil, fmt.Errorf("escrow amount exceeds 64 bits")
	}
	if uint64(clone.TaxBps) > bpsDenominator {
		return nil, fmt.Errorf("escrow tax bps out of range: %d", clone.TaxBps)
	}
	if uint64(clone.FeePercent) > percentDenominator {
		return nil, fmt.Errorf("escrow fee percent out of range: %d", clone.FeePercent)
	}
	if clone.Deadline < clone.CreatedAt || clone.JudgeDeadline < clone.Deadline {
		return nil, fmt.Errorf("escrow deadlines out of order")
	}
	return clone, nil
}
