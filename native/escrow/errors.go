package escrow

import "errors"

// Validation errors.
var (
	ErrTaxTooHigh          = errors.New("escrow: tax rate exceeds maximum of 2000 basis points (20%)")
	ErrFeeTooHigh          = errors.New("escrow: judge fee exceeds maximum of 20%")
	ErrInvalidEscrowAmount = errors.New("escrow: amount is too small")
	ErrInvalidAsset        = errors.New("escrow: invalid asset")
	ErrEscrowNotNative     = errors.New("escrow: native operation on token escrow")
	ErrEscrowNotToken      = errors.New("escrow: token operation on native escrow")
	ErrWrongToken          = errors.New("escrow: token mint does not match escrow")
	ErrAmountOverflow      = errors.New("escrow: amount overflows settlement arithmetic")
)

// Authorization errors.
var (
	ErrUninvolvedUser          = errors.New("escrow: uninvolved user")
	ErrUnauthorizedJudge       = errors.New("escrow: signer is not current nominee")
	ErrUnauthorizedConfigJudge = errors.New("escrow: only the judge can perform this action")
	ErrNotPayerReleasing       = errors.New("escrow: only the payer can release funds")
	ErrNotPayeeReturning       = errors.New("escrow: only the payee can return funds")
	ErrNotPayerRecovering      = errors.New("escrow: only the payer can recover funds")
)

// State errors.
var (
	ErrConfigExists      = errors.New("escrow: config already initialized")
	ErrConfigNotFound    = errors.New("escrow: config not initialized")
	ErrEscrowExists      = errors.New("escrow: payer already has a live escrow")
	ErrEscrowNotFound    = errors.New("escrow: escrow not found")
	ErrEscrowDisputed    = errors.New("escrow: escrow is in dispute")
	ErrEscrowNotDisputed = errors.New("escrow: escrow is not in dispute")
	ErrEscrowFunded      = errors.New("escrow: escrow already funded")
	ErrEscrowNotFunded   = errors.New("escrow: escrow not funded")
	ErrNoPendingJudge    = errors.New("escrow: no judge nominee pending")
	ErrRecoverTooEarly   = errors.New("escrow: judge deadline has not passed")
)

// Resource and infrastructure errors.
var (
	ErrInsufficientBalance = errors.New("escrow: insufficient balance")
	// ErrInfrastructure wraps storage and ledger faults that are not part of
	// the domain error taxonomy.
	ErrInfrastructure = errors.New("escrow: infrastructure failure")
)

// domainErrors lists every sentinel that callers can act on. Anything else
// surfacing from the state layer is reported as ErrInfrastructure.
var domainErrors = []error{
	ErrTaxTooHigh, ErrFeeTooHigh, ErrInvalidEscrowAmount, ErrInvalidAsset,
	ErrEscrowNotNative, ErrEscrowNotToken, ErrWrongToken, ErrAmountOverflow,
	ErrUninvolvedUser, ErrUnauthorizedJudge, ErrUnauthorizedConfigJudge,
	ErrNotPayerReleasing, ErrNotPayeeReturning, ErrNotPayerRecovering,
	ErrConfigExists, ErrConfigNotFound, ErrEscrowExists, ErrEscrowNotFound,
	ErrEscrowDisputed, ErrEscrowNotDisputed, ErrEscrowFunded, ErrEscrowNotFunded,
	ErrNoPendingJudge, ErrRecoverTooEarly, ErrInsufficientBalance, ErrInfrastructure,
}

// IsDomainError reports whether err belongs to the escrow error taxonomy.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
