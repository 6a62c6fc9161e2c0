package escrow

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"judgedescrow/core/types"
)

const (
	EventTypeConfigCreated   = "escrow.config.created"
	EventTypeConfigUpdated   = "escrow.config.updated"
	EventTypeJudgeNominated  = "escrow.judge.nominated"
	EventTypeJudgeAccepted   = "escrow.judge.accepted"
	EventTypeEscrowCreated   = "escrow.created"
	EventTypeEscrowDeposited = "escrow.deposited"
	EventTypeEscrowDisputed  = "escrow.disputed"
	EventTypeEscrowReleased  = "escrow.released"
	EventTypeEscrowReturned  = "escrow.returned"
	EventTypeEscrowJudged    = "escrow.judged"
	EventTypeEscrowRecovered = "escrow.recovered"
)

// NewConfigCreatedEvent returns the payload emitted when the configuration is
// first initialised.
func NewConfigCreatedEvent(c *Config, ts int64) *types.Event {
	return newConfigEvent(EventTypeConfigCreated, c, ts)
}

// NewConfigUpdatedEvent returns the payload emitted after any configuration
// patch is applied.
func NewConfigUpdatedEvent(c *Config, ts int64) *types.Event {
	return newConfigEvent(EventTypeConfigUpdated, c, ts)
}

// NewJudgeNominatedEvent signals that a replacement judge has been nominated
// but has not yet accepted the seat.
func NewJudgeNominatedEvent(nominee common.Address, ts int64) *types.Event {
	return &types.Event{Type: EventTypeJudgeNominated, Attributes: map[string]string{
		"pendingJudge": nominee.Hex(),
		"timestamp":    strconv.FormatInt(ts, 10),
	}}
}

// NewJudgeAcceptedEvent records the completed judge handoff.
func NewJudgeAcceptedEvent(oldJudge, newJudge common.Address, ts int64) *types.Event {
	return &types.Event{Type: EventTypeJudgeAccepted, Attributes: map[string]string{
		"oldJudge":  oldJudge.Hex(),
		"newJudge":  newJudge.Hex(),
		"timestamp": strconv.FormatInt(ts, 10),
	}}
}

// NewCreatedEvent returns the canonical event payload for a newly created
// escrow.
func NewCreatedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowCreated, e) }

// NewDepositedEvent is emitted once the payer has funded the escrow.
func NewDepositedEvent(e *Escrow) *types.Event { return newEscrowEvent(EventTypeEscrowDeposited, e) }

// NewDisputedEvent returns the canonical event payload emitted when an escrow is
// marked as disputed.
func NewDisputedEvent(e *Escrow, by common.Address) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowDisputed, e)
	evt.Attributes["disputedBy"] = by.Hex()
	return evt
}

// NewSettledEvent returns the payload for any terminal transition. The
// recipient is the party that received the payout.
func NewSettledEvent(e *Escrow, outcome Outcome, recipient common.Address, s Settlement) *types.Event {
	evt := newEscrowEvent(settledEventType(outcome), e)
	evt.Attributes["recipient"] = recipient.Hex()
	evt.Attributes["balance"] = cloneBigInt(s.Balance).String()
	evt.Attributes["payout"] = cloneBigInt(s.Payout).String()
	evt.Attributes["fee"] = cloneBigInt(s.Fee).String()
	return evt
}

// NewJudgedEvent extends the settled payload with the judge's decision.
func NewJudgedEvent(e *Escrow, decision bool, recipient common.Address, s Settlement) *types.Event {
	evt := NewSettledEvent(e, OutcomeJudged, recipient, s)
	evt.Attributes["decision"] = strconv.FormatBool(decision)
	return evt
}

func settledEventType(outcome Outcome) string {
	switch outcome {
	case OutcomeReleased:
		return EventTypeEscrowReleased
	case OutcomeReturned:
		return EventTypeEscrowReturned
	case OutcomeJudged:
		return EventTypeEscrowJudged
	case OutcomeRecovered:
		return EventTypeEscrowRecovered
	default:
		return "escrow." + string(outcome)
	}
}

func newConfigEvent(eventType string, c *Config, ts int64) *types.Event {
	attrs := make(map[string]string)
	if c == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["judge"] = c.Judge.Hex()
	attrs["treasury"] = c.Treasury.Hex()
	attrs["taxBps"] = strconv.FormatUint(uint64(c.TaxBps), 10)
	attrs["feePercent"] = strconv.FormatUint(uint64(c.FeePercent), 10)
	attrs["timestamp"] = strconv.FormatInt(ts, 10)
	if c.PendingJudge != nil {
		attrs["pendingJudge"] = c.PendingJudge.Hex()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

func newEscrowEvent(eventType string, e *Escrow) *types.Event {
	attrs := make(map[string]string)
	if e == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["payer"] = e.Payer.Hex()
	attrs["payee"] = e.Payee.Hex()
	attrs["asset"] = e.Asset.String()
	attrs["amount"] = cloneBigInt(e.Amount).String()
	attrs["taxBps"] = strconv.FormatUint(uint64(e.TaxBps), 10)
	attrs["feePercent"] = strconv.FormatUint(uint64(e.FeePercent), 10)
	attrs["createdAt"] = strconv.FormatInt(e.CreatedAt, 10)
	attrs["deadline"] = strconv.FormatInt(e.Deadline, 10)
	attrs["judgeDeadline"] = strconv.FormatInt(e.JudgeDeadline, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}
