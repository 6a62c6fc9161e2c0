package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"judgedescrow/core/events"
	"judgedescrow/core/types"
	"judgedescrow/observability/metrics"
)

var errNilState = errors.New("escrow engine: state not configured")

const tracerName = "judgedescrow/native/escrow"

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }

// Engine wires the escrow business logic with external state, the event
// emitter and the clock. Every exported operation runs inside a single state
// transaction: it either commits all of its ledger movements and record
// changes or leaves state untouched.
type Engine struct {
	store   Store
	emitter events.Emitter
	nowFn   func() int64
	logger  *slog.Logger
	metrics *metrics.EscrowMetrics
	tracer  trace.Tracer

	// configMu orders configuration writes against the escrow operations
	// that read the configuration.
	configMu sync.RWMutex
	payers   payerLocks
}

// NewEngine creates an escrow engine with a no-op emitter and the wall clock.
// Callers must configure a state backend via SetStore.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		logger:  slog.Default(),
		tracer:  otel.Tracer(tracerName),
	}
}

// SetStore configures the state backend used by the engine.
func (e *Engine) SetStore(store Store) { e.store = store }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger configures the structured logger. Passing nil restores
// slog.Default().
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger
}

// SetMetrics configures the metrics sink. Nil disables metrics.
func (e *Engine) SetMetrics(m *metrics.EscrowMetrics) { e.metrics = m }

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(escrowEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) log() *slog.Logger {
	if e.logger == nil {
		return slog.Default()
	}
	return e.logger
}

// classify passes domain errors through and marks everything else as an
// infrastructure fault.
func classify(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInfrastructure, err)
}

// run executes fn inside a state transaction, commits it and, only once the
// commit succeeded, emits the returned events.
func (e *Engine) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(tx StateTx) ([]*types.Event, error)) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	start := time.Now()
	tracer := e.tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	_, span := tracer.Start(ctx, "escrow."+op, trace.WithAttributes(attrs...))
	defer span.End()

	evts, err := e.apply(fn)
	e.metrics.Observe(op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log().Debug("escrow operation rejected", "operation", op, "error", err)
		return err
	}
	for _, evt := range evts {
		e.emit(evt)
	}
	return nil
}

func (e *Engine) apply(fn func(tx StateTx) ([]*types.Event, error)) ([]*types.Event, error) {
	tx, err := e.store.Begin()
	if err != nil {
		return nil, classify(err)
	}
	evts, err := fn(tx)
	if err != nil {
		tx.Discard()
		return nil, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(err)
	}
	return evts, nil
}

func loadConfig(tx StateTx) (*Config, error) {
	cfg, ok, err := tx.ConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConfigNotFound
	}
	return cfg, nil
}

func loadEscrow(tx StateTx, payer common.Address) (*Escrow, error) {
	esc, ok, err := tx.EscrowGet(payer)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEscrowNotFound
	}
	return esc, nil
}

func payerAttrs(caller, payer common.Address) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("escrow.caller", caller.Hex()),
		attribute.String("escrow.payer", payer.Hex()),
	}
}

// Escrow returns a copy of the live escrow owned by payer.
func (e *Engine) Escrow(ctx context.Context, payer common.Address) (*Escrow, error) {
	var out *Escrow
	err := e.run(ctx, "get", payerAttrs(payer, payer), func(tx StateTx) ([]*types.Event, error) {
		esc, err := loadEscrow(tx, payer)
		if err != nil {
			return nil, err
		}
		out = esc.Clone()
		return nil, nil
	})
	return out, err
}

// HeldBalance reports the balance currently custodied for payer's escrow.
func (e *Engine) HeldBalance(ctx context.Context, payer common.Address) (*big.Int, error) {
	var out *big.Int
	err := e.run(ctx, "balance", payerAttrs(payer, payer), func(tx StateTx) ([]*types.Event, error) {
		esc, err := loadEscrow(tx, payer)
		if err != nil {
			return nil, err
		}
		ledger, err := tx.Ledger(esc.Asset)
		if err != nil {
			return nil, err
		}
		out, err = ledger.BalanceOf(esc.Vault())
		return nil, err
	})
	return out, err
}

// Create opens a new escrow for payer, snapshotting the current tax and fee
// rates. A payer may hold at most one live escrow.
func (e *Engine) Create(ctx context.Context, payer, payee common.Address, amount *big.Int, asset Asset) (*Escrow, error) {
	if err := asset.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAsset, err)
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, ErrInvalidEscrowAmount
	}
	if !amt.IsUint64() {
		return nil, ErrAmountOverflow
	}
	unlock := e.payers.lock(payer)
	defer unlock()
	e.configMu.RLock()
	defer e.configMu.RUnlock()

	var created *Escrow
	attrs := append(payerAttrs(payer, payer), attribute.String("escrow.asset", asset.String()))
	err := e.run(ctx, "create", attrs, func(tx StateTx) ([]*types.Event, error) {
		cfg, err := loadConfig(tx)
		if err != nil {
			return nil, err
		}
		taxed, err := MinimumTaxed(amt, cfg.TaxBps)
		if err != nil {
			return nil, err
		}
		if !taxed {
			return nil, ErrInvalidEscrowAmount
		}
		if _, exists, err := tx.EscrowGet(payer); err != nil {
			return nil, err
		} else if exists {
			return nil, ErrEscrowExists
		}
		if _, err := tx.Ledger(asset); err != nil {
			return nil, err
		}
		now := e.now()
		esc := &Escrow{
			Payer:         payer,
			Payee:         payee,
			Asset:         asset,
			Amount:        amt,
			TaxBps:        cfg.TaxBps,
			FeePercent:    cfg.FeePercent,
			CreatedAt:     now,
			Deadline:      now + DisputeWindowSeconds,
			JudgeDeadline: now + DisputeWindowSeconds + JudgeWindowSeconds,
		}
		if err := tx.EscrowPut(esc); err != nil {
			return nil, err
		}
		created = esc
		return []*types.Event{NewCreatedEvent(esc)}, nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveCreated(payer.Hex())
	e.log().Info("escrow created",
		"payer", payer.Hex(),
		"payee", payee.Hex(),
		"asset", asset.String(),
		"amount", amt.String(),
		"deadline", created.Deadline,
		"judgeDeadline", created.JudgeDeadline)
	return created.Clone(), nil
}

// Deposit moves the escrow amount from the payer into the escrow vault. The
// supplied asset must match the escrow's asset.
func (e *Engine) Deposit(ctx context.Context, payer common.Address, asset Asset) error {
	unlock := e.payers.lock(payer)
	defer unlock()

	var funded *Escrow
	attrs := append(payerAttrs(payer, payer), attribute.String("escrow.asset", asset.String()))
	err := e.run(ctx, "deposit", attrs, func(tx StateTx) ([]*types.Event, error) {
		esc, err := loadEscrow(tx, payer)
		if err != nil {
			return nil, err
		}
		if err := matchAsset(esc.Asset, asset); err != nil {
			return nil, err
		}
		if esc.Funded {
			return nil, ErrEscrowFunded
		}
		ledger, err := tx.Ledger(esc.Asset)
		if err != nil {
			return nil, err
		}
		if err := ledger.Transfer(esc.Payer, esc.Vault(), esc.Amount); err != nil {
			return nil, err
		}
		esc.Funded = true
		if err := tx.EscrowPut(esc); err != nil {
			return nil, err
		}
		funded = esc
		return []*types.Event{NewDepositedEvent(esc)}, nil
	})
	if err != nil {
		return err
	}
	e.log().Info("escrow funded", "payer", payer.Hex(), "amount", funded.Amount.String())
	return nil
}

func matchAsset(held, requested Asset) error {
	switch {
	case requested.IsNative() && !held.IsNative():
		return ErrEscrowNotNative
	case !requested.IsNative() && held.IsNative():
		return ErrEscrowNotToken
	case !requested.IsNative() && requested.Mint != held.Mint:
		return ErrWrongToken
	default:
		return nil
	}
}

// Dispute flags the escrow for arbitration. The payer and payee may dispute at
// any time; the judge only once the deadline has passed. Disputes cannot be
// withdrawn.
func (e *Engine) Dispute(ctx context.Context, caller, payer common.Address) error {
	unlock := e.payers.lock(payer)
	defer unlock()
	e.configMu.RLock()
	defer e.configMu.RUnlock()

	err := e.run(ctx, "dispute", payerAttrs(caller, payer), func(tx StateTx) ([]*types.Event, error) {
		cfg, err := loadConfig(tx)
		if err != nil {
			return nil, err
		}
		esc, err := loadEscrow(tx, payer)
		if err != nil {
			return nil, err
		}
		if esc.Disputed {
			return nil, ErrEscrowDisputed
		}
		switch {
		case caller == esc.Payer || caller == esc.Payee:
		case caller == cfg.Judge:
			// Judges can't get involved until after the deadline.
			if e.now() <= esc.Deadline {
				return nil, ErrUninvolvedUser
			}
		default:
			return nil, ErrUninvolvedUser
		}
		esc.Disputed = true
		if err := tx.EscrowPut(esc); err != nil {
			return nil, err
		}
		return []*types.Event{NewDisputedEvent(esc, caller)}, nil
	})
	if err != nil {
		return err
	}
	e.log().Info("escrow disputed", "payer", payer.Hex(), "by", caller.Hex())
	return nil
}

// Release pays the held balance, net of tax, to the payee. Only the payer may
// release, and only while the escrow is not disputed.
func (e *Engine) Release(ctx context.Context, caller, payer common.Address) (Settlement, error) {
	return e.settleWith(ctx, "release", caller, payer, func(cfg *Config, esc *Escrow) (settlePlan, error) {
		if caller != esc.Payer {
			return settlePlan{}, ErrNotPayerReleasing
		}
		if esc.Disputed {
			return settlePlan{}, ErrEscrowDisputed
		}
		if !esc.Funded {
			return settlePlan{}, ErrEscrowNotFunded
		}
		return settlePlan{outcome: OutcomeReleased, recipient: esc.Payee, split: func(b *big.Int) (Settlement, error) {
			return TaxSplit(b, esc.TaxBps)
		}}, nil
	})
}

// Return sends the held balance, net of tax, back to the payer. Only the payee
// may return funds, and only while the escrow is not disputed.
func (e *Engine) Return(ctx context.Context, caller, payer common.Address) (Settlement, error) {
	return e.settleWith(ctx, "return", caller, payer, func(cfg *Config, esc *Escrow) (settlePlan, error) {
		if caller != esc.Payee {
			return settlePlan{}, ErrNotPayeeReturning
		}
		if esc.Disputed {
			return settlePlan{}, ErrEscrowDisputed
		}
		if !esc.Funded {
			return settlePlan{}, ErrEscrowNotFunded
		}
		return settlePlan{outcome: OutcomeReturned, recipient: esc.Payer, split: func(b *big.Int) (Settlement, error) {
			return TaxSplit(b, esc.TaxBps)
		}}, nil
	})
}

// Judge settles a disputed escrow. A true decision awards the balance, net of
// the arbitration fee, to the payee; false awards it to the payer.
func (e *Engine) Judge(ctx context.Context, caller, payer common.Address, decision bool) (Settlement, error) {
	return e.settleWith(ctx, "judge", caller, payer, func(cfg *Config, esc *Escrow) (settlePlan, error) {
		if caller != cfg.Judge {
			return settlePlan{}, ErrUninvolvedUser
		}
		if !esc.Disputed {
			return settlePlan{}, ErrEscrowNotDisputed
		}
		if !esc.Funded {
			return settlePlan{}, ErrEscrowNotFunded
		}
		recipient := esc.Payer
		if decision {
			recipient = esc.Payee
		}
		decided := decision
		return settlePlan{outcome: OutcomeJudged, recipient: recipient, decision: &decided, split: func(b *big.Int) (Settlement, error) {
			return FeeSplit(b, esc.FeePercent)
		}}, nil
	})
}

// Recover returns the entire held balance to the payer once the judge
// deadline has passed, whatever the dispute or funding state. Nothing is
// withheld.
func (e *Engine) Recover(ctx context.Context, caller, payer common.Address) (Settlement, error) {
	return e.settleWith(ctx, "recover", caller, payer, func(cfg *Config, esc *Escrow) (settlePlan, error) {
		if caller != esc.Payer {
			return settlePlan{}, ErrNotPayerRecovering
		}
		if e.now() <= esc.JudgeDeadline {
			return settlePlan{}, ErrRecoverTooEarly
		}
		return settlePlan{outcome: OutcomeRecovered, recipient: esc.Payer, split: FullSplit}, nil
	})
}

type settlePlan struct {
	outcome   Outcome
	recipient common.Address
	decision  *bool
	split     func(*big.Int) (Settlement, error)
}

// settleWith runs the shared terminal transition: authorize via plan, split
// the vault balance, pay out, credit the treasury and delete the record.
func (e *Engine) settleWith(ctx context.Context, op string, caller, payer common.Address, plan func(*Config, *Escrow) (settlePlan, error)) (Settlement, error) {
	unlock := e.payers.lock(payer)
	defer unlock()
	e.configMu.RLock()
	defer e.configMu.RUnlock()

	var (
		result  Settlement
		settled *Escrow
		chosen  settlePlan
	)
	err := e.run(ctx, op, payerAttrs(caller, payer), func(tx StateTx) ([]*types.Event, error) {
		cfg, err := loadConfig(tx)
		if err != nil {
			return nil, err
		}
		esc, err := loadEscrow(tx, payer)
		if err != nil {
			return nil, err
		}
		chosen, err = plan(cfg, esc)
		if err != nil {
			return nil, err
		}
		ledger, err := tx.Ledger(esc.Asset)
		if err != nil {
			return nil, err
		}
		vault := esc.Vault()
		balance, err := ledger.BalanceOf(vault)
		if err != nil {
			return nil, err
		}
		s, err := chosen.split(balance)
		if err != nil {
			return nil, err
		}
		if s.Payout.Sign() > 0 {
			if err := ledger.Transfer(vault, chosen.recipient, s.Payout); err != nil {
				return nil, err
			}
		}
		if s.Fee.Sign() > 0 {
			if err := ledger.Transfer(vault, cfg.Treasury, s.Fee); err != nil {
				return nil, err
			}
		}
		if err := tx.EscrowDelete(esc.Payer); err != nil {
			return nil, err
		}
		result = s
		settled = esc
		if chosen.decision != nil {
			return []*types.Event{NewJudgedEvent(esc, *chosen.decision, chosen.recipient, s)}, nil
		}
		return []*types.Event{NewSettledEvent(esc, chosen.outcome, chosen.recipient, s)}, nil
	})
	if err != nil {
		return Settlement{}, err
	}
	e.metrics.ObserveSettlement(settled.Payer.Hex(), string(chosen.outcome), result.Balance, result.Fee)
	e.log().Info("escrow settled",
		"outcome", string(chosen.outcome),
		"payer", settled.Payer.Hex(),
		"recipient", chosen.recipient.Hex(),
		"balance", result.Balance.String(),
		"payout", result.Payout.String(),
		"fee", result.Fee.String())
	return result, nil
}
