package escrow

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"judgedescrow/core/types"
)

// Initialize creates the configuration with caller as the first judge. It can
// only succeed once. Rate bounds are enforced by UpdateConfig, not here.
func (e *Engine) Initialize(ctx context.Context, caller, treasury common.Address, taxBps uint16, feePercent uint8) (*Config, error) {
	e.configMu.Lock()
	defer e.configMu.Unlock()

	var created *Config
	attrs := []attribute.KeyValue{attribute.String("escrow.caller", caller.Hex())}
	err := e.run(ctx, "initialize", attrs, func(tx StateTx) ([]*types.Event, error) {
		if _, exists, err := tx.ConfigGet(); err != nil {
			return nil, err
		} else if exists {
			return nil, ErrConfigExists
		}
		cfg := &Config{
			Judge:      caller,
			Treasury:   treasury,
			TaxBps:     taxBps,
			FeePercent: feePercent,
		}
		if err := tx.ConfigPut(cfg); err != nil {
			return nil, err
		}
		created = cfg
		return []*types.Event{NewConfigCreatedEvent(cfg, e.now())}, nil
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("escrow config initialized",
		"judge", caller.Hex(),
		"treasury", treasury.Hex(),
		"taxBps", taxBps,
		"feePercent", feePercent)
	return created.Clone(), nil
}

// Config returns a snapshot of the current configuration.
func (e *Engine) Config(ctx context.Context) (*Config, error) {
	e.configMu.RLock()
	defer e.configMu.RUnlock()

	var out *Config
	err := e.run(ctx, "config", nil, func(tx StateTx) ([]*types.Event, error) {
		cfg, err := loadConfig(tx)
		if err != nil {
			return nil, err
		}
		out = cfg.Clone()
		return nil, nil
	})
	return out, err
}

// UpdateConfig applies the non-nil fields of update. Only the current judge
// may call it. Nominating a pending judge does not change the judge until the
// nominee accepts.
func (e *Engine) UpdateConfig(ctx context.Context, caller common.Address, update ConfigUpdate) (*Config, error) {
	if update.TaxBps != nil && *update.TaxBps > MaxTaxBps {
		return nil, ErrTaxTooHigh
	}
	if update.FeePercent != nil && *update.FeePercent > MaxFeePercent {
		return nil, ErrFeeTooHigh
	}
	e.configMu.Lock()
	defer e.configMu.Unlock()

	var updated *Config
	attrs := []attribute.KeyValue{attribute.String("escrow.caller", caller.Hex())}
	err := e.run(ctx, "update_config", attrs, func(tx StateTx) ([]*types.Event, error) {
		cfg, err := loadConfig(tx)
		if err != nil {
			return nil, err
		}
		if caller != cfg.Judge {
			return nil, ErrUnauthorizedConfigJudge
		}
		now := e.now()
		var evts []*types.Event
		if update.Treasury != nil {
			cfg.Treasury = *update.Treasury
		}
		if update.TaxBps != nil {
			cfg.TaxBps = *update.TaxBps
		}
		if update.FeePercent != nil {
			cfg.FeePercent = *update.FeePercent
		}
		if update.PendingJudge != nil {
			nominee := *update.PendingJudge
			cfg.PendingJudge = &nominee
			evts = append(evts, NewJudgeNominatedEvent(nominee, now))
		}
		if err := tx.ConfigPut(cfg); err != nil {
			return nil, err
		}
		updated = cfg
		return append(evts, NewConfigUpdatedEvent(cfg, now)), nil
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("escrow config updated",
		"treasury", updated.Treasury.Hex(),
		"taxBps", updated.TaxBps,
		"feePercent", updated.FeePercent,
		"nominated", update.PendingJudge != nil)
	return updated.Clone(), nil
}

// AcceptJudgeSeat completes the two-phase judge handoff. Only the nominee may
// accept.
func (e *Engine) AcceptJudgeSeat(ctx context.Context, caller common.Address) (*Config, error) {
	e.configMu.Lock()
	defer e.configMu.Unlock()

	var (
		updated  *Config
		oldJudge common.Address
	)
	attrs := []attribute.KeyValue{attribute.String("escrow.caller", caller.Hex())}
	err := e.run(ctx, "accept_judge_seat", attrs, func(tx StateTx) ([]*types.Event, error) {
		cfg, err := loadConfig(tx)
		if err != nil {
			return nil, err
		}
		if cfg.PendingJudge == nil {
			return nil, ErrNoPendingJudge
		}
		if *cfg.PendingJudge != caller {
			return nil, ErrUnauthorizedJudge
		}
		oldJudge = cfg.Judge
		cfg.Judge = *cfg.PendingJudge
		cfg.PendingJudge = nil
		if err := tx.ConfigPut(cfg); err != nil {
			return nil, err
		}
		updated = cfg
		return []*types.Event{NewJudgeAcceptedEvent(oldJudge, cfg.Judge, e.now())}, nil
	})
	if err != nil {
		return nil, err
	}
	e.log().Info("escrow judge seat accepted", "oldJudge", oldJudge.Hex(), "newJudge", updated.Judge.Hex())
	return updated.Clone(), nil
}
