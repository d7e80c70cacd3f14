package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/NEDA-LABS/mintrelay/storage"
	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// DispatchState is the lifecycle state of a dispatch
type DispatchState string

const (
	StatePending      DispatchState = "pending"
	StateTrying       DispatchState = "trying"
	StateSucceeded    DispatchState = "succeeded"
	StateAllExhausted DispatchState = "all_exhausted"
)

// Preflighter validates dispatch preconditions
type Preflighter interface {
	Validate(ctx context.Context, contract common.Address, expectedChainID int64, account common.Address) (*types.PreflightReport, error)
}

// Diagnoser produces the advisory account report
type Diagnoser interface {
	Diagnose(ctx context.Context, account types.SmartAccount) types.DiagnosticReport
}

// Dispatcher runs the strategy cascade for a transaction intent
type Dispatcher struct {
	account     types.SmartAccount
	strategies  []Strategy
	preflight   Preflighter
	diagnostics Diagnoser
	normalizer  *ResultNormalizer
	store       storage.IdempotencyStore
}

// NewDispatcher creates a dispatcher. Strategies run in ascending priority;
// equal priorities keep their registration order.
func NewDispatcher(account types.SmartAccount, strategies []Strategy, preflight Preflighter, diagnostics Diagnoser, normalizer *ResultNormalizer, store storage.IdempotencyStore) *Dispatcher {
	sorted := make([]Strategy, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})

	return &Dispatcher{
		account:     account,
		strategies:  sorted,
		preflight:   preflight,
		diagnostics: diagnostics,
		normalizer:  normalizer,
		store:       store,
	}
}

// Strategies returns the strategies in execution order
func (d *Dispatcher) Strategies() []Strategy {
	out := make([]Strategy, len(d.strategies))
	copy(out, d.strategies)
	return out
}

// Dispatch gets intent on-chain using the first strategy that succeeds.
// A key that already produced a submission returns that submission without
// sending anything.
func (d *Dispatcher) Dispatch(ctx context.Context, intent types.TransactionIntent, opts types.DispatchOptions) (*types.SubmissionOutcome, error) {
	if err := intent.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}
	if len(d.strategies) == 0 {
		return nil, ErrNoStrategies
	}

	key := opts.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	log := logger.WithFields(logger.Fields{
		"IdempotencyKey": key,
		"Destination":    intent.Destination.Hex(),
	})
	log.WithField("State", StatePending).Infof("Dispatch started")

	if outcome, err := d.existing(ctx, key); err != nil || outcome != nil {
		if outcome != nil {
			log.WithField("Strategy", outcome.Strategy).Infof("Dispatch already submitted, returning recorded outcome")
		}
		return outcome, err
	}

	contract := opts.ContractAddress
	if contract == (common.Address{}) {
		contract = intent.Destination
	}

	address, err := d.account.Address(ctx)
	if err != nil {
		return nil, &PreflightUnavailableError{Cause: fmt.Errorf("failed to resolve smart account address: %w", err)}
	}
	if _, err := d.preflight.Validate(ctx, contract, opts.ExpectedChainID, address); err != nil {
		log.WithField("Error", err.Error()).Warnf("Preflight failed")
		return nil, err
	}

	if d.diagnostics != nil {
		report := d.diagnostics.Diagnose(ctx, d.account)
		if len(report.Issues) > 0 {
			log.WithField("Issues", report.Issues).Warnf("Account diagnostics reported issues")
		}
	}

	attempts := make([]*StrategyError, 0, len(d.strategies))
	for i, strategy := range d.strategies {
		if outcome, err := d.existing(ctx, key); err != nil || outcome != nil {
			return outcome, err
		}

		attemptLog := log.WithFields(logger.Fields{
			"State":    StateTrying,
			"Strategy": strategy.Name(),
			"Priority": strategy.Priority(),
			"Mode":     strategy.Mode().String(),
		})
		attemptLog.Infof("Trying dispatch strategy")

		raw, err := strategy.Attempt(ctx, d.account, intent, opts)
		if !raw.Empty() {
			if err != nil {
				attemptLog.WithField("Error", err.Error()).Warnf("Strategy returned a hash with an error, treating the submission as in flight")
			}
			return d.succeed(ctx, raw, strategy, key)
		}
		if err == nil {
			err = ErrEmptySubmission
		}

		class := Classify(err)
		attempts = append(attempts, &StrategyError{
			Strategy: strategy.Name(),
			Priority: strategy.Priority(),
			Mode:     strategy.Mode(),
			Class:    class,
			Cause:    err,
		})
		attemptLog.WithFields(logger.Fields{
			"Class": class,
			"Error": err.Error(),
		}).Warnf("Dispatch strategy failed")

		if class.Unrecoverable() || class == ClassUserDeclined || ctx.Err() != nil {
			for _, rest := range d.strategies[i+1:] {
				attempts = append(attempts, &StrategyError{
					Strategy: rest.Name(),
					Priority: rest.Priority(),
					Mode:     rest.Mode(),
					Class:    ClassUnknown,
					Cause:    ErrStrategySkipped,
					Skipped:  true,
				})
			}
			break
		}
	}

	exhausted := newAllExhaustedError(attempts)
	log.WithFields(logger.Fields{
		"State":        StateAllExhausted,
		"Attempts":     len(attempts),
		"PrimaryClass": exhausted.PrimaryClass(),
	}).Errorf("All dispatch strategies failed")

	return nil, exhausted
}

// AwaitConfirmation waits for the outcome's receipt
func (d *Dispatcher) AwaitConfirmation(ctx context.Context, outcome *types.SubmissionOutcome) (*types.Receipt, error) {
	return outcome.AwaitConfirmation(ctx)
}

// Lookup returns the recorded outcome for key, nil when unknown
func (d *Dispatcher) Lookup(ctx context.Context, key string) (*types.SubmissionOutcome, error) {
	return d.existing(ctx, key)
}

func (d *Dispatcher) existing(ctx context.Context, key string) (*types.SubmissionOutcome, error) {
	rec, err := d.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if rec == nil {
		return nil, nil
	}
	return d.normalizer.Rehydrate(rec)
}

func (d *Dispatcher) succeed(ctx context.Context, raw *types.RawSubmission, strategy Strategy, key string) (*types.SubmissionOutcome, error) {
	outcome, err := d.normalizer.Normalize(raw, strategy.Name(), key)
	if err != nil {
		return nil, err
	}

	stored, err := d.store.Put(ctx, outcomeToRecord(outcome))
	switch {
	case err != nil:
		// The submission is already on its way; report it even if it cannot be recorded
		logger.WithFields(logger.Fields{
			"IdempotencyKey": key,
			"OperationHash":  outcome.OperationHash,
			"Error":          err.Error(),
		}).Errorf("Failed to record dispatch outcome")
	case !stored:
		if winner, lookupErr := d.existing(ctx, key); lookupErr == nil && winner != nil {
			logger.WithFields(logger.Fields{
				"IdempotencyKey": key,
				"Winner":         winner.OperationHash,
				"Discarded":      outcome.OperationHash,
			}).Warnf("Concurrent dispatch recorded first, returning its outcome")
			return winner, nil
		}
	}

	logger.WithFields(logger.Fields{
		"IdempotencyKey": key,
		"State":          StateSucceeded,
		"Strategy":       strategy.Name(),
		"Kind":           outcome.Kind,
		"OperationHash":  outcome.OperationHash,
	}).Infof("Dispatch submitted")

	return outcome, nil
}
