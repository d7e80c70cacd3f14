package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NEDA-LABS/mintrelay/storage"
	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/jpillora/backoff"
)

// UserOperationReceiptReader resolves user operation receipts
type UserOperationReceiptReader interface {
	GetUserOperationReceipt(ctx context.Context, userOpHash string) (*UserOperationReceipt, error)
}

// TransactionReceiptReader resolves transaction receipts
type TransactionReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// ResultNormalizer turns strategy-specific results into SubmissionOutcomes
type ResultNormalizer struct {
	userOps UserOperationReceiptReader
	txs     TransactionReceiptReader
	pollMin time.Duration
	pollMax time.Duration
}

// NewResultNormalizer creates a normalizer polling between pollMin and pollMax
func NewResultNormalizer(userOps UserOperationReceiptReader, txs TransactionReceiptReader, pollMin, pollMax time.Duration) *ResultNormalizer {
	if pollMin <= 0 {
		pollMin = time.Second
	}
	if pollMax < pollMin {
		pollMax = pollMin
	}
	return &ResultNormalizer{
		userOps: userOps,
		txs:     txs,
		pollMin: pollMin,
		pollMax: pollMax,
	}
}

// Normalize builds the outcome of a successful strategy
func (n *ResultNormalizer) Normalize(raw *types.RawSubmission, strategy, key string) (*types.SubmissionOutcome, error) {
	if raw.Empty() {
		return nil, ErrEmptySubmission
	}

	kind := raw.Kind
	if kind == "" {
		kind = types.KindTransaction
		if raw.UserOpHash != "" {
			kind = types.KindUserOperation
		}
	}

	opHash := raw.UserOpHash
	if opHash == "" {
		opHash = raw.TxHash
	}

	return types.NewSubmissionOutcome(opHash, raw.TxHash, kind, strategy, key, n.confirmFunc(kind, opHash)), nil
}

// Rehydrate rebuilds the outcome of a previously recorded submission
func (n *ResultNormalizer) Rehydrate(rec *storage.SubmissionRecord) (*types.SubmissionOutcome, error) {
	outcome, err := n.Normalize(recordToRaw(rec), rec.Strategy, rec.Key)
	if err != nil {
		return nil, err
	}
	outcome.SubmittedAt = rec.CreatedAt
	return outcome, nil
}

func recordToRaw(rec *storage.SubmissionRecord) *types.RawSubmission {
	raw := &types.RawSubmission{Kind: types.SubmissionKind(rec.Kind), TxHash: rec.TransactionHash}
	if raw.Kind == types.KindUserOperation {
		raw.UserOpHash = rec.OperationHash
	} else if raw.TxHash == "" {
		raw.TxHash = rec.OperationHash
	}
	return raw
}

func outcomeToRecord(outcome *types.SubmissionOutcome) *storage.SubmissionRecord {
	return &storage.SubmissionRecord{
		Key:             outcome.IdempotencyKey,
		Strategy:        outcome.Strategy,
		OperationHash:   outcome.OperationHash,
		TransactionHash: outcome.TransactionHash,
		Kind:            string(outcome.Kind),
		CreatedAt:       outcome.SubmittedAt,
	}
}

func (n *ResultNormalizer) confirmFunc(kind types.SubmissionKind, hash string) types.ConfirmFunc {
	if kind == types.KindUserOperation {
		return func(ctx context.Context) (*types.Receipt, error) {
			return n.poll(ctx, hash, func(ctx context.Context) (*types.Receipt, error) {
				return n.userOperationReceipt(ctx, hash)
			})
		}
	}
	return func(ctx context.Context) (*types.Receipt, error) {
		return n.poll(ctx, hash, func(ctx context.Context) (*types.Receipt, error) {
			return n.transactionReceipt(ctx, hash)
		})
	}
}

// poll calls check until it yields a receipt or ctx is done. Errors from check
// are treated as transient.
func (n *ResultNormalizer) poll(ctx context.Context, hash string, check func(ctx context.Context) (*types.Receipt, error)) (*types.Receipt, error) {
	b := &backoff.Backoff{
		Min:    n.pollMin,
		Max:    n.pollMax,
		Factor: 1.5,
		Jitter: true,
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrConfirmationPending, hash, err)
		}

		receipt, err := check(ctx)
		if err != nil {
			logger.WithFields(logger.Fields{
				"Hash":    hash,
				"Attempt": b.Attempt(),
				"Error":   err.Error(),
			}).Debugf("Receipt lookup failed, retrying")
		} else if receipt != nil {
			return receipt, nil
		}

		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %s: %w", ErrConfirmationPending, hash, ctx.Err())
		case <-timer.C:
		}
	}
}

func (n *ResultNormalizer) userOperationReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	if n.userOps == nil {
		return nil, fmt.Errorf("no user operation receipt source configured")
	}

	res, err := n.userOps.GetUserOperationReceipt(ctx, hash)
	if err != nil || res == nil {
		return nil, err
	}

	blockNumber, err := utils.HexToUint64(res.Receipt.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt block number: %w", err)
	}
	gasUsed, err := utils.HexToUint64(res.ActualGasUsed)
	if err != nil {
		return nil, fmt.Errorf("invalid receipt gas used: %w", err)
	}

	receipt := &types.Receipt{
		Status:          types.ReceiptSuccess,
		BlockNumber:     blockNumber,
		GasUsed:         gasUsed,
		TransactionHash: res.Receipt.TransactionHash,
	}
	if !res.Success {
		receipt.Status = types.ReceiptReverted
		receipt.Reason = res.Reason
	}
	return receipt, nil
}

func (n *ResultNormalizer) transactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	if n.txs == nil {
		return nil, fmt.Errorf("no transaction receipt source configured")
	}

	res, err := n.txs.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	receipt := &types.Receipt{
		Status:          types.ReceiptSuccess,
		GasUsed:         res.GasUsed,
		TransactionHash: res.TxHash.Hex(),
	}
	if res.BlockNumber != nil {
		receipt.BlockNumber = res.BlockNumber.Uint64()
	}
	if res.Status != ethtypes.ReceiptStatusSuccessful {
		receipt.Status = types.ReceiptReverted
		receipt.Reason = "transaction reverted"
	}
	return receipt, nil
}
