package services

import (
	"context"
	"fmt"
	"math/big"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
)

const (
	StrategySponsoredGasCeiling = "sponsored-gas-ceiling"
	StrategySponsoredEstimated  = "sponsored-estimated"
	StrategySponsoredBuildSend  = "sponsored-build-send"
	StrategySelfFunded          = "self-funded"
	StrategyWalletFallback      = "wallet-fallback"
)

// Explicit call gas ceiling used when estimation is unreliable
var callGasCeiling = big.NewInt(2_000_000)

// Strategy is one way of getting the intent on-chain
type Strategy interface {
	Name() string
	Priority() int
	Mode() types.SponsorshipMode
	Attempt(ctx context.Context, account types.SmartAccount, intent types.TransactionIntent, opts types.DispatchOptions) (*types.RawSubmission, error)
}

type variant struct {
	label string
	opts  types.SendOptions
}

// runVariants tries each encoding variant in order. It stops at the first
// success or at a failure no other variant can fix.
func runVariants(ctx context.Context, strategy string, account types.SmartAccount, intent types.TransactionIntent, variants []variant) (*types.RawSubmission, error) {
	var lastErr error
	for _, v := range variants {
		hash, err := account.SendTransaction(ctx, intent, v.opts)
		if hash != "" {
			return &types.RawSubmission{Kind: types.KindUserOperation, UserOpHash: hash}, err
		}
		if err == nil {
			err = ErrEmptySubmission
		}

		class := Classify(err)
		logger.WithFields(logger.Fields{
			"Strategy": strategy,
			"Variant":  v.label,
			"Class":    class,
			"Error":    err.Error(),
		}).Debugf("Strategy variant failed")

		lastErr = err
		if class.Unrecoverable() || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// SponsoredGasCeilingStrategy sends a sponsored operation with an explicit gas ceiling
type SponsoredGasCeilingStrategy struct {
	priority int
}

func (s *SponsoredGasCeilingStrategy) Name() string                { return StrategySponsoredGasCeiling }
func (s *SponsoredGasCeilingStrategy) Priority() int               { return s.priority }
func (s *SponsoredGasCeilingStrategy) Mode() types.SponsorshipMode { return types.Sponsored }

func (s *SponsoredGasCeilingStrategy) Attempt(ctx context.Context, account types.SmartAccount, intent types.TransactionIntent, _ types.DispatchOptions) (*types.RawSubmission, error) {
	return runVariants(ctx, s.Name(), account, intent, []variant{
		{"gas-ceiling", types.SendOptions{
			Mode:         types.Sponsored,
			CallGasLimit: callGasCeiling,
		}},
		{"gas-ceiling-fee-override", types.SendOptions{
			Mode:                 types.Sponsored,
			CallGasLimit:         callGasCeiling,
			MaxFeePerGas:         utils.GweiToWei(20),
			MaxPriorityFeePerGas: utils.GweiToWei(2),
		}},
	})
}

// SponsoredEstimatedStrategy lets the gas manager estimate everything
type SponsoredEstimatedStrategy struct {
	priority int
}

func (s *SponsoredEstimatedStrategy) Name() string                { return StrategySponsoredEstimated }
func (s *SponsoredEstimatedStrategy) Priority() int               { return s.priority }
func (s *SponsoredEstimatedStrategy) Mode() types.SponsorshipMode { return types.Sponsored }

func (s *SponsoredEstimatedStrategy) Attempt(ctx context.Context, account types.SmartAccount, intent types.TransactionIntent, _ types.DispatchOptions) (*types.RawSubmission, error) {
	return runVariants(ctx, s.Name(), account, intent, []variant{
		{"estimated", types.SendOptions{Mode: types.Sponsored}},
		{"estimated-fee-override", types.SendOptions{
			Mode:                 types.Sponsored,
			MaxFeePerGas:         utils.GweiToWei(20),
			MaxPriorityFeePerGas: utils.GweiToWei(2),
		}},
	})
}

// SponsoredBuildSendStrategy builds the operation first and submits it separately
type SponsoredBuildSendStrategy struct {
	priority int
}

func (s *SponsoredBuildSendStrategy) Name() string                { return StrategySponsoredBuildSend }
func (s *SponsoredBuildSendStrategy) Priority() int               { return s.priority }
func (s *SponsoredBuildSendStrategy) Mode() types.SponsorshipMode { return types.Sponsored }

func (s *SponsoredBuildSendStrategy) Attempt(ctx context.Context, account types.SmartAccount, intent types.TransactionIntent, _ types.DispatchOptions) (*types.RawSubmission, error) {
	op, err := account.BuildOperation(ctx, intent, types.SendOptions{Mode: types.Sponsored})
	if err != nil {
		return nil, fmt.Errorf("build operation: %w", err)
	}

	hash, err := account.SendOperation(ctx, op)
	if hash != "" {
		return &types.RawSubmission{Kind: types.KindUserOperation, UserOpHash: hash}, err
	}
	if err == nil {
		err = ErrEmptySubmission
	}
	return nil, err
}

// SelfFundedStrategy pays gas from the smart account balance
type SelfFundedStrategy struct {
	priority int
}

func (s *SelfFundedStrategy) Name() string                { return StrategySelfFunded }
func (s *SelfFundedStrategy) Priority() int               { return s.priority }
func (s *SelfFundedStrategy) Mode() types.SponsorshipMode { return types.SelfFunded }

func (s *SelfFundedStrategy) Attempt(ctx context.Context, account types.SmartAccount, intent types.TransactionIntent, _ types.DispatchOptions) (*types.RawSubmission, error) {
	return runVariants(ctx, s.Name(), account, intent, []variant{
		{"estimated", types.SendOptions{Mode: types.SelfFunded}},
		{"gas-ceiling", types.SendOptions{Mode: types.SelfFunded, CallGasLimit: callGasCeiling}},
	})
}

// WalletFallbackStrategy sends a plain transaction paid by the user's wallet.
// It runs only after the user explicitly consents.
type WalletFallbackStrategy struct {
	priority int
	wallet   types.WalletProvider
	gasLimit uint64
}

// NewWalletFallbackStrategy creates the wallet-funded strategy
func NewWalletFallbackStrategy(priority int, wallet types.WalletProvider, gasLimit uint64) *WalletFallbackStrategy {
	return &WalletFallbackStrategy{priority: priority, wallet: wallet, gasLimit: gasLimit}
}

func (s *WalletFallbackStrategy) Name() string                { return StrategyWalletFallback }
func (s *WalletFallbackStrategy) Priority() int               { return s.priority }
func (s *WalletFallbackStrategy) Mode() types.SponsorshipMode { return types.WalletFallback }

func (s *WalletFallbackStrategy) Attempt(ctx context.Context, _ types.SmartAccount, intent types.TransactionIntent, opts types.DispatchOptions) (*types.RawSubmission, error) {
	if s.wallet == nil {
		return nil, ErrWalletUnavailable
	}

	signer, err := s.wallet.Signer(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet signer unavailable: %w", err)
	}

	chainID, err := s.wallet.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if opts.ExpectedChainID != 0 && chainID != opts.ExpectedChainID {
		return nil, fmt.Errorf("%w: connected to %s, please switch to %s", ErrWalletNetworkMismatch,
			utils.NetworkName(chainID), utils.NetworkName(opts.ExpectedChainID))
	}

	// Only ask for consent once the transaction can actually be sent
	if opts.Consent == nil {
		return nil, ErrUserDeclined
	}
	approved, err := opts.Consent(ctx, types.ConsentRequest{
		Signer:      signer,
		Destination: intent.Destination,
		Value:       intent.ValueOrZero(),
		GasLimit:    s.gasLimit,
		ChainID:     opts.ExpectedChainID,
	})
	if err != nil {
		return nil, fmt.Errorf("consent prompt failed: %w", err)
	}
	if !approved {
		return nil, ErrUserDeclined
	}

	hash, err := s.wallet.SendTransaction(ctx, intent, s.gasLimit)
	if err != nil {
		return nil, err
	}
	return &types.RawSubmission{Kind: types.KindTransaction, TxHash: hash.Hex()}, nil
}

// DefaultStrategies returns the canonical cascade. A nil wallet keeps the
// wallet-funded strategy registered; it then fails with ErrWalletUnavailable.
func DefaultStrategies(wallet types.WalletProvider, walletGasLimit uint64) []Strategy {
	return []Strategy{
		&SponsoredGasCeilingStrategy{priority: 1},
		&SponsoredEstimatedStrategy{priority: 2},
		&SponsoredBuildSendStrategy{priority: 3},
		&SelfFundedStrategy{priority: 4},
		NewWalletFallbackStrategy(5, wallet, walletGasLimit),
	}
}
