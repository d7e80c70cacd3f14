package services

import (
	"context"
	"fmt"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/ethereum/go-ethereum/common"
)

// PreflightValidator checks the preconditions of a dispatch against live chain state
type PreflightValidator struct {
	chain      types.ChainReader
	faucetURLs []string
}

// NewPreflightValidator creates a validator reading from chain
func NewPreflightValidator(chain types.ChainReader, faucetURLs []string) *PreflightValidator {
	return &PreflightValidator{
		chain:      chain,
		faucetURLs: faucetURLs,
	}
}

// Validate reads chain id, contract code and account balance, then decides in
// order: contract missing, network mismatch, insufficient balance.
// Read failures return *PreflightUnavailableError.
func (v *PreflightValidator) Validate(ctx context.Context, contract common.Address, expectedChainID int64, account common.Address) (*types.PreflightReport, error) {
	chainID, err := v.chain.ChainID(ctx)
	if err != nil {
		return nil, &PreflightUnavailableError{Cause: fmt.Errorf("failed to read chain id: %w", err)}
	}

	code, err := v.chain.CodeAt(ctx, contract, nil)
	if err != nil {
		return nil, &PreflightUnavailableError{Cause: fmt.Errorf("failed to read contract code: %w", err)}
	}

	balance, err := v.chain.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, &PreflightUnavailableError{Cause: fmt.Errorf("failed to read account balance: %w", err)}
	}

	report := &types.PreflightReport{
		ContractExists: len(code) > 0,
		NetworkMatches: chainID.Int64() == expectedChainID,
		ChainID:        chainID.Int64(),
		Balance:        balance,
		Account:        account,
	}

	logger.WithFields(logger.Fields{
		"Contract":        contract.Hex(),
		"Account":         account.Hex(),
		"ChainID":         report.ChainID,
		"ExpectedChainID": expectedChainID,
		"ContractExists":  report.ContractExists,
		"Balance":         utils.WeiToEther(balance),
	}).Debugf("Preflight snapshot")

	if !report.ContractExists {
		return report, &PreflightError{
			Reason:  ReasonContractMissing,
			Message: fmt.Sprintf("Contract not deployed at %s on %s.", contract.Hex(), utils.NetworkName(report.ChainID)),
			Report:  report,
		}
	}

	if !report.NetworkMatches {
		return report, &PreflightError{
			Reason: ReasonNetworkMismatch,
			Message: fmt.Sprintf("Connected to %s but the contract lives on %s. Please switch to %s.",
				utils.NetworkName(report.ChainID), utils.NetworkName(expectedChainID), utils.NetworkName(expectedChainID)),
			Report: report,
		}
	}

	if balance == nil || balance.Sign() == 0 {
		funding := &types.FundingInstructions{
			Account:    account,
			Network:    utils.NetworkName(expectedChainID),
			FaucetURLs: utils.FaucetsFor(expectedChainID, v.faucetURLs),
			Balance:    utils.WeiToEther(balance),
		}
		funding.Message = fmt.Sprintf("Account %s has no ETH on %s. Fund it before minting.", account.Hex(), funding.Network)
		if len(funding.FaucetURLs) > 0 {
			funding.Message += fmt.Sprintf(" Get test ETH from %s", funding.FaucetURLs[0])
		}

		return report, &PreflightError{
			Reason:  ReasonInsufficientBalance,
			Message: funding.Message,
			Report:  report,
			Funding: funding,
		}
	}

	return report, nil
}
