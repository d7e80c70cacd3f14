package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/hashicorp/go-multierror"
)

var (
	ErrInvalidIntent         = errors.New("invalid transaction intent")
	ErrPreflightUnavailable  = errors.New("preflight checks unavailable")
	ErrUserDeclined          = errors.New("user declined the wallet-funded transaction")
	ErrNoStrategies          = errors.New("no dispatch strategies configured")
	ErrConfirmationPending   = errors.New("confirmation still pending")
	ErrStrategySkipped       = errors.New("strategy skipped")
	ErrEmptySubmission       = errors.New("strategy returned an empty submission")
	ErrWalletUnavailable     = errors.New("wallet fallback is not configured")
	ErrWalletNetworkMismatch = errors.New("wallet network mismatch")
)

// PreflightReason says which precondition failed
type PreflightReason string

const (
	ReasonContractMissing     PreflightReason = "contract_missing"
	ReasonNetworkMismatch     PreflightReason = "network_mismatch"
	ReasonInsufficientBalance PreflightReason = "insufficient_balance"
)

// PreflightError is a definitive precondition failure. Nothing was submitted.
type PreflightError struct {
	Reason  PreflightReason
	Message string
	Report  *types.PreflightReport
	Funding *types.FundingInstructions
}

func (e *PreflightError) Error() string {
	return fmt.Sprintf("preflight failed (%s): %s", e.Reason, e.Message)
}

// UserMessage returns the text shown to the end user
func (e *PreflightError) UserMessage() string {
	return e.Message
}

// PreflightUnavailableError means the chain could not be read. It is retryable.
type PreflightUnavailableError struct {
	Cause error
}

func (e *PreflightUnavailableError) Error() string {
	return fmt.Sprintf("%s: %v", ErrPreflightUnavailable, e.Cause)
}

func (e *PreflightUnavailableError) Unwrap() error {
	return e.Cause
}

func (e *PreflightUnavailableError) Is(target error) bool {
	return target == ErrPreflightUnavailable
}

// StrategyError records one strategy failure
type StrategyError struct {
	Strategy string
	Priority int
	Mode     types.SponsorshipMode
	Class    ErrorClass
	Cause    error
	Skipped  bool
}

func (e *StrategyError) Error() string {
	if e.Skipped {
		return fmt.Sprintf("%s: skipped", e.Strategy)
	}
	return fmt.Sprintf("%s (%s): %v", e.Strategy, e.Class, e.Cause)
}

func (e *StrategyError) Unwrap() error {
	if e.Skipped && e.Cause == nil {
		return ErrStrategySkipped
	}
	return e.Cause
}

// AllExhaustedError is returned when every strategy failed or was skipped
type AllExhaustedError struct {
	Attempts []*StrategyError
	Primary  *StrategyError
	merr     *multierror.Error
}

func newAllExhaustedError(attempts []*StrategyError) *AllExhaustedError {
	var merr *multierror.Error
	for _, attempt := range attempts {
		merr = multierror.Append(merr, attempt)
	}
	if merr != nil {
		merr.ErrorFormat = func(errs []error) string {
			parts := make([]string, len(errs))
			for i, err := range errs {
				parts[i] = err.Error()
			}
			return strings.Join(parts, "; ")
		}
	}

	return &AllExhaustedError{
		Attempts: attempts,
		Primary:  primaryFailure(attempts),
		merr:     merr,
	}
}

func (e *AllExhaustedError) Error() string {
	if e.merr == nil {
		return "all dispatch strategies failed"
	}
	return fmt.Sprintf("all dispatch strategies failed: %s", e.merr.Error())
}

// Unwrap exposes every strategy error to errors.Is and errors.As
func (e *AllExhaustedError) Unwrap() []error {
	if e.merr == nil {
		return nil
	}
	return e.merr.WrappedErrors()
}

// PrimaryClass is the class of the failure chosen for the user message
func (e *AllExhaustedError) PrimaryClass() ErrorClass {
	if e.Primary == nil {
		return ClassUnknown
	}
	return e.Primary.Class
}

// UserMessage returns one user-facing message for the whole cascade
func (e *AllExhaustedError) UserMessage() string {
	return UserMessageFor(e.PrimaryClass())
}

// UserMessage extracts the user-facing message from any dispatch error
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var preflightErr *PreflightError
	if errors.As(err, &preflightErr) {
		return preflightErr.UserMessage()
	}
	var exhaustedErr *AllExhaustedError
	if errors.As(err, &exhaustedErr) {
		return exhaustedErr.UserMessage()
	}
	switch {
	case errors.Is(err, ErrPreflightUnavailable):
		return "Unable to reach the network to verify the transaction. Please try again."
	case errors.Is(err, ErrInvalidIntent):
		return "The transaction request is invalid."
	case errors.Is(err, ErrConfirmationPending):
		return "The transaction was submitted but is not confirmed yet."
	}
	return UserMessageFor(Classify(err))
}
