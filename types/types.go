package types

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TransactionIntent is the call the dispatch engine is asked to execute
type TransactionIntent struct {
	Destination common.Address
	Payload     []byte
	Value       *big.Int
}

var (
	errZeroDestination = errors.New("destination address is the zero address")
	errEmptyPayload    = errors.New("payload is empty")
	errNegativeValue   = errors.New("value is negative")
)

// Validate checks the intent is well-formed before any network access
func (i TransactionIntent) Validate() error {
	if i.Destination == (common.Address{}) {
		return errZeroDestination
	}
	if len(i.Payload) == 0 {
		return errEmptyPayload
	}
	if i.Value != nil && i.Value.Sign() < 0 {
		return errNegativeValue
	}
	return nil
}

// ValueOrZero returns a copy of the value, zero when unset
func (i TransactionIntent) ValueOrZero() *big.Int {
	if i.Value == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(i.Value)
}

// SponsorshipMode describes who pays for gas
type SponsorshipMode int

const (
	Sponsored SponsorshipMode = iota
	SelfFunded
	WalletFallback
)

func (m SponsorshipMode) String() string {
	switch m {
	case Sponsored:
		return "sponsored"
	case SelfFunded:
		return "self-funded"
	case WalletFallback:
		return "wallet-fallback"
	default:
		return "unknown"
	}
}

// SendOptions is one encoding variant of a smart-account submission.
// Nil gas and fee fields are estimated by the account.
type SendOptions struct {
	Mode                 SponsorshipMode
	CallGasLimit         *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// PreflightReport is the snapshot read by the preflight validator
type PreflightReport struct {
	ContractExists bool
	NetworkMatches bool
	ChainID        int64
	Balance        *big.Int
	Account        common.Address
}

// FundingInstructions tells the user how to fund an empty account
type FundingInstructions struct {
	Account    common.Address `json:"account"`
	Network    string         `json:"network"`
	FaucetURLs []string       `json:"faucetUrls"`
	Balance    string         `json:"balance"`
	Message    string         `json:"message"`
}

// SubmissionKind identifies what a hash refers to
type SubmissionKind string

const (
	KindUserOperation SubmissionKind = "user_operation"
	KindTransaction   SubmissionKind = "transaction"
)

// RawSubmission is the strategy-specific result of a successful attempt
type RawSubmission struct {
	Kind       SubmissionKind
	UserOpHash string
	TxHash     string
}

// Empty reports whether the submission carries no hash at all
func (r *RawSubmission) Empty() bool {
	return r == nil || (r.UserOpHash == "" && r.TxHash == "")
}

// ReceiptStatus is the final on-chain status of a submission
type ReceiptStatus string

const (
	ReceiptSuccess  ReceiptStatus = "success"
	ReceiptReverted ReceiptStatus = "reverted"
)

// Receipt is the confirmation of a submission
type Receipt struct {
	Status          ReceiptStatus `json:"status"`
	BlockNumber     uint64        `json:"blockNumber"`
	GasUsed         uint64        `json:"gasUsed"`
	TransactionHash string        `json:"transactionHash"`
	Reason          string        `json:"reason,omitempty"`
}

// ConfirmFunc resolves the receipt of a submission
type ConfirmFunc func(ctx context.Context) (*Receipt, error)

// SubmissionOutcome is the uniform result of a dispatch
type SubmissionOutcome struct {
	OperationHash   string         `json:"operationHash"`
	TransactionHash string         `json:"transactionHash,omitempty"`
	Kind            SubmissionKind `json:"kind"`
	Strategy        string         `json:"strategy"`
	IdempotencyKey  string         `json:"idempotencyKey"`
	SubmittedAt     time.Time      `json:"submittedAt"`

	confirm ConfirmFunc
	mu      sync.Mutex
	receipt *Receipt
}

// NewSubmissionOutcome binds an outcome to its confirmation source
func NewSubmissionOutcome(opHash, txHash string, kind SubmissionKind, strategy, key string, confirm ConfirmFunc) *SubmissionOutcome {
	return &SubmissionOutcome{
		OperationHash:   opHash,
		TransactionHash: txHash,
		Kind:            kind,
		Strategy:        strategy,
		IdempotencyKey:  key,
		SubmittedAt:     time.Now().UTC(),
		confirm:         confirm,
	}
}

// AwaitConfirmation blocks until the submission is confirmed or ctx is done.
// Once a receipt is obtained it is returned on every later call.
func (o *SubmissionOutcome) AwaitConfirmation(ctx context.Context) (*Receipt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.receipt != nil {
		return o.receipt, nil
	}
	if o.confirm == nil {
		return nil, errors.New("submission outcome has no confirmation source")
	}

	receipt, err := o.confirm(ctx)
	if err != nil {
		return nil, err
	}
	o.receipt = receipt
	if o.TransactionHash == "" {
		o.TransactionHash = receipt.TransactionHash
	}
	return receipt, nil
}

// DiagnosticReport is the advisory account health snapshot
type DiagnosticReport struct {
	Account          common.Address `json:"account"`
	AccountResolved  bool           `json:"accountResolved"`
	Deployed         *bool          `json:"deployed,omitempty"`
	BackendReachable bool           `json:"backendReachable"`
	Issues           []string       `json:"issues,omitempty"`
}

// ConsentRequest describes the wallet-funded transaction the user must approve
type ConsentRequest struct {
	Signer      common.Address
	Destination common.Address
	Value       *big.Int
	GasLimit    uint64
	ChainID     int64
}

// ConsentFunc asks the user to approve a wallet-funded transaction.
// A false result without error means the user declined.
type ConsentFunc func(ctx context.Context, req ConsentRequest) (bool, error)

// DispatchOptions carries the per-dispatch context
type DispatchOptions struct {
	ExpectedChainID int64
	ContractAddress common.Address
	IdempotencyKey  string
	Consent         ConsentFunc
}
