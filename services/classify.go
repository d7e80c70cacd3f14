package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/NEDA-LABS/mintrelay/utils"
)

// ErrorClass groups failures by what the user can do about them
type ErrorClass string

const (
	ClassUserDeclined      ErrorClass = "user_declined"
	ClassInsufficientFunds ErrorClass = "insufficient_funds"
	ClassAccountValidation ErrorClass = "account_validation"
	ClassPaymaster         ErrorClass = "paymaster"
	ClassInvalidRequest    ErrorClass = "invalid_request"
	ClassContractRevert    ErrorClass = "contract_revert"
	ClassNetwork           ErrorClass = "network"
	ClassGasEstimation     ErrorClass = "gas_estimation"
	ClassUnknown           ErrorClass = "unknown"
)

type classRule struct {
	class   ErrorClass
	pattern *regexp.Regexp
}

// Evaluated in order; the first matching rule wins. EntryPoint codes
// (AA1x account, AA2x sender, AA3x paymaster) only match as whole words.
var classificationTable = []classRule{
	{ClassInsufficientFunds, regexp.MustCompile(`insufficient funds|insufficient balance|\baa21\b|didn't pay prefund|exceeds balance`)},
	{ClassAccountValidation, regexp.MustCompile(`\baa[12]\d\b`)},
	{ClassPaymaster, regexp.MustCompile(`paymaster|\baa3\d\b|gas policy|sponsorship|policy`)},
	{ClassInvalidRequest, regexp.MustCompile(`invalid address|bad address checksum|invalid argument|malformed|invalid params`)},
	{ClassContractRevert, regexp.MustCompile(`execution reverted|revert`)},
	{ClassNetwork, regexp.MustCompile(`timeout|connection refused|\beof\b|no such host|unavailable|too many requests|\b429\b`)},
	{ClassGasEstimation, regexp.MustCompile(`callgaslimit|gas|estimat`)},
}

// hex payloads (addresses, revert data) carry no class information
var hexPayload = regexp.MustCompile(`0x[0-9a-f]*`)

var classRank = map[ErrorClass]int{
	ClassUserDeclined:      100,
	ClassInsufficientFunds: 90,
	ClassPaymaster:         80,
	ClassContractRevert:    70,
	ClassInvalidRequest:    65,
	ClassAccountValidation: 50,
	ClassGasEstimation:     40,
	ClassNetwork:           30,
	ClassUnknown:           0,
}

var userMessages = map[ErrorClass]string{
	ClassUserDeclined:      "Transaction was cancelled. The wallet-funded fallback requires your approval.",
	ClassInsufficientFunds: "Insufficient funds or gas. Please check your account balance.",
	ClassAccountValidation: "The smart account could not validate the operation. Please check the account configuration.",
	ClassPaymaster:         "Paymaster service is unavailable. Please try again later.",
	ClassInvalidRequest:    "The transaction request is invalid. Please check the contract parameters.",
	ClassContractRevert:    "Transaction would fail. Please check the contract parameters.",
	ClassNetwork:           "Network error. Please check your connection and try again.",
	ClassGasEstimation:     "Gas estimation failed. This might be due to network issues or contract problems. Please try again.",
	ClassUnknown:           "Transaction failed. Please try again.",
}

// Classify maps an error to its class
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, ErrUserDeclined) {
		return ClassUserDeclined
	}
	if errors.Is(err, ErrWalletNetworkMismatch) {
		return ClassInvalidRequest
	}

	msg := hexPayload.ReplaceAllString(strings.ToLower(classifiedText(err)), "0x")
	for _, rule := range classificationTable {
		if rule.pattern.MatchString(msg) {
			return rule.class
		}
	}
	return ClassUnknown
}

// classifiedText is the error text with JSON-RPC error data left out
func classifiedText(err error) string {
	msg := err.Error()
	var rpcErr *utils.RPCError
	if errors.As(err, &rpcErr) && len(rpcErr.Data) > 0 {
		msg = strings.Replace(msg, rpcErr.Error(), fmt.Sprintf("rpc error %d: %s", rpcErr.Code, rpcErr.Message), 1)
	}
	return msg
}

// Unrecoverable reports whether no other strategy can succeed after this class
func (c ErrorClass) Unrecoverable() bool {
	return c == ClassInvalidRequest || c == ClassContractRevert
}

// UserMessageFor returns the user-facing message of a class
func UserMessageFor(class ErrorClass) string {
	if msg, ok := userMessages[class]; ok {
		return msg
	}
	return userMessages[ClassUnknown]
}

// primaryFailure picks the most actionable failure. Ties go to the strategy
// that ran first.
func primaryFailure(attempts []*StrategyError) *StrategyError {
	var primary *StrategyError
	for _, attempt := range attempts {
		if attempt.Skipped {
			continue
		}
		if primary == nil || classRank[attempt.Class] > classRank[primary.Class] {
			primary = attempt
		}
	}
	return primary
}
