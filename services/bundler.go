package services

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/NEDA-LABS/mintrelay/config"
	"github.com/NEDA-LABS/mintrelay/utils"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/ethereum/go-ethereum/common"
	fastshot "github.com/opus-domini/fast-shot"
	"github.com/stackup-wallet/stackup-bundler/pkg/userop"
)

// Dummy ECDSA signature used while estimating gas
const dummySignature = "0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c"

// GasEstimate is the result of eth_estimateUserOperationGas
type GasEstimate struct {
	PreVerificationGas   *big.Int
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
}

// GasOverrides are the explicit values sent with a sponsorship request
type GasOverrides struct {
	CallGasLimit         *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// PaymasterResult is the result of alchemy_requestGasAndPaymasterAndData
type PaymasterResult struct {
	PaymasterAndData     []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// UserOperationReceipt is the result of eth_getUserOperationReceipt
type UserOperationReceipt struct {
	UserOpHash    string `json:"userOpHash"`
	Sender        string `json:"sender"`
	ActualGasUsed string `json:"actualGasUsed"`
	Success       bool   `json:"success"`
	Reason        string `json:"reason"`
	Receipt       struct {
		TransactionHash string `json:"transactionHash"`
		BlockNumber     string `json:"blockNumber"`
		GasUsed         string `json:"gasUsed"`
	} `json:"receipt"`
}

// BundlerClient talks JSON-RPC to the ERC-4337 bundler and the gas manager
type BundlerClient struct {
	bundlerURL   string
	paymasterURL string
	policyID     string
	entryPoint   common.Address
	timeout      time.Duration
}

// NewBundlerClient creates a client from the dispatch configuration
func NewBundlerClient(conf *config.DispatchConfiguration) *BundlerClient {
	paymasterURL := conf.PaymasterURL
	if paymasterURL == "" {
		paymasterURL = conf.BundlerURL
	}

	return &BundlerClient{
		bundlerURL:   utils.BuildRPCURL(conf.BundlerURL, conf.RelayerAPIKey),
		paymasterURL: utils.BuildRPCURL(paymasterURL, conf.RelayerAPIKey),
		policyID:     conf.GasPolicyID,
		entryPoint:   common.HexToAddress(conf.EntryPointAddress),
		timeout:      30 * time.Second,
	}
}

// EntryPoint returns the EntryPoint address operations are sent to
func (c *BundlerClient) EntryPoint() common.Address {
	return c.entryPoint
}

func (c *BundlerClient) call(ctx context.Context, url, method string, params []interface{}, out interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}

	res, err := fastshot.NewClient(url).
		Config().SetTimeout(c.timeout).
		Header().AddAll(map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}).Build().POST("").
		Body().AsJSON(payload).Send()
	if err != nil {
		return false, fmt.Errorf("%s request failed: %w", method, err)
	}

	found, err := utils.ParseJSONRPCResponse(res.RawResponse, out)
	if err != nil {
		logger.WithFields(logger.Fields{
			"Method":     method,
			"URL":        utils.RedactRPCURL(url),
			"StatusCode": res.StatusCode(),
			"Error":      err.Error(),
		}).Debugf("JSON-RPC call failed")
		return false, err
	}

	return found, nil
}

// SendUserOperation submits a signed operation and returns its hash
func (c *BundlerClient) SendUserOperation(ctx context.Context, op *userop.UserOperation) (string, error) {
	var hash string
	found, err := c.call(ctx, c.bundlerURL, "eth_sendUserOperation", []interface{}{op, c.entryPoint.Hex()}, &hash)
	if err != nil {
		return "", err
	}
	if !found || hash == "" {
		return "", fmt.Errorf("eth_sendUserOperation returned no hash")
	}

	logger.WithFields(logger.Fields{
		"Sender":     op.Sender.Hex(),
		"Nonce":      op.Nonce.String(),
		"UserOpHash": hash,
	}).Infof("UserOperation accepted by bundler")

	return hash, nil
}

// EstimateUserOperationGas asks the bundler for gas limits
func (c *BundlerClient) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation) (*GasEstimate, error) {
	var raw struct {
		PreVerificationGas   string `json:"preVerificationGas"`
		VerificationGasLimit string `json:"verificationGasLimit"`
		CallGasLimit         string `json:"callGasLimit"`
	}
	found, err := c.call(ctx, c.bundlerURL, "eth_estimateUserOperationGas", []interface{}{op, c.entryPoint.Hex()}, &raw)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("eth_estimateUserOperationGas returned no estimate")
	}

	estimate := &GasEstimate{}
	if estimate.PreVerificationGas, err = utils.HexToBig(raw.PreVerificationGas); err != nil {
		return nil, fmt.Errorf("invalid preVerificationGas: %w", err)
	}
	if estimate.VerificationGasLimit, err = utils.HexToBig(raw.VerificationGasLimit); err != nil {
		return nil, fmt.Errorf("invalid verificationGasLimit: %w", err)
	}
	if estimate.CallGasLimit, err = utils.HexToBig(raw.CallGasLimit); err != nil {
		return nil, fmt.Errorf("invalid callGasLimit: %w", err)
	}
	return estimate, nil
}

// GetUserOperationReceipt returns nil, nil while the operation is not mined
func (c *BundlerClient) GetUserOperationReceipt(ctx context.Context, userOpHash string) (*UserOperationReceipt, error) {
	var receipt UserOperationReceipt
	found, err := c.call(ctx, c.bundlerURL, "eth_getUserOperationReceipt", []interface{}{userOpHash}, &receipt)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &receipt, nil
}

// GetUserOperationByHash reports whether the bundler knows the operation
func (c *BundlerClient) GetUserOperationByHash(ctx context.Context, userOpHash string) (bool, error) {
	return c.call(ctx, c.bundlerURL, "eth_getUserOperationByHash", []interface{}{userOpHash}, nil)
}

// SupportedEntryPoints lists the EntryPoints accepted by the bundler
func (c *BundlerClient) SupportedEntryPoints(ctx context.Context) ([]string, error) {
	var entryPoints []string
	if _, err := c.call(ctx, c.bundlerURL, "eth_supportedEntryPoints", []interface{}{}, &entryPoints); err != nil {
		return nil, err
	}
	return entryPoints, nil
}

// Ping checks the bundler is reachable and serves the configured EntryPoint
func (c *BundlerClient) Ping(ctx context.Context) error {
	entryPoints, err := c.SupportedEntryPoints(ctx)
	if err != nil {
		return err
	}
	for _, ep := range entryPoints {
		if strings.EqualFold(ep, c.entryPoint.Hex()) {
			return nil
		}
	}
	return fmt.Errorf("bundler does not support entry point %s", c.entryPoint.Hex())
}

// RequestGasAndPaymasterData asks the gas manager to sponsor the operation
func (c *BundlerClient) RequestGasAndPaymasterData(ctx context.Context, op *userop.UserOperation, overrides *GasOverrides) (*PaymasterResult, error) {
	if c.policyID == "" {
		return nil, fmt.Errorf("paymaster sponsorship unavailable: gas policy id not configured")
	}

	request := map[string]interface{}{
		"policyId":       c.policyID,
		"entryPoint":     c.entryPoint.Hex(),
		"userOperation":  op,
		"dummySignature": dummySignature,
	}
	if overrides != nil {
		o := map[string]string{}
		if overrides.CallGasLimit != nil {
			o["callGasLimit"] = utils.BigToHex(overrides.CallGasLimit)
		}
		if overrides.MaxFeePerGas != nil {
			o["maxFeePerGas"] = utils.BigToHex(overrides.MaxFeePerGas)
		}
		if overrides.MaxPriorityFeePerGas != nil {
			o["maxPriorityFeePerGas"] = utils.BigToHex(overrides.MaxPriorityFeePerGas)
		}
		if len(o) > 0 {
			request["overrides"] = o
		}
	}

	var raw struct {
		PaymasterAndData     string `json:"paymasterAndData"`
		CallGasLimit         string `json:"callGasLimit"`
		VerificationGasLimit string `json:"verificationGasLimit"`
		PreVerificationGas   string `json:"preVerificationGas"`
		MaxFeePerGas         string `json:"maxFeePerGas"`
		MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas"`
	}
	found, err := c.call(ctx, c.paymasterURL, "alchemy_requestGasAndPaymasterAndData", []interface{}{request}, &raw)
	if err != nil {
		return nil, fmt.Errorf("paymaster request failed: %w", err)
	}
	if !found || raw.PaymasterAndData == "" {
		return nil, fmt.Errorf("paymaster returned no sponsorship data")
	}

	result := &PaymasterResult{PaymasterAndData: common.FromHex(raw.PaymasterAndData)}
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"callGasLimit", raw.CallGasLimit, &result.CallGasLimit},
		{"verificationGasLimit", raw.VerificationGasLimit, &result.VerificationGasLimit},
		{"preVerificationGas", raw.PreVerificationGas, &result.PreVerificationGas},
		{"maxFeePerGas", raw.MaxFeePerGas, &result.MaxFeePerGas},
		{"maxPriorityFeePerGas", raw.MaxPriorityFeePerGas, &result.MaxPriorityFeePerGas},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := utils.HexToBig(f.raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s in paymaster response: %w", f.name, err)
		}
		*f.dst = v
	}

	logger.WithFields(logger.Fields{
		"Sender":       op.Sender.Hex(),
		"PolicyID":     c.policyID,
		"CallGasLimit": utils.BigToHex(result.CallGasLimit),
	}).Debugf("Received paymaster sponsorship")

	return result, nil
}
