package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stackup-wallet/stackup-bundler/pkg/userop"
)

// AccountChain is the node access needed to build operations
type AccountChain interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

// AccountBundler is the bundler access needed to gas and send operations
type AccountBundler interface {
	SendUserOperation(ctx context.Context, op *userop.UserOperation) (string, error)
	EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation) (*GasEstimate, error)
	GetUserOperationByHash(ctx context.Context, userOpHash string) (bool, error)
	RequestGasAndPaymasterData(ctx context.Context, op *userop.UserOperation, overrides *GasOverrides) (*PaymasterResult, error)
	Ping(ctx context.Context) error
}

// LightAccountOptions configures a LightAccount
type LightAccountOptions struct {
	OwnerKey   *ecdsa.PrivateKey
	Factory    common.Address
	EntryPoint common.Address
	Salt       *big.Int
	ChainID    *big.Int
}

// LightAccount is a SmartAccount backed by a LightAccount contract owned by a local key
type LightAccount struct {
	chain   AccountChain
	bundler AccountBundler
	opts    LightAccountOptions
	owner   common.Address

	mu      sync.Mutex
	address *common.Address
}

var _ types.SmartAccount = (*LightAccount)(nil)

// NewLightAccount creates the smart account capability
func NewLightAccount(chain AccountChain, bundler AccountBundler, opts LightAccountOptions) (*LightAccount, error) {
	if opts.OwnerKey == nil {
		return nil, fmt.Errorf("smart account owner key is required")
	}
	if opts.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	if opts.Salt == nil {
		opts.Salt = new(big.Int)
	}

	return &LightAccount{
		chain:   chain,
		bundler: bundler,
		opts:    opts,
		owner:   crypto.PubkeyToAddress(opts.OwnerKey.PublicKey),
	}, nil
}

// ParseOwnerKey parses a hex private key with or without 0x
func ParseOwnerKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return key, nil
}

// Owner returns the signer address of the account
func (a *LightAccount) Owner() common.Address {
	return a.owner
}

// Address returns the counterfactual account address from the factory
func (a *LightAccount) Address(ctx context.Context) (common.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.address != nil {
		return *a.address, nil
	}

	data, err := utils.EncodeGetAddress(a.owner, a.opts.Salt)
	if err != nil {
		return common.Address{}, err
	}

	result, err := a.chain.CallContract(ctx, ethereum.CallMsg{To: &a.opts.Factory, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("factory getAddress failed: %w", err)
	}

	address, err := utils.DecodeGetAddress(result)
	if err != nil {
		return common.Address{}, err
	}

	logger.WithFields(logger.Fields{
		"Owner":   a.owner.Hex(),
		"Salt":    a.opts.Salt.String(),
		"Address": address.Hex(),
	}).Infof("Computed smart account address via factory getAddress")

	a.address = &address
	return address, nil
}

// IsDeployed reports whether the account has code on-chain
func (a *LightAccount) IsDeployed(ctx context.Context) (bool, error) {
	address, err := a.Address(ctx)
	if err != nil {
		return false, err
	}

	code, err := a.chain.CodeAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to check account deployment: %w", err)
	}
	return len(code) > 0, nil
}

// Ping checks bundler connectivity
func (a *LightAccount) Ping(ctx context.Context) error {
	return a.bundler.Ping(ctx)
}

// BuildOperation builds, gases and signs a user operation for intent
func (a *LightAccount) BuildOperation(ctx context.Context, intent types.TransactionIntent, opts types.SendOptions) (*userop.UserOperation, error) {
	sender, err := a.Address(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := a.nonce(ctx, sender)
	if err != nil {
		return nil, err
	}

	initCode, err := a.initCode(ctx)
	if err != nil {
		return nil, err
	}

	callData, err := utils.EncodeExecute(intent.Destination, intent.ValueOrZero(), intent.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execute call: %w", err)
	}

	maxFee, maxPriorityFee, err := a.fees(ctx, opts)
	if err != nil {
		return nil, err
	}

	op := &userop.UserOperation{
		Sender:               sender,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             callData,
		CallGasLimit:         new(big.Int),
		VerificationGasLimit: new(big.Int),
		PreVerificationGas:   new(big.Int),
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPriorityFee,
		PaymasterAndData:     []byte{},
		Signature:            common.FromHex(dummySignature),
	}

	switch opts.Mode {
	case types.Sponsored:
		err = a.sponsor(ctx, op, opts)
	case types.SelfFunded:
		err = a.estimate(ctx, op, opts)
	default:
		err = fmt.Errorf("smart account cannot build a %s operation", opts.Mode)
	}
	if err != nil {
		return nil, err
	}

	if err := a.sign(op); err != nil {
		return nil, err
	}

	logger.WithFields(logger.Fields{
		"Sender":       sender.Hex(),
		"Nonce":        nonce.String(),
		"Mode":         opts.Mode.String(),
		"Deploying":    len(initCode) > 0,
		"CallGasLimit": op.CallGasLimit.String(),
		"MaxFeePerGas": op.MaxFeePerGas.String(),
	}).Debugf("Built user operation")

	return op, nil
}

// SendOperation submits op. When the bundler call fails, the locally computed
// hash is looked up so an operation accepted despite the error is not resent.
func (a *LightAccount) SendOperation(ctx context.Context, op *userop.UserOperation) (string, error) {
	hash, err := a.bundler.SendUserOperation(ctx, op)
	if err == nil {
		return hash, nil
	}

	localHash := op.GetUserOpHash(a.opts.EntryPoint, a.opts.ChainID).Hex()
	known, lookupErr := a.bundler.GetUserOperationByHash(ctx, localHash)
	if lookupErr == nil && known {
		logger.WithFields(logger.Fields{
			"UserOpHash": localHash,
			"SendError":  err.Error(),
		}).Warnf("Bundler reported an error but already knows the operation")
		return localHash, nil
	}

	return "", err
}

// SendTransaction builds and submits intent in one step
func (a *LightAccount) SendTransaction(ctx context.Context, intent types.TransactionIntent, opts types.SendOptions) (string, error) {
	op, err := a.BuildOperation(ctx, intent, opts)
	if err != nil {
		return "", err
	}
	return a.SendOperation(ctx, op)
}

func (a *LightAccount) nonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	data, err := utils.EncodeGetNonce(sender, nil)
	if err != nil {
		return nil, err
	}
	result, err := a.chain.CallContract(ctx, ethereum.CallMsg{To: &a.opts.EntryPoint, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("entry point getNonce failed: %w", err)
	}
	return utils.DecodeGetNonce(result)
}

func (a *LightAccount) initCode(ctx context.Context) ([]byte, error) {
	deployed, err := a.IsDeployed(ctx)
	if err != nil {
		return nil, err
	}
	if deployed {
		return []byte{}, nil
	}

	createCall, err := utils.EncodeCreateAccount(a.owner, a.opts.Salt)
	if err != nil {
		return nil, err
	}
	return append(a.opts.Factory.Bytes(), createCall...), nil
}

// fees uses explicit overrides when given, else 2x base fee plus the suggested tip
func (a *LightAccount) fees(ctx context.Context, opts types.SendOptions) (*big.Int, *big.Int, error) {
	if opts.MaxFeePerGas != nil && opts.MaxPriorityFeePerGas != nil {
		return new(big.Int).Set(opts.MaxFeePerGas), new(big.Int).Set(opts.MaxPriorityFeePerGas), nil
	}

	tip, err := a.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get gas tip: %w", err)
	}
	head, err := a.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest block: %w", err)
	}

	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	maxFee := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)
	return maxFee, tip, nil
}

func (a *LightAccount) sponsor(ctx context.Context, op *userop.UserOperation, opts types.SendOptions) error {
	overrides := &GasOverrides{
		CallGasLimit:         opts.CallGasLimit,
		MaxFeePerGas:         opts.MaxFeePerGas,
		MaxPriorityFeePerGas: opts.MaxPriorityFeePerGas,
	}

	result, err := a.bundler.RequestGasAndPaymasterData(ctx, op, overrides)
	if err != nil {
		return err
	}

	op.PaymasterAndData = result.PaymasterAndData
	if result.CallGasLimit != nil {
		op.CallGasLimit = result.CallGasLimit
	}
	if result.VerificationGasLimit != nil {
		op.VerificationGasLimit = result.VerificationGasLimit
	}
	if result.PreVerificationGas != nil {
		op.PreVerificationGas = result.PreVerificationGas
	}
	if result.MaxFeePerGas != nil {
		op.MaxFeePerGas = result.MaxFeePerGas
	}
	if result.MaxPriorityFeePerGas != nil {
		op.MaxPriorityFeePerGas = result.MaxPriorityFeePerGas
	}
	return nil
}

func (a *LightAccount) estimate(ctx context.Context, op *userop.UserOperation, opts types.SendOptions) error {
	estimate, err := a.bundler.EstimateUserOperationGas(ctx, op)
	if err != nil {
		return fmt.Errorf("gas estimation failed: %w", err)
	}

	op.PreVerificationGas = estimate.PreVerificationGas
	op.VerificationGasLimit = estimate.VerificationGasLimit
	op.CallGasLimit = estimate.CallGasLimit
	if opts.CallGasLimit != nil {
		op.CallGasLimit = new(big.Int).Set(opts.CallGasLimit)
	}
	return nil
}

// sign applies an EIP-191 signature over the EntryPoint v0.6 operation hash
func (a *LightAccount) sign(op *userop.UserOperation) error {
	hash := op.GetUserOpHash(a.opts.EntryPoint, a.opts.ChainID)

	signature, err := crypto.Sign(accounts.TextHash(hash.Bytes()), a.opts.OwnerKey)
	if err != nil {
		return fmt.Errorf("failed to sign user operation: %w", err)
	}

	// Adjust v value for Ethereum (27 or 28)
	if signature[64] < 27 {
		signature[64] += 27
	}

	op.Signature = signature
	return nil
}
