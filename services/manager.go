package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/NEDA-LABS/mintrelay/config"
	"github.com/NEDA-LABS/mintrelay/storage"
	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrDispatchNotFound is returned when no submission is recorded for a key
var ErrDispatchNotFound = errors.New("no submission recorded for idempotency key")

// MintRequest is a request to mint one NFT
type MintRequest struct {
	Name           string
	Description    string
	Image          string
	Value          *big.Int
	IdempotencyKey string
	Consent        types.ConsentFunc
}

// Engine wires the dispatch components around one smart account
type Engine struct {
	conf        *config.DispatchConfiguration
	client      *ethclient.Client
	bundler     *BundlerClient
	account     *LightAccount
	preflight   *PreflightValidator
	diagnostics *AccountDiagnostics
	dispatcher  *Dispatcher
	contract    common.Address

	// outcomes keeps confirmations memoized across receipt lookups
	outcomes sync.Map
}

// NewEngine connects to the node and bundler and builds the dispatcher
func NewEngine(ctx context.Context, conf *config.DispatchConfiguration) (*Engine, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	client, err := types.NewEthClient(ctx, utils.BuildRPCURL(conf.RPCURL, conf.RelayerAPIKey))
	if err != nil {
		return nil, err
	}

	ownerKey, err := ParseOwnerKey(conf.OwnerPrivateKey)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("invalid SMART_ACCOUNT_OWNER_PRIVATE_KEY: %w", err)
	}

	bundler := NewBundlerClient(conf)
	account, err := NewLightAccount(client, bundler, LightAccountOptions{
		OwnerKey:   ownerKey,
		Factory:    common.HexToAddress(conf.AccountFactoryAddress),
		EntryPoint: bundler.EntryPoint(),
		Salt:       big.NewInt(conf.AccountSalt),
		ChainID:    big.NewInt(conf.ChainID),
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	var wallet types.WalletProvider
	switch {
	case conf.WalletPrivateKey != "":
		w, err := NewLocalWallet(client, conf.WalletPrivateKey)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("invalid WALLET_PRIVATE_KEY: %w", err)
		}
		wallet = w
	case conf.WalletMnemonic != "":
		w, err := NewLocalWalletFromMnemonic(client, conf.WalletMnemonic)
		if err != nil {
			client.Close()
			return nil, err
		}
		wallet = w
	default:
		logger.Warnf("No wallet key configured, the wallet-funded fallback will be unavailable")
	}

	preflight := NewPreflightValidator(client, conf.FaucetURLs)
	diagnostics := NewAccountDiagnostics()
	normalizer := NewResultNormalizer(bundler, client, conf.ConfirmationPollMin, conf.ConfirmationPollMax)
	store := storage.NewIdempotencyStore(conf.IdempotencyTTL)

	engine := &Engine{
		conf:        conf,
		client:      client,
		bundler:     bundler,
		account:     account,
		preflight:   preflight,
		diagnostics: diagnostics,
		dispatcher:  NewDispatcher(account, DefaultStrategies(wallet, conf.WalletFallbackGasLimit), preflight, diagnostics, normalizer, store),
		contract:    common.HexToAddress(conf.ContractAddress),
	}

	logger.WithFields(logger.Fields{
		"ChainID":    conf.ChainID,
		"Network":    utils.NetworkName(conf.ChainID),
		"Contract":   engine.contract.Hex(),
		"Owner":      account.Owner().Hex(),
		"EntryPoint": bundler.EntryPoint().Hex(),
		"Wallet":     conf.WalletFallbackEnabled(),
	}).Infof("Dispatch engine initialized")

	return engine, nil
}

// BuildMintIntent encodes mintWithMetadata for the given metadata
func BuildMintIntent(contract common.Address, req MintRequest) (types.TransactionIntent, error) {
	uri, err := utils.BuildMetadataURI(utils.TokenMetadata{
		Name:        req.Name,
		Description: req.Description,
		Image:       req.Image,
	})
	if err != nil {
		return types.TransactionIntent{}, fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}

	payload, err := utils.EncodeMintWithMetadata(uri)
	if err != nil {
		return types.TransactionIntent{}, fmt.Errorf("failed to encode mint call: %w", err)
	}

	return types.TransactionIntent{
		Destination: contract,
		Payload:     payload,
		Value:       req.Value,
	}, nil
}

// Mint dispatches a mintWithMetadata call to the configured contract
func (e *Engine) Mint(ctx context.Context, req MintRequest) (*types.SubmissionOutcome, error) {
	intent, err := BuildMintIntent(e.contract, req)
	if err != nil {
		return nil, err
	}

	return e.Dispatch(ctx, intent, types.DispatchOptions{
		ContractAddress: e.contract,
		IdempotencyKey:  req.IdempotencyKey,
		Consent:         req.Consent,
	})
}

// Dispatch sends an arbitrary intent through the strategy cascade
func (e *Engine) Dispatch(ctx context.Context, intent types.TransactionIntent, opts types.DispatchOptions) (*types.SubmissionOutcome, error) {
	if opts.ExpectedChainID == 0 {
		opts.ExpectedChainID = e.conf.ChainID
	}

	outcome, err := e.dispatcher.Dispatch(ctx, intent, opts)
	if err != nil {
		return nil, err
	}
	return e.remember(outcome), nil
}

// Receipt waits for the confirmation of the submission recorded under key
func (e *Engine) Receipt(ctx context.Context, key string) (*types.Receipt, error) {
	outcome, err := e.Outcome(ctx, key)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.AwaitConfirmation(ctx, outcome)
}

// Outcome returns the submission recorded under key
func (e *Engine) Outcome(ctx context.Context, key string) (*types.SubmissionOutcome, error) {
	if cached, ok := e.outcomes.Load(key); ok {
		return cached.(*types.SubmissionOutcome), nil
	}

	outcome, err := e.dispatcher.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, ErrDispatchNotFound
	}
	return e.remember(outcome), nil
}

func (e *Engine) remember(outcome *types.SubmissionOutcome) *types.SubmissionOutcome {
	actual, _ := e.outcomes.LoadOrStore(outcome.IdempotencyKey, outcome)
	return actual.(*types.SubmissionOutcome)
}

// Diagnose returns the advisory account report
func (e *Engine) Diagnose(ctx context.Context) types.DiagnosticReport {
	return e.diagnostics.Diagnose(ctx, e.account)
}

// Preflight runs the preflight checks for the configured contract
func (e *Engine) Preflight(ctx context.Context) (*types.PreflightReport, error) {
	address, err := e.account.Address(ctx)
	if err != nil {
		return nil, &PreflightUnavailableError{Cause: err}
	}
	return e.preflight.Validate(ctx, e.contract, e.conf.ChainID, address)
}

// IsHealthy checks the node and the bundler are reachable
func (e *Engine) IsHealthy(ctx context.Context) bool {
	if _, err := e.client.ChainID(ctx); err != nil {
		logger.Warnf("Node health check failed: %v", err)
		return false
	}
	if err := e.bundler.Ping(ctx); err != nil {
		logger.Warnf("Bundler health check failed: %v", err)
		return false
	}
	return true
}

// Close releases the node connection
func (e *Engine) Close() {
	e.client.Close()
}
