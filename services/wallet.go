package services

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

const defaultDerivationPath = "m/44'/60'/0'/0/0"

// WalletChain is the node access needed by the local wallet
type WalletChain interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*ethtypes.Transaction, bool, error)
}

// LocalWallet is a WalletProvider signing with a locally held key
type LocalWallet struct {
	chain   WalletChain
	key     *ecdsa.PrivateKey
	address common.Address
}

var _ types.WalletProvider = (*LocalWallet)(nil)

// NewLocalWallet creates a wallet from a hex private key
func NewLocalWallet(chain WalletChain, hexKey string) (*LocalWallet, error) {
	key, err := ParseOwnerKey(hexKey)
	if err != nil {
		return nil, err
	}
	return newLocalWallet(chain, key), nil
}

// NewLocalWalletFromMnemonic derives the first account of a BIP-39 mnemonic
func NewLocalWalletFromMnemonic(chain WalletChain, mnemonic string) (*LocalWallet, error) {
	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet mnemonic: %w", err)
	}

	account, err := wallet.Derive(hdwallet.MustParseDerivationPath(defaultDerivationPath), false)
	if err != nil {
		return nil, fmt.Errorf("failed to derive wallet account: %w", err)
	}

	key, err := wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("failed to derive wallet key: %w", err)
	}
	return newLocalWallet(chain, key), nil
}

func newLocalWallet(chain WalletChain, key *ecdsa.PrivateKey) *LocalWallet {
	return &LocalWallet{
		chain:   chain,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}
}

// Signer returns the wallet address
func (w *LocalWallet) Signer(ctx context.Context) (common.Address, error) {
	return w.address, nil
}

// ChainID returns the chain the wallet is connected to
func (w *LocalWallet) ChainID(ctx context.Context) (int64, error) {
	chainID, err := w.chain.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get wallet chain id: %w", err)
	}
	return chainID.Int64(), nil
}

// SendTransaction signs and broadcasts an EIP-1559 transaction with a fixed gas limit
func (w *LocalWallet) SendTransaction(ctx context.Context, intent types.TransactionIntent, gasLimit uint64) (common.Hash, error) {
	chainID, err := w.chain.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get chain id: %w", err)
	}

	nonce, err := w.chain.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	tip, err := w.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas tip: %w", err)
	}

	head, err := w.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get latest block: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tip)

	to := intent.Destination
	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     intent.ValueOrZero(),
		Data:      intent.Payload,
	})

	signedTx, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := w.chain.SendTransaction(ctx, signedTx); err != nil {
		// The node may have accepted the transaction before the error surfaced
		if _, _, lookupErr := w.chain.TransactionByHash(ctx, signedTx.Hash()); lookupErr == nil {
			logger.WithFields(logger.Fields{
				"TxHash":    signedTx.Hash().Hex(),
				"SendError": err.Error(),
			}).Warnf("Broadcast reported an error but the node knows the transaction")
			return signedTx.Hash(), nil
		}
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	logger.WithFields(logger.Fields{
		"From":     w.address.Hex(),
		"To":       to.Hex(),
		"Nonce":    nonce,
		"GasLimit": gasLimit,
		"TxHash":   signedTx.Hash().Hex(),
	}).Infof("Sent wallet-funded transaction")

	return signedTx.Hash(), nil
}
