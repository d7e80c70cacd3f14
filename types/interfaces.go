package types

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stackup-wallet/stackup-bundler/pkg/userop"
)

// SmartAccount is the account-abstraction capability used by the strategies
type SmartAccount interface {
	Address(ctx context.Context) (common.Address, error)
	IsDeployed(ctx context.Context) (bool, error)
	BuildOperation(ctx context.Context, intent TransactionIntent, opts SendOptions) (*userop.UserOperation, error)
	SendOperation(ctx context.Context, op *userop.UserOperation) (string, error)
	SendTransaction(ctx context.Context, intent TransactionIntent, opts SendOptions) (string, error)
	Ping(ctx context.Context) error
}

// ChainReader is the read-only chain access used by preflight
type ChainReader interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// WalletProvider is the user's externally owned wallet
type WalletProvider interface {
	Signer(ctx context.Context) (common.Address, error)
	ChainID(ctx context.Context) (int64, error)
	SendTransaction(ctx context.Context, intent TransactionIntent, gasLimit uint64) (common.Hash, error)
}
