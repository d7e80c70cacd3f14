package services

import (
	"context"
	"math/big"

	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stackup-wallet/stackup-bundler/pkg/userop"
	"github.com/stretchr/testify/mock"
)

var (
	testAccount  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testContract = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func testIntent() types.TransactionIntent {
	return types.TransactionIntent{
		Destination: testContract,
		Payload:     []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

// MockSmartAccount mocks the smart account capability
type MockSmartAccount struct {
	mock.Mock
}

func (m *MockSmartAccount) Address(ctx context.Context) (common.Address, error) {
	args := m.Called(ctx)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *MockSmartAccount) IsDeployed(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockSmartAccount) BuildOperation(ctx context.Context, intent types.TransactionIntent, opts types.SendOptions) (*userop.UserOperation, error) {
	args := m.Called(ctx, intent, opts)
	op, _ := args.Get(0).(*userop.UserOperation)
	return op, args.Error(1)
}

func (m *MockSmartAccount) SendOperation(ctx context.Context, op *userop.UserOperation) (string, error) {
	args := m.Called(ctx, op)
	return args.String(0), args.Error(1)
}

func (m *MockSmartAccount) SendTransaction(ctx context.Context, intent types.TransactionIntent, opts types.SendOptions) (string, error) {
	args := m.Called(ctx, intent, opts)
	return args.String(0), args.Error(1)
}

func (m *MockSmartAccount) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockWallet mocks the wallet provider
type MockWallet struct {
	mock.Mock
}

func (m *MockWallet) Signer(ctx context.Context) (common.Address, error) {
	args := m.Called(ctx)
	return args.Get(0).(common.Address), args.Error(1)
}

func (m *MockWallet) ChainID(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWallet) SendTransaction(ctx context.Context, intent types.TransactionIntent, gasLimit uint64) (common.Hash, error) {
	args := m.Called(ctx, intent, gasLimit)
	return args.Get(0).(common.Hash), args.Error(1)
}

// fakeChain is a static ChainReader
type fakeChain struct {
	chainID    int64
	code       []byte
	balance    *big.Int
	chainIDErr error
	codeErr    error
	balanceErr error
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	if f.chainIDErr != nil {
		return nil, f.chainIDErr
	}
	return big.NewInt(f.chainID), nil
}

func (f *fakeChain) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code, f.codeErr
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	return f.balance, nil
}

func healthyChain() *fakeChain {
	return &fakeChain{
		chainID: 11155111,
		code:    []byte{0x60, 0x80},
		balance: big.NewInt(1e17),
	}
}
