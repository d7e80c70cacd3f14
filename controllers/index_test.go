package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/NEDA-LABS/mintrelay/services"
	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockMinter mocks the dispatch engine
type MockMinter struct {
	mock.Mock
}

func (m *MockMinter) Mint(ctx context.Context, req services.MintRequest) (*types.SubmissionOutcome, error) {
	args := m.Called(ctx, req)
	outcome, _ := args.Get(0).(*types.SubmissionOutcome)
	return outcome, args.Error(1)
}

func (m *MockMinter) Dispatch(ctx context.Context, intent types.TransactionIntent, opts types.DispatchOptions) (*types.SubmissionOutcome, error) {
	args := m.Called(ctx, intent, opts)
	outcome, _ := args.Get(0).(*types.SubmissionOutcome)
	return outcome, args.Error(1)
}

func (m *MockMinter) Receipt(ctx context.Context, key string) (*types.Receipt, error) {
	args := m.Called(ctx, key)
	receipt, _ := args.Get(0).(*types.Receipt)
	return receipt, args.Error(1)
}

func (m *MockMinter) Diagnose(ctx context.Context) types.DiagnosticReport {
	args := m.Called(ctx)
	return args.Get(0).(types.DiagnosticReport)
}

func (m *MockMinter) IsHealthy(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

var testContract = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func setupRouter(engine Minter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	ctrl := NewController(engine)

	router := gin.New()
	router.POST("/v1/mint", ctrl.Mint)
	router.POST("/v1/dispatch", ctrl.Dispatch)
	router.GET("/v1/dispatches/:key/receipt", ctrl.GetReceipt)
	router.GET("/v1/diagnostics", ctrl.GetDiagnostics)
	router.GET("/health", ctrl.Health)
	return router
}

func performRequest(router *gin.Engine, method, path string, payload interface{}) (*httptest.ResponseRecorder, apiResponse) {
	var body []byte
	switch p := payload.(type) {
	case nil:
	case string:
		body = []byte(p)
	default:
		body, _ = json.Marshal(p)
	}

	req, _ := http.NewRequest(method, path, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var res apiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &res)
	return w, res
}

func testOutcome() *types.SubmissionOutcome {
	return types.NewSubmissionOutcome("0xabc", "", types.KindUserOperation, "sponsored-gas-ceiling", "key-1", nil)
}

func TestMint(t *testing.T) {
	engine := new(MockMinter)
	engine.On("Mint", mock.Anything, mock.MatchedBy(func(req services.MintRequest) bool {
		return req.Name == "Sunset" && req.IdempotencyKey == "key-1" && req.Consent == nil && req.Value.Sign() == 0
	})).Return(testOutcome(), nil)

	w, res := performRequest(setupRouter(engine), "POST", "/v1/mint", map[string]interface{}{
		"name":           "Sunset",
		"image":          "ipfs://image",
		"idempotencyKey": "key-1",
	})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "success", res.Status)

	var outcome types.SubmissionOutcome
	require.NoError(t, json.Unmarshal(res.Data, &outcome))
	assert.Equal(t, "0xabc", outcome.OperationHash)
	assert.Equal(t, "key-1", outcome.IdempotencyKey)
	engine.AssertExpectations(t)
}

func TestMintWalletFallbackConsent(t *testing.T) {
	engine := new(MockMinter)
	engine.On("Mint", mock.Anything, mock.MatchedBy(func(req services.MintRequest) bool {
		if req.Consent == nil {
			return false
		}
		approved, err := req.Consent(context.Background(), types.ConsentRequest{})
		return approved && err == nil
	})).Return(testOutcome(), nil)

	w, _ := performRequest(setupRouter(engine), "POST", "/v1/mint", map[string]interface{}{
		"name":                "Sunset",
		"allowWalletFallback": true,
	})

	assert.Equal(t, http.StatusAccepted, w.Code)
	engine.AssertExpectations(t)
}

func TestMintErrors(t *testing.T) {
	funding := &types.FundingInstructions{
		Account:    testContract,
		Network:    "Sepolia",
		FaucetURLs: []string{"https://sepoliafaucet.com"},
		Balance:    "0",
		Message:    "Fund the account",
	}

	tests := []struct {
		name           string
		payload        interface{}
		err            error
		expectedStatus int
	}{
		{
			name:           "Invalid JSON payload",
			payload:        "invalid json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Missing name",
			payload:        map[string]interface{}{"image": "ipfs://image"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Negative value",
			payload:        map[string]interface{}{"name": "Sunset", "value": "-1"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:    "Preflight failed",
			payload: map[string]interface{}{"name": "Sunset"},
			err: &services.PreflightError{
				Reason:  services.ReasonInsufficientBalance,
				Message: "Fund the account",
				Funding: funding,
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "Preflight unavailable",
			payload:        map[string]interface{}{"name": "Sunset"},
			err:            &services.PreflightUnavailableError{Cause: errors.New("dial tcp: connection refused")},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "User declined",
			payload:        map[string]interface{}{"name": "Sunset"},
			err:            fmt.Errorf("wallet-fallback: %w", services.ErrUserDeclined),
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "All strategies exhausted",
			payload:        map[string]interface{}{"name": "Sunset"},
			err:            &services.AllExhaustedError{},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:           "Invalid intent",
			payload:        map[string]interface{}{"name": "Sunset"},
			err:            fmt.Errorf("%w: payload is empty", services.ErrInvalidIntent),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := new(MockMinter)
			if tt.err != nil {
				engine.On("Mint", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			w, res := performRequest(setupRouter(engine), "POST", "/v1/mint", tt.payload)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, "error", res.Status)
			assert.NotEmpty(t, res.Message)
			engine.AssertExpectations(t)
		})
	}
}

func TestMintPreflightFailureCarriesFunding(t *testing.T) {
	engine := new(MockMinter)
	engine.On("Mint", mock.Anything, mock.Anything).Return(nil, &services.PreflightError{
		Reason:  services.ReasonInsufficientBalance,
		Message: "Fund the account",
		Funding: &types.FundingInstructions{Account: testContract, Network: "Sepolia", Balance: "0"},
	})

	w, res := performRequest(setupRouter(engine), "POST", "/v1/mint", map[string]interface{}{"name": "Sunset"})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "Fund the account", res.Message)

	var funding types.FundingInstructions
	require.NoError(t, json.Unmarshal(res.Data, &funding))
	assert.Equal(t, testContract, funding.Account)
	assert.Equal(t, "Sepolia", funding.Network)
}

func TestDispatch(t *testing.T) {
	engine := new(MockMinter)
	engine.On("Dispatch", mock.Anything, mock.MatchedBy(func(intent types.TransactionIntent) bool {
		return intent.Destination == testContract &&
			bytes.Equal(intent.Payload, []byte{0xde, 0xad, 0xbe, 0xef}) &&
			intent.Value.Cmp(big.NewInt(7)) == 0
	}), mock.MatchedBy(func(opts types.DispatchOptions) bool {
		return opts.ContractAddress == testContract && opts.IdempotencyKey == "key-2"
	})).Return(testOutcome(), nil)

	w, res := performRequest(setupRouter(engine), "POST", "/v1/dispatch", map[string]interface{}{
		"destination":    testContract.Hex(),
		"data":           "0xdeadbeef",
		"value":          "7",
		"idempotencyKey": "key-2",
	})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "success", res.Status)
	engine.AssertExpectations(t)
}

func TestDispatchRejectsMalformedInput(t *testing.T) {
	router := setupRouter(new(MockMinter))

	w, _ := performRequest(router, "POST", "/v1/dispatch", map[string]interface{}{
		"destination": "not-an-address",
		"data":        "0xdeadbeef",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = performRequest(router, "POST", "/v1/dispatch", map[string]interface{}{
		"destination": testContract.Hex(),
		"data":        "deadbeef",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetReceipt(t *testing.T) {
	engine := new(MockMinter)
	engine.On("Receipt", mock.Anything, "key-1").Return(&types.Receipt{
		Status:          types.ReceiptSuccess,
		BlockNumber:     12,
		TransactionHash: "0xdef",
	}, nil)
	engine.On("Receipt", mock.Anything, "missing").Return(nil, services.ErrDispatchNotFound)
	engine.On("Receipt", mock.Anything, "slow").Return(nil, fmt.Errorf("%w: 0xabc: %w", services.ErrConfirmationPending, context.DeadlineExceeded))

	router := setupRouter(engine)

	w, res := performRequest(router, "GET", "/v1/dispatches/key-1/receipt?timeout=5s", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var receipt types.Receipt
	require.NoError(t, json.Unmarshal(res.Data, &receipt))
	assert.Equal(t, types.ReceiptSuccess, receipt.Status)
	assert.Equal(t, "0xdef", receipt.TransactionHash)

	w, _ = performRequest(router, "GET", "/v1/dispatches/missing/receipt", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = performRequest(router, "GET", "/v1/dispatches/slow/receipt", nil)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)

	w, _ = performRequest(router, "GET", "/v1/dispatches/key-1/receipt?timeout=soon", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDiagnosticsAndHealth(t *testing.T) {
	deployed := true
	engine := new(MockMinter)
	engine.On("Diagnose", mock.Anything).Return(types.DiagnosticReport{
		Account:          testContract,
		AccountResolved:  true,
		Deployed:         &deployed,
		BackendReachable: true,
	})
	engine.On("IsHealthy", mock.Anything).Return(true).Once()
	engine.On("IsHealthy", mock.Anything).Return(false).Once()

	router := setupRouter(engine)

	w, res := performRequest(router, "GET", "/v1/diagnostics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var report types.DiagnosticReport
	require.NoError(t, json.Unmarshal(res.Data, &report))
	assert.True(t, report.AccountResolved)
	require.NotNil(t, report.Deployed)
	assert.True(t, *report.Deployed)

	w, _ = performRequest(router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = performRequest(router, "GET", "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
