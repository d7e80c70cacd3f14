package services

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/NEDA-LABS/mintrelay/config"
	"github.com/NEDA-LABS/mintrelay/utils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stackup-wallet/stackup-bundler/pkg/userop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEntryPoint = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// rpcServer is a JSON-RPC fake answering per method
type rpcServer struct {
	*httptest.Server
	mu       sync.Mutex
	handlers map[string]func(params []json.RawMessage) (interface{}, *utils.RPCError)
	requests []rpcRequest
}

func newRPCServer(t *testing.T) *rpcServer {
	s := &rpcServer{handlers: map[string]func([]json.RawMessage) (interface{}, *utils.RPCError){}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, req)
		handler, ok := s.handlers[req.Method]
		s.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": 1}
		if !ok {
			resp["error"] = &utils.RPCError{Code: -32601, Message: "method not found"}
		} else if result, rpcErr := handler(req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *rpcServer) on(method string, handler func(params []json.RawMessage) (interface{}, *utils.RPCError)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

func (s *rpcServer) lastRequest() rpcRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

func newTestBundler(url, policyID string) *BundlerClient {
	return NewBundlerClient(&config.DispatchConfiguration{
		BundlerURL:        url,
		GasPolicyID:       policyID,
		EntryPointAddress: testEntryPoint,
	})
}

func sampleOp() *userop.UserOperation {
	return &userop.UserOperation{
		Sender:               testAccount,
		Nonce:                big.NewInt(0),
		InitCode:             []byte{},
		CallData:             []byte{0x01},
		CallGasLimit:         big.NewInt(0),
		VerificationGasLimit: big.NewInt(0),
		PreVerificationGas:   big.NewInt(0),
		MaxFeePerGas:         big.NewInt(1),
		MaxPriorityFeePerGas: big.NewInt(1),
		PaymasterAndData:     []byte{},
		Signature:            common.FromHex(dummySignature),
	}
}

func TestBundlerSendUserOperation(t *testing.T) {
	srv := newRPCServer(t)
	srv.on("eth_sendUserOperation", func(params []json.RawMessage) (interface{}, *utils.RPCError) {
		return "0xophash", nil
	})

	hash, err := newTestBundler(srv.URL, "").SendUserOperation(context.Background(), sampleOp())
	require.NoError(t, err)
	assert.Equal(t, "0xophash", hash)

	req := srv.lastRequest()
	require.Len(t, req.Params, 2)
	var entryPoint string
	require.NoError(t, json.Unmarshal(req.Params[1], &entryPoint))
	assert.Equal(t, testEntryPoint, entryPoint)

	var op map[string]interface{}
	require.NoError(t, json.Unmarshal(req.Params[0], &op))
	assert.Equal(t, "0x01", op["callData"])
}

func TestBundlerSurfacesRPCErrors(t *testing.T) {
	srv := newRPCServer(t)
	srv.on("eth_sendUserOperation", func([]json.RawMessage) (interface{}, *utils.RPCError) {
		return nil, &utils.RPCError{Code: -32500, Message: "AA21 didn't pay prefund"}
	})

	_, err := newTestBundler(srv.URL, "").SendUserOperation(context.Background(), sampleOp())

	var rpcErr *utils.RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32500, rpcErr.Code)
	assert.Equal(t, ClassInsufficientFunds, Classify(err))
}

func TestBundlerEstimateUserOperationGas(t *testing.T) {
	srv := newRPCServer(t)
	srv.on("eth_estimateUserOperationGas", func([]json.RawMessage) (interface{}, *utils.RPCError) {
		return map[string]string{
			"preVerificationGas":   "0xb5a0",
			"verificationGasLimit": "0x0186a0",
			"callGasLimit":         "0x5208",
		}, nil
	})

	estimate, err := newTestBundler(srv.URL, "").EstimateUserOperationGas(context.Background(), sampleOp())
	require.NoError(t, err)
	assert.Equal(t, int64(46496), estimate.PreVerificationGas.Int64())
	assert.Equal(t, int64(100000), estimate.VerificationGasLimit.Int64())
	assert.Equal(t, int64(21000), estimate.CallGasLimit.Int64())
}

func TestBundlerUserOperationReceipt(t *testing.T) {
	srv := newRPCServer(t)
	mined := false
	srv.on("eth_getUserOperationReceipt", func([]json.RawMessage) (interface{}, *utils.RPCError) {
		if !mined {
			return nil, nil
		}
		return map[string]interface{}{
			"userOpHash":    "0xop",
			"actualGasUsed": "0x5208",
			"success":       true,
			"receipt": map[string]string{
				"transactionHash": "0xabc",
				"blockNumber":     "0x10",
			},
		}, nil
	})

	bundler := newTestBundler(srv.URL, "")

	receipt, err := bundler.GetUserOperationReceipt(context.Background(), "0xop")
	require.NoError(t, err)
	assert.Nil(t, receipt)

	mined = true
	receipt, err = bundler.GetUserOperationReceipt(context.Background(), "0xop")
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.True(t, receipt.Success)
	assert.Equal(t, "0xabc", receipt.Receipt.TransactionHash)
	assert.Equal(t, "0x10", receipt.Receipt.BlockNumber)
}

func TestBundlerGetUserOperationByHash(t *testing.T) {
	srv := newRPCServer(t)
	srv.on("eth_getUserOperationByHash", func(params []json.RawMessage) (interface{}, *utils.RPCError) {
		var hash string
		_ = json.Unmarshal(params[0], &hash)
		if hash == "0xknown" {
			return map[string]string{"userOperation": "{}"}, nil
		}
		return nil, nil
	})

	bundler := newTestBundler(srv.URL, "")

	known, err := bundler.GetUserOperationByHash(context.Background(), "0xknown")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = bundler.GetUserOperationByHash(context.Background(), "0xunknown")
	require.NoError(t, err)
	assert.False(t, known)
}

func TestBundlerPing(t *testing.T) {
	srv := newRPCServer(t)
	entryPoints := []string{"0x5ff137d4b0fdcd49dca30c7cf57e578a026d2789"}
	srv.on("eth_supportedEntryPoints", func([]json.RawMessage) (interface{}, *utils.RPCError) {
		return entryPoints, nil
	})

	bundler := newTestBundler(srv.URL, "")
	assert.NoError(t, bundler.Ping(context.Background()))

	entryPoints = []string{"0x0000000071727De22E5E9d8baF0edAc6f37da032"}
	assert.ErrorContains(t, bundler.Ping(context.Background()), "does not support entry point")
}

func TestBundlerRequestGasAndPaymasterData(t *testing.T) {
	srv := newRPCServer(t)
	srv.on("alchemy_requestGasAndPaymasterAndData", func([]json.RawMessage) (interface{}, *utils.RPCError) {
		return map[string]string{
			"paymasterAndData":     "0x4fd9098af9ddcb41da48a1d78f91f1398965addc",
			"callGasLimit":         "0x1e8480",
			"verificationGasLimit": "0x0186a0",
			"preVerificationGas":   "0xb5a0",
			"maxFeePerGas":         "0x04a817c800",
			"maxPriorityFeePerGas": "0x77359400",
		}, nil
	})

	result, err := newTestBundler(srv.URL, "policy-123").RequestGasAndPaymasterData(context.Background(), sampleOp(), &GasOverrides{
		CallGasLimit: big.NewInt(2_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, common.FromHex("0x4fd9098af9ddcb41da48a1d78f91f1398965addc"), result.PaymasterAndData)
	assert.Equal(t, int64(2_000_000), result.CallGasLimit.Int64())
	assert.Equal(t, "20000000000", result.MaxFeePerGas.String())
	assert.Equal(t, "2000000000", result.MaxPriorityFeePerGas.String())

	var request map[string]interface{}
	require.NoError(t, json.Unmarshal(srv.lastRequest().Params[0], &request))
	assert.Equal(t, "policy-123", request["policyId"])
	assert.Equal(t, testEntryPoint, request["entryPoint"])
	assert.Equal(t, map[string]interface{}{"callGasLimit": "0x1e8480"}, request["overrides"])
}

func TestBundlerPaymasterRequiresPolicy(t *testing.T) {
	_, err := newTestBundler("http://127.0.0.1:0", "").RequestGasAndPaymasterData(context.Background(), sampleOp(), nil)
	assert.Equal(t, ClassPaymaster, Classify(err))
}
