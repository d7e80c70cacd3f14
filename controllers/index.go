package controllers

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/NEDA-LABS/mintrelay/services"
	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/NEDA-LABS/mintrelay/utils/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
)

const (
	defaultReceiptTimeout = 60 * time.Second
	maxReceiptTimeout     = 10 * time.Minute
)

// Minter is the engine surface served over HTTP
type Minter interface {
	Mint(ctx context.Context, req services.MintRequest) (*types.SubmissionOutcome, error)
	Dispatch(ctx context.Context, intent types.TransactionIntent, opts types.DispatchOptions) (*types.SubmissionOutcome, error)
	Receipt(ctx context.Context, key string) (*types.Receipt, error)
	Diagnose(ctx context.Context) types.DiagnosticReport
	IsHealthy(ctx context.Context) bool
}

// Controller holds the HTTP handlers of the dispatch API
type Controller struct {
	engine Minter
}

// NewController creates a new instance of Controller
func NewController(engine Minter) *Controller {
	return &Controller{engine: engine}
}

// MintPayload is the body of POST /v1/mint
type MintPayload struct {
	Name                string `json:"name" binding:"required"`
	Description         string `json:"description"`
	Image               string `json:"image"`
	Value               string `json:"value"`
	IdempotencyKey      string `json:"idempotencyKey" binding:"omitempty,max=128"`
	AllowWalletFallback bool   `json:"allowWalletFallback"`
}

// DispatchPayload is the body of POST /v1/dispatch
type DispatchPayload struct {
	Destination         string `json:"destination" binding:"required,eth_addr"`
	Data                string `json:"data" binding:"required"`
	Value               string `json:"value"`
	IdempotencyKey      string `json:"idempotencyKey" binding:"omitempty,max=128"`
	AllowWalletFallback bool   `json:"allowWalletFallback"`
}

// Mint controller mints one NFT through the dispatch cascade
func (ctrl *Controller) Mint(c *gin.Context) {
	var payload MintPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request payload", err, nil)
		return
	}

	value, ok := parseValue(payload.Value)
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid value", errors.New("value must be a non-negative base-10 integer"), nil)
		return
	}

	outcome, err := ctrl.engine.Mint(c.Request.Context(), services.MintRequest{
		Name:           payload.Name,
		Description:    payload.Description,
		Image:          payload.Image,
		Value:          value,
		IdempotencyKey: payload.IdempotencyKey,
		Consent:        consentFor(payload.AllowWalletFallback),
	})
	if err != nil {
		ctrl.handleDispatchError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "success",
		"message": "Transaction submitted",
		"data":    outcome,
	})
}

// Dispatch controller sends a raw intent through the dispatch cascade
func (ctrl *Controller) Dispatch(c *gin.Context) {
	var payload DispatchPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request payload", err, nil)
		return
	}

	data, err := hexutil.Decode(payload.Data)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid call data", err, nil)
		return
	}
	value, ok := parseValue(payload.Value)
	if !ok {
		respondError(c, http.StatusBadRequest, "Invalid value", errors.New("value must be a non-negative base-10 integer"), nil)
		return
	}

	destination := common.HexToAddress(payload.Destination)
	outcome, err := ctrl.engine.Dispatch(c.Request.Context(), types.TransactionIntent{
		Destination: destination,
		Payload:     data,
		Value:       value,
	}, types.DispatchOptions{
		ContractAddress: destination,
		IdempotencyKey:  payload.IdempotencyKey,
		Consent:         consentFor(payload.AllowWalletFallback),
	})
	if err != nil {
		ctrl.handleDispatchError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "success",
		"message": "Transaction submitted",
		"data":    outcome,
	})
}

// GetReceipt controller waits for the confirmation of a recorded dispatch
func (ctrl *Controller) GetReceipt(c *gin.Context) {
	timeout := defaultReceiptTimeout
	if raw := c.Query("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			respondError(c, http.StatusBadRequest, "Invalid timeout", errors.New("timeout must be a positive duration such as 30s"), nil)
			return
		}
		timeout = min(parsed, maxReceiptTimeout)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	receipt, err := ctrl.engine.Receipt(ctx, c.Param("key"))
	if err != nil {
		ctrl.handleDispatchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Transaction confirmed",
		"data":    receipt,
	})
}

// GetDiagnostics controller returns the advisory account report
func (ctrl *Controller) GetDiagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "Diagnostics fetched",
		"data":    ctrl.engine.Diagnose(c.Request.Context()),
	})
}

// Health controller reports whether the node and bundler are reachable
func (ctrl *Controller) Health(c *gin.Context) {
	if !ctrl.engine.IsHealthy(c.Request.Context()) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (ctrl *Controller) handleDispatchError(c *gin.Context, err error) {
	status := statusFor(err)

	var data interface{}
	var preflightErr *services.PreflightError
	if errors.As(err, &preflightErr) && preflightErr.Funding != nil {
		data = preflightErr.Funding
	}

	if status >= http.StatusInternalServerError {
		logger.WithFields(logger.Fields{
			"Error":  err.Error(),
			"Status": status,
			"Path":   c.FullPath(),
		}).Errorf("Dispatch request failed")
	}

	respondError(c, status, services.UserMessage(err), err, data)
}

// statusFor maps a dispatch error to an HTTP status
func statusFor(err error) int {
	var preflightErr *services.PreflightError
	switch {
	case errors.As(err, &preflightErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrPreflightUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidIntent):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrDispatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrUserDeclined):
		return http.StatusConflict
	case errors.Is(err, services.ErrConfirmationPending):
		return http.StatusGatewayTimeout
	}

	var exhaustedErr *services.AllExhaustedError
	if errors.As(err, &exhaustedErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, status int, message string, err error, data interface{}) {
	body := gin.H{
		"status":  "error",
		"message": message,
		"error":   err.Error(),
	}
	if data != nil {
		body["data"] = data
	}
	c.JSON(status, body)
}

// consentFor approves the wallet-funded fallback only when the caller opted in
func consentFor(allow bool) types.ConsentFunc {
	if !allow {
		return nil
	}
	return func(ctx context.Context, req types.ConsentRequest) (bool, error) {
		logger.WithFields(logger.Fields{
			"Signer":      req.Signer.Hex(),
			"Destination": req.Destination.Hex(),
			"GasLimit":    req.GasLimit,
		}).Infof("Wallet-funded fallback approved by request")
		return true, nil
	}
}

func parseValue(raw string) (*big.Int, bool) {
	if raw == "" {
		return new(big.Int), true
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok || value.Sign() < 0 {
		return nil, false
	}
	return value, true
}
