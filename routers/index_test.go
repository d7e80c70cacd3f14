package routers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/NEDA-LABS/mintrelay/config"
	"github.com/NEDA-LABS/mintrelay/services"
	"github.com/NEDA-LABS/mintrelay/types"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type stubEngine struct{}

func (stubEngine) Mint(ctx context.Context, req services.MintRequest) (*types.SubmissionOutcome, error) {
	return nil, services.ErrInvalidIntent
}

func (stubEngine) Dispatch(ctx context.Context, intent types.TransactionIntent, opts types.DispatchOptions) (*types.SubmissionOutcome, error) {
	return nil, services.ErrInvalidIntent
}

func (stubEngine) Receipt(ctx context.Context, key string) (*types.Receipt, error) {
	return nil, services.ErrDispatchNotFound
}

func (stubEngine) Diagnose(ctx context.Context) types.DiagnosticReport {
	return types.DiagnosticReport{BackendReachable: true}
}

func (stubEngine) IsHealthy(ctx context.Context) bool {
	return true
}

func newTestRouter(limit uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, stubEngine{}, &config.ServerConfiguration{RateLimitPerSecond: limit})
	return router
}

func get(router *gin.Engine, path string) int {
	req, _ := http.NewRequest("GET", path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRegisterRoutes(t *testing.T) {
	router := newTestRouter(0)

	assert.Equal(t, http.StatusOK, get(router, "/health"))
	assert.Equal(t, http.StatusOK, get(router, "/v1/diagnostics"))
	assert.Equal(t, http.StatusNotFound, get(router, "/v1/dispatches/unknown/receipt"))
	assert.Equal(t, http.StatusNotFound, get(router, "/v1/unknown"))
}

func TestRateLimitByClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimitMiddleware(2, time.Minute))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(router, "/ping"))
	assert.Equal(t, http.StatusOK, get(router, "/ping"))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "/ping"))

	req, _ := http.NewRequest("GET", "/ping", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
