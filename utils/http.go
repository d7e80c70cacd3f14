package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RPCError is a JSON-RPC error object
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("rpc error %d: %s (data: %s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCResponse is a JSON-RPC response envelope
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// ParseJSONRPCResponse decodes a JSON-RPC response into out.
// A JSON-RPC error is returned as *RPCError. A null result leaves out untouched
// and reports found=false.
func ParseJSONRPCResponse(res *http.Response, out interface{}) (found bool, err error) {
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return false, fmt.Errorf("failed to read response body: %w", err)
	}

	var envelope RPCResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false, fmt.Errorf("failed to parse JSON-RPC response (status %d): %s", res.StatusCode, truncate(string(body), 512))
	}

	if envelope.Error != nil {
		return false, envelope.Error
	}

	if res.StatusCode >= http.StatusBadRequest {
		return false, fmt.Errorf("unexpected status %d: %s", res.StatusCode, truncate(string(body), 512))
	}

	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return false, nil
	}

	if out != nil {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return false, fmt.Errorf("failed to decode JSON-RPC result: %w", err)
		}
	}

	return true, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
