package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// Transport performs one JSON-RPC exchange against one endpoint and returns
// the raw response envelope.
type Transport interface {
	Call(ctx context.Context, endpoint, method string, params []interface{}) ([]byte, error)
}

// Request represents a JSON-RPC request
type Request struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// Response represents a JSON-RPC response envelope
type Response struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *jsonrpc.RPCError `json:"error,omitempty"`
}

// StatusError is returned for a non-2xx HTTP reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.Code, e.Body)
}

var requestID atomic.Uint64

// HTTPTransport speaks JSON-RPC over plain net/http.
type HTTPTransport struct {
	client  *http.Client
	headers map[string]string
}

// NewHTTPTransport creates a transport with the given timeout and extra headers.
func NewHTTPTransport(timeout time.Duration, headers map[string]string) *HTTPTransport {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		client:  &http.Client{Timeout: timeout},
		headers: headers,
	}
}

func (t *HTTPTransport) Call(ctx context.Context, endpoint, method string, params []interface{}) ([]byte, error) {
	body, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(responseBody), 200)}
	}
	return responseBody, nil
}

// SDKTransport routes calls through the solana-go RPC client. The unwrapped
// result is re-wrapped into an envelope so the pool decodes both transports
// the same way.
type SDKTransport struct {
	headers map[string]string
}

func NewSDKTransport(headers map[string]string) *SDKTransport {
	return &SDKTransport{headers: headers}
}

func (t *SDKTransport) Call(ctx context.Context, endpoint, method string, params []interface{}) ([]byte, error) {
	var cl *rpc.Client
	if len(t.headers) > 0 {
		cl = rpc.NewWithHeaders(endpoint, t.headers)
	} else {
		cl = rpc.New(endpoint)
	}
	defer cl.Close()

	var result json.RawMessage
	err := cl.RPCCallForInto(ctx, &result, method, params)

	var rpcErr *jsonrpc.RPCError
	switch {
	case errors.As(err, &rpcErr):
		return json.Marshal(Response{JSONRPC: "2.0", Error: rpcErr})
	case err != nil:
		return nil, err
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	return json.Marshal(Response{JSONRPC: "2.0", Result: result})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
