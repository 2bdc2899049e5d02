// Package jsonrpc submits ledger events to a JSON-RPC 2.0 endpoint.
package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jobchain/integrity/internal/ledger"
)

// submitMethod is the RPC method recording one integrity event.
const submitMethod = "integrity_recordEvent"

// defaultTimeout caps a single submit round-trip.
const defaultTimeout = 10 * time.Second

// Client submits ledger events over HTTP JSON-RPC.
type Client struct {
	endpoint   string
	httpClient *http.Client
	requestID  atomic.Int64
}

// New creates a ledger client for the given RPC endpoint.
func New(endpoint string) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("ledger endpoint is required")
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}, nil
}

type rpcRequest struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int64     `json:"id"`
	Method  string    `json:"method"`
	Params  rpcParams `json:"params"`
}

type rpcParams struct {
	Event          string   `json:"event"`
	IdempotencyKey string   `json:"idempotencyKey"`
	Args           []string `json:"args"`
}

type rpcResponse struct {
	Result string    `json:"result"`
	Error  *rpcError `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Submit records one event and returns the ledger transaction reference.
// Transport failures and server errors surface as ledger.ErrUnavailable so
// callers can retry with the same idempotency key.
func (c *Client) Submit(ctx context.Context, event ledger.Event) (string, error) {
	if c == nil || c.httpClient == nil {
		return "", fmt.Errorf("ledger client is not configured")
	}
	if strings.TrimSpace(event.Name) == "" {
		return "", fmt.Errorf("event name is required")
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  submitMethod,
		Params: rpcParams{
			Event:          event.Name,
			IdempotencyKey: event.IdempotencyKey,
			Args:           event.Args,
		},
	})
	if err != nil {
		return "", fmt.Errorf("encode rpc request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build rpc request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ledger.ErrUnavailable, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: rpc status %d", ledger.ErrUnavailable, response.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: decode rpc response: %v", ledger.ErrUnavailable, err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("%w: rpc error %d: %s", ledger.ErrUnavailable, decoded.Error.Code, decoded.Error.Message)
	}
	if strings.TrimSpace(decoded.Result) == "" {
		return "", fmt.Errorf("%w: rpc response carried no transaction reference", ledger.ErrUnavailable)
	}
	return decoded.Result, nil
}

var _ ledger.Client = (*Client)(nil)
