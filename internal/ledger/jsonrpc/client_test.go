package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jobchain/integrity/internal/ledger"
)

func TestNewRequiresEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := New("  "); err == nil {
		t.Fatal("expected empty endpoint error")
	}
}

func TestSubmitReturnsTransactionRef(t *testing.T) {
	t.Parallel()

	var gotMethod string
	var gotParams rpcParams
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotMethod = req.Method
		gotParams = req.Params
		_ = json.NewEncoder(w).Encode(rpcResponse{Result: "0xabc123"})
	}))
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ref, err := client.Submit(context.Background(), ledger.Event{
		Name:           ledger.EventDistributePaper,
		IdempotencyKey: "vac-1/A",
		Args:           []string{"vac-1", "A", "deadbeef"},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ref != "0xabc123" {
		t.Fatalf("ref = %q, want %q", ref, "0xabc123")
	}
	if gotMethod != submitMethod {
		t.Fatalf("method = %q, want %q", gotMethod, submitMethod)
	}
	if gotParams.Event != ledger.EventDistributePaper || gotParams.IdempotencyKey != "vac-1/A" {
		t.Fatalf("params = %+v, want event and idempotency key forwarded", gotParams)
	}
}

func TestSubmitMapsServerErrorsToUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Submit(context.Background(), ledger.Event{Name: ledger.EventDetectPaperLeak})
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("error = %v, want %v", err, ledger.ErrUnavailable)
	}
}

func TestSubmitMapsRPCErrorToUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(rpcResponse{Error: &rpcError{Code: -32000, Message: "consensus stalled"}})
	}))
	defer server.Close()

	client, err := New(server.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Submit(context.Background(), ledger.Event{Name: ledger.EventDetectMarksAnomaly})
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("error = %v, want %v", err, ledger.ErrUnavailable)
	}
}

func TestSubmitMapsTransportErrorToUnavailable(t *testing.T) {
	t.Parallel()

	// Point at a closed server.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()

	client, err := New(endpoint)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Submit(context.Background(), ledger.Event{Name: ledger.EventDistributePaper})
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Fatalf("error = %v, want %v", err, ledger.ErrUnavailable)
	}
}

func TestSubmitRequiresEventName(t *testing.T) {
	t.Parallel()

	client, err := New("http://127.0.0.1:1")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Submit(context.Background(), ledger.Event{}); err == nil {
		t.Fatal("expected missing event name error")
	}
}
