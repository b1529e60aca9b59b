package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenHoldings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Method != "getTokenAccountsByOwner" {
			t.Fatalf("method=%s", req.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"jsonrpc": "2.0",
			"id": 1,
			"result": {
				"value": [
					{"account":{"data":{"parsed":{"info":{
						"mint":"yes1",
						"tokenAmount":{"amount":"15000000","decimals":6,"uiAmountString":"15"}
					}}}}},
					{"account":{"data":{"parsed":{"info":{
						"mint":"no1",
						"tokenAmount":{"amount":"2500000","decimals":6,"uiAmountString":""}
					}}}}},
					{"account":{"data":{"parsed":{"info":{
						"mint":"",
						"tokenAmount":{"amount":"1","decimals":0,"uiAmountString":"1"}
					}}}}}
				]
			}
		}`))
	}))
	defer srv.Close()

	reader := NewSolanaReader(srv.URL, 2*time.Second)
	holdings, err := reader.TokenHoldings(context.Background(), "w1")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(holdings) != 2 {
		t.Fatalf("holdings=%d want 2, blank mint skipped", len(holdings))
	}

	if holdings[0].Mint != "yes1" || holdings[0].Balance.String() != "15" {
		t.Fatalf("first holding=%+v", holdings[0])
	}
	// Missing uiAmountString falls back to shifting the raw amount.
	if holdings[1].Mint != "no1" || holdings[1].Balance.String() != "2.5" {
		t.Fatalf("second holding=%+v", holdings[1])
	}
}

func TestTokenHoldings_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"invalid params"}}`))
	}))
	defer srv.Close()

	reader := NewSolanaReader(srv.URL, 2*time.Second)
	if _, err := reader.TokenHoldings(context.Background(), "w1"); err == nil {
		t.Fatalf("expected rpc error")
	}
}

func TestTokenHoldings_BlankWallet(t *testing.T) {
	reader := NewSolanaReader("http://127.0.0.1:1", time.Second)
	if _, err := reader.TokenHoldings(context.Background(), "  "); err == nil {
		t.Fatalf("expected validation error")
	}
}
