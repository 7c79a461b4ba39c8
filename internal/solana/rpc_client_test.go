package solana

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer returns a JSON-RPC server answering every call with handler's result.
func rpcServer(t *testing.T, method string, handler func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		if req.Method != method {
			t.Errorf("expected method %s, got %s", method, req.Method)
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handler(req),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetBalance(t *testing.T) {
	server := rpcServer(t, "getBalance", func(req rpcRequest) interface{} {
		if req.Params[0] != "owner111" {
			t.Errorf("expected address owner111, got %v", req.Params[0])
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   uint64(2_500_000_000),
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	lamports, err := client.GetBalance(context.Background(), "owner111")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}

	if lamports != 2_500_000_000 {
		t.Errorf("expected 2500000000 lamports, got %d", lamports)
	}
}

func TestHTTPClient_GetProgramAccounts(t *testing.T) {
	server := rpcServer(t, "getProgramAccounts", func(req rpcRequest) interface{} {
		config, ok := req.Params[1].(map[string]interface{})
		if !ok {
			t.Errorf("expected config object, got %T", req.Params[1])
			return nil
		}
		if config["encoding"] != "jsonParsed" {
			t.Errorf("expected jsonParsed encoding, got %v", config["encoding"])
		}
		filters, _ := config["filters"].([]interface{})
		if len(filters) != 2 {
			t.Errorf("expected 2 filters, got %d", len(filters))
		}

		return []interface{}{
			map[string]interface{}{
				"pubkey": "tokenAcc1",
				"account": map[string]interface{}{
					"lamports": 2039280,
					"owner":    TokenProgramID,
					"data": map[string]interface{}{
						"program": "spl-token",
						"parsed": map[string]interface{}{
							"type": "account",
							"info": map[string]interface{}{
								"mint":  "mintAAA",
								"owner": "owner111",
								"state": "initialized",
								"tokenAmount": map[string]interface{}{
									"amount":         "1500000",
									"decimals":       6,
									"uiAmount":       1.5,
									"uiAmountString": "1.5",
								},
							},
						},
						"space": 165,
					},
				},
			},
			// Raw-encoded accounts carry no parsed info.
			map[string]interface{}{
				"pubkey": "rawAcc",
				"account": map[string]interface{}{
					"lamports": 1,
					"owner":    TokenProgramID,
					"data":     []string{"AAAA", "base64"},
				},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	accounts, err := client.GetProgramAccounts(context.Background(), TokenProgramID, []AccountFilter{
		{DataSize: TokenAccountSize},
		{Memcmp: &Memcmp{Offset: TokenAccountOwnerOffset, Bytes: "owner111"}},
	})
	if err != nil {
		t.Fatalf("GetProgramAccounts: %v", err)
	}

	if len(accounts) != 2 {
		t.Fatalf("expected 2 accounts, got %d", len(accounts))
	}

	info, err := accounts[0].Account.TokenAccount()
	if err != nil {
		t.Fatalf("TokenAccount: %v", err)
	}
	if info.Mint != "mintAAA" {
		t.Errorf("expected mint mintAAA, got %s", info.Mint)
	}
	if info.TokenAmount.Decimals != 6 {
		t.Errorf("expected decimals 6, got %d", info.TokenAmount.Decimals)
	}
	if info.TokenAmount.UIAmountString != "1.5" {
		t.Errorf("expected uiAmountString 1.5, got %s", info.TokenAmount.UIAmountString)
	}

	if _, err := accounts[1].Account.TokenAccount(); err == nil {
		t.Error("expected error for raw account")
	}
}

func TestHTTPClient_GetAccountInfo_NotFound(t *testing.T) {
	server := rpcServer(t, "getAccountInfo", func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value":   nil,
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	info, err := client.GetAccountInfo(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil for missing account, got %+v", info)
	}
}

func TestHTTPClient_GetAccountInfo(t *testing.T) {
	server := rpcServer(t, "getAccountInfo", func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": map[string]interface{}{
				"lamports":   5616720,
				"owner":      TokenMetadataProgramID,
				"data":       []string{"BAAA", "base64"},
				"executable": false,
				"rentEpoch":  361,
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	info, err := client.GetAccountInfo(context.Background(), "metaPDA")
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if info == nil {
		t.Fatal("expected account info, got nil")
	}
	if info.Owner != TokenMetadataProgramID {
		t.Errorf("expected owner %s, got %s", TokenMetadataProgramID, info.Owner)
	}
	if info.Data != "BAAA" {
		t.Errorf("expected data BAAA, got %s", info.Data)
	}
}

func TestHTTPClient_GetLatestBlockhash(t *testing.T) {
	server := rpcServer(t, "getLatestBlockhash", func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 1},
			"value": map[string]interface{}{
				"blockhash":            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
				"lastValidBlockHeight": 3090,
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	hash, err := client.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if hash != "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N" {
		t.Errorf("unexpected blockhash %s", hash)
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	server := rpcServer(t, "sendTransaction", func(req rpcRequest) interface{} {
		if req.Params[0] != "AQID" {
			t.Errorf("expected payload AQID, got %v", req.Params[0])
		}
		return "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	sig, err := client.SendTransaction(context.Background(), "AQID")
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}
	if sig == "" {
		t.Error("expected signature")
	}
}

func TestHTTPClient_SendTransaction_RPCErrorNotRetried(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount.Add(1)

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32002,
				"message": "Transaction simulation failed: Attempt to debit an account but found no record of a prior credit.",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithMaxRetries(3), WithRetryDelay(time.Millisecond))

	_, err := client.SendTransaction(context.Background(), "AQID")
	if err == nil {
		t.Fatal("expected error")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected *RPCError, got %T", err)
	}
	if rpcErr.Code != -32002 {
		t.Errorf("expected code -32002, got %d", rpcErr.Code)
	}

	if requestCount.Load() != 1 {
		t.Errorf("expected 1 request (no retry), got %d", requestCount.Load())
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, "getSignatureStatuses", func(req rpcRequest) interface{} {
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 82},
			"value": []interface{}{
				map[string]interface{}{
					"slot":               72,
					"confirmations":      10,
					"err":                nil,
					"confirmationStatus": "confirmed",
				},
				nil,
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	statuses, err := client.GetSignatureStatuses(context.Background(), "sigA", "sigB")
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}

	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0] == nil || !statuses[0].Confirmed() {
		t.Errorf("expected first signature confirmed, got %+v", statuses[0])
	}
	if statuses[1] != nil {
		t.Errorf("expected nil status for unknown signature, got %+v", statuses[1])
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"value": 42},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(5),
		WithRetryDelay(10*time.Millisecond),
	)

	lamports, err := client.GetBalance(context.Background(), "owner111")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}

	if lamports != 42 {
		t.Errorf("expected 42, got %d", lamports)
	}

	if requestCount.Load() != 3 {
		t.Errorf("expected 3 requests, got %d", requestCount.Load())
	}
}

func TestHTTPClient_RateLimiting(t *testing.T) {
	var requestCount atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		if count == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]interface{}{"value": map[string]interface{}{"blockhash": "hash1"}},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	hash, err := client.GetLatestBlockhash(context.Background())
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}
	if hash != "hash1" {
		t.Errorf("expected hash1, got %s", hash)
	}

	if requestCount.Load() != 2 {
		t.Errorf("expected 2 requests (1 rate limited + 1 success), got %d", requestCount.Load())
	}
}

func TestHTTPClient_MaxRetriesExceeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(2),
		WithRetryDelay(10*time.Millisecond),
	)

	_, err := client.GetBalance(context.Background(), "owner111")
	if err == nil {
		t.Fatal("expected error after max retries")
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(5),
		WithRetryDelay(100*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.GetBalance(ctx, "owner111")
	if err == nil {
		t.Fatal("expected error on context cancellation")
	}
}
