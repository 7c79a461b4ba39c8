package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-transfer-desk/internal/discovery"
	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/solana"
	"solana-transfer-desk/internal/solana/stub"
	"solana-transfer-desk/internal/storage/memory"
	"solana-transfer-desk/internal/transfer"
	"solana-transfer-desk/internal/wallet"
)

type testServer struct {
	*httptest.Server
	rpc       *stub.RPCClient
	identity  string
	recipient string
	mint      string
	tokenAcct string
}

func associatedAccount(t *testing.T, owner, mint string) string {
	t.Helper()
	addr, _, err := solanago.FindAssociatedTokenAddress(
		solanago.MustPublicKeyFromBase58(owner),
		solanago.MustPublicKeyFromBase58(mint),
	)
	require.NoError(t, err)
	return addr.String()
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	rpc := stub.NewRPCClient()
	key := solanago.NewWallet().PrivateKey
	identity := key.PublicKey().String()
	mint := solanago.NewWallet().PublicKey().String()
	tokenAcct := associatedAccount(t, identity, mint)

	rpc.Balances[identity] = 2_500_000_000
	rpc.AddTokenAccount(identity, tokenAcct, mint, "100000000", "100", 6)

	w := wallet.NewKeypair(key, rpc)
	tracker := discovery.NewTracker(discovery.NewDiscoverer(rpc, nil, nil, nil), discovery.NewBook())
	session := transfer.NewSession(w, tracker, transfer.NewBuilder(rpc, w, domain.ClusterDevnet, nil),
		transfer.WithAttemptStore(memory.NewAttemptStore()),
		transfer.WithCloseDelay(10*time.Millisecond),
	)

	srv := httptest.NewServer(NewHandler(context.Background(), session, nil).Router())
	t.Cleanup(srv.Close)

	return &testServer{
		Server:    srv,
		rpc:       rpc,
		identity:  identity,
		recipient: solanago.NewWallet().PublicKey().String(),
		mint:      mint,
		tokenAcct: tokenAcct,
	}
}

func (s *testServer) get(t *testing.T, path string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) post(t *testing.T, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(s.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) loadHoldings(t *testing.T) HoldingsResponse {
	t.Helper()
	var resp HoldingsResponse
	require.Equal(t, http.StatusOK, s.get(t, "/api/holdings?wait=true", &resp))
	return resp
}

type errorResponse struct {
	Error string `json:"error"`
	StateResponse
}

func TestHoldings(t *testing.T) {
	s := newTestServer(t)

	resp := s.loadHoldings(t)
	assert.Equal(t, s.identity, resp.Identity)
	require.Len(t, resp.Holdings, 2)

	byAsset := map[string]HoldingView{}
	for _, h := range resp.Holdings {
		byAsset[h.AssetID] = h
	}
	native := byAsset[domain.NativeAssetID]
	assert.Equal(t, "2.5", native.Balance.String())
	assert.Equal(t, "Solana", native.Label)

	token := byAsset[s.mint]
	assert.Equal(t, s.tokenAcct, token.OwnerAccountAddress)
	assert.Equal(t, "100", token.Balance.String())
	assert.Equal(t, "Token-"+s.mint[:10], token.Label)
}

func TestValidate(t *testing.T) {
	s := newTestServer(t)
	s.loadHoldings(t)

	var v transfer.Validation
	status := s.post(t, "/api/validate", TransferRequest{
		OwnerAccountAddress: s.identity,
		AssetID:             domain.NativeAssetID,
		Recipient:           "not-an-address",
		Amount:              "5",
	}, &v)
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, v.AddressValid)
	assert.False(t, v.AmountValid)

	var e errorResponse
	status = s.post(t, "/api/validate", TransferRequest{OwnerAccountAddress: "x", AssetID: "y"}, &e)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, e.Error, "holding not found")
}

func TestNativeTransfer(t *testing.T) {
	s := newTestServer(t)
	s.loadHoldings(t)

	var resp StateResponse
	status := s.post(t, "/api/transfers", TransferRequest{
		OwnerAccountAddress: s.identity,
		AssetID:             domain.NativeAssetID,
		Recipient:           s.recipient,
		Amount:              "1",
	}, &resp)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, transfer.PhaseNotInitialized, resp.Phase)
	assert.Equal(t, "sig1", resp.TransferRef)
	assert.Equal(t, "https://explorer.solana.com/tx/sig1?cluster=devnet", resp.ExplorerLink)
	assert.False(t, resp.Loading)

	var state StateResponse
	s.get(t, "/api/state", &state)
	assert.Equal(t, resp.ExplorerLink, state.ExplorerLink)

	var attempts []AttemptView
	require.Equal(t, http.StatusOK, s.get(t, "/api/attempts", &attempts))
	require.Len(t, attempts, 1)
	assert.Equal(t, "SUCCESS", attempts[0].Outcome)
	assert.Equal(t, "Transferred 1 SOL to "+s.recipient, attempts[0].Summary)
}

func TestInvalidTransferRejected(t *testing.T) {
	s := newTestServer(t)
	s.loadHoldings(t)

	var resp StateResponse
	status := s.post(t, "/api/transfers", TransferRequest{
		OwnerAccountAddress: s.identity,
		AssetID:             domain.NativeAssetID,
		Recipient:           s.recipient,
		Amount:              "10",
	}, &resp)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	require.NotNil(t, resp.Validation)
	assert.True(t, resp.Validation.AddressValid)
	assert.False(t, resp.Validation.AmountValid)
	assert.Zero(t, s.rpc.SentCount())
}

func TestAccountCreationFlow(t *testing.T) {
	s := newTestServer(t)
	s.loadHoldings(t)

	req := TransferRequest{OwnerAccountAddress: s.tokenAcct, AssetID: s.mint, Recipient: s.recipient, Amount: "40"}
	recipientATA := associatedAccount(t, s.recipient, s.mint)

	var resp StateResponse
	require.Equal(t, http.StatusOK, s.post(t, "/api/transfers", req, &resp))
	assert.Equal(t, transfer.PhaseInitialized, resp.Phase)
	assert.Equal(t, recipientATA, resp.RecipientAccount)
	assert.Equal(t, "40", resp.Amount)

	require.Equal(t, http.StatusOK, s.post(t, "/api/transfers/confirm-create", nil, &resp))
	assert.Equal(t, transfer.PhaseSuccess, resp.Phase)
	assert.Equal(t, "sig1", resp.CreationRef)

	s.rpc.SetAccount(recipientATA, &solana.AccountInfo{Owner: solana.TokenProgramID})

	require.Equal(t, http.StatusOK, s.post(t, "/api/transfers/complete", nil, &resp))
	assert.Equal(t, transfer.PhaseCompleted, resp.Phase)
	assert.Equal(t, "sig2", resp.TransferRef)

	assert.Equal(t, http.StatusAccepted, s.post(t, "/api/transfers/close", nil, nil))
	assert.Eventually(t, func() bool {
		var st StateResponse
		s.get(t, "/api/state", &st)
		return st.Phase == transfer.PhaseNotInitialized
	}, time.Second, 10*time.Millisecond)
}

func TestOutOfOrderStep(t *testing.T) {
	s := newTestServer(t)
	s.loadHoldings(t)

	var e errorResponse
	status := s.post(t, "/api/transfers/complete", nil, &e)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, e.Error, "invalid state transition")
	assert.Equal(t, transfer.PhaseNotInitialized, e.Phase)
}

func TestBadRequests(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Post(s.URL+"/api/transfers", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, http.StatusBadRequest, s.get(t, "/api/attempts?limit=abc", nil))

	resp, err = http.Get(s.URL + "/api/transfers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
