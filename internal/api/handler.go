// Package api exposes a transfer session over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"solana-transfer-desk/internal/domain"
	"solana-transfer-desk/internal/transfer"
	"solana-transfer-desk/internal/wallet"
)

// Handler serves the holdings, validation and transfer endpoints of one session.
type Handler struct {
	session *transfer.Session
	bg      context.Context // discovery outlives the request that triggered it
	logger  *log.Logger
}

// NewHandler creates a handler. Discovery started by requests runs under ctx.
func NewHandler(ctx context.Context, session *transfer.Session, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Handler{session: session, bg: ctx, logger: logger}
}

// Router returns the API routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/holdings", h.handleHoldings).Methods("GET")
	api.HandleFunc("/holdings/refresh", h.handleRefresh).Methods("POST")
	api.HandleFunc("/validate", h.handleValidate).Methods("POST")
	api.HandleFunc("/transfers", h.handleSubmit).Methods("POST")
	api.HandleFunc("/transfers/confirm-create", h.handleConfirmCreate).Methods("POST")
	api.HandleFunc("/transfers/complete", h.handleComplete).Methods("POST")
	api.HandleFunc("/transfers/close", h.handleClose).Methods("POST")
	api.HandleFunc("/state", h.handleState).Methods("GET")
	api.HandleFunc("/attempts", h.handleAttempts).Methods("GET")

	return r
}

// TransferRequest is the body of /validate and /transfers.
type TransferRequest struct {
	OwnerAccountAddress string `json:"owner_account_address"`
	AssetID             string `json:"asset_id"`
	Recipient           string `json:"recipient"`
	Amount              string `json:"amount"`
}

func (t TransferRequest) key() domain.HoldingKey {
	return domain.HoldingKey{OwnerAccountAddress: t.OwnerAccountAddress, AssetID: t.AssetID}
}

// HoldingView is one holding as rendered to the client.
type HoldingView struct {
	OwnerAccountAddress string          `json:"owner_account_address"`
	AssetID             string          `json:"asset_id"`
	Balance             decimal.Decimal `json:"balance"`
	DecimalPlaces       uint8           `json:"decimal_places"`
	Name                string          `json:"name,omitempty"`
	Symbol              string          `json:"symbol,omitempty"`
	Label               string          `json:"label"`
}

// HoldingsResponse is the JSON response for /holdings.
type HoldingsResponse struct {
	Identity string        `json:"identity"`
	Holdings []HoldingView `json:"holdings"`
}

// StateResponse is the JSON response for /state and the transfer endpoints.
type StateResponse struct {
	AttemptID        string               `json:"attempt_id,omitempty"`
	Phase            transfer.Phase       `json:"phase"`
	Loading          bool                 `json:"loading"`
	Validation       *transfer.Validation `json:"validation,omitempty"`
	AssetID          string               `json:"asset_id,omitempty"`
	Recipient        string               `json:"recipient,omitempty"`
	Amount           string               `json:"amount,omitempty"`
	RecipientAccount string               `json:"recipient_account,omitempty"`
	CreationRef      string               `json:"creation_ref,omitempty"`
	TransferRef      string               `json:"transfer_ref,omitempty"`
	ExplorerLink     string               `json:"explorer_link,omitempty"`
}

// AttemptView is one journal entry.
type AttemptView struct {
	AttemptID    string `json:"attempt_id"`
	Step         string `json:"step"`
	Outcome      string `json:"outcome"`
	Summary      string `json:"summary"`
	Reference    string `json:"reference,omitempty"`
	ExplorerLink string `json:"explorer_link,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

func (h *Handler) handleHoldings(w http.ResponseWriter, r *http.Request) {
	done := h.session.SyncIdentity(h.bg)
	if r.URL.Query().Get("wait") == "true" {
		select {
		case <-done:
		case <-r.Context().Done():
			return
		}
	}

	holdings := h.session.Holdings()
	resp := HoldingsResponse{Identity: h.session.Identity(), Holdings: make([]HoldingView, 0, len(holdings))}
	for _, hd := range holdings {
		resp.Holdings = append(resp.Holdings, HoldingView{
			OwnerAccountAddress: hd.OwnerAccountAddress,
			AssetID:             hd.AssetID,
			Balance:             hd.Balance,
			DecimalPlaces:       hd.DecimalPlaces,
			Name:                hd.Name,
			Symbol:              hd.Symbol,
			Label:               hd.Label(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	h.session.Refresh(h.bg)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	v, err := h.session.Validate(req.key(), req.Recipient, req.Amount)
	if err != nil {
		writeError(w, statusOf(err), err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}
	receipt, err := h.session.Submit(r.Context(), req.key(), req.Recipient, req.Amount)
	h.respond(w, receipt, err)
}

func (h *Handler) handleConfirmCreate(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.session.ConfirmCreate(r.Context())
	h.respond(w, receipt, err)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.session.CompleteTransfer(r.Context())
	h.respond(w, receipt, err)
}

func (h *Handler) handleClose(w http.ResponseWriter, _ *http.Request) {
	h.session.Close()
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := stateResponse(h.session.State(), h.session.Loading())
	if res, ok := h.session.Result(); ok && resp.ExplorerLink == "" {
		resp.TransferRef = res.Reference
		resp.ExplorerLink = res.ExplorerLink
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAttempts(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = n
	}

	records, err := h.session.Attempts(r.Context(), limit)
	if err != nil {
		h.logger.Printf("list attempts: %v", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	views := make([]AttemptView, 0, len(records))
	for _, rec := range records {
		views = append(views, AttemptView{
			AttemptID:    rec.AttemptID,
			Step:         string(rec.Step),
			Outcome:      string(rec.Outcome),
			Summary:      rec.Summary(),
			Reference:    rec.Reference,
			ExplorerLink: rec.ExplorerLink,
			CreatedAt:    rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) respond(w http.ResponseWriter, receipt transfer.Receipt, err error) {
	resp := stateResponse(receipt.State, h.session.Loading())
	resp.AttemptID = receipt.AttemptID
	if receipt.Validation != (transfer.Validation{}) || receipt.AttemptID == "" {
		v := receipt.Validation
		resp.Validation = &v
	}
	if receipt.Result != nil {
		resp.TransferRef = receipt.Result.Reference
		resp.ExplorerLink = receipt.Result.ExplorerLink
	}

	if err != nil {
		h.logger.Printf("transfer: %v", err)
		writeJSON(w, statusOf(err), struct {
			Error string `json:"error"`
			StateResponse
		}{err.Error(), resp})
		return
	}
	if resp.Validation != nil && !resp.Validation.OK() {
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func stateResponse(st transfer.State, loading bool) StateResponse {
	if st == nil {
		st = transfer.NotInitialized{}
	}
	resp := StateResponse{Phase: st.Phase(), Loading: loading}
	if req, ok := transfer.RequestOf(st); ok {
		resp.AssetID = req.Holding.AssetID
		resp.Recipient = req.Recipient
		resp.Amount = req.Amount.String()
	}
	switch v := st.(type) {
	case transfer.Initialized:
		resp.RecipientAccount = v.RecipientAccount
	case transfer.Success:
		resp.CreationRef = v.CreationRef
		resp.ExplorerLink = v.ExplorerLink
	case transfer.Completed:
		resp.TransferRef = v.TransferRef
		resp.ExplorerLink = v.ExplorerLink
	}
	return resp
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, transfer.ErrHoldingNotFound):
		return http.StatusNotFound
	case errors.Is(err, transfer.ErrAttemptInFlight),
		errors.Is(err, transfer.ErrInvalidTransition),
		errors.Is(err, transfer.ErrStaleAttempt),
		errors.Is(err, wallet.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, transfer.ErrInvalidAmount),
		errors.Is(err, transfer.ErrAmountPrecision),
		errors.Is(err, transfer.ErrAmountOverflow):
		return http.StatusUnprocessableEntity
	case errors.Is(err, wallet.ErrSubmissionFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (TransferRequest, bool) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request"))
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
