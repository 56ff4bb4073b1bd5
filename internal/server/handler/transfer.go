package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// TransferService defines what the transfer handler requires from the service
// layer.
type TransferService interface {
	Transfer(ctx context.Context, from, to domain.Account, amount uint64, data []byte) (domain.Event, error)
	TransferAll(ctx context.Context, from, to domain.Account, data []byte) (domain.Event, error)
	TransferFrom(ctx context.Context, caller, from, to domain.Account, amount uint64, data []byte) (domain.Event, error)
	TransferAllFrom(ctx context.Context, caller, from, to domain.Account, data []byte) (domain.Event, error)
}

// TransferHandler serves the four transfer mutations. The caller field is the
// authenticated identity: it is the from account on plain transfers and the
// spender on delegated transfers.
type TransferHandler struct {
	transfers TransferService
	logger    *slog.Logger
}

// NewTransferHandler creates a TransferHandler.
func NewTransferHandler(transfers TransferService, logger *slog.Logger) *TransferHandler {
	return &TransferHandler{transfers: transfers, logger: logger}
}

// transferRequest is the body shared by the transfer mutations. From is only
// consulted on the delegated variants; Amount is ignored by the -all variants.
// Data is an optional free-form memo recorded on the event.
type transferRequest struct {
	Caller string `json:"caller"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Data   string `json:"data"`
}

func (h *TransferHandler) decode(w http.ResponseWriter, r *http.Request, delegated bool) (req transferRequest, caller, from, to domain.Account, ok bool) {
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	var err error
	caller, err = parseAccount("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err = parseAccount("to", req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if delegated {
		from, err = parseAccount("from", req.From)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	} else {
		from = caller
	}
	return req, caller, from, to, true
}

// Transfer moves amount from the caller's holding.
// POST /api/transfers
func (h *TransferHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	req, _, from, to, ok := h.decode(w, r, false)
	if !ok {
		return
	}

	ev, err := h.transfers.Transfer(r.Context(), from, to, req.Amount, []byte(req.Data))
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// TransferAll moves the caller's entire holding.
// POST /api/transfers/all
func (h *TransferHandler) TransferAll(w http.ResponseWriter, r *http.Request) {
	req, _, from, to, ok := h.decode(w, r, false)
	if !ok {
		return
	}

	ev, err := h.transfers.TransferAll(r.Context(), from, to, []byte(req.Data))
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// TransferFrom moves amount out of another owner's holding against an
// allowance granted to the caller.
// POST /api/transfers/from
func (h *TransferHandler) TransferFrom(w http.ResponseWriter, r *http.Request) {
	req, caller, from, to, ok := h.decode(w, r, true)
	if !ok {
		return
	}

	ev, err := h.transfers.TransferFrom(r.Context(), caller, from, to, req.Amount, []byte(req.Data))
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// TransferAllFrom moves the owner's entire holding against an allowance
// granted to the caller.
// POST /api/transfers/all-from
func (h *TransferHandler) TransferAllFrom(w http.ResponseWriter, r *http.Request) {
	req, caller, from, to, ok := h.decode(w, r, true)
	if !ok {
		return
	}

	ev, err := h.transfers.TransferAllFrom(r.Context(), caller, from, to, []byte(req.Data))
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
