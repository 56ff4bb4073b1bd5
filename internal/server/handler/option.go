package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// OptionService defines what the option handler requires from the service
// layer.
type OptionService interface {
	Call(ctx context.Context, caller, holder domain.Account, data []byte) (domain.SettlementResult, error)
	Put(ctx context.Context, caller domain.Account, data []byte) (domain.SettlementResult, error)
	Convert(ctx context.Context, caller, holder domain.Account, data []byte) (domain.SettlementResult, error)
	Settlements(ctx context.Context, limit int) ([]domain.SettlementInstruction, error)
}

// OptionHandler serves the embedded-option settlement endpoints.
type OptionHandler struct {
	options OptionService
	logger  *slog.Logger
}

// NewOptionHandler creates an OptionHandler.
func NewOptionHandler(options OptionService, logger *slog.Logger) *OptionHandler {
	return &OptionHandler{options: options, logger: logger}
}

// optionRequest is the body shared by the option mutations. Holder defaults to
// the caller when omitted; put always settles the caller's own holding.
type optionRequest struct {
	Caller string `json:"caller"`
	Holder string `json:"holder"`
	Data   string `json:"data"`
}

func (h *OptionHandler) decode(w http.ResponseWriter, r *http.Request) (req optionRequest, caller, holder domain.Account, ok bool) {
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
	holder = caller
	if req.Holder != "" {
		holder, err = parseAccount("holder", req.Holder)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	return req, caller, holder, true
}

// Call exercises the issuer's call option against one holder.
// POST /api/options/call
func (h *OptionHandler) Call(w http.ResponseWriter, r *http.Request) {
	req, caller, holder, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.options.Call(r.Context(), caller, holder, []byte(req.Data))
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Put exercises the caller's put option on their own holding.
// POST /api/options/put
func (h *OptionHandler) Put(w http.ResponseWriter, r *http.Request) {
	req, caller, _, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.options.Put(r.Context(), caller, []byte(req.Data))
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Convert exchanges a holding for equity.
// POST /api/options/convert
func (h *OptionHandler) Convert(w http.ResponseWriter, r *http.Request) {
	req, caller, holder, ok := h.decode(w, r)
	if !ok {
		return
	}

	res, err := h.options.Convert(r.Context(), caller, holder, []byte(req.Data))
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listSettlementsResponse wraps the settlements listing.
type listSettlementsResponse struct {
	Settlements []domain.SettlementInstruction `json:"settlements"`
}

// ListSettlements returns the most recent settlement instructions.
// GET /api/settlements?limit=50
func (h *OptionHandler) ListSettlements(w http.ResponseWriter, r *http.Request) {
	limit := int(parseUintQuery(r, "limit", 50))
	if limit > 500 {
		limit = 500
	}

	list, err := h.options.Settlements(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list settlements failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list settlements")
		return
	}
	if list == nil {
		list = []domain.SettlementInstruction{}
	}
	writeJSON(w, http.StatusOK, listSettlementsResponse{Settlements: list})
}
