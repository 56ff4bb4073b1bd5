package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// AllowanceService defines what the allowance handler requires from the
// service layer.
type AllowanceService interface {
	Approval(ctx context.Context, owner, spender domain.Account) uint64
	Approve(ctx context.Context, owner, spender domain.Account, amount uint64) (domain.Event, error)
	ApproveAll(ctx context.Context, owner, spender domain.Account) (domain.Event, error)
	DecreaseAllowance(ctx context.Context, owner, spender domain.Account, amount uint64) (domain.Event, error)
	DecreaseAllowanceForAll(ctx context.Context, owner, spender domain.Account) (domain.Event, error)
}

// AllowanceHandler serves allowance queries and mutations. The authenticated
// caller is the owner on every mutation; only an owner manages their own
// grants.
type AllowanceHandler struct {
	allowances AllowanceService
	logger     *slog.Logger
}

// NewAllowanceHandler creates an AllowanceHandler.
func NewAllowanceHandler(allowances AllowanceService, logger *slog.Logger) *AllowanceHandler {
	return &AllowanceHandler{allowances: allowances, logger: logger}
}

// approvalResponse wraps an approval query result. Unlimited is set when the
// spender holds an approve-all grant; Remaining then carries the sentinel.
type approvalResponse struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Remaining uint64 `json:"remaining"`
	Unlimited bool   `json:"unlimited"`
}

// GetApproval returns the committed authorization between a pair.
// GET /api/allowances/{owner}/{spender}
func (h *AllowanceHandler) GetApproval(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAccount("owner", pathParam(r, "owner"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spender, err := parseAccount("spender", pathParam(r, "spender"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	v := h.allowances.Approval(r.Context(), owner, spender)
	writeJSON(w, http.StatusOK, approvalResponse{
		Owner:     owner.Hex(),
		Spender:   spender.Hex(),
		Remaining: v,
		Unlimited: v == domain.UnlimitedAllowance,
	})
}

// allowanceRequest is the body shared by the allowance mutations. Amount is
// ignored by approve-all and revoke-all.
type allowanceRequest struct {
	Caller  string `json:"caller"`
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

func (h *AllowanceHandler) decode(w http.ResponseWriter, r *http.Request) (owner, spender domain.Account, amount uint64, ok bool) {
	var req allowanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	owner, err := parseAccount("caller", req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spender, err = parseAccount("spender", req.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	return owner, spender, req.Amount, true
}

// Approve sets a numeric allowance ceiling; zero removes the authorization.
// POST /api/allowances/approve
func (h *AllowanceHandler) Approve(w http.ResponseWriter, r *http.Request) {
	owner, spender, amount, ok := h.decode(w, r)
	if !ok {
		return
	}

	ev, err := h.allowances.Approve(r.Context(), owner, spender, amount)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// ApproveAll grants the spender unlimited authority over the caller's holding.
// POST /api/allowances/approve-all
func (h *AllowanceHandler) ApproveAll(w http.ResponseWriter, r *http.Request) {
	owner, spender, _, ok := h.decode(w, r)
	if !ok {
		return
	}

	ev, err := h.allowances.ApproveAll(r.Context(), owner, spender)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Decrease reduces a numeric allowance ceiling.
// POST /api/allowances/decrease
func (h *AllowanceHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	owner, spender, amount, ok := h.decode(w, r)
	if !ok {
		return
	}

	ev, err := h.allowances.DecreaseAllowance(r.Context(), owner, spender, amount)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// RevokeAll removes the spender's entire authorization, numeric or unlimited.
// Idempotent.
// POST /api/allowances/revoke-all
func (h *AllowanceHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	owner, spender, _, ok := h.decode(w, r)
	if !ok {
		return
	}

	ev, err := h.allowances.DecreaseAllowanceForAll(r.Context(), owner, spender)
	if err != nil {
		writeLedgerError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}
