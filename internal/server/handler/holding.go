package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// HoldingService defines what the holding handler requires from the service
// layer.
type HoldingService interface {
	Principal(ctx context.Context, account domain.Account) uint64
}

// HoldingHandler serves principal balance queries.
type HoldingHandler struct {
	holdings HoldingService
	logger   *slog.Logger
}

// NewHoldingHandler creates a HoldingHandler.
func NewHoldingHandler(holdings HoldingService, logger *slog.Logger) *HoldingHandler {
	return &HoldingHandler{holdings: holdings, logger: logger}
}

// holdingResponse wraps a single principal query result.
type holdingResponse struct {
	Account   string `json:"account"`
	Principal uint64 `json:"principal"`
}

// GetHolding returns an account's principal balance. Unknown accounts report
// zero; the query never fails.
// GET /api/holdings/{account}
func (h *HoldingHandler) GetHolding(w http.ResponseWriter, r *http.Request) {
	account, err := parseAccount("account", pathParam(r, "account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, holdingResponse{
		Account:   account.Hex(),
		Principal: h.holdings.Principal(r.Context(), account),
	})
}
