package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/bondledgerd/internal/service"
)

// BondService defines what the bond handler requires from the service layer.
type BondService interface {
	Bond(ctx context.Context) service.BondInfo
}

// BondHandler serves the bond metadata endpoint.
type BondHandler struct {
	bonds  BondService
	logger *slog.Logger
}

// NewBondHandler creates a BondHandler.
func NewBondHandler(bonds BondService, logger *slog.Logger) *BondHandler {
	return &BondHandler{bonds: bonds, logger: logger}
}

// GetBond returns the bond terms and current outstanding volume.
// GET /api/bond
func (h *BondHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.bonds.Bond(r.Context()))
}
