package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/bondledgerd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeLedgerError maps the ledger error taxonomy onto HTTP status codes.
// Unrecognized errors are logged and reported as a 500 without detail.
func writeLedgerError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnsupportedOperation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrInsufficientAllowance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrMaturityExpired),
		errors.Is(err, domain.ErrNoHolding):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	default:
		logger.ErrorContext(r.Context(), "handler: operation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// parseAccount validates and parses a 0x-prefixed hex account address.
func parseAccount(field, s string) (domain.Account, error) {
	if !common.IsHexAddress(s) {
		return domain.Account{}, fmt.Errorf("%s: %q is not a valid account address", field, s)
	}
	return domain.HexToAccount(s), nil
}

// parseUintQuery reads an unsigned integer query parameter, returning def when
// the parameter is absent or malformed.
func parseUintQuery(r *http.Request, name string, def uint64) uint64 {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// pathParam extracts a named path parameter using Go 1.22+ built-in routing.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
