package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/arefy/economyd/internal/ledger"
)

// Admin handlers back the privileged operator surface: give/take/set/reset
// and force save. Authorization is the reverse proxy's concern; these
// routes are expected to be reachable only from the trusted network.

type adjustRequest struct {
	Amount string `json:"amount"`
	Reason string `json:"reason"`
}

func adminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "insufficient funds")
	case errors.Is(err, ledger.ErrMaxBalance):
		writeError(w, http.StatusConflict, "maximum balance exceeded")
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "invalid amount")
	case errors.Is(err, ledger.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "shutting down")
	default:
		slog.Error("admin operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// AdjustBalanceHandler handles POST /admin/player/{identity}/adjust with a
// signed decimal amount: positive gives, negative takes.
func (h *HandlerProvider) AdjustBalanceHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := parseIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity in path")
		return
	}

	var req adjustRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	delta, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "admin adjustment"
	}

	newBal, err := h.svc.Adjust(r.Context(), identity, delta, reason)
	if err != nil {
		adminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"identity": identity,
		"balance":  ledger.FormatAmount(newBal),
	})
}

// SetBalanceHandler handles POST /admin/player/{identity}/set.
func (h *HandlerProvider) SetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := parseIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity in path")
		return
	}

	var req adjustRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	value, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "admin set"
	}

	newBal, err := h.svc.SetBalance(r.Context(), identity, value, reason)
	if err != nil {
		adminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"identity": identity,
		"balance":  ledger.FormatAmount(newBal),
	})
}

// ResetBalanceHandler handles POST /admin/player/{identity}/reset.
func (h *HandlerProvider) ResetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := parseIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity in path")
		return
	}

	newBal, err := h.svc.ResetBalance(r.Context(), identity)
	if err != nil {
		adminError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"identity": identity,
		"balance":  ledger.FormatAmount(newBal),
	})
}

// ForceSaveHandler handles POST /admin/save.
func (h *HandlerProvider) ForceSaveHandler(w http.ResponseWriter, r *http.Request) {
	err := h.svc.ForceSave(r.Context())
	if err != nil {
		slog.Error("force save failed", "error", err)
		writeError(w, http.StatusInternalServerError, "save failed")

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
