package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/arefy/economyd/internal/ledger"
	"github.com/arefy/economyd/internal/services/economy"
	"github.com/arefy/economyd/internal/storage"
	"github.com/go-chi/chi/v5"
)

// HandlerProvider wraps the economy Service and exposes HTTP handlers.
type HandlerProvider struct {
	svc *economy.Service
}

// NewHandler returns a new Handler provider.
func NewHandler(svc *economy.Service) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)

		http.Error(w, `{"error":"internal json encode failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

const maxIdentityLen = 64

// parseIdentity reads `{identity}` from chi routes like:
//
//	GET  /player/{identity}/balance
//	POST /admin/player/{identity}/set
func parseIdentity(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "identity"))
	if id == "" {
		return "", errors.New("missing identity")
	}

	if len(id) > maxIdentityLen {
		return "", errors.New("identity too long")
	}

	return id, nil
}

// callerKey identifies the external caller for rate limiting: the
// X-Caller-Id header when present, the remote host otherwise.
func callerKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("X-Caller-Id"))
	if key != "" {
		return key
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB cap
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}

		return errors.New("invalid JSON")
	}

	return nil
}

func transferStatus(res ledger.Result) int {
	switch res {
	case ledger.ResultSuccess:
		return http.StatusOK
	case ledger.ResultInsufficientFunds, ledger.ResultRecipientMaxBalance:
		return http.StatusConflict
	default: // SELF_TRANSFER, INVALID_AMOUNT
		return http.StatusBadRequest
	}
}

// --- Handlers ---

// GetBalanceHandler handles GET /player/{identity}/balance.
// Unknown identities report the configured starting balance without an
// account being created.
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := parseIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity in path")
		return
	}

	bal := h.svc.Balance(identity)

	resp := map[string]any{
		"identity": identity,
		"balance":  ledger.FormatAmount(bal),
		"display":  h.svc.Config().Format(bal),
	}

	acc, ok := h.svc.PlayerBalance(identity)
	if ok && acc.Name != "" {
		resp["name"] = acc.Name
	}

	writeJSON(w, http.StatusOK, resp)
}

type joinRequest struct {
	Name string `json:"name"`
}

// PlayerJoinHandler handles POST /player/{identity}/join, the host-runtime
// callback fired when a player enters the world.
func (h *HandlerProvider) PlayerJoinHandler(w http.ResponseWriter, r *http.Request) {
	identity, err := parseIdentity(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid identity in path")
		return
	}

	var req joinRequest

	err = decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = h.svc.HandlePlayerJoin(r.Context(), identity, strings.TrimSpace(req.Name))
	if err != nil {
		slog.Error("player join failed", "identity", identity, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type transferRequest struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
}

// TransferHandler handles POST /transfer. Calls are rate limited per
// caller; a denied call changes nothing and returns 429.
func (h *HandlerProvider) TransferHandler(w http.ResponseWriter, r *http.Request) {
	var req transferRequest

	err := decodeBody(w, r, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Source == "" || req.Destination == "" {
		writeError(w, http.StatusBadRequest, "source and destination required")
		return
	}

	amount, err := ledger.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "Player payment"
	}

	res, err := h.svc.TransferFrom(r.Context(), callerKey(r), req.Source, req.Destination, amount, reason)
	if err != nil {
		if errors.Is(err, economy.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	writeJSON(w, transferStatus(res), map[string]string{"result": string(res)})
}

// BaltopHandler handles GET /baltop?limit=N.
func (h *HandlerProvider) BaltopHandler(w http.ResponseWriter, r *http.Request) {
	limit := 10

	raw := r.URL.Query().Get("limit")
	if raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}

		limit = n
	}

	top := h.svc.TopBalances(r.Context(), limit)

	type row struct {
		Rank     int    `json:"rank"`
		Identity string `json:"identity"`
		Name     string `json:"name,omitempty"`
		Balance  string `json:"balance"`
	}

	rows := make([]row, 0, len(top))
	for i, acc := range top {
		rows = append(rows, row{
			Rank:     i + 1,
			Identity: acc.Identity,
			Name:     acc.Name,
			Balance:  ledger.FormatAmount(acc.Balance),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"top": rows})
}

// StatsHandler handles GET /stats.
func (h *HandlerProvider) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := h.svc.Stats()

	writeJSON(w, http.StatusOK, map[string]any{
		"totalCirculating": ledger.FormatAmount(stats.TotalCirculating),
		"accounts":         stats.Accounts,
		"averageBalance":   ledger.FormatAmount(stats.AverageBalance),
	})
}

// TransactionsHandler handles GET /transactions?player=&page=&pageSize=.
// Only the relational backend keeps a transaction log; others answer 501.
func (h *HandlerProvider) TransactionsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := storage.LogFilter{Player: strings.TrimSpace(q.Get("player"))}

	var err error

	if raw := q.Get("page"); raw != "" {
		filter.Page, err = strconv.Atoi(raw)
		if err != nil || filter.Page < 1 {
			writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
	}

	if raw := q.Get("pageSize"); raw != "" {
		filter.PageSize, err = strconv.Atoi(raw)
		if err != nil || filter.PageSize < 1 || filter.PageSize > 100 {
			writeError(w, http.StatusBadRequest, "invalid pageSize")
			return
		}
	}

	recs, err := h.svc.Transactions(r.Context(), filter)
	if err != nil {
		if errors.Is(err, economy.ErrUnsupported) {
			writeError(w, http.StatusNotImplemented, "transaction log not supported by configured storage backend")
			return
		}

		slog.Error("transaction log read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")

		return
	}

	type row struct {
		ID          string `json:"id"`
		Source      string `json:"source,omitempty"`
		Destination string `json:"destination"`
		Amount      string `json:"amount"`
		Fee         string `json:"fee"`
		Reason      string `json:"reason"`
		Outcome     string `json:"outcome"`
		CreatedAt   string `json:"createdAt"`
	}

	rows := make([]row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, row{
			ID:          rec.ID,
			Source:      rec.Source,
			Destination: rec.Destination,
			Amount:      ledger.FormatAmount(rec.Amount),
			Fee:         ledger.FormatAmount(rec.Fee),
			Reason:      rec.Reason,
			Outcome:     rec.Outcome,
			CreatedAt:   rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": rows})
}
