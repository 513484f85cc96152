package api

import (
	"net/http"

	"github.com/arefy/economyd/internal/services/economy"
	"github.com/go-chi/chi/v5"
)

// NewRouter constructs the HTTP routing table for the economy service.
func NewRouter(svc *economy.Service) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/player/{identity}/balance", h.GetBalanceHandler)
	r.Post("/player/{identity}/join", h.PlayerJoinHandler)
	r.Post("/transfer", h.TransferHandler)
	r.Get("/baltop", h.BaltopHandler)
	r.Get("/stats", h.StatsHandler)
	r.Get("/transactions", h.TransactionsHandler)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/player/{identity}/adjust", h.AdjustBalanceHandler)
		r.Post("/player/{identity}/set", h.SetBalanceHandler)
		r.Post("/player/{identity}/reset", h.ResetBalanceHandler)
		r.Post("/save", h.ForceSaveHandler)
	})

	return r
}
