package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Post("/start", h.StartCampaign)
			r.Post("/stop", h.StopCampaign)
			r.Get("/status", h.CampaignStatus)
		})

		r.Post("/collections", h.LaunchCollection)
		r.Get("/collections/status", h.CollectionStatus)
		r.Get("/collections/{id}", h.CollectionStatusByID)

		r.Get("/recovery/status", h.RecoveryStatus)
		r.Post("/recovery/run", h.RecoveryRun)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("outreach-engine"))
	})

	return r
}
