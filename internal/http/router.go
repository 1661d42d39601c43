package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(rh *ReservationHandler, dh *DirectoryHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", rh.Create)
			r.Get("/{reservationId}", rh.Get)
			r.Patch("/{reservationId}", rh.Update)
			r.Delete("/{reservationId}", rh.Cancel)
		})

		r.Get("/spaces/{spaceId}/reservations", rh.ListForSpace)

		r.Put("/clients", dh.UpsertClient)
		r.Delete("/clients/{clientId}", dh.DeactivateClient)

		r.Put("/spaces", dh.UpsertSpace)
		r.Delete("/spaces/{spaceId}", dh.DeactivateSpace)

		r.Put("/resources", dh.UpsertResource)
		r.Get("/resources/{resourceId}", dh.GetResource)
		r.Delete("/resources/{resourceId}", dh.DeactivateResource)
	})

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
