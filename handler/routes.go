package handler

import (
	"github.com/go-chi/chi/v5"
)

// FormRoutes mounts the form API used by the rendering layer.
func FormRoutes(r chi.Router, fh *FormHandler) {
	r.Get("/industries", fh.Industries)
	r.Get("/leads", fh.Leads)

	r.Route("/forms", func(r chi.Router) {
		r.Post("/", fh.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", fh.Get)
			r.Put("/fields/{field}", fh.SetField)
			r.Post("/submit", fh.Submit)
			r.Post("/reset", fh.Reset)
		})
	})
}

// IngestRoutes mounts the ingestion endpoint. The anon key may only create
// leads; reading them back needs a service token.
func IngestRoutes(r chi.Router, ih *IngestHandler, auth *Auth) {
	r.Route("/leads", func(r chi.Router) {
		r.Use(auth.Authenticate)
		r.With(RequireRole(RoleAnon, RoleService)).Post("/", ih.Create)
		r.With(RequireRole(RoleService)).Get("/{id}", ih.GetByID)
	})
}
