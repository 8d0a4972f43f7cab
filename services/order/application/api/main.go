package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/sodacore/sodacore/pkg/app"
)

// OrderRoutes registers order endpoints on the provided chi router.
func OrderRoutes(r chi.Router, a *app.Application) {
	r.Group(func(r chi.Router) {
		r.Route("/order", func(r chi.Router) {
			r.Post("/", NewPostOrderHandler(a.Facade).Execute)
			r.Get("/", NewListOrdersHandler(a.Facade).Execute)
			r.Get("/{id}", NewGetOrderHandler(a.Facade).Execute)
		})
	})
}
