package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marks/internal/httpserver/mw"
)

func init() { Register(registerTags) }

func registerTags(r chi.Router, d deps.Deps) {
	write := r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	)

	r.Get("/api/tags", handlers.ListTags(d))
	write.Post("/api/tags", handlers.CreateTag(d))
	write.Delete("/api/tags/{tag}", handlers.DeleteTag(d))
}
