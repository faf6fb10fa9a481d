package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marks/internal/httpserver/mw"
)

func init() { Register(registerImports) }

func registerImports(r chi.Router, d deps.Deps) {
	guard := r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	)

	guard.Get("/api/export/netscape", handlers.ExportNetscape(d))
	guard.Post("/api/import/homepage", handlers.ImportHomepage(d))
	guard.With(mw.RateLimit(mw.RateLimitConfig{
		Burst:             d.ImportBurst,
		RefillPerIPPerMin: d.ImportRefillPerMinute,
		MaxEntries:        10000,
		TrustProxy:        d.TrustProxy,
	}, d.Logger)).Post("/api/import/netscape", handlers.ImportNetscape(d))
}
