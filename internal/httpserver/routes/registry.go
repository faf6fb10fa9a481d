package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

type (
	// Registrar adds a group of routes. Guards that need deps (CIDRs,
	// hosts, rate limits) are applied inside the registrar.
	Registrar  func(r chi.Router, d deps.Deps)
	Middleware = func(http.Handler) http.Handler
)

type entry struct {
	reg Registrar
	mws []Middleware
}

var registry []entry

// Register adds a registrar with optional middlewares shared by all of its
// routes. Call it from init.
func Register(reg Registrar, mws ...Middleware) {
	registry = append(registry, entry{reg: reg, mws: mws})
}

// RegisterAll mounts every registered group on r. Called once from
// httpserver.NewRouter.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, e := range registry {
		target := r
		if len(e.mws) > 0 {
			target = r.With(e.mws...)
		}
		e.reg(target, d)
	}

	if d.Logger == nil {
		return
	}
	routes := 0
	_ = chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes++
		d.Logger.Debug("route registered",
			logger.String("method", method),
			logger.String("route", route))
		return nil
	})
	d.Logger.Info("routes registered", logger.Int("count", routes))
}
