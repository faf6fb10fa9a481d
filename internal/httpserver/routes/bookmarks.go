package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/marks/internal/httpserver/mw"
)

func init() { Register(registerBookmarks) }

func registerBookmarks(r chi.Router, d deps.Deps) {
	write := r.With(
		mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
		mw.EnforceHost(d.AllowedHosts, d.Logger),
	)

	r.Get("/api/bookmarks", handlers.ListBookmarks(d))
	r.Get("/api/bookmarks/smart", handlers.SmartBookmarks(d))
	r.Get("/api/bookmarks/search", handlers.SearchBookmarks(d))
	r.Get("/api/bookmarks/{id}", handlers.GetBookmark(d))
	r.Get("/api/bookmarks/{id}/open", handlers.OpenBookmark(d))

	write.Post("/api/bookmarks", handlers.CreateBookmark(d))
	write.Post("/api/bookmarks/bulk", handlers.CreateBookmarks(d))
	write.Patch("/api/bookmarks/{id}", handlers.UpdateBookmark(d))
	write.Delete("/api/bookmarks/{id}", handlers.DeleteBookmark(d))
	write.Post("/api/bookmarks/{id}/tags", handlers.TagBookmark(d))
	write.Delete("/api/bookmarks/{id}/tags/{tag}", handlers.UntagBookmark(d))
}
