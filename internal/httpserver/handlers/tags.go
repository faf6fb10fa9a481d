package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

type tagResponse struct {
	Name      string `json:"name"`
	Bookmarks int    `json:"bookmarks"`
}

// ListTags returns the registered tags in display order with their
// bookmark counts.
func ListTags(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var out []tagResponse
		ok := onLoop(w, r, d, func() {
			names := d.Store.Tags().Names()
			out = make([]tagResponse, 0, len(names))
			for _, name := range names {
				out = append(out, tagResponse{
					Name:      name,
					Bookmarks: len(d.Store.BookmarksWithTag(name)),
				})
			}
		})
		if ok {
			writeJSON(w, d.Logger, http.StatusOK, out)
		}
	}
}

// CreateTag registers a tag.
func CreateTag(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tagRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid json body")
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "name is required")
			return
		}

		var created bool
		if !onLoop(w, r, d, func() { created = d.Store.CreateTag(name) }) {
			return
		}
		if !created {
			writeError(w, d.Logger, http.StatusConflict, "tag already exists")
			return
		}

		d.Logger.Info("tag created", logger.String("tag", name))
		writeJSON(w, d.Logger, http.StatusCreated, tagResponse{Name: name})
	}
}

// DeleteTag unregisters a tag and strips it from every bookmark.
// Favorites is built in and cannot be deleted.
func DeleteTag(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "tag")
		if name == bookmarks.FavoritesTag {
			writeError(w, d.Logger, http.StatusConflict, "the Favorites tag cannot be deleted")
			return
		}

		var found bool
		ok := onLoop(w, r, d, func() {
			// DeleteTag panics on unknown tags
			if found = d.Store.TagExists(name); found {
				d.Store.DeleteTag(name)
			}
		})
		if !ok {
			return
		}
		if !found {
			writeError(w, d.Logger, http.StatusNotFound, "tag not found")
			return
		}

		d.Logger.Info("tag deleted", logger.String("tag", name))
		w.WriteHeader(http.StatusNoContent)
	}
}
