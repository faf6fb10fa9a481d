package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type bookmarkResponse struct {
	ID        string   `json:"id"`
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	TimeAdded int64    `json:"time_added"`
	Tags      []string `json:"tags"`
	Smart     bool     `json:"smart"`
}

func toResponse(b *bookmarks.Bookmark) bookmarkResponse {
	return bookmarkResponse{
		ID:        b.ID(),
		URL:       b.URL(),
		Title:     b.Title(),
		TimeAdded: b.TimeAdded(),
		Tags:      b.Tags(),
		Smart:     b.IsSmart(),
	}
}

func toResponses(bs []*bookmarks.Bookmark) []bookmarkResponse {
	out := make([]bookmarkResponse, 0, len(bs))
	for _, b := range bs {
		out = append(out, toResponse(b))
	}
	return out
}

func writeJSON(w http.ResponseWriter, log logger.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("failed to write response", logger.Error(err))
	}
}

func writeError(w http.ResponseWriter, log logger.Logger, status int, msg string) {
	writeJSON(w, log, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// onLoop runs fn on the store loop and reports loop failures as 503.
// It returns false when the response has already been written.
func onLoop(w http.ResponseWriter, r *http.Request, d deps.Deps, fn func()) bool {
	if err := d.Loop.Do(r.Context(), fn); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, bookmarks.ErrLoopStopped) {
			d.Logger.Warn("request rejected, store is shutting down",
				logger.String("path", r.URL.Path))
		}
		writeError(w, d.Logger, status, "store unavailable")
		return false
	}
	return true
}
