package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
)

const readyTimeout = 2 * time.Second

type componentStatus struct {
	OK        bool   `json:"ok"`
	Bookmarks *int   `json:"bookmarks,omitempty"`
	Tags      *int   `json:"tags,omitempty"`
	Mode      string `json:"mode,omitempty"`
	Error     string `json:"error,omitempty"`
}

type readyzResponse struct {
	Ready      bool                       `json:"ready"`
	Components map[string]componentStatus `json:"components"`
}

// Readyz reports whether the store answers. The mirror is informational:
// a degraded mirror never makes the service unready.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		components := map[string]componentStatus{
			"store":  checkStore(ctx, d),
			"mirror": checkMirror(ctx, d),
		}

		status := http.StatusOK
		ready := components["store"].OK
		if !ready {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, d.Logger, status, readyzResponse{
			Ready:      ready,
			Components: components,
		})
	}
}

func checkStore(ctx context.Context, d deps.Deps) componentStatus {
	var count, tags int
	if err := d.Loop.Do(ctx, func() {
		count = d.Store.Len()
		tags = d.Store.Tags().Len()
	}); err != nil {
		return componentStatus{OK: false, Error: err.Error()}
	}
	return componentStatus{OK: true, Bookmarks: &count, Tags: &tags}
}

func checkMirror(ctx context.Context, d deps.Deps) componentStatus {
	if d.Mirror == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}
	if err := d.Mirror.Ping(ctx); err != nil {
		return componentStatus{OK: false, Mode: "degraded", Error: err.Error()}
	}
	if d.Mirror.Dirty() {
		return componentStatus{OK: true, Mode: "catching-up"}
	}
	return componentStatus{OK: true, Mode: "in-sync"}
}
