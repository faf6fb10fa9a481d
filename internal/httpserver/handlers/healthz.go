package handlers

import (
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
)

type healthzResponse struct {
	Status        string    `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Version       string    `json:"version,omitempty"`
	Commit        string    `json:"commit,omitempty"`
	BuildDate     string    `json:"build_date,omitempty"`
	GoVersion     string    `json:"go_version,omitempty"`
}

// Healthz is the liveness probe. It never touches the store, so a busy
// loop does not fail it.
func Healthz(d deps.Deps) http.HandlerFunc {
	resp := healthzResponse{
		Status:    "ok",
		StartedAt: d.StartTime.UTC(),
		Version:   d.Version,
		Commit:    d.Commit,
		BuildDate: d.BuildDate,
		GoVersion: d.GoVersion,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		out := resp
		out.UptimeSeconds = time.Since(d.StartTime).Seconds()
		writeJSON(w, d.Logger, http.StatusOK, out)
	}
}
