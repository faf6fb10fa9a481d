package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/sources/netscape"
)

const defaultMaxImportBytes = 8 << 20

type importResponse struct {
	Found int `json:"found"`
	Added int `json:"added"`
	Tags  int `json:"tags"`
}

// ImportNetscape reads a Netscape bookmark file from the request body and
// adds every bookmark whose URL is not already stored.
func ImportNetscape(d deps.Deps) http.HandlerFunc {
	limit := d.MaxImportBytes
	if limit <= 0 {
		limit = defaultMaxImportBytes
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, limit)
		res, err := netscape.NewParser().Parse(body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, d.Logger, http.StatusRequestEntityTooLarge, "import file too large")
				return
			}
			writeError(w, d.Logger, http.StatusBadRequest, "invalid bookmark file")
			return
		}

		var added, created int
		ok := onLoop(w, r, d, func() {
			for _, t := range res.Tags {
				if d.Store.CreateTag(t) {
					created++
				}
			}
			added = d.Store.AddBulk(res.Bookmarks)
		})
		if !ok {
			return
		}

		d.Logger.Info("netscape import done",
			logger.Int("found", len(res.Bookmarks)),
			logger.Int("added", added),
			logger.Int("tags_created", created),
			logger.String("remote_ip", r.RemoteAddr))
		writeJSON(w, d.Logger, http.StatusOK, importResponse{
			Found: len(res.Bookmarks),
			Added: added,
			Tags:  created,
		})
	}
}

// ExportNetscape writes every bookmark as a Netscape bookmark file.
func ExportNetscape(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var snap bookmarks.Snapshot
		if !onLoop(w, r, d, func() { snap = d.Store.Snapshot() }) {
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition",
			`attachment; filename="bookmarks-`+time.Now().Format("2006-01-02")+`.html"`)
		if err := netscape.Write(w, snap.Bookmarks); err != nil {
			d.Logger.Debug("failed to write export", logger.Error(err))
		}
	}
}

// ImportHomepage asks the homepage importer to run now. It never waits for
// the import itself.
func ImportHomepage(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.ImportTrigger == nil {
			writeError(w, d.Logger, http.StatusNotFound, "homepage import is not configured")
			return
		}

		select {
		case d.ImportTrigger <- struct{}{}:
			d.Logger.Info("manual homepage import triggered via endpoint",
				logger.String("remote_ip", r.RemoteAddr))
			writeJSON(w, d.Logger, http.StatusAccepted, map[string]string{"status": "triggered"})
		default:
			d.Logger.Warn("homepage import already pending",
				logger.String("remote_ip", r.RemoteAddr))
			writeError(w, d.Logger, http.StatusTooManyRequests, "import already pending, please wait")
		}
	}
}
