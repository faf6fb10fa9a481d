package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/search"
)

const defaultSearchLimit = 20

type createBookmarkRequest struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Tags      []string `json:"tags"`
	TimeAdded int64    `json:"time_added,omitempty"`
}

type updateBookmarkRequest struct {
	URL   *string `json:"url"`
	Title *string `json:"title"`
}

type tagRequest struct {
	Name string `json:"name"`
}

type bulkResponse struct {
	Received int `json:"received"`
	Added    int `json:"added"`
}

type searchResult struct {
	Bookmark bookmarkResponse `json:"bookmark"`
	Score    float64          `json:"score"`
}

func (req createBookmarkRequest) bookmark() *bookmarks.Bookmark {
	if req.TimeAdded > 0 {
		return bookmarks.FromRecord(bookmarks.Record{
			URL:       req.URL,
			Title:     req.Title,
			TimeAdded: req.TimeAdded,
			Tags:      req.Tags,
		})
	}
	return bookmarks.NewBookmark(req.URL, req.Title, req.Tags...)
}

// ListBookmarks returns bookmarks, most recent first. ?tag= filters by tag;
// ?untagged=1 selects bookmarks without tags.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		untagged, _ := strconv.ParseBool(q.Get("untagged"))
		tag := q.Get("tag")

		var out []bookmarkResponse
		ok := onLoop(w, r, d, func() {
			switch {
			case untagged:
				out = toResponses(d.Store.BookmarksWithTag(bookmarks.Untagged))
			case tag != "":
				out = toResponses(d.Store.BookmarksWithTag(tag))
			default:
				out = toResponses(d.Store.Bookmarks())
			}
		})
		if ok {
			writeJSON(w, d.Logger, http.StatusOK, out)
		}
	}
}

// CreateBookmark adds one bookmark and registers its tags once it is stored.
func CreateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createBookmarkRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid json body")
			return
		}
		req.URL = strings.TrimSpace(req.URL)
		if req.URL == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "url is required")
			return
		}

		b := req.bookmark()
		var status int
		var resp bookmarkResponse
		ok := onLoop(w, r, d, func() {
			if d.Store.BookmarkByURL(b.URL()) != nil {
				status = http.StatusConflict
				return
			}
			d.Store.Add(b)
			if d.Store.BookmarkByID(b.ID()) != b {
				// dropped: another bookmark has the same time added
				status = http.StatusConflict
				return
			}
			for _, t := range b.Tags() {
				d.Store.CreateTag(t)
			}
			status = http.StatusCreated
			resp = toResponse(b)
		})
		if !ok {
			return
		}
		if status != http.StatusCreated {
			writeError(w, d.Logger, status, "bookmark already exists")
			return
		}

		d.Logger.Info("bookmark added",
			logger.String("id", resp.ID),
			logger.String("url", resp.URL))
		writeJSON(w, d.Logger, status, resp)
	}
}

// CreateBookmarks adds many bookmarks at once, skipping known URLs.
func CreateBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reqs []createBookmarkRequest
		if err := decodeJSON(r, &reqs); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid json body")
			return
		}

		bs := make([]*bookmarks.Bookmark, 0, len(reqs))
		for _, req := range reqs {
			req.URL = strings.TrimSpace(req.URL)
			if req.URL == "" {
				continue
			}
			bs = append(bs, req.bookmark())
		}

		var added int
		ok := onLoop(w, r, d, func() {
			for _, b := range bs {
				for _, t := range b.Tags() {
					d.Store.CreateTag(t)
				}
			}
			added = d.Store.AddBulk(bs)
		})
		if ok {
			writeJSON(w, d.Logger, http.StatusOK, bulkResponse{Received: len(reqs), Added: added})
		}
	}
}

// SmartBookmarks returns the search-template bookmarks by title.
func SmartBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var out []bookmarkResponse
		if onLoop(w, r, d, func() { out = toResponses(d.Store.SmartBookmarks()) }) {
			writeJSON(w, d.Logger, http.StatusOK, out)
		}
	}
}

// SearchBookmarks ranks bookmarks against ?q=, best first. ?limit= caps
// the result count.
func SearchBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "q is required")
			return
		}
		limit := defaultSearchLimit
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}

		var out []searchResult
		ok := onLoop(w, r, d, func() {
			candidates := search.Rank(query, d.Store.Bookmarks())
			if len(candidates) > limit {
				candidates = candidates[:limit]
			}
			out = make([]searchResult, 0, len(candidates))
			for _, c := range candidates {
				out = append(out, searchResult{Bookmark: toResponse(c.Bookmark), Score: c.Score})
			}
		})
		if !ok {
			return
		}

		d.Logger.Debug("bookmark search",
			logger.String("query", query),
			logger.Int("results", len(out)))
		writeJSON(w, d.Logger, http.StatusOK, out)
	}
}

// GetBookmark returns one bookmark by id.
func GetBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var resp *bookmarkResponse
		ok := onLoop(w, r, d, func() {
			if b := d.Store.BookmarkByID(id); b != nil {
				v := toResponse(b)
				resp = &v
			}
		})
		if !ok {
			return
		}
		if resp == nil {
			writeError(w, d.Logger, http.StatusNotFound, "bookmark not found")
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, resp)
	}
}

// OpenBookmark redirects to the bookmark URL. Smart bookmarks need ?q=,
// which is substituted into the URL.
func OpenBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var target string
		var smart bool
		ok := onLoop(w, r, d, func() {
			if b := d.Store.BookmarkByID(id); b != nil {
				target, smart = b.URL(), b.IsSmart()
			}
		})
		if !ok {
			return
		}
		if target == "" {
			writeError(w, d.Logger, http.StatusNotFound, "bookmark not found")
			return
		}

		if smart {
			query := r.URL.Query().Get("q")
			if query == "" {
				writeError(w, d.Logger, http.StatusBadRequest, "q is required for smart bookmarks")
				return
			}
			expanded, err := search.ExpandSmart(target, query)
			if err != nil {
				writeError(w, d.Logger, http.StatusInternalServerError, err.Error())
				return
			}
			target = expanded
		}

		http.Redirect(w, r, target, http.StatusFound)
	}
}

// UpdateBookmark changes the title and/or URL of a bookmark.
func UpdateBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req updateBookmarkRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.URL != nil && strings.TrimSpace(*req.URL) == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "url cannot be empty")
			return
		}

		var found bool
		var updateErr error
		var resp bookmarkResponse
		ok := onLoop(w, r, d, func() {
			b := d.Store.BookmarkByID(id)
			if b == nil {
				return
			}
			found = true
			if req.URL != nil {
				if updateErr = b.SetURL(strings.TrimSpace(*req.URL)); updateErr != nil {
					return
				}
			}
			if req.Title != nil {
				b.SetTitle(*req.Title)
			}
			resp = toResponse(b)
		})
		if !ok {
			return
		}

		switch {
		case !found:
			writeError(w, d.Logger, http.StatusNotFound, "bookmark not found")
		case errors.Is(updateErr, bookmarks.ErrDuplicateURL):
			writeError(w, d.Logger, http.StatusConflict, updateErr.Error())
		case updateErr != nil:
			writeError(w, d.Logger, http.StatusInternalServerError, updateErr.Error())
		default:
			writeJSON(w, d.Logger, http.StatusOK, resp)
		}
	}
}

// DeleteBookmark removes a bookmark by id.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var found bool
		ok := onLoop(w, r, d, func() {
			if b := d.Store.BookmarkByID(id); b != nil {
				found = true
				d.Store.Remove(b)
			}
		})
		if !ok {
			return
		}
		if !found {
			writeError(w, d.Logger, http.StatusNotFound, "bookmark not found")
			return
		}

		d.Logger.Info("bookmark removed", logger.String("id", id))
		w.WriteHeader(http.StatusNoContent)
	}
}

// TagBookmark adds a tag to a bookmark, registering the tag if needed.
func TagBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req tagRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, d.Logger, http.StatusBadRequest, "invalid json body")
			return
		}
		if req.Name == "" {
			writeError(w, d.Logger, http.StatusBadRequest, "name is required")
			return
		}

		var resp *bookmarkResponse
		ok := onLoop(w, r, d, func() {
			b := d.Store.BookmarkByID(id)
			if b == nil {
				return
			}
			d.Store.CreateTag(req.Name)
			b.AddTag(req.Name)
			v := toResponse(b)
			resp = &v
		})
		if !ok {
			return
		}
		if resp == nil {
			writeError(w, d.Logger, http.StatusNotFound, "bookmark not found")
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, resp)
	}
}

// UntagBookmark removes a tag from a bookmark. The tag stays registered.
func UntagBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		tag := chi.URLParam(r, "tag")

		var resp *bookmarkResponse
		ok := onLoop(w, r, d, func() {
			b := d.Store.BookmarkByID(id)
			if b == nil {
				return
			}
			b.RemoveTag(tag)
			v := toResponse(b)
			resp = &v
		})
		if !ok {
			return
		}
		if resp == nil {
			writeError(w, d.Logger, http.StatusNotFound, "bookmark not found")
			return
		}
		writeJSON(w, d.Logger, http.StatusOK, resp)
	}
}
