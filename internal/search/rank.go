package search

import (
	"sort"
	"strings"

	"github.com/MrSnakeDoc/marks/internal/bookmarks"
)

// Candidate is a bookmark with its match score
type Candidate struct {
	Bookmark *bookmarks.Bookmark
	Score    float64
}

// Score calculates the match score of a bookmark against a query. The best
// of the title, hostname and tag scores wins.
func Score(query string, b *bookmarks.Bookmark) float64 {
	if b == nil {
		return 0.0
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return 0.0
	}

	title := strings.ToLower(b.Title())
	if query == title {
		return ScoreExactMatch + ScoreExactTitleBonus
	}

	best := scoreText(query, title)
	if s := scoreText(query, hostname(b.URL())) * HostWeight; s > best {
		best = s
	}
	for _, tag := range b.Tags() {
		if s := scoreText(query, strings.ToLower(tag)) * TagWeight; s > best {
			best = s
		}
	}

	return best
}

// Rank returns the bookmarks matching query, best first. Ties keep the
// input order.
func Rank(query string, bs []*bookmarks.Bookmark) []*Candidate {
	candidates := make([]*Candidate, 0, len(bs))

	for _, b := range bs {
		score := Score(query, b)

		// Skip bookmarks with zero score (no match)
		if score == 0.0 {
			continue
		}

		candidates = append(candidates, &Candidate{
			Bookmark: b,
			Score:    score,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	return candidates
}

// Best returns the best matching bookmark for a query, or nil.
func Best(query string, bs []*bookmarks.Bookmark) *bookmarks.Bookmark {
	candidates := Rank(query, bs)
	if len(candidates) == 0 {
		return nil
	}
	return candidates[0].Bookmark
}
