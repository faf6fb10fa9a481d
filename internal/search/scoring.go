// Package search ranks bookmarks against a free-text query and expands
// smart bookmarks.
package search

import (
	"net/url"
	"strings"
	"unicode"
)

const (
	// Scoring weights
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0
	ScoreFuzzyMatch     = 25.0

	// Position bonus (earlier is better)
	ScorePositionBonus = 10.0

	// Exact title match bonus
	ScoreExactTitleBonus = 200.0

	// Weight of a hostname match relative to a title match
	HostWeight = 0.8
	// Weight of a tag match relative to a title match
	TagWeight = 0.5
)

// scoreText scores query against a single lowercased field.
func scoreText(query, text string) float64 {
	if query == "" || text == "" {
		return 0.0
	}

	// Exact match (highest score)
	if query == text {
		return ScoreExactMatch
	}

	// Prefix match
	if strings.HasPrefix(text, query) {
		return ScorePrefixMatch
	}

	// Substring match, earlier is better
	if index := strings.Index(text, query); index >= 0 {
		bonus := ScorePositionBonus * (1.0 - float64(index)/float64(len(text)))
		return ScoreSubstringMatch + bonus
	}

	// Word match: every query word appears in text
	words := strings.Fields(query)
	if len(words) > 1 {
		allMatch := true
		for _, word := range words {
			if !strings.Contains(text, word) {
				allMatch = false
				break
			}
		}
		if allMatch {
			return ScoreFuzzyMatch
		}
	}

	// Character similarity
	if similarity := calculateSimilarity(query, text); similarity > 0.5 {
		return ScoreFuzzyMatch * similarity
	}

	return 0.0
}

// calculateSimilarity is the share of query characters found in text.
func calculateSimilarity(query, text string) float64 {
	if query == "" || text == "" {
		return 0.0
	}

	matches, total := 0, 0
	for _, c := range query {
		if unicode.IsSpace(c) {
			continue
		}
		total++
		if strings.ContainsRune(text, c) {
			matches++
		}
	}
	if total == 0 {
		return 0.0
	}

	return float64(matches) / float64(total)
}

// hostname returns the lowercased host of rawURL without a leading "www.".
func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
