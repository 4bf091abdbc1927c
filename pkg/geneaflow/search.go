package geneaflow

import (
	"sort"
	"strings"

	"github.com/DavidMGG/geneaflow/pkg/storage"
	"github.com/DavidMGG/geneaflow/pkg/text"
)

// DefaultSearchLimit caps how many matches Search returns.
const DefaultSearchLimit = 20

// SearchResult is one person match with its ranking distance.
type SearchResult struct {
	Person   PersonSummary `json:"person"`
	Distance int           `json:"distance"`
}

// Search finds live persons in a tree by name. Viewer and above.
//
// A person matches when the normalized query is a substring of their
// normalized full name, or when query tokens overlap their name tokens.
// Matches rank by Levenshtein distance between the normalized strings, so
// near-exact hits come first. Limit values outside 1..DefaultSearchLimit
// fall back to the default.
func (db *DB) Search(treeID storage.TreeID, actor storage.UserID, query string, limit int) ([]SearchResult, error) {
	if _, err := db.requireRole(treeID, actor, storage.RoleViewer); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > DefaultSearchLimit {
		limit = DefaultSearchLimit
	}

	normalized := text.Normalize(query)
	if normalized == "" {
		return nil, nil
	}
	queryTokens := text.Tokenize(query)

	persons, err := db.store.PersonsInTree(treeID)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, p := range persons {
		full := p.Search.NormalizedFullName
		if full == "" {
			full = text.Normalize(p.FullName())
		}
		if !strings.Contains(full, normalized) && !tokensOverlap(queryTokens, p.Search.Tokens) {
			continue
		}
		results = append(results, SearchResult{
			Person:   summarize(p),
			Distance: text.Distance(normalized, full),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Person.DisplayName < results[j].Person.DisplayName
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func tokensOverlap(query, candidate []string) bool {
	if len(query) == 0 || len(candidate) == 0 {
		return false
	}
	set := make(map[string]bool, len(candidate))
	for _, tok := range candidate {
		set[tok] = true
	}
	for _, tok := range query {
		if set[tok] {
			return true
		}
	}
	return false
}
