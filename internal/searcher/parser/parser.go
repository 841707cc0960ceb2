// Package parser turns the raw /search parameters into a QueryPlan. All
// terms are AND-ed; there are no operators.
package parser

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/document"
	"github.com/Adithya-Monish-Kumar-K/bookindex/internal/indexer/tokenizer"
)

// Filters are the optional metadata filters as the client sent them. Only
// non-empty values are echoed back.
type Filters struct {
	Author   string `json:"author,omitempty"`
	Language string `json:"language,omitempty"`
	Year     string `json:"year,omitempty"`
}

type QueryPlan struct {
	RawQuery string
	Terms    []string
	Filters  Filters
	Metadata document.MetadataFilter
}

// Parse normalises the query and filters. A year that is not an integer is
// logged and left out of Metadata, but still echoed in Filters.
func Parse(query string, f Filters) *QueryPlan {
	f = Filters{
		Author:   strings.TrimSpace(f.Author),
		Language: strings.TrimSpace(f.Language),
		Year:     strings.TrimSpace(f.Year),
	}
	plan := &QueryPlan{
		RawQuery: query,
		Terms:    tokenizer.SplitQuery(query),
		Filters:  f,
		Metadata: document.MetadataFilter{Author: f.Author, Language: f.Language},
	}
	if f.Year != "" {
		year, err := strconv.Atoi(f.Year)
		if err != nil {
			slog.Default().With("component", "query-parser").Warn("ignoring invalid year filter", "year", f.Year)
		} else {
			plan.Metadata.Year = year
			plan.Metadata.HasYear = true
		}
	}
	return plan
}

// IsEmpty reports whether the query has no terms.
func (p *QueryPlan) IsEmpty() bool {
	return len(p.Terms) == 0
}

// Normalized returns a canonical form of the plan: AND is commutative, so
// term order and duplicates do not matter.
func (p *QueryPlan) Normalized() string {
	seen := make(map[string]struct{}, len(p.Terms))
	terms := make([]string, 0, len(p.Terms))
	for _, t := range p.Terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	sort.Strings(terms)
	parts := []string{strings.Join(terms, ",")}
	if m := p.Metadata; !m.IsZero() {
		parts = append(parts,
			"author="+strings.ToLower(m.Author),
			"language="+strings.ToLower(m.Language),
		)
		if m.HasYear {
			parts = append(parts, "year="+strconv.Itoa(m.Year))
		}
	}
	return strings.Join(parts, "|")
}
