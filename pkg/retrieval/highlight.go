package retrieval

import (
	ahocorasick "github.com/petar-dambovaliev/aho-corasick"

	"github.com/temnoon/humanizer-gm-sub013/pkg/sparse"
)

// Highlight is one query-term occurrence in a result's text, as byte
// offsets into ContentNode.Text.
type Highlight struct {
	Start int
	End   int
	Term  string
}

// highlighter finds query-term occurrences with a single Aho-Corasick
// automaton built once per query and reused across all results.
type highlighter struct {
	ac    ahocorasick.AhoCorasick
	terms []string
}

// newHighlighter builds an automaton from the sanitized terms of query.
// Returns nil when the query strips to nothing.
func newHighlighter(query string) *highlighter {
	terms := sparse.SanitizeQuery(query)
	if len(terms) == 0 {
		return nil
	}

	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  false,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	return &highlighter{ac: builder.Build(terms), terms: terms}
}

// find returns all term occurrences in text.
func (h *highlighter) find(text string) []Highlight {
	if h == nil || text == "" {
		return nil
	}

	matches := h.ac.FindAll(text)
	out := make([]Highlight, 0, len(matches))
	for _, m := range matches {
		out = append(out, Highlight{
			Start: m.Start(),
			End:   m.End(),
			Term:  h.terms[m.Pattern()],
		})
	}
	return out
}
