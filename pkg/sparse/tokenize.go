package sparse

import (
	"strings"
	"unicode"
)

// stopWords are filtered during tokenization. Kept small on purpose;
// BM25's IDF already discounts common words, this just trims postings.
var stopWords = map[string]bool{
	"the": true, "of": true, "and": true, "a": true, "an": true,
	"to": true, "in": true, "on": true, "for": true, "at": true, "by": true,
	"is": true, "it": true, "as": true, "be": true, "was": true,
	"are": true, "been": true, "with": true, "from": true, "into": true,
	"that": true, "this": true, "has": true, "have": true, "had": true,
	"his": true, "her": true, "its": true, "their": true,
}

// normalize lowercases text and collapses everything outside
// letters/digits/apostrophes to single spaces. Control and operator
// characters disappear here, so downstream term handling never sees
// them.
func normalize(s string) string {
	var out strings.Builder
	out.Grow(len(s))

	for _, ch := range s {
		c := unicode.ToLower(ch)

		// Curly apostrophe -> straight
		if c == '’' {
			c = '\''
		}

		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '\'' {
			out.WriteRune(c)
		} else {
			out.WriteRune(' ')
		}
	}

	return strings.Join(strings.Fields(out.String()), " ")
}

// tokenize splits text into normalized index terms, dropping stopwords.
func tokenize(text string) []string {
	words := strings.Fields(normalize(text))

	result := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, "'")
		if len(w) > 0 && !stopWords[w] {
			result = append(result, w)
		}
	}
	return result
}

// SanitizeQuery reduces a raw query to index-safe terms: normalized,
// stopwords removed, single-character terms dropped. An empty result
// means the query carried no searchable content.
func SanitizeQuery(query string) []string {
	var terms []string
	for _, t := range tokenize(query) {
		if len([]rune(t)) < 2 {
			continue
		}
		terms = append(terms, t)
	}
	return terms
}
