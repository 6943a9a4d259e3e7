package feedback

import (
	"fmt"
	"strings"
)

// maxSuggestions bounds the number of related-query suggestions returned.
const maxSuggestions = 3

// Suggester proposes related queries for a submitted query.
type Suggester interface {
	Suggest(query string) []string
}

// KeywordSuggester derives suggestions from the query's first and last
// words. A future suggestion engine replaces this behind the same
// interface.
type KeywordSuggester struct{}

// NewKeywordSuggester creates the keyword-based Suggester.
func NewKeywordSuggester() KeywordSuggester {
	return KeywordSuggester{}
}

// Suggest returns up to maxSuggestions related queries.
func (KeywordSuggester) Suggest(query string) []string {
	first, last := "maintenance", "issue"
	if words := strings.Fields(query); len(words) > 0 {
		first = words[0]
		last = words[len(words)-1]
	}

	suggestions := []string{
		fmt.Sprintf("How to troubleshoot %s?", last),
		fmt.Sprintf("Best practices for %s", first),
		"Common solutions and fixes",
		"Related documentation and guides",
	}
	return suggestions[:maxSuggestions]
}
