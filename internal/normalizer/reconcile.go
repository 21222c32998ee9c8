package normalizer

import (
	"strings"

	"github.com/hivdr-report/internal/domain"
)

// commentsByMutation keys comment texts by their first highlighted mutation.
// A later comment for the same mutation replaces the earlier text. Comments
// without a highlighted mutation cannot be placed and are skipped.
func commentsByMutation(comments []domain.Comment) domain.Entries {
	var out domain.Entries
	for _, c := range comments {
		if m, ok := c.HighlightedMutation(); ok {
			out.Set(m, c.Text)
		}
	}
	return out
}

// anchored drops comments whose mutation is not in anchors
func anchored(comments domain.Entries, anchors map[string]bool) domain.Entries {
	var out domain.Entries
	for _, entry := range comments {
		if anchors[entry.Label] {
			out.Set(entry.Label, entry.Value)
		}
	}
	return out
}

// intersect keeps the tokens that have a comment, in token order, each once
func intersect(tokens []string, comments domain.Entries) []string {
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, t := range tokens {
		if seen[t] || !comments.Has(t) {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

func joinMutations(tokens []string) string {
	if len(tokens) == 0 {
		return domain.NoMutations
	}
	return strings.Join(tokens, ", ")
}

func joinComments(comments domain.Entries) string {
	if len(comments) == 0 {
		return domain.NoComments
	}
	return strings.Join(comments.Values(), " ")
}
