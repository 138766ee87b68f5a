package theme

import (
	"strings"

	"github.com/scopelang/tmgrammar/scope"
	"github.com/scopelang/tmgrammar/tokenizer"
)

// ColorMapping pairs a resolved TokenColor with the byte offset (relative
// to the whole tokenized document) at which it starts applying.
type ColorMapping struct {
	TokenColor
	Offset int
}

// getSplitted looks up name in current, falling back to progressively
// shorter dotted prefixes ("meta.tag.html" -> "meta.tag" -> "meta") when no
// exact entry exists, mirroring TextMate's "most specific scope selector
// wins" matching.
func getSplitted(current map[string]TokenColor, name string) (TokenColor, bool) {
	for name != "" {
		s, ok := current[name]
		if ok {
			return s, true
		}
		i := strings.LastIndexByte(name, '.')
		if i == -1 {
			break
		}
		name = name[:i]
	}
	return TokenColor{}, false
}

// getToken walks a token's scope stack outermost-first, descending into
// the theme's per-selector trie at each level; the deepest level that
// still finds a match wins, since more specific (longer, deeper) selectors
// should override broader ones. The outermost scope must itself find an
// entry at the trie's top level: if it does not, no color is returned,
// whatever the inner scopes would have matched.
func (t *Theme) getToken(scopes []scope.Scope) (TokenColor, bool) {
	current := t.Tokens
	var last TokenColor
	found := false

	for i, s := range scopes {
		c, ok := getSplitted(current, s.String())
		if !ok && i == 0 {
			break
		}
		if !ok {
			continue
		}
		last = c
		found = true
		current = c.Children
	}

	return last, found
}

// MapTokens resolves each token's color by its scope stack, returning one
// ColorMapping per token in document order.
func (t *Theme) MapTokens(tokens []tokenizer.Token) []ColorMapping {
	res := make([]ColorMapping, 0, len(tokens))
	for _, tok := range tokens {
		col, _ := t.getToken(tok.Scopes)
		res = append(res, ColorMapping{col, tok.Start})
	}
	return res
}
