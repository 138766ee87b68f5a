// Package tokenizer runs the per-line TextMate matching state machine
// against grammars compiled by the grammar package, producing scoped token
// spans line by line.
package tokenizer

import "strings"

// anchorSentinel replaces a dead \A or \G anchor in a pattern before it is
// scanned. ￿ is vanishingly unlikely to appear in real source text, so
// substituting it in place of an anchor that cannot fire at this scan
// position effectively disables that branch of the regex without having to
// reparse or rebuild it structurally.
const anchorSentinel = "￿"

// AnchorMode selects which of \A (start of the tokenized string) and \G
// (the position tokenizing resumed from) are live for the current scan,
// per the standard TextMate anchor semantics:
//
//	first line, anchor==pos -> AG: both \A and \G may match, left as-is
//	first line, anchor!=pos -> A:  \G is replaced (we're past the resume point)
//	not first line, anchor==pos -> G: \A is replaced (not at the string start)
//	not first line, anchor!=pos -> None: both are replaced
type AnchorMode int

const (
	AnchorAG AnchorMode = iota
	AnchorA
	AnchorG
	AnchorNone
)

// String returns the cache-key label used by the grammar Registry's
// pattern-set cache to distinguish otherwise-identical pattern sets built
// under different anchor substitutions.
func (m AnchorMode) String() string {
	switch m {
	case AnchorAG:
		return "AG"
	case AnchorA:
		return "A"
	case AnchorG:
		return "G"
	default:
		return "None"
	}
}

// NewAnchorMode derives the anchor mode for the current scan position.
func NewAnchorMode(isFirstLine bool, anchorPosition, currentPos int) AnchorMode {
	atAnchor := anchorPosition == currentPos
	switch {
	case isFirstLine && atAnchor:
		return AnchorAG
	case isFirstLine && !atAnchor:
		return AnchorA
	case !isFirstLine && atAnchor:
		return AnchorG
	default:
		return AnchorNone
	}
}

// ReplaceAnchors rewrites pattern's \A/\G anchors to the dead sentinel
// according to mode, by substituting the pattern text itself rather than
// passing search-time option flags to Oniguruma.
func ReplaceAnchors(pattern string, mode AnchorMode) string {
	switch mode {
	case AnchorAG:
		return pattern
	case AnchorA:
		return replaceAnchor(pattern, `\G`)
	case AnchorG:
		return replaceAnchor(pattern, `\A`)
	default:
		p := replaceAnchor(pattern, `\A`)
		return replaceAnchor(p, `\G`)
	}
}

func replaceAnchor(pattern, anchor string) string {
	if !strings.Contains(pattern, anchor) {
		return pattern
	}
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '\\' && i+1 < len(pattern) {
			// Don't rewrite an escaped backslash followed by the anchor
			// letter (\\A is a literal backslash then "A", not an anchor).
			if pattern[i] == '\\' && i > 0 && pattern[i-1] == '\\' {
				b.WriteByte(pattern[i])
				continue
			}
			if i+len(anchor) <= len(pattern) && pattern[i:i+len(anchor)] == anchor {
				b.WriteString(anchorSentinel)
				i += len(anchor) - 1
				continue
			}
		}
		b.WriteByte(pattern[i])
	}
	return b.String()
}
