package tokenizer

import (
	"strings"

	"github.com/scopelang/tmgrammar/scope"
)

// Token is one scoped span of a tokenized line, as a half-open byte range
// [Start, End) with the full scope stack active at that span.
type Token struct {
	Start, End int
	Scopes     []scope.Scope
}

// tokenAccumulator builds a line's Token list incrementally as the
// tokenizer advances through it, only ever emitting a token once the scope
// stack for a span is known not to change further (i.e. once we've scanned
// past it).
type tokenAccumulator struct {
	tokens     []Token
	lastEnd    int
	lineLength int
}

func newTokenAccumulator(lineLength int) *tokenAccumulator {
	return &tokenAccumulator{lineLength: lineLength}
}

// Produce appends a token covering [lastEnd, end) with the given scopes, if
// that span is non-empty. Spans must be produced in non-decreasing order;
// callers are responsible for calling Produce with a monotonically
// increasing end on every advance (this is the tokenizer's monotonic-span
// invariant).
func (a *tokenAccumulator) Produce(end int, scopes []scope.Scope) {
	if end <= a.lastEnd {
		return
	}
	a.tokens = append(a.tokens, Token{Start: a.lastEnd, End: end, Scopes: scopes})
	a.lastEnd = end
}

// Finalize closes out any remaining span up to the line length under
// scopes (the active stack's scopes when the line ends) and returns the
// accumulated tokens.
func (a *tokenAccumulator) Finalize(scopes []scope.Scope) []Token {
	a.Produce(a.lineLength, scopes)
	return a.tokens
}

// Flatten rewrites the per-line Start/End offsets TokenizeString returns
// (each relative to its own line) into one document-relative token list,
// for renderers that walk the whole source by byte offset. text must be the
// exact string passed to TokenizeString: line lengths are taken from its own
// "\n" splits, since a trailing "\r" stripped before tokenizing still
// occupies a byte in text.
func Flatten(text string, lines [][]Token) []Token {
	var out []Token
	offset := 0
	raw := strings.Split(text, "\n")
	for i, line := range lines {
		for _, tok := range line {
			tok.Start += offset
			tok.End += offset
			out = append(out, tok)
		}
		if i < len(raw) {
			offset += len(raw[i]) + 1
		}
	}
	return out
}
