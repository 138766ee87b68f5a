package tokenizer

import (
	"strings"
	"testing"

	"github.com/scopelang/tmgrammar/grammar"
)

func newTestRegistry(t *testing.T, grammarJSON string) (*grammar.Registry, grammar.GrammarId) {
	t.Helper()
	reg := grammar.NewRegistry()
	gid, err := reg.AddGrammarFromJSON([]byte(grammarJSON))
	if err != nil {
		t.Fatalf("AddGrammarFromJSON: %v", err)
	}
	if err := reg.LinkGrammars(); err != nil {
		t.Fatalf("LinkGrammars: %v", err)
	}
	return reg, gid
}

// scopeNames flattens a Token's scope stack to its dotted string form, for
// assertions that don't care about the packed representation.
func scopeNames(tok Token) []string {
	out := make([]string, len(tok.Scopes))
	for i, s := range tok.Scopes {
		out[i] = s.String()
	}
	return out
}

func hasScope(tok Token, name string) bool {
	for _, s := range scopeNames(tok) {
		if s == name {
			return true
		}
	}
	return false
}

func TestTokenizeSimpleMatch(t *testing.T) {
	const g = `{
		"scopeName": "source.test",
		"patterns": [
			{"match": "\\bfoo\\b", "name": "keyword.control.test"}
		]
	}`
	reg, gid := newTestRegistry(t, g)
	tok := NewTokenizer(reg, gid)
	defer tok.Close()

	lines, err := tok.TokenizeString("foo bar foo")
	if err != nil {
		t.Fatalf("TokenizeString: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	line := lines[0]
	var rebuilt strings.Builder
	for _, tk := range line {
		rebuilt.WriteString("foo bar foo"[tk.Start:tk.End])
	}
	if rebuilt.String() != "foo bar foo" {
		t.Fatalf("token spans don't reconstruct the line: %q", rebuilt.String())
	}

	foundKeyword := false
	for _, tk := range line {
		if hasScope(tk, "keyword.control.test") {
			foundKeyword = true
		}
		if scopeNames(tk)[0] != "source.test" {
			t.Fatalf("token %+v missing root scope as first entry", tk)
		}
	}
	if !foundKeyword {
		t.Fatalf("no token carried keyword.control.test: %+v", line)
	}
}

func TestTokenizeEmptyString(t *testing.T) {
	const g = `{"scopeName": "source.test", "patterns": []}`
	reg, gid := newTestRegistry(t, g)
	tok := NewTokenizer(reg, gid)
	defer tok.Close()

	lines, err := tok.TokenizeString("")
	if err != nil {
		t.Fatalf("TokenizeString: %v", err)
	}
	if len(lines) != 1 || len(lines[0]) != 0 {
		t.Fatalf("expected a single empty-token line, got %+v", lines)
	}
}

func TestTokenizeBeginEndMultiline(t *testing.T) {
	const g = `{
		"scopeName": "source.test",
		"patterns": [
			{
				"begin": "\"\"\"",
				"end": "\"\"\"",
				"name": "string.quoted.triple.test",
				"beginCaptures": {"0": {"name": "punctuation.definition.string.begin.test"}},
				"endCaptures": {"0": {"name": "punctuation.definition.string.end.test"}}
			}
		]
	}`
	reg, gid := newTestRegistry(t, g)
	tok := NewTokenizer(reg, gid)
	defer tok.Close()

	lines, err := tok.TokenizeString("\"\"\"\nhello\n\"\"\"\nafter")
	if err != nil {
		t.Fatalf("TokenizeString: %v", err)
	}
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}

	openFound := false
	for _, tk := range lines[0] {
		if hasScope(tk, "punctuation.definition.string.begin.test") {
			openFound = true
		}
	}
	if !openFound {
		t.Fatalf("line 1 missing opening delimiter scope: %+v", lines[0])
	}

	for _, tk := range lines[1] {
		if hasScope(tk, "punctuation.definition.string.begin.test") {
			t.Fatalf("line 2 should not carry the begin delimiter scope: %+v", tk)
		}
		if !hasScope(tk, "string.quoted.triple.test") {
			t.Fatalf("line 2 content should carry the string scope: %+v", tk)
		}
	}

	closeFound := false
	for _, tk := range lines[2] {
		if hasScope(tk, "punctuation.definition.string.end.test") {
			closeFound = true
		}
	}
	if !closeFound {
		t.Fatalf("line 3 missing closing delimiter scope: %+v", lines[2])
	}

	for _, tk := range lines[3] {
		if hasScope(tk, "string.quoted.triple.test") {
			t.Fatalf("line 4 should have popped back out of the string: %+v", tk)
		}
	}
}

func TestTokenizeWhilePatternList(t *testing.T) {
	const g = `{
		"scopeName": "source.test",
		"patterns": [
			{
				"begin": "^\\s*(\\d+)\\.\\s+",
				"while": "^\\s*\\d+\\.\\s+",
				"name": "markup.list.numbered.test",
				"beginCaptures": {"1": {"name": "constant.numeric.test"}}
			}
		]
	}`
	reg, gid := newTestRegistry(t, g)
	tok := NewTokenizer(reg, gid)
	defer tok.Close()

	lines, err := tok.TokenizeString("1. a\n2. b\nnot a list")
	if err != nil {
		t.Fatalf("TokenizeString: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}

	for i, line := range lines[:2] {
		found := false
		for _, tk := range line {
			if hasScope(tk, "markup.list.numbered.test") {
				found = true
			}
		}
		if !found {
			t.Fatalf("line %d missing markup.list.numbered.test: %+v", i, line)
		}
	}

	for _, tk := range lines[2] {
		if hasScope(tk, "markup.list.numbered.test") {
			t.Fatalf("line 3 should not carry the list scope once the while-condition fails: %+v", tk)
		}
	}
}

func TestTokenizeLoopProtectionZeroWidth(t *testing.T) {
	const g = `{
		"scopeName": "source.test",
		"patterns": [
			{"begin": "(?=x)", "end": "(?=x)", "name": "meta.degenerate.test"}
		]
	}`
	reg, gid := newTestRegistry(t, g)
	tok := NewTokenizer(reg, gid)
	defer tok.Close()

	lines, err := tok.TokenizeString("xx")
	if err != nil {
		t.Fatalf("TokenizeString: %v", err)
	}
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var rebuilt strings.Builder
	for _, tk := range lines[0] {
		rebuilt.WriteString("xx"[tk.Start:tk.End])
	}
	if rebuilt.String() != "xx" {
		t.Fatalf("loop-protected tokenization didn't cover the whole line: %+v", lines[0])
	}
	if len(lines[0]) > len("xx")+1 {
		t.Fatalf("emitted more than line.len()+1 tokens: %d", len(lines[0]))
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	const g = `{
		"scopeName": "source.test",
		"patterns": [
			{"match": "\\w+", "name": "variable.other.test"}
		]
	}`
	reg, gid := newTestRegistry(t, g)

	run := func() [][]Token {
		tok := NewTokenizer(reg, gid)
		defer tok.Close()
		lines, err := tok.TokenizeString("alpha beta\ngamma")
		if err != nil {
			t.Fatalf("TokenizeString: %v", err)
		}
		return lines
	}

	a, b := run(), run()
	if len(a) != len(b) {
		t.Fatalf("non-deterministic line count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			t.Fatalf("non-deterministic token count on line %d", i)
		}
		for j := range a[i] {
			if a[i][j].Start != b[i][j].Start || a[i][j].End != b[i][j].End {
				t.Fatalf("non-deterministic span on line %d token %d", i, j)
			}
		}
	}
}

func TestFlattenOffsetsAreDocumentRelative(t *testing.T) {
	const g = `{
		"scopeName": "source.test",
		"patterns": [
			{"match": "\\w+", "name": "variable.other.test"}
		]
	}`
	reg, gid := newTestRegistry(t, g)
	tok := NewTokenizer(reg, gid)
	defer tok.Close()

	text := "ab\ncd"
	lines, err := tok.TokenizeString(text)
	if err != nil {
		t.Fatalf("TokenizeString: %v", err)
	}
	flat := Flatten(text, lines)
	if len(flat) != 2 {
		t.Fatalf("expected 2 flattened tokens, got %d", len(flat))
	}
	if text[flat[0].Start:flat[0].End] != "ab" {
		t.Fatalf("first token mismatch: %q", text[flat[0].Start:flat[0].End])
	}
	if text[flat[1].Start:flat[1].End] != "cd" {
		t.Fatalf("second token mismatch: %q", text[flat[1].Start:flat[1].End])
	}
}
