package grammar

import (
	"testing"

	"github.com/scopelang/tmgrammar/scope"
)

func stack(t *testing.T, names ...string) []scope.Scope {
	t.Helper()
	r := scope.Global()
	out := make([]scope.Scope, len(names))
	for i, n := range names {
		s, err := r.Build(n)
		if err != nil {
			t.Fatal(err)
		}
		out[i] = s
	}
	return out
}

func TestSelectorPlainScopeMatchesAnywhereInStack(t *testing.T) {
	m, err := ParseInjectionSelector("text.html")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Matches(stack(t, "text.html.basic", "meta.tag")) {
		t.Fatal("expected prefix match against the stack")
	}
	if m.Matches(stack(t, "source.js")) {
		t.Fatal("expected no match")
	}
}

func TestSelectorAndSequentialScopes(t *testing.T) {
	m, err := ParseInjectionSelector("text.html meta.tag")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Matches(stack(t, "text.html.basic", "meta.tag.structure")) {
		t.Fatal("expected match: meta.tag appears after text.html in stack order")
	}
	if m.Matches(stack(t, "meta.tag.structure", "text.html.basic")) {
		t.Fatal("expected no match: meta.tag appears before text.html")
	}
}

func TestSelectorOrAlternative(t *testing.T) {
	m, err := ParseInjectionSelector("source.js | source.ts")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Matches(stack(t, "source.ts")) {
		t.Fatal("expected source.ts to satisfy the alternative")
	}
	if m.Matches(stack(t, "source.python")) {
		t.Fatal("expected no match")
	}
}

func TestSelectorNotNegation(t *testing.T) {
	m, err := ParseInjectionSelector("source.js -comment")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Matches(stack(t, "source.js")) {
		t.Fatal("expected match: no comment scope present")
	}
	if m.Matches(stack(t, "source.js", "comment.line")) {
		t.Fatal("expected no match: comment scope excludes it")
	}
}

func TestSelectorParenGrouping(t *testing.T) {
	m, err := ParseInjectionSelector("(source.js | source.ts) meta.tag")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Matches(stack(t, "source.ts", "meta.tag")) {
		t.Fatal("expected grouped alternative to combine with the trailing scope")
	}
}

func TestSelectorCommaIsOr(t *testing.T) {
	m, err := ParseInjectionSelector("source.ts, source.js, source.coffee")
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"source.ts", "source.js", "source.coffee"} {
		if !m.Matches(stack(t, name)) {
			t.Fatalf("expected comma to behave like OR: %q should match alone", name)
		}
	}
	if m.Matches(stack(t, "source.python")) {
		t.Fatal("expected no match for an unlisted scope")
	}
}

func TestSplitTopLevelSelectorsRespectsParens(t *testing.T) {
	got := SplitTopLevelSelectors("L:source.js -comment -string, L:source.ts -comment -string")
	if len(got) != 2 {
		t.Fatalf("expected 2 top-level segments, got %d: %v", len(got), got)
	}
	if got[0] != "L:source.js -comment -string" || got[1] != "L:source.ts -comment -string" {
		t.Fatalf("unexpected segments: %v", got)
	}

	nested := SplitTopLevelSelectors("L:(source.ts, source.js, source.coffee)")
	if len(nested) != 1 {
		t.Fatalf("expected a comma inside parens to stay in one segment, got %v", nested)
	}
}
