package regexp

import "testing"

func TestSearchFindsMatchPastFrom(t *testing.T) {
	re, err := Compile(`b+`, OptionNone)
	if err != nil {
		t.Fatal(err)
	}
	defer re.Free()

	groups, err := re.Search("aaabbbccc", 0, 9, OptionNone)
	if err != nil {
		t.Fatal(err)
	}
	if groups == nil {
		t.Fatal("expected a match")
	}
	if groups[0] != (Range{3, 6}) {
		t.Fatalf("groups[0] = %+v, want {3 6}", groups[0])
	}
}

func TestSearchRespectsLookbehindAcrossFrom(t *testing.T) {
	re, err := Compile(`(?<=a)b`, OptionNone)
	if err != nil {
		t.Fatal(err)
	}
	defer re.Free()

	// searching starting at index 1 (the 'b') should still see the 'a'
	// immediately before it for the lookbehind to fire.
	groups, err := re.Search("ab", 1, 2, OptionNone)
	if err != nil {
		t.Fatal(err)
	}
	if groups == nil {
		t.Fatal("expected lookbehind match to succeed when scan starts past the lookbehind text")
	}
}

func TestRegSetPicksEarliestLeftmostMatch(t *testing.T) {
	rs, err := NewRegSet([]string{`c+`, `a+`, `b+`})
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Free()

	idx, groups, err := rs.SearchAt("xxaaabbbccc", 0, 11, OptionNone)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 1 {
		t.Fatalf("idx = %d, want 1 (pattern a+)", idx)
	}
	if groups[0] != (Range{2, 5}) {
		t.Fatalf("groups[0] = %+v, want {2 5}", groups[0])
	}
}

func TestRegSetTieBrokenByDeclarationOrder(t *testing.T) {
	rs, err := NewRegSet([]string{`a`, `aa`})
	if err != nil {
		t.Fatal(err)
	}
	defer rs.Free()

	idx, _, err := rs.SearchAt("aa", 0, 2, OptionNone)
	if err != nil {
		t.Fatal(err)
	}
	if idx != 0 {
		t.Fatalf("idx = %d, want 0 (first declared pattern starting at the same position)", idx)
	}
}

func TestTransformZAnchor(t *testing.T) {
	got := TransformZAnchor(`foo\z`)
	want := `foo$(?!\n)(?<!\n)`
	if got != want {
		t.Fatalf("TransformZAnchor() = %q, want %q", got, want)
	}
}

func TestTransformZAnchorLeavesEscapedBackslash(t *testing.T) {
	got := TransformZAnchor(`foo\\z`)
	if got != `foo\\z` {
		t.Fatalf("TransformZAnchor() = %q, want unchanged", got)
	}
}

func TestResolveBackreferences(t *testing.T) {
	source := "foo bar"
	positions := []Range{{0, 7}, {0, 3}}
	got := ResolveBackreferences(`\1 end`, source, positions)
	if got != "foo end" {
		t.Fatalf("ResolveBackreferences() = %q, want %q", got, "foo end")
	}
}

func TestResolveBackreferencesEscapesMetacharacters(t *testing.T) {
	source := "a.b"
	positions := []Range{{0, 3}, {0, 3}}
	got := ResolveBackreferences(`\1`, source, positions)
	if got != `a\.b` {
		t.Fatalf("ResolveBackreferences() = %q, want %q", got, `a\.b`)
	}
}

func TestResolveBackreferencesMissingGroupIsEmpty(t *testing.T) {
	source := "foo"
	positions := []Range{{0, 3}}
	got := ResolveBackreferences(`[\2]`, source, positions)
	if got != "[]" {
		t.Fatalf("ResolveBackreferences() = %q, want %q", got, "[]")
	}
}

func TestEscapeMeta(t *testing.T) {
	got := EscapeMeta("a.b*c")
	if got != `a\.b\*c` {
		t.Fatalf("EscapeMeta() = %q, want %q", got, `a\.b\*c`)
	}
}
