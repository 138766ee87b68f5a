package markdownfence

import (
	"reflect"
	"testing"
)

func TestParseLanguageOnly(t *testing.T) {
	r := Parse("rust")
	if r.Lang != "rust" {
		t.Fatalf("lang = %q", r.Lang)
	}
	if !reflect.DeepEqual(r.Options, RenderOptions{}) {
		t.Fatalf("options = %+v", r.Options)
	}
	if len(r.Rest) != 0 {
		t.Fatalf("rest = %+v", r.Rest)
	}
}

func TestParseEmptyString(t *testing.T) {
	r := Parse("")
	if r.Lang != PlainGrammarName {
		t.Fatalf("lang = %q", r.Lang)
	}
}

func TestParseLineNumbers(t *testing.T) {
	r := Parse("python,linenos")
	if r.Lang != "python" || !r.Options.ShowLineNumbers {
		t.Fatalf("got %+v", r)
	}
}

func TestParseLineNumberStart(t *testing.T) {
	r := Parse("javascript,linenos,linenostart=5")
	if !r.Options.ShowLineNumbers || r.Options.LineNumberStart != 5 {
		t.Fatalf("got %+v", r.Options)
	}
}

func TestParseHighlightLinesMultiple(t *testing.T) {
	r := Parse("rust,hl_lines=1-3 5 7-9")
	want := []LineRange{{1, 3}, {5, 5}, {7, 9}}
	if !reflect.DeepEqual(r.Options.HighlightLines, want) {
		t.Fatalf("got %+v", r.Options.HighlightLines)
	}
}

func TestParseHideLines(t *testing.T) {
	r := Parse("rust,hide_lines=2 4-6")
	want := []LineRange{{2, 2}, {4, 6}}
	if !reflect.DeepEqual(r.Options.HideLines, want) {
		t.Fatalf("got %+v", r.Options.HideLines)
	}
}

func TestParseMetadata(t *testing.T) {
	r := Parse("rust,name=example,copy=true")
	if r.Rest["name"] != "example" || r.Rest["copy"] != "true" {
		t.Fatalf("got %+v", r.Rest)
	}
}

func TestParseComplexCombination(t *testing.T) {
	r := Parse("rust,linenos,linenostart=10,hl_lines=1-3 5,hide_lines=2,name=test")
	if r.Lang != "rust" {
		t.Fatalf("lang = %q", r.Lang)
	}
	if !r.Options.ShowLineNumbers || r.Options.LineNumberStart != 10 {
		t.Fatalf("got %+v", r.Options)
	}
	if !reflect.DeepEqual(r.Options.HighlightLines, []LineRange{{1, 3}, {5, 5}}) {
		t.Fatalf("highlight = %+v", r.Options.HighlightLines)
	}
	if !reflect.DeepEqual(r.Options.HideLines, []LineRange{{2, 2}}) {
		t.Fatalf("hide = %+v", r.Options.HideLines)
	}
	if r.Rest["name"] != "test" {
		t.Fatalf("rest = %+v", r.Rest)
	}
}

func TestParseReversedRange(t *testing.T) {
	r := Parse("go,hl_lines=9-7")
	if !reflect.DeepEqual(r.Options.HighlightLines, []LineRange{{7, 9}}) {
		t.Fatalf("got %+v", r.Options.HighlightLines)
	}
}
