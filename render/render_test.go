package render

import (
	"image/color"
	"strings"
	"testing"

	"github.com/scopelang/tmgrammar/scope"
	"github.com/scopelang/tmgrammar/theme"
	"github.com/scopelang/tmgrammar/tokenizer"
)

func makeTokens(text string, scopes ...string) []tokenizer.Token {
	stack := make([]scope.Scope, len(scopes))
	for i, s := range scopes {
		stack[i] = scope.New(s)
	}
	return []tokenizer.Token{{Start: 0, End: len(text), Scopes: stack}}
}

func redTheme() *theme.Theme {
	return theme.ParseTheme(theme.ThemeJSON{
		Colors: map[string]string{
			"editor.foreground": "#eeeeee",
			"editor.background": "#111111",
		},
		TokenColors: []theme.TokenColorJSON{
			{
				Scope: "keyword.control",
				Settings: struct {
					Foreground string `json:"foreground"`
					Background string `json:"background"`
					FontStyle  string `json:"fontStyle"`
				}{Foreground: "#ff0000", FontStyle: "bold"},
			},
		},
	})
}

func TestANSIAppliesEscapesAndReset(t *testing.T) {
	th := redTheme()
	toks := makeTokens("if", "keyword.control")

	var buf strings.Builder
	if err := ANSI(&buf, "if", toks, th, Options{}); err != nil {
		t.Fatalf("ANSI: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "38;2;255;0;0") {
		t.Fatalf("expected red foreground escape, got %q", out)
	}
	if !strings.Contains(out, ";1") {
		t.Fatalf("expected bold escape, got %q", out)
	}
	if !strings.HasSuffix(out, "\033[0m\n") {
		t.Fatalf("expected trailing reset, got %q", out)
	}
}

func TestANSITransparentSkipsThemeFallback(t *testing.T) {
	th := redTheme()
	toks := makeTokens("x", "unrelated.scope")

	var buf strings.Builder
	if err := ANSI(&buf, "x", toks, th, Options{Transparent: true}); err != nil {
		t.Fatalf("ANSI: %v", err)
	}
	// no rule covers "unrelated.scope" and Transparent suppresses the
	// editor.foreground/background fallback, so no color codes should appear.
	if strings.Contains(buf.String(), "38;2") || strings.Contains(buf.String(), "48;2") {
		t.Fatalf("expected no color codes in transparent mode, got %q", buf.String())
	}
}

func TestHTMLEscapesAndWrapsSpan(t *testing.T) {
	th := redTheme()
	toks := makeTokens("<b>", "keyword.control")

	var buf strings.Builder
	if err := HTML(&buf, "<b>", toks, th, Options{}); err != nil {
		t.Fatalf("HTML: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "<b>") && !strings.Contains(out, "&lt;b&gt;") {
		t.Fatalf("expected source text to be HTML-escaped, got %q", out)
	}
	if !strings.Contains(out, "color:#ff0000") {
		t.Fatalf("expected inline red color style, got %q", out)
	}
	if !strings.Contains(out, "font-weight:bold") {
		t.Fatalf("expected inline bold style, got %q", out)
	}
}

func TestHTMLClassesUsesInnermostScope(t *testing.T) {
	th := redTheme()
	toks := makeTokens("if", "keyword.control.flow")

	var buf strings.Builder
	if err := HTMLClasses(&buf, "if", toks, th, Options{ClassPrefix: "hl-"}); err != nil {
		t.Fatalf("HTMLClasses: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `class="hl-keyword-control-flow"`) {
		t.Fatalf("expected class derived from innermost scope, got %q", out)
	}
}

func TestHTMLClassesDefaultPrefix(t *testing.T) {
	th := redTheme()
	toks := makeTokens("if", "keyword.control")

	var buf strings.Builder
	if err := HTMLClasses(&buf, "if", toks, th, Options{}); err != nil {
		t.Fatalf("HTMLClasses: %v", err)
	}
	if !strings.Contains(buf.String(), `class="tm-keyword-control"`) {
		t.Fatalf("expected default tm- prefix, got %q", buf.String())
	}
}

func TestCSSEscape(t *testing.T) {
	if got := cssEscape("keyword.control.flow"); got != "keyword-control-flow" {
		t.Fatalf("cssEscape = %q", got)
	}
}

func TestCSSColor(t *testing.T) {
	c := color.NRGBA{R: 0x33, G: 0x66, B: 0x99, A: 0xff}
	if got := cssColor(c); got != "#336699" {
		t.Fatalf("cssColor = %q", got)
	}
}

func TestCSSEmitsSortedRules(t *testing.T) {
	th := theme.ParseTheme(theme.ThemeJSON{
		TokenColors: []theme.TokenColorJSON{
			{
				Scope: "keyword.control",
				Settings: struct {
					Foreground string `json:"foreground"`
					Background string `json:"background"`
					FontStyle  string `json:"fontStyle"`
				}{Foreground: "#ff0000"},
			},
			{
				Scope: "comment",
				Settings: struct {
					Foreground string `json:"foreground"`
					Background string `json:"background"`
					FontStyle  string `json:"fontStyle"`
				}{Foreground: "#00ff00", FontStyle: "italic"},
			},
		},
	})

	var buf strings.Builder
	if err := CSS(&buf, th, Options{}); err != nil {
		t.Fatalf("CSS: %v", err)
	}
	out := buf.String()
	commentIdx := strings.Index(out, ".tm-comment")
	keywordIdx := strings.Index(out, ".tm-keyword-control")
	if commentIdx == -1 || keywordIdx == -1 {
		t.Fatalf("expected both rules present, got %q", out)
	}
	if commentIdx > keywordIdx {
		t.Fatalf("expected alphabetically sorted rules (comment before keyword), got %q", out)
	}
	if !strings.Contains(out, "font-style:italic") {
		t.Fatalf("expected italic declaration, got %q", out)
	}
}
