package theme

import (
	"image/color"
	"testing"

	"github.com/scopelang/tmgrammar/scope"
)

// rgba returns c's straight (non-premultiplied) 8-bit channels, so a
// translucent color reads back as the hex digits it was parsed from.
func rgba(t *testing.T, c color.Color) (uint8, uint8, uint8, uint8) {
	t.Helper()
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return n.R, n.G, n.B, n.A
}

func TestParseColorHexForms(t *testing.T) {
	cases := []struct {
		in               string
		r, g, b, a uint8
	}{
		{"#fff", 0xff, 0xff, 0xff, 0xff},
		{"#0f08", 0x00, 0xff, 0x00, 0x88},
		{"#336699", 0x33, 0x66, 0x99, 0xff},
		{"#33669980", 0x33, 0x66, 0x99, 0x80},
	}
	for _, c := range cases {
		col, err := parseColor(c.in)
		if err != nil {
			t.Fatalf("parseColor(%q): %v", c.in, err)
		}
		r, g, b, a := rgba(t, col)
		if r != c.r || g != c.g || b != c.b || a != c.a {
			t.Fatalf("parseColor(%q) = %02x%02x%02x%02x, want %02x%02x%02x%02x", c.in, r, g, b, a, c.r, c.g, c.b, c.a)
		}
	}
}

func TestParseColorRejectsMissingHash(t *testing.T) {
	if _, err := parseColor("336699"); err == nil {
		t.Fatalf("expected error for color missing leading #")
	}
}

func TestParseThemeColorInheritAndEmpty(t *testing.T) {
	if c := parseThemeColor(""); c != nil {
		t.Fatalf("empty value should yield nil, got %v", c)
	}
	if c := parseThemeColor("inherit"); c != nil {
		t.Fatalf("inherit should yield nil, got %v", c)
	}
}

func TestParseThemeScopeTrie(t *testing.T) {
	j := ThemeJSON{
		Colors: map[string]string{
			"editor.foreground": "#eeeeee",
			"editor.background": "#111111",
		},
		TokenColors: []TokenColorJSON{
			{
				Scope: "keyword.control, keyword.operator",
				Settings: struct {
					Foreground string `json:"foreground"`
					Background string `json:"background"`
					FontStyle  string `json:"fontStyle"`
				}{Foreground: "#ff0000", FontStyle: "bold"},
			},
			{
				Scope: []any{"keyword.control.rust"},
				Settings: struct {
					Foreground string `json:"foreground"`
					Background string `json:"background"`
					FontStyle  string `json:"fontStyle"`
				}{Foreground: "#00ff00"},
			},
		},
	}

	th := ParseTheme(j)
	if th.Foreground == nil {
		t.Fatalf("expected base foreground from editor.foreground")
	}
	r, g, b, _ := rgba(t, th.Foreground)
	if r != 0xee || g != 0xee || b != 0xee {
		t.Fatalf("unexpected base foreground: %02x%02x%02x", r, g, b)
	}

	exact, ok := th.getToken([]scope.Scope{scope.New("keyword.control.rust")})
	if !ok {
		t.Fatalf("expected a match for the exact registered scope")
	}
	r, g, b, _ = rgba(t, exact.Foreground)
	if r != 0x00 || g != 0xff || b != 0x00 {
		t.Fatalf("exact match should pick the more specific rule, got %02x%02x%02x", r, g, b)
	}

	fallback, ok := th.getToken([]scope.Scope{scope.New("keyword.control.other")})
	if !ok {
		t.Fatalf("expected a dotted-prefix fallback match")
	}
	r, g, b, _ = rgba(t, fallback.Foreground)
	if r != 0xff || g != 0x00 || b != 0x00 {
		t.Fatalf("fallback should pick keyword.control, got %02x%02x%02x", r, g, b)
	}
	if !fallback.FontStyle.Has(Bold) {
		t.Fatalf("fallback rule should carry bold font style")
	}

	if _, ok := th.getToken([]scope.Scope{scope.New("unrelated.scope")}); ok {
		t.Fatalf("expected no match for an unrelated scope")
	}
}
