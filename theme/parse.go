package theme

import (
	"image/color"
	"strings"
)

// ThemeJSON is the VSCode color theme schema: a flat "colors" map for UI
// chrome (we only read editor.foreground/editor.background from it) plus a
// "tokenColors" list of scope-selector color rules.
type ThemeJSON struct {
	Name        string            `json:"name"`
	Colors      map[string]string `json:"colors"`
	TokenColors []TokenColorJSON  `json:"tokenColors"`
}

type TokenColorJSON struct {
	Scope    any `json:"scope"`
	Settings struct {
		Foreground string `json:"foreground"`
		Background string `json:"background"`
		FontStyle  string `json:"fontStyle"`
	} `json:"settings"`
}

type FontStyle int

const (
	Bold FontStyle = 1 << iota
	Italic
	Underline
	Strikethrough
)

func (s FontStyle) Has(has FontStyle) bool {
	return s&has == has
}

type TokenColor struct {
	// uniform images
	Foreground color.Color
	Background color.Color
	Children   map[string]TokenColor
	FontStyle  FontStyle
}

type Theme struct {
	TokenColor
	Tokens map[string]TokenColor

	slicedCache map[string]TokenColor
}

func setName(dest map[string]TokenColor, scope string, col TokenColor) {
	parts := strings.Split(scope, " ")
	current := dest

	for i := len(parts) - 1; i >= 0; i-- {
		part := parts[i]
		c, _ := current[part]
		if i == len(parts)-1 {
			// final part, assign color
			c.Foreground = col.Foreground
			c.Background = col.Background
			c.FontStyle = col.FontStyle
		}
		if c.Children == nil {
			c.Children = make(map[string]TokenColor)
		}
		current[part] = c
		current = c.Children
	}
}

// parseThemeColor parses a settings color value, treating "" and the
// VSCode sentinel "inherit" alike: both mean "don't override", so the
// caller's existing color (usually nil, falling through to the theme
// default) is left untouched.
func parseThemeColor(value string) color.Color {
	if value == "" || value == "inherit" {
		return nil
	}
	c, err := parseColor(value)
	if err != nil {
		return nil
	}
	return c
}

func parseToken(jc TokenColorJSON) (col TokenColor) {
	col.Foreground = parseThemeColor(jc.Settings.Foreground)
	col.Background = parseThemeColor(jc.Settings.Background)
	for field := range strings.FieldsSeq(jc.Settings.FontStyle) {
		switch field {
		case "bold":
			col.FontStyle |= Bold
		case "italic":
			col.FontStyle |= Italic
		case "underline":
			col.FontStyle |= Underline
		case "strikethrough":
			col.FontStyle |= Strikethrough
		}
	}
	return
}

// ParseTheme converts a parsed VSCode theme JSON document into a Theme
// ready for TokenColor lookups. editor.foreground/editor.background from
// the top-level "colors" map become the theme's fallback colors, applied
// by the render package (unless Options.Transparent is set) to any span
// whose matched rule leaves that color unset.
func ParseTheme(j ThemeJSON) *Theme {
	tokens := make(map[string]TokenColor)
	for _, jc := range j.TokenColors {
		col := parseToken(jc)
		switch name := jc.Scope.(type) {
		case string:
			for _, part := range strings.Split(name, ",") {
				setName(tokens, strings.TrimSpace(part), col)
			}
		case []any:
			for _, name := range name {
				if nstr, ok := name.(string); ok {
					setName(tokens, nstr, col)
				}
			}
		}
	}

	var base TokenColor
	if fg, ok := j.Colors["editor.foreground"]; ok {
		base.Foreground = parseThemeColor(fg)
	}
	if bg, ok := j.Colors["editor.background"]; ok {
		base.Background = parseThemeColor(bg)
	}

	return &Theme{
		TokenColor:  base,
		Tokens:      tokens,
		slicedCache: make(map[string]TokenColor),
	}
}
