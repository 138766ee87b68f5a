// Package render turns tokenized, theme-colored spans into an output
// format: ANSI escapes for a terminal, or HTML/CSS for a browser.
package render

import (
	"bytes"
	"fmt"
	"html"
	"image/color"
	"io"
	"sort"
	"strings"

	"github.com/scopelang/tmgrammar/theme"
	"github.com/scopelang/tmgrammar/tokenizer"
)

// Options controls rendering behavior shared across output formats.
type Options struct {
	// Transparent suppresses falling back to the theme's editor.foreground
	// / editor.background for spans no tokenColors rule covered.
	Transparent bool
	// ClassPrefix is the CSS class prefix HTMLClasses and CSS use; "tm-" if
	// empty.
	ClassPrefix string
}

func classPrefix(opts Options) string {
	if opts.ClassPrefix == "" {
		return "tm-"
	}
	return opts.ClassPrefix
}

func resolve(mappings []theme.ColorMapping, th *theme.Theme, opts Options) []theme.ColorMapping {
	if opts.Transparent {
		return mappings
	}
	out := make([]theme.ColorMapping, len(mappings))
	for i, m := range mappings {
		if m.Foreground == nil {
			m.Foreground = th.Foreground
		}
		if m.Background == nil {
			m.Background = th.Background
		}
		out[i] = m
	}
	return out
}

// ANSI writes source to w with 24-bit ANSI color escapes applied per
// token, generalized from a single-purpose terminal dumper into a reusable
// renderer any caller can drive with its own token/theme pair.
func ANSI(w io.Writer, source string, tokens []tokenizer.Token, th *theme.Theme, opts Options) error {
	mappings := resolve(th.MapTokens(tokens), th, opts)

	cur := -1
	for i, chr := range source {
		if cur < len(mappings)-1 && mappings[cur+1].Offset == i {
			cur++
			if err := writeANSICode(w, mappings[cur].TokenColor); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%c", chr); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\033[0m\n")
	return err
}

func writeANSICode(w io.Writer, tok theme.TokenColor) error {
	var csi bytes.Buffer
	csi.WriteString("\033[0")

	if tok.FontStyle.Has(theme.Bold) {
		csi.WriteString(";1")
	}
	if tok.FontStyle.Has(theme.Italic) {
		csi.WriteString(";3")
	}
	if tok.FontStyle.Has(theme.Underline) {
		csi.WriteString(";4")
	}
	if tok.FontStyle.Has(theme.Strikethrough) {
		csi.WriteString(";9")
	}
	if tok.Foreground != nil {
		r, g, b, _ := tok.Foreground.RGBA()
		fmt.Fprintf(&csi, ";38;2;%d;%d;%d", r>>8, g>>8, b>>8)
	}
	if tok.Background != nil {
		r, g, b, _ := tok.Background.RGBA()
		fmt.Fprintf(&csi, ";48;2;%d;%d;%d", r>>8, g>>8, b>>8)
	}
	csi.WriteByte('m')
	_, err := csi.WriteTo(w)
	return err
}

// HTML writes source as a <pre><code> block, one inline-styled <span> per
// token. Caller owns any surrounding page chrome.
func HTML(w io.Writer, source string, tokens []tokenizer.Token, th *theme.Theme, opts Options) error {
	mappings := resolve(th.MapTokens(tokens), th, opts)

	if _, err := io.WriteString(w, "<pre><code>"); err != nil {
		return err
	}
	attr := func(i int) string { return htmlInlineStyle(mappings[i].TokenColor) }
	if err := writeHTMLSpans(w, source, mappings, attr); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</code></pre>\n")
	return err
}

// HTMLClasses is like HTML but emits a class derived from the token's
// innermost scope instead of an inline style, for pairing with a stylesheet
// produced by CSS.
func HTMLClasses(w io.Writer, source string, tokens []tokenizer.Token, th *theme.Theme, opts Options) error {
	mappings := resolve(th.MapTokens(tokens), th, opts)
	prefix := classPrefix(opts)

	if _, err := io.WriteString(w, "<pre><code>"); err != nil {
		return err
	}
	attr := func(i int) string { return htmlClassAttr(tokens[i], prefix) }
	if err := writeHTMLSpans(w, source, mappings, attr); err != nil {
		return err
	}
	_, err := io.WriteString(w, "</code></pre>\n")
	return err
}

// writeHTMLSpans walks source by rune, opening/closing a <span> each time
// mappings' offset advances to the next token; attr receives the index into
// mappings (and, by extension, the parallel tokens slice the caller closed
// over) so it can derive either an inline style or a class name.
func writeHTMLSpans(w io.Writer, source string, mappings []theme.ColorMapping, attr func(int) string) error {
	cur := -1
	open := false
	for i, chr := range source {
		if cur < len(mappings)-1 && mappings[cur+1].Offset == i {
			cur++
			if open {
				if _, err := io.WriteString(w, "</span>"); err != nil {
					return err
				}
			}
			a := attr(cur)
			if a == "" {
				open = false
			} else {
				if _, err := fmt.Fprintf(w, "<span %s>", a); err != nil {
					return err
				}
				open = true
			}
		}
		if _, err := io.WriteString(w, html.EscapeString(string(chr))); err != nil {
			return err
		}
	}
	if open {
		_, err := io.WriteString(w, "</span>")
		return err
	}
	return nil
}

func htmlInlineStyle(tok theme.TokenColor) string {
	style := cssDeclarations(tok)
	if style == "" {
		return ""
	}
	return fmt.Sprintf(`style="%s"`, html.EscapeString(style))
}

// htmlClassAttr derives a class name from a token's innermost (most
// specific) scope, dots replaced by dashes to form a valid CSS identifier,
// matching the selectors collectCSSRules emits from the theme's scope trie.
func htmlClassAttr(tok tokenizer.Token, prefix string) string {
	if len(tok.Scopes) == 0 {
		return ""
	}
	name := tok.Scopes[len(tok.Scopes)-1].String()
	if name == "" {
		return ""
	}
	return fmt.Sprintf(`class="%s%s"`, prefix, cssEscape(name))
}

func cssDeclarations(tok theme.TokenColor) string {
	var decls []string
	if tok.Foreground != nil {
		decls = append(decls, "color:"+cssColor(tok.Foreground))
	}
	if tok.Background != nil {
		decls = append(decls, "background-color:"+cssColor(tok.Background))
	}
	if tok.FontStyle.Has(theme.Bold) {
		decls = append(decls, "font-weight:bold")
	}
	if tok.FontStyle.Has(theme.Italic) {
		decls = append(decls, "font-style:italic")
	}
	var textDecor []string
	if tok.FontStyle.Has(theme.Underline) {
		textDecor = append(textDecor, "underline")
	}
	if tok.FontStyle.Has(theme.Strikethrough) {
		textDecor = append(textDecor, "line-through")
	}
	if len(textDecor) > 0 {
		decls = append(decls, "text-decoration:"+strings.Join(textDecor, " "))
	}
	return strings.Join(decls, ";")
}

func cssColor(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

// CSS emits a stylesheet with one rule per named scope in th, for pairing
// with HTMLClasses output. Rule selectors are sorted for stable output.
func CSS(w io.Writer, th *theme.Theme, opts Options) error {
	prefix := classPrefix(opts)
	rules := map[string]string{}
	collectCSSRules(th.Tokens, nil, rules)

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := fmt.Fprintf(w, ".%s%s { %s; }\n", prefix, cssEscape(name), rules[name]); err != nil {
			return err
		}
	}
	return nil
}

func collectCSSRules(tokens map[string]theme.TokenColor, path []string, out map[string]string) {
	for name, col := range tokens {
		full := append(append([]string{}, path...), name)
		selector := strings.Join(full, ".")
		if decl := cssDeclarations(col); decl != "" {
			out[selector] = decl
		}
		if len(col.Children) > 0 {
			collectCSSRules(col.Children, full, out)
		}
	}
}

func cssEscape(s string) string {
	return strings.ReplaceAll(s, ".", "-")
}
