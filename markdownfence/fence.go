// Package markdownfence parses a fenced-code-block info string ("```rust
// ,linenos,hl_lines=1-3" style) into a grammar name plus the small set of
// rendering options a markdown-to-HTML pipeline typically wants to forward
// to render.HTML: line numbers and per-line highlight/hide ranges.
package markdownfence

import (
	"strconv"
	"strings"
)

// PlainGrammarName is the language used when a fence has no recognizable
// language token, e.g. a bare "```" or "```,linenos".
const PlainGrammarName = "plaintext"

// LineRange is an inclusive 1-based line range, e.g. "5-7" or a bare "5"
// (From == To).
type LineRange struct {
	From, To int
}

// RenderOptions holds the line-display options a fence can request.
type RenderOptions struct {
	ShowLineNumbers bool
	LineNumberStart int
	HighlightLines  []LineRange
	HideLines       []LineRange
}

// ParsedFence is a fenced code block's info string, split into the
// recognized fields plus whatever extra key=value pairs it carried.
type ParsedFence struct {
	Lang    string
	Options RenderOptions
	Rest    map[string]string
}

func parseLineRange(s string) (LineRange, bool) {
	if dash := strings.IndexByte(s, '-'); dash >= 0 {
		from, err1 := strconv.Atoi(s[:dash])
		to, err2 := strconv.Atoi(s[dash+1:])
		if err1 != nil || err2 != nil {
			return LineRange{}, false
		}
		if to < from {
			from, to = to, from
		}
		return LineRange{From: from, To: to}, true
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return LineRange{}, false
	}
	return LineRange{From: v, To: v}, true
}

// Parse splits a fence info string on commas; the first comma-separated
// token with no "=" is the language. Recognized keys are linenos,
// linenostart=N, hl_lines=<ranges>, and hide_lines=<ranges>, where <ranges>
// is space-separated LineRanges. Any other key=value token becomes a Rest
// entry keyed by its name; a later token with no "=" is ignored.
func Parse(fence string) ParsedFence {
	result := ParsedFence{Rest: make(map[string]string)}
	if strings.TrimSpace(fence) == "" {
		result.Lang = PlainGrammarName
		return result
	}

	var lang string
	for _, token := range strings.Split(fence, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		key, value, hasValue := strings.Cut(token, "=")
		key = strings.TrimSpace(key)

		switch key {
		case "linenostart":
			if hasValue {
				if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
					result.Options.LineNumberStart = n
				}
			}
		case "linenos":
			result.Options.ShowLineNumbers = true
		case "hl_lines":
			if hasValue {
				for _, part := range strings.Fields(value) {
					if r, ok := parseLineRange(part); ok {
						result.Options.HighlightLines = append(result.Options.HighlightLines, r)
					}
				}
			}
		case "hide_lines":
			if hasValue {
				for _, part := range strings.Fields(value) {
					if r, ok := parseLineRange(part); ok {
						result.Options.HideLines = append(result.Options.HideLines, r)
					}
				}
			}
		default:
			if hasValue {
				result.Rest[key] = strings.TrimSpace(value)
			} else if lang == "" {
				lang = key
			}
		}
	}

	if lang == "" {
		lang = PlainGrammarName
	}
	result.Lang = lang
	return result
}
