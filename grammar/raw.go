// Package grammar compiles TextMate JSON grammars (RawGrammar) into a flat,
// shared rule table (CompiledGrammar) that the tokenizer package scans
// against, and hosts the Registry that links grammars together and caches
// pattern sets.
package grammar

import (
	"encoding/json"
	"fmt"
)

// Capture assigns a scope name (and optionally its own nested patterns) to a
// capture group within a Match, begin, end, or while regex.
type Capture struct {
	Name     string    `json:"name"`
	Patterns []Pattern `json:"patterns,omitempty"`
}

// MatchPattern matches a single-line regex.
type MatchPattern struct {
	Name     string             `json:"name,omitempty"`
	Match    string             `json:"match"`
	Captures map[string]Capture `json:"captures,omitempty"`
	Patterns []Pattern          `json:"patterns,omitempty"`
}

// BeginEndPattern matches a multi-line construct delimited by begin/end
// regexes; the end regex may reference the begin match's capture groups via
// \1..\9.
type BeginEndPattern struct {
	Name                 string              `json:"name,omitempty"`
	ContentName          string              `json:"contentName,omitempty"`
	Begin                string              `json:"begin"`
	End                  string              `json:"end"`
	Captures             map[string]Capture  `json:"captures,omitempty"`
	BeginCaptures        map[string]Capture  `json:"beginCaptures,omitempty"`
	EndCaptures          map[string]Capture  `json:"endCaptures,omitempty"`
	Patterns             []Pattern           `json:"patterns,omitempty"`
	ApplyEndPatternLast  boolFromInt         `json:"applyEndPatternLast,omitempty"`
}

// BeginWhilePattern is like BeginEndPattern, except the closing condition
// ("while") is re-evaluated at the start of every subsequent line rather
// than scanned for inline.
type BeginWhilePattern struct {
	Name          string             `json:"name,omitempty"`
	ContentName   string             `json:"contentName,omitempty"`
	Begin         string             `json:"begin"`
	While         string             `json:"while"`
	Captures      map[string]Capture `json:"captures,omitempty"`
	BeginCaptures map[string]Capture `json:"beginCaptures,omitempty"`
	WhileCaptures map[string]Capture `json:"whileCaptures,omitempty"`
	Patterns      []Pattern          `json:"patterns,omitempty"`
}

// IncludePattern references another pattern list: "#key" (same-grammar
// repository entry), "source.lang" / "source.lang#key" (another grammar),
// "$self" (this grammar's root patterns), or "$base" (the base grammar).
type IncludePattern struct {
	Include string `json:"include"`
}

// RepositoryPattern is a bare container of patterns, used for repository
// entries shaped as `{"patterns": [...]}`. The grammar's own top-level
// pattern list is RawGrammar.Patterns, a plain []Pattern.
type RepositoryPattern struct {
	Patterns []Pattern `json:"patterns,omitempty"`
}

// boolFromInt accepts TextMate's historical applyEndPatternLast encoding (0
// or 1) as well as a plain JSON boolean.
type boolFromInt bool

func (b *boolFromInt) UnmarshalJSON(data []byte) error {
	var asInt int
	if err := json.Unmarshal(data, &asInt); err == nil {
		*b = asInt != 0
		return nil
	}
	var asBool bool
	if err := json.Unmarshal(data, &asBool); err != nil {
		return err
	}
	*b = boolFromInt(asBool)
	return nil
}

// PatternKind discriminates the union stored in Pattern.
type PatternKind int

const (
	PatternMatch PatternKind = iota
	PatternBeginEnd
	PatternBeginWhile
	PatternInclude
	PatternRepository
)

// Pattern is a TextMate grammar pattern node. The raw JSON schema is an
// untagged union distinguished by which fields are present; UnmarshalJSON
// mirrors the same presence-based discrimination (begin+end beats
// begin+while beats include beats match beats bare-patterns-container).
type Pattern struct {
	Kind       PatternKind
	Match      *MatchPattern
	BeginEnd   *BeginEndPattern
	BeginWhile *BeginWhilePattern
	Include    *IncludePattern
	Repository *RepositoryPattern
}

type patternProbe struct {
	Begin   *string `json:"begin"`
	End     *string `json:"end"`
	While   *string `json:"while"`
	Include *string `json:"include"`
	Match   *string `json:"match"`
}

func (p *Pattern) UnmarshalJSON(data []byte) error {
	var probe patternProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("grammar: pattern: %w", err)
	}

	switch {
	case probe.Begin != nil && probe.End != nil:
		p.Kind = PatternBeginEnd
		p.BeginEnd = &BeginEndPattern{}
		return json.Unmarshal(data, p.BeginEnd)
	case probe.Begin != nil && probe.While != nil:
		p.Kind = PatternBeginWhile
		p.BeginWhile = &BeginWhilePattern{}
		return json.Unmarshal(data, p.BeginWhile)
	case probe.Include != nil:
		p.Kind = PatternInclude
		p.Include = &IncludePattern{}
		return json.Unmarshal(data, p.Include)
	case probe.Match != nil:
		p.Kind = PatternMatch
		p.Match = &MatchPattern{}
		return json.Unmarshal(data, p.Match)
	default:
		p.Kind = PatternRepository
		p.Repository = &RepositoryPattern{}
		return json.Unmarshal(data, p.Repository)
	}
}

// RepositoryEntry is the value side of a grammar's "repository" map: a bare
// array of patterns, an object with a "patterns" field, or a single pattern
// (begin/end, begin/while, or match) given directly.
type RepositoryEntry struct {
	DirectArray   []Pattern
	DirectPattern *Pattern
}

func (r *RepositoryEntry) UnmarshalJSON(data []byte) error {
	var arr []Pattern
	if err := json.Unmarshal(data, &arr); err == nil {
		r.DirectArray = arr
		return nil
	}
	var single Pattern
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("grammar: repository entry: %w", err)
	}
	// An object with "patterns" and nothing else still parses fine as a
	// RepositoryPattern single entry (PatternRepository kind); keep it
	// uniform as DirectPattern either way.
	r.DirectPattern = &single
	return nil
}

// Patterns returns this entry's pattern list regardless of which JSON shape
// it was written in.
func (r RepositoryEntry) Patterns() []Pattern {
	if r.DirectArray != nil {
		return r.DirectArray
	}
	if r.DirectPattern != nil {
		if r.DirectPattern.Kind == PatternRepository {
			return r.DirectPattern.Repository.Patterns
		}
		return []Pattern{*r.DirectPattern}
	}
	return nil
}

// RawGrammar is the parsed JSON form of a TextMate grammar, following the
// Microsoft TextMate schema.
type RawGrammar struct {
	Name              string                     `json:"name"`
	DisplayName       string                     `json:"displayName,omitempty"`
	ScopeName         string                     `json:"scopeName"`
	FileTypes         []string                   `json:"fileTypes,omitempty"`
	Repository        map[string]RepositoryEntry `json:"repository,omitempty"`
	Patterns          []Pattern                  `json:"patterns,omitempty"`
	FirstLineMatch    string                     `json:"firstLineMatch,omitempty"`
	FoldingStartMarker string                    `json:"foldingStartMarker,omitempty"`
	FoldingStopMarker  string                    `json:"foldingStopMarker,omitempty"`
	Injections        map[string]RepositoryEntry `json:"injections,omitempty"`
	InjectTo          []string                   `json:"injectTo,omitempty"`
	InjectionSelector string                     `json:"injectionSelector,omitempty"`
}

// LoadRawGrammar parses a TextMate grammar from JSON bytes.
func LoadRawGrammar(data []byte) (RawGrammar, error) {
	var raw RawGrammar
	if err := json.Unmarshal(data, &raw); err != nil {
		return RawGrammar{}, fmt.Errorf("grammar: decode: %w", err)
	}
	return raw, nil
}
