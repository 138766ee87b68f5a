package grammar

import (
	"github.com/scopelang/tmgrammar/regexp"
	"github.com/scopelang/tmgrammar/scope"
)

// GrammarId identifies a CompiledGrammar within a Registry.
type GrammarId uint16

// RuleId indexes a rule within one grammar's flat rule table.
type RuleId uint32

// RegexId indexes a pattern within one grammar's deduplicated regex table.
type RegexId uint32

const (
	// RootRuleID is every grammar's entry rule: its top-level pattern list.
	RootRuleID RuleId = 0
	// EndRuleID is a synthetic rule id denoting a match of the active
	// frame's end pattern; never stored in the rule table.
	EndRuleID RuleId = ^RuleId(0)
	// WhileRuleID is the analogous sentinel for an active while pattern.
	WhileRuleID RuleId = ^RuleId(0) - 1
)

// GlobalRuleRef names a rule in any grammar, used for include references
// that cross grammar boundaries once resolved by Registry.LinkGrammars.
type GlobalRuleRef struct {
	Grammar GrammarId
	Rule    RuleId
}

// CompiledCapture is a capture-group entry: the group's scope name and the
// child rule to dispatch into when that group participates in a match
// (HasRule is false, and Rule the zero value, if the group only has a name
// and no nested patterns).
type CompiledCapture struct {
	NameHasBackrefs bool
	Name            string
	Rule            GlobalRuleRef
	HasRule         bool
}

// RuleKind discriminates the Rule union.
type RuleKind int

const (
	RuleMatch RuleKind = iota
	RuleBeginEnd
	RuleBeginWhile
	RuleIncludeOnly
)

// MatchRuleData is a single-regex rule: on match, resolve captures and emit a
// token carrying the rule's (possibly backref-substituted) name.
type MatchRuleData struct {
	Regex              RegexId
	Name               string
	NameHasBackrefs    bool
	Captures           map[int]CompiledCapture
	Patterns           []GlobalRuleRef
}

// BeginEndRuleData matches a region opened by Begin and closed by End; End
// may reference Begin's capture groups via \1..\9 (EndHasBackrefs).
type BeginEndRuleData struct {
	Begin               RegexId
	End                 RegexId
	EndPatternSource    string
	Name                string
	NameHasBackrefs     bool
	ContentName         string
	ContentNameHasBackrefs bool
	Captures            map[int]CompiledCapture
	BeginCaptures       map[int]CompiledCapture
	EndCaptures         map[int]CompiledCapture
	Patterns            []GlobalRuleRef
	EndHasBackrefs      bool
	ApplyEndPatternLast bool
}

// BeginWhileRuleData is like BeginEndRuleData but the closing condition is
// only ever checked at the start of a new line, never scanned for inline.
type BeginWhileRuleData struct {
	Begin                  RegexId
	While                  RegexId
	WhilePatternSource     string
	Name                   string
	NameHasBackrefs        bool
	ContentName            string
	ContentNameHasBackrefs bool
	Captures               map[int]CompiledCapture
	BeginCaptures          map[int]CompiledCapture
	WhileCaptures          map[int]CompiledCapture
	Patterns               []GlobalRuleRef
	WhileHasBackrefs       bool
}

// IncludeOnlyRuleData owns only a child pattern list: used for repository
// entries, $self, and the grammar root.
type IncludeOnlyRuleData struct {
	Patterns []GlobalRuleRef
}

// Rule is a tagged union over the four rule shapes a compiled grammar can
// hold. Exactly one of the pointer fields matching Kind is non-nil.
type Rule struct {
	Kind        RuleKind
	Match       *MatchRuleData
	BeginEnd    *BeginEndRuleData
	BeginWhile  *BeginWhileRuleData
	IncludeOnly *IncludeOnlyRuleData
}

// Children returns the rule's own nested pattern list (empty for Match,
// which instead dispatches through its Captures).
func (r Rule) Children() []GlobalRuleRef {
	switch r.Kind {
	case RuleBeginEnd:
		return r.BeginEnd.Patterns
	case RuleBeginWhile:
		return r.BeginWhile.Patterns
	case RuleIncludeOnly:
		return r.IncludeOnly.Patterns
	default:
		return nil
	}
}

// ApplyEndPatternLast reports whether, on a start-position tie between the
// rule's end pattern and one of its body patterns, the body pattern should
// win. Only meaningful for BeginEnd rules; false otherwise.
func (r Rule) ApplyEndPatternLast() bool {
	return r.Kind == RuleBeginEnd && r.BeginEnd.ApplyEndPatternLast
}

// HasPatterns reports whether the rule carries nested patterns requiring
// retokenization when matched as a capture.
func (r Rule) HasPatterns() bool {
	return len(r.Children()) > 0
}

// GetNameScopes resolves the rule's "name" field into one or more scopes,
// substituting $N references against capture text when NameHasBackrefs.
// Names may be whitespace-separated lists of scopes.
func (r Rule) GetNameScopes(line string, captures []regexp.Range) []scope.Scope {
	switch r.Kind {
	case RuleMatch:
		return namesToScopes(r.Match.Name, r.Match.NameHasBackrefs, line, captures)
	case RuleBeginEnd:
		return namesToScopes(r.BeginEnd.Name, r.BeginEnd.NameHasBackrefs, line, captures)
	case RuleBeginWhile:
		return namesToScopes(r.BeginWhile.Name, r.BeginWhile.NameHasBackrefs, line, captures)
	default:
		return nil
	}
}

// GetContentScopes resolves the rule's "contentName" the same way
// GetNameScopes resolves "name". Only BeginEnd/BeginWhile rules have one.
func (r Rule) GetContentScopes(line string, captures []regexp.Range) []scope.Scope {
	switch r.Kind {
	case RuleBeginEnd:
		return namesToScopes(r.BeginEnd.ContentName, r.BeginEnd.ContentNameHasBackrefs, line, captures)
	case RuleBeginWhile:
		return namesToScopes(r.BeginWhile.ContentName, r.BeginWhile.ContentNameHasBackrefs, line, captures)
	default:
		return nil
	}
}
