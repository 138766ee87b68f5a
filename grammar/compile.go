package grammar

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scopelang/tmgrammar/regexp"
	"github.com/scopelang/tmgrammar/scope"
)

// namesToScopes splits a TextMate "name" field (a whitespace-separated list
// of dotted scope names) into individual scopes, substituting $1..$9 against
// captured text first when the template is known to contain backrefs.
func namesToScopes(name string, hasBackrefs bool, line string, captures []regexp.Range) []scope.Scope {
	if name == "" {
		return nil
	}
	if hasBackrefs {
		name = substituteDollarCaptures(name, line, captures)
	}
	fields := strings.Fields(name)
	scopes := make([]scope.Scope, 0, len(fields))
	for _, f := range fields {
		scopes = append(scopes, scope.New(f))
	}
	return scopes
}

func substituteDollarCaptures(tmpl, line string, captures []regexp.Range) string {
	var b strings.Builder
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '$' || i+1 >= len(tmpl) {
			b.WriteByte(c)
			continue
		}
		j := i + 1
		start := j
		for j < len(tmpl) && tmpl[j] >= '0' && tmpl[j] <= '9' {
			j++
		}
		if j == start {
			b.WriteByte(c)
			continue
		}
		n, _ := strconv.Atoi(tmpl[start:j])
		if n >= 0 && n < len(captures) {
			pos := captures[n]
			if pos.Start >= 0 && pos.End <= len(line) && pos.Start <= pos.End {
				b.WriteString(line[pos.Start:pos.End])
			}
		}
		i = j - 1
	}
	return b.String()
}

// hasBackref reports whether pattern contains a \1..\9 backreference, in
// which case the regex cannot be precompiled until the referring match
// happens (its source text depends on another rule's captures).
func hasBackref(pattern string) bool {
	for i := 0; i+1 < len(pattern); i++ {
		if pattern[i] == '\\' {
			if pattern[i+1] >= '1' && pattern[i+1] <= '9' {
				return true
			}
			i++
		}
	}
	return false
}

// hasDollarBackref reports whether a name/contentName template references
// capture groups via $0..$9, requiring per-match scope resolution.
func hasDollarBackref(tmpl string) bool {
	for i := 0; i+1 < len(tmpl); i++ {
		if tmpl[i] == '$' && tmpl[i+1] >= '0' && tmpl[i+1] <= '9' {
			return true
		}
	}
	return false
}

// CompiledGrammar is the flat, immutable, shareable result of compiling one
// RawGrammar: a rule table indexed by RuleId and a deduplicated regex source
// table indexed by RegexId. Include references that could not be resolved
// within the grammar itself are left as unresolved names on the grammar
// (unresolvedIncludes) until the owning Registry's LinkGrammars runs.
type CompiledGrammar struct {
	Name              string
	ScopeName         string
	ScopeID           scope.Scope
	FileTypes         []string
	FirstLineRegex    string
	InjectTo          []string
	Rules             []Rule
	Regexes           []string
	InjectionSelectors []InjectionEntry
	// unresolvedIncludes maps a RuleId slot that holds a placeholder
	// IncludeOnlyRuleData ("$self", "$base" or a cross-grammar reference)
	// to the raw include string, consumed by Registry.LinkGrammars.
	unresolvedIncludes map[RuleId]string
	repository         map[string]RuleId
}

// InjectionEntry pairs a compiled injection selector with the rule it
// activates and its tie-break precedence.
type InjectionEntry struct {
	Selector   *SelectorMatcher
	Precedence InjectionPrecedence
	Rule       GlobalRuleRef
	Source     string
}

type compiler struct {
	g          *CompiledGrammar
	raw        RawGrammar
	regexIndex map[string]RegexId
	visiting   map[string]bool
}

// CompileGrammar lowers a parsed TextMate grammar into a flat rule table.
// Include references of the form "source.other" or "source.other#key" are
// left unresolved (tracked on the returned CompiledGrammar) until the
// grammar is added to a Registry and LinkGrammars is called.
func CompileGrammar(raw RawGrammar, scopeRegistry *scope.Registry) (*CompiledGrammar, error) {
	if raw.ScopeName == "" {
		return nil, fmt.Errorf("grammar: missing scopeName")
	}
	scopeID, err := scopeRegistry.Build(raw.ScopeName)
	if err != nil {
		return nil, fmt.Errorf("grammar: scopeName %q: %w", raw.ScopeName, err)
	}

	g := &CompiledGrammar{
		Name:               raw.Name,
		ScopeName:          raw.ScopeName,
		ScopeID:            scopeID,
		FileTypes:          raw.FileTypes,
		FirstLineRegex:     raw.FirstLineMatch,
		InjectTo:           raw.InjectTo,
		unresolvedIncludes: map[RuleId]string{},
		repository:         map[string]RuleId{},
	}

	c := &compiler{
		g:          g,
		raw:        raw,
		regexIndex: map[string]RegexId{},
		visiting:   map[string]bool{},
	}

	// Reserve RootRuleID = 0 up front so repository entries compiled while
	// building the root's children can never collide with it.
	g.Rules = append(g.Rules, Rule{})

	rootPatterns, err := c.compilePatternList(raw.Patterns)
	if err != nil {
		return nil, err
	}
	g.Rules[RootRuleID] = Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{Patterns: rootPatterns}}

	if err := c.compileInjections(); err != nil {
		return nil, err
	}

	return g, nil
}

func (c *compiler) internRegex(pattern string) RegexId {
	if id, ok := c.regexIndex[pattern]; ok {
		return id
	}
	id := RegexId(len(c.g.Regexes))
	c.g.Regexes = append(c.g.Regexes, pattern)
	c.regexIndex[pattern] = id
	return id
}

func (c *compiler) allocRule(r Rule) RuleId {
	id := RuleId(len(c.g.Rules))
	c.g.Rules = append(c.g.Rules, r)
	return id
}

func (c *compiler) compilePatternList(patterns []Pattern) ([]GlobalRuleRef, error) {
	refs := make([]GlobalRuleRef, 0, len(patterns))
	for _, p := range patterns {
		ref, err := c.compilePattern(p)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (c *compiler) compilePattern(p Pattern) (GlobalRuleRef, error) {
	switch p.Kind {
	case PatternMatch:
		return c.compileMatch(*p.Match)
	case PatternBeginEnd:
		return c.compileBeginEnd(*p.BeginEnd)
	case PatternBeginWhile:
		return c.compileBeginWhile(*p.BeginWhile)
	case PatternInclude:
		return c.compileInclude(p.Include.Include)
	case PatternRepository:
		children, err := c.compilePatternList(p.Repository.Patterns)
		if err != nil {
			return GlobalRuleRef{}, err
		}
		id := c.allocRule(Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{Patterns: children}})
		return GlobalRuleRef{Rule: id}, nil
	default:
		return GlobalRuleRef{}, fmt.Errorf("grammar: unknown pattern kind %v", p.Kind)
	}
}

func (c *compiler) compileCaptures(raw map[string]Capture) (map[int]CompiledCapture, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[int]CompiledCapture, len(raw))
	for key, cap := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("grammar: capture index %q: %w", key, err)
		}
		entry := CompiledCapture{
			Name:            cap.Name,
			NameHasBackrefs: hasDollarBackref(cap.Name),
		}
		if len(cap.Patterns) > 0 {
			children, err := c.compilePatternList(cap.Patterns)
			if err != nil {
				return nil, err
			}
			ruleID := c.allocRule(Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{Patterns: children}})
			entry.Rule = GlobalRuleRef{Rule: ruleID}
			entry.HasRule = true
		}
		out[idx] = entry
	}
	return out, nil
}

func (c *compiler) compileMatch(p MatchPattern) (GlobalRuleRef, error) {
	captures, err := c.compileCaptures(p.Captures)
	if err != nil {
		return GlobalRuleRef{}, err
	}
	children, err := c.compilePatternList(p.Patterns)
	if err != nil {
		return GlobalRuleRef{}, err
	}
	data := &MatchRuleData{
		Regex:           c.internRegex(regexp.TransformZAnchor(p.Match)),
		Name:            p.Name,
		NameHasBackrefs: hasDollarBackref(p.Name),
		Captures:        captures,
		Patterns:        children,
	}
	id := c.allocRule(Rule{Kind: RuleMatch, Match: data})
	return GlobalRuleRef{Rule: id}, nil
}

func (c *compiler) compileBeginEnd(p BeginEndPattern) (GlobalRuleRef, error) {
	captures, err := c.compileCaptures(p.Captures)
	if err != nil {
		return GlobalRuleRef{}, err
	}
	beginCaptures, err := c.compileCaptures(p.BeginCaptures)
	if err != nil {
		return GlobalRuleRef{}, err
	}
	endCaptures, err := c.compileCaptures(p.EndCaptures)
	if err != nil {
		return GlobalRuleRef{}, err
	}
	children, err := c.compilePatternList(p.Patterns)
	if err != nil {
		return GlobalRuleRef{}, err
	}

	end := regexp.TransformZAnchor(p.End)
	endBackrefs := hasBackref(end)

	data := &BeginEndRuleData{
		Begin:                  c.internRegex(regexp.TransformZAnchor(p.Begin)),
		EndPatternSource:       end,
		Name:                   p.Name,
		NameHasBackrefs:        hasDollarBackref(p.Name),
		ContentName:            p.ContentName,
		ContentNameHasBackrefs: hasDollarBackref(p.ContentName),
		Captures:               captures,
		BeginCaptures:          beginCaptures,
		EndCaptures:            endCaptures,
		Patterns:               children,
		EndHasBackrefs:         endBackrefs,
		ApplyEndPatternLast:    bool(p.ApplyEndPatternLast),
	}
	if !endBackrefs {
		data.End = c.internRegex(end)
	}
	id := c.allocRule(Rule{Kind: RuleBeginEnd, BeginEnd: data})
	return GlobalRuleRef{Rule: id}, nil
}

func (c *compiler) compileBeginWhile(p BeginWhilePattern) (GlobalRuleRef, error) {
	captures, err := c.compileCaptures(p.Captures)
	if err != nil {
		return GlobalRuleRef{}, err
	}
	beginCaptures, err := c.compileCaptures(p.BeginCaptures)
	if err != nil {
		return GlobalRuleRef{}, err
	}
	whileCaptures, err := c.compileCaptures(p.WhileCaptures)
	if err != nil {
		return GlobalRuleRef{}, err
	}
	children, err := c.compilePatternList(p.Patterns)
	if err != nil {
		return GlobalRuleRef{}, err
	}

	while := regexp.TransformZAnchor(p.While)
	whileBackrefs := hasBackref(while)

	data := &BeginWhileRuleData{
		Begin:                  c.internRegex(regexp.TransformZAnchor(p.Begin)),
		WhilePatternSource:     while,
		Name:                   p.Name,
		NameHasBackrefs:        hasDollarBackref(p.Name),
		ContentName:            p.ContentName,
		ContentNameHasBackrefs: hasDollarBackref(p.ContentName),
		Captures:               captures,
		BeginCaptures:          beginCaptures,
		WhileCaptures:          whileCaptures,
		Patterns:               children,
		WhileHasBackrefs:       whileBackrefs,
	}
	if !whileBackrefs {
		data.While = c.internRegex(while)
	}
	id := c.allocRule(Rule{Kind: RuleBeginWhile, BeginWhile: data})
	return GlobalRuleRef{Rule: id}, nil
}

// compileInclude handles "#key" (repository, resolved now with cycle
// detection), "$self"/"$base" (both resolved at link time to this grammar's
// own root patterns), and "scope.name"/
// "scope.name#key" (another grammar, always resolved at link time).
func (c *compiler) compileInclude(include string) (GlobalRuleRef, error) {
	switch {
	case include == "$self":
		placeholder := c.allocRule(Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{}})
		c.g.unresolvedIncludes[placeholder] = include
		return GlobalRuleRef{Rule: placeholder}, nil
	case include == "$base":
		placeholder := c.allocRule(Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{}})
		c.g.unresolvedIncludes[placeholder] = include
		return GlobalRuleRef{Rule: placeholder}, nil
	case strings.HasPrefix(include, "#"):
		key := include[1:]
		return c.compileRepositoryRef(key)
	default:
		placeholder := c.allocRule(Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{}})
		c.g.unresolvedIncludes[placeholder] = include
		return GlobalRuleRef{Rule: placeholder}, nil
	}
}

// compileRepositoryRef compiles (on first reference) and memoizes one
// repository entry. Cycles among repository entries that include one
// another are broken by the memo: g.repository[key] is set before the
// entry's children are compiled, so a nested reference to key returns it
// at once. The visiting check below is therefore not reached by such a
// cycle; if it were, its placeholder would stay an empty rule.
func (c *compiler) compileRepositoryRef(key string) (GlobalRuleRef, error) {
	if id, ok := c.g.repository[key]; ok {
		return GlobalRuleRef{Rule: id}, nil
	}
	if c.visiting[key] {
		// Cycle: allocate an empty placeholder now; it will be populated
		// once the outer compileRepositoryRef call for key finishes, since
		// both paths share the same map entry via g.repository.
		placeholder := c.allocRule(Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{}})
		c.g.repository[key] = placeholder
		return GlobalRuleRef{Rule: placeholder}, nil
	}
	entry, ok := c.raw.Repository[key]
	if !ok {
		return GlobalRuleRef{}, fmt.Errorf("grammar: repository key %q not found", key)
	}

	c.visiting[key] = true
	defer delete(c.visiting, key)

	id := c.allocRule(Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{}})
	c.g.repository[key] = id

	children, err := c.compilePatternList(entry.Patterns())
	if err != nil {
		return GlobalRuleRef{}, err
	}
	c.g.Rules[id] = Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{Patterns: children}}
	return GlobalRuleRef{Rule: id}, nil
}

func (c *compiler) compileInjections() error {
	for selector, entry := range c.raw.Injections {
		children, err := c.compilePatternList(entry.Patterns())
		if err != nil {
			return fmt.Errorf("grammar: injection %q: %w", selector, err)
		}
		id := c.allocRule(Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{Patterns: children}})

		// A selector key may bundle several top-level comma-separated
		// matchers, each with its own "L:"/"R:" precedence (es-tag-css.json,
		// blade.json); split those apart before parsing so precedence isn't
		// flattened to whichever prefix happened to lead the string.
		for _, source := range SplitTopLevelSelectors(selector) {
			precedence := InjectionPrecedenceRight
			if strings.HasPrefix(source, "L:") {
				precedence = InjectionPrecedenceLeft
				source = strings.TrimPrefix(source, "L:")
			} else if strings.HasPrefix(source, "R:") {
				source = strings.TrimPrefix(source, "R:")
			}
			matcher, err := ParseInjectionSelector(source)
			if err != nil {
				return fmt.Errorf("grammar: injection selector %q: %w", selector, err)
			}
			c.g.InjectionSelectors = append(c.g.InjectionSelectors, InjectionEntry{
				Selector:   matcher,
				Precedence: precedence,
				Rule:       GlobalRuleRef{Rule: id},
				Source:     source,
			})
		}
	}
	return nil
}
