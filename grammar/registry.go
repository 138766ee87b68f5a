package grammar

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"howett.net/plist"

	"github.com/scopelang/tmgrammar/scope"
)

// Registry owns a set of compiled grammars, links their cross-grammar
// includes and injections, and caches the pattern sets the tokenizer scans
// against. A Registry is safe for concurrent read access (tokenize calls)
// once linked; AddGrammar* and LinkGrammars should complete before any
// tokenizer starts using it.
type Registry struct {
	mu          sync.Mutex
	scopes      *scope.Registry
	grammars    []*CompiledGrammar
	byScopeName map[string]GrammarId
	patternSets map[patternSetKey]*PatternSet
}

type patternSetKey struct {
	ref       GlobalRuleRef
	anchorKey string
}

// NewRegistry creates an empty Registry backed by its own scope registry.
// That registry is installed as the package-wide scope.Global() so that
// scope.New calls made while compiling rule names/contentNames (which don't
// have a Registry handle available) intern into the same table as the
// grammar's own scopeName.
func NewRegistry() *Registry {
	scopes := scope.NewRegistry()
	scope.SetGlobal(scopes)
	return &Registry{
		scopes:      scopes,
		byScopeName: map[string]GrammarId{},
		patternSets: map[patternSetKey]*PatternSet{},
	}
}

// Scopes returns the registry's scope interner, shared by every grammar
// compiled into this registry.
func (r *Registry) Scopes() *scope.Registry { return r.scopes }

// AddGrammarFromRaw compiles raw and registers it under a new GrammarId.
func (r *Registry) AddGrammarFromRaw(raw RawGrammar) (GrammarId, error) {
	g, err := CompileGrammar(raw, r.scopes)
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := GrammarId(len(r.grammars))
	r.grammars = append(r.grammars, g)
	r.byScopeName[raw.ScopeName] = id
	return id, nil
}

// AddGrammarFromJSON parses and compiles a TextMate grammar given as JSON.
func (r *Registry) AddGrammarFromJSON(data []byte) (GrammarId, error) {
	raw, err := LoadRawGrammar(data)
	if err != nil {
		return 0, err
	}
	return r.AddGrammarFromRaw(raw)
}

// AddGrammarFromPlist parses and compiles a TextMate grammar given as an
// Apple binary or XML property list (the historic .tmLanguage format).
//
// RawGrammar's Pattern/RepositoryEntry fields are an untagged JSON union
// resolved by custom UnmarshalJSON methods; howett.net/plist has no
// equivalent hook, so a plist document is first decoded generically and
// re-marshaled to JSON, letting it flow through the same parser as a native
// JSON grammar.
func (r *Registry) AddGrammarFromPlist(data []byte) (GrammarId, error) {
	var generic any
	if _, err := plist.Unmarshal(data, &generic); err != nil {
		return 0, fmt.Errorf("grammar: plist decode: %w", err)
	}
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return 0, fmt.Errorf("grammar: plist re-encode: %w", err)
	}
	return r.AddGrammarFromJSON(asJSON)
}

// AddGrammarFromPath loads a grammar file from disk, dispatching on its
// content rather than its extension: data starting with "bplist" or
// "<?xml" (after leading whitespace) is read as a plist, anything else as
// JSON.
func (r *Registry) AddGrammarFromPath(path string) (GrammarId, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("grammar: read %s: %w", path, err)
	}
	if looksLikePlist(data) {
		return r.AddGrammarFromPlist(data)
	}
	return r.AddGrammarFromJSON(data)
}

func looksLikePlist(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("bplist")) || bytes.HasPrefix(trimmed, []byte("<?xml"))
}

// Grammar returns the compiled grammar for id.
func (r *Registry) Grammar(id GrammarId) *CompiledGrammar {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.grammars[id]
}

// GrammarIDByScopeName looks up a previously added grammar by its
// scopeName, as used by cross-grammar "source.lang" includes.
func (r *Registry) GrammarIDByScopeName(name string) (GrammarId, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byScopeName[name]
	return id, ok
}

// LinkGrammars resolves every unresolved include placeholder ($self, $base,
// and cross-grammar "source.lang"/"source.lang#key" references) across all
// grammars currently in the registry. Call once after all grammars that
// participate in cross-references have been added; safe to call again if
// more grammars are added afterward (already-resolved placeholders are
// skipped).
func (r *Registry) LinkGrammars() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for gid, g := range r.grammars {
		for ruleID, include := range g.unresolvedIncludes {
			target, err := r.resolveInclude(GrammarId(gid), g, include)
			if err != nil {
				return fmt.Errorf("grammar %s: include %q: %w", g.ScopeName, include, err)
			}
			g.Rules[ruleID] = Rule{Kind: RuleIncludeOnly, IncludeOnly: &IncludeOnlyRuleData{
				Patterns: []GlobalRuleRef{target},
			}}
			delete(g.unresolvedIncludes, ruleID)
		}
	}
	return nil
}

func (r *Registry) resolveInclude(self GrammarId, g *CompiledGrammar, include string) (GlobalRuleRef, error) {
	switch {
	case include == "$self" || include == "$base":
		// $base is resolved identically to $self: a grammar embedded as a
		// sub-grammar of another via injection keeps its own root as the
		// meaning of $base, since the registry has no single static notion
		// of "the base grammar" independent of which tokenizer started the
		// scan.
		return GlobalRuleRef{Grammar: self, Rule: RootRuleID}, nil
	default:
		scopeName, key := splitInclude(include)
		otherID, ok := r.byScopeName[scopeName]
		if !ok {
			return GlobalRuleRef{}, fmt.Errorf("unknown grammar scope %q", scopeName)
		}
		if key == "" {
			return GlobalRuleRef{Grammar: otherID, Rule: RootRuleID}, nil
		}
		other := r.grammars[otherID]
		ruleID, ok := other.repository[key]
		if !ok {
			return GlobalRuleRef{}, fmt.Errorf("grammar %q has no repository key %q", scopeName, key)
		}
		return GlobalRuleRef{Grammar: otherID, Rule: ruleID}, nil
	}
}

func splitInclude(include string) (scopeName, key string) {
	for i := 0; i < len(include); i++ {
		if include[i] == '#' {
			return include[:i], include[i+1:]
		}
	}
	return include, ""
}

// rule dereferences a GlobalRuleRef against this registry's grammars.
func (r *Registry) rule(ref GlobalRuleRef) Rule {
	return r.grammars[ref.Grammar].Rules[ref.Rule]
}

// CollectPatterns expands ref, following IncludeOnly forwarding rules
// depth-first, into the flat list of immediately-matchable (Match,
// BeginEnd, BeginWhile) rule refs reachable from it. Cycles among
// IncludeOnly forwards (possible via repository entries that mutually
// include one another without ever reaching a terminal rule) are broken by
// a visited-set guard, inserted before descending and removed after, so a
// diamond of shared includes is still expanded on every distinct path.
func (r *Registry) CollectPatterns(ref GlobalRuleRef) []GlobalRuleRef {
	visited := map[GlobalRuleRef]bool{}
	var out []GlobalRuleRef
	r.collectPatterns(ref, visited, &out)
	return out
}

func (r *Registry) collectPatterns(ref GlobalRuleRef, visited map[GlobalRuleRef]bool, out *[]GlobalRuleRef) {
	if visited[ref] {
		return
	}
	rule := r.rule(ref)
	if rule.Kind != RuleIncludeOnly {
		*out = append(*out, ref)
		return
	}
	visited[ref] = true
	defer delete(visited, ref)
	for _, child := range rule.IncludeOnly.Patterns {
		r.collectPatterns(child, visited, out)
	}
}

// GetOrCreatePatternSet returns the cached PatternSet covering ref's
// immediate patterns (after CollectPatterns expansion), building and
// caching one on first use. anchorKey distinguishes otherwise-identical
// pattern sets built under different \A/\G anchor substitutions (see the
// tokenizer's anchor package); transform is applied to each pattern's
// source text before compiling, e.g. to replace anchors with ￿ for
// this particular scan position's anchor mode.
func (r *Registry) GetOrCreatePatternSet(ref GlobalRuleRef, anchorKey string, transform func(string) string) (*PatternSet, error) {
	key := patternSetKey{ref: ref, anchorKey: anchorKey}

	r.mu.Lock()
	if ps, ok := r.patternSets[key]; ok {
		r.mu.Unlock()
		return ps, nil
	}
	r.mu.Unlock()

	visited := map[GlobalRuleRef]bool{ref: true}
	var refs []GlobalRuleRef
	for _, child := range r.rule(ref).Children() {
		r.collectPatterns(child, visited, &refs)
	}
	patterns := make([]string, len(refs))
	for i, rr := range refs {
		rule := r.rule(rr)
		grammarRegexes := r.grammars[rr.Grammar].Regexes
		var regexID RegexId
		switch rule.Kind {
		case RuleMatch:
			regexID = rule.Match.Regex
		case RuleBeginEnd:
			regexID = rule.BeginEnd.Begin
		case RuleBeginWhile:
			regexID = rule.BeginWhile.Begin
		default:
			return nil, fmt.Errorf("grammar: pattern set: rule %+v is not a leaf pattern", rr)
		}
		src := grammarRegexes[regexID]
		if transform != nil {
			src = transform(src)
		}
		patterns[i] = src
	}

	ps, err := NewPatternSet(refs, patterns)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.patternSets[key]; ok {
		ps.Free()
		return existing, nil
	}
	r.patternSets[key] = ps
	return ps, nil
}

// InjectionMatch is one injection grammar whose selector matched the
// current content scope stack, ready to be raced against the active rule's
// own pattern set by the tokenizer.
type InjectionMatch struct {
	Rule       GlobalRuleRef
	Precedence InjectionPrecedence
}

// CollectInjectionPatterns gathers every injection rule, across every
// grammar registered with injectTo (or the owner of scopeName itself for
// grammar-local injections), whose selector matches contentScopes.
func (r *Registry) CollectInjectionPatterns(scopeName string, contentScopes []scope.Scope) []InjectionMatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []InjectionMatch
	for gid, g := range r.grammars {
		local := g.ScopeName == scopeName
		injectsHere := false
		for _, target := range g.InjectTo {
			if target == scopeName {
				injectsHere = true
				break
			}
		}
		if !local && !injectsHere {
			continue
		}
		for _, inj := range g.InjectionSelectors {
			if inj.Selector.Matches(contentScopes) {
				ref := inj.Rule
				ref.Grammar = GrammarId(gid)
				out = append(out, InjectionMatch{Rule: ref, Precedence: inj.Precedence})
			}
		}
	}
	return out
}

// registryDump is the serializable shadow of Registry, gzip+msgpack encoded
// by Dump/Restore so compiled grammars can be cached to disk and reloaded
// without recompiling every grammar.
type registryDump struct {
	Scopes   []scope.DumpEntry
	Grammars []*CompiledGrammar
}

// Dump serializes every linked grammar plus the scope table to w. Must be
// called only after LinkGrammars has resolved all includes (unresolved
// placeholders do not round-trip, since they're consumed in place).
func (r *Registry) Dump(w io.Writer) error {
	r.mu.Lock()
	dump := registryDump{Scopes: r.scopes.Dump(), Grammars: r.grammars}
	r.mu.Unlock()

	gw := gzip.NewWriter(w)
	enc := msgpack.NewEncoder(gw)
	if err := enc.Encode(dump); err != nil {
		gw.Close()
		return fmt.Errorf("grammar: dump: %w", err)
	}
	return gw.Close()
}

// Restore loads a Registry previously written by Dump. The returned
// registry's pattern-set cache starts empty; pattern sets are rebuilt
// lazily on first tokenize call.
func Restore(r io.Reader) (*Registry, error) {
	gr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("grammar: restore: %w", err)
	}
	defer gr.Close()

	var dump registryDump
	if err := msgpack.NewDecoder(gr).Decode(&dump); err != nil {
		return nil, fmt.Errorf("grammar: restore: %w", err)
	}

	scopes := scope.Restore(dump.Scopes)
	scope.SetGlobal(scopes)
	reg := &Registry{
		scopes:      scopes,
		grammars:    dump.Grammars,
		byScopeName: map[string]GrammarId{},
		patternSets: map[patternSetKey]*PatternSet{},
	}
	for gid, g := range reg.grammars {
		reg.byScopeName[g.ScopeName] = GrammarId(gid)
	}
	return reg, nil
}
