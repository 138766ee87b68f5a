package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/scopelang/tmgrammar/grammar"
	"github.com/scopelang/tmgrammar/regexp"
	"github.com/scopelang/tmgrammar/scope"
)

// Tokenizer scans text line by line against a grammar.Registry, carrying a
// StateStack from one line to the next. Not safe for concurrent use: each
// goroutine tokenizing a document should own its own Tokenizer, though many
// Tokenizers may share one Registry (which is safe for concurrent reads
// once grammar.Registry.LinkGrammars has run).
type Tokenizer struct {
	registry *grammar.Registry
	base     grammar.GlobalRuleRef
	stack    *StateStack

	// endRegexCache owns backreference-resolved end/while regexes for the
	// lifetime of this Tokenizer only: two different frames at the same
	// text position can resolve different source text, so these can never
	// be shared across Tokenizers the way grammar.PatternSet is.
	endRegexCache map[string]*regexp.Regexp
	mu            sync.Mutex
}

// NewTokenizer starts a fresh scan against grammar baseGrammar, which must
// already have been compiled into registry and linked.
func NewTokenizer(registry *grammar.Registry, baseGrammar grammar.GrammarId) *Tokenizer {
	g := registry.Grammar(baseGrammar)
	base := grammar.GlobalRuleRef{Grammar: baseGrammar, Rule: grammar.RootRuleID}
	return &Tokenizer{
		registry:      registry,
		base:          base,
		stack:         NewStateStack(base, []scope.Scope{g.ScopeID}),
		endRegexCache: map[string]*regexp.Regexp{},
	}
}

// TokenizeString splits text into lines (on \n, keeping the terminator out
// of emitted token spans) and tokenizes each in turn, carrying the scope
// stack across line boundaries.
func (t *Tokenizer) TokenizeString(text string) ([][]Token, error) {
	lines := splitLinesKeepingNone(text)
	result := make([][]Token, len(lines))
	for i, line := range lines {
		toks, err := t.tokenizeLine(line, i == 0)
		if err != nil {
			return nil, fmt.Errorf("tokenizer: line %d: %w", i, err)
		}
		result[i] = toks
	}
	return result, nil
}

func splitLinesKeepingNone(text string) []string {
	if text == "" {
		return []string{""}
	}
	raw := strings.Split(text, "\n")
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	for i := range raw {
		raw[i] = strings.TrimSuffix(raw[i], "\r")
	}
	return raw
}

// candidateKind discriminates what matchRuleOrInjections found.
type candidateKind int

const (
	candidateNone candidateKind = iota
	candidateRule
	candidateEnd
	candidateInjection
)

type candidate struct {
	kind    candidateKind
	ruleRef grammar.GlobalRuleRef
	start   int
	end     int
	caps    []regexp.Range
	precOK  bool // injection precedence beat the regular rule on a tie
}

func (t *Tokenizer) tokenizeLine(line string, isFirstLine bool) ([]Token, error) {
	t.stack.Reset()
	acc := newTokenAccumulator(len(line))

	if err := t.checkWhileConditions(line, &acc.lastEnd); err != nil {
		return nil, err
	}

	pos := acc.lastEnd
	for pos <= len(line) {
		top := t.stack.Top()
		if top.AnchorPosition == -1 {
			top.AnchorPosition = pos
		}
		mode := NewAnchorMode(isFirstLine, top.AnchorPosition, pos)

		cand, err := t.matchRuleOrInjections(line, pos, mode)
		if err != nil {
			return nil, err
		}
		if cand == nil {
			break
		}

		advanced, err := t.applyCandidate(line, acc, *cand)
		if err != nil {
			return nil, err
		}
		if !advanced {
			// Zero-width match at the frame's own enter position: per the
			// loop-protection guard, force one byte of forward progress
			// instead of looping forever on an empty begin/end pair.
			if cand.end < len(line) {
				pos = cand.end + 1
			} else {
				pos = cand.end
				break
			}
			continue
		}
		pos = cand.end
	}

	return acc.Finalize(t.stack.Top().ContentScopes), nil
}

// checkWhileConditions re-validates every active BeginWhile frame's while
// pattern at the start of a new line (outermost first), popping frames
// whose condition no longer holds. Only called once, before the line's
// main scan loop.
func (t *Tokenizer) checkWhileConditions(line string, lastEnd *int) error {
	for i := 1; i < t.stack.Depth(); i++ {
		frame := t.stack.Frame(i)
		if !frame.IsWhile || frame.EndPattern == "" {
			continue
		}
		re, err := t.getEndOrWhileRegex(frame.EndPattern, AnchorG)
		if err != nil {
			return err
		}
		groups, err := re.Search(line, *lastEnd, len(line), regexp.OptionNone)
		if err != nil {
			return err
		}
		if groups == nil || groups[0].Start != *lastEnd {
			// Condition failed: pop this frame and everything above it.
			for t.stack.Depth() > i {
				t.stack.SafePop()
			}
			return nil
		}
	}
	return nil
}

// matchRuleOrInjections finds the earliest-starting, highest-precedence
// candidate among: the active frame's end/while pattern, its child
// patterns, and any injection grammar whose selector matches the current
// content scope stack.
func (t *Tokenizer) matchRuleOrInjections(line string, pos int, mode AnchorMode) (*candidate, error) {
	top := t.stack.Top()

	var endCand *candidate
	if top.EndPattern != "" && !top.IsWhile {
		re, err := t.getEndOrWhileRegex(top.EndPattern, mode)
		if err != nil {
			return nil, err
		}
		groups, err := re.Search(line, pos, len(line), regexp.OptionNone)
		if err != nil {
			return nil, err
		}
		if groups != nil {
			endCand = &candidate{kind: candidateEnd, ruleRef: top.Rule, start: groups[0].Start, end: groups[0].End, caps: groups}
		}
	}

	rule := t.registry.Grammar(top.Rule.Grammar).Rules[top.Rule.Rule]
	var ruleCand *candidate
	if rule.HasPatterns() {
		ps, err := t.registry.GetOrCreatePatternSet(top.Rule, mode.String(), func(p string) string {
			return ReplaceAnchors(p, mode)
		})
		if err != nil {
			return nil, err
		}
		m, err := ps.FindAt(line, pos, regexp.OptionNone)
		if err != nil {
			return nil, err
		}
		if m != nil {
			ruleCand = &candidate{kind: candidateRule, ruleRef: m.RuleRef, start: m.Start, end: m.End, caps: m.CapturePositions}
		}
	}

	injCand, err := t.matchInjections(line, pos, mode)
	if err != nil {
		return nil, err
	}

	best := pickEarliest(endCand, ruleCand, rule.ApplyEndPatternLast())
	best = pickEarliestInjection(best, injCand)
	return best, nil
}

// pickEarliest combines the end-pattern candidate and the regular
// child-pattern candidate, breaking a start-position tie in favor of the
// child pattern when applyEndPatternLast is set (the TextMate
// "applyEndPatternLast" rule field), and in favor of the end pattern
// otherwise.
func pickEarliest(end, rule *candidate, applyEndPatternLast bool) *candidate {
	if end == nil {
		return rule
	}
	if rule == nil {
		return end
	}
	if end.start == rule.start {
		if applyEndPatternLast {
			return rule
		}
		return end
	}
	if end.start < rule.start {
		return end
	}
	return rule
}

func pickEarliestInjection(best, inj *candidate) *candidate {
	if inj == nil {
		return best
	}
	if best == nil {
		return inj
	}
	if inj.start < best.start {
		return inj
	}
	if inj.start == best.start && inj.precOK {
		return inj
	}
	return best
}

// matchInjections races every applicable injection grammar's patterns
// against the active content scope stack, returning the earliest match;
// Left-precedence injections win position ties against the regular match,
// Right-precedence (the default) lose them.
func (t *Tokenizer) matchInjections(line string, pos int, mode AnchorMode) (*candidate, error) {
	top := t.stack.Top()
	scopeName := t.registry.Grammar(top.Rule.Grammar).ScopeName
	injections := t.registry.CollectInjectionPatterns(scopeName, top.ContentScopes)
	if len(injections) == 0 {
		return nil, nil
	}

	var best *candidate
	for _, inj := range injections {
		rule := t.registry.Grammar(inj.Rule.Grammar).Rules[inj.Rule.Rule]
		if !rule.HasPatterns() {
			continue
		}
		ps, err := t.registry.GetOrCreatePatternSet(inj.Rule, mode.String(), func(p string) string {
			return ReplaceAnchors(p, mode)
		})
		if err != nil {
			return nil, err
		}
		m, err := ps.FindAt(line, pos, regexp.OptionNone)
		if err != nil {
			return nil, err
		}
		if m == nil {
			continue
		}
		cand := &candidate{
			kind:    candidateInjection,
			ruleRef: m.RuleRef,
			start:   m.Start,
			end:     m.End,
			caps:    m.CapturePositions,
			precOK:  inj.Precedence == grammar.InjectionPrecedenceLeft,
		}
		if best == nil || cand.start < best.start || (cand.start == best.start && cand.precOK && !best.precOK) {
			best = cand
		}
	}
	return best, nil
}

// applyCandidate dispatches on the matched candidate's kind, mutating the
// stack and emitting tokens as appropriate. Returns false when the match did
// not advance: a zero-width rule match at the current frame's own enter
// position, or any zero-width end match (after its frame is popped). These
// are the loop-protection cases the caller must force progress past.
func (t *Tokenizer) applyCandidate(line string, acc *tokenAccumulator, cand candidate) (bool, error) {
	top := t.stack.Top()

	zeroWidth := cand.start == cand.end
	atEnter := cand.start == top.EnterPosition
	if zeroWidth && atEnter && cand.kind != candidateEnd {
		return false, nil
	}

	switch cand.kind {
	case candidateEnd:
		return t.applyEnd(line, acc, cand)
	default:
		return t.applyRule(line, acc, cand)
	}
}

func (t *Tokenizer) applyEnd(line string, acc *tokenAccumulator, cand candidate) (bool, error) {
	top := t.stack.Top()
	rule := t.registry.Grammar(top.Rule.Grammar).Rules[top.Rule.Rule].BeginEnd

	acc.Produce(cand.start, top.ContentScopes)
	endCaptures := rule.EndCaptures
	if len(endCaptures) == 0 {
		endCaptures = rule.Captures
	}
	if err := t.resolveCaptures(line, acc, endCaptures, cand.caps, top.NameScopes); err != nil {
		return false, err
	}
	acc.Produce(cand.end, top.NameScopes)

	if err := t.stack.Pop(); err != nil {
		return false, err
	}
	return cand.end > cand.start, nil
}

func (t *Tokenizer) applyRule(line string, acc *tokenAccumulator, cand candidate) (bool, error) {
	rule := t.registry.Grammar(cand.ruleRef.Grammar).Rules[cand.ruleRef.Rule]
	top := t.stack.Top()

	switch rule.Kind {
	case grammar.RuleMatch:
		acc.Produce(cand.start, top.ContentScopes)
		nameScopes := append(append([]scope.Scope{}, top.ContentScopes...), rule.GetNameScopes(line, cand.caps)...)
		if err := t.resolveCaptures(line, acc, rule.Match.Captures, cand.caps, nameScopes); err != nil {
			return false, err
		}
		acc.Produce(cand.end, nameScopes)
		return true, nil

	case grammar.RuleBeginEnd:
		acc.Produce(cand.start, top.ContentScopes)
		nameScopes := rule.GetNameScopes(line, cand.caps)
		t.stack.Push(cand.ruleRef, nameScopes, cand.start)
		newTop := t.stack.Top()
		beginCaptures := rule.BeginEnd.BeginCaptures
		if len(beginCaptures) == 0 {
			beginCaptures = rule.BeginEnd.Captures
		}
		if err := t.resolveCaptures(line, acc, beginCaptures, cand.caps, newTop.NameScopes); err != nil {
			return false, err
		}
		contentScopes := rule.GetContentScopes(line, cand.caps)
		t.stack.SetContentScopes(contentScopes)

		endSource := rule.BeginEnd.EndPatternSource
		if rule.BeginEnd.EndHasBackrefs {
			endSource = regexp.ResolveBackreferences(endSource, line, cand.caps)
		}
		t.stack.SetEndPattern(endSource, false)
		newTop.BeginRuleHasCapturedEOL = cand.end == len(line)

		acc.Produce(cand.end, newTop.NameScopes)
		return true, nil

	case grammar.RuleBeginWhile:
		acc.Produce(cand.start, top.ContentScopes)
		nameScopes := rule.GetNameScopes(line, cand.caps)
		t.stack.Push(cand.ruleRef, nameScopes, cand.start)
		newTop := t.stack.Top()
		if err := t.resolveCaptures(line, acc, rule.BeginWhile.BeginCaptures, cand.caps, newTop.NameScopes); err != nil {
			return false, err
		}
		contentScopes := rule.GetContentScopes(line, cand.caps)
		t.stack.SetContentScopes(contentScopes)

		whileSource := rule.BeginWhile.WhilePatternSource
		if rule.BeginWhile.WhileHasBackrefs {
			whileSource = regexp.ResolveBackreferences(whileSource, line, cand.caps)
		}
		t.stack.SetEndPattern(whileSource, true)

		acc.Produce(cand.end, newTop.NameScopes)
		return true, nil

	default:
		return false, fmt.Errorf("tokenizer: unexpected matched rule kind %v", rule.Kind)
	}
}

// resolveCaptures emits a token per participating capture group, recursing
// into a capture's own nested patterns when it has any (retokenizing just
// the captured span), and falling back to baseScopes otherwise.
func (t *Tokenizer) resolveCaptures(line string, acc *tokenAccumulator, captures map[int]grammar.CompiledCapture, groups []regexp.Range, baseScopes []scope.Scope) error {
	if len(captures) == 0 || len(groups) == 0 {
		return nil
	}

	var spans []captureSpan
	for idx, cap := range captures {
		if idx >= len(groups) {
			continue
		}
		g := groups[idx]
		if !g.Valid() || g.Start == g.End && idx != 0 {
			continue
		}
		_ = cap
		spans = append(spans, captureSpan{idx, g.Start, g.End})
	}
	sortSpans(spans)

	for _, sp := range spans {
		cap := captures[sp.idx]
		scopes := append(append([]scope.Scope{}, baseScopes...), namesFor(cap, cap.NameHasBackrefs, line, groups)...)
		acc.Produce(sp.start, baseScopes)
		if cap.HasRule {
			sub := t.registry.CollectPatterns(cap.Rule)
			if len(sub) > 0 {
				// Retokenize the captured span with the capture's own
				// patterns active, nested under its scopes.
				if err := t.resolveCaptureSubPatterns(line, acc, cap.Rule, sp.start, sp.end, scopes); err != nil {
					return err
				}
				continue
			}
		}
		acc.Produce(sp.end, scopes)
	}
	return nil
}

// resolveCaptureSubPatterns scans [start, end) of line against ruleRef's
// patterns as an isolated region, emitting tokens under scopes.
func (t *Tokenizer) resolveCaptureSubPatterns(line string, acc *tokenAccumulator, ruleRef grammar.GlobalRuleRef, start, end int, scopes []scope.Scope) error {
	pos := start
	for pos < end {
		ps, err := t.registry.GetOrCreatePatternSet(ruleRef, "AG", nil)
		if err != nil {
			return err
		}
		m, err := ps.FindAt(line[:end], pos, regexp.OptionNone)
		if err != nil {
			return err
		}
		if m == nil || m.Start >= end {
			break
		}
		acc.Produce(m.Start, scopes)
		rule := t.registry.Grammar(m.RuleRef.Grammar).Rules[m.RuleRef.Rule]
		childScopes := append(append([]scope.Scope{}, scopes...), rule.GetNameScopes(line, m.CapturePositions)...)
		acc.Produce(m.End, childScopes)
		if m.End <= pos {
			pos++
			continue
		}
		pos = m.End
	}
	acc.Produce(end, scopes)
	return nil
}

func namesFor(cap grammar.CompiledCapture, hasBackrefs bool, line string, groups []regexp.Range) []scope.Scope {
	if cap.Name == "" {
		return nil
	}
	name := cap.Name
	if hasBackrefs {
		name = regexp.ResolveBackreferences(strings.ReplaceAll(name, `$`, `\`), line, groups)
	}
	fields := strings.Fields(name)
	out := make([]scope.Scope, 0, len(fields))
	for _, f := range fields {
		out = append(out, scope.New(f))
	}
	return out
}

// captureSpan is a participating capture group's index and resolved byte
// range, sorted into left-to-right order before emission (map iteration
// order over the capture table is otherwise unspecified).
type captureSpan struct {
	idx        int
	start, end int
}

func sortSpans(spans []captureSpan) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].start > spans[j].start; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
}


// getEndOrWhileRegex compiles (once) and caches the anchor-mode-substituted
// variant of a frame's end/while pattern source. Keyed by the already
// backreference-resolved source text plus anchor mode, since distinct
// begin matches on the same rule can resolve to distinct end patterns.
func (t *Tokenizer) getEndOrWhileRegex(source string, mode AnchorMode) (*regexp.Regexp, error) {
	key := mode.String() + "\x00" + source
	t.mu.Lock()
	if re, ok := t.endRegexCache[key]; ok {
		t.mu.Unlock()
		return re, nil
	}
	t.mu.Unlock()

	re, err := regexp.Compile(ReplaceAnchors(source, mode), regexp.OptionNone)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: compile end/while pattern: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.endRegexCache[key]; ok {
		re.Free()
		return existing, nil
	}
	t.endRegexCache[key] = re
	return re, nil
}

// Close releases every cached end/while regex owned by this Tokenizer.
func (t *Tokenizer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, re := range t.endRegexCache {
		re.Free()
	}
	t.endRegexCache = nil
}
