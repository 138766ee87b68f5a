package grammar

import (
	"fmt"

	"github.com/scopelang/tmgrammar/regexp"
)

// PatternSet batches the regexes of one rule's immediate child patterns into
// a single Oniguruma RegSet so the tokenizer can find the earliest,
// leftmost-tied-by-declaration-order match across all of them in one scan.
// Built once per (rule ref, anchor key) pair and cached on the Registry; immutable
// for its lifetime, so it can be shared freely across concurrent tokenizers.
type PatternSet struct {
	ruleRefs []GlobalRuleRef
	regset   *regexp.RegSet
}

// PatternSetMatch is one hit from PatternSet.FindAt.
type PatternSetMatch struct {
	RuleRef          GlobalRuleRef
	Start, End       int
	CapturePositions []regexp.Range
}

// NewPatternSet compiles one RegSet over the resolved regex source of each
// rule ref's relevant pattern (its Match/Begin regex), given as patterns in
// the same order as refs. Anchor substitution is not done here: the caller
// (Registry.GetOrCreatePatternSet) applies it to the pattern text first and
// caches one PatternSet per distinct anchor mode, since the substitution
// changes the pattern text itself.
func NewPatternSet(refs []GlobalRuleRef, patterns []string) (*PatternSet, error) {
	if len(refs) != len(patterns) {
		return nil, fmt.Errorf("grammar: pattern set: refs/patterns length mismatch")
	}
	rs, err := regexp.NewRegSet(patterns)
	if err != nil {
		return nil, fmt.Errorf("grammar: pattern set: %w", err)
	}
	return &PatternSet{ruleRefs: append([]GlobalRuleRef(nil), refs...), regset: rs}, nil
}

// Free releases the underlying Oniguruma RegSet.
func (ps *PatternSet) Free() {
	if ps.regset != nil {
		ps.regset.Free()
	}
}

// FindAt scans text starting at pos (a byte offset, searched forward to the
// end of text) and returns the earliest match among all member patterns,
// breaking position ties by declaration order (the first rule ref supplied
// to NewPatternSet wins). Returns nil, nil if nothing matches.
func (ps *PatternSet) FindAt(text string, pos int, options regexp.Option) (*PatternSetMatch, error) {
	idx, groups, err := ps.regset.SearchAt(text, pos, len(text), options)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, nil
	}
	return &PatternSetMatch{
		RuleRef:          ps.ruleRefs[idx],
		Start:            groups[0].Start,
		End:              groups[0].End,
		CapturePositions: groups,
	}, nil
}

// Len returns the number of member patterns.
func (ps *PatternSet) Len() int {
	return len(ps.ruleRefs)
}
