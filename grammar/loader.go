package grammar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/scopelang/tmgrammar/regexp"
)

// LoadDir adds every grammar file found under dir (JSON or plist, dispatched
// by AddGrammarFromPath) to the registry. A file that fails to parse is
// skipped rather than aborting the whole directory, since a grammar
// collection commonly mixes in unrelated files (themes, readmes).
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("grammar: read dir %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := r.AddGrammarFromPath(filepath.Join(dir, entry.Name())); err != nil {
			continue
		}
	}
	return nil
}

// FileTypeCandidates returns the GrammarIds of every grammar registered
// under file extension ext (without its leading dot), in registration
// order. When more than one grammar claims an extension (e.g. ".h" for both
// C and C++), ResolveByFileType picks among them.
func (r *Registry) FileTypeCandidates(ext string) []GrammarId {
	ext = strings.TrimPrefix(ext, ".")
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []GrammarId
	for gid, g := range r.grammars {
		for _, ft := range g.FileTypes {
			if strings.TrimPrefix(ft, ".") == ext {
				out = append(out, GrammarId(gid))
				break
			}
		}
	}
	return out
}

// ResolveByFileType picks a grammar for ext, disambiguating multiple
// candidates by testing each one's firstLineMatch regex against firstLine
// (the source's opening line, e.g. "#!/usr/bin/env node" or "<?php"). The
// first candidate whose firstLineMatch matches wins; if none match (or none
// carry a firstLineMatch), the first registered candidate is returned.
func (r *Registry) ResolveByFileType(ext string, firstLine string) (GrammarId, bool) {
	candidates := r.FileTypeCandidates(ext)
	if len(candidates) == 0 {
		return 0, false
	}
	if len(candidates) == 1 {
		return candidates[0], true
	}

	for _, gid := range candidates {
		g := r.Grammar(gid)
		if g.FirstLineRegex == "" {
			continue
		}
		re, err := regexp.Compile(g.FirstLineRegex, regexp.OptionNone)
		if err != nil {
			continue
		}
		matches, err := re.Search(firstLine, 0, len(firstLine), regexp.OptionNone)
		re.Free()
		if err == nil && matches != nil {
			return gid, true
		}
	}
	return candidates[0], true
}
