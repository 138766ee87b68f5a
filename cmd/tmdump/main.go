// Command tmdump compiles every grammar in a directory into one Registry and
// writes it out as a gzip+msgpack blob, so an embedder can ship a
// precompiled bundle instead of parsing grammar JSON/plist at startup.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/scopelang/tmgrammar/grammar"
)

func main() {
	var grammarDir, outPath string
	flag.StringVar(&grammarDir, "grammars", "", "directory of grammar JSON/plist files")
	flag.StringVar(&outPath, "out", "builtin.msgpack", "output path for the dumped registry")
	flag.Parse()

	if grammarDir == "" {
		fmt.Fprintln(os.Stderr, "usage: tmdump -grammars <dir> [-out builtin.msgpack]")
		os.Exit(1)
	}

	reg := grammar.NewRegistry()

	entries, err := os.ReadDir(grammarDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", grammarDir, err)
		os.Exit(1)
	}

	var loaded, failed int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := grammarDir + "/" + entry.Name()
		if _, err := reg.AddGrammarFromPath(path); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load grammar %s: %v\n", entry.Name(), err)
			failed++
			continue
		}
		fmt.Printf("loaded grammar: %s\n", entry.Name())
		loaded++
	}

	if err := reg.LinkGrammars(); err != nil {
		fmt.Fprintf(os.Stderr, "link grammars: %v\n", err)
		os.Exit(1)
	}

	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", outPath, err)
		os.Exit(1)
	}
	defer out.Close()

	if err := reg.Dump(out); err != nil {
		fmt.Fprintf(os.Stderr, "dump registry: %v\n", err)
		os.Exit(1)
	}

	info, _ := out.Stat()
	fmt.Printf("\nloaded %d grammars, %d failed\n", loaded, failed)
	if info != nil {
		fmt.Printf("wrote %s (%d bytes)\n", outPath, info.Size())
	}
}
