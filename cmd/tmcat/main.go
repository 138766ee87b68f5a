// Command tmcat tokenizes a source file against a TextMate grammar and
// renders it with a VSCode-compatible color theme, to a terminal (ANSI),
// inline-styled HTML, or class-based HTML paired with a generated
// stylesheet.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/scopelang/tmgrammar/grammar"
	"github.com/scopelang/tmgrammar/render"
	"github.com/scopelang/tmgrammar/theme"
	"github.com/scopelang/tmgrammar/tokenizer"
)

func main() {
	var grammarDir, grammarName, themePath, format, cssPrefix string
	var transparent bool
	flag.StringVar(&grammarDir, "grammars", "", "directory of grammar JSON/plist files")
	flag.StringVar(&grammarName, "syntax", "", "file extension to select a grammar by (defaults to the input file's extension)")
	flag.StringVar(&themePath, "theme", "", "path to a VSCode-compatible theme JSON file")
	flag.StringVar(&format, "format", "ansi", "output format: ansi, html, html-classes, or css")
	flag.StringVar(&cssPrefix, "css-prefix", "tm-", "class name prefix for -format=html-classes and css")
	flag.BoolVar(&transparent, "transparent", false, "don't fall back to the theme's editor background/foreground")
	flag.Parse()

	reg := grammar.NewRegistry()
	if grammarDir != "" {
		if err := reg.LoadDir(grammarDir); err != nil {
			fmt.Fprintf(os.Stderr, "load grammars: %v\n", err)
			os.Exit(1)
		}
	}
	if err := reg.LinkGrammars(); err != nil {
		fmt.Fprintf(os.Stderr, "link grammars: %v\n", err)
		os.Exit(1)
	}

	th, err := loadTheme(themePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load theme: %v\n", err)
		os.Exit(1)
	}

	if format == "css" {
		if err := render.CSS(os.Stdout, th, render.Options{ClassPrefix: cssPrefix}); err != nil {
			fmt.Fprintf(os.Stderr, "render css: %v\n", err)
			os.Exit(1)
		}
		return
	}

	source, sourceName, err := readSource(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if grammarName == "" {
		grammarName = strings.TrimPrefix(path.Ext(sourceName), ".")
	}

	firstLine, _, _ := strings.Cut(source, "\n")
	gid, ok := reg.ResolveByFileType(grammarName, firstLine)
	if !ok {
		fmt.Fprintf(os.Stderr, "no grammar registered for file type %q\n", grammarName)
		os.Exit(1)
	}

	tok := tokenizer.NewTokenizer(reg, gid)
	defer tok.Close()

	lines, err := tok.TokenizeString(source)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tokenize: %v\n", err)
		os.Exit(1)
	}
	tokens := tokenizer.Flatten(source, lines)

	opts := render.Options{Transparent: transparent, ClassPrefix: cssPrefix}

	switch format {
	case "ansi":
		err = render.ANSI(os.Stdout, source, tokens, th, opts)
	case "html":
		err = render.HTML(os.Stdout, source, tokens, th, opts)
	case "html-classes":
		err = render.HTMLClasses(os.Stdout, source, tokens, th, opts)
	default:
		fmt.Fprintf(os.Stderr, "unknown -format %q\n", format)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "render: %v\n", err)
		os.Exit(1)
	}
}

func loadTheme(themePath string) (*theme.Theme, error) {
	if themePath == "" {
		return theme.ParseTheme(theme.ThemeJSON{}), nil
	}
	data, err := os.ReadFile(themePath)
	if err != nil {
		return nil, err
	}
	var j theme.ThemeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse theme JSON: %w", err)
	}
	return theme.ParseTheme(j), nil
}

func readSource(name string) (source, sourceName string, err error) {
	if name == "" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), "", err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), name, nil
}
