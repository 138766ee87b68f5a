// Package regexp implements a regular expression library using Oniguruma.
//
// TextMate grammars rely on backreferences, lookbehind and Ruby/PCRE capture
// semantics that Go's stdlib regexp (RE2) cannot express, so this binds
// libonig directly via cgo.
package regexp

// #cgo pkg-config: oniguruma
// #include <oniguruma.h>
// #include <stdlib.h>
//
// int error_code_to_str(UChar* err_buf, int err_code, OnigErrorInfo* info) {
//     return info != NULL ? onig_error_code_to_str(err_buf, err_code, info) : onig_error_code_to_str(err_buf, err_code);
// }
import "C"
import (
	"errors"
	"fmt"
	"unsafe"
)

var (
	ErrRegexpSyntax = errors.New("syntax error")
)

type Regexp struct {
	c       C.OnigRegex
	pattern string
}

type Range struct {
	Start, End int
}

func (r Range) Len() int {
	return r.End - r.Start
}

// Valid reports whether the range denotes a group that participated in the
// match; unparticipated optional groups carry Start == End == -1.
func (r Range) Valid() bool {
	return r.Start >= 0 && r.End >= 0
}

func (r Range) Text(str string) string {
	if !r.Valid() {
		return ""
	}
	return str[r.Start:r.End]
}

type Option C.OnigOptionType

const (
	OptionDefault                            Option = C.ONIG_OPTION_DEFAULT
	OptionNone                               Option = C.ONIG_OPTION_NONE
	OptionIgnorecase                         Option = C.ONIG_OPTION_IGNORECASE
	OptionExtend                             Option = C.ONIG_OPTION_EXTEND
	OptionMultiline                          Option = C.ONIG_OPTION_MULTILINE
	OptionSingleline                         Option = C.ONIG_OPTION_SINGLELINE
	OptionFindLongest                        Option = C.ONIG_OPTION_FIND_LONGEST
	OptionFindNotEmpty                       Option = C.ONIG_OPTION_FIND_NOT_EMPTY
	OptionNegateSingleline                   Option = C.ONIG_OPTION_NEGATE_SINGLELINE
	OptionDontCaptureGroup                   Option = C.ONIG_OPTION_DONT_CAPTURE_GROUP
	OptionCaptureGroup                       Option = C.ONIG_OPTION_CAPTURE_GROUP
	OptionNotBOL                             Option = C.ONIG_OPTION_NOTBOL
	OptionNotEOL                             Option = C.ONIG_OPTION_NOTEOL
	OptionPosixRegion                        Option = C.ONIG_OPTION_POSIX_REGION
	OptionCheckValidityOfString              Option = C.ONIG_OPTION_CHECK_VALIDITY_OF_STRING
	OptionIgnorecaseIsASCII                  Option = C.ONIG_OPTION_IGNORECASE_IS_ASCII
	OptionWordIsASCII                        Option = C.ONIG_OPTION_WORD_IS_ASCII
	OptionDigitIsASCII                       Option = C.ONIG_OPTION_DIGIT_IS_ASCII
	OptionSpaceIsASCII                       Option = C.ONIG_OPTION_SPACE_IS_ASCII
	OptionPosixIsASCII                       Option = C.ONIG_OPTION_POSIX_IS_ASCII
	OptionTextSegmentExtendedGraphemeCluster Option = C.ONIG_OPTION_TEXT_SEGMENT_EXTENDED_GRAPHEME_CLUSTER
	OptionTextSegmentWord                    Option = C.ONIG_OPTION_TEXT_SEGMENT_WORD
	OptionNotBeginString                     Option = C.ONIG_OPTION_NOT_BEGIN_STRING
	OptionNotEndString                       Option = C.ONIG_OPTION_NOT_END_STRING
	OptionNotBeginPosition                   Option = C.ONIG_OPTION_NOT_BEGIN_POSITION
	OptionCallbackEachMatch                  Option = C.ONIG_OPTION_CALLBACK_EACH_MATCH
	OptionMatchWholeString                   Option = C.ONIG_OPTION_MATCH_WHOLE_STRING
	OptionMaxbit                             Option = C.ONIG_OPTION_MAXBIT
)

var syntax = C.ONIG_SYNTAX_DEFAULT

func onigError(code C.int, info *C.OnigErrorInfo) error {
	var errBuf [C.ONIG_MAX_ERROR_MESSAGE_LEN]C.char
	C.error_code_to_str((*C.OnigUChar)(unsafe.Pointer(&errBuf[0])), code, info)
	return fmt.Errorf("%w: %s", ErrRegexpSyntax, C.GoString(&errBuf[0]))
}

func Compile(pattern string, option Option) (*Regexp, error) {
	r := Regexp{pattern: pattern}
	bytes := []byte(pattern)
	if len(bytes) == 0 {
		return nil, fmt.Errorf("%w: empty pattern", ErrRegexpSyntax)
	}
	start := (*C.OnigUChar)(unsafe.Pointer(&bytes[0]))
	end := (*C.OnigUChar)(unsafe.Pointer(uintptr(unsafe.Pointer(&bytes[0])) + uintptr(len(bytes))))

	var errinfo C.OnigErrorInfo

	ret := C.onig_new(&r.c, start, end, C.OnigOptionType(option|OptionCaptureGroup), C.ONIG_ENCODING_UTF8, syntax, &errinfo)
	if ret != C.ONIG_NORMAL {
		return nil, onigError(ret, &errinfo)
	}

	return &r, nil
}

func (re *Regexp) Free() {
	if re.c != nil {
		C.onig_free(re.c)
		re.c = nil
	}
}

func (re *Regexp) String() string {
	return re.pattern
}

// Match runs an anchored match of re against text starting exactly at from,
// ending the scan window at to. Kept for callers that want onig_match's
// anchored-at-position semantics (e.g. while-pattern re-validation at the
// exact anchor).
func (re *Regexp) Match(text string, from int, to int, options Option) ([]Range, error) {
	if len(text) == 0 {
		return nil, nil
	}
	bytes := []byte(text)
	cpattern := (*C.OnigUChar)(unsafe.Pointer(&bytes[0]))
	start := (*C.OnigUChar)(unsafe.Pointer(uintptr(unsafe.Pointer(&bytes[0])) + uintptr(from)))
	end := (*C.OnigUChar)(unsafe.Pointer(uintptr(unsafe.Pointer(&bytes[0])) + uintptr(to)))

	region := C.onig_region_new()
	defer C.onig_region_free(region, 1)

	ret := C.onig_match(re.c, cpattern, end, start, region, C.OnigOptionType(options))
	if ret == C.ONIG_MISMATCH {
		return nil, nil
	} else if ret < 0 {
		return nil, onigError(ret, nil)
	}

	return regionToGroups(region), nil
}

// Search scans text for the first leftmost match at or after from, stopping
// the scan window at to. Unlike Match it does not require the match to begin
// exactly at from: this is what the tokenizer's main scan loop needs to find
// the next rule that fires anywhere on the rest of the line. The full text
// (not just text[from:]) is passed to Oniguruma so lookbehind across the
// search boundary still works.
func (re *Regexp) Search(text string, from int, to int, options Option) ([]Range, error) {
	if len(text) == 0 {
		return nil, nil
	}
	bytes := []byte(text)
	base := uintptr(unsafe.Pointer(&bytes[0]))
	str := (*C.OnigUChar)(unsafe.Pointer(base))
	strEnd := (*C.OnigUChar)(unsafe.Pointer(base + uintptr(len(bytes))))
	searchStart := (*C.OnigUChar)(unsafe.Pointer(base + uintptr(from)))
	rangeEnd := (*C.OnigUChar)(unsafe.Pointer(base + uintptr(to)))

	region := C.onig_region_new()
	defer C.onig_region_free(region, 1)

	pos := C.onig_search(re.c, str, strEnd, searchStart, rangeEnd, region, C.OnigOptionType(options))
	if pos == C.ONIG_MISMATCH {
		return nil, nil
	} else if pos < 0 {
		return nil, onigError(pos, nil)
	}

	return regionToGroups(region), nil
}

func regionToGroups(region *C.OnigRegion) []Range {
	groups := make([]Range, region.num_regs)
	for i := range int(region.num_regs) {
		beg := *(*C.int)(unsafe.Pointer(uintptr(unsafe.Pointer(region.beg)) + uintptr(i)*unsafe.Sizeof(*region.beg)))
		end := *(*C.int)(unsafe.Pointer(uintptr(unsafe.Pointer(region.end)) + uintptr(i)*unsafe.Sizeof(*region.end)))
		if beg == -1 || end == -1 {
			groups[i] = Range{-1, -1}
			continue
		}
		groups[i] = Range{int(beg), int(end)}
	}
	return groups
}

// RegSet batches many compiled patterns behind a single Oniguruma RegSet so
// the tokenizer's scan loop can ask "which of these N rules matches
// earliest, and which of the tied ones was declared first" in one native
// call, rather than N separate Search calls per position.
type RegSet struct {
	c    C.OnigRegSet
	subs []*Regexp
}

// NewRegSet compiles each pattern in patterns and batches them. On error,
// any already-compiled members are freed. The returned RegSet owns the
// compiled subexpressions; Free releases all of them.
func NewRegSet(patterns []string) (*RegSet, error) {
	rs := &RegSet{c: C.onig_regset_new_empty()}
	for _, p := range patterns {
		re, err := Compile(p, OptionNone)
		if err != nil {
			rs.Free()
			return nil, err
		}
		if ret := C.onig_regset_add(rs.c, re.c); ret != C.ONIG_NORMAL {
			re.Free()
			rs.Free()
			return nil, onigError(ret, nil)
		}
		rs.subs = append(rs.subs, re)
	}
	return rs, nil
}

func (rs *RegSet) Free() {
	if rs.c != nil {
		C.onig_regset_free(rs.c) // frees member regexes too
		rs.c = nil
		rs.subs = nil
	}
}

// Len reports the number of patterns in the set.
func (rs *RegSet) Len() int { return len(rs.subs) }

// Pattern returns the source text of the pattern at index i.
func (rs *RegSet) Pattern(i int) string { return rs.subs[i].pattern }

// SearchAt finds, among all patterns in the set, the one producing the
// earliest match at or after from (ties broken by lowest index, i.e.
// declaration order — ONIG_REGSET_POSITION_LEAD). options lets callers
// suppress \A/\G anchors contextually (see OptionNotBeginString,
// OptionNotBeginPosition) without recompiling the set. Returns index -1 and
// a nil group slice when nothing matches.
func (rs *RegSet) SearchAt(text string, from int, to int, options Option) (int, []Range, error) {
	if len(rs.subs) == 0 || len(text) == 0 {
		return -1, nil, nil
	}
	bytes := []byte(text)
	base := uintptr(unsafe.Pointer(&bytes[0]))
	str := (*C.OnigUChar)(unsafe.Pointer(base))
	strEnd := (*C.OnigUChar)(unsafe.Pointer(base + uintptr(len(bytes))))
	searchStart := (*C.OnigUChar)(unsafe.Pointer(base + uintptr(from)))
	rangeEnd := (*C.OnigUChar)(unsafe.Pointer(base + uintptr(to)))

	region := C.onig_region_new()
	defer C.onig_region_free(region, 1)

	var matchPos C.int
	idx := C.onig_regset_search(rs.c, str, strEnd, searchStart, rangeEnd,
		C.ONIG_REGSET_POSITION_LEAD, C.OnigOptionType(options), region, &matchPos)
	if idx == C.ONIG_MISMATCH {
		return -1, nil, nil
	} else if idx < 0 {
		return -1, nil, onigError(idx, nil)
	}

	return int(idx), regionToGroups(region), nil
}

// EscapeMeta escapes Oniguruma metacharacters and whitespace in value so it
// can be spliced verbatim into a pattern string and match only its literal
// text (used when resolving backreferences).
func EscapeMeta(value string) string {
	var out []byte
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch c {
		case '-', '\\', '{', '}', '*', '+', '?', '|', '^', '$', '.', ',', '[', ']', '(', ')', '#', ' ', '\t', '\n', '\r', '\f', '\v':
			out = append(out, '\\', c)
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

// ResolveBackreferences substitutes \N within pattern with the
// metacharacter-escaped text capture group N matched in source (group 0 is
// the whole match), per capturePositions. A \N whose group is out of range
// or did not participate substitutes the empty string. Backslash sequences
// that aren't followed by a digit pass through unchanged.
func ResolveBackreferences(pattern string, source string, capturePositions []Range) string {
	var out []byte
	p := []byte(pattern)
	for i := 0; i < len(p); i++ {
		if p[i] != '\\' {
			out = append(out, p[i])
			continue
		}
		j := i + 1
		for j < len(p) && p[j] >= '0' && p[j] <= '9' {
			j++
		}
		if j == i+1 {
			out = append(out, p[i])
			continue
		}
		index := 0
		for _, d := range p[i+1 : j] {
			index = index*10 + int(d-'0')
		}
		var captured string
		if index >= 0 && index < len(capturePositions) && capturePositions[index].Valid() {
			captured = capturePositions[index].Text(source)
		}
		out = append(out, EscapeMeta(captured)...)
		i = j - 1
	}
	return string(out)
}

// TransformZAnchor rewrites Oniguruma's \z ("absolute end of string") to
// $(?!\n)(?<!\n), which matches only at the very end of the string and,
// unlike \z, not there when the string ends with a newline. A literal
// escaped backslash (\\z) is left untouched.
func TransformZAnchor(pattern string) string {
	const placeholder = "\x00ESCAPED-BACKSLASH-Z\x00"
	s := replaceAll(pattern, `\\z`, placeholder)
	s = replaceAll(s, `\z`, `$(?!\n)(?<!\n)`)
	s = replaceAll(s, placeholder, `\\z`)
	return s
}

func replaceAll(s, old, new string) string {
	if old == "" || len(old) > len(s) {
		return s
	}
	var out []byte
	for {
		i := indexOf(s, old)
		if i < 0 {
			out = append(out, s...)
			break
		}
		out = append(out, s[:i]...)
		out = append(out, new...)
		s = s[i+len(old):]
	}
	return string(out)
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
