// Package format compiles a declarative sequence-format string into a
// matcher: a region map, a compiled regular expression with named
// captures, and a constant-region skeleton used for error repair.
//
// Grammar (scanned left to right over the token stream):
//
//	[n]   sample barcode of width n (at most one; a second is rejected)
//	{n}   counted barcode of width n (K of these; 1-based ordinal is
//	      position in the declaration)
//	(n)   random/UMI barcode of width n (at most one)
//	N+    don't-care wildcard, width equal to the run length
//	ATGC  constant region (case-folded to upper)
//
// Example: "[8]AGCTAGATC{6}TGGA{6}TGGA{6}TGATTGCGC(6)NNNNAT" declares an
// 8-base sample barcode, a 9-base constant anchor, three 6-base counted
// barcodes (the first two each followed by a 4-base constant spacer, the
// third by a 9-base constant), a 6-base random barcode, a 4-base
// don't-care run, and a trailing 2-base constant.
package format

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"barseq/internal/pipelineerr"
)

// Format is the compiled result of a declaration.
type Format struct {
	// FormatString is the normalized token stream the declaration
	// compiled from (comments stripped, literals upper-cased).
	FormatString string
	// PatternLength is the total width in nucleotides.
	PatternLength int
	// RegionsString tags every position 1:1 with one of S, B, R, C.
	RegionsString string
	// Regex carries named capture groups: sample, barcode1..barcodeK,
	// random — whichever the declaration actually contains.
	Regex *regexp.Regexp
	// ConstantSkeleton mirrors the declaration with every
	// barcode/sample/random/wildcard position replaced by 'N'.
	ConstantSkeleton string
	// BarcodeCount is K, the number of {n} tokens.
	BarcodeCount int
	HasSample    bool
	HasRandom    bool
}

type tokenKind int

const (
	tokSample tokenKind = iota
	tokBarcode
	tokRandom
	tokWildcard
	tokLiteral
)

type token struct {
	kind  tokenKind
	width int
	text  string // only populated for tokLiteral
}

// Compile parses already-read declaration text (lines beginning with '#'
// are comments and are dropped; the remaining lines are concatenated
// into one token stream). The caller owns turning a file path into this
// string — this component never touches the filesystem.
func Compile(declaration string) (*Format, error) {
	tokens, err := tokenize(declaration)
	if err != nil {
		return nil, err
	}
	return build(tokens)
}

func tokenize(declaration string) ([]token, error) {
	var stream strings.Builder
	for _, line := range strings.Split(declaration, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		stream.WriteString(trimmed)
	}
	s := stream.String()

	var tokens []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, pipelineerr.New(pipelineerr.Configuration, "unterminated '[' sample token")
			}
			n, err := parseWidth(s[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokSample, width: n})
			i += end + 1
		case c == '{':
			end := strings.IndexByte(s[i:], '}')
			if end < 0 {
				return nil, pipelineerr.New(pipelineerr.Configuration, "unterminated '{' barcode token")
			}
			n, err := parseWidth(s[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokBarcode, width: n})
			i += end + 1
		case c == '(':
			end := strings.IndexByte(s[i:], ')')
			if end < 0 {
				return nil, pipelineerr.New(pipelineerr.Configuration, "unterminated '(' random token")
			}
			n, err := parseWidth(s[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokRandom, width: n})
			i += end + 1
		case c == 'N' || c == 'n':
			j := i
			for j < len(s) && (s[j] == 'N' || s[j] == 'n') {
				j++
			}
			tokens = append(tokens, token{kind: tokWildcard, width: j - i})
			i = j
		case isNucleotide(c):
			j := i
			for j < len(s) && isNucleotide(s[j]) {
				j++
			}
			tokens = append(tokens, token{kind: tokLiteral, width: j - i, text: strings.ToUpper(s[i:j])})
			i = j
		default:
			return nil, pipelineerr.New(pipelineerr.Configuration, fmt.Sprintf("unexpected character %q in format declaration", c))
		}
	}
	return tokens, nil
}

func isNucleotide(c byte) bool {
	switch c {
	case 'A', 'C', 'G', 'T', 'a', 'c', 'g', 't':
		return true
	default:
		return false
	}
}

func parseWidth(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, pipelineerr.New(pipelineerr.Configuration, fmt.Sprintf("malformed numeric token %q", raw))
	}
	return n, nil
}

func build(tokens []token) (*Format, error) {
	var (
		formatStr strings.Builder
		regions   strings.Builder
		skeleton  strings.Builder
		pattern   strings.Builder
		hasSample bool
		hasRandom bool
		barcodeN  int
	)

	for _, t := range tokens {
		switch t.kind {
		case tokSample:
			if hasSample {
				return nil, pipelineerr.New(pipelineerr.Configuration, "at most one sample ([n]) token is allowed")
			}
			hasSample = true
			formatStr.WriteString(fmt.Sprintf("[%d]", t.width))
			regions.WriteString(strings.Repeat("S", t.width))
			skeleton.WriteString(strings.Repeat("N", t.width))
			pattern.WriteString(fmt.Sprintf("(?P<sample>[ACGTN]{%d})", t.width))
		case tokBarcode:
			barcodeN++
			formatStr.WriteString(fmt.Sprintf("{%d}", t.width))
			regions.WriteString(strings.Repeat("B", t.width))
			skeleton.WriteString(strings.Repeat("N", t.width))
			pattern.WriteString(fmt.Sprintf("(?P<barcode%d>[ACGTN]{%d})", barcodeN, t.width))
		case tokRandom:
			if hasRandom {
				return nil, pipelineerr.New(pipelineerr.Configuration, "at most one random ((n)) token is allowed")
			}
			hasRandom = true
			formatStr.WriteString(fmt.Sprintf("(%d)", t.width))
			regions.WriteString(strings.Repeat("R", t.width))
			skeleton.WriteString(strings.Repeat("N", t.width))
			pattern.WriteString(fmt.Sprintf("(?P<random>[ACGTN]{%d})", t.width))
		case tokWildcard:
			formatStr.WriteString(strings.Repeat("N", t.width))
			regions.WriteString(strings.Repeat("C", t.width))
			skeleton.WriteString(strings.Repeat("N", t.width))
			pattern.WriteString(fmt.Sprintf("[ACGTN]{%d}", t.width))
		case tokLiteral:
			formatStr.WriteString(t.text)
			regions.WriteString(strings.Repeat("C", t.width))
			skeleton.WriteString(t.text)
			pattern.WriteString(regexp.QuoteMeta(t.text))
		}
	}

	if len(tokens) == 0 {
		return nil, pipelineerr.New(pipelineerr.Configuration, "empty format declaration")
	}

	re, err := regexp.Compile("^" + pattern.String())
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.Configuration, "failed to compile format regex", err)
	}

	return &Format{
		FormatString:     formatStr.String(),
		PatternLength:    regions.Len(),
		RegionsString:    regions.String(),
		Regex:            re,
		ConstantSkeleton: skeleton.String(),
		BarcodeCount:     barcodeN,
		HasSample:        hasSample,
		HasRandom:        hasRandom,
	}, nil
}
