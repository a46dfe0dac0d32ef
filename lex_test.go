package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

// lexAll tokenizes src to completion, including the trailing tokEOF or
// tokError.
func lexAll(src string) []int {
	hadError = false
	InitLexer(strings.NewReader(src))
	var toks []int
	for {
		tok := NextToken()
		toks = append(toks, tok)
		if tok == tokEOF || tok == tokError {
			return toks
		}
	}
}

func TestLexKeywords(t *testing.T) {
	tests := []struct {
		input string
		tok   int
	}{
		{"def", tokDef},
		{"extern", tokExtern},
		{"if", tokIf},
		{"elif", tokElif},
		{"else", tokElse},
		{"for", tokFor},
		{"while", tokWhile},
		{"do", tokDo},
		{"break", tokBreak},
		{"continue", tokContinue},
		{"return", tokReturn},
		{"in", tokIn},
		{"range", tokRange},
		{"and", tokAnd},
		{"or", tokOr},
		{"not", tokNot},
		{"var", tokVar},
		{"type", tokType},
		{"struct", tokStruct},
		{"print", tokPrint},
	}
	for _, tt := range tests {
		toks := lexAll(tt.input)
		be.Equal(t, toks, []int{tt.tok, tokEOF})
	}
}

func TestLexIdentifier(t *testing.T) {
	toks := lexAll("fib2_x")
	be.Equal(t, toks, []int{tokIdentifier, tokEOF})
	be.Equal(t, identifierStr, "fib2_x")
}

func TestLexIntLiteral(t *testing.T) {
	lexAll("12345")
	be.True(t, numIsInt)
	be.Equal(t, numIntVal, int64(12345))
	be.Equal(t, numVal, 12345.0)
}

func TestLexFloatLiteral(t *testing.T) {
	lexAll("2.5")
	be.True(t, !numIsInt)
	be.Equal(t, numVal, 2.5)
}

func TestLexLeadingDotFloat(t *testing.T) {
	toks := lexAll(".5")
	be.Equal(t, toks, []int{tokNumber, tokEOF})
	be.Equal(t, numVal, 0.5)
}

func TestLexBareDotIsMemberOperator(t *testing.T) {
	toks := lexAll("p.x")
	be.Equal(t, toks, []int{tokIdentifier, '.', tokIdentifier, tokEOF})
}

func TestLexMalformedNumber(t *testing.T) {
	toks := lexAll("1.2.3")
	be.Equal(t, toks[len(toks)-1], tokError)
	be.True(t, hadError)
}

func TestLexOperators(t *testing.T) {
	tests := []struct {
		input string
		tok   int
	}{
		{"==", tokEq},
		{"!=", tokNe},
		{"<=", tokLe},
		{">=", tokGe},
		{"->", tokArrow},
		{"<", '<'},
		{">", '>'},
		{"=", '='},
		{"!", '!'},
		{"-", '-'},
		{"%", '%'},
		{"&", '&'},
		{"|", '|'},
		{"^", '^'},
		{"~", '~'},
	}
	for _, tt := range tests {
		toks := lexAll(tt.input)
		be.Equal(t, toks, []int{tt.tok, tokEOF})
	}
}

func TestLexCommentsAreSkipped(t *testing.T) {
	toks := lexAll("1 # the rest is ignored\n2")
	be.Equal(t, toks, []int{tokNumber, tokEOL, tokNumber, tokEOF})
}

func TestLexIndentDedent(t *testing.T) {
	src := "def f() -> f64:\n    return 1\n"
	toks := lexAll(src)
	be.Equal(t, toks, []int{
		tokDef, tokIdentifier, '(', ')', tokArrow, tokIdentifier, ':', tokEOL,
		tokIndent, tokReturn, tokNumber, tokEOL,
		tokDedent, tokEOF,
	})
}

func TestLexNestedDedents(t *testing.T) {
	src := "if a:\n    if b:\n        c\nd\n"
	toks := lexAll(src)
	be.Equal(t, toks, []int{
		tokIf, tokIdentifier, ':', tokEOL,
		tokIndent, tokIf, tokIdentifier, ':', tokEOL,
		tokIndent, tokIdentifier, tokEOL,
		tokDedent, tokDedent, tokIdentifier, tokEOL,
		tokEOF,
	})
}

func TestLexDedentsDrainedAtEOF(t *testing.T) {
	src := "if a:\n    if b:\n        c"
	toks := lexAll(src)
	be.Equal(t, toks[len(toks)-3:], []int{tokDedent, tokDedent, tokEOF})
}

func TestLexBlankAndCommentLinesDoNotDedent(t *testing.T) {
	src := "if a:\n    b\n\n    # comment only\n    c\n"
	toks := lexAll(src)
	be.Equal(t, toks, []int{
		tokIf, tokIdentifier, ':', tokEOL,
		tokIndent, tokIdentifier, tokEOL,
		tokIdentifier, tokEOL,
		tokDedent, tokEOF,
	})
}

func TestLexTabIndentation(t *testing.T) {
	src := "if a:\n\tb\n"
	toks := lexAll(src)
	be.Equal(t, toks, []int{
		tokIf, tokIdentifier, ':', tokEOL,
		tokIndent, tokIdentifier, tokEOL,
		tokDedent, tokEOF,
	})
}

func TestLexMixedTabsAndSpaces(t *testing.T) {
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	src := "if a:\n    b\n\t c\n"
	toks := lexAll(src)
	be.Equal(t, toks[len(toks)-1], tokError)
	be.True(t, strings.Contains(buf.String(), "You cannot mix tabs and spaces."))
}

func TestLexBlankLineWhitespaceDoesNotCommitIndentChar(t *testing.T) {
	// A whitespace-only line is skipped entirely, so a stray tab on it must
	// not lock the module into tab indentation.
	src := "\t\nif a:\n    b\n"
	toks := lexAll(src)
	be.Equal(t, toks, []int{
		tokIf, tokIdentifier, ':', tokEOL,
		tokIndent, tokIdentifier, tokEOL,
		tokDedent, tokEOF,
	})
}

func TestLexIndentsAndDedentsBalance(t *testing.T) {
	srcs := []string{
		"if a:\n    b\n",
		"if a:\n    if b:\n        c\nd\n",
		"def f() -> f64:\n    if a:\n        b\n    else:\n        c\n    return d\n",
	}
	for _, src := range srcs {
		indents, dedents := 0, 0
		for _, tok := range lexAll(src) {
			switch tok {
			case tokIndent:
				indents++
			case tokDedent:
				dedents++
			}
		}
		be.Equal(t, indents, dedents)
	}
}

func TestLexUnindentMismatch(t *testing.T) {
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	src := "if a:\n        b\n   c\n"
	toks := lexAll(src)
	be.Equal(t, toks[len(toks)-1], tokError)
	be.True(t, strings.Contains(buf.String(), "Unindent does not match any outer indentation level."))
}

func TestLexCRLF(t *testing.T) {
	src := "if a:\r\n    b\r\n"
	toks := lexAll(src)
	be.Equal(t, toks, []int{
		tokIf, tokIdentifier, ':', tokEOL,
		tokIndent, tokIdentifier, tokEOL,
		tokDedent, tokEOF,
	})
}

func TestLexTokenLocations(t *testing.T) {
	InitLexer(strings.NewReader("x = 5\n"))
	NextToken()
	be.Equal(t, curLoc, SourceLoc{Line: 1, Col: 1})
	NextToken()
	be.Equal(t, curLoc, SourceLoc{Line: 1, Col: 3})
	NextToken()
	be.Equal(t, curLoc, SourceLoc{Line: 1, Col: 5})
}

func TestTokenDumpFormat(t *testing.T) {
	src := "def add(a: f64) -> f64:\n    return a\n"
	dump := TokenDump(strings.NewReader(src))
	be.Equal(t, dump,
		"<def> <identifier> <(> <identifier> <:> <identifier> <)> <arrow> <identifier> <:><eol>\n"+
			"<indent=4> <return> <identifier><eol>\n"+
			"<dedent> <eof>\n")
}
