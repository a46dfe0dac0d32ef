package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// SourceLoc is a 1-based line/column position in the input.
type SourceLoc struct {
	Line int
	Col  int
}

const eofChar = -1

var (
	src         *bufio.Reader
	lexLoc      = SourceLoc{Line: 1, Col: 0}
	curLoc      SourceLoc // location of the most recently returned token
	curLineText []byte    // text of the line being lexed, for caret diagnostics
	curLineNo   = 1

	identifierStr string  // set for tokIdentifier
	numLiteral    string  // raw text of the last tokNumber
	numVal        float64 // set for tokNumber
	numIsInt      bool    // literal had no dot
	numIntVal     int64   // set when numIsInt

	peekedChar     = 0 // one-character look-ahead; 0 means empty
	atLineStart    = true
	indentStack    = []int{0}
	pendingDedents int
	indentChar     byte // ' ' or '\t' once the module commits to one; 0 = undecided
	curIndentWidth int  // width that produced the most recent tokIndent
)

// InitLexer resets all lexer state and points it at a new input.
func InitLexer(r io.Reader) {
	src = bufio.NewReader(r)
	lexLoc = SourceLoc{Line: 1, Col: 0}
	curLoc = SourceLoc{}
	curLineText = curLineText[:0]
	curLineNo = 1
	peekedChar = 0
	atLineStart = true
	indentStack = []int{0}
	pendingDedents = 0
	indentChar = 0
	curIndentWidth = 0
}

func readChar() int {
	b, err := src.ReadByte()
	if err != nil {
		return eofChar
	}
	if b == '\n' || b == '\r' {
		if b == '\r' {
			// coalesce CRLF
			if nb, err := src.ReadByte(); err == nil && nb != '\n' {
				src.UnreadByte()
			}
		}
		lexLoc.Line++
		lexLoc.Col = 0
		curLineText = curLineText[:0]
		curLineNo = lexLoc.Line
		return '\n'
	}
	lexLoc.Col++
	curLineText = append(curLineText, b)
	return int(b)
}

func nextChar() int {
	if peekedChar != 0 {
		c := peekedChar
		peekedChar = 0
		return c
	}
	return readChar()
}

func pushBack(c int) {
	peekedChar = c
}

func isAlpha(c int) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isDigit(c int) bool { return c >= '0' && c <= '9' }
func isAlnum(c int) bool { return isAlpha(c) || isDigit(c) }

// handleIndentation runs at the start of each line. It skips blank and
// comment-only lines, measures the leading-whitespace width (a tab advances
// to the next multiple of eight), and compares it against the indent stack.
// Returns tokIndent, tokDedent, or tokError; 0 means the line continues at
// the current level and the caller should lex its tokens.
func handleIndentation() int {
	for {
		width := 0
		mixed := false
		undecided := indentChar == 0
		c := nextChar()
		for c == ' ' || c == '\t' {
			ch := byte(c)
			if indentChar == 0 {
				indentChar = ch
			} else if indentChar != ch {
				mixed = true
			}
			if ch == '\t' {
				width = (width/8 + 1) * 8
			} else {
				width++
			}
			c = nextChar()
		}
		if c == '#' {
			for c != '\n' && c != eofChar {
				c = nextChar()
			}
		}
		if c == '\n' {
			// Blank line, no indentation contribution. Its whitespace must
			// not commit the module to tabs or spaces either.
			if undecided {
				indentChar = 0
			}
			continue
		}
		if c == eofChar {
			atLineStart = false
			return 0
		}
		if mixed {
			curLoc = lexLoc
			logErrorAt(curLoc, "You cannot mix tabs and spaces.")
			return tokError
		}
		pushBack(c)
		atLineStart = false
		top := indentStack[len(indentStack)-1]
		switch {
		case width > top:
			indentStack = append(indentStack, width)
			curIndentWidth = width
			curLoc = lexLoc
			return tokIndent
		case width == top:
			return 0
		default:
			n := 0
			for len(indentStack) > 1 && indentStack[len(indentStack)-1] > width {
				indentStack = indentStack[:len(indentStack)-1]
				n++
			}
			if indentStack[len(indentStack)-1] != width {
				curLoc = lexLoc
				logErrorAt(curLoc, "Unindent does not match any outer indentation level.")
				return tokError
			}
			pendingDedents = n - 1
			curLoc = lexLoc
			return tokDedent
		}
	}
}

// NextToken returns the next token from the input.
func NextToken() int {
	if pendingDedents > 0 {
		pendingDedents--
		return tokDedent
	}
	if atLineStart {
		if tok := handleIndentation(); tok != 0 {
			return tok
		}
	}

	c := nextChar()
	for c == ' ' || c == '\t' {
		c = nextChar()
	}
	curLoc = lexLoc

	if isAlpha(c) {
		var buf []byte
		for isAlnum(c) || c == '_' {
			buf = append(buf, byte(c))
			c = nextChar()
		}
		pushBack(c)
		identifierStr = string(buf)
		if tok, ok := keywords[identifierStr]; ok {
			return tok
		}
		return tokIdentifier
	}

	if c == '.' {
		d := nextChar()
		pushBack(d)
		if !isDigit(d) {
			return '.'
		}
	}
	if isDigit(c) || c == '.' {
		var buf []byte
		seenDot := false
		for isDigit(c) || c == '.' {
			if c == '.' {
				seenDot = true
			}
			buf = append(buf, byte(c))
			c = nextChar()
		}
		pushBack(c)
		numLiteral = string(buf)
		if seenDot {
			v, err := strconv.ParseFloat(numLiteral, 64)
			if err != nil {
				logErrorAt(curLoc, "Malformed numeric literal '%s'.", numLiteral)
				return tokError
			}
			numVal = v
			numIsInt = false
		} else {
			iv, err := strconv.ParseInt(numLiteral, 10, 64)
			if err != nil {
				logErrorAt(curLoc, "Malformed numeric literal '%s'.", numLiteral)
				return tokError
			}
			numIntVal = iv
			numVal = float64(iv)
			numIsInt = true
		}
		return tokNumber
	}

	if c == '#' {
		for c != '\n' && c != eofChar {
			c = nextChar()
		}
	}

	if c == '\n' {
		atLineStart = true
		return tokEOL
	}

	if c == eofChar {
		if len(indentStack) > 1 {
			indentStack = indentStack[:len(indentStack)-1]
			return tokDedent
		}
		return tokEOF
	}

	switch c {
	case '=':
		if d := nextChar(); d == '=' {
			return tokEq
		} else {
			pushBack(d)
		}
	case '!':
		if d := nextChar(); d == '=' {
			return tokNe
		} else {
			pushBack(d)
		}
	case '<':
		if d := nextChar(); d == '=' {
			return tokLe
		} else {
			pushBack(d)
		}
	case '>':
		if d := nextChar(); d == '=' {
			return tokGe
		} else {
			pushBack(d)
		}
	case '-':
		if d := nextChar(); d == '>' {
			return tokArrow
		} else {
			pushBack(d)
		}
	}
	return c
}

// TokenDump lexes the whole input and renders it in the -t format: one
// line of tokens per source line, ending with <eof>.
func TokenDump(r io.Reader) string {
	InitLexer(r)

	var sb strings.Builder
	tok := NextToken()
	firstOnLine := true
	for tok != tokEOF {
		if tok == tokEOL {
			sb.WriteString("<eol>\n")
			firstOnLine = true
			tok = NextToken()
			continue
		}
		if !firstOnLine {
			sb.WriteByte(' ')
		}
		firstOnLine = false
		if tok == tokIndent {
			fmt.Fprintf(&sb, "<indent=%d>", curIndentWidth)
		} else {
			sb.WriteString(TokenName(tok))
		}
		tok = NextToken()
	}
	if !firstOnLine {
		sb.WriteByte(' ')
	}
	sb.WriteString("<eof>\n")
	return sb.String()
}
