package main

import "fmt"

// Tokens are small negative integers; any other value is the character
// itself ('+', '(', ...).
const (
	tokEOF   = -1
	tokError = -2

	// commands
	tokDef    = -3
	tokExtern = -4

	// primary
	tokIdentifier = -5
	tokNumber     = -6

	// control
	tokIf       = -7
	tokElif     = -8
	tokElse     = -9
	tokFor      = -10
	tokWhile    = -11
	tokDo       = -12
	tokBreak    = -13
	tokContinue = -14
	tokReturn   = -15

	// operators
	tokIn    = -16
	tokRange = -17
	tokAnd   = -18
	tokOr    = -19
	tokNot   = -20
	tokEq    = -21 // ==
	tokNe    = -22 // !=
	tokLe    = -23 // <=
	tokGe    = -24 // >=
	tokArrow = -25 // ->

	// declarations
	tokVar    = -26
	tokType   = -27
	tokStruct = -28
	tokPrint  = -29

	// layout
	tokEOL    = -30
	tokIndent = -31
	tokDedent = -32
)

var keywords = map[string]int{
	"def":      tokDef,
	"extern":   tokExtern,
	"if":       tokIf,
	"elif":     tokElif,
	"else":     tokElse,
	"for":      tokFor,
	"while":    tokWhile,
	"do":       tokDo,
	"break":    tokBreak,
	"continue": tokContinue,
	"return":   tokReturn,
	"in":       tokIn,
	"range":    tokRange,
	"and":      tokAnd,
	"or":       tokOr,
	"not":      tokNot,
	"var":      tokVar,
	"type":     tokType,
	"struct":   tokStruct,
	"print":    tokPrint,
}

// TokenName renders a token for diagnostics and for the -t token dump.
func TokenName(tok int) string {
	switch tok {
	case tokEOF:
		return "<eof>"
	case tokError:
		return "<error>"
	case tokDef:
		return "<def>"
	case tokExtern:
		return "<extern>"
	case tokIdentifier:
		return "<identifier>"
	case tokNumber:
		return "<number>"
	case tokIf:
		return "<if>"
	case tokElif:
		return "<elif>"
	case tokElse:
		return "<else>"
	case tokFor:
		return "<for>"
	case tokWhile:
		return "<while>"
	case tokDo:
		return "<do>"
	case tokBreak:
		return "<break>"
	case tokContinue:
		return "<continue>"
	case tokReturn:
		return "<return>"
	case tokIn:
		return "<in>"
	case tokRange:
		return "<range>"
	case tokAnd:
		return "<and>"
	case tokOr:
		return "<or>"
	case tokNot:
		return "<not>"
	case tokEq:
		return "<eq>"
	case tokNe:
		return "<ne>"
	case tokLe:
		return "<le>"
	case tokGe:
		return "<ge>"
	case tokArrow:
		return "<arrow>"
	case tokVar:
		return "<var>"
	case tokType:
		return "<type>"
	case tokStruct:
		return "<struct>"
	case tokPrint:
		return "<print>"
	case tokEOL:
		return "<eol>"
	case tokIndent:
		return "<indent>"
	case tokDedent:
		return "<dedent>"
	}
	if tok >= 0 && tok < 256 {
		return fmt.Sprintf("<%c>", rune(tok))
	}
	return fmt.Sprintf("<tok=%d>", tok)
}
