package main

import (
	"fmt"
	"io"
	"os"
)

var hadError bool

// diagOut is where diagnostics are written. Tests point it at a buffer.
var diagOut io.Writer = os.Stderr

var stderrIsTTY = func() bool {
	fi, err := os.Stderr.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}()

const (
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiReset  = "\x1b[0m"
)

// logErrorAt prints a diagnostic and marks the run as failed.
func logErrorAt(loc SourceLoc, format string, args ...any) {
	hadError = true
	msg := fmt.Sprintf(format, args...)
	if stderrIsTTY {
		fmt.Fprintf(diagOut, "%sError (Line %d, Column %d): %s%s\n", ansiRed, loc.Line, loc.Col, msg, ansiReset)
	} else {
		fmt.Fprintf(diagOut, "Error (Line %d, Column %d): %s\n", loc.Line, loc.Col, msg)
	}
}

// logErrorExpr is logErrorAt plus a reprint of the offending line with a
// caret under the token, when that line is still buffered in the lexer.
func logErrorExpr(loc SourceLoc, format string, args ...any) {
	logErrorAt(loc, format, args...)
	if loc.Line == curLineNo && loc.Col >= 1 && loc.Col <= len(curLineText)+1 {
		fmt.Fprintf(diagOut, "  %s\n  %*s\n", curLineText, loc.Col, "^")
	}
}

func logWarningAt(loc SourceLoc, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if stderrIsTTY {
		fmt.Fprintf(diagOut, "%sWarning (Line %d, Column %d): %s%s\n", ansiYellow, loc.Line, loc.Col, msg, ansiReset)
	} else {
		fmt.Fprintf(diagOut, "Warning (Line %d, Column %d): %s\n", loc.Line, loc.Col, msg)
	}
}
