package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var (
	verboseMode    bool
	optLevel       = 2
	outputFilename string
)

type executionMode int

const (
	modeExecutable executionMode = iota
	modeInterpret
	modeObject
	modeTokens
)

func showUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `pyxc - Compiler and Interpreter

Usage:
    pyxc [flags] [input file]

With no input file, pyxc -i starts a REPL. With an input file and no mode
flag, pyxc builds a native executable.

Flags:
`)
	fs.PrintDefaults()
}

// rewriteOptArgs turns -O0..-O3 into the -O=N form the flag package parses.
func rewriteOptArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if len(arg) > 2 && strings.HasPrefix(arg, "-O") && !strings.HasPrefix(arg, "-O=") {
			arg = "-O=" + arg[2:]
		}
		out = append(out, arg)
	}
	return out
}

func printTokens(filename string) int {
	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Could not open file %s\n", filename)
		return 1
	}
	defer f.Close()

	fmt.Fprint(os.Stderr, TokenDump(bufio.NewReader(f)))
	return 0
}

func run(args []string) int {
	fs := flag.NewFlagSet("pyxc", flag.ExitOnError)
	interpretFlag := fs.Bool("i", false, "Interpret the input file immediately (REPL with no input)")
	objectFlag := fs.Bool("c", false, "Compile to object file")
	tokensFlag := fs.Bool("t", false, "Print tokens")
	outFlag := fs.String("o", "", "Output filename (defaults to input basename)")
	optFlag := fs.String("O", "2", "Optimization level (0-3)")
	debugFlag := fs.Bool("g", false, "Emit debug information")
	verboseFlag := fs.Bool("v", false, "Enable verbose output")
	fs.Usage = func() { showUsage(fs) }

	if err := fs.Parse(rewriteOptArgs(args)); err != nil {
		return 1
	}

	verboseMode = *verboseFlag
	emitDebugInfo = *debugFlag
	outputFilename = *outFlag

	level, err := strconv.Atoi(*optFlag)
	if err != nil || level < 0 || level > 3 {
		fmt.Fprintf(os.Stderr, "Error: invalid optimization level '%s'. Use -O0, -O1, -O2, or -O3\n", *optFlag)
		return 1
	}
	optLevel = level

	mode := modeExecutable
	modeFlags := 0
	if *interpretFlag {
		mode = modeInterpret
		modeFlags++
	}
	if *objectFlag {
		mode = modeObject
		modeFlags++
	}
	if *tokensFlag {
		mode = modeTokens
		modeFlags++
	}
	if modeFlags > 1 {
		fmt.Fprintln(os.Stderr, "Error: at most one of -i, -c, -t may be given")
		return 1
	}

	input := fs.Arg(0)
	if input == "" {
		// REPL mode: only -i (plus -v) makes sense without a file.
		if mode != modeInterpret {
			fmt.Fprintln(os.Stderr, "Error: executable, object, and token modes require an input file")
			return 1
		}
		if outputFilename != "" {
			fmt.Fprintln(os.Stderr, "Error: REPL mode cannot work with an output file")
			return 1
		}
		return runREPL()
	}

	if emitDebugInfo && mode != modeExecutable && mode != modeObject {
		fmt.Fprintln(os.Stderr, "Error: -g is only allowed with executable or object builds")
		return 1
	}

	if verboseMode {
		fmt.Printf("Processing file: %s\n", input)
	}

	switch mode {
	case modeInterpret:
		if verboseMode {
			fmt.Printf("Interpreting %s...\n", input)
		}
		return interpretFile(input)

	case modeExecutable:
		exeFile := getOutputFilename(input, "")
		if verboseMode {
			fmt.Printf("Compiling %s to executable: %s\n", input, exeFile)
		}
		scriptObj := exeFile + ".tmp.o"
		if !compileToObjectFile(input, scriptObj) {
			return 1
		}
		if verboseMode {
			fmt.Println("Linking...")
		}
		if err := linkExecutable(scriptObj, exeFile); err != nil {
			fmt.Fprintln(os.Stderr, "Linking failed")
			return 1
		}
		os.Remove(scriptObj)
		if verboseMode {
			fmt.Printf("Successfully created executable: %s\n", exeFile)
		} else {
			fmt.Println(exeFile)
		}
		return 0

	case modeObject:
		output := getOutputFilename(input, ".o")
		if verboseMode {
			fmt.Printf("Compiling %s to object file: %s\n", input, output)
		}
		if !compileToObjectFile(input, output) {
			return 1
		}
		if verboseMode {
			fmt.Printf("Wrote %s\n", output)
		} else {
			fmt.Println(output)
		}
		return 0

	case modeTokens:
		if verboseMode {
			fmt.Printf("Tokenizing %s...\n", input)
		}
		return printTokens(input)
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:]))
}
