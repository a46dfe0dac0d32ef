package main

import (
	"bufio"
	"fmt"
	"os"

	"tinygo.org/x/go-llvm"
)

const anonExprName = "__anon_expr"

var (
	jitEngine     llvm.ExecutionEngine
	jitDataLayout string
)

func initNativeTarget() error {
	if err := llvm.InitializeNativeTarget(); err != nil {
		return err
	}
	return llvm.InitializeNativeAsmPrinter()
}

// startJIT creates the execution engine seeded with a module holding the
// runtime helper definitions, then opens the first user module using the
// engine's data layout.
func startJIT() error {
	llvm.LinkInMCJIT()
	initCodegen()

	rtMod := llvmCtx.NewModule("pyxc.rt")
	emitRuntimeDefinitions(rtMod)

	opts := llvm.NewMCJITCompilerOptions()
	opts.SetMCJITOptimizationLevel(uint(optLevel))
	ee, err := llvm.NewMCJITCompiler(rtMod, opts)
	if err != nil {
		return err
	}
	jitEngine = ee
	jitDataLayout = jitEngine.TargetData().String()
	newJITModule()
	return nil
}

func newJITModule() {
	newModule("pyxc.jit")
	mod.SetDataLayout(jitDataLayout)
}

// runFunctionPasses applies the per-function cleanup pipeline before a
// module is handed to the JIT.
func runFunctionPasses(m llvm.Module) {
	var pipeline string
	switch optLevel {
	case 0:
		return
	case 1:
		pipeline = "function(mem2reg,instcombine,simplifycfg)"
	default:
		pipeline = "function(mem2reg,instcombine,reassociate,gvn,simplifycfg)"
	}
	tm, err := getNativeTargetMachine()
	if err != nil {
		return
	}
	pbo := llvm.NewPassBuilderOptions()
	defer pbo.Dispose()
	if err := m.RunPasses(pipeline, tm, pbo); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: optimization pipeline failed: %v\n", err)
	}
}

func dumpValue(header string, v llvm.Value) {
	fmt.Fprintf(os.Stderr, "%s:\n", header)
	v.Dump()
	fmt.Fprintln(os.Stderr)
}

func handleDefinition() {
	fn := ParseDefinition()
	if fn == nil {
		getNextToken()
		return
	}
	ir := fn.codegen()
	if ir.IsNil() {
		return
	}
	if verboseMode {
		dumpValue("Read function definition", ir)
	}
	runFunctionPasses(mod)
	jitEngine.AddModule(mod)
	newJITModule()
}

func handleExtern() {
	proto := ParseExtern()
	if proto == nil {
		getNextToken()
		return
	}
	ir := proto.codegen()
	if ir.IsNil() {
		return
	}
	if verboseMode {
		dumpValue("Read extern", ir)
	}
	functionProtos[proto.Name] = proto
}

func handleTypeAlias() {
	if parseTypeAliasDecl() {
		if curTok == tokEOL {
			getNextToken()
		}
	} else {
		getNextToken()
	}
}

func handleStructDecl() {
	if parseStructDecl() {
		if curTok == tokEOL {
			getNextToken()
		}
	} else {
		getNextToken()
	}
}

// handleTopLevelStmt wraps a top-level statement in an anonymous function,
// runs it under the JIT, and evicts its module afterwards.
func handleTopLevelStmt(interactive bool) {
	fn := ParseTopLevelStmt()
	if fn == nil {
		getNextToken()
		return
	}
	ir := fn.codegen()
	if ir.IsNil() {
		return
	}
	if verboseMode {
		dumpValue("Read top-level statement", ir)
	}

	runFunctionPasses(mod)
	anonMod := mod
	jitEngine.AddModule(anonMod)
	newJITModule()

	anonFn := jitEngine.FindFunction(anonExprName)
	if anonFn.IsNil() {
		fmt.Fprintln(os.Stderr, "Error: JIT lookup failed for top-level statement")
		hadError = true
		return
	}
	res := jitEngine.RunFunction(anonFn, nil)
	value := res.Float(llvmCtx.DoubleType())
	res.Dispose()

	if interactive {
		fmt.Fprintf(os.Stderr, "Evaluated to %f\nready> ", value)
	} else if verboseMode {
		fmt.Fprintf(os.Stderr, "Result: %f\n", value)
	}

	jitEngine.RemoveModule(anonMod)
	anonMod.Dispose()
	delete(functionProtos, anonExprName)
}

// mainLoop drives the REPL: one top-level form at a time, with error
// recovery between forms.
func mainLoop() {
	for {
		switch curTok {
		case tokError, tokEOF:
			return
		case tokEOL, tokDedent:
			getNextToken()
		case '@':
			logErrorAt(curLoc, "Decorators and custom operators are not supported")
			skipToNextLine()
		default:
			fmt.Fprint(os.Stderr, "ready> ")
			switch curTok {
			case tokDef:
				handleDefinition()
			case tokExtern:
				handleExtern()
			case tokType:
				handleTypeAlias()
			case tokStruct:
				handleStructDecl()
			default:
				handleTopLevelStmt(true)
			}
		}
	}
}

func runREPL() int {
	useCMainSignature = false
	if err := initNativeTarget(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	fmt.Fprint(os.Stderr, "ready> ")
	InitLexer(bufio.NewReader(os.Stdin))

	if err := startJIT(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not create JIT: %v\n", err)
		return 1
	}

	getNextToken()
	mainLoop()

	if verboseMode {
		mod.Dump()
	}
	return 0
}

// interpretFile runs a whole file under the JIT, stopping at the first
// diagnosed error.
func interpretFile(filename string) int {
	hadError = false
	useCMainSignature = false
	if err := initNativeTarget(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := startJIT(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not create JIT: %v\n", err)
		return 1
	}

	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Could not open file %s\n", filename)
		return 1
	}
	defer f.Close()

	InitLexer(bufio.NewReader(f))
	getNextToken()

	for curTok != tokEOF && curTok != tokError && !hadError {
		switch curTok {
		case tokDef:
			handleDefinition()
		case tokExtern:
			handleExtern()
		case tokType:
			handleTypeAlias()
		case tokStruct:
			handleStructDecl()
		case tokEOL, tokDedent:
			getNextToken()
		case '@':
			logErrorAt(curLoc, "Decorators and custom operators are not supported")
			skipToNextLine()
		default:
			handleTopLevelStmt(false)
		}
	}

	if hadError || curTok == tokError {
		return 1
	}
	return 0
}
