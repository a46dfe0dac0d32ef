package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"tinygo.org/x/go-llvm"
)

var (
	nativeTM      llvm.TargetMachine
	nativeTMReady bool
)

func getNativeTargetMachine() (llvm.TargetMachine, error) {
	if nativeTMReady {
		return nativeTM, nil
	}
	triple := llvm.DefaultTargetTriple()
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return llvm.TargetMachine{}, err
	}
	nativeTM = target.CreateTargetMachine(triple, "generic", "",
		llvm.CodeGenLevelDefault, llvm.RelocPIC, llvm.CodeModelDefault)
	nativeTMReady = true
	return nativeTM, nil
}

// optimizeModuleForCodeGen runs the whole-module pipeline matching -O.
func optimizeModuleForCodeGen(m llvm.Module, tm llvm.TargetMachine) {
	if optLevel == 0 {
		return
	}
	pbo := llvm.NewPassBuilderOptions()
	defer pbo.Dispose()
	pipeline := fmt.Sprintf("default<O%d>", optLevel)
	if err := m.RunPasses(pipeline, tm, pbo); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: optimization pipeline failed: %v\n", err)
	}
}

func compileDefinition() {
	fn := ParseDefinition()
	if fn == nil {
		getNextToken()
		return
	}
	ir := fn.codegen()
	if !ir.IsNil() && verboseMode {
		dumpValue("Read function definition", ir)
	}
}

func compileExtern() {
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

// compileTopLevelStmt type-checks a top-level statement, then drops the
// anonymous wrapper: a linked program only runs code reachable from main.
func compileTopLevelStmt() {
	fn := ParseTopLevelStmt()
	if fn == nil {
		getNextToken()
		return
	}
	ir := fn.codegen()
	if ir.IsNil() {
		return
	}
	ir.EraseFromParentAsFunction()
	delete(functionProtos, anonExprName)
}

// parseSourceFile consumes the whole input in compile mode, emitting every
// definition into the single output module.
func parseSourceFile() {
	for curTok != tokEOF && curTok != tokError && !hadError {
		switch curTok {
		case tokDef:
			compileDefinition()
		case tokExtern:
			compileExtern()
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
			compileTopLevelStmt()
		}
	}
}

// compileToObjectFile lowers filename to a native object at output. main is
// given the C signature so the result can link directly against libc.
func compileToObjectFile(filename, output string) bool {
	hadError = false
	useCMainSignature = true
	if err := initNativeTarget(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}
	tm, err := getNativeTargetMachine()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return false
	}

	initCodegen()
	newModule(filepath.Base(filename))
	mod.SetTarget(llvm.DefaultTargetTriple())
	td := tm.CreateTargetData()
	mod.SetDataLayout(td.String())
	emitRuntimeDefinitions(mod)

	if emitDebugInfo {
		debugInit(filename)
	}

	f, err := os.Open(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Could not open file %s\n", filename)
		return false
	}
	InitLexer(bufio.NewReader(f))
	getNextToken()
	parseSourceFile()
	f.Close()

	if emitDebugInfo {
		debugFinalize()
	}
	if hadError || curTok == tokError {
		return false
	}

	optimizeModuleForCodeGen(mod, tm)

	buf, err := tm.EmitToMemoryBuffer(mod, llvm.ObjectFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not emit object code: %v\n", err)
		return false
	}
	defer buf.Dispose()

	if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Could not open file: %v\n", err)
		return false
	}
	return true
}

func elfDynamicLinker() string {
	switch runtime.GOARCH {
	case "arm64":
		return "/lib/ld-linux-aarch64.so.1"
	default:
		return "/lib64/ld-linux-x86-64.so.2"
	}
}

// linkExecutable invokes the platform lld flavor on the object file.
func linkExecutable(objFile, exeFile string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		arch := runtime.GOARCH
		if arch == "amd64" {
			arch = "x86_64"
		}
		minVer := os.Getenv("MACOSX_DEPLOYMENT_TARGET")
		if minVer == "" {
			minVer = "11.0"
		}
		sdkRoot := os.Getenv("SDKROOT")
		if sdkRoot == "" {
			sdkRoot = "/Library/Developer/CommandLineTools/SDKs/MacOSX.sdk"
		}
		cmd = exec.Command("ld64.lld",
			"-o", exeFile,
			"-arch", arch,
			"-platform_version", "macos", minVer, minVer,
			"-syslibroot", sdkRoot,
			objFile,
			"-lSystem")
	case "windows":
		cmd = exec.Command("lld-link", "/out:"+exeFile, objFile, "/defaultlib:libcmt")
	default:
		cmd = exec.Command("ld.lld",
			"-o", exeFile,
			objFile,
			"-lc",
			"-dynamic-linker", elfDynamicLinker())
	}
	if verboseMode {
		fmt.Fprintf(os.Stderr, "Link command: %s\n", strings.Join(cmd.Args, " "))
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// getOutputFilename derives the output path: an explicit -o wins, otherwise
// the input basename with its extension swapped.
func getOutputFilename(input, ext string) string {
	if outputFilename != "" {
		return outputFilename
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	return base + ext
}
