package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"tinygo.org/x/go-llvm"
)

func codegenInit() {
	hadError = false
	useCMainSignature = false
	initCodegen()
	newModule("codegen_test")
}

// compileAll parses src and generates code for every top-level form into
// the current module. Any diagnostic fails the test.
func compileAll(t *testing.T, src string) {
	t.Helper()
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	InitLexer(strings.NewReader(src))
	getNextToken()
	for curTok != tokEOF && curTok != tokError {
		switch curTok {
		case tokEOL, tokDedent:
			getNextToken()
		case tokDef:
			fn := ParseDefinition()
			if fn == nil || fn.codegen().IsNil() {
				t.Fatalf("definition failed:\n%s", buf.String())
			}
		case tokExtern:
			proto := ParseExtern()
			if proto == nil || proto.codegen().IsNil() {
				t.Fatalf("extern failed:\n%s", buf.String())
			}
			functionProtos[proto.Name] = proto
		case tokType:
			if !parseTypeAliasDecl() {
				t.Fatalf("type alias failed:\n%s", buf.String())
			}
		case tokStruct:
			if !parseStructDecl() {
				t.Fatalf("struct failed:\n%s", buf.String())
			}
		default:
			fn := ParseTopLevelStmt()
			if fn == nil || fn.codegen().IsNil() {
				t.Fatalf("top-level statement failed:\n%s", buf.String())
			}
		}
	}
	if hadError {
		t.Fatalf("diagnostics:\n%s", buf.String())
	}
}

func findBlock(fn llvm.Value, name string) (llvm.BasicBlock, bool) {
	for _, bb := range fn.BasicBlocks() {
		if bb.AsValue().Name() == name {
			return bb, true
		}
	}
	return llvm.BasicBlock{}, false
}

func countOpcode(bb llvm.BasicBlock, op llvm.Opcode) int {
	n := 0
	for in := bb.FirstInstruction(); !in.IsNil(); in = llvm.NextInstruction(in) {
		if in.InstructionOpcode() == op {
			n++
		}
	}
	return n
}

func terminatorCount(bb llvm.BasicBlock) int {
	n := 0
	for in := bb.FirstInstruction(); !in.IsNil(); in = llvm.NextInstruction(in) {
		switch in.InstructionOpcode() {
		case llvm.Ret, llvm.Br, llvm.Switch, llvm.IndirectBr, llvm.Invoke, llvm.Unreachable:
			n++
		}
	}
	return n
}

func checkSingleTerminators(t *testing.T, fn llvm.Value) {
	t.Helper()
	if fn.BasicBlocksCount() == 0 {
		// go-llvm's BasicBlocks panics on declarations (zero blocks).
		return
	}
	for _, bb := range fn.BasicBlocks() {
		if got := terminatorCount(bb); got != 1 {
			t.Errorf("block %s has %d terminators, want 1", bb.AsValue().Name(), got)
		}
	}
}

// The right operand of and/or only runs on the branch where it can change
// the result, so its call must land in the logic.rhs block and nowhere
// else, with a phi joining the two edges.
func TestShortCircuitRHSIsConditional(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"and", "return a and side(b)"},
		{"or", "return a or side(b)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codegenInit()
			compileAll(t, ""+
				"extern def side(x: f64) -> f64\n"+
				"def f(a: f64, b: f64) -> f64:\n"+
				"    "+tt.body+"\n")

			fn := mod.NamedFunction("f")
			be.True(t, !fn.IsNil())

			rhs, ok := findBlock(fn, "logic.rhs")
			be.True(t, ok)
			cont, ok := findBlock(fn, "logic.cont")
			be.True(t, ok)

			be.True(t, countOpcode(rhs, llvm.Call) == 1)
			for _, bb := range fn.BasicBlocks() {
				if bb.AsValue().Name() != "logic.rhs" {
					be.Equal(t, countOpcode(bb, llvm.Call), 0)
				}
			}
			be.Equal(t, countOpcode(cont, llvm.PHI), 1)

			entry, ok := findBlock(fn, "entry")
			be.True(t, ok)
			be.Equal(t, entry.LastInstruction().InstructionOpcode(), llvm.Br)
			checkSingleTerminators(t, fn)
		})
	}
}

// When both branches of an if/else return, there is no reachable
// continuation: the merge block must be dropped instead of sitting in the
// function without a terminator.
func TestIfElseBothReturnDropsMergeBlock(t *testing.T) {
	codegenInit()
	compileAll(t, ""+
		"def pick(x: i32) -> i32:\n"+
		"    if x < 0:\n"+
		"        return -1\n"+
		"    else:\n"+
		"        return 1\n")

	fn := mod.NamedFunction("pick")
	be.True(t, !fn.IsNil())

	_, ok := findBlock(fn, "ifcont")
	be.True(t, !ok)
	_, ok = findBlock(fn, "ifcont.dead")
	be.True(t, ok)
	checkSingleTerminators(t, fn)
}

// An if without a terminating else keeps its merge block reachable.
func TestIfWithFallthroughKeepsMergeBlock(t *testing.T) {
	codegenInit()
	compileAll(t, ""+
		"def clamp0(x: i32) -> i32:\n"+
		"    if x < 0:\n"+
		"        return 0\n"+
		"    return x\n")

	fn := mod.NamedFunction("clamp0")
	be.True(t, !fn.IsNil())

	_, ok := findBlock(fn, "ifcont")
	be.True(t, ok)
	checkSingleTerminators(t, fn)
}

func TestForLoopBlockStructure(t *testing.T) {
	codegenInit()
	compileAll(t, ""+
		"def sum_to(n: i32) -> i32:\n"+
		"    s: i32 = 0\n"+
		"    for i in range(0, n):\n"+
		"        s = s + i\n"+
		"    return s\n")

	fn := mod.NamedFunction("sum_to")
	be.True(t, !fn.IsNil())
	for _, name := range []string{"loopcond", "loop", "loopstep", "endloop"} {
		_, ok := findBlock(fn, name)
		be.True(t, ok)
	}
	checkSingleTerminators(t, fn)
}

// testHostFunction opens a fresh f64 function body for statement-level
// codegen tests that drive AST nodes directly.
func testHostFunction(name string) llvm.Value {
	p := &Prototype{Name: name, RetType: builtinType("f64")}
	fn := p.codegen()
	entry := llvm.AddBasicBlock(fn, "entry")
	builder.SetInsertPointAtEnd(entry)
	return fn
}

func intLit(v int64) *NumberExpr {
	return &NumberExpr{Val: float64(v), IsInt: true, IntVal: v}
}

func TestForLoopRestoresShadowedBinding(t *testing.T) {
	codegenInit()
	fn := testHostFunction("host")

	outer := createEntryBlockAlloca(fn, "i", llvmCtx.DoubleType())
	namedValues["i"] = VarBinding{Alloca: outer, Ty: llvmCtx.DoubleType()}

	loop := &ForStmt{
		Var:   "i",
		Start: intLit(0),
		End:   intLit(10),
		Body:  &BlockStmt{Stmts: []Stmt{&ExprStmt{X: &VariableExpr{Name: "i"}}}},
	}
	be.True(t, !loop.codegen().IsNil())
	be.Equal(t, namedValues["i"].Alloca, outer)
}

func TestForLoopRestoresShadowedBindingOnBodyError(t *testing.T) {
	codegenInit()
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	fn := testHostFunction("host")
	outer := createEntryBlockAlloca(fn, "i", llvmCtx.DoubleType())
	namedValues["i"] = VarBinding{Alloca: outer, Ty: llvmCtx.DoubleType()}

	loop := &ForStmt{
		Var:   "i",
		Start: intLit(0),
		End:   intLit(10),
		Body:  &BlockStmt{Stmts: []Stmt{&ExprStmt{X: &VariableExpr{Name: "nope"}}}},
	}
	be.True(t, loop.codegen().IsNil())
	be.True(t, strings.Contains(buf.String(), "Unknown variable name nope"))
	be.Equal(t, namedValues["i"].Alloca, outer)
	hadError = false
}

func TestVarInRestoresBindings(t *testing.T) {
	codegenInit()
	fn := testHostFunction("host")

	outer := createEntryBlockAlloca(fn, "a", llvmCtx.DoubleType())
	namedValues["a"] = VarBinding{Alloca: outer, Ty: llvmCtx.DoubleType()}

	expr := &VarInExpr{
		Vars: []VarInit{{Name: "a", Init: &NumberExpr{Val: 1.0}}},
		Body: &VariableExpr{Name: "a"},
	}
	be.True(t, !expr.codegen().IsNil())
	be.Equal(t, namedValues["a"].Alloca, outer)
}

func TestVarInRestoresBindingsOnBodyError(t *testing.T) {
	codegenInit()
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	fn := testHostFunction("host")
	outer := createEntryBlockAlloca(fn, "a", llvmCtx.DoubleType())
	namedValues["a"] = VarBinding{Alloca: outer, Ty: llvmCtx.DoubleType()}

	expr := &VarInExpr{
		Vars: []VarInit{{Name: "a", Init: &NumberExpr{Val: 1.0}}},
		Body: &VariableExpr{Name: "nope"},
	}
	be.True(t, expr.codegen().IsNil())
	be.Equal(t, namedValues["a"].Alloca, outer)
	hadError = false
}

func TestNameTableEmptyAfterFunction(t *testing.T) {
	codegenInit()
	compileAll(t, ""+
		"def f(a: i32, b: i32) -> i32:\n"+
		"    c: i32 = a + b\n"+
		"    return c\n")
	be.Equal(t, len(namedValues), 0)
}

// Member access needs a struct-typed base; a ptr[Point] parameter is
// dereferenced explicitly as p[0].x.
func TestMemberAccessOnPointerBaseRejected(t *testing.T) {
	codegenInit()
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	InitLexer(strings.NewReader("" +
		"struct Point:\n" +
		"    x: f64\n" +
		"    y: f64\n" +
		"def getx(p: ptr[Point]) -> f64:\n" +
		"    return p.x\n"))
	getNextToken()
	be.True(t, parseStructDecl())
	for curTok == tokEOL || curTok == tokDedent {
		getNextToken()
	}
	fn := ParseDefinition()
	be.True(t, fn != nil)
	be.True(t, fn.codegen().IsNil())
	be.True(t, strings.Contains(buf.String(), "Member access requires a struct-typed base"))
	hadError = false
}

// End-to-end codegen over small programs: everything compiles and the
// whole module verifies.
func TestProgramsVerify(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			"function definition and call",
			"def add(a: i32, b: i32) -> i32:\n" +
				"    return a + b\n" +
				"print(add(2, 3))\n",
		},
		{
			"elif chain",
			"def sign(x: i32) -> i32:\n" +
				"    if x < 0:\n" +
				"        return -1\n" +
				"    elif x == 0:\n" +
				"        return 0\n" +
				"    else:\n" +
				"        return 1\n" +
				"print(sign(-5), sign(0), sign(7))\n",
		},
		{
			"loop with continue",
			"def sum_evens(n: i32) -> i32:\n" +
				"    s: i32 = 0\n" +
				"    for i in range(0, n):\n" +
				"        if i % 2 != 0:\n" +
				"            continue\n" +
				"        s = s + i\n" +
				"    return s\n" +
				"print(sum_evens(10))\n",
		},
		{
			"struct field access through pointer",
			"struct Point:\n" +
				"    x: f64\n" +
				"    y: f64\n" +
				"def dist2(p: ptr[Point]) -> f64:\n" +
				"    return p[0].x * p[0].x + p[0].y * p[0].y\n",
		},
		{
			"while and do-while",
			"def countdown(n: i32) -> i32:\n" +
				"    while n > 0:\n" +
				"        n = n - 1\n" +
				"    do:\n" +
				"        n = n + 1\n" +
				"    while n < 3\n" +
				"    return n\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codegenInit()
			compileAll(t, tt.src)
			be.Err(t, llvm.VerifyModule(mod, llvm.ReturnStatusAction), nil)
			for fn := mod.FirstFunction(); !fn.IsNil(); fn = llvm.NextFunction(fn) {
				checkSingleTerminators(t, fn)
			}
		})
	}
}
