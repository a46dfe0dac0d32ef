package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

// parserInit points the parser at src and loads the first token.
func parserInit(src string) {
	hadError = false
	initTypeRegistries()
	InitLexer(strings.NewReader(src))
	getNextToken()
}

func parseOneExpr(t *testing.T, src string) Expr {
	t.Helper()
	parserInit(src)
	e := ParseExpression()
	be.True(t, e != nil)
	return e
}

func TestParseNumber(t *testing.T) {
	e := parseOneExpr(t, "42")
	n, ok := e.(*NumberExpr)
	be.True(t, ok)
	be.True(t, n.IsInt)
	be.Equal(t, n.IntVal, int64(42))
}

func TestParseBinaryPrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3)
	e := parseOneExpr(t, "1 + 2 * 3")
	add, ok := e.(*BinaryExpr)
	be.True(t, ok)
	be.Equal(t, add.Op, int('+'))
	mul, ok := add.RHS.(*BinaryExpr)
	be.True(t, ok)
	be.Equal(t, mul.Op, int('*'))
}

func TestParseComparisonChain(t *testing.T) {
	// a < b == c parses as (a < b) == c: comparisons bind tighter.
	e := parseOneExpr(t, "a < b == c")
	eq, ok := e.(*BinaryExpr)
	be.True(t, ok)
	be.Equal(t, eq.Op, tokEq)
	lt, ok := eq.LHS.(*BinaryExpr)
	be.True(t, ok)
	be.Equal(t, lt.Op, int('<'))
}

func TestParseLogicalPrecedence(t *testing.T) {
	// a or b and c parses as a or (b and c)
	e := parseOneExpr(t, "a or b and c")
	or, ok := e.(*BinaryExpr)
	be.True(t, ok)
	be.Equal(t, or.Op, tokOr)
	and, ok := or.RHS.(*BinaryExpr)
	be.True(t, ok)
	be.Equal(t, and.Op, tokAnd)
}

func TestParseUnary(t *testing.T) {
	e := parseOneExpr(t, "not -x")
	outer, ok := e.(*UnaryExpr)
	be.True(t, ok)
	be.Equal(t, outer.Op, tokNot)
	inner, ok := outer.Operand.(*UnaryExpr)
	be.True(t, ok)
	be.Equal(t, inner.Op, int('-'))
}

func TestParseCall(t *testing.T) {
	e := parseOneExpr(t, "add(1, 2)")
	call, ok := e.(*CallExpr)
	be.True(t, ok)
	be.Equal(t, call.Callee, "add")
	be.Equal(t, len(call.Args), 2)
}

func TestParseCallOnNonNameRejected(t *testing.T) {
	parserInit("p.f(1)")
	e := ParseExpression()
	be.True(t, e == nil)
	be.True(t, hadError)
}

func TestParseAddrIndexMemberChain(t *testing.T) {
	e := parseOneExpr(t, "addr(p.next)[0].value")
	member, ok := e.(*MemberExpr)
	be.True(t, ok)
	be.Equal(t, member.Field, "value")
	index, ok := member.Base.(*IndexExpr)
	be.True(t, ok)
	addr, ok := index.Base.(*AddrExpr)
	be.True(t, ok)
	inner, ok := addr.Operand.(*MemberExpr)
	be.True(t, ok)
	be.Equal(t, inner.Field, "next")
}

func TestParseVarIn(t *testing.T) {
	e := parseOneExpr(t, "var a = 1, b in a + b")
	v, ok := e.(*VarInExpr)
	be.True(t, ok)
	be.Equal(t, len(v.Vars), 2)
	be.Equal(t, v.Vars[0].Name, "a")
	be.True(t, v.Vars[0].Init != nil)
	be.True(t, v.Vars[1].Init == nil)
}

func TestParseTypeExprPointer(t *testing.T) {
	parserInit("ptr[ptr[i32]]")
	ty := parseTypeExpr()
	be.True(t, ty != nil)
	be.Equal(t, ty.String(), "ptr[ptr[i32]]")
}

func TestParseDefinition(t *testing.T) {
	parserInit("def add(a: f64, b: f64) -> f64:\n    return a + b\n")
	fn := ParseDefinition()
	be.True(t, fn != nil)
	be.Equal(t, fn.Proto.Name, "add")
	be.Equal(t, fn.Proto.Params, []string{"a", "b"})
	be.Equal(t, fn.Proto.RetType.Name, "f64")
	be.Equal(t, len(fn.Body.Stmts), 1)
	_, ok := fn.Body.Stmts[0].(*ReturnStmt)
	be.True(t, ok)
}

func TestParseInlineSuiteDefinition(t *testing.T) {
	parserInit("def one() -> f64: return 1\n")
	fn := ParseDefinition()
	be.True(t, fn != nil)
	be.Equal(t, len(fn.Body.Stmts), 1)
}

func TestParseExtern(t *testing.T) {
	parserInit("extern def sin(x: f64) -> f64\n")
	proto := ParseExtern()
	be.True(t, proto != nil)
	be.Equal(t, proto.Name, "sin")
	be.Equal(t, len(proto.ParamTypes), 1)
}

func TestParseIfElifElse(t *testing.T) {
	src := "if a:\n    b\nelif c:\n    d\nelse:\n    e\n"
	parserInit(src)
	s := ParseStmt()
	be.True(t, s != nil)
	ifStmt, ok := s.(*IfStmt)
	be.True(t, ok)
	be.True(t, ifStmt.Else != nil)
	// elif becomes a nested if inside the implicit else block
	nested, ok := ifStmt.Else.Stmts[0].(*IfStmt)
	be.True(t, ok)
	be.True(t, nested.Else != nil)
}

func TestParseForRange(t *testing.T) {
	parserInit("for i in range(0, 10, 2):\n    print(i)\n")
	s := ParseStmt()
	be.True(t, s != nil)
	forStmt, ok := s.(*ForStmt)
	be.True(t, ok)
	be.Equal(t, forStmt.Var, "i")
	be.True(t, forStmt.Step != nil)
}

func TestParseForRangeWithoutStep(t *testing.T) {
	parserInit("for i in range(0, 10):\n    print(i)\n")
	forStmt, ok := ParseStmt().(*ForStmt)
	be.True(t, ok)
	be.True(t, forStmt.Step == nil)
}

func TestParseWhile(t *testing.T) {
	parserInit("while x < 10:\n    x = x + 1\n")
	_, ok := ParseStmt().(*WhileStmt)
	be.True(t, ok)
}

func TestParseDoWhile(t *testing.T) {
	parserInit("do:\n    x = x + 1\nwhile x < 10\n")
	s := ParseStmt()
	be.True(t, s != nil)
	_, ok := s.(*DoWhileStmt)
	be.True(t, ok)
}

func TestParseTypedDeclaration(t *testing.T) {
	parserInit("count: i64 = 5\n")
	s := ParseStmt()
	decl, ok := s.(*DeclStmt)
	be.True(t, ok)
	be.Equal(t, decl.Name, "count")
	be.Equal(t, decl.Type.Name, "i64")
	be.True(t, decl.Init != nil)
}

func TestParseTypedDeclarationRequiresBareName(t *testing.T) {
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	parserInit("p.x: i64 = 5\n")
	s := ParseStmt()
	be.True(t, s == nil)
	be.True(t, strings.Contains(buf.String(), "Typed declaration requires an identifier"))
}

func TestParseAssignment(t *testing.T) {
	parserInit("p.x = 5\n")
	s := ParseStmt()
	assign, ok := s.(*AssignStmt)
	be.True(t, ok)
	_, ok = assign.LHS.(*MemberExpr)
	be.True(t, ok)
}

func TestParseExpressionStatementContinuation(t *testing.T) {
	// An identifier-leading statement that is neither a declaration nor an
	// assignment continues as a plain expression.
	parserInit("x + 1\n")
	s := ParseStmt()
	es, ok := s.(*ExprStmt)
	be.True(t, ok)
	bin, ok := es.X.(*BinaryExpr)
	be.True(t, ok)
	be.Equal(t, bin.Op, int('+'))
}

func TestParseReturnBare(t *testing.T) {
	parserInit("return\n")
	ret, ok := ParseStmt().(*ReturnStmt)
	be.True(t, ok)
	be.True(t, ret.Value == nil)
}

func TestParsePrint(t *testing.T) {
	parserInit("print(1, 2, 3)\n")
	p, ok := ParseStmt().(*PrintStmt)
	be.True(t, ok)
	be.Equal(t, len(p.Args), 3)
}

func TestParsePrintTrailingComma(t *testing.T) {
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	parserInit("print(1, 2,)\n")
	s := ParseStmt()
	be.True(t, s == nil)
	be.True(t, strings.Contains(buf.String(), "Trailing comma is not allowed in print"))
}

func TestParseElifWithoutIf(t *testing.T) {
	parserInit("elif x:\n    y\n")
	be.True(t, ParseStmt() == nil)
	be.True(t, hadError)
}

func TestParseTypeAlias(t *testing.T) {
	parserInit("type byte = u8\n")
	be.True(t, parseTypeAliasDecl())
	alias, ok := typeAliases["byte"]
	be.True(t, ok)
	be.Equal(t, alias.Name, "u8")
}

func TestParseStructDecl(t *testing.T) {
	src := "struct Point:\n    x: f64\n    y: f64\n"
	parserInit(src)
	be.True(t, parseStructDecl())
	decl, ok := structDecls["Point"]
	be.True(t, ok)
	be.Equal(t, len(decl.Fields), 2)
	be.Equal(t, decl.FieldIndex["y"], 1)
}

func TestParseStructDuplicateField(t *testing.T) {
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	src := "struct Point:\n    x: f64\n    x: f64\n"
	parserInit(src)
	be.True(t, !parseStructDecl())
	be.True(t, strings.Contains(buf.String(), "Duplicate field 'x' in struct 'Point'"))
}

func TestParseStructWithoutFieldsRejected(t *testing.T) {
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	// A comment-only body lexes as no indent at all.
	src := "struct Empty:\n    # no fields\nx = 1\n"
	parserInit(src)
	be.True(t, !parseStructDecl())
	be.True(t, strings.Contains(buf.String(), "Expected indent for struct field list"))
}

func TestParseStructOnlyAtTopLevel(t *testing.T) {
	var buf bytes.Buffer
	old := diagOut
	diagOut = &buf
	defer func() { diagOut = old }()

	parserInit("struct P:\n    x: f64\n")
	s := ParseStmt()
	be.True(t, s == nil)
	be.True(t, strings.Contains(buf.String(), "Struct declarations are only allowed at top-level"))
}

func TestParseTopLevelStmtWrapsStatement(t *testing.T) {
	parserInit("print(add(2, 3))\n")
	fn := ParseTopLevelStmt()
	be.True(t, fn != nil)
	be.Equal(t, fn.Proto.Name, anonExprName)
	be.Equal(t, len(fn.Proto.Params), 0)
	be.Equal(t, fn.Proto.RetType.Name, "f64")
	_, ok := fn.Body.Stmts[0].(*PrintStmt)
	be.True(t, ok)
}

func TestParsePrototypeErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"def add(a f64) -> f64: return a\n", "Expected ':' after parameter name"},
		{"def add(a: f64) f64: return a\n", "Expected '->' in prototype"},
		{"def (a: f64) -> f64: return a\n", "Expected function name in prototype"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		old := diagOut
		diagOut = &buf

		parserInit(tt.src)
		fn := ParseDefinition()
		be.True(t, fn == nil)
		be.True(t, strings.Contains(buf.String(), tt.want))

		diagOut = old
	}
}
