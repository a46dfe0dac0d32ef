package main

import "tinygo.org/x/go-llvm"

// Expr is an expression node. codegen returns a nil llvm.Value on error
// (after reporting a diagnostic). The type-hint methods let consumers such
// as print lowering and GEP emission recover source-level type information
// that the opaque-pointer IR no longer carries; the base implementations
// return empty values and each node overrides what it knows.
type Expr interface {
	Pos() SourceLoc
	codegen() llvm.Value
	valueTypeHint() llvm.Type
	pointeeTypeHint() llvm.Type
	leafTypeHint() string
	pointeeLeafTypeHint() string
}

// lvalue is implemented by expressions that can produce the address of a
// storage location (variable references, index and member expressions).
type lvalue interface {
	Expr
	codegenAddress() llvm.Value
}

type exprBase struct {
	Loc SourceLoc
}

func (b exprBase) Pos() SourceLoc             { return b.Loc }
func (exprBase) valueTypeHint() llvm.Type     { return llvm.Type{} }
func (exprBase) pointeeTypeHint() llvm.Type   { return llvm.Type{} }
func (exprBase) leafTypeHint() string         { return "" }
func (exprBase) pointeeLeafTypeHint() string  { return "" }

// NumberExpr is a numeric literal. Integer-shaped literals keep both the
// float and the integer reading; promotion happens at the use site.
type NumberExpr struct {
	exprBase
	Val    float64
	IsInt  bool
	IntVal int64
}

type VariableExpr struct {
	exprBase
	Name string
}

// AddrExpr is addr(e): the address of an lvalue.
type AddrExpr struct {
	exprBase
	Operand Expr
}

// IndexExpr is base[index] over a pointer-typed base.
type IndexExpr struct {
	exprBase
	Base  Expr
	Index Expr
}

// MemberExpr is base.field over a struct-typed lvalue base.
type MemberExpr struct {
	exprBase
	Base  Expr
	Field string
}

type UnaryExpr struct {
	exprBase
	Op      int
	Operand Expr
}

type BinaryExpr struct {
	exprBase
	Op  int
	LHS Expr
	RHS Expr
}

type CallExpr struct {
	exprBase
	Callee string
	Args   []Expr
}

// VarInit is one binding of a var-in expression.
type VarInit struct {
	Name string
	Init Expr // nil means zero
}

// VarInExpr is `var a = e [, b = e] in body`: scoped local bindings.
type VarInExpr struct {
	exprBase
	Vars []VarInit
	Body Expr
}

// variableName reports the name when e is a bare variable reference.
func variableName(e Expr) (string, bool) {
	if v, ok := e.(*VariableExpr); ok {
		return v.Name, true
	}
	return "", false
}

// Stmt is a statement node. isTerminator reports whether the statement
// always ends the current basic block (return, break, continue).
type Stmt interface {
	Pos() SourceLoc
	codegen() llvm.Value
	isTerminator() bool
}

type stmtBase struct {
	Loc SourceLoc
}

func (b stmtBase) Pos() SourceLoc    { return b.Loc }
func (stmtBase) isTerminator() bool  { return false }

type ExprStmt struct {
	stmtBase
	X Expr
}

// DeclStmt is a typed declaration: name: T [= init].
type DeclStmt struct {
	stmtBase
	Name string
	Type *TypeExpr
	Init Expr // may be nil
}

type AssignStmt struct {
	stmtBase
	LHS Expr
	RHS Expr
}

type ReturnStmt struct {
	stmtBase
	Value Expr // nil for a bare return
}

func (ReturnStmt) isTerminator() bool { return true }

type PrintStmt struct {
	stmtBase
	Args []Expr
}

type BlockStmt struct {
	stmtBase
	Stmts []Stmt
}

// IfStmt covers if/elif/else; an elif chain is parsed as a nested IfStmt
// wrapped in the implicit else block.
type IfStmt struct {
	stmtBase
	Cond Expr
	Then *BlockStmt
	Else *BlockStmt // may be nil
}

// ForStmt is `for x in range(start, end[, step])`.
type ForStmt struct {
	stmtBase
	Var   string
	Start Expr
	End   Expr
	Step  Expr // nil means 1
	Body  *BlockStmt
}

type WhileStmt struct {
	stmtBase
	Cond Expr
	Body *BlockStmt
}

type DoWhileStmt struct {
	stmtBase
	Body *BlockStmt
	Cond Expr
}

type BreakStmt struct {
	stmtBase
}

func (BreakStmt) isTerminator() bool { return true }

type ContinueStmt struct {
	stmtBase
}

func (ContinueStmt) isTerminator() bool { return true }

// Prototype captures a function signature: name, parameter names and
// declared types, and the declared return type.
type Prototype struct {
	Name       string
	Params     []string
	ParamTypes []*TypeExpr
	RetType    *TypeExpr
	Loc        SourceLoc
}

// Function is a prototype plus its body suite.
type Function struct {
	Proto *Prototype
	Body  *BlockStmt
}
