package main

import (
	"tinygo.org/x/go-llvm"
)

// VarBinding is one entry of the per-function name table. The leaf-type
// hints keep the surface spelling (e.g. "u8") that the backend type loses.
type VarBinding struct {
	Alloca        llvm.Value
	Ty            llvm.Type
	PointeeTy     llvm.Type
	LeafTy        string
	PointeeLeafTy string
}

type loopContext struct {
	breakTarget    llvm.BasicBlock
	continueTarget llvm.BasicBlock
}

var (
	llvmCtx llvm.Context
	mod     llvm.Module
	builder llvm.Builder

	namedValues    map[string]VarBinding
	functionProtos map[string]*Prototype
	loopContexts   []loopContext

	// main is lowered with an i32 return when building an executable.
	useCMainSignature bool
)

// initCodegen creates the process-wide context and builder and resets the
// semantic registries. Drivers call newModule for each fresh module.
func initCodegen() {
	llvmCtx = llvm.NewContext()
	builder = llvmCtx.NewBuilder()
	namedValues = map[string]VarBinding{}
	functionProtos = map[string]*Prototype{}
	loopContexts = nil
	initTypeRegistries()
}

func newModule(name string) {
	mod = llvmCtx.NewModule(name)
}

func isFloatType(t llvm.Type) bool {
	k := t.TypeKind()
	return k == llvm.FloatTypeKind || k == llvm.DoubleTypeKind
}

func isIntType(t llvm.Type) bool {
	return t.TypeKind() == llvm.IntegerTypeKind
}

// blockTerminated reports whether bb already ends in a terminator.
func blockTerminated(bb llvm.BasicBlock) bool {
	last := bb.LastInstruction()
	if last.IsNil() {
		return false
	}
	switch last.InstructionOpcode() {
	case llvm.Ret, llvm.Br, llvm.Switch, llvm.IndirectBr, llvm.Invoke, llvm.Unreachable:
		return true
	}
	return false
}

// createEntryBlockAlloca emits an alloca at the top of the function's entry
// block, so every mutable slot is visible to mem2reg.
func createEntryBlockAlloca(fn llvm.Value, name string, ty llvm.Type) llvm.Value {
	tmp := llvmCtx.NewBuilder()
	defer tmp.Dispose()
	entry := fn.EntryBasicBlock()
	if first := entry.FirstInstruction(); first.IsNil() {
		tmp.SetInsertPointAtEnd(entry)
	} else {
		tmp.SetInsertPointBefore(first)
	}
	return tmp.CreateAlloca(ty, name)
}

// castValueTo converts v to dstTy, choosing the conversion from the source
// and destination kinds. Integer casts are signed.
func castValueTo(v llvm.Value, dstTy llvm.Type, loc SourceLoc) llvm.Value {
	if v.IsNil() || dstTy.IsNil() {
		return llvm.Value{}
	}
	srcTy := v.Type()
	if srcTy == dstTy {
		return v
	}
	srcFP, dstFP := isFloatType(srcTy), isFloatType(dstTy)
	srcInt, dstInt := isIntType(srcTy), isIntType(dstTy)
	srcPtr := srcTy.TypeKind() == llvm.PointerTypeKind
	dstPtr := dstTy.TypeKind() == llvm.PointerTypeKind
	switch {
	case srcFP && dstFP:
		return builder.CreateFPCast(v, dstTy, "castfp")
	case srcFP && dstInt:
		return builder.CreateFPToSI(v, dstTy, "castfptosi")
	case srcInt && dstFP:
		return builder.CreateSIToFP(v, dstTy, "castsitofp")
	case srcInt && dstInt:
		return builder.CreateIntCast(v, dstTy, "castint")
	case srcPtr && dstPtr:
		return builder.CreatePointerCast(v, dstTy, "castptr")
	case srcPtr && dstInt:
		return builder.CreatePtrToInt(v, dstTy, "castptrtoint")
	case srcInt && dstPtr:
		return builder.CreateIntToPtr(v, dstTy, "castinttoptr")
	}
	logErrorAt(loc, "Unsupported type conversion")
	return llvm.Value{}
}

// toBoolI1 reduces a numeric or pointer value to an i1 by comparing against
// zero/null. Float compares are ordered.
func toBoolI1(v llvm.Value, name string, loc SourceLoc) llvm.Value {
	if v.IsNil() {
		return llvm.Value{}
	}
	ty := v.Type()
	if isIntType(ty) && ty.IntTypeWidth() == 1 {
		return v
	}
	if isFloatType(ty) {
		return builder.CreateFCmp(llvm.FloatONE, v, llvm.ConstFloat(ty, 0), name)
	}
	if isIntType(ty) {
		return builder.CreateICmp(llvm.IntNE, v, llvm.ConstInt(ty, 0, false), name)
	}
	if ty.TypeKind() == llvm.PointerTypeKind {
		return builder.CreateICmp(llvm.IntNE, v, llvm.ConstPointerNull(ty), name)
	}
	logErrorAt(loc, "Cannot convert value to boolean")
	return llvm.Value{}
}

// getFunction finds a callee in the current module, or re-emits a
// declaration from the prototype registry for cross-module lookups.
func getFunction(name string) llvm.Value {
	if f := mod.NamedFunction(name); !f.IsNil() {
		return f
	}
	if proto, ok := functionProtos[name]; ok {
		return proto.codegen()
	}
	return llvm.Value{}
}

func resolvePointeeType(t *TypeExpr) llvm.Type {
	elem := pointeeTypeExpr(t)
	if elem == nil {
		return llvm.Type{}
	}
	return resolveTypeExpr(elem, SourceLoc{})
}

func pointeeLeafTypeName(t *TypeExpr) string {
	return leafTypeName(pointeeTypeExpr(t))
}

// extAttrForTypeExpr returns "signext"/"zeroext" for narrow integer types
// (below 32 bits), or "" when no extension attribute applies.
func extAttrForTypeExpr(t *TypeExpr) string {
	ty := resolveTypeExpr(t, SourceLoc{})
	if ty.IsNil() || !isIntType(ty) || ty.IntTypeWidth() >= 32 {
		return ""
	}
	if isUnsignedLeaf(leafTypeName(t)) {
		return "zeroext"
	}
	return "signext"
}

func extAttribute(kind string) llvm.Attribute {
	return llvmCtx.CreateEnumAttribute(llvm.AttributeKindID(kind), 0)
}

func structInfoForType(ty llvm.Type) *StructDecl {
	if ty.IsNil() || ty.TypeKind() != llvm.StructTypeKind {
		return nil
	}
	name, ok := structNameByType[ty]
	if !ok {
		return nil
	}
	return structDecls[name]
}

//
// Expression codegen
//

func (e *NumberExpr) codegen() llvm.Value {
	emitLocation(e.Loc)
	if e.IsInt {
		return llvm.ConstInt(llvmCtx.Int64Type(), uint64(e.IntVal), true)
	}
	return llvm.ConstFloat(llvmCtx.DoubleType(), e.Val)
}

func (e *VariableExpr) codegen() llvm.Value {
	b, ok := namedValues[e.Name]
	if !ok || b.Alloca.IsNil() {
		logErrorExpr(e.Loc, "Unknown variable name %s", e.Name)
		return llvm.Value{}
	}
	emitLocation(e.Loc)
	return builder.CreateLoad(b.Ty, b.Alloca, e.Name)
}

func (e *VariableExpr) codegenAddress() llvm.Value {
	b, ok := namedValues[e.Name]
	if !ok || b.Alloca.IsNil() {
		logErrorExpr(e.Loc, "Unknown variable name %s", e.Name)
		return llvm.Value{}
	}
	emitLocation(e.Loc)
	return b.Alloca
}

func (e *VariableExpr) valueTypeHint() llvm.Type   { return namedValues[e.Name].Ty }
func (e *VariableExpr) pointeeTypeHint() llvm.Type { return namedValues[e.Name].PointeeTy }
func (e *VariableExpr) leafTypeHint() string       { return namedValues[e.Name].LeafTy }
func (e *VariableExpr) pointeeLeafTypeHint() string {
	return namedValues[e.Name].PointeeLeafTy
}

func (e *AddrExpr) codegen() llvm.Value {
	emitLocation(e.Loc)
	lv, ok := e.Operand.(lvalue)
	if !ok {
		logErrorExpr(e.Loc, "addr() requires an addressable expression")
		return llvm.Value{}
	}
	return lv.codegenAddress()
}

func (e *AddrExpr) valueTypeHint() llvm.Type {
	return llvm.PointerType(llvmCtx.Int8Type(), 0)
}
func (e *AddrExpr) pointeeTypeHint() llvm.Type  { return e.Operand.valueTypeHint() }
func (e *AddrExpr) pointeeLeafTypeHint() string { return e.Operand.leafTypeHint() }

func (e *IndexExpr) codegenAddress() llvm.Value {
	emitLocation(e.Loc)
	baseV := e.Base.codegen()
	if baseV.IsNil() {
		return llvm.Value{}
	}
	if baseV.Type().TypeKind() != llvm.PointerTypeKind {
		logErrorExpr(e.Loc, "Indexing requires a pointer base")
		return llvm.Value{}
	}
	elemTy := e.Base.pointeeTypeHint()
	if elemTy.IsNil() {
		logErrorExpr(e.Loc, "Cannot determine pointee type for indexing")
		return llvm.Value{}
	}
	if elemTy.TypeKind() == llvm.VoidTypeKind {
		logErrorExpr(e.Loc, "Cannot index through ptr[void]")
		return llvm.Value{}
	}

	idxV := e.Index.codegen()
	if idxV.IsNil() {
		return llvm.Value{}
	}
	if !isIntType(idxV.Type()) {
		logErrorExpr(e.Loc, "Pointer index must be an integer type")
		return llvm.Value{}
	}
	idxV = castValueTo(idxV, llvmCtx.Int64Type(), e.Loc)
	if idxV.IsNil() {
		return llvm.Value{}
	}
	return builder.CreateGEP(elemTy, baseV, []llvm.Value{idxV}, "idx.addr")
}

func (e *IndexExpr) codegen() llvm.Value {
	addrV := e.codegenAddress()
	if addrV.IsNil() {
		return llvm.Value{}
	}
	elemTy := e.valueTypeHint()
	if elemTy.IsNil() {
		logErrorExpr(e.Loc, "Cannot determine index result type")
		return llvm.Value{}
	}
	return builder.CreateLoad(elemTy, addrV, "idx.load")
}

func (e *IndexExpr) valueTypeHint() llvm.Type { return e.Base.pointeeTypeHint() }
func (e *IndexExpr) leafTypeHint() string     { return e.Base.pointeeLeafTypeHint() }

func (e *MemberExpr) codegenAddress() llvm.Value {
	emitLocation(e.Loc)
	baseLV, ok := e.Base.(lvalue)
	if !ok {
		logErrorExpr(e.Loc, "Member access requires an addressable base")
		return llvm.Value{}
	}
	baseAddr := baseLV.codegenAddress()
	if baseAddr.IsNil() {
		return llvm.Value{}
	}
	baseTy := e.Base.valueTypeHint()
	decl := structInfoForType(baseTy)
	if decl == nil {
		logErrorExpr(e.Loc, "Member access requires a struct-typed base")
		return llvm.Value{}
	}
	fieldIdx, ok := decl.FieldIndex[e.Field]
	if !ok {
		logErrorExpr(e.Loc, "Unknown field '%s' on struct '%s'", e.Field, decl.Name)
		return llvm.Value{}
	}
	return builder.CreateStructGEP(baseTy, baseAddr, fieldIdx, "field.addr")
}

func (e *MemberExpr) codegen() llvm.Value {
	addrV := e.codegenAddress()
	if addrV.IsNil() {
		return llvm.Value{}
	}
	fieldTy := e.valueTypeHint()
	if fieldTy.IsNil() {
		logErrorExpr(e.Loc, "Cannot determine member field type")
		return llvm.Value{}
	}
	return builder.CreateLoad(fieldTy, addrV, "field.load")
}

func (e *MemberExpr) memberField() *StructField {
	decl := structInfoForType(e.Base.valueTypeHint())
	if decl == nil {
		return nil
	}
	idx, ok := decl.FieldIndex[e.Field]
	if !ok {
		return nil
	}
	return &decl.Fields[idx]
}

func (e *MemberExpr) valueTypeHint() llvm.Type {
	f := e.memberField()
	if f == nil {
		return llvm.Type{}
	}
	return resolveTypeExpr(f.Type, e.Loc)
}

func (e *MemberExpr) leafTypeHint() string {
	f := e.memberField()
	if f == nil {
		return ""
	}
	return leafTypeName(f.Type)
}

func (e *MemberExpr) pointeeTypeHint() llvm.Type {
	f := e.memberField()
	if f == nil {
		return llvm.Type{}
	}
	return resolvePointeeType(f.Type)
}

func (e *MemberExpr) pointeeLeafTypeHint() string {
	f := e.memberField()
	if f == nil {
		return ""
	}
	return pointeeLeafTypeName(f.Type)
}

func (e *UnaryExpr) codegen() llvm.Value {
	operandV := e.Operand.codegen()
	if operandV.IsNil() {
		return llvm.Value{}
	}
	emitLocation(e.Loc)
	switch e.Op {
	case '+':
		return operandV
	case '-':
		if isFloatType(operandV.Type()) {
			return builder.CreateFNeg(operandV, "negtmp")
		}
		if isIntType(operandV.Type()) {
			return builder.CreateNeg(operandV, "negtmp")
		}
		logErrorExpr(e.Loc, "Unary '-' requires numeric operand")
		return llvm.Value{}
	case '!', tokNot:
		asBool := toBoolI1(operandV, "nottmp.bool", e.Loc)
		if asBool.IsNil() {
			return llvm.Value{}
		}
		negBool := builder.CreateNot(asBool, "nottmp.inv")
		return builder.CreateUIToFP(negBool, llvmCtx.DoubleType(), "nottmp")
	case '~':
		if !isIntType(operandV.Type()) {
			logErrorExpr(e.Loc, "Unary '~' requires integer operand")
			return llvm.Value{}
		}
		return builder.CreateNot(operandV, "bnottmp")
	}
	logErrorExpr(e.Loc, "Unknown unary operator")
	return llvm.Value{}
}

func (e *BinaryExpr) codegen() llvm.Value {
	emitLocation(e.Loc)
	l := e.LHS.codegen()
	if l.IsNil() {
		return llvm.Value{}
	}

	if e.Op == tokAnd || e.Op == tokOr {
		return e.codegenShortCircuit(l)
	}

	r := e.RHS.codegen()
	if r.IsNil() {
		return llvm.Value{}
	}

	intOnly := e.Op == '%' || e.Op == '&' || e.Op == '^' || e.Op == '|'
	useFP := isFloatType(l.Type()) || isFloatType(r.Type())
	switch {
	case intOnly:
		if !isIntType(l.Type()) || !isIntType(r.Type()) {
			if e.Op == '%' {
				logErrorExpr(e.Loc, "Modulo operator '%%' requires integer operands")
			} else {
				logErrorExpr(e.Loc, "Bitwise operators require integer operands")
			}
			return llvm.Value{}
		}
		intTy := llvmCtx.IntType(max(l.Type().IntTypeWidth(), r.Type().IntTypeWidth()))
		l = castValueTo(l, intTy, e.Loc)
		r = castValueTo(r, intTy, e.Loc)
	case useFP:
		l = castValueTo(l, llvmCtx.DoubleType(), e.Loc)
		r = castValueTo(r, llvmCtx.DoubleType(), e.Loc)
	case isIntType(l.Type()) && isIntType(r.Type()):
		intTy := llvmCtx.IntType(max(l.Type().IntTypeWidth(), r.Type().IntTypeWidth()))
		l = castValueTo(l, intTy, e.Loc)
		r = castValueTo(r, intTy, e.Loc)
	default:
		logErrorExpr(e.Loc, "Unsupported operand types")
		return llvm.Value{}
	}
	if l.IsNil() || r.IsNil() {
		return llvm.Value{}
	}

	switch e.Op {
	case '+':
		if useFP {
			return builder.CreateFAdd(l, r, "addtmp")
		}
		return builder.CreateAdd(l, r, "addtmp")
	case '-':
		if useFP {
			return builder.CreateFSub(l, r, "subtmp")
		}
		return builder.CreateSub(l, r, "subtmp")
	case '*':
		if useFP {
			return builder.CreateFMul(l, r, "multmp")
		}
		return builder.CreateMul(l, r, "multmp")
	case '/':
		if useFP {
			return builder.CreateFDiv(l, r, "divtmp")
		}
		return builder.CreateSDiv(l, r, "divtmp")
	case '%':
		return builder.CreateSRem(l, r, "modtmp")
	case '&':
		return builder.CreateAnd(l, r, "andtmp")
	case '^':
		return builder.CreateXor(l, r, "xortmp")
	case '|':
		return builder.CreateOr(l, r, "ortmp")
	case '<':
		return e.codegenCompare(l, r, useFP, llvm.FloatOLT, llvm.IntSLT)
	case '>':
		return e.codegenCompare(l, r, useFP, llvm.FloatOGT, llvm.IntSGT)
	case tokLe:
		return e.codegenCompare(l, r, useFP, llvm.FloatOLE, llvm.IntSLE)
	case tokGe:
		return e.codegenCompare(l, r, useFP, llvm.FloatOGE, llvm.IntSGE)
	case tokEq:
		return e.codegenCompare(l, r, useFP, llvm.FloatOEQ, llvm.IntEQ)
	case tokNe:
		return e.codegenCompare(l, r, useFP, llvm.FloatONE, llvm.IntNE)
	}
	logErrorExpr(e.Loc, "Unsupported binary operator")
	return llvm.Value{}
}

// codegenCompare emits the compare and widens the i1 result to f64 so that
// comparisons can participate in arithmetic.
func (e *BinaryExpr) codegenCompare(l, r llvm.Value, useFP bool, fp llvm.FloatPredicate, ip llvm.IntPredicate) llvm.Value {
	var cmp llvm.Value
	if useFP {
		cmp = builder.CreateFCmp(fp, l, r, "cmptmp")
	} else {
		cmp = builder.CreateICmp(ip, l, r, "cmptmp")
	}
	return builder.CreateUIToFP(cmp, llvmCtx.DoubleType(), "booltmp")
}

// codegenShortCircuit emits the conditional-branch form of and/or. The
// right operand only runs when it can affect the result; a phi over the two
// i1 edges is widened to f64.
func (e *BinaryExpr) codegenShortCircuit(l llvm.Value) llvm.Value {
	fn := builder.GetInsertBlock().Parent()
	lbool := toBoolI1(l, "logic.lbool", e.Loc)
	if lbool.IsNil() {
		return llvm.Value{}
	}

	lhsBB := builder.GetInsertBlock()
	rhsBB := llvm.AddBasicBlock(fn, "logic.rhs")
	mergeBB := llvm.AddBasicBlock(fn, "logic.cont")

	if e.Op == tokAnd {
		// false and X -> false (skip RHS), true and X -> evaluate RHS.
		builder.CreateCondBr(lbool, rhsBB, mergeBB)
	} else {
		// true or X -> true (skip RHS), false or X -> evaluate RHS.
		builder.CreateCondBr(lbool, mergeBB, rhsBB)
	}

	builder.SetInsertPointAtEnd(rhsBB)
	r := e.RHS.codegen()
	if r.IsNil() {
		return llvm.Value{}
	}
	rbool := toBoolI1(r, "logic.rbool", e.Loc)
	if rbool.IsNil() {
		return llvm.Value{}
	}
	builder.CreateBr(mergeBB)
	rhsEnd := builder.GetInsertBlock()

	builder.SetInsertPointAtEnd(mergeBB)
	phi := builder.CreatePHI(llvmCtx.Int1Type(), "logic.bool")
	skipVal := llvm.ConstInt(llvmCtx.Int1Type(), 0, false)
	if e.Op == tokOr {
		skipVal = llvm.ConstInt(llvmCtx.Int1Type(), 1, false)
	}
	phi.AddIncoming([]llvm.Value{skipVal, rbool}, []llvm.BasicBlock{lhsBB, rhsEnd})
	return builder.CreateUIToFP(phi, llvmCtx.DoubleType(), "logictmp")
}

func (e *CallExpr) codegen() llvm.Value {
	emitLocation(e.Loc)

	calleeF := getFunction(e.Callee)
	if calleeF.IsNil() {
		logErrorExpr(e.Loc, "Unknown function referenced")
		return llvm.Value{}
	}
	fnTy := calleeF.GlobalValueType()
	paramTypes := fnTy.ParamTypes()
	if len(paramTypes) != len(e.Args) {
		logErrorExpr(e.Loc, "Incorrect # arguments passed")
		return llvm.Value{}
	}

	args := make([]llvm.Value, 0, len(e.Args))
	for i, arg := range e.Args {
		argV := arg.codegen()
		if argV.IsNil() {
			return llvm.Value{}
		}
		argV = castValueTo(argV, paramTypes[i], e.Loc)
		if argV.IsNil() {
			return llvm.Value{}
		}
		args = append(args, argV)
	}

	if fnTy.ReturnType().TypeKind() == llvm.VoidTypeKind {
		builder.CreateCall(fnTy, calleeF, args, "")
		return llvm.ConstFloat(llvmCtx.DoubleType(), 0)
	}
	return builder.CreateCall(fnTy, calleeF, args, "calltmp")
}

func (e *VarInExpr) codegen() llvm.Value {
	fn := builder.GetInsertBlock().Parent()

	type saved struct {
		binding VarBinding
		present bool
	}
	oldBindings := make([]saved, 0, len(e.Vars))
	// Unwind in reverse so duplicate names restore the outermost binding,
	// on error paths as well as on success.
	defer func() {
		for i := len(oldBindings) - 1; i >= 0; i-- {
			if oldBindings[i].present {
				namedValues[e.Vars[i].Name] = oldBindings[i].binding
			} else {
				delete(namedValues, e.Vars[i].Name)
			}
		}
	}()

	// Initializers run in the outer scope, so `var a = a in ...` refers to
	// the enclosing a.
	for _, v := range e.Vars {
		var initVal llvm.Value
		if v.Init != nil {
			initVal = v.Init.codegen()
			if initVal.IsNil() {
				return llvm.Value{}
			}
		} else {
			initVal = llvm.ConstFloat(llvmCtx.DoubleType(), 0)
		}

		alloca := createEntryBlockAlloca(fn, v.Name, initVal.Type())
		builder.CreateStore(initVal, alloca)

		old, present := namedValues[v.Name]
		oldBindings = append(oldBindings, saved{old, present})
		namedValues[v.Name] = VarBinding{Alloca: alloca, Ty: initVal.Type()}
	}

	emitLocation(e.Loc)
	bodyVal := e.Body.codegen()
	if bodyVal.IsNil() {
		return llvm.Value{}
	}
	return bodyVal
}

//
// Statement codegen
//

func (s *ExprStmt) codegen() llvm.Value {
	return s.X.codegen()
}

func (s *DeclStmt) codegen() llvm.Value {
	fn := builder.GetInsertBlock().Parent()
	declTy := resolveTypeExpr(s.Type, s.Loc)
	if declTy.IsNil() {
		return llvm.Value{}
	}
	if declTy.TypeKind() == llvm.VoidTypeKind {
		logErrorExpr(s.Loc, "Variables cannot have type void")
		return llvm.Value{}
	}

	alloca := createEntryBlockAlloca(fn, s.Name, declTy)
	var initVal llvm.Value
	if s.Init != nil {
		if declTy.TypeKind() == llvm.StructTypeKind {
			logErrorExpr(s.Loc, "Struct variables do not support direct initializer expressions")
			return llvm.Value{}
		}
		initVal = s.Init.codegen()
		if initVal.IsNil() {
			return llvm.Value{}
		}
		initVal = castValueTo(initVal, declTy, s.Loc)
		if initVal.IsNil() {
			return llvm.Value{}
		}
	} else {
		initVal = llvm.ConstNull(declTy)
	}
	builder.CreateStore(initVal, alloca)
	namedValues[s.Name] = VarBinding{
		Alloca:        alloca,
		Ty:            declTy,
		PointeeTy:     resolvePointeeType(s.Type),
		LeafTy:        leafTypeName(s.Type),
		PointeeLeafTy: pointeeLeafTypeName(s.Type),
	}
	return initVal
}

func (s *AssignStmt) codegen() llvm.Value {
	lv, ok := s.LHS.(lvalue)
	if !ok {
		logErrorExpr(s.Loc, "Assignment destination must be an lvalue")
		return llvm.Value{}
	}
	addrV := lv.codegenAddress()
	if addrV.IsNil() {
		return llvm.Value{}
	}
	elemTy := s.LHS.valueTypeHint()
	if elemTy.IsNil() {
		logErrorExpr(s.Loc, "Cannot determine assignment destination type")
		return llvm.Value{}
	}
	rhsV := s.RHS.codegen()
	if rhsV.IsNil() {
		return llvm.Value{}
	}
	rhsV = castValueTo(rhsV, elemTy, s.Loc)
	if rhsV.IsNil() {
		return llvm.Value{}
	}
	builder.CreateStore(rhsV, addrV)
	return rhsV
}

func (s *ReturnStmt) codegen() llvm.Value {
	fn := builder.GetInsertBlock().Parent()
	expectedTy := fn.GlobalValueType().ReturnType()
	if s.Value == nil {
		if expectedTy.TypeKind() == llvm.VoidTypeKind {
			builder.CreateRetVoid()
			return llvm.ConstFloat(llvmCtx.DoubleType(), 0)
		}
		logErrorExpr(s.Loc, "Missing return value for non-void function")
		return llvm.Value{}
	}

	retVal := s.Value.codegen()
	if retVal.IsNil() {
		return llvm.Value{}
	}
	if expectedTy.TypeKind() == llvm.VoidTypeKind {
		logErrorExpr(s.Loc, "Void function cannot return a value")
		return llvm.Value{}
	}
	retVal = castValueTo(retVal, expectedTy, s.Loc)
	if retVal.IsNil() {
		return llvm.Value{}
	}
	builder.CreateRet(retVal)
	return retVal
}

func (s *PrintStmt) codegen() llvm.Value {
	emitLocation(s.Loc)

	printCharF := getPrintCharHelper()
	for i, arg := range s.Args {
		argV := arg.codegen()
		if argV.IsNil() {
			return llvm.Value{}
		}
		argTy := argV.Type()
		if argTy.TypeKind() == llvm.PointerTypeKind {
			logErrorExpr(arg.Pos(), "Unsupported print argument type: pointer")
			return llvm.Value{}
		}
		printF := getPrintHelperForArg(argTy, arg.leafTypeHint())
		if printF.IsNil() {
			logErrorExpr(arg.Pos(), "Unsupported print argument type")
			return llvm.Value{}
		}
		printFnTy := printF.GlobalValueType()
		castArg := castValueTo(argV, printFnTy.ParamTypes()[0], arg.Pos())
		if castArg.IsNil() {
			return llvm.Value{}
		}
		builder.CreateCall(printFnTy, printF, []llvm.Value{castArg}, "")

		if i+1 < len(s.Args) {
			space := llvm.ConstFloat(llvmCtx.DoubleType(), 32.0)
			builder.CreateCall(printCharF.GlobalValueType(), printCharF, []llvm.Value{space}, "")
		}
	}

	newline := llvm.ConstFloat(llvmCtx.DoubleType(), 10.0)
	builder.CreateCall(printCharF.GlobalValueType(), printCharF, []llvm.Value{newline}, "")
	return llvm.ConstFloat(llvmCtx.DoubleType(), 0)
}

func (s *IfStmt) codegen() llvm.Value {
	emitLocation(s.Loc)

	condV := s.Cond.codegen()
	if condV.IsNil() {
		return llvm.Value{}
	}
	condV = toBoolI1(condV, "ifcond", s.Loc)
	if condV.IsNil() {
		return llvm.Value{}
	}

	fn := builder.GetInsertBlock().Parent()
	thenBB := llvm.AddBasicBlock(fn, "then")
	elseBB := llvm.AddBasicBlock(fn, "else")
	mergeBB := llvm.AddBasicBlock(fn, "ifcont")

	builder.CreateCondBr(condV, thenBB, elseBB)

	builder.SetInsertPointAtEnd(thenBB)
	thenV := s.Then.codegen()
	if thenV.IsNil() {
		return llvm.Value{}
	}
	thenTerminated := blockTerminated(builder.GetInsertBlock())
	if !thenTerminated {
		builder.CreateBr(mergeBB)
	}
	thenEnd := builder.GetInsertBlock()

	builder.SetInsertPointAtEnd(elseBB)
	var elseV llvm.Value
	elseTerminated := false
	if s.Else != nil {
		elseV = s.Else.codegen()
		if elseV.IsNil() {
			return llvm.Value{}
		}
		elseTerminated = blockTerminated(builder.GetInsertBlock())
	} else {
		elseV = llvm.ConstFloat(llvmCtx.DoubleType(), 0)
	}
	if !elseTerminated {
		builder.CreateBr(mergeBB)
	}
	elseEnd := builder.GetInsertBlock()

	// Both sides already returned: there is no reachable continuation, so
	// drop the merge block entirely and keep generating into a dead block.
	if thenTerminated && elseTerminated {
		mergeBB.EraseFromParent()
		deadBB := llvm.AddBasicBlock(fn, "ifcont.dead")
		builder.SetInsertPointAtEnd(deadBB)
		return llvm.ConstFloat(llvmCtx.DoubleType(), 0)
	}

	builder.SetInsertPointAtEnd(mergeBB)
	if !thenTerminated && !elseTerminated {
		phi := builder.CreatePHI(llvmCtx.DoubleType(), "iftmp")
		phi.AddIncoming([]llvm.Value{thenV, elseV}, []llvm.BasicBlock{thenEnd, elseEnd})
		return phi
	}
	if thenTerminated {
		return elseV
	}
	return thenV
}

func (s *BreakStmt) codegen() llvm.Value {
	if len(loopContexts) == 0 {
		logErrorExpr(s.Loc, "`break` used outside of a loop")
		return llvm.Value{}
	}
	emitLocation(s.Loc)
	builder.CreateBr(loopContexts[len(loopContexts)-1].breakTarget)
	return llvm.ConstNull(llvmCtx.DoubleType())
}

func (s *ContinueStmt) codegen() llvm.Value {
	if len(loopContexts) == 0 {
		logErrorExpr(s.Loc, "`continue` used outside of a loop")
		return llvm.Value{}
	}
	emitLocation(s.Loc)
	builder.CreateBr(loopContexts[len(loopContexts)-1].continueTarget)
	return llvm.ConstNull(llvmCtx.DoubleType())
}

func pushLoopContext(breakTarget, continueTarget llvm.BasicBlock) {
	loopContexts = append(loopContexts, loopContext{breakTarget, continueTarget})
}

func popLoopContext() {
	loopContexts = loopContexts[:len(loopContexts)-1]
}

func (s *WhileStmt) codegen() llvm.Value {
	emitLocation(s.Loc)
	fn := builder.GetInsertBlock().Parent()
	condBB := llvm.AddBasicBlock(fn, "while.cond")
	bodyBB := llvm.AddBasicBlock(fn, "while.body")
	exitBB := llvm.AddBasicBlock(fn, "while.exit")

	builder.CreateBr(condBB)
	builder.SetInsertPointAtEnd(condBB)
	condV := s.Cond.codegen()
	if condV.IsNil() {
		return llvm.Value{}
	}
	condV = toBoolI1(condV, "whilecond", s.Loc)
	if condV.IsNil() {
		return llvm.Value{}
	}
	builder.CreateCondBr(condV, bodyBB, exitBB)

	builder.SetInsertPointAtEnd(bodyBB)
	pushLoopContext(exitBB, condBB)
	bodyV := s.Body.codegen()
	popLoopContext()
	if bodyV.IsNil() {
		return llvm.Value{}
	}
	if !blockTerminated(builder.GetInsertBlock()) {
		builder.CreateBr(condBB)
	}

	builder.SetInsertPointAtEnd(exitBB)
	return llvm.ConstNull(llvmCtx.DoubleType())
}

func (s *DoWhileStmt) codegen() llvm.Value {
	emitLocation(s.Loc)
	fn := builder.GetInsertBlock().Parent()
	bodyBB := llvm.AddBasicBlock(fn, "do.body")
	condBB := llvm.AddBasicBlock(fn, "do.cond")
	exitBB := llvm.AddBasicBlock(fn, "do.exit")

	builder.CreateBr(bodyBB)
	builder.SetInsertPointAtEnd(bodyBB)
	pushLoopContext(exitBB, condBB)
	bodyV := s.Body.codegen()
	popLoopContext()
	if bodyV.IsNil() {
		return llvm.Value{}
	}
	if !blockTerminated(builder.GetInsertBlock()) {
		builder.CreateBr(condBB)
	}

	builder.SetInsertPointAtEnd(condBB)
	condV := s.Cond.codegen()
	if condV.IsNil() {
		return llvm.Value{}
	}
	condV = toBoolI1(condV, "docond", s.Loc)
	if condV.IsNil() {
		return llvm.Value{}
	}
	builder.CreateCondBr(condV, bodyBB, exitBB)

	builder.SetInsertPointAtEnd(exitBB)
	return llvm.ConstNull(llvmCtx.DoubleType())
}

func (s *ForStmt) codegen() llvm.Value {
	emitLocation(s.Loc)
	fn := builder.GetInsertBlock().Parent()

	// Emit the start value first, without the loop variable in scope.
	startVal := s.Start.codegen()
	if startVal.IsNil() {
		return llvm.Value{}
	}
	loopTy := startVal.Type()

	alloca := createEntryBlockAlloca(fn, s.Var, loopTy)
	builder.CreateStore(startVal, alloca)

	// Save any shadowed binding; restore it on every exit path, including
	// codegen errors in the body or step.
	oldBinding, hadOld := namedValues[s.Var]
	namedValues[s.Var] = VarBinding{Alloca: alloca, Ty: loopTy}
	defer func() {
		if hadOld {
			namedValues[s.Var] = oldBinding
		} else {
			delete(namedValues, s.Var)
		}
	}()

	condBB := llvm.AddBasicBlock(fn, "loopcond")
	loopBB := llvm.AddBasicBlock(fn, "loop")
	stepBB := llvm.AddBasicBlock(fn, "loopstep")
	endBB := llvm.AddBasicBlock(fn, "endloop")

	builder.CreateBr(condBB)
	builder.SetInsertPointAtEnd(condBB)

	endCond := s.End.codegen()
	if endCond.IsNil() {
		return llvm.Value{}
	}
	curVar := builder.CreateLoad(loopTy, alloca, s.Var)

	if isFloatType(curVar.Type()) || isFloatType(endCond.Type()) {
		curVar = castValueTo(curVar, llvmCtx.DoubleType(), s.Loc)
		endCond = castValueTo(endCond, llvmCtx.DoubleType(), s.Loc)
		endCond = builder.CreateFCmp(llvm.FloatOLT, curVar, endCond, "loopcond")
	} else {
		intTy := llvmCtx.IntType(max(curVar.Type().IntTypeWidth(), endCond.Type().IntTypeWidth()))
		curVar = castValueTo(curVar, intTy, s.Loc)
		endCond = castValueTo(endCond, intTy, s.Loc)
		endCond = builder.CreateICmp(llvm.IntSLT, curVar, endCond, "loopcond")
	}
	builder.CreateCondBr(endCond, loopBB, endBB)

	builder.SetInsertPointAtEnd(loopBB)
	pushLoopContext(endBB, stepBB)
	bodyV := s.Body.codegen()
	popLoopContext()
	if bodyV.IsNil() {
		return llvm.Value{}
	}
	if !blockTerminated(builder.GetInsertBlock()) {
		builder.CreateBr(stepBB)
	}

	// The step lives in its own block so `continue` can branch to it.
	builder.SetInsertPointAtEnd(stepBB)
	var stepVal llvm.Value
	if s.Step != nil {
		stepVal = s.Step.codegen()
		if stepVal.IsNil() {
			return llvm.Value{}
		}
	} else if isFloatType(loopTy) {
		stepVal = llvm.ConstFloat(loopTy, 1.0)
	} else {
		stepVal = llvm.ConstInt(loopTy, 1, false)
	}
	stepVal = castValueTo(stepVal, loopTy, s.Loc)
	if stepVal.IsNil() {
		return llvm.Value{}
	}
	curVarStep := builder.CreateLoad(loopTy, alloca, s.Var)
	var nextVar llvm.Value
	if isFloatType(loopTy) {
		nextVar = builder.CreateFAdd(curVarStep, stepVal, "nextvar")
	} else {
		nextVar = builder.CreateAdd(curVarStep, stepVal, "nextvar")
	}
	builder.CreateStore(nextVar, alloca)
	builder.CreateBr(condBB)

	builder.SetInsertPointAtEnd(endBB)
	return llvm.ConstNull(llvmCtx.DoubleType())
}

func (s *BlockStmt) codegen() llvm.Value {
	var last llvm.Value
	for i, stmt := range s.Stmts {
		last = stmt.codegen()
		if last.IsNil() {
			return llvm.Value{}
		}
		// Stop generating after a terminator (e.g. return).
		if stmt.isTerminator() {
			if i+1 < len(s.Stmts) {
				logWarningAt(s.Stmts[i+1].Pos(), "unreachable code after terminator statement")
			}
			break
		}
	}
	return last
}

//
// Prototype and function codegen
//

func (p *Prototype) codegen() llvm.Value {
	retTy := resolveTypeExpr(p.RetType, p.Loc)
	if retTy.IsNil() {
		return llvm.Value{}
	}
	if useCMainSignature && p.Name == "main" {
		retTy = llvmCtx.Int32Type()
	}

	paramTypes := make([]llvm.Type, 0, len(p.ParamTypes))
	for _, argTy := range p.ParamTypes {
		ty := resolveTypeExpr(argTy, p.Loc)
		if ty.IsNil() || ty.TypeKind() == llvm.VoidTypeKind {
			logErrorAt(p.Loc, "Function parameter type cannot be void")
			return llvm.Value{}
		}
		paramTypes = append(paramTypes, ty)
	}
	fnTy := llvm.FunctionType(retTy, paramTypes, false)
	fn := llvm.AddFunction(mod, p.Name, fnTy)

	// Preserve C ABI sign/zero-extension intent for narrow integers.
	if kind := extAttrForTypeExpr(p.RetType); kind != "" {
		fn.AddAttributeAtIndex(0, extAttribute(kind))
	}
	for i, argTy := range p.ParamTypes {
		if kind := extAttrForTypeExpr(argTy); kind != "" {
			fn.AddAttributeAtIndex(i+1, extAttribute(kind))
		}
	}

	for i, param := range fn.Params() {
		param.SetName(p.Params[i])
	}
	return fn
}

func (f *Function) codegen() llvm.Value {
	p := f.Proto
	functionProtos[p.Name] = p
	fn := getFunction(p.Name)
	if fn.IsNil() {
		return llvm.Value{}
	}

	entry := llvm.AddBasicBlock(fn, "entry")
	builder.SetInsertPointAtEnd(entry)

	debugFunctionEntry(fn, p)

	namedValues = map[string]VarBinding{}
	loopContexts = nil
	for i, param := range fn.Params() {
		name := p.Params[i]
		alloca := createEntryBlockAlloca(fn, name, param.Type())
		debugParameterVariable(fn, p, name, i, alloca)
		builder.CreateStore(param, alloca)
		namedValues[name] = VarBinding{
			Alloca:        alloca,
			Ty:            param.Type(),
			PointeeTy:     resolvePointeeType(p.ParamTypes[i]),
			LeafTy:        leafTypeName(p.ParamTypes[i]),
			PointeeLeafTy: pointeeLeafTypeName(p.ParamTypes[i]),
		}
	}

	retVal := f.Body.codegen()
	if retVal.IsNil() {
		fn.EraseFromParentAsFunction()
		delete(functionProtos, p.Name)
		debugFunctionExit()
		return llvm.Value{}
	}

	// Finish off the function if the current block is still open.
	if !blockTerminated(builder.GetInsertBlock()) {
		fnRetTy := fn.GlobalValueType().ReturnType()
		if fnRetTy.TypeKind() == llvm.VoidTypeKind {
			builder.CreateRetVoid()
		} else {
			retVal = castValueTo(retVal, fnRetTy, f.Body.Pos())
			if retVal.IsNil() {
				fn.EraseFromParentAsFunction()
				delete(functionProtos, p.Name)
				debugFunctionExit()
				return llvm.Value{}
			}
			builder.CreateRet(retVal)
		}
	}

	debugFunctionExit()

	// Name-table hygiene: bindings never outlive the function.
	namedValues = map[string]VarBinding{}

	if err := llvm.VerifyFunction(fn, llvm.ReturnStatusAction); err != nil {
		logErrorAt(p.Loc, "Function verification failed for '%s'", p.Name)
		fn.EraseFromParentAsFunction()
		delete(functionProtos, p.Name)
		return llvm.Value{}
	}
	return fn
}
