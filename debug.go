package main

import (
	"path/filepath"

	"tinygo.org/x/go-llvm"
)

// Debug info is only emitted for object/executable builds (-g). The model
// is deliberately simple: every value is described as a 64-bit float, the
// way the surface language presents arithmetic.

var (
	emitDebugInfo bool

	diBuilder  *llvm.DIBuilder
	diFile     llvm.Metadata
	diDoubleTy llvm.Metadata
	diScopes   []llvm.Metadata
)

func debugInit(inputPath string) {
	diBuilder = llvm.NewDIBuilder(mod)

	abs, err := filepath.Abs(inputPath)
	if err != nil {
		abs = inputPath
	}
	dir := filepath.Dir(abs)
	name := filepath.Base(abs)

	addModuleFlag := func(flag string, value uint64) {
		mod.AddNamedMetadataOperand("llvm.module.flags",
			llvmCtx.MDNode([]llvm.Metadata{
				llvm.ConstInt(llvmCtx.Int32Type(), 2, false).ConstantAsMetadata(),
				llvmCtx.MDString(flag),
				llvm.ConstInt(llvmCtx.Int32Type(), value, false).ConstantAsMetadata(),
			}))
	}
	addModuleFlag("Dwarf Version", 4)
	addModuleFlag("Debug Info Version", 3)

	diBuilder.CreateCompileUnit(llvm.DICompileUnit{
		Language:  llvm.DwarfLang(0x0c), // DW_LANG_C99
		File:      name,
		Dir:       dir,
		Producer:  "pyxc",
		Optimized: optLevel > 0,
	})
	diFile = diBuilder.CreateFile(name, dir)
	diDoubleTy = diBuilder.CreateBasicType(llvm.DIBasicType{
		Name:       "double",
		SizeInBits: 64,
		Encoding:   llvm.DW_ATE_float,
	})
}

func debugFinalize() {
	if diBuilder == nil {
		return
	}
	diBuilder.Finalize()
	diBuilder.Destroy()
	diBuilder = nil
	diScopes = nil
}

func debugScope() llvm.Metadata {
	if len(diScopes) == 0 {
		return diFile
	}
	return diScopes[len(diScopes)-1]
}

// emitLocation attaches the source position to subsequently built
// instructions. A no-op unless -g is active.
func emitLocation(loc SourceLoc) {
	if diBuilder == nil {
		return
	}
	builder.SetCurrentDebugLocation(uint(loc.Line), uint(loc.Col), debugScope(), llvm.Metadata{})
}

func debugFunctionEntry(fn llvm.Value, p *Prototype) {
	if diBuilder == nil {
		return
	}

	paramTys := make([]llvm.Metadata, len(p.Params)+1)
	for i := range paramTys {
		paramTys[i] = diDoubleTy
	}
	subTy := diBuilder.CreateSubroutineType(llvm.DISubroutineType{
		File:       diFile,
		Parameters: paramTys,
	})
	sp := diBuilder.CreateFunction(diFile, llvm.DIFunction{
		Name:         p.Name,
		LinkageName:  p.Name,
		File:         diFile,
		Line:         p.Loc.Line,
		Type:         subTy,
		LocalToUnit:  false,
		IsDefinition: true,
		ScopeLine:    p.Loc.Line,
		Optimized:    optLevel > 0,
	})
	fn.SetSubprogram(sp)
	diScopes = append(diScopes, sp)

	// No location while emitting the prologue, so the debugger skips
	// straight to the first body statement.
	builder.SetCurrentDebugLocation(0, 0, llvm.Metadata{}, llvm.Metadata{})
}

func debugParameterVariable(fn llvm.Value, p *Prototype, name string, argIdx int, alloca llvm.Value) {
	if diBuilder == nil {
		return
	}
	sp := debugScope()
	paramVar := diBuilder.CreateParameterVariable(sp, llvm.DIParameterVariable{
		Name:           name,
		File:           diFile,
		Line:           p.Loc.Line,
		Type:           diDoubleTy,
		AlwaysPreserve: true,
		ArgNo:          argIdx + 1,
	})
	loc := llvm.DebugLoc{Line: uint(p.Loc.Line), Col: 0, Scope: sp}
	expr := diBuilder.CreateExpression(nil)
	diBuilder.InsertDeclareAtEnd(alloca, paramVar, expr, loc, builder.GetInsertBlock())
}

func debugFunctionExit() {
	if diBuilder == nil {
		return
	}
	diScopes = diScopes[:len(diScopes)-1]
}
