package main

import (
	"fmt"

	"tinygo.org/x/go-llvm"
)

// The language runtime is a small family of print helpers, emitted as IR
// definitions rather than shipped as a precompiled object. Under the JIT the
// definitions go into a dedicated module added once at startup; when
// compiling to an object file they are emitted into the output module so the
// result links against nothing beyond libc.
//
// Every helper has the shape T name(T) and returns 0 so calls can be used
// where a value is expected. All output goes to fd 2.

// printHelperName maps a value type (plus the unsigned leaf hint) to the
// runtime helper that prints it, or "" when no helper fits.
func printHelperName(ty llvm.Type, leaf string) string {
	if isFloatType(ty) {
		if ty.TypeKind() == llvm.FloatTypeKind {
			return "printfloat32"
		}
		return "printfloat64"
	}
	if isIntType(ty) {
		width := ty.IntTypeWidth()
		switch width {
		case 8, 16, 32, 64:
			if isUnsignedLeaf(leaf) {
				return fmt.Sprintf("printu%d", width)
			}
			return fmt.Sprintf("printi%d", width)
		}
	}
	return ""
}

// getOrCreatePrintHelper returns a declaration of the helper in the current
// module, creating it (with the narrow-integer extension attributes the
// definitions carry) when absent.
func getOrCreatePrintHelper(name string, ty llvm.Type, unsigned bool) llvm.Value {
	if f := mod.NamedFunction(name); !f.IsNil() {
		return f
	}
	fnTy := llvm.FunctionType(ty, []llvm.Type{ty}, false)
	f := llvm.AddFunction(mod, name, fnTy)
	if isIntType(ty) && ty.IntTypeWidth() < 32 {
		kind := "signext"
		if unsigned {
			kind = "zeroext"
		}
		f.AddAttributeAtIndex(0, extAttribute(kind))
		f.AddAttributeAtIndex(1, extAttribute(kind))
	}
	return f
}

func getPrintCharHelper() llvm.Value {
	return getOrCreatePrintHelper("printchard", llvmCtx.DoubleType(), false)
}

func getPrintHelperForArg(ty llvm.Type, leaf string) llvm.Value {
	name := printHelperName(ty, leaf)
	if name == "" {
		return llvm.Value{}
	}
	return getOrCreatePrintHelper(name, ty, isUnsignedLeaf(leaf))
}

// emitRuntimeDefinitions fills m with the helper bodies. Numeric helpers
// format through dprintf; character helpers write a single byte.
func emitRuntimeDefinitions(m llvm.Module) {
	b := llvmCtx.NewBuilder()
	defer b.Dispose()

	i8 := llvmCtx.Int8Type()
	i16 := llvmCtx.Int16Type()
	i32 := llvmCtx.Int32Type()
	i64 := llvmCtx.Int64Type()
	f32 := llvmCtx.FloatType()
	f64 := llvmCtx.DoubleType()
	ptrTy := llvm.PointerType(i8, 0)

	// int dprintf(int fd, const char *fmt, ...)
	dprintfTy := llvm.FunctionType(i32, []llvm.Type{i32, ptrTy}, true)
	dprintfFn := llvm.AddFunction(m, "dprintf", dprintfTy)

	// ssize_t write(int fd, const void *buf, size_t n)
	writeTy := llvm.FunctionType(i64, []llvm.Type{i32, ptrTy, i64}, false)
	writeFn := llvm.AddFunction(m, "write", writeTy)

	fd := llvm.ConstInt(i32, 2, false)

	defineNumeric := func(name string, ty llvm.Type, format string, unsigned bool) {
		fnTy := llvm.FunctionType(ty, []llvm.Type{ty}, false)
		fn := llvm.AddFunction(m, name, fnTy)
		if isIntType(ty) && ty.IntTypeWidth() < 32 {
			kind := "signext"
			if unsigned {
				kind = "zeroext"
			}
			fn.AddAttributeAtIndex(0, extAttribute(kind))
			fn.AddAttributeAtIndex(1, extAttribute(kind))
		}

		entry := llvm.AddBasicBlock(fn, "entry")
		b.SetInsertPointAtEnd(entry)
		fmtStr := b.CreateGlobalStringPtr(format, ".fmt."+name)

		arg := fn.Param(0)
		// Apply the default argument promotions dprintf expects.
		switch {
		case isIntType(ty) && ty.IntTypeWidth() < 32:
			if unsigned {
				arg = b.CreateZExt(arg, i32, "prom")
			} else {
				arg = b.CreateSExt(arg, i32, "prom")
			}
		case ty.TypeKind() == llvm.FloatTypeKind:
			arg = b.CreateFPExt(arg, f64, "prom")
		}
		b.CreateCall(dprintfTy, dprintfFn, []llvm.Value{fd, fmtStr, arg}, "")
		b.CreateRet(llvm.ConstNull(ty))
	}

	defineChar := func(name string, ty llvm.Type, unsigned bool) {
		fnTy := llvm.FunctionType(ty, []llvm.Type{ty}, false)
		fn := llvm.AddFunction(m, name, fnTy)
		if isIntType(ty) && ty.IntTypeWidth() < 32 {
			kind := "signext"
			if unsigned {
				kind = "zeroext"
			}
			fn.AddAttributeAtIndex(0, extAttribute(kind))
			fn.AddAttributeAtIndex(1, extAttribute(kind))
		}

		entry := llvm.AddBasicBlock(fn, "entry")
		b.SetInsertPointAtEnd(entry)
		buf := b.CreateAlloca(i8, "buf")
		arg := fn.Param(0)
		var byteVal llvm.Value
		if isFloatType(ty) {
			byteVal = b.CreateFPToUI(arg, i8, "byte")
		} else {
			byteVal = b.CreateIntCast(arg, i8, "byte")
		}
		b.CreateStore(byteVal, buf)
		one := llvm.ConstInt(i64, 1, false)
		b.CreateCall(writeTy, writeFn, []llvm.Value{fd, buf, one}, "")
		b.CreateRet(llvm.ConstNull(ty))
	}

	defineNumeric("printi8", i8, "%d", false)
	defineNumeric("printi16", i16, "%d", false)
	defineNumeric("printi32", i32, "%d", false)
	defineNumeric("printi64", i64, "%lld", false)
	defineNumeric("printu8", i8, "%u", true)
	defineNumeric("printu16", i16, "%u", true)
	defineNumeric("printu32", i32, "%u", true)
	defineNumeric("printu64", i64, "%llu", true)
	defineNumeric("printfloat32", f32, "%f", false)
	defineNumeric("printfloat64", f64, "%f", false)

	// Legacy extern names.
	defineNumeric("printi", i64, "%lld", false)
	defineNumeric("printd", f64, "%f", false)

	defineChar("printchard", f64, false)
	defineChar("putchard", f64, false)
	defineChar("putchari", i64, false)

	// Per-width byte-output variants exposed to extern def.
	defineChar("putchari8", i8, false)
	defineChar("putchari16", i16, false)
	defineChar("putchari32", i32, false)
	defineChar("putchari64", i64, false)
	defineChar("putcharu8", i8, true)
	defineChar("putcharu16", i16, true)
	defineChar("putcharu32", i32, true)
	defineChar("putcharu64", i64, true)
	defineChar("putcharf32", f32, false)
	defineChar("putcharf64", f64, false)
}
