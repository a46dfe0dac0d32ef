package main

import (
	"fmt"

	"tinygo.org/x/go-llvm"
)

type typeKind int

const (
	typeBuiltin typeKind = iota
	typeAlias
	typePointer
)

// TypeExpr is the surface spelling of a type: a builtin name, a reference
// into the alias/struct registries, or ptr[Elem].
type TypeExpr struct {
	Kind typeKind
	Name string    // builtin or alias/struct name
	Elem *TypeExpr // pointer element
}

func builtinType(name string) *TypeExpr { return &TypeExpr{Kind: typeBuiltin, Name: name} }
func aliasRef(name string) *TypeExpr    { return &TypeExpr{Kind: typeAlias, Name: name} }
func pointerTo(elem *TypeExpr) *TypeExpr {
	return &TypeExpr{Kind: typePointer, Elem: elem}
}

func (t *TypeExpr) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind == typePointer {
		return fmt.Sprintf("ptr[%s]", t.Elem)
	}
	return t.Name
}

var builtinTypeNames = map[string]bool{
	"void": true,
	"i8":   true, "i16": true, "i32": true, "i64": true,
	"u8": true, "u16": true, "u32": true, "u64": true,
	"f32": true, "f64": true,
}

func isBuiltinTypeName(name string) bool { return builtinTypeNames[name] }

// StructField is one named field of a struct declaration.
type StructField struct {
	Name string
	Type *TypeExpr
}

// StructDecl is a registered struct: ordered fields, a name→index map, and
// the backend handle once resolution has run.
type StructDecl struct {
	Name       string
	Fields     []StructField
	FieldIndex map[string]int
	Handle     llvm.Type // named struct; zero until first resolution
	resolved   bool
	resolving  bool
	Loc        SourceLoc
}

const hostPointerBits = 32 << (^uintptr(0) >> 63)

var (
	typeAliases      map[string]*TypeExpr
	structDecls      map[string]*StructDecl
	structNameByType map[llvm.Type]string
	aliasVisiting    map[string]bool
)

// initTypeRegistries resets the alias and struct registries and seeds the
// default aliases. long and size_t follow the host pointer width.
func initTypeRegistries() {
	typeAliases = map[string]*TypeExpr{
		"int":    builtinType("i32"),
		"char":   builtinType("i8"),
		"float":  builtinType("f32"),
		"double": builtinType("f64"),
	}
	if hostPointerBits == 64 {
		typeAliases["long"] = builtinType("i64")
		typeAliases["size_t"] = builtinType("u64")
	} else {
		typeAliases["long"] = builtinType("i32")
		typeAliases["size_t"] = builtinType("u32")
	}
	structDecls = map[string]*StructDecl{}
	structNameByType = map[llvm.Type]string{}
	aliasVisiting = map[string]bool{}
}

func resolveBuiltinType(name string, loc SourceLoc) llvm.Type {
	switch name {
	case "void":
		return llvmCtx.VoidType()
	case "i8", "u8":
		return llvmCtx.Int8Type()
	case "i16", "u16":
		return llvmCtx.Int16Type()
	case "i32", "u32":
		return llvmCtx.Int32Type()
	case "i64", "u64":
		return llvmCtx.Int64Type()
	case "f32":
		return llvmCtx.FloatType()
	case "f64":
		return llvmCtx.DoubleType()
	}
	logErrorAt(loc, "Unknown builtin type '%s'.", name)
	return llvm.Type{}
}

// resolveTypeExpr maps a TypeExpr to a backend type. All pointers share the
// opaque pointer representation; the element type is still resolved so that
// unknown names under ptr[...] are diagnosed, but it is not stored in the
// returned handle (GEPs recover it from expression hints).
func resolveTypeExpr(t *TypeExpr, loc SourceLoc) llvm.Type {
	if t == nil {
		return llvm.Type{}
	}
	switch t.Kind {
	case typeBuiltin:
		return resolveBuiltinType(t.Name, loc)
	case typePointer:
		if elem := resolveTypeExpr(t.Elem, loc); elem.IsNil() {
			return llvm.Type{}
		}
		return llvm.PointerType(llvmCtx.Int8Type(), 0)
	case typeAlias:
		if aliasVisiting[t.Name] {
			logErrorAt(loc, "Cyclic type alias '%s'.", t.Name)
			return llvm.Type{}
		}
		if target, ok := typeAliases[t.Name]; ok {
			aliasVisiting[t.Name] = true
			resolved := resolveTypeExpr(target, loc)
			delete(aliasVisiting, t.Name)
			return resolved
		}
		if sd, ok := structDecls[t.Name]; ok {
			return resolveStructType(sd, loc)
		}
		logErrorAt(loc, "Unknown type name '%s'.", t.Name)
		return llvm.Type{}
	}
	return llvm.Type{}
}

// resolveStructType resolves a struct in two phases: the named handle is
// created and registered before any field is resolved, so ptr[Self] and
// mutually recursive structs find it.
func resolveStructType(sd *StructDecl, loc SourceLoc) llvm.Type {
	if sd.resolved {
		return sd.Handle
	}
	if sd.resolving {
		return sd.Handle
	}
	sd.Handle = llvmCtx.StructCreateNamed("struct." + sd.Name)
	structNameByType[sd.Handle] = sd.Name
	sd.resolving = true
	fieldTypes := make([]llvm.Type, 0, len(sd.Fields))
	ok := true
	for _, f := range sd.Fields {
		ft := resolveTypeExpr(f.Type, loc)
		if ft.IsNil() {
			ok = false
			break
		}
		fieldTypes = append(fieldTypes, ft)
	}
	sd.resolving = false
	if !ok {
		delete(structNameByType, sd.Handle)
		sd.Handle = llvm.Type{}
		return llvm.Type{}
	}
	sd.Handle.StructSetBody(fieldTypes, false)
	sd.resolved = true
	return sd.Handle
}

// leafTypeName walks alias chains down to the builtin (or struct) name at
// the bottom. Pointers report "ptr". This is the signedness and print-helper
// selector that the backend type alone cannot provide.
func leafTypeName(t *TypeExpr) string {
	for t != nil {
		switch t.Kind {
		case typeBuiltin:
			return t.Name
		case typePointer:
			return "ptr"
		case typeAlias:
			if target, ok := typeAliases[t.Name]; ok {
				t = target
				continue
			}
			if _, ok := structDecls[t.Name]; ok {
				return t.Name
			}
			return ""
		}
	}
	return ""
}

// pointeeTypeExpr returns the element TypeExpr under a (possibly aliased)
// pointer type, or nil when t is not a pointer.
func pointeeTypeExpr(t *TypeExpr) *TypeExpr {
	for t != nil {
		switch t.Kind {
		case typePointer:
			return t.Elem
		case typeAlias:
			if target, ok := typeAliases[t.Name]; ok {
				t = target
				continue
			}
			return nil
		default:
			return nil
		}
	}
	return nil
}

func isUnsignedLeaf(leaf string) bool {
	switch leaf {
	case "u8", "u16", "u32", "u64":
		return true
	}
	return false
}
