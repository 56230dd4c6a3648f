package generator

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ardanlabs/ffi-extract/decl"
	"github.com/ardanlabs/ffi-extract/ffirt"
	"github.com/ardanlabs/ffi-extract/layout"
)

var alignMarkers = map[int64]string{
	1: "uint8",
	2: "uint16",
	4: "uint32",
	8: "uint64",
}

func (g *Generator) generateScope(w *bytes.Buffer, s *decl.Scoped) {
	for _, m := range s.Members {
		if decl.IsSkipped(m) {
			continue
		}
		if v, ok := m.(*decl.Variable); ok && v.Field {
			continue
		}

		// One bad declaration only costs its own block.
		var block bytes.Buffer
		if err := g.generateDeclaration(&block, m); err != nil {
			g.logger.Warn("omitting declaration", zap.String("decl", decl.String(m)), zap.Error(err))
		} else {
			w.WriteString("\n")
			w.Write(block.Bytes())
		}

		if child, ok := m.(*decl.Scoped); ok && child.Kind != decl.Enum {
			g.generateScope(w, child)
		}
	}
}

func (g *Generator) generateDeclaration(w *bytes.Buffer, d decl.Declaration) error {
	switch d := d.(type) {
	case *decl.Scoped:
		switch d.Kind {
		case decl.Struct, decl.Union:
			return g.generateRecord(w, d)
		case decl.Enum:
			return g.generateEnum(w, d)
		}
		return nil
	case *decl.Function:
		return g.generateFunction(w, d)
	case *decl.Variable:
		return g.generateVariable(w, d)
	case *decl.Constant:
		return g.generateConstant(w, d)
	case *decl.Typedef:
		return g.generateTypedef(w, d)
	}
	panic(fmt.Sprintf("generator: unknown declaration %T", d))
}

// =============================================================================

func (g *Generator) generateRecord(w *bytes.Buffer, s *decl.Scoped) error {
	name := goName(s)
	spelling := s.Kind.String() + " " + s.Name
	if s.Name == "" {
		spelling = "an anonymous " + s.Kind.String()
	}

	if s.Incomplete {
		fmt.Fprintf(w, "// %s is the opaque %s.\n", name, spelling)
		fmt.Fprintf(w, "type %s struct{ _ [0]byte }\n", name)
		return nil
	}

	l, err := g.resolver.Aggregate(s)
	if err != nil {
		return err
	}
	fields := decl.Fields(s)

	fmt.Fprintf(w, "// %s is %s.\n", name, spelling)
	if s.Kind == decl.Union || s.Packed || hasFlexibleArray(l) {
		err = g.generateRawRecord(w, name, l, fields)
	} else {
		err = g.generateStruct(w, name, l, fields)
	}
	if err != nil {
		return err
	}

	ctor := "ffirt.Struct"
	if s.Kind == decl.Union {
		ctor = "ffirt.Union"
	}
	layoutName, _ := s.Attrs.Get(decl.LayoutName)

	fmt.Fprintf(w, "\nvar %s = %s(%q, %d, %d", layoutName, ctor, s.Name, l.Size, l.Align)
	if len(l.Fields) == 0 {
		fmt.Fprintf(w, ")\n")
		return nil
	}
	fmt.Fprintf(w, ",\n")
	for _, f := range l.Fields {
		expr, err := g.layoutExpr(f.Type)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\tffirt.Field(%q, %d, %s),\n", f.Name, f.Offset, expr)
	}
	fmt.Fprintf(w, ")\n")
	return nil
}

func hasFlexibleArray(l *layout.Layout) bool {
	for _, f := range l.Fields {
		if f.Layout.Kind == layout.Array && f.Layout.Count < 0 {
			return true
		}
	}
	return false
}

// generateStruct lays fields out as Go fields. Go places every field at the
// same offset as C does once the padding is spelled out.
func (g *Generator) generateStruct(w *bytes.Buffer, name string, l *layout.Layout, fields []*decl.Variable) error {
	if len(fields) == 0 {
		fmt.Fprintf(w, "type %s struct{}\n", name)
		return nil
	}

	fmt.Fprintf(w, "type %s struct {\n", name)
	var end int64
	for i, f := range l.Fields {
		if gap := f.Offset - end; gap > 0 {
			fmt.Fprintf(w, "\t_ [%d]byte\n", gap)
		}
		typ, err := g.goType(f.Type)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\t%s %s\n", goName(fields[i]), typ)
		end = f.Offset + f.Layout.Size
	}
	fmt.Fprintf(w, "}\n")
	return nil
}

// generateRawRecord emits unions, packed structs and structs ending in a
// flexible array as sized storage with one accessor per field.
func (g *Generator) generateRawRecord(w *bytes.Buffer, name string, l *layout.Layout, fields []*decl.Variable) error {
	marker, ok := alignMarkers[l.Align]
	if !ok {
		return fmt.Errorf("alignment %d cannot be expressed", l.Align)
	}

	fmt.Fprintf(w, "type %s struct {\n", name)
	fmt.Fprintf(w, "\t_ [0]%s\n", marker)
	fmt.Fprintf(w, "\traw [%d]byte\n", l.Size)
	fmt.Fprintf(w, "}\n")

	for i, f := range l.Fields {
		field := goName(fields[i])
		addr := "unsafe.Pointer(s)"
		if f.Offset > 0 {
			addr = fmt.Sprintf("unsafe.Add(unsafe.Pointer(s), %d)", f.Offset)
		}

		if f.Layout.Kind == layout.Array && f.Layout.Count < 0 {
			fmt.Fprintf(w, "\n// %s returns the address of the flexible array %s.\n", field, f.Name)
			fmt.Fprintf(w, "func (s *%s) %s() unsafe.Pointer {\n", name, field)
			fmt.Fprintf(w, "\treturn %s\n", addr)
			fmt.Fprintf(w, "}\n")
			continue
		}

		typ, err := g.goType(f.Type)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nfunc (s *%s) %s() *%s {\n", name, field, typ)
		fmt.Fprintf(w, "\treturn (*%s)(%s)\n", typ, addr)
		fmt.Fprintf(w, "}\n")
	}
	return nil
}

// =============================================================================

func (g *Generator) generateEnum(w *bytes.Buffer, s *decl.Scoped) error {
	name := goName(s)
	if name != "" {
		c, err := g.resolver.Carrier(decl.Declared{ID: s.ID, Name: s.Name})
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "// %s is enum %s.\n", name, s.Name)
		fmt.Fprintf(w, "type %s = %s\n", name, carrierGoTypes[c])
	}

	var consts []*decl.Constant
	for _, m := range s.Members {
		if c, ok := m.(*decl.Constant); ok && !decl.IsSkipped(c) {
			consts = append(consts, c)
		}
	}
	if len(consts) == 0 {
		return nil
	}

	typ := name
	if typ == "" {
		var err error
		if typ, err = g.goType(s.IntType); err != nil {
			return err
		}
	}

	if name != "" {
		fmt.Fprintf(w, "\n")
	}
	fmt.Fprintf(w, "const (\n")
	for _, c := range consts {
		fmt.Fprintf(w, "\t%s %s = %v\n", goName(c), typ, c.Value)
	}
	fmt.Fprintf(w, ")\n")
	return nil
}

// =============================================================================

func (g *Generator) generateFunction(w *bytes.Buffer, fn *decl.Function) error {
	desc, err := g.resolver.Descriptor(fn.Signature())
	if err != nil {
		return err
	}

	names := fn.Attrs.Values(decl.ParamNames)
	handle, _ := fn.Attrs.Get(decl.SymbolName)
	symbol := decl.LinkNameOf(fn)
	aggregate := desc.Result != nil && desc.Result.Kind != layout.Value

	resultLayout := "nil"
	if desc.Result != nil {
		if resultLayout, err = g.layoutExpr(fn.Result); err != nil {
			return err
		}
	}
	handleArgs := []string{fmt.Sprintf("ffirt.NewLazySymbol(symbolLookup, %q)", symbol), resultLayout}

	var params, args []string
	if aggregate {
		params = append(params, "allocator ffirt.Allocator")
	}
	for i, p := range fn.Params {
		expr, err := g.layoutExpr(p.Type)
		if err != nil {
			return err
		}
		typ, err := g.goType(p.Type)
		if err != nil {
			return err
		}
		handleArgs = append(handleArgs, expr)
		params = append(params, names[i]+" "+typ)
		args = append(args, fmt.Sprintf("unsafe.Pointer(&%s)", names[i]))
	}
	trace := append([]string{strconv.Quote(symbol)}, names...)

	result := ""
	if desc.Result != nil {
		if result, err = g.goType(fn.Result); err != nil {
			return err
		}
	}

	ctor := "downcall.New"
	if fn.Variadic {
		ctor = "downcall.NewVariadic"
		params = append(params, names[len(fn.Params)]+" ...any")
	}
	g.usesDowncall = true

	fmt.Fprintf(w, "var %s = %s(%s)\n\n", handle, ctor, strings.Join(handleArgs, ", "))
	fmt.Fprintf(w, "// %s wraps %s.\n", goName(fn), prototype(fn))
	switch {
	case aggregate:
		fmt.Fprintf(w, "func %s(%s) *%s {\n", goName(fn), strings.Join(params, ", "), result)
	case result != "":
		fmt.Fprintf(w, "func %s(%s) %s {\n", goName(fn), strings.Join(params, ", "), result)
	default:
		fmt.Fprintf(w, "func %s(%s) {\n", goName(fn), strings.Join(params, ", "))
	}

	fmt.Fprintf(w, "\tif traceDowncalls {\n")
	fmt.Fprintf(w, "\t\ttraceDowncall(%s)\n", strings.Join(trace, ", "))
	fmt.Fprintf(w, "\t}\n")

	ret := "nil"
	switch {
	case aggregate:
		fmt.Fprintf(w, "\tret := (*%s)(allocator.Allocate(%s.Size(), %s.Align()))\n", result, resultLayout, resultLayout)
		ret = "unsafe.Pointer(ret)"
	case result != "":
		fmt.Fprintf(w, "\tvar ret %s\n", result)
		ret = "unsafe.Pointer(&ret)"
	}

	call := append([]string{ret}, args...)
	if fn.Variadic {
		extra := names[len(fn.Params)]
		dynamic := append([]string{ret, fmt.Sprintf("inferVariadicLayouts(%s)", extra), extra}, args...)
		fmt.Fprintf(w, "\tif len(%s) == 0 {\n", extra)
		fmt.Fprintf(w, "\t\t%s.Call(%s)\n", handle, strings.Join(call, ", "))
		fmt.Fprintf(w, "\t} else {\n")
		fmt.Fprintf(w, "\t\t%s.CallVariadic(%s)\n", handle, strings.Join(dynamic, ", "))
		fmt.Fprintf(w, "\t}\n")
	} else {
		fmt.Fprintf(w, "\t%s.Call(%s)\n", handle, strings.Join(call, ", "))
	}

	if result != "" {
		fmt.Fprintf(w, "\treturn ret\n")
	}
	fmt.Fprintf(w, "}\n")
	return nil
}

// prototype spells fn roughly as its header does.
func prototype(fn *decl.Function) string {
	params := make([]string, 0, len(fn.Params)+1)
	for _, p := range fn.Params {
		params = append(params, strings.TrimSpace(decl.Spell(p.Type)+" "+p.Name))
	}
	if fn.Variadic {
		params = append(params, "...")
	}
	if len(params) == 0 {
		params = append(params, "void")
	}
	return fmt.Sprintf("%s %s(%s)", decl.Spell(fn.Result), fn.Name, strings.Join(params, ", "))
}

// =============================================================================

func (g *Generator) generateVariable(w *bytes.Buffer, v *decl.Variable) error {
	l, err := g.resolver.Layout(v.Type)
	if err != nil {
		return err
	}
	expr, err := g.layoutExpr(v.Type)
	if err != nil {
		return err
	}
	typ, err := g.goType(v.Type)
	if err != nil {
		return err
	}

	name := goName(v)
	symbol, _ := v.Attrs.Get(decl.SymbolName)
	layoutName, _ := v.Attrs.Get(decl.LayoutName)

	fmt.Fprintf(w, "var %s = ffirt.NewLazySymbol(symbolLookup, %q)\n\n", symbol, decl.LinkNameOf(v))
	fmt.Fprintf(w, "var %s = %s\n\n", layoutName, expr)

	switch {
	case l.Kind == layout.Array && l.Count < 0:
		fmt.Fprintf(w, "// %s returns the address of %s.\n", name, v.Name)
		fmt.Fprintf(w, "func %s() unsafe.Pointer {\n", name)
		fmt.Fprintf(w, "\treturn findOrThrow(%s)\n", symbol)
		fmt.Fprintf(w, "}\n")

	case l.Kind != layout.Value:
		fmt.Fprintf(w, "// %s returns a pointer to %s.\n", name, v.Name)
		fmt.Fprintf(w, "func %s() *%s {\n", name, typ)
		fmt.Fprintf(w, "\treturn (*%s)(findOrThrow(%s))\n", typ, symbol)
		fmt.Fprintf(w, "}\n")

	default:
		setter, _ := v.Attrs.Get(decl.SetterName)
		fmt.Fprintf(w, "// %s reads %s.\n", name, v.Name)
		fmt.Fprintf(w, "func %s() %s {\n", name, typ)
		fmt.Fprintf(w, "\treturn *(*%s)(findOrThrow(%s))\n", typ, symbol)
		fmt.Fprintf(w, "}\n\n")
		fmt.Fprintf(w, "// %s writes %s.\n", setter, v.Name)
		fmt.Fprintf(w, "func %s(value %s) {\n", setter, typ)
		fmt.Fprintf(w, "\t*(*%s)(findOrThrow(%s)) = value\n", typ, symbol)
		fmt.Fprintf(w, "}\n")
	}
	return nil
}

// =============================================================================

func (g *Generator) generateConstant(w *bytes.Buffer, c *decl.Constant) error {
	name := goName(c)

	switch v := c.Value.(type) {
	case string:
		fmt.Fprintf(w, "var %s = ffirt.CString(%s)\n", name, strconv.Quote(v))
		return nil
	case decl.Address:
		fmt.Fprintf(w, "var %s = ffirt.Address(%#x)\n", name, uint64(v))
		return nil
	}

	typ, err := g.goType(c.Type)
	if err != nil {
		return err
	}

	switch v := c.Value.(type) {
	case int64, uint64:
		carrier, err := g.resolver.Carrier(c.Type)
		if err != nil {
			return err
		}
		switch carrier {
		case layout.Bool:
			fmt.Fprintf(w, "const %s %s = %t\n", name, typ, v != int64(0) && v != uint64(0))
		case layout.Address:
			fmt.Fprintf(w, "var %s = ffirt.Address(%#x)\n", name, bits(v))
		default:
			fmt.Fprintf(w, "const %s %s = %d\n", name, typ, v)
		}
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			fmt.Fprintf(w, "var %s %s = ffirt.MustParseFloat64(%q)\n", name, typ, ffirt.FormatFloat64(v))
			return nil
		}
		fmt.Fprintf(w, "const %s %s = %s\n", name, typ, strconv.FormatFloat(v, 'g', -1, 64))
	case float32:
		f := float64(v)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			fmt.Fprintf(w, "var %s %s = ffirt.MustParseFloat32(%q)\n", name, typ, ffirt.FormatFloat32(v))
			return nil
		}
		fmt.Fprintf(w, "const %s %s = %s\n", name, typ, strconv.FormatFloat(f, 'g', -1, 32))
	default:
		return fmt.Errorf("constant %s has a %T value", c.Name, c.Value)
	}
	return nil
}

func bits(v any) uint64 {
	if i, ok := v.(int64); ok {
		return uint64(i)
	}
	return v.(uint64)
}

// =============================================================================

func (g *Generator) generateTypedef(w *bytes.Buffer, td *decl.Typedef) error {
	if fn, desc, ok := g.callback(td); ok {
		return g.generateCallback(w, td, fn, desc)
	}

	typ, err := g.goType(td.Type)
	if err != nil {
		return err
	}
	name := goName(td)

	fmt.Fprintf(w, "// %s is typedef %s.\n", name, td.Name)
	fmt.Fprintf(w, "type %s = %s\n", name, typ)

	layoutName, ok := td.Attrs.Get(decl.LayoutName)
	if !ok {
		return nil
	}
	expr, err := g.layoutExpr(td.Type)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\nvar %s = %s\n", layoutName, expr)
	return nil
}

// generateCallback emits a function pointer typedef as a Go func type that
// converts to a native function pointer and back.
func (g *Generator) generateCallback(w *bytes.Buffer, td *decl.Typedef, fn decl.FunctionType, desc *layout.Descriptor) error {
	name := goName(td)
	factory, _ := td.Attrs.Get(decl.FactoryName)
	layoutName, _ := td.Attrs.Get(decl.LayoutName)

	result := ""
	resultLayout := "nil"
	if desc.Result != nil {
		var err error
		if result, err = g.goType(fn.Result); err != nil {
			return err
		}
		if resultLayout, err = g.layoutExpr(fn.Result); err != nil {
			return err
		}
	}

	var params, args []string
	layouts := []string{resultLayout}
	for i, p := range fn.Params {
		typ, err := g.goType(p)
		if err != nil {
			return err
		}
		expr, err := g.layoutExpr(p)
		if err != nil {
			return err
		}
		params = append(params, fmt.Sprintf("x%d %s", i, typ))
		args = append(args, fmt.Sprintf("unsafe.Pointer(&x%d)", i))
		layouts = append(layouts, expr)
	}
	signature := fmt.Sprintf("func(%s)", strings.Join(params, ", "))
	if result != "" {
		signature += " " + result
	}
	g.usesDowncall = true

	fmt.Fprintf(w, "// %s is the function pointer typedef %s.\n", name, td.Name)
	fmt.Fprintf(w, "type %s %s\n\n", name, signature)
	fmt.Fprintf(w, "var %s = ffirt.Pointer\n\n", layoutName)

	fmt.Fprintf(w, "// Upcall returns a native function pointer that calls f.\n")
	fmt.Fprintf(w, "func (f %s) Upcall() unsafe.Pointer {\n", name)
	fmt.Fprintf(w, "\treturn upcallStub(f)\n")
	fmt.Fprintf(w, "}\n\n")

	fmt.Fprintf(w, "// %s wraps a native function pointer.\n", factory)
	fmt.Fprintf(w, "func %s(p unsafe.Pointer) %s {\n", factory, name)
	fmt.Fprintf(w, "\th := downcall.FromAddress(%s)\n", strings.Join(append([]string{"p"}, layouts...), ", "))
	fmt.Fprintf(w, "\treturn %s {\n", signature)
	ret := "nil"
	if result != "" {
		fmt.Fprintf(w, "\t\tvar ret %s\n", result)
		ret = "unsafe.Pointer(&ret)"
	}
	fmt.Fprintf(w, "\t\th.Call(%s)\n", strings.Join(append([]string{ret}, args...), ", "))
	if result != "" {
		fmt.Fprintf(w, "\t\treturn ret\n")
	}
	fmt.Fprintf(w, "\t}\n")
	fmt.Fprintf(w, "}\n")
	return nil
}
