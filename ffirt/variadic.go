package ffirt

import (
	"fmt"
	"reflect"
)

// VariadicLayout returns the layout a value travels as when passed through
// a C ellipsis: integers of 32 bits or less and bool widen to int, 64-bit
// integers stay 64-bit, floats widen to double and pointers stay pointers.
func VariadicLayout(v any) (*Layout, bool) {
	if v == nil {
		return nil, false
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return Int32, true
	case reflect.Int, reflect.Uint:
		if rv.Type().Size() == 8 {
			return Int64, true
		}
		return Int32, true
	case reflect.Int64, reflect.Uint64:
		return Int64, true
	case reflect.Float32, reflect.Float64:
		return Float64, true
	case reflect.Pointer, reflect.UnsafePointer, reflect.Uintptr:
		return Pointer, true
	}
	return nil, false
}

// InferVariadicLayouts derives the layouts of the variadic part of a call.
// It fails with *InvalidVariadicArgumentError on the first value without a
// promotion rule.
func InferVariadicLayouts(args []any) ([]*Layout, error) {
	layouts := make([]*Layout, len(args))
	for i, arg := range args {
		l, ok := VariadicLayout(arg)
		if !ok {
			return nil, &InvalidVariadicArgumentError{Index: i, Type: typeName(arg)}
		}
		layouts[i] = l
	}
	return layouts, nil
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
