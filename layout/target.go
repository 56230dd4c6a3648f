package layout

import (
	"fmt"
	"strings"

	"github.com/ardanlabs/ffi-extract/decl"
)

// DataModel fixes the width of the C integer types.
type DataModel int

const (
	// LP64 is used by Linux, macOS and the BSDs.
	LP64 DataModel = iota
	// LLP64 is used by 64-bit Windows.
	LLP64
)

func (m DataModel) String() string {
	switch m {
	case LP64:
		return "lp64"
	case LLP64:
		return "llp64"
	default:
		return fmt.Sprintf("DataModel(%d)", int(m))
	}
}

// ParseDataModel accepts the names returned by DataModel.String.
func ParseDataModel(s string) (DataModel, error) {
	switch strings.ToLower(s) {
	case "", "lp64":
		return LP64, nil
	case "llp64":
		return LLP64, nil
	default:
		return LP64, fmt.Errorf("unknown data model %q", s)
	}
}

const pointerSize = 8

var (
	voidLayout    = &Layout{Kind: Value, Carrier: Void}
	pointerLayout = &Layout{Kind: Value, Carrier: Address, Size: pointerSize, Align: pointerSize}
)

func scalar(c Carrier, size int64) *Layout {
	return &Layout{Kind: Value, Carrier: c, Size: size, Align: size}
}

// primitive returns the layout of k, or nil when k cannot be carried.
func (m DataModel) primitive(k decl.PrimKind) *Layout {
	switch k {
	case decl.Void:
		return voidLayout
	case decl.Bool:
		return scalar(Bool, 1)
	case decl.Char, decl.SChar:
		return scalar(Int8, 1)
	case decl.UChar:
		return scalar(Uint8, 1)
	case decl.Short:
		return scalar(Int16, 2)
	case decl.UShort, decl.Char16:
		return scalar(Uint16, 2)
	case decl.Int:
		return scalar(Int32, 4)
	case decl.UInt, decl.Char32:
		return scalar(Uint32, 4)
	case decl.Long:
		if m == LLP64 {
			return scalar(Int32, 4)
		}
		return scalar(Int64, 8)
	case decl.ULong:
		if m == LLP64 {
			return scalar(Uint32, 4)
		}
		return scalar(Uint64, 8)
	case decl.LongLong:
		return scalar(Int64, 8)
	case decl.ULongLong:
		return scalar(Uint64, 8)
	case decl.WChar:
		if m == LLP64 {
			return scalar(Uint16, 2)
		}
		return scalar(Int32, 4)
	case decl.Float:
		return scalar(Float32, 4)
	case decl.Double:
		return scalar(Float64, 8)
	default:
		return nil
	}
}

// Bits returns the width of k in bits, or 0 when k has no carrier.
func (m DataModel) Bits(k decl.PrimKind) int {
	if l := m.primitive(k); l != nil {
		return int(l.Size) * 8
	}
	return 0
}
