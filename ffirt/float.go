package ffirt

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Non-finite constants are emitted as strings understood by ParseFloat64 and
// ParseFloat32. NaN carries its bit pattern so payloads survive the trip.

func FormatFloat64(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return fmt.Sprintf("NaN(0x%016x)", math.Float64bits(f))
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func FormatFloat32(f float32) string {
	switch {
	case math.IsInf(float64(f), 1):
		return "+Inf"
	case math.IsInf(float64(f), -1):
		return "-Inf"
	case math.IsNaN(float64(f)):
		return fmt.Sprintf("NaN(0x%08x)", math.Float32bits(f))
	}
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

func ParseFloat64(s string) (float64, error) {
	if bits, ok, err := nanBits(s, 64); ok {
		return math.Float64frombits(bits), err
	}
	return strconv.ParseFloat(s, 64)
}

func ParseFloat32(s string) (float32, error) {
	if bits, ok, err := nanBits(s, 32); ok {
		return math.Float32frombits(uint32(bits)), err
	}
	f, err := strconv.ParseFloat(s, 32)
	return float32(f), err
}

func MustParseFloat64(s string) float64 {
	f, err := ParseFloat64(s)
	if err != nil {
		panic(err)
	}
	return f
}

func MustParseFloat32(s string) float32 {
	f, err := ParseFloat32(s)
	if err != nil {
		panic(err)
	}
	return f
}

func nanBits(s string, size int) (uint64, bool, error) {
	hex, ok := strings.CutPrefix(s, "NaN(0x")
	if !ok {
		return 0, false, nil
	}
	hex, ok = strings.CutSuffix(hex, ")")
	if !ok {
		return 0, true, fmt.Errorf("malformed NaN literal %q", s)
	}
	bits, err := strconv.ParseUint(hex, 16, size)
	if err != nil {
		return 0, true, fmt.Errorf("malformed NaN literal %q: %w", s, err)
	}
	return bits, true, nil
}
