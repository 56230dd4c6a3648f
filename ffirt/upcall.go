//go:build darwin || freebsd || (linux && (amd64 || arm64)) || windows

package ffirt

import (
	"unsafe"

	"github.com/ebitengine/purego"
)

// NewUpcall returns a native entry point that invokes fn. fn must be a Go
// function whose parameters and results are integers, floats or pointers.
// The callback is never released; callers cache it.
func NewUpcall(fn any) unsafe.Pointer {
	return toPointer(purego.NewCallback(fn))
}
