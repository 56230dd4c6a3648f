//go:build !(darwin || freebsd || linux)

package ffirt

import (
	"fmt"
	"runtime"
)

type systemLinker struct{}

func (systemLinker) Open(path string) (uintptr, error) {
	return 0, fmt.Errorf("dynamic loading is not supported on %s", runtime.GOOS)
}

func (systemLinker) Symbol(uintptr, string) (uintptr, error) {
	return 0, fmt.Errorf("symbol lookup is not supported on %s", runtime.GOOS)
}

func (systemLinker) Default() uintptr { return 0 }
