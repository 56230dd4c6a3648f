//go:build !(darwin || freebsd || (linux && (amd64 || arm64)) || windows)

package ffirt

import (
	"fmt"
	"runtime"
	"unsafe"
)

func NewUpcall(fn any) unsafe.Pointer {
	panic(fmt.Sprintf("ffirt: callbacks are not supported on %s/%s", runtime.GOOS, runtime.GOARCH))
}
