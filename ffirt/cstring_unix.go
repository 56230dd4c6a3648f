//go:build darwin || freebsd || linux

package ffirt

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// CString returns a NUL-terminated copy of s. The memory is owned by the Go
// heap and stays valid while the returned pointer is reachable.
func CString(s string) unsafe.Pointer {
	p, err := unix.BytePtrFromString(s)
	if err != nil {
		// s holds an interior NUL; keep the bytes as written.
		return cstring(s)
	}
	return unsafe.Pointer(p)
}
