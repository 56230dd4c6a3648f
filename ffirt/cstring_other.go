//go:build !(darwin || freebsd || linux)

package ffirt

import "unsafe"

func CString(s string) unsafe.Pointer {
	return cstring(s)
}
