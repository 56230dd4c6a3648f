package ffirt

import "unsafe"

// Allocator provides storage for aggregate values returned by native
// functions.
type Allocator interface {
	Allocate(size, align uintptr) unsafe.Pointer
}

// AllocatorFunc adapts a function to Allocator.
type AllocatorFunc func(size, align uintptr) unsafe.Pointer

func (f AllocatorFunc) Allocate(size, align uintptr) unsafe.Pointer { return f(size, align) }

// GoAllocator allocates zeroed, garbage-collected memory.
type GoAllocator struct{}

func (GoAllocator) Allocate(size, align uintptr) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	if align <= 8 {
		buf := make([]uint64, (size+7)/8)
		return unsafe.Pointer(&buf[0])
	}
	buf := make([]byte, size+align)
	p := unsafe.Pointer(&buf[0])
	if mis := uintptr(p) % align; mis != 0 {
		p = unsafe.Add(p, align-mis)
	}
	return p
}

// CopyString reads a NUL-terminated string from native memory.
func CopyString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

func cstring(s string) unsafe.Pointer {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return unsafe.Pointer(&buf[0])
}
