package ffirt

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

// Finder resolves native symbols.
type Finder interface {
	Find(name string) (unsafe.Pointer, error)
}

// linker is the dynamic loader used by SymbolLookup.
type linker interface {
	Open(path string) (uintptr, error)
	Symbol(handle uintptr, name string) (uintptr, error)
	Default() uintptr
}

// SymbolLookup resolves symbols from explicitly loaded libraries first and
// then from the process's default symbol table. Libraries are loaded once,
// before the first lookup.
type SymbolLookup struct {
	linker linker

	mu        sync.Mutex
	libraries []string

	once    sync.Once
	handles []uintptr
	loadErr error
}

func NewSymbolLookup() *SymbolLookup {
	return &SymbolLookup{linker: systemLinker{}}
}

// Preload queues libraries for loading. A name without a directory or file
// extension is expanded to the platform's library file name, so "z" becomes
// "libz.so" on Linux. Libraries queued after the first lookup are ignored.
func (l *SymbolLookup) Preload(libraries ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.libraries = append(l.libraries, libraries...)
}

func (l *SymbolLookup) load() {
	l.mu.Lock()
	libs := append([]string(nil), l.libraries...)
	l.mu.Unlock()

	var errs []error
	for _, lib := range libs {
		h, err := l.linker.Open(LibraryPath(lib))
		if err != nil {
			errs = append(errs, fmt.Errorf("loading %s: %w", lib, err))
			continue
		}
		l.handles = append(l.handles, h)
	}
	l.loadErr = errors.Join(errs...)
}

// Find returns the address of name or an *UnresolvedSymbolError.
func (l *SymbolLookup) Find(name string) (unsafe.Pointer, error) {
	l.once.Do(l.load)

	for _, h := range l.handles {
		if addr, err := l.linker.Symbol(h, name); err == nil && addr != 0 {
			return toPointer(addr), nil
		}
	}
	if addr, err := l.linker.Symbol(l.linker.Default(), name); err == nil && addr != 0 {
		return toPointer(addr), nil
	}
	return nil, &UnresolvedSymbolError{Symbol: name, Err: l.loadErr}
}

// LibraryPath maps a bare library name to a platform file name. Paths and
// names that already carry an extension are returned unchanged.
func LibraryPath(name string) string {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') || filepath.Ext(name) != "" {
		return name
	}
	switch runtime.GOOS {
	case "darwin":
		return "lib" + name + ".dylib"
	case "windows":
		return name + ".dll"
	default:
		return "lib" + name + ".so"
	}
}

// toPointer converts a native address without tripping the unsafeptr check.
func toPointer(addr uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&addr))
}

// Address reconstructs a pointer from a raw native address.
func Address(raw uint64) unsafe.Pointer {
	return toPointer(uintptr(raw))
}
