package ffirt

import (
	"sync"
	"unsafe"
)

// LazySymbol is a symbol address resolved on first use. Resolution runs at
// most once; every caller observes the same address or the same error.
type LazySymbol struct {
	name    string
	resolve func() (unsafe.Pointer, error)
}

func NewLazySymbol(f Finder, name string) *LazySymbol {
	return &LazySymbol{
		name: name,
		resolve: sync.OnceValues(func() (unsafe.Pointer, error) {
			return f.Find(name)
		}),
	}
}

func (s *LazySymbol) Name() string { return s.name }

func (s *LazySymbol) Resolve() (unsafe.Pointer, error) {
	return s.resolve()
}

// MustResolve panics with the resolution error, normally an
// *UnresolvedSymbolError.
func (s *LazySymbol) MustResolve() unsafe.Pointer {
	p, err := s.resolve()
	if err != nil {
		panic(err)
	}
	return p
}
