package ffirt

import "fmt"

// UnresolvedSymbolError is raised on first use of a binding whose native
// symbol could not be found.
type UnresolvedSymbolError struct {
	Symbol string
	// Err is the library load failure, if any library failed to load.
	Err error
}

func (e *UnresolvedSymbolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unresolved symbol: %s (%v)", e.Symbol, e.Err)
	}
	return "unresolved symbol: " + e.Symbol
}

func (e *UnresolvedSymbolError) Unwrap() error { return e.Err }

// InvalidVariadicArgumentError is raised when a variadic call receives a
// value that no default argument promotion applies to.
type InvalidVariadicArgumentError struct {
	Index int
	Type  string
}

func (e *InvalidVariadicArgumentError) Error() string {
	return fmt.Sprintf("invalid type for variadic argument %d: %s", e.Index, e.Type)
}
