package parser

import (
	"fmt"
	"strings"
)

// ParseDiagnosticError reports error diagnostics for a header. Nothing is
// built for a header that produced one.
type ParseDiagnosticError struct {
	Header      string
	Diagnostics []Diagnostic
}

func (e *ParseDiagnosticError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d error diagnostic(s)", e.Header, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		sb.WriteString("\n\t")
		sb.WriteString(d.String())
	}
	return sb.String()
}
