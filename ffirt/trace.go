package ffirt

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

var traceLogger atomic.Pointer[zap.Logger]

// SetTraceLogger replaces the logger used by TraceDowncall. A nil logger
// restores the default development logger.
func SetTraceLogger(l *zap.Logger) {
	traceLogger.Store(l)
}

func tracer() *zap.Logger {
	if l := traceLogger.Load(); l != nil {
		return l
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	if traceLogger.CompareAndSwap(nil, l) {
		return l
	}
	return traceLogger.Load()
}

// TraceEnabled reports whether the environment variable env is set to a
// true boolean value.
func TraceEnabled(env string) bool {
	v, err := strconv.ParseBool(os.Getenv(env))
	return err == nil && v
}

// TraceDowncall logs a native call before it is made.
func TraceDowncall(symbol string, args ...any) {
	tracer().Debug("downcall",
		zap.String("symbol", symbol),
		zap.String("args", formatArgs(args)),
	)
}

func formatArgs(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = fmt.Sprint(a)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
