package ev

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// NewLogger returns a JSON logger writing to w, suitable for
// evopts.Logger.
func NewLogger(w io.Writer, level logiface.Level) *logiface.Logger[logiface.Event] {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		stumpy.L.WithLevel(level),
	).Logger()
}

// AbortError is the value loops panic with when an internal invariant is
// broken: a handle closed twice, an event counter going negative, a closed
// handle being touched.
type AbortError struct {
	File string
	Line int
	Msg  string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("ev: abort at %s:%d: %s", e.File, e.Line, e.Msg)
}

func abortf(l *Loop, format string, args ...interface{}) {
	err := &AbortError{
		File: "???",
		Msg:  fmt.Sprintf(format, args...),
	}
	if _, file, line, ok := runtime.Caller(1); ok {
		err.File = filepath.Base(file)
		err.Line = line
	}

	if l != nil {
		l.logger.Crit().
			Str("file", err.File).
			Int("line", err.Line).
			Log(err.Msg)
	}

	panic(err)
}
