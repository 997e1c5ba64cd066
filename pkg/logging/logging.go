// Package logging provides component-scoped loggers matching the teacher's
// repeated convention (log.New(log.Writer(), "[Component] ", log.LstdFlags))
// seen throughout pkg/batch — deduplicated into one constructor instead of
// copy-pasted at every call site.
package logging

import (
	"log"
	"os"
)

// New returns a *log.Logger prefixed with "[component] ", writing to w (or
// os.Stderr if w is nil).
func New(component string, w *os.File) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

// Aborting logs the "Aborting relay" message the runtime-version guard
// (spec.md §4.1) must emit on an incompatible target runtime, in the exact
// structured shape operators grep for.
func Aborting(logger *log.Logger, loop string, reason error) {
	logger.Printf("Aborting relay: loop=%s reason=%v", loop, reason)
}
