package common

import "fmt"

// SHAssert panics with msg when condition is false. It is the engine's one
// mechanism for signalling the "Programming" error category: invariant
// violations such as a size out of range, a sentinel key being inspected, or
// unpinning a frame whose pin count is already zero. These are bugs, not
// expected runtime outcomes, so they are not translated into error values.
func SHAssert(condition bool, msg string) {
	if !condition {
		panic(msg)
	}
}

// ShPrintf prints a trace line when EnableDebug is set. Kept as a function
// (rather than inlined fmt.Printf calls) so call sites read the same
// whether tracing is compiled in or not.
func ShPrintf(format string, args ...interface{}) {
	if EnableDebug {
		fmt.Printf(format, args...)
	}
}
