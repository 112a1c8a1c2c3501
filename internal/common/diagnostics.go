package common

import (
	"runtime"

	"github.com/devlights/gomy/output"
)

// DumpGoroutineStacks prints every goroutine's stack trace. It exists for
// the case a group-commit waiter or a latch acquisition never returns: a
// caller stuck in that situation can call this from a debugger session or a
// SIGQUIT handler to see who is holding what.
func DumpGoroutineStacks() {
	buf := make([]byte, 1<<16)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			output.Stdoutl("=== goroutine dump ===", string(buf[:n]))
			return
		}
		buf = make([]byte, 2*len(buf))
	}
}
