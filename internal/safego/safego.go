// Package safego starts background jobs that must not take the process down
// when they panic.
package safego

import (
	"log/slog"
	"runtime/debug"
)

// Go runs fn on its own goroutine. A panic is recovered and logged with the
// job name and stack, and the goroutine ends.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background job panicked",
					"job", name,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}
