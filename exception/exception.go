package exception

import (
	"runtime/debug"

	"github.com/mezonai/mmn-storage/logx"
	"github.com/mezonai/mmn-storage/monitoring"
)

// SafeGo runs fn in a new goroutine, recovering and logging any panic.
// The returned channel is closed when fn has returned, panicking or not.
func SafeGo(name string, fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				monitoring.IncreasePanicCount()
				logx.Error("PANIC", "Panic in: ", name, " ", r, "\n", string(debug.Stack()))
			}
		}()
		fn()
	}()
	return done
}
