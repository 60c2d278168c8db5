package logger

import (
	"fmt"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// RecoverPanic logs a recovered panic with its stack trace. Call it
// deferred at the top of goroutines that must not take the daemon down.
func RecoverPanic(log zerolog.Logger, scope string) {
	if r := recover(); r != nil {
		log.Error().
			Str("scope", scope).
			Str("panic", fmt.Sprint(r)).
			Str("stack", string(debug.Stack())).
			Msg("panic recovered")
	}
}

// SafeGo runs fn in a goroutine with panic recovery.
func SafeGo(log zerolog.Logger, scope string, fn func()) {
	go func() {
		defer RecoverPanic(log, scope)
		fn()
	}()
}
