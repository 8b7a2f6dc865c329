package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers a panic in a long-lived background goroutine and logs
// it with its stack. It must be deferred directly. The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic":   r,
			"stack":   string(debug.Stack()),
			"context": where,
		}).Error("PANIC recovered")
	}
}
