package gpu

import (
	"log/slog"
	"sync/atomic"
)

// The Vulkan layer logs device selection at Info, object creation,
// barriers and shader compiles at Debug, and failed vk* calls and
// reference count misuse at Warn. Output is discarded until SetLogger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(slog.DiscardHandler))
}

func slogger() *slog.Logger { return loggerPtr.Load() }

// SetLogger routes the Vulkan layer's records to l. A nil logger
// discards them again.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	loggerPtr.Store(l)
}
