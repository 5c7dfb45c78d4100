package signal

import "sync"

var (
	defaultMu  sync.Mutex
	defaultBus *Bus
)

// Default returns the process-wide bus, creating it on first use.
// It exists for top-level convenience wiring only; ensemble components
// never reach for it themselves and always use the bus they were given.
func Default() *Bus {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultBus == nil {
		defaultBus = New()
	}
	return defaultBus
}

// ResetDefault replaces the process-wide bus with a freshly constructed one
// and returns it. Intended for tests that use Default.
func ResetDefault(opts ...Option) *Bus {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultBus = New(opts...)
	return defaultBus
}
