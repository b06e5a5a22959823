// Package metrics tracks how often each entry point is invoked. Counts go
// to a small SQLite database per mode and day, and are mirrored into
// OpenTelemetry as an observable gauge when telemetry is enabled.
package metrics

import (
	"log"
	"sync"
)

// One process-wide store so tool handlers and CLI commands can record
// invocations without threading a handle through every call site.
var (
	mu      sync.Mutex
	global  *Store
	opened  bool
	openErr error
)

// Init opens the process-wide store. Calling it again is a no-op that
// returns the first result.
func Init() error {
	mu.Lock()
	defer mu.Unlock()
	return openLocked()
}

func openLocked() error {
	if opened {
		return openErr
	}
	opened = true
	global, openErr = NewStore()
	if openErr != nil {
		log.Printf("metrics: failed to initialize store: %v", openErr)
	}
	return openErr
}

// RecordInvocation bumps today's counter for the given mode, opening the
// store on first use. Failures are logged and swallowed so counting can
// never break a request.
func RecordInvocation(mode Mode) {
	mu.Lock()
	defer mu.Unlock()

	if openLocked() != nil || global == nil {
		return
	}
	if err := global.Increment(mode); err != nil {
		log.Printf("metrics: failed to record %s invocation: %v", mode, err)
	}
}

// GetStats returns cumulative per-mode totals, or nil when no store has
// been opened.
func GetStats() map[Mode]int64 {
	mu.Lock()
	defer mu.Unlock()

	if global == nil {
		return nil
	}
	totals, err := global.GetAllTotals()
	if err != nil {
		log.Printf("metrics: failed to get stats: %v", err)
		return nil
	}
	return totals
}

// GetStatsByName returns the same totals keyed by plain mode name, ready
// for JSON serialization.
func GetStatsByName() map[string]int64 {
	totals := GetStats()
	if totals == nil {
		return nil
	}
	byName := make(map[string]int64, len(totals))
	for mode, count := range totals {
		byName[string(mode)] = count
	}
	return byName
}

// Close releases the process-wide store. A later Init reopens it.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if global == nil {
		opened = false
		return nil
	}
	err := global.Close()
	global = nil
	opened = false
	openErr = nil
	return err
}

// SetStoreForTesting injects a store, bypassing Init.
func SetStoreForTesting(store *Store) {
	mu.Lock()
	defer mu.Unlock()
	global = store
	opened = true
	openErr = nil
}

// ResetForTesting closes any open store and clears all package state.
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	if global != nil {
		_ = global.Close()
	}
	global = nil
	opened = false
	openErr = nil
}
