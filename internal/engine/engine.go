// Package engine defines the storage engine contract shared by the
// log-structured engine and the embedded-SQLite engine, so the dispatcher and
// client can be written once against an interface instead of twice against
// two concrete types.
package engine

import "errors"

// ErrKeyNotFound is returned by Remove when the key is absent. It is also the
// only engine error the wire protocol surfaces verbatim ("Key not found").
var ErrKeyNotFound = errors.New("engine: key not found")

// ErrMismatchEngine is returned by Open when a data directory's persisted
// engine-selector marker names a different engine than the one being opened.
var ErrMismatchEngine = errors.New("engine: mismatched engine for data directory")

// Kind names a concrete engine implementation. It is the value persisted in
// the data directory's config marker and accepted by the --engine CLI flag.
type Kind string

const (
	// KindLog selects the log-structured engine (package logengine).
	KindLog Kind = "kvs"
	// KindSled selects the SQLite-backed embedded engine (package sledengine).
	KindSled Kind = "sled"
)

// Engine is the uniform storage contract. Implementations must be cheaply
// cloneable (Clone) and safe to call concurrently from multiple goroutines;
// the dispatcher clones a handle per connection and hands it to a pool
// worker.
type Engine interface {
	// Set stores value under key, creating or overwriting any prior value.
	Set(key, value string) error

	// Get returns the value stored under key and true, or ("", false, nil)
	// if key is absent.
	Get(key string) (string, bool, error)

	// Remove deletes key. It returns an error wrapping ErrKeyNotFound if key
	// is absent.
	Remove(key string) error

	// Clone returns a handle to the same underlying engine state, safe to
	// hand to another goroutine.
	Clone() Engine

	// Close releases the underlying resources (file descriptors, database
	// connections) shared by this handle and all of its clones. Call it only
	// on the handle returned by Open, once the engine is no longer in use;
	// Close on a Clone()-derived handle is a no-op, since clones do not own
	// the shared state.
	Close() error
}
