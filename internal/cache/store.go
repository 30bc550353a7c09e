// Package cache persists open positions across process restarts.
package cache

// Store saves and loads raw position documents keyed by name. The trading
// layer owns the document schema; the store only moves bytes.
type Store interface {
	// Save overwrites the document for name.
	Save(name string, data []byte) error

	// Load returns the document for name. A missing document yields
	// (nil, nil); a document that cannot be read yields an error.
	Load(name string) ([]byte, error)

	// Clear resets the document for name to an empty position list.
	Clear(name string) error
}

// emptyDocument is what Clear writes: a valid, empty position list
var emptyDocument = []byte("[]")
