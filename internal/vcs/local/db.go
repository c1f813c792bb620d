package local

import (
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
)

// OpenDB opens the badger database backing a local store. An in-memory
// database ignores path and is lost on Close.
func OpenDB(path string, inMemory bool) (*badger.DB, error) {
	if inMemory {
		opts := badger.DefaultOptions("").
			WithInMemory(true).
			WithNumVersionsToKeep(1).
			WithLogger(nil) // Disable logging noise
		return badger.Open(opts)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}
