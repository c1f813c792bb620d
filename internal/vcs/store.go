// internal/vcs/store.go
package vcs

import "context"

// File is a file read at a given ref. Content is in the store's delivery
// encoding (base64 text); Token is the version the next write must present.
type File struct {
	Content []byte
	Token   string
}

// WriteRequest replaces a file on a ref. An empty ExpectedToken means the
// file must not exist yet.
type WriteRequest struct {
	Path          string
	Content       []byte
	ExpectedToken string
	Ref           string
	Message       string
}

// Store is the operation set of a remote versioned content store. Every call
// goes to the store; implementations must not cache results across calls.
//
// Errors are *errors.Error values: RefNotFound, RefConflict, FileNotFound,
// WriteConflict, MergeConflict, Transient and Unauthorized.
type Store interface {
	// GetRef returns the version token the named ref points at.
	GetRef(ctx context.Context, name string) (string, error)

	// CreateRef creates a new ref pointing at fromToken.
	CreateRef(ctx context.Context, name, fromToken string) error

	// ReadFile reads path as of ref.
	ReadFile(ctx context.Context, path, ref string) (*File, error)

	// WriteFile commits new content to a ref, guarded by ExpectedToken.
	WriteFile(ctx context.Context, req WriteRequest) error

	// MergeRef integrates head into base. It fails with MergeConflict when
	// base has moved since head was branched from it.
	MergeRef(ctx context.Context, base, head, message string) error

	// DeleteRef removes a ref. Deleting an absent ref succeeds.
	DeleteRef(ctx context.Context, name string) error
}
