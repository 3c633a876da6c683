package store

import (
	"context"
	"errors"
)

// ErrNoDocument is returned by LoadDocument when nothing has been persisted
// yet. Callers fall back to the default config in that case.
var ErrNoDocument = errors.New("no config document persisted")

// DocumentStore persists the config document as a single atomic unit. The
// core treats it as an opaque JSON blob; parsing and migration happen above
// this interface.
type DocumentStore interface {
	LoadDocument(ctx context.Context) ([]byte, error)
	SaveDocument(ctx context.Context, doc []byte) error
	Close() error
}
