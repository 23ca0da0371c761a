// Package draft persists autosaved working copies of documents, keyed by
// draft key. The SQLite store is the default; the in-memory store backs
// tests and ephemeral setups.
package draft

import (
	"errors"

	"github.com/rs/zerolog"
)

var ErrNotFound = errors.New("draft not found")

var draftLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	draftLogger = l
}
