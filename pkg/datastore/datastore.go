// Package datastore provides the query transports the generator reads
// configuration through: an in-memory document, a REST client and a gRPC
// client/server pair.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/psaab/bigsh/pkg/schema"
)

// Querier fetches the schema subtree and current value at a path.
type Querier interface {
	Query(ctx context.Context, path string, filter map[string]any) (*schema.Node, any, error)
}

// Error is a coded transport failure. Code follows HTTP status semantics.
type Error struct {
	Code int
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := http.StatusText(e.Code)
	if msg == "" {
		msg = fmt.Sprintf("status %d", e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of a coded error in err's chain.
func CodeOf(err error) (int, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return 0, false
}
