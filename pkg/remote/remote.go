// Package remote talks to the hosted row store backing the shop data.
// The store is opaque: named tables of JSON rows addressable by id, with
// insert, update, delete and filtered select.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/halolaba/halolaba-client/pkg/models"
)

// ErrUnreachable reports a transient transport failure: the call may
// have never reached the server and is worth retrying later.
var ErrUnreachable = errors.New("remote unreachable")

// RejectedError reports a definitive rejection by the remote service,
// such as a validation failure or a missing target row. Retrying the
// same operation will not succeed.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("remote rejected request (status %d): %s", e.StatusCode, e.Message)
}

// Query narrows a select: equality filters, ordering and a row limit.
// Zero values mean "no constraint".
type Query struct {
	Filter     map[string]string
	OrderBy    string
	Descending bool
	Limit      int
}

// Store is the remote service surface the sync core depends on.
type Store interface {
	// InsertRow creates a row from payload and returns the stored row,
	// including any server-assigned fields.
	InsertRow(ctx context.Context, table string, row models.Row) (models.Row, error)
	// UpdateRow applies the payload fields to the row with the given id.
	UpdateRow(ctx context.Context, table, id string, row models.Row) error
	// DeleteRow removes the row with the given id.
	DeleteRow(ctx context.Context, table, id string) error
	// SelectRows returns the rows of a table matching the query.
	SelectRows(ctx context.Context, table string, q Query) ([]models.Row, error)
	// Ping checks reachability of the service.
	Ping(ctx context.Context) error
}
