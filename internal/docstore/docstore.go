// Package docstore defines the live document store capability the portal
// core is built against. The store is treated as opaque: the core does not
// depend on its replication or consistency model beyond the ordering
// guarantees documented on SubscribeToQuery.
package docstore

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for store operations. Implementations wrap these in the
// fault taxonomy at the point the raw backend error is first observed.
var (
	ErrNotFound         = errors.New("document not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrStoreClosed      = errors.New("document store closed")
)

// Document is a single stored record addressed by a slash-separated path,
// e.g. "organizations/org-42/members/user-7".
type Document struct {
	Path      string
	Data      map[string]any
	UpdatedAt time.Time
}

// Snapshot is the full ordered result of a query at a point in time. A
// later snapshot always reflects at least the same information as an
// earlier one plus deltas, so consumers may replace state wholesale
// without diffing.
type Snapshot []Document

// Filter is an equality constraint on a document field.
type Filter struct {
	Field string
	Value any
}

// Query describes a live collection read: all documents directly under
// Collection matching every filter, ordered by OrderBy.
type Query struct {
	Collection string // parent path, e.g. "requests" or "requests/req-1/comments"
	Filters    []Filter
	OrderBy    string // field name; empty means unordered
	Descending bool
	Limit      int // 0 means no limit
}

// Matches reports whether a document's data satisfies every filter.
func (q Query) Matches(data map[string]any) bool {
	for _, f := range q.Filters {
		if data[f.Field] != f.Value {
			return false
		}
	}
	return true
}

// SnapshotFunc receives the full current snapshot on every remote change.
type SnapshotFunc func(Snapshot)

// ErrorFunc receives subscription errors. Delivery of an error does not
// imply the subscription is dead unless the returned cancel func has been
// called; adapters decide how to degrade.
type ErrorFunc func(error)

// Store is the live document store contract.
type Store interface {
	// GetDocument returns the document at path, or a not-found fault.
	GetDocument(ctx context.Context, path string) (*Document, error)

	// WriteDocument upserts the full document at path. Last write wins.
	WriteDocument(ctx context.Context, path string, data map[string]any) error

	// DeleteDocument removes the document at path. Deleting a missing
	// document is not an error.
	DeleteDocument(ctx context.Context, path string) error

	// SubscribeToDocument delivers the current document (nil if missing)
	// immediately, then again on every change, until cancel is called.
	// Read failures after attach go to onError; the subscription stays
	// registered so a recovered backend resumes delivery.
	SubscribeToDocument(ctx context.Context, path string, fn func(*Document), onError ErrorFunc) (cancel func(), err error)

	// SubscribeToQuery delivers the current snapshot immediately, then the
	// full updated snapshot on every matching change, in the store's own
	// change order. cancel is safe to call more than once.
	SubscribeToQuery(ctx context.Context, q Query, onSnapshot SnapshotFunc, onError ErrorFunc) (cancel func(), err error)
}
