// Package memory implements docstore.Store with in-process storage and
// synchronous change fanout. It backs tests and local development; data is
// lost on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/fault"
)

// Store implements docstore.Store using in-memory storage.
type Store struct {
	mu sync.Mutex

	documents map[string]*docstore.Document

	docWatchers   map[string][]*docWatcher
	queryWatchers []*queryWatcher
}

type docWatcher struct {
	path      string
	fn        func(*docstore.Document)
	onError   docstore.ErrorFunc
	cancelled bool
}

type queryWatcher struct {
	query      docstore.Query
	onSnapshot docstore.SnapshotFunc
	onError    docstore.ErrorFunc
	cancelled  bool
}

// NewStore creates an empty in-memory document store.
func NewStore() *Store {
	return &Store{
		documents:   make(map[string]*docstore.Document),
		docWatchers: make(map[string][]*docWatcher),
	}
}

// GetDocument returns the document at path.
func (s *Store) GetDocument(ctx context.Context, path string) (*docstore.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.documents[path]
	if !exists {
		return nil, fault.NotFound("docstore.get", fmt.Errorf("%w: %s", docstore.ErrNotFound, path))
	}
	return cloneDoc(doc), nil
}

// WriteDocument upserts the document at path and fans the change out to
// document and query watchers.
func (s *Store) WriteDocument(ctx context.Context, path string, data map[string]any) error {
	s.mu.Lock()

	doc := &docstore.Document{
		Path:      path,
		Data:      cloneData(data),
		UpdatedAt: time.Now(),
	}
	s.documents[path] = doc

	notify := s.collectNotifications(path)
	s.mu.Unlock()

	// Deliver outside the lock so callbacks may re-enter the store.
	notify()
	return nil
}

// DeleteDocument removes the document at path. Missing documents are not an
// error.
func (s *Store) DeleteDocument(ctx context.Context, path string) error {
	s.mu.Lock()

	if _, exists := s.documents[path]; !exists {
		s.mu.Unlock()
		return nil
	}
	delete(s.documents, path)

	notify := s.collectNotifications(path)
	s.mu.Unlock()

	notify()
	return nil
}

// SubscribeToDocument registers a watcher for path and delivers the current
// document (nil if absent) before returning.
func (s *Store) SubscribeToDocument(ctx context.Context, path string, fn func(*docstore.Document), onError docstore.ErrorFunc) (func(), error) {
	s.mu.Lock()

	w := &docWatcher{path: path, fn: fn, onError: onError}
	s.docWatchers[path] = append(s.docWatchers[path], w)

	var current *docstore.Document
	if doc, exists := s.documents[path]; exists {
		current = cloneDoc(doc)
	}
	s.mu.Unlock()

	fn(current)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.cancelled = true
		s.removeDocWatcher(path, w)
	}
	return cancel, nil
}

// SubscribeToQuery registers a query watcher and delivers the current
// snapshot before returning.
func (s *Store) SubscribeToQuery(ctx context.Context, q docstore.Query, onSnapshot docstore.SnapshotFunc, onError docstore.ErrorFunc) (func(), error) {
	s.mu.Lock()

	w := &queryWatcher{query: q, onSnapshot: onSnapshot, onError: onError}
	s.queryWatchers = append(s.queryWatchers, w)
	snap := s.evaluate(q)
	s.mu.Unlock()

	onSnapshot(snap)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.cancelled = true
		s.removeQueryWatcher(w)
	}
	return cancel, nil
}

// collectNotifications gathers the callbacks affected by a change at path.
// Must be called with the lock held; the returned func must be invoked
// after releasing it.
func (s *Store) collectNotifications(path string) func() {
	type docDelivery struct {
		fn  func(*docstore.Document)
		doc *docstore.Document
	}
	type queryDelivery struct {
		fn   docstore.SnapshotFunc
		snap docstore.Snapshot
	}

	var docs []docDelivery
	var queries []queryDelivery

	var current *docstore.Document
	if doc, exists := s.documents[path]; exists {
		current = cloneDoc(doc)
	}
	for _, w := range s.docWatchers[path] {
		if !w.cancelled {
			docs = append(docs, docDelivery{fn: w.fn, doc: current})
		}
	}

	parent := parentOf(path)
	for _, w := range s.queryWatchers {
		if w.cancelled || w.query.Collection != parent {
			continue
		}
		queries = append(queries, queryDelivery{fn: w.onSnapshot, snap: s.evaluate(w.query)})
	}

	return func() {
		for _, d := range docs {
			d.fn(d.doc)
		}
		for _, q := range queries {
			q.fn(q.snap)
		}
	}
}

// evaluate computes the current snapshot for a query. Lock must be held.
func (s *Store) evaluate(q docstore.Query) docstore.Snapshot {
	var snap docstore.Snapshot
	for path, doc := range s.documents {
		if parentOf(path) != q.Collection {
			continue
		}
		if !q.Matches(doc.Data) {
			continue
		}
		snap = append(snap, *cloneDoc(doc))
	}

	if q.OrderBy != "" {
		sort.SliceStable(snap, func(i, j int) bool {
			c := compareValues(snap[i].Data[q.OrderBy], snap[j].Data[q.OrderBy])
			if c == 0 {
				return snap[i].Path < snap[j].Path
			}
			if q.Descending {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Limit > 0 && len(snap) > q.Limit {
		snap = snap[:q.Limit]
	}
	return snap
}

func (s *Store) removeDocWatcher(path string, target *docWatcher) {
	watchers := s.docWatchers[path]
	for i, w := range watchers {
		if w == target {
			s.docWatchers[path] = append(watchers[:i], watchers[i+1:]...)
			break
		}
	}
	if len(s.docWatchers[path]) == 0 {
		delete(s.docWatchers, path)
	}
}

func (s *Store) removeQueryWatcher(target *queryWatcher) {
	for i, w := range s.queryWatchers {
		if w == target {
			s.queryWatchers = append(s.queryWatchers[:i], s.queryWatchers[i+1:]...)
			break
		}
	}
}

func parentOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

func cloneDoc(doc *docstore.Document) *docstore.Document {
	return &docstore.Document{
		Path:      doc.Path,
		Data:      cloneData(doc.Data),
		UpdatedAt: doc.UpdatedAt,
	}
}

func cloneData(data map[string]any) map[string]any {
	clone := make(map[string]any, len(data))
	for k, v := range data {
		clone[k] = v
	}
	return clone
}

// compareValues orders two field values of the same dynamic type. Unknown
// or mismatched types compare equal, leaving path order as the tiebreak.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			switch {
			case av.Before(bv):
				return -1
			case av.After(bv):
				return 1
			}
		}
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv)
		}
	case int:
		if bv, ok := b.(int); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
		}
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
		}
	}
	return 0
}
