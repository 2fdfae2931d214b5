// Package postgres implements docstore.Store on PostgreSQL. Documents live
// in a single table keyed by path; the live change feed is built on
// LISTEN/NOTIFY, with a trigger notifying the affected path on every write.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/collabhq/portal/internal/docstore"
	"github.com/collabhq/portal/internal/fault"
	"github.com/collabhq/portal/internal/retry"
)

// Store implements docstore.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	cfg  *Config

	mu            sync.Mutex
	docWatchers   map[string][]*docWatcher
	queryWatchers []*queryWatcher
	closed        bool

	cancelListen context.CancelFunc
	listenDone   chan struct{}
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

// NewStore creates a PostgreSQL-backed document store. Call Start to open
// the change feed before subscribing.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	pool, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := runMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &Store{
		pool:        pool,
		cfg:         cfg,
		docWatchers: make(map[string][]*docWatcher),
	}, nil
}

// Start opens the LISTEN connection and begins dispatching change
// notifications to subscribers.
func (s *Store) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelListen = cancel
	s.listenDone = make(chan struct{})

	go s.listenLoop(ctx)
	return nil
}

// Stop tears down the change feed and closes the pool.
func (s *Store) Stop() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.cancelListen != nil {
		s.cancelListen()
		<-s.listenDone
	}
	s.pool.Close()
}

// GetDocument returns the document at path.
func (s *Store) GetDocument(ctx context.Context, path string) (*docstore.Document, error) {
	var raw []byte
	var updatedAt time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT data, updated_at FROM documents WHERE path = $1`, path,
	).Scan(&raw, &updatedAt)
	if err != nil {
		return nil, mapError("docstore.get", err)
	}

	data := make(map[string]any)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, mapError("docstore.get", err)
	}

	return &docstore.Document{Path: path, Data: data, UpdatedAt: updatedAt}, nil
}

// WriteDocument upserts the full document at path. Last write wins. The
// documents_notify trigger fans the change out to listeners.
func (s *Store) WriteDocument(ctx context.Context, path string, data map[string]any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return mapError("docstore.write", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (path, parent, data, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`, path, parentOf(path), raw)
	if err != nil {
		return mapError("docstore.write", err)
	}

	log.Debug().Str("path", path).Msg("Wrote document")
	return nil
}

// DeleteDocument removes the document at path. Missing documents are not an
// error.
func (s *Store) DeleteDocument(ctx context.Context, path string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE path = $1`, path)
	if err != nil {
		return mapError("docstore.delete", err)
	}
	return nil
}

// SubscribeToDocument registers a watcher for path and delivers the current
// document (nil if absent) before returning.
func (s *Store) SubscribeToDocument(ctx context.Context, path string, fn func(*docstore.Document), onError docstore.ErrorFunc) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, mapError("docstore.subscribe", docstore.ErrStoreClosed)
	}
	w := &docWatcher{path: path, fn: fn, onError: onError}
	s.docWatchers[path] = append(s.docWatchers[path], w)
	s.mu.Unlock()

	doc, err := s.GetDocument(ctx, path)
	if err == nil {
		fn(doc)
	} else {
		fn(nil)
	}

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
	if s.closed {
		s.mu.Unlock()
		return nil, mapError("docstore.subscribe", docstore.ErrStoreClosed)
	}
	w := &queryWatcher{query: q, onSnapshot: onSnapshot, onError: onError}
	s.queryWatchers = append(s.queryWatchers, w)
	s.mu.Unlock()

	snap, err := s.evaluate(ctx, q)
	if err != nil {
		s.mu.Lock()
		s.removeQueryWatcher(w)
		s.mu.Unlock()
		return nil, err
	}
	onSnapshot(snap)

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		w.cancelled = true
		s.removeQueryWatcher(w)
	}
	return cancel, nil
}

// evaluate runs the query against the documents table. Timestamps are
// stored as RFC 3339 strings inside the JSONB payload, so text ordering on
// the extracted field is chronological.
func (s *Store) evaluate(ctx context.Context, q docstore.Query) (docstore.Snapshot, error) {
	sql := `SELECT path, data, updated_at FROM documents WHERE parent = $1`
	args := []any{q.Collection}

	if len(q.Filters) > 0 {
		filters := make(map[string]any, len(q.Filters))
		for _, f := range q.Filters {
			filters[f.Field] = f.Value
		}
		raw, err := json.Marshal(filters)
		if err != nil {
			return nil, mapError("docstore.query", err)
		}
		args = append(args, raw)
		sql += fmt.Sprintf(` AND data @> $%d::jsonb`, len(args))
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		args = append(args, q.OrderBy)
		sql += fmt.Sprintf(` ORDER BY data->>$%d %s, path`, len(args), dir)
	}

	if q.Limit > 0 {
		sql += fmt.Sprintf(` LIMIT %d`, q.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError("docstore.query", err)
	}
	defer rows.Close()

	var snap docstore.Snapshot
	for rows.Next() {
		var path string
		var raw []byte
		var updatedAt time.Time
		if err := rows.Scan(&path, &raw, &updatedAt); err != nil {
			return nil, mapError("docstore.query", err)
		}
		data := make(map[string]any)
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, mapError("docstore.query", err)
		}
		snap = append(snap, docstore.Document{Path: path, Data: data, UpdatedAt: updatedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("docstore.query", err)
	}
	return snap, nil
}

// listenLoop holds a dedicated connection on the NOTIFY channel and
// dispatches change notifications. Connection loss is retried with backoff.
func (s *Store) listenLoop(ctx context.Context) {
	defer close(s.listenDone)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := retry.Do(ctx, func() (*pgxpool.Conn, error) {
			c, err := s.pool.Acquire(ctx)
			if err != nil {
				return nil, err
			}
			if _, err := c.Exec(ctx, `LISTEN `+pgx.Identifier{s.cfg.ChannelName}.Sanitize()); err != nil {
				c.Release()
				return nil, err
			}
			return c, nil
		}, retry.Options{MaxAttempts: 5, InitialDelay: 500 * time.Millisecond})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("Change feed listener could not connect, giving up")
			return
		}

		log.Debug().Str("channel", s.cfg.ChannelName).Msg("Change feed listener attached")

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				conn.Release()
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Msg("Change feed connection lost, reconnecting")
				break
			}
			s.dispatch(ctx, n.Payload)
		}
	}
}

// dispatch re-evaluates subscriptions affected by a change at path and
// delivers fresh results. Failure of one watcher's evaluation is delivered
// to that watcher only.
func (s *Store) dispatch(ctx context.Context, path string) {
	parent := parentOf(path)

	s.mu.Lock()
	var docs []*docWatcher
	for _, w := range s.docWatchers[path] {
		if !w.cancelled {
			docs = append(docs, w)
		}
	}
	var queries []*queryWatcher
	for _, w := range s.queryWatchers {
		if !w.cancelled && w.query.Collection == parent {
			queries = append(queries, w)
		}
	}
	s.mu.Unlock()

	if len(docs) > 0 {
		doc, err := s.GetDocument(ctx, path)
		if err != nil && !fault.IsNotFound(err) {
			for _, w := range docs {
				if w.onError != nil {
					w.onError(err)
				}
			}
		} else {
			for _, w := range docs {
				w.fn(doc)
			}
		}
	}

	for _, w := range queries {
		snap, err := s.evaluate(ctx, w.query)
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}
			continue
		}
		w.onSnapshot(snap)
	}
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
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return ""
}
