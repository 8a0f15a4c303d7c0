package dbmanager

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// sqliteConn represents one checked-out connection to the sqlite catalog.
type sqliteConn struct {
	conn   *sql.Conn
	cancel context.CancelFunc
	pool   *sqlitePool
}

// sqlitePool wraps the database/sql pool for the catalog file.
type sqlitePool struct {
	connRequests uint64
	connReturns  uint64
	db           *sql.DB
}

// NewSqliteDb opens (or creates) the sqlite catalog file at path. The pool
// is kept small: sqlite is single-writer and the catalog's transactions are
// short, so contention is resolved by busy_timeout rather than by queueing
// many connections.
func NewSqliteDb(path string) (CatalogDb, error) {
	if path == "" {
		return nil, fmt.Errorf("catalog database path is required")
	}

	dsn := "file:" + url.PathEscape(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to open catalog db")
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to ping catalog db")
		return nil, fmt.Errorf("failed to ping catalog database: %w", err)
	}

	return &sqlitePool{db: sqlDB}, nil
}

// Conn returns a new connection from the pool.
func (p *sqlitePool) Conn(ctx context.Context) (CatalogConn, error) {
	ctx, cancel := context.WithCancel(ctx)

	conn, err := p.db.Conn(ctx)
	if err != nil {
		cancel()
		log.Ctx(ctx).Error().Err(err).Msg("failed to obtain connection")
		return nil, fmt.Errorf("failed to obtain catalog connection: %w", err)
	}

	atomic.AddUint64(&p.connRequests, 1)
	return &sqliteConn{
		conn:   conn,
		cancel: cancel,
		pool:   p,
	}, nil
}

// Stats returns the number of connection requests and returns.
func (p *sqlitePool) Stats() (requests, returns uint64) {
	return atomic.LoadUint64(&p.connRequests), atomic.LoadUint64(&p.connReturns)
}

// Close releases the pool.
func (p *sqlitePool) Close() error {
	return p.db.Close()
}

// Conn returns the underlying connection.
func (h *sqliteConn) Conn() *sql.Conn {
	return h.conn
}

// Close returns the connection back to the pool.
func (h *sqliteConn) Close(ctx context.Context) {
	if h.conn == nil {
		return
	}
	h.conn.Close()
	if h.cancel != nil {
		h.cancel()
	}
	atomic.AddUint64(&h.pool.connReturns, 1)
}
