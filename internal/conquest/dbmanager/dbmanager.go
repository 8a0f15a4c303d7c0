// Package dbmanager manages the sqlite connection pool backing the catalog.
// Callers obtain short-lived connections scoped to one unit of work and
// return them to the pool when done.
package dbmanager

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
)

// CatalogDb is the catalog database handle. It hands out connections and
// owns the underlying pool.
type CatalogDb interface {
	// Conn returns a new connection to the database.
	Conn(ctx context.Context) (CatalogConn, error)
	// Stats returns the number of connection requests and returns.
	Stats() (requests, returns uint64)
	// Close releases the pool. Outstanding connections are invalidated.
	Close() error
}

// CatalogConn is a single checked-out database connection. It is not safe
// for concurrent use; each unit of work takes its own connection.
type CatalogConn interface {
	// Conn returns the underlying *sql.Conn. Do not close it directly;
	// use Close(ctx) so the pool's accounting stays correct.
	Conn() *sql.Conn
	// Close returns the connection to the pool.
	Close(ctx context.Context)
}

// NewCatalogDb opens the catalog database of the given type. Only "sqlite"
// is supported.
func NewCatalogDb(ctx context.Context, dbtype, path string) CatalogDb {
	switch dbtype {
	case "sqlite":
		db, err := NewSqliteDb(path)
		if err != nil || db == nil {
			log.Ctx(ctx).Error().Err(err).Str("path", path).Msg("failed to open sqlite catalog")
			return nil
		}
		return db
	}
	return nil
}
