// Package store persists the catalog in an embedded sqlite database laid out
// conquest style: four hierarchy tables plus a worklist table, two joined
// views, and non-unique indexes on the identifying key columns. Table and
// column creation is driven entirely by the loaded schema; columns the
// persisted tables do not yet have are added lazily when a row first uses
// them.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/dbmanager"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
)

// Catalog is one open catalog database. Multiple catalogs may be open at the
// same time; nothing is shared between instances.
type Catalog struct {
	db     dbmanager.CatalogDb
	schema *schema.TableSchema

	mu      sync.Mutex
	columns map[string]map[string]bool // persisted columns per table, lowercased
}

var validIdentRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// quoteIdent validates and quotes a SQL identifier. Dashes are folded to
// underscores first, the conquest rendering of tag-derived names.
func quoteIdent(name string) (string, error) {
	name = strings.ReplaceAll(name, "-", "_")
	if !validIdentRegex.MatchString(name) {
		return "", fmt.Errorf("invalid identifier: %q", name)
	}
	return `"` + name + `"`, nil
}

// Open opens (or creates) the catalog at dbPath. An empty database gets its
// tables, views and indexes created from the schema right away.
func Open(ctx context.Context, dbPath string, s *schema.TableSchema) (*Catalog, apperrors.Error) {
	db := dbmanager.NewCatalogDb(ctx, "sqlite", dbPath)
	if db == nil {
		return nil, cqerror.ErrDatabase.Msg("failed to open catalog database")
	}

	c := &Catalog{
		db:      db,
		schema:  s,
		columns: map[string]map[string]bool{},
	}

	empty, err := c.isEmpty(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if empty {
		log.Ctx(ctx).Info().Str("path", dbPath).Msg("creating catalog tables in empty database")
		if err := c.CreateTables(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return c, nil
}

// Close releases the catalog's database pool.
func (c *Catalog) Close(ctx context.Context) {
	if err := c.db.Close(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to close catalog database")
	}
}

// Schema returns the schema the catalog was opened with.
func (c *Catalog) Schema() *schema.TableSchema {
	return c.schema
}

func (c *Catalog) isEmpty(ctx context.Context) (bool, apperrors.Error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return false, cqerror.ErrDatabase.Err(err)
	}
	defer conn.Close(ctx)

	row := conn.Conn().QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, schema.TableSeries)
	var name string
	if err := row.Scan(&name); err != nil {
		if err == sql.ErrNoRows {
			return true, nil
		}
		return false, cqerror.ErrDatabase.Err(err)
	}
	return false, nil
}

// CreateTables destroys and recreates every schema table, then the views and
// indexes. Used on first open and by forced rebuilds from scratch.
func (c *Catalog) CreateTables(ctx context.Context) apperrors.Error {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return cqerror.ErrDatabase.Err(err)
	}
	defer conn.Close(ctx)

	for _, table := range c.schema.Tables() {
		if err := c.createTable(ctx, conn.Conn(), table); err != nil {
			return err
		}
	}
	if err := c.createViews(ctx, conn.Conn()); err != nil {
		return err
	}
	if err := c.createIndexes(ctx, conn.Conn()); err != nil {
		return err
	}

	c.mu.Lock()
	c.columns = map[string]map[string]bool{}
	c.mu.Unlock()
	return nil
}

func (c *Catalog) createTable(ctx context.Context, conn *sql.Conn, table string) apperrors.Error {
	qTable, err := quoteIdent(table)
	if err != nil {
		return cqerror.ErrInvalidInput.Err(err)
	}

	var defs []string
	seen := map[string]bool{}
	appendCol := func(name string, kind schema.ValueKind) error {
		if seen[strings.ToLower(name)] {
			return nil
		}
		seen[strings.ToLower(name)] = true
		qName, err := quoteIdent(name)
		if err != nil {
			return err
		}
		defs = append(defs, qName+" "+columnType(kind))
		return nil
	}

	for _, d := range c.schema.Columns(table) {
		if err := appendCol(d.Column, d.Kind); err != nil {
			return cqerror.ErrInvalidInput.Err(err)
		}
	}
	if table == schema.TableImages {
		for _, name := range schema.ExtraImageColumns {
			if err := appendCol(name, extraColumnKind(name)); err != nil {
				return cqerror.ErrInvalidInput.Err(err)
			}
		}
	}

	if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+qTable); err != nil {
		return cqerror.ErrDatabase.MsgErr("failed to drop table "+table, err)
	}
	stmt := "CREATE TABLE " + qTable + " (" + strings.Join(defs, ", ") + ")"
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		return cqerror.ErrDatabase.MsgErr("failed to create table "+table, err)
	}
	return nil
}

// columnType maps a value kind to the column type used in DDL. Text columns
// keep the conquest varchar declaration for file-layout compatibility;
// sqlite treats it as TEXT affinity either way.
func columnType(kind schema.ValueKind) string {
	switch kind {
	case schema.KindInteger:
		return "integer"
	case schema.KindReal:
		return "real"
	case schema.KindBlob:
		return "blob"
	default:
		return "character varying(128)"
	}
}

func extraColumnKind(name string) schema.ValueKind {
	switch name {
	case "ElementCount":
		return schema.KindInteger
	case "DatabaseTimeStamp":
		return schema.KindReal
	default:
		return schema.KindText
	}
}

func (c *Catalog) createViews(ctx context.Context, conn *sql.Conn) apperrors.Error {
	vSeries := `
		CREATE VIEW v_series AS
		SELECT DICOMseries.*, DICOMstudies.*
		FROM DICOMseries
		INNER JOIN DICOMstudies ON DICOMseries.StudyInsta = DICOMstudies.StudyInsta`
	vSeriesRT := `
		CREATE VIEW v_seriesRT AS
		SELECT DICOMseries.*, DICOMstudies.*, DICOMimages.*
		FROM DICOMseries
		INNER JOIN DICOMstudies ON DICOMseries.StudyInsta = DICOMstudies.StudyInsta
		INNER JOIN DICOMimages ON DICOMimages.SeriesInst = DICOMseries.SeriesInst
		WHERE DICOMseries.Modality IN ('RTSTRUCT','RTDOSE','RTPLAN')`

	for _, stmt := range []struct{ drop, create string }{
		{"DROP VIEW IF EXISTS v_series", vSeries},
		{"DROP VIEW IF EXISTS v_seriesRT", vSeriesRT},
	} {
		if _, err := conn.ExecContext(ctx, stmt.drop); err != nil {
			return cqerror.ErrDatabase.Err(err)
		}
		if _, err := conn.ExecContext(ctx, stmt.create); err != nil {
			return cqerror.ErrDatabase.Err(err)
		}
	}
	return nil
}

// createIndexes adds the non-unique key indexes. They are deliberately
// non-unique so a duplicate-key race between the listener and a rebuild
// degrades to a duplicate row instead of a failed write.
func (c *Catalog) createIndexes(ctx context.Context, conn *sql.Conn) apperrors.Error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS index_dicomimages ON DICOMimages (SOPInstanc)`,
		`CREATE INDEX IF NOT EXISTS index_dicomseries ON DICOMseries (SeriesInst)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return cqerror.ErrDatabase.Err(err)
		}
	}
	return nil
}

// tableColumns returns the persisted column set of a table, loading it from
// the database on first use.
func (c *Catalog) tableColumns(ctx context.Context, conn *sql.Conn, table string) (map[string]bool, apperrors.Error) {
	c.mu.Lock()
	cols, ok := c.columns[table]
	c.mu.Unlock()
	if ok {
		return cols, nil
	}

	qTable, err := quoteIdent(table)
	if err != nil {
		return nil, cqerror.ErrInvalidInput.Err(err)
	}
	rows, err := conn.QueryContext(ctx, "PRAGMA table_info("+qTable+")")
	if err != nil {
		return nil, cqerror.ErrDatabase.Err(err)
	}
	defer rows.Close()

	cols = map[string]bool{}
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, cqerror.ErrDatabase.Err(err)
		}
		cols[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, cqerror.ErrDatabase.Err(err)
	}

	c.mu.Lock()
	c.columns[table] = cols
	c.mu.Unlock()
	return cols, nil
}

// ensureColumns adds any columns the persisted table is missing. Additive
// only; columns are never dropped.
func (c *Catalog) ensureColumns(ctx context.Context, conn *sql.Conn, table string, needed []string, kinds map[string]schema.ValueKind) apperrors.Error {
	cols, aerr := c.tableColumns(ctx, conn, table)
	if aerr != nil {
		return aerr
	}
	qTable, err := quoteIdent(table)
	if err != nil {
		return cqerror.ErrInvalidInput.Err(err)
	}

	for _, name := range needed {
		if cols[strings.ToLower(name)] {
			continue
		}
		qName, err := quoteIdent(name)
		if err != nil {
			return cqerror.ErrInvalidInput.Err(err)
		}
		kind := schema.KindText
		if k, ok := kinds[name]; ok {
			kind = k
		}
		stmt := "ALTER TABLE " + qTable + " ADD COLUMN " + qName + " " + columnType(kind)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return cqerror.ErrDatabase.MsgErr("failed to add column "+name+" to "+table, err)
		}
		log.Ctx(ctx).Info().Str("table", table).Str("column", name).Msg("added catalog column")

		c.mu.Lock()
		c.columns[table][strings.ToLower(name)] = true
		c.mu.Unlock()
	}
	return nil
}
