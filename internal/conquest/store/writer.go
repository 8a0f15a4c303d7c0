package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/extract"
	"github.com/dicomtk/conquestdb/internal/conquest/schema"
)

// WriteMode selects the writer's behavior for rows whose identifying key
// already exists.
type WriteMode int

const (
	// InsertMissing skips existing records. Existing image records get
	// their timestamp refreshed so a rewrite of the same object is still
	// visible.
	InsertMissing WriteMode = iota
	// Recompute replaces existing records with the freshly extracted
	// values, including the derived columns.
	Recompute
)

// WriteResult counts the per-row outcomes of one write.
type WriteResult struct {
	Inserted int
	Updated  int
	Skipped  int
}

// WriteRows writes all rows extracted from one object inside a single
// transaction, so a partially extracted object never becomes half visible
// across the tables. A storage failure rolls the whole object back.
func (c *Catalog) WriteRows(ctx context.Context, rows []extract.Row, mode WriteMode) (WriteResult, apperrors.Error) {
	var res WriteResult
	if len(rows) == 0 {
		return res, nil
	}

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return res, cqerror.ErrDatabase.Err(err)
	}
	defer conn.Close(ctx)

	// column creation is additive DDL and stays outside the row transaction
	for _, row := range rows {
		names, kinds := rowColumns(row)
		if aerr := c.ensureColumns(ctx, conn.Conn(), row.Table, names, kinds); aerr != nil {
			return res, aerr
		}
	}

	tx, err := conn.Conn().BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to start transaction")
		return res, cqerror.ErrDatabase.Err(err)
	}
	committed := false
	defer func() {
		if !committed {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				log.Ctx(ctx).Error().Err(rollbackErr).Msg("failed to rollback transaction")
			}
		}
	}()

	for _, row := range rows {
		outcome, aerr := c.writeRow(ctx, tx, row, mode)
		if aerr != nil {
			return WriteResult{}, aerr
		}
		switch outcome {
		case rowInserted:
			res.Inserted++
		case rowUpdated:
			res.Updated++
		default:
			res.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to commit transaction")
		return WriteResult{}, cqerror.ErrDatabase.Err(err)
	}
	committed = true
	return res, nil
}

type rowOutcome int

const (
	rowInserted rowOutcome = iota
	rowUpdated
	rowSkipped
)

func (c *Catalog) writeRow(ctx context.Context, tx *sql.Tx, row extract.Row, mode WriteMode) (rowOutcome, apperrors.Error) {
	keyColumn := schema.KeyColumn(row.Table)
	if keyColumn == "" {
		return rowSkipped, cqerror.ErrInvalidInput.Msg("table has no identifying key: " + row.Table)
	}

	exists, aerr := recordExists(ctx, tx, row.Table, keyColumn, row.Key)
	if aerr != nil {
		return rowSkipped, aerr
	}

	if exists {
		if mode == InsertMissing {
			if row.Table == schema.TableImages {
				if aerr := refreshTimestamp(ctx, tx, keyColumn, row.Key); aerr != nil {
					return rowSkipped, aerr
				}
			}
			return rowSkipped, nil
		}
		// recompute: replace the record wholesale so stale derived
		// columns never linger
		if aerr := deleteByKey(ctx, tx, row.Table, keyColumn, row.Key); aerr != nil {
			return rowSkipped, aerr
		}
		if aerr := insertRow(ctx, tx, row); aerr != nil {
			return rowSkipped, aerr
		}
		return rowUpdated, nil
	}

	if aerr := insertRow(ctx, tx, row); aerr != nil {
		return rowSkipped, aerr
	}
	return rowInserted, nil
}

func recordExists(ctx context.Context, tx *sql.Tx, table, keyColumn, key string) (bool, apperrors.Error) {
	qTable, err := quoteIdent(table)
	if err != nil {
		return false, cqerror.ErrInvalidInput.Err(err)
	}
	qKey, err := quoteIdent(keyColumn)
	if err != nil {
		return false, cqerror.ErrInvalidInput.Err(err)
	}
	row := tx.QueryRowContext(ctx, "SELECT 1 FROM "+qTable+" WHERE "+qKey+" = ? LIMIT 1", strings.TrimSpace(key))
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, cqerror.ErrDatabase.Err(err)
	}
	return true, nil
}

func refreshTimestamp(ctx context.Context, tx *sql.Tx, keyColumn, key string) apperrors.Error {
	qKey, err := quoteIdent(keyColumn)
	if err != nil {
		return cqerror.ErrInvalidInput.Err(err)
	}
	ts := float64(time.Now().UnixNano()) / 1e9
	_, err = tx.ExecContext(ctx,
		`UPDATE DICOMimages SET DatabaseTimeStamp = ? WHERE `+qKey+` = ?`, ts, key)
	if err != nil {
		return cqerror.ErrDatabase.Err(err)
	}
	return nil
}

func deleteByKey(ctx context.Context, tx *sql.Tx, table, keyColumn, key string) apperrors.Error {
	qTable, err := quoteIdent(table)
	if err != nil {
		return cqerror.ErrInvalidInput.Err(err)
	}
	qKey, err := quoteIdent(keyColumn)
	if err != nil {
		return cqerror.ErrInvalidInput.Err(err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+qTable+" WHERE "+qKey+" = ?", key); err != nil {
		return cqerror.ErrDatabase.Err(err)
	}
	return nil
}

func insertRow(ctx context.Context, tx *sql.Tx, row extract.Row) apperrors.Error {
	names := make([]string, 0, len(row.Columns))
	placeholders := make([]string, 0, len(row.Columns))
	args := make([]any, 0, len(row.Columns))
	for _, col := range row.Columns {
		qName, err := quoteIdent(col.Name)
		if err != nil {
			return cqerror.ErrInvalidInput.Err(err)
		}
		names = append(names, qName)
		placeholders = append(placeholders, "?")
		args = append(args, col.Value.Arg())
	}

	qTable, err := quoteIdent(row.Table)
	if err != nil {
		return cqerror.ErrInvalidInput.Err(err)
	}
	stmt := "INSERT INTO " + qTable + " (" + strings.Join(names, ",") + ") VALUES (" + strings.Join(placeholders, ",") + ")"
	if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("table", row.Table).Str("key", row.Key).Msg("failed to insert record")
		return cqerror.ErrDatabase.Err(err)
	}
	return nil
}

func rowColumns(row extract.Row) ([]string, map[string]schema.ValueKind) {
	names := make([]string, 0, len(row.Columns))
	kinds := make(map[string]schema.ValueKind, len(row.Columns))
	for _, col := range row.Columns {
		names = append(names, col.Name)
		kinds[col.Name] = col.Value.Kind
	}
	return names, kinds
}
