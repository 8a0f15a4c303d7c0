package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
)

// Query executes an arbitrary SQL query against the catalog and returns the
// rows as column-name keyed maps, plus the projected column names in query
// order. This is the generic read surface the selector and the reporting
// wrappers are built on.
func (c *Catalog) Query(ctx context.Context, query string, args ...any) ([]map[string]any, []string, apperrors.Error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, nil, cqerror.ErrDatabase.Err(err)
	}
	defer conn.Close(ctx)

	rows, err := conn.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, cqerror.ErrDatabase.MsgErr("query failed", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, cqerror.ErrDatabase.Err(err)
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, cqerror.ErrDatabase.Err(err)
		}
		record := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[col] = v
		}
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, cqerror.ErrDatabase.Err(err)
	}
	return result, cols, nil
}

// QueryColumn executes a query and returns one projected column as strings.
// The column match is case-insensitive.
func (c *Catalog) QueryColumn(ctx context.Context, query, column string, args ...any) ([]string, apperrors.Error) {
	records, cols, aerr := c.Query(ctx, query, args...)
	if aerr != nil {
		return nil, aerr
	}
	name, ok := MatchColumn(cols, column)
	if !ok {
		return nil, cqerror.ErrInvalidInput.Msg(fmt.Sprintf("query does not project column %q", column))
	}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, valueToString(rec[name]))
	}
	return out, nil
}

// Exec executes a statement and returns the number of affected rows.
func (c *Catalog) Exec(ctx context.Context, stmt string, args ...any) (int64, apperrors.Error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return 0, cqerror.ErrDatabase.Err(err)
	}
	defer conn.Close(ctx)

	res, err := conn.Conn().ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, cqerror.ErrDatabase.MsgErr("statement failed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, cqerror.ErrDatabase.Err(err)
	}
	return n, nil
}

// HasKey reports whether a record with the given key value exists.
func (c *Catalog) HasKey(ctx context.Context, table, column, value string) (bool, apperrors.Error) {
	qTable, err := quoteIdent(table)
	if err != nil {
		return false, cqerror.ErrInvalidInput.Err(err)
	}
	qCol, err := quoteIdent(column)
	if err != nil {
		return false, cqerror.ErrInvalidInput.Err(err)
	}

	conn, cerr := c.db.Conn(ctx)
	if cerr != nil {
		return false, cqerror.ErrDatabase.Err(cerr)
	}
	defer conn.Close(ctx)

	row := conn.Conn().QueryRowContext(ctx,
		"SELECT 1 FROM "+qTable+" WHERE "+qCol+" = ? LIMIT 1", value)
	var one int
	if err := row.Scan(&one); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, cqerror.ErrDatabase.Err(err)
	}
	return true, nil
}

// MatchColumn finds a projected column by case-insensitive name and returns
// its exact spelling.
func MatchColumn(cols []string, want string) (string, bool) {
	for _, col := range cols {
		if strings.EqualFold(col, want) {
			return col, true
		}
	}
	return "", false
}

func valueToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
