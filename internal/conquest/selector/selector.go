// Package selector resolves a caller-supplied selection, a single series
// key, a list of keys, or a free-form query, into an ordered set of catalog
// keys. Every bulk operation consumes a SelectionSet; none of them branch on
// how the selection was specified.
package selector

import (
	"context"
	"fmt"
	"strings"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
	"github.com/dicomtk/conquestdb/internal/conquest/cqerror"
	"github.com/dicomtk/conquestdb/internal/conquest/store"
)

// KeyKind tells the consumer which identifying column the keys belong to.
type KeyKind int

const (
	SeriesKeys KeyKind = iota
	ImageKeys
)

func (k KeyKind) String() string {
	if k == ImageKeys {
		return "image"
	}
	return "series"
}

type variant int

const (
	variantNone variant = iota
	variantKey
	variantKeys
	variantQuery
)

// Spec is the selection sum type. Construct it with ByKey, ByKeys or
// ByQuery; the zero value resolves to an error.
type Spec struct {
	kind  variant
	key   string
	keys  []string
	query string
	args  []any
}

// ByKey selects a single series by its SeriesInstanceUID.
func ByKey(seriesUID string) Spec {
	return Spec{kind: variantKey, key: seriesUID}
}

// ByKeys selects a list of series keys. Order is preserved; duplicates keep
// their first position.
func ByKeys(seriesUIDs []string) Spec {
	return Spec{kind: variantKeys, keys: seriesUIDs}
}

// ByQuery selects through an arbitrary SQL query. The projection must
// include a SeriesInst or SOPInstanc column (matched case-insensitively);
// otherwise resolution fails before any operation runs.
func ByQuery(query string, args ...any) Spec {
	return Spec{kind: variantQuery, query: query, args: args}
}

func (s Spec) String() string {
	switch s.kind {
	case variantKey:
		return fmt.Sprintf("key %q", s.key)
	case variantKeys:
		return fmt.Sprintf("%d keys", len(s.keys))
	case variantQuery:
		return fmt.Sprintf("query %q", s.query)
	}
	return "empty selection"
}

// SelectionSet is the resolved selection: ordered, deduplicated, immutable
// for the duration of the operation that consumes it.
type SelectionSet struct {
	Kind KeyKind
	Keys []string
}

// Resolve evaluates the spec against the catalog exactly once. Keys given
// literally pass through whether or not they exist; a query selection fails
// fast when its projection carries no recognized key column.
func Resolve(ctx context.Context, c *store.Catalog, spec Spec) (SelectionSet, apperrors.Error) {
	switch spec.kind {
	case variantKey:
		if strings.TrimSpace(spec.key) == "" {
			return SelectionSet{}, cqerror.ErrBadSelection.Msg("empty series key")
		}
		return SelectionSet{Kind: SeriesKeys, Keys: []string{spec.key}}, nil
	case variantKeys:
		return SelectionSet{Kind: SeriesKeys, Keys: dedup(spec.keys)}, nil
	case variantQuery:
		return resolveQuery(ctx, c, spec)
	}
	return SelectionSet{}, cqerror.ErrBadSelection.Msg("no selection given")
}

func resolveQuery(ctx context.Context, c *store.Catalog, spec Spec) (SelectionSet, apperrors.Error) {
	records, cols, err := c.Query(ctx, spec.query, spec.args...)
	if err != nil {
		return SelectionSet{}, err
	}
	kind := SeriesKeys
	col, ok := store.MatchColumn(cols, "SeriesInst")
	if !ok {
		col, ok = store.MatchColumn(cols, "SOPInstanc")
		kind = ImageKeys
	}
	if !ok {
		return SelectionSet{}, cqerror.ErrBadSelection.Msg(
			"query projects neither SeriesInst nor SOPInstanc")
	}
	keys := make([]string, 0, len(records))
	for _, rec := range records {
		if v := keyString(rec[col]); v != "" {
			keys = append(keys, v)
		}
	}
	return SelectionSet{Kind: kind, Keys: dedup(keys)}, nil
}

func dedup(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func keyString(v any) string {
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
