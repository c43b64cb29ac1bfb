package store

import (
	"context"
	"sort"

	"github.com/jacentio/lattice/internal/cursor"
)

// Segments is the per-backend data source driving the shared pagination
// engine. Implementations scan one key-table at a time; the engine owns
// ordering, page assembly and cursor integrity.
type Segments interface {
	// ListKeyTables returns the physical key-table names of a logical
	// table, in any order. An unknown table returns an empty list.
	ListKeyTables(ctx context.Context, table string) ([]string, error)

	// ScanSegment reads up to limit matching items from one key-table,
	// resuming after token (empty means the start). It returns the next
	// backend token, empty once the key-table is exhausted. The filter is
	// applied server-side where supported, so fewer than limit items with a
	// non-empty token is a valid outcome.
	ScanSegment(ctx context.Context, keyTable, token string, limit int, filter *Coupling) ([]Document, string, error)
}

// ScanPage runs one page of the cross-key-table scan: key-tables in fixed
// lexicographic order, a backend-native position inside the current one,
// and an integrity-checked resumable cursor. Backends implement
// Store.ScanItems by delegating here.
func ScanPage(ctx context.Context, src Segments, table string, q ScanQuery) (*Page, error) {
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}

	names, err := src.ListKeyTables(ctx, table)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	hash := cursor.ListHash(names)

	idx, token := 0, ""
	if q.Cursor != "" {
		tok, err := cursor.Decode(q.Cursor)
		if err != nil {
			return nil, WrapError(StatusInvalidArgument, "undecodable pagination cursor", err)
		}
		if tok.ListHash != hash {
			return nil, NewError(StatusInvalidArgument,
				"stale pagination cursor: the table's key-tables changed since it was issued")
		}
		idx = sort.SearchStrings(names, tok.KeyTable)
		if idx >= len(names) || names[idx] != tok.KeyTable {
			return nil, NewError(StatusInvalidArgument, "pagination cursor references an unknown key-table")
		}
		token = tok.Backend
	}

	page := &Page{}
	for idx < len(names) {
		if len(page.Items) == q.PageSize {
			page.Cursor = cursor.Encode(names[idx], token, hash)
			return page, nil
		}
		items, next, err := src.ScanSegment(ctx, names[idx], token, q.PageSize-len(page.Items), q.Filter)
		if err != nil {
			return nil, err
		}
		page.Items = append(page.Items, items...)
		if next == "" {
			idx++
			token = ""
			continue
		}
		token = next
	}
	return page, nil
}
