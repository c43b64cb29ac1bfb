package entitystore

import (
	"context"
	"encoding/base64"

	"go.etcd.io/bbolt"

	"github.com/jacentio/lattice/store"
)

// ScanItems runs one page of the cross-key-table scan. The entity store has
// no server-side filtering, so the coupling is evaluated client-side after
// the fetch; pages can be shorter than requested while data remains.
func (s *Store) ScanItems(ctx context.Context, table string, q store.ScanQuery) (*store.Page, error) {
	return store.ScanPage(ctx, segments{s}, table, q)
}

type segments struct {
	s *Store
}

func (g segments) ListKeyTables(ctx context.Context, table string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.s.listKeyTables(table)
}

// ScanSegment walks one key-table bucket in byte order of its canonical
// keys. The backend token is the last scanned bucket key, base64-armored so
// it never collides with the cursor framing.
func (g segments) ScanSegment(ctx context.Context, keyTable, token string, limit int, filter *store.Coupling) ([]store.Document, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	var after []byte
	if token != "" {
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			return nil, "", store.WrapError(store.StatusInvalidArgument, "undecodable scan position", err)
		}
		after = raw
	}

	var items []store.Document
	var last []byte
	exhausted := true
	err := g.s.db.View(func(tx *bbolt.Tx) error {
		b, err := tableBucket(tx, keyTable)
		if err != nil {
			return err
		}
		c := b.Cursor()
		k, v := c.First()
		if after != nil {
			k, v = c.Seek(after)
			if k != nil && string(k) == string(after) {
				k, v = c.Next()
			}
		}
		for ; k != nil; k, v = c.Next() {
			if len(items) == limit {
				exhausted = false
				return nil
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			if filter.Matches(rec.Doc) {
				items = append(items, rec.Doc)
			}
			last = append(last[:0], k...)
		}
		return nil
	})
	if err != nil {
		if _, ok := err.(*store.Error); ok {
			return nil, "", err
		}
		return nil, "", mapBoltErr(err)
	}

	next := ""
	if !exhausted {
		next = base64.RawURLEncoding.EncodeToString(last)
	}
	return items, next, nil
}
