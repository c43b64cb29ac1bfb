package entitystore

import (
	"context"
	"strings"

	"go.etcd.io/bbolt"

	"github.com/jacentio/lattice/store"
)

// kindByte is the catalog encoding of a key value kind.
func kindByte(k store.Kind) byte {
	switch k {
	case store.KindString:
		return 's'
	case store.KindInteger:
		return 'i'
	default:
		return 'd'
	}
}

func kindFromByte(b byte) store.Kind {
	switch b {
	case 's':
		return store.KindString
	case 'i':
		return store.KindInteger
	default:
		return store.KindDouble
	}
}

// resolve returns the physical key-table for (table, key), creating its
// bucket and catalog entry on first use. The catalog records the exact key
// kind, so an integer key-table rejects double keys with a conflict.
func (s *Store) resolve(ctx context.Context, table string, key store.Key) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := key.Validate(); err != nil {
		return "", err
	}
	phys := store.PhysicalTableName(table, key.Name)
	kind := key.Kind()

	s.mu.RLock()
	got, ok := s.kinds[phys]
	s.mu.RUnlock()
	if ok {
		if got != kind {
			return "", conflictErr(phys, got, kind)
		}
		return phys, nil
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		catalog := tx.Bucket(catalogBucket)
		if raw := catalog.Get([]byte(phys)); raw != nil {
			if existing := kindFromByte(raw[0]); existing != kind {
				return conflictErr(phys, existing, kind)
			}
			return nil
		}
		s.config.Logger.Info("creating key-table", "table", phys, "keyType", kind.String())
		if err := catalog.Put([]byte(phys), []byte{kindByte(kind)}); err != nil {
			return err
		}
		_, err := tx.Bucket(dataBucket).CreateBucketIfNotExists([]byte(phys))
		return err
	})
	if err != nil {
		if store.StatusOf(err) == store.StatusConflict {
			return "", err
		}
		return "", mapBoltErr(err)
	}

	s.mu.Lock()
	s.kinds[phys] = kind
	s.mu.Unlock()
	return phys, nil
}

func conflictErr(phys string, existing, requested store.Kind) error {
	return store.Errorf(store.StatusConflict,
		"key-table %s is keyed by %s values, not %s", phys, existing, requested)
}

// DropKeyTable removes one key-table, its catalog entry and all its items.
func (s *Store) DropKeyTable(ctx context.Context, table, keyName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	phys := store.PhysicalTableName(table, keyName)
	s.mu.Lock()
	delete(s.kinds, phys)
	s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		catalog := tx.Bucket(catalogBucket)
		if catalog.Get([]byte(phys)) == nil {
			return store.Errorf(store.StatusNotFound, "key-table %s not found", phys)
		}
		if err := catalog.Delete([]byte(phys)); err != nil {
			return err
		}
		return tx.Bucket(dataBucket).DeleteBucket([]byte(phys))
	})
	if err != nil {
		if store.StatusOf(err) == store.StatusNotFound {
			return err
		}
		return mapBoltErr(err)
	}
	return nil
}

// listKeyTables enumerates the catalog for one logical table. Key names
// never contain "-", so a remainder with a dash belongs to a longer logical
// table name, not to this table.
func (s *Store) listKeyTables(table string) ([]string, error) {
	prefix := []byte(table + "-")
	var names []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(catalogBucket).Cursor()
		for k, _ := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, _ = c.Next() {
			if strings.Contains(string(k[len(prefix):]), "-") {
				continue
			}
			names = append(names, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, mapBoltErr(err)
	}
	return names, nil
}
