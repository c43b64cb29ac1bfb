package entitystore

import (
	"context"
	"errors"

	"go.etcd.io/bbolt"

	"github.com/jacentio/lattice/store"
)

// errVersionRace aborts an optimistic commit whose snapshot went stale.
var errVersionRace = errors.New("record version changed since snapshot")

// mutateRecord runs one mutation under optimistic concurrency: snapshot the
// record, let outcome decide the new state, then commit only if the stored
// version still matches the snapshot. A race aborts transiently and the
// configured retry policy re-runs the whole attempt; exhaustion surfaces as
// ErrTooMuchContention.
//
// outcome returns the next document (nil deletes the record) and whether a
// write is needed at all; precondition failures are returned as errors and
// stop the loop immediately.
func (s *Store) mutateRecord(ctx context.Context, phys string, key store.Key, outcome func(cur store.Document, exists bool) (store.Document, bool, error)) error {
	kb := keyBytes(key)
	return s.config.Retry.Do(ctx, func() error {
		var snapVer uint64
		var snapDoc store.Document
		var exists bool
		err := s.db.View(func(tx *bbolt.Tx) error {
			b, err := tableBucket(tx, phys)
			if err != nil {
				return err
			}
			raw := b.Get(kb)
			if raw == nil {
				return nil
			}
			rec, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			snapVer, snapDoc, exists = rec.Version, rec.Doc, true
			return nil
		})
		if err != nil {
			if _, ok := err.(*store.Error); ok {
				return err
			}
			return mapBoltErr(err)
		}

		next, write, err := outcome(snapDoc, exists)
		if err != nil {
			return err
		}
		if !write {
			return nil
		}

		err = s.db.Update(func(tx *bbolt.Tx) error {
			b, err := tableBucket(tx, phys)
			if err != nil {
				return err
			}
			var curVer uint64
			if raw := b.Get(kb); raw != nil {
				rec, err := decodeRecord(raw)
				if err != nil {
					return err
				}
				curVer = rec.Version
			}
			if curVer != snapVer {
				return errVersionRace
			}
			if next == nil {
				return b.Delete(kb)
			}
			enc, err := encodeRecord(record{Version: snapVer + 1, Doc: next})
			if err != nil {
				return err
			}
			return b.Put(kb, enc)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errVersionRace):
			s.config.Logger.Debug("optimistic commit aborted, retrying",
				"table", phys, "key", string(kb))
			return store.Transient(store.WrapError(store.StatusInternal, "optimistic commit aborted", err))
		default:
			if _, ok := err.(*store.Error); ok {
				return err
			}
			return mapBoltErr(err)
		}
	})
}

// PutItem writes doc as the full item state for key.
func (s *Store) PutItem(ctx context.Context, table string, key store.Key, doc store.Document, opts store.PutOptions) (*store.MutationResult, error) {
	if err := opts.Condition.Validate(); err != nil {
		return nil, err
	}
	phys, err := s.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}

	var res *store.MutationResult
	err = s.mutateRecord(ctx, phys, key, func(cur store.Document, exists bool) (store.Document, bool, error) {
		if exists && !opts.Overwrite {
			return nil, false, store.Errorf(store.StatusPreconditionFailed,
				"item already exists and overwrite is disabled")
		}
		if !opts.Condition.Matches(cur) {
			return nil, false, store.ErrPreconditionFailed
		}
		next := store.NormalizeDocument(doc.Clone())
		if next == nil {
			next = store.Document{}
		}
		next[key.Name] = store.Normalize(key.Value)

		res = &store.MutationResult{}
		switch opts.Return {
		case store.ReturnOld:
			res.Attributes = cur
		case store.ReturnNew:
			res.Attributes = next
		}
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// UpdateItem merges doc's attributes into the item, creating it when absent.
func (s *Store) UpdateItem(ctx context.Context, table string, key store.Key, doc store.Document, opts store.UpdateOptions) (*store.MutationResult, error) {
	if err := opts.Condition.Validate(); err != nil {
		return nil, err
	}
	_, keyOnly := doc[key.Name]
	if len(doc) == 0 || (len(doc) == 1 && keyOnly) {
		return nil, store.NewError(store.StatusInvalidArgument, "update carries no attributes")
	}
	phys, err := s.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}

	var res *store.MutationResult
	err = s.mutateRecord(ctx, phys, key, func(cur store.Document, exists bool) (store.Document, bool, error) {
		if !opts.Condition.Matches(cur) {
			return nil, false, store.ErrPreconditionFailed
		}
		next := cur.Clone()
		if next == nil {
			next = store.Document{}
		}
		for attr, v := range doc {
			if attr == key.Name {
				continue
			}
			next[attr] = store.Normalize(v)
		}
		next[key.Name] = store.Normalize(key.Value)

		res = &store.MutationResult{}
		switch opts.Return {
		case store.ReturnOld:
			res.Attributes = cur
		case store.ReturnNew:
			res.Attributes = next
		}
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteItem removes the item; deleting an absent item succeeds.
func (s *Store) DeleteItem(ctx context.Context, table string, key store.Key, opts store.DeleteOptions) (*store.MutationResult, error) {
	if err := opts.Condition.Validate(); err != nil {
		return nil, err
	}
	phys, err := s.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}

	var res *store.MutationResult
	err = s.mutateRecord(ctx, phys, key, func(cur store.Document, exists bool) (store.Document, bool, error) {
		if !opts.Condition.Matches(cur) {
			return nil, false, store.ErrPreconditionFailed
		}
		res = &store.MutationResult{}
		if !exists {
			return nil, false, nil
		}
		if opts.Return == store.ReturnOld {
			res.Attributes = cur
		}
		return nil, true, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// AddArrayElements appends elements to the array at attribute, creating it
// when absent, inside one optimistic commit.
func (s *Store) AddArrayElements(ctx context.Context, table string, key store.Key, attribute string, elements []any, ret store.ReturnBehavior) (*store.MutationResult, error) {
	if err := store.ValidateElements(elements); err != nil {
		return nil, err
	}
	phys, err := s.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}

	var res *store.MutationResult
	err = s.mutateRecord(ctx, phys, key, func(cur store.Document, exists bool) (store.Document, bool, error) {
		var arr []any
		if cur != nil {
			if v, present := cur[attribute]; present {
				a, ok := v.([]any)
				if !ok {
					return nil, false, store.Errorf(store.StatusPreconditionFailed,
						"attribute %q holds a %s, not an array", attribute, store.KindOf(v))
				}
				arr = a
			}
		}
		appended := make([]any, 0, len(arr)+len(elements))
		appended = append(appended, arr...)
		for _, el := range elements {
			appended = append(appended, store.Normalize(el))
		}

		next := cur.Clone()
		if next == nil {
			next = store.Document{}
		}
		next[attribute] = appended
		next[key.Name] = store.Normalize(key.Value)

		res = &store.MutationResult{}
		switch ret {
		case store.ReturnOld:
			if arr != nil {
				res.Attributes = store.Document{attribute: arr}
			}
		case store.ReturnNew:
			res.Attributes = store.Document{attribute: appended}
		}
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RemoveArrayElements deletes every element matching the removal set by
// canonical equality; an absent attribute is a no-op success.
func (s *Store) RemoveArrayElements(ctx context.Context, table string, key store.Key, attribute string, elements []any, ret store.ReturnBehavior) (*store.RemoveResult, error) {
	if err := store.ValidateElements(elements); err != nil {
		return nil, err
	}
	phys, err := s.resolve(ctx, table, key)
	if err != nil {
		return nil, err
	}

	removal := make(map[string]bool, len(elements))
	for _, el := range elements {
		canon, _ := store.CanonicalElement(el)
		removal[canon] = true
	}

	var res *store.RemoveResult
	err = s.mutateRecord(ctx, phys, key, func(cur store.Document, exists bool) (store.Document, bool, error) {
		res = &store.RemoveResult{}
		if cur == nil {
			return nil, false, nil
		}
		v, present := cur[attribute]
		if !present {
			return nil, false, nil
		}
		arr, ok := v.([]any)
		if !ok {
			return nil, false, store.Errorf(store.StatusPreconditionFailed,
				"attribute %q holds a %s, not an array", attribute, store.KindOf(v))
		}

		kept := make([]any, 0, len(arr))
		for _, el := range arr {
			if canon, ok := store.CanonicalElement(el); ok && removal[canon] {
				res.Removed = append(res.Removed, el)
				continue
			}
			kept = append(kept, el)
		}
		if len(res.Removed) == 0 {
			return nil, false, nil
		}

		next := cur.Clone()
		next[attribute] = kept
		switch ret {
		case store.ReturnOld:
			res.Attributes = store.Document{attribute: arr}
		case store.ReturnNew:
			res.Attributes = store.Document{attribute: kept}
		}
		return next, true, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// IncrementAttribute adds delta to the numeric attribute, treating an
// absent attribute as zero, and returns the result.
func (s *Store) IncrementAttribute(ctx context.Context, table string, key store.Key, attribute string, delta float64) (float64, error) {
	phys, err := s.resolve(ctx, table, key)
	if err != nil {
		return 0, err
	}

	var result float64
	err = s.mutateRecord(ctx, phys, key, func(cur store.Document, exists bool) (store.Document, bool, error) {
		var base float64
		if cur != nil {
			if v, present := cur[attribute]; present {
				n, ok := store.NumberValue(v)
				if !ok {
					return nil, false, store.Errorf(store.StatusPreconditionFailed,
						"attribute %q holds a %s, not a number", attribute, store.KindOf(v))
				}
				base = n
			}
		}
		result = base + delta

		next := cur.Clone()
		if next == nil {
			next = store.Document{}
		}
		next[attribute] = result
		next[key.Name] = store.Normalize(key.Value)
		return next, true, nil
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}
