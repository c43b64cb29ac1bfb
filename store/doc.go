// Package store defines the backend-agnostic contract of lattice: one
// logical interface over heterogeneous managed document stores.
//
// Lattice normalizes an expression-capable wide-column store (DynamoDB,
// package dynamo) and a transactional entity store (package entitystore)
// behind a single [Store] interface: per-logical-table physical key-tables,
// atomic conditional mutations, and predicate-based resumable scans.
//
// # Key-tables
//
// A logical table owns one physical key-table per distinct key attribute
// name ever used for writes, named "{table}-{keyAttribute}". A key-table's
// key value type (string, integer or double) is fixed at creation; later
// writes using a different type fail with [ErrConflict].
//
// # Conditions
//
// Predicates are modeled as a [Coupling] tree over [Condition] leaves:
//
//	cond := store.Single(store.Compare(store.MustParsePath("total"), store.OpGreater, 10.0))
//	res, err := s.UpdateItem(ctx, "orders", key, doc, store.UpdateOptions{Condition: cond})
//
// Backends compile couplings to their native expression form where one
// exists and fall back to the client-side evaluator ([Coupling.Matches])
// where it does not. Both forms agree for every coupling and document.
//
// # Scanning
//
// [Store.ScanItems] walks all key-tables of a logical table in lexicographic
// order and returns an opaque resumable cursor. The cursor embeds a hash of
// the key-table list at issue time; replaying it after a key-table was added
// or removed fails with [ErrInvalidArgument] rather than silently skipping
// or duplicating items. A non-empty cursor is the sole "more data" signal;
// a page may be shorter than requested while data remains.
//
// # Errors
//
// Every failure is a [*Error] carrying a [Status] and message. Match against
// the package sentinels with errors.Is:
//
//	if errors.Is(err, store.ErrPreconditionFailed) { ... }
package store
