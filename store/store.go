package store

import (
	"context"
	"strings"
)

// Document is a JSON-like item: string, bool, int64, float64, []byte,
// []any, map[string]any and nil values, nested arbitrarily.
type Document map[string]any

// Clone returns a shallow copy of the document's top-level attributes.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Key identifies one item: the key attribute name plus its value. The
// value kind (string, integer or double) selects and pins the key-table's
// key type.
type Key struct {
	Name  string
	Value any
}

// Kind returns the kind of the key value.
func (k Key) Kind() Kind { return KindOf(k.Value) }

// Validate rejects keys unusable as a partition key.
func (k Key) Validate() error {
	if k.Name == "" {
		return NewError(StatusInvalidArgument, "key attribute name is empty")
	}
	if strings.ContainsAny(k.Name, ".[]") {
		return Errorf(StatusInvalidArgument, "key attribute name %q must be a single segment", k.Name)
	}
	if strings.Contains(k.Name, "-") {
		// "-" separates table from key in physical names; a dash in the key
		// name would make key-table enumeration ambiguous across tables.
		return Errorf(StatusInvalidArgument, "key attribute name %q must not contain %q", k.Name, "-")
	}
	if !IsKeyKind(k.Kind()) {
		return Errorf(StatusInvalidArgument, "key value kind %s is not a legal key type", k.Kind())
	}
	return nil
}

// PhysicalTableName returns the backend object name for one key-table.
func PhysicalTableName(table, keyName string) string {
	return table + "-" + keyName
}

// ReturnBehavior selects the payload a mutation reports back.
type ReturnBehavior int

const (
	// ReturnNone returns no attributes.
	ReturnNone ReturnBehavior = iota
	// ReturnOld returns the attributes as they were before the mutation.
	ReturnOld
	// ReturnNew returns the attributes as the mutation left them.
	ReturnNew
)

// PutOptions configures PutItem.
type PutOptions struct {
	// Overwrite permits replacing an existing item. With Overwrite false an
	// existing key fails with ErrPreconditionFailed, enforced inside the
	// same write request rather than by a separate pre-check.
	Overwrite bool

	// Condition, when set, must hold against the current item state within
	// the same atomic write.
	Condition *Coupling

	Return ReturnBehavior
}

// UpdateOptions configures UpdateItem.
type UpdateOptions struct {
	Condition *Coupling
	Return    ReturnBehavior
}

// DeleteOptions configures DeleteItem.
type DeleteOptions struct {
	Condition *Coupling
	Return    ReturnBehavior
}

// MutationResult reports a mutation outcome per the requested ReturnBehavior.
type MutationResult struct {
	// Attributes is the old or new item state, nil for ReturnNone and for
	// ReturnOld when no prior item existed.
	Attributes Document
}

// RemoveResult is the outcome of RemoveArrayElements.
type RemoveResult struct {
	MutationResult

	// Removed holds the elements actually removed, empty when the attribute
	// was absent or nothing matched.
	Removed []any
}

// ScanQuery parameterizes one page of a table scan.
type ScanQuery struct {
	// PageSize caps the number of items returned. Zero means DefaultPageSize.
	PageSize int

	// Cursor resumes a scan from a previously returned Page.Cursor. A cursor
	// issued before a key-table was added or removed fails with
	// ErrInvalidArgument.
	Cursor string

	// Filter restricts the scan to matching documents. Applied server-side
	// where the backend supports it.
	Filter *Coupling
}

// DefaultPageSize is used when ScanQuery.PageSize is zero.
const DefaultPageSize = 100

// Page is one scan result page.
type Page struct {
	Items []Document

	// Cursor resumes the scan; empty means end-of-scan. A non-empty cursor
	// is the sole continuation signal: filtering can shorten a page while
	// data remains.
	Cursor string
}

// Store is the uniform contract implemented by every lattice backend.
//
// All operations are keyed by logical table name plus a Key; the matching
// key-table is resolved, and created on first use, per the registry rules.
// Cancellation of ctx is honored at every suspension point and surfaces as
// the context error.
type Store interface {
	// PutItem writes doc as the full item state for key.
	PutItem(ctx context.Context, table string, key Key, doc Document, opts PutOptions) (*MutationResult, error)

	// UpdateItem merges doc's attributes into the item, creating it when
	// absent. The key attribute itself cannot be reassigned.
	UpdateItem(ctx context.Context, table string, key Key, doc Document, opts UpdateOptions) (*MutationResult, error)

	// DeleteItem removes the item. Deleting an absent item succeeds.
	DeleteItem(ctx context.Context, table string, key Key, opts DeleteOptions) (*MutationResult, error)

	// AddArrayElements atomically appends elements to the array at
	// attribute, creating the array when absent. Elements must be non-empty
	// and kind-uniform.
	AddArrayElements(ctx context.Context, table string, key Key, attribute string, elements []any, ret ReturnBehavior) (*MutationResult, error)

	// RemoveArrayElements removes every element of the array at attribute
	// whose canonical form is in elements. A present non-array attribute
	// fails with ErrPreconditionFailed; an absent attribute is a no-op
	// success with an empty removed set.
	RemoveArrayElements(ctx context.Context, table string, key Key, attribute string, elements []any, ret ReturnBehavior) (*RemoveResult, error)

	// IncrementAttribute atomically adds delta to the numeric attribute,
	// treating an absent attribute as zero, and returns the result.
	IncrementAttribute(ctx context.Context, table string, key Key, attribute string, delta float64) (float64, error)

	// ScanItems returns one page of the cross-key-table scan of table.
	ScanItems(ctx context.Context, table string, q ScanQuery) (*Page, error)

	// DropKeyTable removes one key-table and its items. Missing key-tables
	// fail with ErrNotFound.
	DropKeyTable(ctx context.Context, table, keyName string) error
}

// ValidateElements checks an array-element set for AddArrayElements and
// RemoveArrayElements: non-empty, kind-uniform, and canonicalizable.
func ValidateElements(elements []any) error {
	if len(elements) == 0 {
		return NewError(StatusInvalidArgument, "element set is empty")
	}
	kind := KindOf(elements[0])
	for _, el := range elements {
		if _, ok := CanonicalElement(el); !ok {
			return Errorf(StatusInvalidArgument, "element of kind %s has no canonical form", KindOf(el))
		}
		if KindOf(el) != kind {
			return Errorf(StatusInvalidArgument, "mixed element kinds %s and %s", kind, KindOf(el))
		}
	}
	return nil
}
