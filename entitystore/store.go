// Package entitystore implements the lattice store contract on an embedded
// transactional entity store: bbolt buckets holding msgpack-encoded,
// versioned records. It is the non-expression backend shape: conditions are
// evaluated client-side against a snapshot and committed under optimistic
// concurrency, with a version race surfacing as a transient abort that feeds
// the bounded contention retry.
package entitystore

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/jacentio/lattice/store"
)

var (
	catalogBucket = []byte("catalog")
	dataBucket    = []byte("data")
)

// Config holds configuration for the entity store.
type Config struct {
	// Logger receives retry and catalog diagnostics.
	// Default: slog.Default()
	Logger *slog.Logger

	// Retry bounds the optimistic-concurrency retry loop wrapped around
	// every mutation.
	// Default: store.DefaultRetryPolicy()
	Retry store.RetryPolicy
}

// DefaultConfig returns the standard settings.
func DefaultConfig() Config {
	return Config{Retry: store.DefaultRetryPolicy()}
}

func (c *Config) validate() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Retry.MaxAttempts < 1 {
		c.Retry = store.DefaultRetryPolicy()
	}
}

// Store implements store.Store on a bbolt file.
type Store struct {
	db     *bbolt.DB
	config Config

	mu    sync.RWMutex
	kinds map[string]store.Kind
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the entity store at path.
func Open(path string, config Config) (*Store, error) {
	config.validate()
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	db, err := bbolt.Open(path, 0o600, &bopt)
	if err != nil {
		return nil, store.WrapError(store.StatusUnavailable, "cannot open entity store", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(catalogBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, store.WrapError(store.StatusInternal, "cannot initialize entity store", err)
	}
	return &Store{
		db:     db,
		config: config,
		kinds:  make(map[string]store.Kind),
	}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// record is the stored form of one item. The version drives optimistic
// commits; an absent record is version zero.
type record struct {
	Version uint64         `msgpack:"v"`
	Doc     map[string]any `msgpack:"d"`
}

func encodeRecord(rec record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(rec); err != nil {
		return nil, store.WrapError(store.StatusInternal, "unencodable record", err)
	}
	return buf.Bytes(), nil
}

func decodeRecord(raw []byte) (record, error) {
	var rec record
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return record{}, store.WrapError(store.StatusInternal, "undecodable record", err)
	}
	rec.Doc = store.NormalizeDocument(rec.Doc)
	return rec, nil
}

// keyBytes is the bucket key for one item: the canonical string form of the
// key value. Within one key-table the key kind is fixed, so byte order is a
// stable scan order.
func keyBytes(key store.Key) []byte {
	canon, _ := store.CanonicalElement(key.Value)
	return []byte(canon)
}

func mapBoltErr(err error) error {
	if err == nil {
		return nil
	}
	switch err {
	case bbolt.ErrDatabaseNotOpen, bbolt.ErrTxClosed:
		return store.WrapError(store.StatusUnavailable, "entity store is closed", err)
	}
	return store.WrapError(store.StatusInternal, "entity store fault", err)
}

func tableBucket(tx *bbolt.Tx, phys string) (*bbolt.Bucket, error) {
	b := tx.Bucket(dataBucket).Bucket([]byte(phys))
	if b == nil {
		return nil, store.Errorf(store.StatusNotFound, "key-table %s not found", phys)
	}
	return b, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("entitystore(%s)", s.db.Path())
}
