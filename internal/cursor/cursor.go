// Package cursor encodes resumable scan positions as opaque, self-validating
// tokens.
package cursor

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	sep = "###"

	// nullToken marks the absence of a backend-native position.
	nullToken = "NULL"
)

// Token is a decoded scan position: the key-table being scanned, the
// backend-native position within it, and a hash of the sorted key-table
// name list at issue time.
type Token struct {
	KeyTable string
	Backend  string
	ListHash string
}

// ListHash hashes a sorted key-table name list. A cursor is only valid
// against the exact list it was issued for; adding or removing a key-table
// changes the hash and invalidates outstanding cursors.
func ListHash(sortedNames []string) string {
	sum := sha256.Sum256([]byte(strings.Join(sortedNames, "\x00")))
	return hex.EncodeToString(sum[:16])
}

// Encode packs a position into an opaque token. An empty backend position
// is encoded as the NULL marker.
func Encode(keyTable, backend, listHash string) string {
	if backend == "" {
		backend = nullToken
	}
	return base64.StdEncoding.EncodeToString([]byte(keyTable + sep + backend + sep + listHash))
}

// Decode unpacks a token produced by Encode. Backend positions may contain
// the separator, so the key-table is split at the first occurrence and the
// hash at the last.
func Decode(token string) (Token, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Token{}, errors.New("cursor is not base64")
	}
	s := string(raw)
	first := strings.Index(s, sep)
	last := strings.LastIndex(s, sep)
	if first < 0 || last <= first {
		return Token{}, errors.New("cursor has a malformed payload")
	}
	t := Token{
		KeyTable: s[:first],
		Backend:  s[first+len(sep) : last],
		ListHash: s[last+len(sep):],
	}
	if t.KeyTable == "" || t.ListHash == "" {
		return Token{}, errors.New("cursor has a malformed payload")
	}
	if t.Backend == nullToken {
		t.Backend = ""
	}
	return t, nil
}
