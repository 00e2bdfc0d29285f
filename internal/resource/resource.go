// Package resource defines the identifiers that every encrypted stream and
// every sealed chunk-key index is addressed by.
package resource

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/kenchrcum/streamseal/internal/aeadcore"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// IDSize is the length in bytes of a ResourceId.
const IDSize = 16

// KeySize is the length in bytes of a ResourceKey.
const KeySize = aeadcore.KeySize

// ID identifies a resource: a logically immutable byte sequence. Its 16
// bytes are random and carry no structure of their own.
type ID [IDSize]byte

// String renders the id as lowercase hex, suitable for use as a blob-store
// object key or a Redis key.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns a copy of the id's bytes.
func (id ID) Bytes() []byte {
	out := make([]byte, IDSize)
	copy(out, id[:])
	return out
}

// ParseID reads a ResourceId from exactly IDSize bytes.
func ParseID(b []byte) (ID, error) {
	var id ID
	if len(b) != IDSize {
		return id, streamerr.New(streamerr.KindMalformedHeader, "resource id must be 16 bytes")
	}
	copy(id[:], b)
	return id, nil
}

// ParseIDHex reads a ResourceId from its String() hex encoding, the form
// used in URLs and blob-store object keys.
func ParseIDHex(s string) (ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return ID{}, streamerr.Wrap(streamerr.KindMalformedHeader, "resource id is not valid hex", err)
	}
	return ParseID(b)
}

// Key is the 32-byte symmetric key from which every chunk's sub-key is
// derived. Possession of Key together with the matching ID is the
// capability that allows decryption of the resource; ID alone allows only
// lookup.
type Key [KeySize]byte

// Bytes returns a copy of the key's bytes.
func (k Key) Bytes() []byte {
	out := make([]byte, KeySize)
	copy(out, k[:])
	return out
}

// ParseKey reads a ResourceKey from exactly KeySize bytes.
func ParseKey(b []byte) (Key, error) {
	var k Key
	if len(b) != KeySize {
		return k, streamerr.New(streamerr.KindInvalidArgument, "resource key must be 32 bytes")
	}
	copy(k[:], b)
	return k, nil
}

// New generates a fresh (ID, Key) pair using a cryptographically secure
// RNG. The pair is generated together and treated as a single capability.
func New() (ID, Key, error) {
	var id ID
	var key Key

	idBytes, err := aeadcore.RandomBytes(IDSize)
	if err != nil {
		return id, key, err
	}
	keyBytes, err := aeadcore.RandomBytes(KeySize)
	if err != nil {
		return id, key, err
	}

	copy(id[:], idBytes)
	copy(key[:], keyBytes)
	return id, key, nil
}

// DeriveIDFromCiphertext computes a resource identifier from a digest of
// a ciphertext, used by the chunk-seal codec to address a single-shot
// encrypted chunk or a sealed chunk-key index without a separately
// generated id: the identifier is a fingerprint of what it names.
func DeriveIDFromCiphertext(ciphertext []byte) ID {
	var id ID
	sum := sha256.Sum256(ciphertext)
	copy(id[:], sum[:IDSize])
	return id
}
