// Package seal implements the chunk-seal codec: an in-memory sparse
// index of per-chunk keys, a single-shot chunk AEAD built on that index,
// and the v3 wire format used to serialize and share the index itself as
// an outer-encrypted resource.
package seal

import (
	"encoding/binary"

	"github.com/kenchrcum/streamseal/internal/aeadcore"
	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// sealVersion is the only wire version this package emits or accepts.
const sealVersion = 3

// Append, passed as the index argument to Encrypt, requests that the
// chunk be stored at the next free position rather than a caller-chosen
// one.
const Append = -1

// zeroNonce is used for every single-shot AEAD call in this package: each
// key it's paired with (a fresh per-chunk key in Encrypt, a fresh outer
// key in Seal) is generated once and used for exactly one Seal call, so
// nonce reuse never occurs despite the fixed value.
var zeroNonce = make([]byte, aeadcore.NonceSize)

// ChunkEncryptor maintains a sparse array of per-chunk keys and uses it to
// encrypt and decrypt individually addressable chunks, independent of the
// streaming codec in package streamcodec. Like pipeline.Encryptor, it owns
// all its mutable state and must be driven by a single goroutine at a
// time.
type ChunkEncryptor struct {
	keys []*[32]byte // nil entries are holes
}

// NewChunkEncryptor returns an empty chunk-keyed encryptor.
func NewChunkEncryptor() *ChunkEncryptor {
	return &ChunkEncryptor{}
}

// Encrypt generates a fresh random key, encrypts plaintext under it with
// a single-shot AEAD call, and stores the key at index (or at the next
// free position if index is Append, extending the array with holes as
// needed). It returns the ciphertext, the resource identifier derived
// from the ciphertext's own bytes, and the index the key landed at.
func (c *ChunkEncryptor) Encrypt(plaintext []byte, index int) (ciphertext []byte, id resource.ID, usedIndex int, err error) {
	key, err := aeadcore.RandomBytes(aeadcore.KeySize)
	if err != nil {
		return nil, resource.ID{}, 0, err
	}
	defer aeadcore.Zero(key)

	ciphertext, err = aeadcore.Seal(nil, key, zeroNonce, plaintext)
	if err != nil {
		return nil, resource.ID{}, 0, err
	}
	id = resource.DeriveIDFromCiphertext(ciphertext)

	if index == Append {
		index = len(c.keys)
	}
	if index < 0 {
		return nil, resource.ID{}, 0, streamerr.New(streamerr.KindInvalidArgument, "index must be >= 0 or Append")
	}
	c.growTo(index + 1)

	var stored [32]byte
	copy(stored[:], key)
	c.keys[index] = &stored

	return ciphertext, id, index, nil
}

// Decrypt looks up the key stored at index and decrypts ciphertext with
// it. It fails with ChunkIndexOutOfRange if index is beyond the array's
// current length, ChunkNotFound if the slot is a hole, and
// DecryptionFailed if the AEAD tag does not verify.
func (c *ChunkEncryptor) Decrypt(ciphertext []byte, index int) ([]byte, error) {
	if index < 0 || index >= len(c.keys) {
		return nil, streamerr.New(streamerr.KindChunkIndexOutOfRange, "chunk index out of range")
	}
	key := c.keys[index]
	if key == nil {
		return nil, streamerr.New(streamerr.KindChunkNotFound, "chunk index is a hole")
	}
	return aeadcore.Open(nil, key[:], zeroNonce, ciphertext)
}

// Remove deletes the keys at the given indices, turning them into holes.
// Trailing holes are compacted away; holes left in the middle of the
// array remain.
func (c *ChunkEncryptor) Remove(indices []int) {
	for _, i := range indices {
		if i >= 0 && i < len(c.keys) {
			c.keys[i] = nil
		}
	}
	for len(c.keys) > 0 && c.keys[len(c.keys)-1] == nil {
		c.keys = c.keys[:len(c.keys)-1]
	}
}

// Len returns the current length of the sparse array, including holes.
func (c *ChunkEncryptor) Len() int { return len(c.keys) }

// Seal serializes the sparse key array (v3 wire format) and encrypts it
// under a freshly generated outer key, which it returns alongside the
// artifact so the caller can persist or share it. Every call rotates the
// outer key, even when the underlying sparse state hasn't changed.
func (c *ChunkEncryptor) Seal() (artifact []byte, outerKey resource.Key, id resource.ID, err error) {
	serialized := serializeSparse(c.keys)

	outerKeyBytes, err := aeadcore.RandomBytes(aeadcore.KeySize)
	if err != nil {
		return nil, resource.Key{}, resource.ID{}, err
	}
	copy(outerKey[:], outerKeyBytes)
	aeadcore.Zero(outerKeyBytes)

	artifact, err = aeadcore.Seal(nil, outerKey.Bytes(), zeroNonce, serialized)
	if err != nil {
		return nil, resource.Key{}, resource.ID{}, err
	}
	id = resource.DeriveIDFromCiphertext(artifact)
	return artifact, outerKey, id, nil
}

// Open reverses Seal: it decrypts artifact under outerKey and parses the
// v3 sparse array back into a usable ChunkEncryptor.
func Open(artifact []byte, outerKey resource.Key) (*ChunkEncryptor, error) {
	serialized, err := aeadcore.Open(nil, outerKey.Bytes(), zeroNonce, artifact)
	if err != nil {
		return nil, err
	}
	keys, err := parseSparse(serialized)
	if err != nil {
		return nil, err
	}
	return &ChunkEncryptor{keys: keys}, nil
}

// growTo extends c.keys with holes (nil) until it has at least n
// elements.
func (c *ChunkEncryptor) growTo(n int) {
	for len(c.keys) < n {
		c.keys = append(c.keys, nil)
	}
}

// serializeSparse renders keys to the v3 wire format: byte(3) ‖
// varint(holeRegionBytes) ‖ holeRegion ‖ keys, where holeRegion is a
// sequence of varint(start) ‖ varint(end) pairs for every maximal run of
// consecutive holes, emitted before the concatenated present keys.
func serializeSparse(keys []*[32]byte) []byte {
	var holeRegion []byte
	i := 0
	for i < len(keys) {
		if keys[i] != nil {
			i++
			continue
		}
		start := i
		for i < len(keys) && keys[i] == nil {
			i++
		}
		holeRegion = binary.AppendUvarint(holeRegion, uint64(start))
		holeRegion = binary.AppendUvarint(holeRegion, uint64(i))
	}

	out := []byte{sealVersion}
	out = binary.AppendUvarint(out, uint64(len(holeRegion)))
	out = append(out, holeRegion...)
	for _, k := range keys {
		if k != nil {
			out = append(out, k[:]...)
		}
	}
	return out
}

// parseSparse reverses serializeSparse, reconstructing the full sparse
// array (holes included) from the v3 wire form.
func parseSparse(data []byte) ([]*[32]byte, error) {
	if len(data) < 1 {
		return nil, streamerr.New(streamerr.KindInvalidSeal, "empty seal blob")
	}
	if data[0] != sealVersion {
		return nil, streamerr.New(streamerr.KindInvalidSeal, "unsupported seal version")
	}
	data = data[1:]

	holeLen, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, streamerr.New(streamerr.KindInvalidSeal, "truncated hole-region length")
	}
	data = data[n:]
	if uint64(len(data)) < holeLen {
		return nil, streamerr.New(streamerr.KindInvalidSeal, "truncated hole region")
	}
	holeRegion := data[:holeLen]
	data = data[holeLen:]

	type span struct{ start, end int }
	var ranges []span
	for len(holeRegion) > 0 {
		start, n1 := binary.Uvarint(holeRegion)
		if n1 <= 0 {
			return nil, streamerr.New(streamerr.KindInvalidSeal, "truncated hole range start")
		}
		holeRegion = holeRegion[n1:]
		end, n2 := binary.Uvarint(holeRegion)
		if n2 <= 0 {
			return nil, streamerr.New(streamerr.KindInvalidSeal, "truncated hole range end")
		}
		holeRegion = holeRegion[n2:]
		if end <= start {
			return nil, streamerr.New(streamerr.KindInvalidSeal, "hole range end must be greater than start")
		}
		ranges = append(ranges, span{int(start), int(end)})
	}

	if len(data)%32 != 0 {
		return nil, streamerr.New(streamerr.KindInvalidSeal, "key region is not a multiple of 32 bytes")
	}
	holeCount := 0
	for _, r := range ranges {
		holeCount += r.end - r.start
	}
	total := len(data)/32 + holeCount

	keys := make([]*[32]byte, total)
	rangeIdx := 0
	dataOff := 0
	for i := 0; i < total; i++ {
		if rangeIdx < len(ranges) && i == ranges[rangeIdx].start {
			end := ranges[rangeIdx].end
			if end > total {
				return nil, streamerr.New(streamerr.KindInvalidSeal, "hole range exceeds array length")
			}
			rangeIdx++
			i = end - 1
			continue
		}
		if dataOff+32 > len(data) {
			return nil, streamerr.New(streamerr.KindInvalidSeal, "key region shorter than the array implies")
		}
		var k [32]byte
		copy(k[:], data[dataOff:dataOff+32])
		keys[i] = &k
		dataOff += 32
	}
	if dataOff != len(data) {
		return nil, streamerr.New(streamerr.KindInvalidSeal, "key region longer than the array implies")
	}
	return keys, nil
}
