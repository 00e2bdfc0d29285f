package seal

import (
	"bytes"
	"testing"

	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// TestSerializeSparseHoles pins the pre-encryption wire form of a sparse
// state with holes at {0,3,4} and keys at {1,2,5}.
func TestSerializeSparseHoles(t *testing.T) {
	var k1, k2, k5 [32]byte
	for i := range k1 {
		k1[i] = 0x11
	}
	for i := range k2 {
		k2[i] = 0x22
	}
	for i := range k5 {
		k5[i] = 0x55
	}
	keys := []*[32]byte{nil, &k1, &k2, nil, nil, &k5}

	got := serializeSparse(keys)

	want := []byte{0x03, 0x04, 0x00, 0x01, 0x03, 0x05}
	want = append(want, k1[:]...)
	want = append(want, k2[:]...)
	want = append(want, k5[:]...)

	if !bytes.Equal(got, want) {
		t.Fatalf("serialize mismatch:\n got  %x\n want %x", got, want)
	}

	roundTripped, err := parseSparse(got)
	if err != nil {
		t.Fatalf("parseSparse: %v", err)
	}
	if len(roundTripped) != len(keys) {
		t.Fatalf("expected %d entries, got %d", len(keys), len(roundTripped))
	}
	for i, want := range keys {
		got := roundTripped[i]
		if (want == nil) != (got == nil) {
			t.Fatalf("index %d: hole mismatch", i)
		}
		if want != nil && *want != *got {
			t.Fatalf("index %d: key mismatch", i)
		}
	}
}

// TestChunkEncryptorRoundTrip covers chunk-level isolation: a chunk
// decrypts at its own index and fails at any other.
func TestChunkEncryptorRoundTrip(t *testing.T) {
	c := NewChunkEncryptor()

	ctA, _, idxA, err := c.Encrypt([]byte("A"), Append)
	if err != nil {
		t.Fatalf("encrypt A: %v", err)
	}
	ctB, _, idxB, err := c.Encrypt([]byte("B"), Append)
	if err != nil {
		t.Fatalf("encrypt B: %v", err)
	}

	gotA, err := c.Decrypt(ctA, idxA)
	if err != nil {
		t.Fatalf("decrypt A: %v", err)
	}
	if string(gotA) != "A" {
		t.Fatalf("expected A, got %q", gotA)
	}

	if _, err := c.Decrypt(ctB, idxA); err == nil {
		t.Fatal("expected decrypting B's ciphertext at A's index to fail")
	} else if !streamerr.IsKind(err, streamerr.KindDecryptionFailed) {
		t.Fatalf("expected DecryptionFailed, got %v", err)
	}

	gotB, err := c.Decrypt(ctB, idxB)
	if err != nil {
		t.Fatalf("decrypt B: %v", err)
	}
	if string(gotB) != "B" {
		t.Fatalf("expected B, got %q", gotB)
	}
}

// TestChunkEncryptorOutOfRangeAndHole distinguishes ChunkIndexOutOfRange
// from ChunkNotFound.
func TestChunkEncryptorOutOfRangeAndHole(t *testing.T) {
	c := NewChunkEncryptor()
	ct, _, idx, err := c.Encrypt([]byte("hello"), 3)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if idx != 3 {
		t.Fatalf("expected index 3, got %d", idx)
	}
	if c.Len() != 4 {
		t.Fatalf("expected array length 4 (indices 0-3), got %d", c.Len())
	}

	if _, err := c.Decrypt(ct, 0); !streamerr.IsKind(err, streamerr.KindChunkNotFound) {
		t.Fatalf("expected ChunkNotFound for hole, got %v", err)
	}
	if _, err := c.Decrypt(ct, 10); !streamerr.IsKind(err, streamerr.KindChunkIndexOutOfRange) {
		t.Fatalf("expected ChunkIndexOutOfRange, got %v", err)
	}
}

// TestChunkEncryptorRemoveCompactsTrailingHoles: trailing holes collapse,
// middle holes remain.
func TestChunkEncryptorRemoveCompactsTrailingHoles(t *testing.T) {
	c := NewChunkEncryptor()
	for i := 0; i < 5; i++ {
		if _, _, _, err := c.Encrypt([]byte{byte(i)}, Append); err != nil {
			t.Fatalf("encrypt %d: %v", i, err)
		}
	}
	c.Remove([]int{2, 3, 4})
	if c.Len() != 2 {
		t.Fatalf("expected trailing holes compacted to length 2, got %d", c.Len())
	}

	c2 := NewChunkEncryptor()
	for i := 0; i < 5; i++ {
		if _, _, _, err := c2.Encrypt([]byte{byte(i)}, Append); err != nil {
			t.Fatalf("encrypt %d: %v", i, err)
		}
	}
	c2.Remove([]int{1, 2})
	if c2.Len() != 5 {
		t.Fatalf("expected middle holes to leave length unchanged, got %d", c2.Len())
	}
	if _, err := c2.Decrypt(nil, 1); !streamerr.IsKind(err, streamerr.KindChunkNotFound) {
		t.Fatalf("expected index 1 to be a hole, got %v", err)
	}
}

// TestSealOpenRoundTrip: opening a sealed artifact with its outer key
// reconstructs the sparse state, holes included.
func TestSealOpenRoundTrip(t *testing.T) {
	c := NewChunkEncryptor()
	plaintexts := map[int]string{0: "zero", 2: "two", 5: "five"}
	for idx, pt := range plaintexts {
		if _, _, _, err := c.Encrypt([]byte(pt), idx); err != nil {
			t.Fatalf("encrypt %d: %v", idx, err)
		}
	}

	artifact, outerKey, id, err := c.Seal()
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if id != resource.DeriveIDFromCiphertext(artifact) {
		t.Fatal("seal artifact id must be derived from the artifact's own bytes")
	}

	opened, err := Open(artifact, outerKey)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opened.Len() != c.Len() {
		t.Fatalf("expected length %d, got %d", c.Len(), opened.Len())
	}

	for idx := range plaintexts {
		ct, _, _, err := c.Encrypt([]byte("probe"), Append)
		if err != nil {
			t.Fatalf("encrypt probe: %v", err)
		}
		if _, err := opened.Decrypt(ct, idx); err == nil {
			t.Fatalf("expected decrypting an unrelated ciphertext at index %d to fail", idx)
		}
	}
}

// TestSealRotatesOuterKey: two successive Seal calls on the same state
// produce different outer keys.
func TestSealRotatesOuterKey(t *testing.T) {
	c := NewChunkEncryptor()
	if _, _, _, err := c.Encrypt([]byte("hello"), Append); err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	_, key1, _, err := c.Seal()
	if err != nil {
		t.Fatalf("seal 1: %v", err)
	}
	_, key2, _, err := c.Seal()
	if err != nil {
		t.Fatalf("seal 2: %v", err)
	}
	if key1 == key2 {
		t.Fatal("expected successive seals to rotate the outer key")
	}
}

func TestParseSparseRejectsBadVersion(t *testing.T) {
	_, err := parseSparse([]byte{0x02, 0x00})
	if !streamerr.IsKind(err, streamerr.KindInvalidSeal) {
		t.Fatalf("expected InvalidSeal, got %v", err)
	}
}

func TestParseSparseRejectsRaggedKeyRegion(t *testing.T) {
	blob := []byte{0x03, 0x00}
	blob = append(blob, make([]byte, 31)...) // not a multiple of 32
	_, err := parseSparse(blob)
	if !streamerr.IsKind(err, streamerr.KindInvalidSeal) {
		t.Fatalf("expected InvalidSeal, got %v", err)
	}
}

func TestParseSparseRejectsInvertedHoleRange(t *testing.T) {
	blob := []byte{0x03, 0x02, 0x04, 0x03} // range (4,3): end < start
	_, err := parseSparse(blob)
	if !streamerr.IsKind(err, streamerr.KindInvalidSeal) {
		t.Fatalf("expected InvalidSeal, got %v", err)
	}
}

// TestOpenRejectsWrongOuterKey ensures the outer AEAD is actually checked.
func TestOpenRejectsWrongOuterKey(t *testing.T) {
	c := NewChunkEncryptor()
	if _, _, _, err := c.Encrypt([]byte("hello"), Append); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	artifact, _, _, err := c.Seal()
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	var wrongKey resource.Key
	wrongKey[0] = 0xFF
	if _, err := Open(artifact, wrongKey); err == nil {
		t.Fatal("expected opening with the wrong outer key to fail")
	}
}
