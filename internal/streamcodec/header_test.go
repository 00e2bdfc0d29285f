package streamcodec

import (
	"bytes"
	"testing"

	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

func zeroID() resource.ID {
	var id resource.ID
	return id
}

func TestV4HeaderRoundTrip(t *testing.T) {
	h := Header{Version: VersionCurrent, EncryptedChunkSize: 70, ResourceID: zeroID()}
	wire, err := Serialize(h)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	if len(wire) != V4HeaderSize {
		t.Fatalf("expected %d bytes, got %d", V4HeaderSize, len(wire))
	}
	if wire[0] != 0x04 {
		t.Fatalf("expected version byte 0x04, got %#x", wire[0])
	}

	got, n, err := Parse(wire)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != V4HeaderSize {
		t.Fatalf("expected to consume %d bytes, got %d", V4HeaderSize, n)
	}
	if got != h {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestV1HeaderRoundTrip(t *testing.T) {
	id, _, err := resource.New()
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	h := Header{Version: VersionLegacy, ResourceID: id}
	wire, err := Serialize(h)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	// varint(1) is a single byte, then 16 bytes of resource id.
	if len(wire) != 1+resource.IDSize {
		t.Fatalf("expected %d bytes, got %d", 1+resource.IDSize, len(wire))
	}

	got, n, err := Parse(wire)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("expected to consume all %d bytes, got %d", len(wire), n)
	}
	if got.Version != VersionLegacy || got.ResourceID != id {
		t.Fatalf("round trip mismatch: got %+v", got)
	}
}

func TestParseUnsupportedVersion(t *testing.T) {
	wire := []byte{0x02, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	_, _, err := Parse(wire)
	if !streamerr.IsKind(err, streamerr.KindUnsupportedVersion) {
		t.Fatalf("expected UnsupportedVersion, got %v", err)
	}
}

func TestParseMalformedHeaderTooShort(t *testing.T) {
	// Fewer than 21 bytes declaring v4.
	wire := []byte{0x04, 0x00, 0x00, 0x10, 0x00, 1, 2, 3}
	_, _, err := Parse(wire)
	if !streamerr.IsKind(err, streamerr.KindNotEnoughData) {
		t.Fatalf("expected NotEnoughData, got %v", err)
	}
}

func TestParseEmptyInput(t *testing.T) {
	_, _, err := Parse(nil)
	if !streamerr.IsKind(err, streamerr.KindNotEnoughData) {
		t.Fatalf("expected NotEnoughData, got %v", err)
	}
}

func TestExtractResourceIDWithoutKey(t *testing.T) {
	id, _, err := resource.New()
	if err != nil {
		t.Fatalf("resource.New: %v", err)
	}
	h := Header{Version: VersionCurrent, EncryptedChunkSize: 1024, ResourceID: id}
	wire, err := Serialize(h)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	// Append arbitrary ciphertext after the header; extraction must not
	// need it.
	wire = append(wire, bytes.Repeat([]byte{0xAA}, 40)...)

	got, err := ExtractResourceID(wire)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if got != id {
		t.Fatalf("expected %x, got %x", id, got)
	}
}

func TestSameStream(t *testing.T) {
	id, _, _ := resource.New()
	a := Header{Version: VersionCurrent, EncryptedChunkSize: 70, ResourceID: id}
	b := a
	if !SameStream(a, b) {
		t.Fatal("identical headers should match")
	}
	b.EncryptedChunkSize = 71
	if SameStream(a, b) {
		t.Fatal("differing chunk size should not match")
	}
}
