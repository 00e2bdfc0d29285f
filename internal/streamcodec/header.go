// Package streamcodec implements the versioned stream header: v1
// (legacy, header emitted once per stream) and v4 (current, header
// repeated at the start of every chunk).
package streamcodec

import (
	"encoding/binary"

	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// Version identifies a stream header format.
type Version byte

const (
	VersionLegacy  Version = 1
	VersionCurrent Version = 4
)

// V4HeaderSize is the fixed size in bytes of a v4 header: 1 version byte +
// 4 bytes of encryptedChunkSize + 16 bytes of resourceId.
const V4HeaderSize = 1 + 4 + resource.IDSize

// IVSeedSize is the size in bytes of the per-chunk ivSeed that follows
// every v4 header on the wire.
const IVSeedSize = 24

// Header describes the fields carried by a stream's header, regardless of
// version. For v1 streams, EncryptedChunkSize is unused (the legacy
// format never declares it).
type Header struct {
	Version            Version
	EncryptedChunkSize uint32
	ResourceID         resource.ID
}

// Serialize renders h to its wire form. v1 headers are written as
// varint(1) followed by the resource id; v4 headers as the fixed
// 21-byte layout: version byte, little-endian encryptedChunkSize,
// resource id.
func Serialize(h Header) ([]byte, error) {
	switch h.Version {
	case VersionLegacy:
		out := binary.AppendUvarint(nil, uint64(VersionLegacy))
		out = append(out, h.ResourceID[:]...)
		return out, nil
	case VersionCurrent:
		out := make([]byte, V4HeaderSize)
		out[0] = byte(VersionCurrent)
		binary.LittleEndian.PutUint32(out[1:5], h.EncryptedChunkSize)
		copy(out[5:5+resource.IDSize], h.ResourceID[:])
		return out, nil
	default:
		return nil, streamerr.New(streamerr.KindUnsupportedVersion, "unknown header version")
	}
}

// Parse reads a header from the start of b and returns it along with the
// number of bytes consumed. It fails with UnsupportedVersion for any
// version not in {1,4}, and with MalformedHeader/NotEnoughData when b is
// too short to contain a complete header of the version it declares.
func Parse(b []byte) (Header, int, error) {
	if len(b) == 0 {
		return Header{}, 0, streamerr.New(streamerr.KindNotEnoughData, "empty input")
	}

	version, n := binary.Uvarint(b)
	if n <= 0 {
		return Header{}, 0, streamerr.New(streamerr.KindNotEnoughData, "truncated version varint")
	}

	switch Version(version) {
	case VersionLegacy:
		end := n + resource.IDSize
		if len(b) < end {
			return Header{}, 0, streamerr.New(streamerr.KindNotEnoughData, "truncated v1 header")
		}
		id, err := resource.ParseID(b[n:end])
		if err != nil {
			return Header{}, 0, streamerr.Wrap(streamerr.KindMalformedHeader, "invalid v1 resource id", err)
		}
		return Header{Version: VersionLegacy, ResourceID: id}, end, nil

	case VersionCurrent:
		if len(b) < V4HeaderSize {
			return Header{}, 0, streamerr.New(streamerr.KindNotEnoughData, "truncated v4 header")
		}
		chunkSize := binary.LittleEndian.Uint32(b[1:5])
		id, err := resource.ParseID(b[5 : 5+resource.IDSize])
		if err != nil {
			return Header{}, 0, streamerr.Wrap(streamerr.KindMalformedHeader, "invalid v4 resource id", err)
		}
		return Header{
			Version:            VersionCurrent,
			EncryptedChunkSize: chunkSize,
			ResourceID:         id,
		}, V4HeaderSize, nil

	default:
		return Header{}, 0, streamerr.New(streamerr.KindUnsupportedVersion, "header version not in {1,4}")
	}
}

// ExtractResourceID returns the resource identifier carried by firstBytes
// without decrypting anything — it parses only the header. Higher layers
// use this to resolve a key before attempting decryption.
func ExtractResourceID(firstBytes []byte) (resource.ID, error) {
	h, _, err := Parse(firstBytes)
	if err != nil {
		return resource.ID{}, err
	}
	return h.ResourceID, nil
}

// SameStream reports whether two v4 headers describe the same logical
// stream: matching version, resourceId, and encryptedChunkSize. The
// decryptor requires every chunk after the first to match the first
// header exactly; a mismatch is a decryption failure, which keeps an
// attacker from re-framing the stream by flipping the size field.
func SameStream(a, b Header) bool {
	return a.Version == b.Version &&
		a.EncryptedChunkSize == b.EncryptedChunkSize &&
		a.ResourceID == b.ResourceID
}
