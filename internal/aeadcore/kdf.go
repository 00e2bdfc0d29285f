package aeadcore

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/kenchrcum/streamseal/internal/streamerr"
	"golang.org/x/crypto/hkdf"
)

// Domain-separation labels for HKDF's info parameter. Sub-keys and IVs are
// derived through distinct labels so that recovering one never leaks the
// other.
var (
	subKeyInfo   = []byte("streamseal-subkey-v1")
	ivInfo       = []byte("streamseal-iv-v1")
	legacyIVInfo = []byte("streamseal-legacy-iv-v1")
)

// DeriveSubKey derives the 32-byte sub-key used to encrypt chunk index
// from resourceKey. It is a pure, deterministic function: the same
// (resourceKey, index) pair always yields the same sub-key, and it is
// never persisted by callers.
func DeriveSubKey(resourceKey []byte, index uint64) ([]byte, error) {
	if len(resourceKey) != KeySize {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "resource key must be 32 bytes")
	}
	return hkdfExpand(resourceKey, subKeyInfo, indexBytes(index), KeySize)
}

// DeriveIV derives the 24-byte effective AEAD nonce for chunk index from
// the per-chunk ivSeed that travels on the wire. Separating the random
// seed from the derived IV means an attacker who swaps two chunks with
// the same resource key can't make the IV line up with the wrong index.
func DeriveIV(ivSeed []byte, index uint64) ([]byte, error) {
	if len(ivSeed) != IVSeedSize {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "iv seed must be 24 bytes")
	}
	return hkdfExpand(ivSeed, ivInfo, indexBytes(index), NonceSize)
}

// DeriveLegacyIV derives the 24-byte nonce for chunk index in a v1 stream,
// where no per-chunk ivSeed travels on the wire. The nonce is a function of
// resourceKey and index alone, which is exactly why v1 streams are weaker:
// two v1 streams encrypted under the same resource key reuse the same
// nonce at the same chunk index.
func DeriveLegacyIV(resourceKey []byte, index uint64) ([]byte, error) {
	if len(resourceKey) != KeySize {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "resource key must be 32 bytes")
	}
	return hkdfExpand(resourceKey, legacyIVInfo, indexBytes(index), NonceSize)
}

func indexBytes(index uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, index)
	return b
}

// hkdfExpand runs HKDF-SHA256 over secret with no salt, using info followed
// by the little-endian chunk index as the HKDF info parameter, and reads n
// bytes of output key material.
func hkdfExpand(secret, info, indexSuffix []byte, n int) ([]byte, error) {
	combinedInfo := make([]byte, 0, len(info)+len(indexSuffix))
	combinedInfo = append(combinedInfo, info...)
	combinedInfo = append(combinedInfo, indexSuffix...)

	r := hkdf.New(sha256.New, secret, nil, combinedInfo)
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, streamerr.Wrap(streamerr.KindInvalidArgument, "hkdf expand failed", err)
	}
	return out, nil
}
