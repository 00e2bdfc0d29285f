// Package aeadcore implements the authenticated encryption primitive (C1)
// and the per-chunk key/IV derivation (C2) that every other streamseal
// package builds on.
package aeadcore

import (
	"crypto/cipher"
	"crypto/rand"

	"github.com/kenchrcum/streamseal/internal/streamerr"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// KeySize is the size in bytes of a resource key, a sub-key, and an
	// outer seal key.
	KeySize = chacha20poly1305.KeySize // 32

	// NonceSize is the size in bytes of the derived AEAD nonce.
	NonceSize = chacha20poly1305.NonceSizeX // 24

	// IVSeedSize is the size in bytes of the per-chunk random seed stored
	// on the wire; it is independent from NonceSize only by convention,
	// the two happen to coincide for XChaCha20-Poly1305.
	IVSeedSize = 24

	// Overhead is the fixed ciphertext expansion added by Seal (the
	// authentication tag).
	Overhead = chacha20poly1305.Overhead // 16
)

// Seal authenticates and encrypts plaintext under key and iv, appending
// the result to dst. key must be KeySize bytes and iv must be NonceSize
// bytes, or Seal returns an InvalidArgument error.
func Seal(dst, key, iv, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != NonceSize {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "iv must be 24 bytes")
	}
	return aead.Seal(dst, iv, plaintext, nil), nil
}

// Open authenticates and decrypts ciphertext under key and iv, appending
// the plaintext to dst. It returns DecryptionFailed, never partial
// plaintext, when the authentication tag does not verify.
func Open(dst, key, iv, ciphertext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != NonceSize {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "iv must be 24 bytes")
	}
	out, err := aead.Open(dst, iv, ciphertext, nil)
	if err != nil {
		return nil, streamerr.Wrap(streamerr.KindDecryptionFailed, "aead authentication failed", err)
	}
	return out, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "key must be 32 bytes")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, streamerr.Wrap(streamerr.KindInvalidArgument, "failed to build aead", err)
	}
	return aead, nil
}

// RandomBytes returns n cryptographically secure random bytes. It is the
// single source of randomness for resource ids, resource keys, and
// per-chunk IV seeds.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, streamerr.Wrap(streamerr.KindInvalidArgument, "failed to read random bytes", err)
	}
	return b, nil
}

// Zero overwrites b with zeroes in place. Callers hold it on secret key
// material so it can be scrubbed from memory on pipeline teardown.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
