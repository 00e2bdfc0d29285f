// Package kmspolicy lets the outer key that protects a chunk-seal
// artifact be wrapped by an external KMS instead of handled in the clear
// by the caller, backed by a KMIP-speaking KMS via github.com/ovh/kmip-go.
package kmspolicy

import (
	"context"
	"fmt"

	"github.com/ovh/kmip-go"
	"github.com/ovh/kmip-go/kmipclient"

	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// KeyEnvelope captures everything required to unwrap an outer key later:
// which KMS key version wrapped it, and the wrapped ciphertext itself.
// Persisted alongside a seal artifact so the artifact can be shared
// without the outer key ever crossing a trust boundary in the clear.
type KeyEnvelope struct {
	KeyID      string
	KeyVersion int
	Ciphertext []byte
}

// Wrapper wraps and unwraps seal outer keys (resource.Key) through an
// external KMS. Implementations must perform the actual cryptographic
// operation inside the KMS boundary — the plaintext key is only ever
// held in process memory transiently.
type Wrapper interface {
	// Provider returns a short diagnostic identifier, e.g. "kmip".
	Provider() string

	WrapKey(ctx context.Context, key resource.Key) (*KeyEnvelope, error)
	UnwrapKey(ctx context.Context, envelope *KeyEnvelope) (resource.Key, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// KMIPWrapper is the reference Wrapper, speaking the Key Management
// Interoperability Protocol through a pooled kmip-go client. It assumes a
// single active managed symmetric key (keyID) used to wrap every outer
// key; key rotation is handled by pointing a new KMIPWrapper at a new
// keyID and re-wrapping.
type KMIPWrapper struct {
	client *kmipclient.Client
	keyID  string
}

// NewKMIPWrapper dials addr and returns a Wrapper that wraps/unwraps
// under the managed key keyID.
func NewKMIPWrapper(ctx context.Context, addr string, keyID string, opts ...kmipclient.Option) (*KMIPWrapper, error) {
	client, err := kmipclient.Dial(addr, opts...)
	if err != nil {
		return nil, streamerr.Wrap(streamerr.KindInvalidArgument, "kmip dial failed", err)
	}
	return &KMIPWrapper{client: client, keyID: keyID}, nil
}

func (w *KMIPWrapper) Provider() string { return "kmip" }

// WrapKey asks the KMS to encrypt key.Bytes() under the managed key.
func (w *KMIPWrapper) WrapKey(ctx context.Context, key resource.Key) (*KeyEnvelope, error) {
	plaintext := key.Bytes()
	defer zero(plaintext)

	resp, err := w.client.Encrypt(w.keyID).
		WithCryptographicParameters(kmip.CryptographicParameters{
			CryptographicAlgorithm: kmip.CryptographicAlgorithmAES,
			BlockCipherMode:        kmip.BlockCipherModeGCM,
		}).
		Data(plaintext).
		ExecContext(ctx)
	if err != nil {
		return nil, streamerr.Wrap(streamerr.KindInvalidArgument, "kmip wrap failed", err)
	}

	return &KeyEnvelope{
		KeyID:      w.keyID,
		KeyVersion: 1,
		Ciphertext: resp.Data,
	}, nil
}

// UnwrapKey asks the KMS to decrypt envelope.Ciphertext back into a
// resource.Key.
func (w *KMIPWrapper) UnwrapKey(ctx context.Context, envelope *KeyEnvelope) (resource.Key, error) {
	if envelope == nil {
		return resource.Key{}, streamerr.New(streamerr.KindInvalidArgument, "nil key envelope")
	}
	resp, err := w.client.Decrypt(envelope.KeyID).
		WithCryptographicParameters(kmip.CryptographicParameters{
			CryptographicAlgorithm: kmip.CryptographicAlgorithmAES,
			BlockCipherMode:        kmip.BlockCipherModeGCM,
		}).
		Data(envelope.Ciphertext).
		ExecContext(ctx)
	if err != nil {
		return resource.Key{}, streamerr.Wrap(streamerr.KindInvalidArgument, "kmip unwrap failed", err)
	}

	key, err := resource.ParseKey(resp.Data)
	zero(resp.Data)
	if err != nil {
		return resource.Key{}, streamerr.Wrap(streamerr.KindInvalidArgument, "kmip returned malformed key material", err)
	}
	return key, nil
}

// HealthCheck verifies the managed key is visible to this client without
// performing a cryptographic operation.
func (w *KMIPWrapper) HealthCheck(ctx context.Context) error {
	if _, err := w.client.Locate().WithName(w.keyID).ExecContext(ctx); err != nil {
		return streamerr.Wrap(streamerr.KindInvalidArgument, fmt.Sprintf("kmip health check failed for key %q", w.keyID), err)
	}
	return nil
}

// Close releases the underlying KMIP connection.
func (w *KMIPWrapper) Close(ctx context.Context) error {
	return w.client.Close()
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
