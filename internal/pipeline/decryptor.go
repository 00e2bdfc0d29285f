package pipeline

import (
	"context"

	"github.com/kenchrcum/streamseal/internal/aeadcore"
	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamcodec"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// DefaultLegacyChunkSize is the ciphertext-chunk size assumed for v1
// streams that don't declare one on the wire. A v1 decryptor configured
// with a different external agreement must be built with
// WithLegacyChunkSize.
const DefaultLegacyChunkSize = 1 << 20

// KeyLookup resolves a resource's symmetric key from its identifier. It is
// the external capability the Decryptor suspends on while in the
// lookupKey state; a keystore-backed implementation typically makes a
// network round trip here.
type KeyLookup interface {
	Lookup(ctx context.Context, id resource.ID) (resource.Key, error)
}

// KeyLookupFunc adapts a plain function to KeyLookup.
type KeyLookupFunc func(ctx context.Context, id resource.ID) (resource.Key, error)

func (f KeyLookupFunc) Lookup(ctx context.Context, id resource.ID) (resource.Key, error) {
	return f(ctx, id)
}

type decryptorState int

const (
	stateAwaitHeader decryptorState = iota
	stateLookupKey
	stateStreaming
	stateDone
	stateFailed
)

// Decryptor drives an awaitHeader, lookupKey, streaming, done/failed
// state machine over the encrypted input. Like Encryptor, it is not safe
// for concurrent use: a single goroutine must own Write/End calls in
// order.
type Decryptor struct {
	ctx             context.Context
	lookup          KeyLookup
	sink            Sink
	legacyChunkSize int

	state       decryptorState
	buf         []byte
	firstHeader streamcodec.Header
	resourceKey resource.Key
	index       uint64

	// lastChunkFull records whether the most recently consumed v4 chunk
	// was exactly encryptedChunkSize bytes; End() uses it to enforce the
	// mandatory-terminator rule.
	lastChunkFull bool

	closed bool
	err    error
}

// DecryptorOption configures optional Decryptor behavior.
type DecryptorOption func(*Decryptor)

// WithLegacyChunkSize overrides the ciphertext chunk size assumed when
// decoding a v1 stream, for callers with an external agreement on a
// different size than DefaultLegacyChunkSize.
func WithLegacyChunkSize(n int) DecryptorOption {
	return func(d *Decryptor) { d.legacyChunkSize = n }
}

// NewDecryptor constructs a Decryptor that resolves resource keys through
// lookup and pushes decrypted plaintext to sink.
func NewDecryptor(ctx context.Context, lookup KeyLookup, sink Sink, opts ...DecryptorOption) (*Decryptor, error) {
	if lookup == nil {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "lookup must not be nil")
	}
	if sink == nil {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "sink must not be nil")
	}
	d := &Decryptor{
		ctx:             ctx,
		lookup:          lookup,
		sink:            sink,
		legacyChunkSize: DefaultLegacyChunkSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Write feeds p into the decryptor's reassembly buffer, decrypting and
// pushing every full chunk it completes. It may block: resolving the
// resource key (lookupKey) and Sink.Push both suspend the caller.
func (d *Decryptor) Write(p []byte) error {
	if d.closed {
		return streamerr.New(streamerr.KindStreamAlreadyClosed, "write after end")
	}
	if d.err != nil {
		return streamerr.Broken(d.err)
	}

	d.buf = append(d.buf, p...)
	return d.pump()
}

// pump advances the state machine as far as the currently buffered bytes
// allow, without requiring End() to have been called.
func (d *Decryptor) pump() error {
	for {
		switch d.state {
		case stateAwaitHeader:
			h, n, err := streamcodec.Parse(d.buf)
			if err != nil {
				if streamerr.IsKind(err, streamerr.KindNotEnoughData) {
					return nil
				}
				d.fail(err)
				return err
			}
			d.firstHeader = h
			if h.Version == streamcodec.VersionLegacy {
				// v1 emits its header once; consume it so the streaming
				// state sees only raw ciphertext chunks.
				d.buf = d.buf[n:]
			}
			d.state = stateLookupKey

		case stateLookupKey:
			key, err := d.lookup.Lookup(d.ctx, d.firstHeader.ResourceID)
			if err != nil {
				wrapped := streamerr.Wrap(streamerr.KindKeyNotFound, "resource key lookup failed", err)
				d.fail(wrapped)
				return wrapped
			}
			d.resourceKey = key
			d.state = stateStreaming

		case stateStreaming:
			progressed, err := d.consumeFullChunks()
			if err != nil {
				return err
			}
			if !progressed {
				return nil
			}

		case stateDone:
			return nil
		case stateFailed:
			return streamerr.Broken(d.err)
		}
	}
}

// consumeFullChunks decrypts every complete chunk currently sitting in
// buf. It reports progressed=false once fewer than one full chunk remains
// buffered, so pump's loop can stop without spinning.
func (d *Decryptor) consumeFullChunks() (bool, error) {
	if d.firstHeader.Version == streamcodec.VersionLegacy {
		return d.consumeLegacyChunks()
	}
	return d.consumeV4Chunks()
}

func (d *Decryptor) consumeV4Chunks() (bool, error) {
	chunkSize := int(d.firstHeader.EncryptedChunkSize)
	progressed := false
	for len(d.buf) >= chunkSize {
		frame := d.buf[:chunkSize]
		if err := d.decryptV4Frame(frame); err != nil {
			return progressed, err
		}
		d.buf = d.buf[chunkSize:]
		d.lastChunkFull = true
		d.index++
		progressed = true
	}
	return progressed, nil
}

func (d *Decryptor) decryptV4Frame(frame []byte) error {
	h, n, err := streamcodec.Parse(frame)
	if err != nil {
		wrapped := streamerr.Wrap(streamerr.KindMalformedHeader, "malformed chunk header", err)
		d.fail(wrapped)
		return wrapped
	}
	if !streamcodec.SameStream(d.firstHeader, h) {
		err := streamerr.New(streamerr.KindDecryptionFailed, "chunk header does not match stream's first header")
		d.fail(err)
		return err
	}

	ivSeedEnd := n + streamcodec.IVSeedSize
	if len(frame) < ivSeedEnd {
		err := streamerr.New(streamerr.KindNotEnoughData, "chunk shorter than header+ivSeed")
		d.fail(err)
		return err
	}
	ivSeed := frame[n:ivSeedEnd]
	ciphertext := frame[ivSeedEnd:]

	return d.openAndPush(ivSeed, ciphertext)
}

func (d *Decryptor) openAndPush(ivSeed, ciphertext []byte) error {
	subKey, err := aeadcore.DeriveSubKey(d.resourceKey.Bytes(), d.index)
	if err != nil {
		d.fail(err)
		return err
	}
	iv, err := aeadcore.DeriveIV(ivSeed, d.index)
	if err != nil {
		aeadcore.Zero(subKey)
		d.fail(err)
		return err
	}

	plaintext, err := aeadcore.Open(nil, subKey, iv, ciphertext)
	aeadcore.Zero(subKey)
	aeadcore.Zero(iv)
	if err != nil {
		d.fail(err)
		return err
	}

	if err := d.sink.Push(plaintext); err != nil {
		d.fail(err)
		return err
	}
	return nil
}

// openAndPushLegacy mirrors openAndPush for v1, where the nonce is derived
// directly from the resource key and index, with no ivSeed on the wire.
func (d *Decryptor) openAndPushLegacy(ciphertext []byte) error {
	subKey, err := aeadcore.DeriveSubKey(d.resourceKey.Bytes(), d.index)
	if err != nil {
		d.fail(err)
		return err
	}
	iv, err := aeadcore.DeriveLegacyIV(d.resourceKey.Bytes(), d.index)
	if err != nil {
		aeadcore.Zero(subKey)
		d.fail(err)
		return err
	}

	plaintext, err := aeadcore.Open(nil, subKey, iv, ciphertext)
	aeadcore.Zero(subKey)
	aeadcore.Zero(iv)
	if err != nil {
		d.fail(err)
		return err
	}

	if err := d.sink.Push(plaintext); err != nil {
		d.fail(err)
		return err
	}
	return nil
}

func (d *Decryptor) consumeLegacyChunks() (bool, error) {
	progressed := false
	for len(d.buf) >= d.legacyChunkSize {
		chunk := d.buf[:d.legacyChunkSize]
		if err := d.openAndPushLegacy(chunk); err != nil {
			return progressed, err
		}
		d.buf = d.buf[d.legacyChunkSize:]
		d.index++
		progressed = true
	}
	return progressed, nil
}

// End signals that no more input is coming. Any bytes still buffered are
// decrypted as the stream's final chunk; for v4 streams, a missing
// terminator (the final consumed chunk being exactly encryptedChunkSize,
// with nothing shorter following) is reported as DecryptionFailed. v1
// streams have no such requirement: EOF alone ends the stream.
func (d *Decryptor) End() error {
	if d.closed {
		return streamerr.New(streamerr.KindStreamAlreadyClosed, "end after end")
	}
	if d.err != nil {
		return streamerr.Broken(d.err)
	}

	switch d.state {
	case stateAwaitHeader, stateLookupKey:
		err := streamerr.New(streamerr.KindNotEnoughData, "stream ended before a complete header was seen")
		d.fail(err)
		return err

	case stateStreaming:
		if err := d.finishStreaming(); err != nil {
			return err
		}
	}

	d.closed = true
	d.state = stateDone
	if err := d.sink.Finish(); err != nil {
		d.fail(err)
		return streamerr.Broken(err)
	}
	return nil
}

func (d *Decryptor) finishStreaming() error {
	if len(d.buf) > 0 {
		var err error
		if d.firstHeader.Version == streamcodec.VersionLegacy {
			err = d.openAndPushLegacy(d.buf)
		} else {
			err = d.decryptV4Frame(d.buf)
		}
		d.buf = nil
		if err != nil {
			return err
		}
		d.lastChunkFull = false
		return nil
	}

	if d.firstHeader.Version == streamcodec.VersionCurrent && d.lastChunkFull {
		err := streamerr.New(streamerr.KindDecryptionFailed, "missing terminator chunk")
		d.fail(err)
		return err
	}
	return nil
}

// fail latches err as the terminal failure, transitions to Failed, and
// notifies the sink exactly once.
func (d *Decryptor) fail(err error) {
	if d.err != nil {
		return
	}
	d.err = err
	d.state = stateFailed
	d.sink.Fail(err)
}
