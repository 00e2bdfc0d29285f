package pipeline

import (
	"github.com/kenchrcum/streamseal/internal/aeadcore"
	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamcodec"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// DefaultEncryptedChunkSize is large enough to hold a 1 MiB plaintext
// chunk plus the v4 header, ivSeed, and AEAD overhead.
const DefaultEncryptedChunkSize = 1_048_596

// minEncryptedChunkSize is the smallest encryptedChunkSize that can hold a
// header, an ivSeed, the AEAD tag, and at least one byte of plaintext.
const minEncryptedChunkSize = streamcodec.V4HeaderSize + streamcodec.IVSeedSize + aeadcore.Overhead + 1

// Encryptor transforms an arbitrary byte stream into a sequence of
// framed, encrypted v4 chunks. It owns all its mutable state and must be
// driven by a single goroutine at a time: it does not lock internally.
type Encryptor struct {
	resourceID         resource.ID
	resourceKey        resource.Key
	encryptedChunkSize uint32
	clearChunkSize     int
	sink               Sink

	buf   []byte
	index uint64

	pool *BufferPool

	closed bool
	err    error
}

// EncryptorOption configures optional Encryptor behavior.
type EncryptorOption func(*Encryptor)

// WithBufferPool makes the Encryptor draw the scratch buffer it frames
// each chunk into from pool instead of allocating one per chunk. A pooled
// buffer smaller than a framed chunk is outgrown by append, so that chunk
// is framed in a freshly allocated buffer instead; the framed bytes are
// the same either way.
func WithBufferPool(pool *BufferPool) EncryptorOption {
	return func(e *Encryptor) { e.pool = pool }
}

// NewEncryptor constructs an Encryptor for resourceID/resourceKey. A
// encryptedChunkSize of 0 selects DefaultEncryptedChunkSize.
func NewEncryptor(id resource.ID, key resource.Key, encryptedChunkSize uint32, sink Sink, opts ...EncryptorOption) (*Encryptor, error) {
	if encryptedChunkSize == 0 {
		encryptedChunkSize = DefaultEncryptedChunkSize
	}
	if encryptedChunkSize < minEncryptedChunkSize {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "encryptedChunkSize too small to hold header, ivSeed, and overhead")
	}
	if sink == nil {
		return nil, streamerr.New(streamerr.KindInvalidArgument, "sink must not be nil")
	}

	clearChunkSize := int(encryptedChunkSize) - streamcodec.V4HeaderSize - streamcodec.IVSeedSize - aeadcore.Overhead

	e := &Encryptor{
		resourceID:         id,
		resourceKey:        key,
		encryptedChunkSize: encryptedChunkSize,
		clearChunkSize:     clearChunkSize,
		sink:               sink,
		buf:                make([]byte, 0, clearChunkSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ResourceID returns the identifier this encryptor was configured with.
// It is stable for the object's lifetime.
func (e *Encryptor) ResourceID() resource.ID { return e.resourceID }

// Write appends p to the pending plaintext buffer, encrypting and
// emitting any full chunks it completes. It may block inside Sink.Push
// when the downstream signals backpressure.
func (e *Encryptor) Write(p []byte) error {
	if e.closed {
		return streamerr.New(streamerr.KindStreamAlreadyClosed, "write after end")
	}
	if e.err != nil {
		return streamerr.Broken(e.err)
	}

	e.buf = append(e.buf, p...)

	for len(e.buf) >= e.clearChunkSize {
		chunk := e.buf[:e.clearChunkSize]
		if err := e.emit(chunk); err != nil {
			return err
		}
		e.buf = append(e.buf[:0], e.buf[e.clearChunkSize:]...)
	}
	return nil
}

// End flushes the buffered remainder (zero or more bytes) as the final
// chunk and signals the sink that the stream is complete. Flushing the
// remainder unconditionally — even when it is empty — is what produces
// the mandatory terminator: an empty buffer at End() time arises exactly
// when the input length was a multiple of clearChunkSize, i.e. the last
// chunk emitted by Write was full, and the resulting empty-plaintext
// chunk is strictly shorter than encryptedChunkSize, which is the
// invariant the decryptor checks for at end of stream.
func (e *Encryptor) End() error {
	if e.closed {
		return streamerr.New(streamerr.KindStreamAlreadyClosed, "end after end")
	}
	if e.err != nil {
		return streamerr.Broken(e.err)
	}

	if err := e.emit(e.buf); err != nil {
		return err
	}
	e.buf = nil
	e.closed = true

	if err := e.sink.Finish(); err != nil {
		e.latch(err)
		return streamerr.Broken(err)
	}
	return nil
}

// emit encrypts plaintext as the current chunk index and pushes the
// framed ciphertext to the sink, then advances the index.
func (e *Encryptor) emit(plaintext []byte) error {
	subKey, err := aeadcore.DeriveSubKey(e.resourceKey.Bytes(), e.index)
	if err != nil {
		e.latch(err)
		return streamerr.Broken(err)
	}

	ivSeed, err := aeadcore.RandomBytes(streamcodec.IVSeedSize)
	if err != nil {
		e.latch(err)
		return streamerr.Broken(err)
	}

	iv, err := aeadcore.DeriveIV(ivSeed, e.index)
	if err != nil {
		e.latch(err)
		return streamerr.Broken(err)
	}

	header := streamcodec.Header{
		Version:            streamcodec.VersionCurrent,
		EncryptedChunkSize: e.encryptedChunkSize,
		ResourceID:         e.resourceID,
	}
	headerBytes, err := streamcodec.Serialize(header)
	if err != nil {
		e.latch(err)
		return streamerr.Broken(err)
	}

	var out []byte
	var pooled []byte
	if e.pool != nil {
		pooled = e.pool.Get()
		out = pooled[:0]
	} else {
		out = make([]byte, 0, len(headerBytes)+len(ivSeed)+len(plaintext)+aeadcore.Overhead)
	}
	out = append(out, headerBytes...)
	out = append(out, ivSeed...)
	out, err = aeadcore.Seal(out, subKey, iv, plaintext)
	aeadcore.Zero(subKey)
	aeadcore.Zero(iv)
	if err != nil {
		if pooled != nil {
			e.pool.Put(pooled)
		}
		e.latch(err)
		return streamerr.Broken(err)
	}

	pushErr := e.sink.Push(out)
	if pooled != nil {
		e.pool.Put(pooled)
	}
	if pushErr != nil {
		e.latch(pushErr)
		return streamerr.Broken(pushErr)
	}

	e.index++
	return nil
}

// latch records err as the terminal failure and notifies the sink exactly
// once; every later Write/End rejects with BrokenStream.
func (e *Encryptor) latch(err error) {
	if e.err != nil {
		return
	}
	e.err = err
	e.sink.Fail(err)
}
