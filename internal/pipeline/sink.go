package pipeline

// Sink is the downstream capability a pipeline drives: a producer calls
// Push zero or more times, then Finish or Fail; Fail also follows a
// Finish that returned an error.
//
// Push may block to signal backpressure; an implementation backed by a
// bounded channel makes the pipeline's Write/End calls suspend whenever
// the consumer falls behind, without the pipeline itself needing to know
// how the sink applies backpressure.
type Sink interface {
	// Push delivers one fully-formed chunk (ciphertext for an encryptor,
	// plaintext for a decryptor) downstream. chunk's backing array may be
	// reused by the pipeline (via a BufferPool) as soon as Push returns,
	// so an implementation that needs the bytes after returning must copy
	// them first.
	Push(chunk []byte) error

	// Finish signals clean end of stream. Called at most once, never
	// after Fail.
	Finish() error

	// Fail signals that the pipeline has latched a terminal error. Called
	// at most once; it follows Finish only when Finish itself returned an
	// error, which the pipeline then latches.
	Fail(err error)
}

// ChanSink adapts a Go channel into a Sink, giving callers the classic
// range-over-channel consumption style while still getting backpressure
// for free from the channel's capacity.
type ChanSink struct {
	Chunks chan []byte
	Err    chan error
}

// NewChanSink creates a ChanSink whose Chunks channel has the given
// capacity; capacity 0 yields a fully synchronous, unbuffered handoff.
func NewChanSink(capacity int) *ChanSink {
	return &ChanSink{
		Chunks: make(chan []byte, capacity),
		Err:    make(chan error, 1),
	}
}

// Push copies chunk before sending it on Chunks, since the consuming
// goroutine reads from the channel asynchronously and may see the
// pipeline's buffer reused or zeroed otherwise.
func (s *ChanSink) Push(chunk []byte) error {
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.Chunks <- cp
	return nil
}

func (s *ChanSink) Finish() error {
	close(s.Chunks)
	return nil
}

func (s *ChanSink) Fail(err error) {
	s.Err <- err
	close(s.Chunks)
}
