package main

import (
	"context"
	"encoding/base64"
	"flag"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenchrcum/streamseal/internal/audit"
	"github.com/kenchrcum/streamseal/internal/metrics"
	"github.com/kenchrcum/streamseal/internal/pipeline"
	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
	"github.com/kenchrcum/streamseal/internal/tracing"
)

// fileSink is a pipeline.Sink that writes every pushed chunk straight to
// an *os.File, for streamsealctl's single-goroutine CLI use. Unlike
// pipeline.ChanSink it needs no consumer goroutine; the file write itself
// is the backpressure.
type fileSink struct {
	w   io.Writer
	log *logrus.Logger
}

func (s *fileSink) Push(chunk []byte) error {
	_, err := s.w.Write(chunk)
	return err
}

func (s *fileSink) Finish() error { return nil }

func (s *fileSink) Fail(err error) {
	if s.log != nil {
		s.log.WithError(err).Error("pipeline failed")
	}
}

func runEncrypt(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ExitOnError)
	in := fs.String("in", "", "input plaintext file")
	out := fs.String("out", "", "output v4 stream file")
	chunkSize := fs.Uint("chunk-size", 0, "encryptedChunkSize, 0 selects the default")
	usePool := fs.Bool("pool", true, "draw the framing buffer from a pool instead of allocating per chunk")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return streamerr.New(streamerr.KindInvalidArgument, "encrypt requires -in and -out")
	}

	id, key, err := resource.New()
	if err != nil {
		return err
	}

	inFile, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer inFile.Close()

	outFile, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer outFile.Close()

	sink := &fileSink{w: outFile, log: log}

	m := metrics.NewMetrics()

	var opts []pipeline.EncryptorOption
	if *usePool {
		pool := pipeline.NewBufferPool(int(pickChunkSize(uint32(*chunkSize))))
		pool.OnGet = m.RecordBufferPoolGet
		opts = append(opts, pipeline.WithBufferPool(pool))
	}

	enc, err := pipeline.NewEncryptor(id, key, uint32(*chunkSize), sink, opts...)
	if err != nil {
		return err
	}

	auditLog := audit.NewLogger(1000, nil)
	defer auditLog.Close()

	ctx, span := tracing.StartPipelineSpan(context.Background(), "encrypt")
	start := time.Now()
	n, err := copyInto(enc, inFile)
	success := err == nil
	if err == nil {
		err = enc.End()
		success = err == nil
	}
	tracing.EndSpan(span, err)
	m.ObservePipelineOpWithExemplar(ctx, "encrypt", outcomeOf(success), time.Since(start))
	m.AddChunkBytes("encrypt", int(n))
	auditLog.LogEncrypt(id.String(), 4, success, err, time.Since(start), nil)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"resource_id":  id.String(),
		"resource_key": base64.StdEncoding.EncodeToString(key.Bytes()),
		"bytes_in":     n,
	}).Info("encrypted resource; save resource_id and resource_key to decrypt it")
	return nil
}

func runDecrypt(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ExitOnError)
	in := fs.String("in", "", "input v4 or v1 stream file")
	out := fs.String("out", "", "output plaintext file")
	keyB64 := fs.String("key", "", "base64-encoded 32-byte resource key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" || *keyB64 == "" {
		return streamerr.New(streamerr.KindInvalidArgument, "decrypt requires -in, -out, and -key")
	}

	keyBytes, err := base64.StdEncoding.DecodeString(*keyB64)
	if err != nil {
		return streamerr.Wrap(streamerr.KindInvalidArgument, "malformed -key", err)
	}
	key, err := resource.ParseKey(keyBytes)
	if err != nil {
		return err
	}

	inFile, err := os.Open(*in)
	if err != nil {
		return err
	}
	defer inFile.Close()

	outFile, err := os.Create(*out)
	if err != nil {
		return err
	}
	defer outFile.Close()

	sink := &fileSink{w: outFile, log: log}
	lookup := pipeline.KeyLookupFunc(func(ctx context.Context, id resource.ID) (resource.Key, error) {
		return key, nil
	})

	dec, err := pipeline.NewDecryptor(context.Background(), lookup, sink)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	auditLog := audit.NewLogger(1000, nil)
	defer auditLog.Close()

	ctx, span := tracing.StartPipelineSpan(context.Background(), "decrypt")
	start := time.Now()
	n, err := copyInto(dec, inFile)
	success := err == nil
	if err == nil {
		err = dec.End()
		success = err == nil
	}
	tracing.EndSpan(span, err)
	m.ObservePipelineOpWithExemplar(ctx, "decrypt", outcomeOf(success), time.Since(start))
	m.AddChunkBytes("decrypt", int(n))
	auditLog.LogDecrypt("", 0, success, err, time.Since(start), nil)
	if err != nil {
		return err
	}

	log.WithField("bytes_in", n).Info("decrypted resource")
	return nil
}

// writer is satisfied by both *pipeline.Encryptor and *pipeline.Decryptor.
type writer interface {
	Write(p []byte) error
}

func copyInto(w writer, r io.Reader) (int64, error) {
	buf := make([]byte, 64*1024)
	var total int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}

func outcomeOf(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// pickChunkSize mirrors pipeline's own default so a caller-sized buffer
// pool matches the encryptor it's handed to.
func pickChunkSize(configured uint32) uint32 {
	if configured == 0 {
		return pipeline.DefaultEncryptedChunkSize
	}
	return configured
}
