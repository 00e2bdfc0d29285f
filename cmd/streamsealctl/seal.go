package main

import (
	"context"
	"encoding/base64"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kenchrcum/streamseal/internal/audit"
	"github.com/kenchrcum/streamseal/internal/metrics"
	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/seal"
	"github.com/kenchrcum/streamseal/internal/streamerr"
	"github.com/kenchrcum/streamseal/internal/tracing"
)

func runSeal(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("seal", flag.ExitOnError)
	in := fs.String("in", "", "plaintext blob to seal as chunk 0")
	out := fs.String("out", "", "output sealed artifact file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *out == "" {
		return streamerr.New(streamerr.KindInvalidArgument, "seal requires -in and -out")
	}

	plaintext, err := os.ReadFile(*in)
	if err != nil {
		return err
	}

	m := metrics.NewMetrics()
	auditLog := audit.NewLogger(1000, nil)
	defer auditLog.Close()

	_, span := tracing.StartSealSpan(context.Background(), "seal")
	defer func() { tracing.EndSpan(span, err) }()

	enc := seal.NewChunkEncryptor()
	chunkStart := time.Now()
	ciphertext, chunkID, index, err := enc.Encrypt(plaintext, seal.Append)
	m.ObserveSealOp("encrypt", outcomeOf(err == nil))
	if err != nil {
		return err
	}

	artifact, outerKey, artifactID, err := enc.Seal()
	m.ObserveSealOp("seal", outcomeOf(err == nil))
	auditLog.LogSeal(artifactID.String(), err == nil, err, time.Since(chunkStart))
	if err != nil {
		return err
	}

	if err := os.WriteFile(*out, artifact, 0o600); err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"chunk_index":    index,
		"chunk_id":       chunkID.String(),
		"artifact_id":    artifactID.String(),
		"outer_key":      base64.StdEncoding.EncodeToString(outerKey.Bytes()),
		"chunk_bytes":    len(ciphertext),
		"artifact_bytes": len(artifact),
	}).Info("sealed chunk 0; the chunk ciphertext itself is not written anywhere by this command")
	return nil
}

func runOpen(log *logrus.Logger, args []string) error {
	fs := flag.NewFlagSet("open", flag.ExitOnError)
	in := fs.String("in", "", "sealed artifact file")
	keyB64 := fs.String("key", "", "base64-encoded 32-byte outer key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *keyB64 == "" {
		return streamerr.New(streamerr.KindInvalidArgument, "open requires -in and -key")
	}

	keyBytes, err := base64.StdEncoding.DecodeString(*keyB64)
	if err != nil {
		return streamerr.Wrap(streamerr.KindInvalidArgument, "malformed -key", err)
	}
	outerKey, err := resource.ParseKey(keyBytes)
	if err != nil {
		return err
	}

	artifact, err := os.ReadFile(*in)
	if err != nil {
		return err
	}

	_, span := tracing.StartSealSpan(context.Background(), "open")

	m := metrics.NewMetrics()
	start := time.Now()
	enc, err := seal.Open(artifact, outerKey)
	tracing.EndSpan(span, err)
	m.ObserveSealOp("open", outcomeOf(err == nil))
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"index_length": enc.Len(),
		"duration_ms":  time.Since(start).Milliseconds(),
	}).Info("opened chunk-key index; use the library API to decrypt individual chunks")
	return nil
}
