// Command streamsealctl is the thin CLI/HTTP wrapper around the
// streamseal core: it encrypts and decrypts files through the v4
// pipeline, seals and opens chunk-key indexes, and can run a debug HTTP
// surface. It only wires the core's public API together; the hard
// engineering lives in the internal packages.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "encrypt":
		err = runEncrypt(log, os.Args[2:])
	case "decrypt":
		err = runDecrypt(log, os.Args[2:])
	case "seal":
		err = runSeal(log, os.Args[2:])
	case "open":
		err = runOpen(log, os.Args[2:])
	case "serve":
		err = runServe(log, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.WithError(err).Error("streamsealctl failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `streamsealctl <command> [flags]

Commands:
  encrypt   Encrypt a file into a v4 stream
  decrypt   Decrypt a v4 (or v1) stream back into a file
  seal      Seal one plaintext blob as chunk 0 of a fresh chunk-key index
  open      Open a sealed chunk-key artifact and report its index length
  serve     Run the debug HTTP surface (/healthz, /readyz, /metrics)`)
}
