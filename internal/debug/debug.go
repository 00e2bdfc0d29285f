// Package debug carries process diagnostics unrelated to which AEAD the
// core selects: a debug-logging toggle, and CPU hardware-acceleration
// reporting surfaced through the HTTP debug endpoint. Since C1 always
// uses XChaCha20-Poly1305 (its 24-byte nonce is what the wire format
// requires), AES-NI presence is informational only — it reports on
// hardware the core does not exercise.
package debug

import (
	"os"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

var (
	enabled bool
	mu      sync.RWMutex
)

func init() {
	// Initialize from environment variables on package load
	// This ensures debug works even when not going through main.go (e.g., in tests)
	InitFromEnv()
}

// Enabled returns whether debug logging is enabled.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetEnabled sets whether debug logging is enabled.
func SetEnabled(value bool) {
	mu.Lock()
	defer mu.Unlock()
	enabled = value
}

// InitFromEnv initializes debug logging from environment variable or log level.
// If DEBUG=true is set, it enables debug logging.
// Otherwise, it checks if LOG_LEVEL=debug.
func InitFromEnv() {
	if os.Getenv("DEBUG") == "true" {
		SetEnabled(true)
		return
	}
	if os.Getenv("LOG_LEVEL") == "debug" {
		SetEnabled(true)
		return
	}
	SetEnabled(false)
}

// InitFromLogLevel initializes debug logging from a log level string.
// This will only set the flag if no environment variable is already set.
func InitFromLogLevel(logLevel string) {
	// Only override if environment variable is not set
	if os.Getenv("DEBUG") == "" && os.Getenv("LOG_LEVEL") == "" {
		SetEnabled(logLevel == "debug")
	}
}

// HasAESHardwareSupport reports whether the running CPU exposes AES
// instruction-set acceleration. The core never uses AES (the stream AEAD
// is XChaCha20-Poly1305), so this is purely informational.
func HasAESHardwareSupport() bool {
	switch runtime.GOARCH {
	case "amd64", "386":
		return cpu.X86.HasAES
	case "arm64":
		return cpu.ARM64.HasAES
	case "s390x":
		return cpu.S390X.HasAES
	default:
		return false
	}
}

// HardwareInfo summarizes the process's runtime and CPU diagnostics, for
// the debug HTTP surface's /debug/hardware endpoint.
type HardwareInfo struct {
	Architecture       string `json:"architecture"`
	OS                 string `json:"os"`
	GoVersion          string `json:"go_version"`
	AESHardwareSupport bool   `json:"aes_hardware_support"`
	DebugEnabled       bool   `json:"debug_enabled"`
}

// GetHardwareInfo returns the current HardwareInfo snapshot.
func GetHardwareInfo() HardwareInfo {
	return HardwareInfo{
		Architecture:       runtime.GOARCH,
		OS:                 runtime.GOOS,
		GoVersion:          runtime.Version(),
		AESHardwareSupport: HasAESHardwareSupport(),
		DebugEnabled:       Enabled(),
	}
}
