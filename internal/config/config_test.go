package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "streamseal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, uint32(0), cfg.EncryptedChunkSize)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	require.Equal(t, "aws", cfg.Blobstore.Provider)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
encrypted_chunk_size: 2097152
log_level: debug
redis:
  addr: redis:6379
  db: 2
blobstore:
  provider: minio
  bucket: streamseal
  endpoint: http://minio:9000
  path_style: true
kms:
  addr: kmip://kms:5696
  key_id: outer-key-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(2097152), cfg.EncryptedChunkSize)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "redis:6379", cfg.Redis.Addr)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, "minio", cfg.Blobstore.Provider)
	require.True(t, cfg.Blobstore.PathStyle)
	require.Equal(t, "outer-key-1", cfg.KMS.KeyID)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestWatcherReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "encrypted_chunk_size: 1048576\n")

	results := make(chan *Config, 4)
	_, err := NewWatcher(path, func(cfg *Config, err error) {
		require.NoError(t, err)
		results <- cfg
	})
	require.NoError(t, err)

	initial := <-results
	require.Equal(t, uint32(1048576), initial.EncryptedChunkSize)

	writeConfig(t, dir, "encrypted_chunk_size: 2097152\n")

	select {
	case cfg := <-results:
		require.Equal(t, uint32(2097152), cfg.EncryptedChunkSize)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
