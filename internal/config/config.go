// Package config loads the layered, hot-reloadable configuration that
// ties the core pipelines (internal/pipeline, internal/seal) to their
// external collaborators: the keystore, the blobstore, and the KMIP
// wrapper.
package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RedisConfig configures the keystore's Redis-backed reference store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BlobstoreConfig configures the S3-compatible resource store.
type BlobstoreConfig struct {
	Provider  string `mapstructure:"provider"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`
}

// KMSConfig configures the KMIP-backed outer-key wrapper. Empty Addr
// means seal outer keys are handled in the clear by the caller.
type KMSConfig struct {
	Addr  string `mapstructure:"addr"`
	KeyID string `mapstructure:"key_id"`
}

// Config is the full set of knobs the ambient stack needs beyond what a
// single pipeline call takes as an argument.
type Config struct {
	// EncryptedChunkSize is the configured encryptedChunkSize, 0 standing
	// for pipeline.DefaultEncryptedChunkSize. No streamsealctl command reads
	// it; encrypt takes its chunk size from the -chunk-size flag.
	EncryptedChunkSize uint32          `mapstructure:"encrypted_chunk_size"`
	LogLevel           string          `mapstructure:"log_level"`
	Redis              RedisConfig     `mapstructure:"redis"`
	Blobstore          BlobstoreConfig `mapstructure:"blobstore"`
	KMS                KMSConfig       `mapstructure:"kms"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("encrypted_chunk_size", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("blobstore.provider", "aws")
	v.SetDefault("blobstore.path_style", false)
}

// Load reads configuration from path (if non-empty) and from
// STREAMSEAL_-prefixed environment variables, applying defaults for
// anything neither source sets.
func Load(path string) (*Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("streamseal")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

// Watcher reloads a Config whenever its backing file changes on disk,
// using viper's fsnotify-backed file watch.
type Watcher struct {
	v *viper.Viper
}

// NewWatcher builds a Watcher over path and invokes onChange once
// immediately with the initial configuration, then again every time the
// file is modified. onChange is called from the fsnotify goroutine viper
// starts internally; callers that mutate shared state from it must
// synchronize themselves.
func NewWatcher(path string, onChange func(*Config, error)) (*Watcher, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("streamseal")
	v.AutomaticEnv()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	w := &Watcher{v: v}
	v.OnConfigChange(func(e fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			onChange(nil, fmt.Errorf("config: reload %s: %w", e.Name, err))
			return
		}
		onChange(&cfg, nil)
	})
	v.WatchConfig()

	var initial Config
	if err := v.Unmarshal(&initial); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	onChange(&initial, nil)

	return w, nil
}
