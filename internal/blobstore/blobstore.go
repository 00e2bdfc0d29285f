// Package blobstore lets an encrypted stream or a sealed chunk-key index
// be persisted and retrieved as a named object, addressed by its
// resource.ID. AWS, MinIO, and other S3-compatible backends all speak
// the same API with a different BaseEndpoint.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// Store persists and retrieves resources by identifier, independent of
// how the bytes are encoded (an encrypted v4 stream, a v1 legacy stream,
// or a sealed chunk-key artifact are all just bytes to this layer).
type Store interface {
	Put(ctx context.Context, id resource.ID, r io.Reader) error
	Get(ctx context.Context, id resource.ID) (io.ReadCloser, error)
	Delete(ctx context.Context, id resource.ID) error
}

// Config configures an S3-compatible backend. Endpoint is left empty to
// target AWS S3 itself; set it to point at MinIO, Garage, or any other
// S3-compatible endpoint.
type Config struct {
	Provider  string // "aws", "minio", "garage", ...
	Region    string
	Bucket    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// PathStyle forces path-style addressing, required by most
	// non-AWS S3-compatible backends.
	PathStyle bool
}

// S3Store is the reference Store implementation.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3Store from cfg.
func NewS3Store(ctx context.Context, cfg Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, streamerr.Wrap(streamerr.KindInvalidArgument, "failed to load aws config", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" && cfg.Provider != "aws" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, opts...),
		bucket: cfg.Bucket,
	}, nil
}

func (s *S3Store) objectKey(id resource.ID) string {
	return "streamseal/" + id.String()
}

// Put uploads r's full contents under id. The caller is responsible for
// r containing a complete, already-framed stream or seal artifact;
// blobstore does not interpret the bytes.
func (s *S3Store) Put(ctx context.Context, id resource.ID, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return streamerr.Wrap(streamerr.KindInvalidArgument, "failed to read resource body", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return streamerr.Wrap(streamerr.KindInvalidArgument, fmt.Sprintf("failed to put resource %s", id), err)
	}
	return nil
}

// Get retrieves the object stored under id. The caller must Close the
// returned reader.
func (s *S3Store) Get(ctx context.Context, id resource.ID) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		return nil, streamerr.Wrap(streamerr.KindKeyNotFound, fmt.Sprintf("failed to get resource %s", id), err)
	}
	return out.Body, nil
}

// Delete removes the object stored under id. Deleting a resource that
// doesn't exist is not an error, matching S3's own delete semantics.
func (s *S3Store) Delete(ctx context.Context, id resource.ID) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		return streamerr.Wrap(streamerr.KindInvalidArgument, fmt.Sprintf("failed to delete resource %s", id), err)
	}
	return nil
}

// MemStore is an in-memory Store, for tests and for streamsealctl's
// offline demo mode where no S3-compatible endpoint is configured.
type MemStore struct {
	mu      sync.RWMutex
	objects map[resource.ID][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{objects: make(map[resource.ID][]byte)}
}

var _ Store = (*MemStore)(nil)

func (m *MemStore) Put(_ context.Context, id resource.ID, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return streamerr.Wrap(streamerr.KindInvalidArgument, "failed to read resource body", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[id] = body
	return nil
}

func (m *MemStore) Get(_ context.Context, id resource.ID) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.objects[id]
	if !ok {
		return nil, streamerr.New(streamerr.KindKeyNotFound, fmt.Sprintf("no resource %s", id))
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *MemStore) Delete(_ context.Context, id resource.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, id)
	return nil
}
