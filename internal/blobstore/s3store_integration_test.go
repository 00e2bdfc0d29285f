package blobstore

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/kenchrcum/streamseal/internal/resource"
	"github.com/kenchrcum/streamseal/internal/streamerr"
)

// startMinio runs a throwaway MinIO container and returns an S3Store
// pointed at a fresh bucket inside it.
func startMinio(t *testing.T) *S3Store {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcminio.Run(ctx, "minio/minio:RELEASE.2024-01-16T16-07-38Z")
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Skipf("MinIO container not available: %v", err)
	}

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := NewS3Store(ctx, Config{
		Provider:  "minio",
		Region:    "us-east-1",
		Bucket:    "streamseal-test",
		Endpoint:  "http://" + endpoint,
		AccessKey: container.Username,
		SecretKey: container.Password,
		PathStyle: true,
	})
	require.NoError(t, err)

	_, err = store.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(store.bucket),
	})
	require.NoError(t, err)

	return store
}

func TestS3StorePutGetDelete(t *testing.T) {
	store := startMinio(t)
	ctx := context.Background()

	id, _, err := resource.New()
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("sealed-chunk-"), 128)
	require.NoError(t, store.Put(ctx, id, bytes.NewReader(payload)))

	r, err := store.Get(ctx, id)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, payload, got)

	require.NoError(t, store.Delete(ctx, id))
	_, err = store.Get(ctx, id)
	require.Error(t, err)
	require.True(t, streamerr.IsKind(err, streamerr.KindKeyNotFound))
}

func TestS3StoreGetMissingFails(t *testing.T) {
	store := startMinio(t)
	id, _, err := resource.New()
	require.NoError(t, err)

	_, err = store.Get(context.Background(), id)
	require.Error(t, err)
	require.True(t, streamerr.IsKind(err, streamerr.KindKeyNotFound))
}

func TestS3StoreOverwriteReplacesObject(t *testing.T) {
	store := startMinio(t)
	ctx := context.Background()

	id, _, err := resource.New()
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, id, bytes.NewReader([]byte("first"))))
	require.NoError(t, store.Put(ctx, id, bytes.NewReader([]byte("second"))))

	r, err := store.Get(ctx, id)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.Equal(t, "second", string(got))
}
