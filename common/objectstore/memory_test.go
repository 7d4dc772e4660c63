package objectstore

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/pulse/vidmod/common/apperrors"
	"github.com/pulse/vidmod/common/config"
	"github.com/pulse/vidmod/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryStore() *MemoryStore {
	return NewMemoryStore("gs", "test-bucket", "http://blobs.local/files", []byte("secret"))
}

func TestMemoryStore_PutDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore()

	uri, err := store.Put(ctx, "videos/alice/a.mp4", []byte("data"), "video/mp4")
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/videos/alice/a.mp4", uri)

	exists, err := store.Exists(ctx, uri)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.True(t, store.Delete(ctx, uri))
	assert.Equal(t, 0, store.Len())

	// deleting an absent blob still succeeds
	assert.True(t, store.Delete(ctx, uri))
}

func TestMemoryStore_DeleteMalformedURI(t *testing.T) {
	store := newTestMemoryStore()
	assert.False(t, store.Delete(context.Background(), "not-a-uri"))
	assert.False(t, store.Delete(context.Background(), "gs://other-bucket/a.mp4"))
}

func TestMemoryStore_SignedAccessURL(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	uri, err := store.Put(ctx, "videos/alice/a.mp4", []byte("data"), "video/mp4")
	require.NoError(t, err)

	signed, err := store.SignedAccessURL(ctx, uri, time.Hour)
	require.NoError(t, err)

	parsed, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/files/test-bucket/videos/alice/a.mp4", parsed.Path)
	assert.True(t, store.VerifySignedURL(signed))

	// tampering breaks the signature
	q := parsed.Query()
	q.Set("expires", "9999999999")
	parsed.RawQuery = q.Encode()
	assert.False(t, store.VerifySignedURL(parsed.String()))

	// expiry is enforced
	now = now.Add(2 * time.Hour)
	assert.False(t, store.VerifySignedURL(signed))
}

func TestMemoryStore_SignedAccessURLErrors(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore()

	_, err := store.SignedAccessURL(ctx, "gs://test-bucket/videos/missing.mp4", time.Hour)
	assert.ErrorIs(t, err, apperrors.ErrStorageRead)

	_, err = store.SignedAccessURL(ctx, "ftp://test-bucket/videos/a.mp4", time.Hour)
	assert.ErrorIs(t, err, apperrors.ErrStorageRead)

	_, err = store.SignedAccessURL(ctx, "gs://test-bucket/videos/a.mp4", 0)
	assert.ErrorIs(t, err, apperrors.ErrStorageRead)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore()

	_, err := store.Put(ctx, "videos/bob/b.mp4", []byte("b"), "video/mp4")
	require.NoError(t, err)
	_, err = store.Put(ctx, "videos/alice/a.mp4", []byte("aa"), "video/mp4")
	require.NoError(t, err)
	_, err = store.Put(ctx, "thumbs/alice/a.png", []byte("t"), "image/png")
	require.NoError(t, err)

	objects, err := store.List(ctx, "videos/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "gs://test-bucket/videos/alice/a.mp4", objects[0].URI)
	assert.Equal(t, int64(2), objects[0].Size)
	assert.Equal(t, "gs://test-bucket/videos/bob/b.mp4", objects[1].URI)
}

func TestMemoryStore_PutCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestMemoryStore().Put(ctx, "videos/a.mp4", []byte("x"), "video/mp4")
	assert.ErrorIs(t, err, apperrors.ErrStorageWrite)
}

func TestMemoryStore_OpenSigned(t *testing.T) {
	ctx := context.Background()
	store := newTestMemoryStore()

	uri, err := store.Put(ctx, "videos/alice/a.mp4", []byte("data"), "video/mp4")
	require.NoError(t, err)
	signed, err := store.SignedAccessURL(ctx, uri, time.Minute)
	require.NoError(t, err)

	data, contentType, err := store.OpenSigned(signed)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
	assert.Equal(t, "video/mp4", contentType)

	_, _, err = store.OpenSigned(signed + "0")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	store.Delete(ctx, uri)
	_, _, err = store.OpenSigned(signed)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestNew_SelectsBackend(t *testing.T) {
	store, err := New(context.Background(), config.ObjectStoreConfig{
		Backend:    "memory",
		Bucket:     "local",
		Scheme:     "gs",
		PublicURL:  "http://localhost:8080/blobs",
		SigningKey: "k",
	}, logger.Discard())
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	_, err = New(context.Background(), config.ObjectStoreConfig{Backend: "ftp"}, logger.Discard())
	assert.Error(t, err)
}
