package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farcloser/tocsin/internal/storage"
)

type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// mockS3 is an in-memory S3 backend.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: map[string][]byte{}}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}

	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[*in.Key] = data

	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, *in.Key)

	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.objects[*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}

	return &s3.HeadObjectOutput{}, nil
}

func exercise(t *testing.T, store storage.Store) {
	t.Helper()

	ctx := context.Background()

	ok, err := store.Exists(ctx, "model.json")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Get(ctx, "model.json")
	require.ErrorIs(t, err, fs.ErrNotExist)

	require.NoError(t, store.Put(ctx, "model.json", []byte(`{"a":1}`)))
	require.NoError(t, store.Put(ctx, "model.json", []byte(`{"a":2}`)))

	ok, err = store.Exists(ctx, "model.json")
	require.NoError(t, err)
	assert.True(t, ok)

	data, err := store.Get(ctx, "model.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(data))

	require.NoError(t, store.Delete(ctx, "model.json"))
	require.NoError(t, store.Delete(ctx, "model.json"))

	ok, err = store.Exists(ctx, "model.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocal(t *testing.T) {
	t.Parallel()

	store, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	exercise(t, store)
}

func TestS3(t *testing.T) {
	t.Parallel()

	exercise(t, storage.NewS3(newMockS3(), "bucket", "models/v1"))
}

func TestS3Prefix(t *testing.T) {
	t.Parallel()

	client := newMockS3()
	store := storage.NewS3(client, "bucket", "models")

	require.NoError(t, store.Put(context.Background(), "scaler.json", []byte("{}")))
	assert.Contains(t, client.objects, "models/scaler.json")
	assert.Equal(t, "s3://bucket/models", store.String())
}

func TestS3PutError(t *testing.T) {
	t.Parallel()

	client := newMockS3()
	client.putErr = errors.New("access denied")

	err := storage.NewS3(client, "bucket", "").Put(context.Background(), "x", nil)
	require.Error(t, err)
}

func TestOpenLocal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	store, err := storage.Open(context.Background(), dir, storage.S3Options{})
	require.NoError(t, err)
	assert.Equal(t, dir, store.String())
}

func TestOpenRejectsMissingBucket(t *testing.T) {
	t.Parallel()

	_, err := storage.Open(context.Background(), "s3:///prefix", storage.S3Options{})
	require.Error(t, err)
}
