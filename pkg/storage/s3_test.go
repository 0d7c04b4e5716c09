package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	body        []byte
	contentType string
	modified    time.Time
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]fakeObject
	now     time.Time
}

func newFakeS3(now time.Time) *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject), now: now}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, contentType: aws.ToString(in.ContentType), modified: f.now}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		modified := f.objects[key].modified
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key), LastModified: aws.Time(modified)})
	}
	return out, nil
}

func TestS3StoragePutGet(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3(time.Now())
	store := NewS3Storage(fake, "exports", "/booknova/")

	require.NoError(t, store.Put(ctx, "loans/overdue.pdf", strings.NewReader("%PDF"), "application/pdf"))
	obj, ok := fake.objects["booknova/loans/overdue.pdf"]
	require.True(t, ok)
	assert.Equal(t, "application/pdf", obj.contentType)

	rc, err := store.Get(ctx, "loans/overdue.pdf")
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF", string(body))

	_, err = store.Get(ctx, "missing.csv")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestS3StorageCleanup(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fake := newFakeS3(now.Add(-3 * time.Hour))
	store := NewS3Storage(fake, "exports", "booknova")
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "old.csv", strings.NewReader("a"), ""))
	fake.now = now
	require.NoError(t, store.Put(ctx, "new.csv", strings.NewReader("b"), ""))

	deleted, err := store.CleanupOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.csv"}, deleted)
	assert.Contains(t, fake.objects, "booknova/new.csv")
}
