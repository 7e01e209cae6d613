package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/maruthi2426/merge-bot/internal/merge"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestUploadPartLayout(t *testing.T) {
	t.Parallel()
	const part = 1024

	tests := []struct {
		name      string
		size      int
		wantParts []int
	}{
		{name: "below one part", size: 10, wantParts: []int{10}},
		{name: "exactly one part", size: part, wantParts: []int{part}},
		{name: "exact multiple", size: 3 * part, wantParts: []int{part, part, part}},
		{name: "with remainder", size: 2*part + 1, wantParts: []int{part, part, 1}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			api := newFakeS3()
			u := NewUploader(api, "bkt", part)
			data := randomBytes(t, tt.size)

			obj, err := u.Upload(context.Background(), "1/out/x.mkv", bytes.NewReader(data))
			require.NoError(t, err)
			require.Equal(t, tt.wantParts, api.partSizes)
			require.Equal(t, (tt.size+part-1)/part, obj.Parts)
			require.Equal(t, int64(tt.size), obj.Size)
			require.Equal(t, "s3://bkt/1/out/x.mkv", obj.Locator())
			require.Equal(t, data, api.objects["1/out/x.mkv"])
			require.Empty(t, api.aborted)
		})
	}
}

func TestUploadEmptyStreamAborts(t *testing.T) {
	t.Parallel()
	api := newFakeS3()
	u := NewUploader(api, "bkt", 1024)

	_, err := u.Upload(context.Background(), "k", strings.NewReader(""))
	require.ErrorIs(t, err, merge.ErrUploadFailed)
	require.Len(t, api.aborted, 1)
	require.Empty(t, api.completed)
	require.Empty(t, api.partSizes)
}

func TestUploadReadErrorAborts(t *testing.T) {
	t.Parallel()
	api := newFakeS3()
	u := NewUploader(api, "bkt", 1024)
	cause := errors.New("process exited 1")

	_, err := u.Upload(context.Background(), "k", &failingReader{n: 2*1024 + 100, err: cause})
	require.ErrorIs(t, err, merge.ErrUploadFailed)
	require.ErrorIs(t, err, cause)
	require.Equal(t, []int{1024, 1024}, api.partSizes, "the partial third part is not sent")
	require.Len(t, api.aborted, 1)
	require.Empty(t, api.completed)
	require.NotContains(t, api.objects, "k")
}

func TestUploadPartFailureAborts(t *testing.T) {
	t.Parallel()
	api := newFakeS3()
	api.failPart = 2
	u := NewUploader(api, "bkt", 1024)

	_, err := u.Upload(context.Background(), "k", bytes.NewReader(randomBytes(t, 4096)))
	require.ErrorIs(t, err, merge.ErrUploadFailed)
	require.Len(t, api.aborted, 1)
	require.Empty(t, api.objects)
}

func TestUploadCancelledContextStillAborts(t *testing.T) {
	t.Parallel()
	api := newFakeS3()
	u := NewUploader(api, "bkt", 1024)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := u.Upload(ctx, "k", bytes.NewReader(randomBytes(t, 10)))
	require.ErrorIs(t, err, merge.ErrUploadFailed)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, api.aborted, 1)
}

func TestNewUploaderDefaultPartSize(t *testing.T) {
	t.Parallel()
	u := NewUploader(newFakeS3(), "bkt", 0)
	require.EqualValues(t, MinPartSize, u.partSize)
	require.Equal(t, "bkt", u.bucket)
}
