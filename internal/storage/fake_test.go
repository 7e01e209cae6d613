package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 keeps multipart uploads and objects in memory.
type fakeS3 struct {
	mu        sync.Mutex
	nextID    int
	uploads   map[string]map[int32][]byte
	keys      map[string]string
	objects   map[string][]byte
	aborted   []string
	completed []string
	partSizes []int
	stale     []types.MultipartUpload
	deleted   []string

	failPart int32 // fail UploadPart with this number
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		uploads: map[string]map[int32][]byte{},
		keys:    map[string]string{},
		objects: map[string][]byte{},
	}
}

func (f *fakeS3) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("up-%d", f.nextID)
	f.uploads[id] = map[int32][]byte{}
	f.keys[id] = aws.ToString(in.Key)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (f *fakeS3) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	num := aws.ToInt32(in.PartNumber)
	if f.failPart != 0 && num == f.failPart {
		return nil, errors.New("part rejected")
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	parts, ok := f.uploads[aws.ToString(in.UploadId)]
	if !ok {
		return nil, errors.New("no such upload")
	}
	parts[num] = b
	f.partSizes = append(f.partSizes, len(b))
	return &s3.UploadPartOutput{ETag: aws.String(fmt.Sprintf("etag-%d", num))}, nil
}

func (f *fakeS3) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	parts, ok := f.uploads[id]
	if !ok {
		return nil, errors.New("no such upload")
	}
	if len(in.MultipartUpload.Parts) == 0 {
		return nil, errors.New("MalformedXML")
	}
	nums := make([]int, 0, len(parts))
	for n := range parts {
		nums = append(nums, int(n))
	}
	sort.Ints(nums)
	var buf bytes.Buffer
	for _, n := range nums {
		buf.Write(parts[int32(n)])
	}
	f.objects[f.keys[id]] = buf.Bytes()
	delete(f.uploads, id)
	f.completed = append(f.completed, id)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (f *fakeS3) AbortMultipartUpload(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := aws.ToString(in.UploadId)
	delete(f.uploads, id)
	f.aborted = append(f.aborted, id)
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(b)))}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range in.Delete.Objects {
		k := aws.ToString(o.Key)
		delete(f.objects, k)
		f.deleted = append(f.deleted, k)
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListMultipartUploads(_ context.Context, in *s3.ListMultipartUploadsInput, _ ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// two pages of one upload each
	if in.KeyMarker == nil && len(f.stale) > 1 {
		return &s3.ListMultipartUploadsOutput{
			Uploads:            f.stale[:1],
			IsTruncated:        aws.Bool(true),
			NextKeyMarker:      f.stale[0].Key,
			NextUploadIdMarker: f.stale[0].UploadId,
		}, nil
	}
	rest := f.stale
	if in.KeyMarker != nil {
		rest = f.stale[1:]
	}
	return &s3.ListMultipartUploadsOutput{Uploads: rest, IsTruncated: aws.Bool(false)}, nil
}

type fakePresigner struct{}

func (fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var o s3.PresignOptions
	for _, fn := range optFns {
		fn(&o)
	}
	return &v4.PresignedHTTPRequest{
		URL:    fmt.Sprintf("https://s3.test/%s/%s?X-Amz-Expires=%d", aws.ToString(in.Bucket), aws.ToString(in.Key), int(o.Expires/time.Second)),
		Method: "GET",
	}, nil
}

// failingReader yields n bytes then fails.
type failingReader struct {
	n   int
	err error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, r.err
	}
	k := min(len(p), r.n)
	for i := range p[:k] {
		p[i] = 'x'
	}
	r.n -= k
	return k, nil
}
