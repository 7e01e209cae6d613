package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"

	"github.com/maruthi2426/merge-bot/internal/merge"
	"github.com/maruthi2426/merge-bot/internal/metrics"
)

const (
	// MinPartSize is the smallest non-final part S3 accepts.
	MinPartSize = 5 << 20
	maxParts    = 10000
	abortWait   = 30 * time.Second
)

// MultipartAPI is the subset of *s3.Client the uploader drives.
type MultipartAPI interface {
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Object describes a completed upload.
type Object struct {
	Bucket string
	Key    string
	Size   int64
	Parts  int
}

func (o Object) Locator() string { return Locator(o.Bucket, o.Key) }

// Uploader streams a reader of unknown length into one object using parts of
// a fixed size. The last part may be smaller; an empty part is never sent.
type Uploader struct {
	api         MultipartAPI
	bucket      string
	partSize    int64
	contentType string
	metrics     *metrics.Metrics
}

type UploaderOption func(*Uploader)

// WithContentType sets the Content-Type of uploaded objects.
func WithContentType(ct string) UploaderOption {
	return func(u *Uploader) { u.contentType = ct }
}

func WithMetrics(m *metrics.Metrics) UploaderOption {
	return func(u *Uploader) { u.metrics = m }
}

// NewUploader returns an uploader for bucket. partSize <= 0 selects MinPartSize.
func NewUploader(api MultipartAPI, bucket string, partSize int64, opts ...UploaderOption) *Uploader {
	if partSize <= 0 {
		partSize = MinPartSize
	}
	u := &Uploader{api: api, bucket: bucket, partSize: partSize}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Upload copies r into key. On any failure the multipart upload is aborted
// before the error is returned, so no partial object is left behind.
func (u *Uploader) Upload(ctx context.Context, key string, r io.Reader) (obj Object, err error) {
	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}
	if u.contentType != "" {
		in.ContentType = aws.String(u.contentType)
	}
	created, err := u.api.CreateMultipartUpload(ctx, in)
	if err != nil {
		return Object{}, fmt.Errorf("%w: create multipart upload: %w", merge.ErrUploadFailed, err)
	}
	uploadID := aws.ToString(created.UploadId)
	lg := log.With().Str("key", key).Str("upload_id", uploadID).Logger()

	defer func() {
		if err == nil {
			return
		}
		lg.Warn().Err(err).Msg("aborting multipart upload")
		if abortErr := u.abort(ctx, key, uploadID); abortErr != nil {
			lg.Error().Err(abortErr).Msg("abort multipart upload failed")
		}
	}()

	buf := make([]byte, u.partSize)
	var parts []types.CompletedPart
	var size int64
	for {
		if err = ctx.Err(); err != nil {
			return Object{}, fmt.Errorf("%w: %w", merge.ErrUploadFailed, err)
		}

		n, rerr := io.ReadFull(r, buf)
		last := errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF)
		if rerr != nil && !last {
			err = fmt.Errorf("%w: read part %d: %w", merge.ErrUploadFailed, len(parts)+1, rerr)
			return Object{}, err
		}
		if n > 0 {
			if len(parts) == maxParts {
				err = fmt.Errorf("%w: more than %d parts", merge.ErrUploadFailed, maxParts)
				return Object{}, err
			}
			num := int32(len(parts) + 1)
			out, perr := u.api.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:        aws.String(u.bucket),
				Key:           aws.String(key),
				UploadId:      aws.String(uploadID),
				PartNumber:    aws.Int32(num),
				Body:          bytes.NewReader(buf[:n]),
				ContentLength: aws.Int64(int64(n)),
			})
			if perr != nil {
				err = fmt.Errorf("%w: upload part %d: %w", merge.ErrUploadFailed, num, perr)
				return Object{}, err
			}
			parts = append(parts, types.CompletedPart{ETag: out.ETag, PartNumber: aws.Int32(num)})
			size += int64(n)
			u.metrics.PartUploaded(n)
			lg.Debug().Int32("part", num).Int("bytes", n).Msg("part uploaded")
		}
		if last {
			break
		}
	}

	if len(parts) == 0 {
		err = fmt.Errorf("%w: empty stream", merge.ErrUploadFailed)
		return Object{}, err
	}

	_, err = u.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(u.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		err = fmt.Errorf("%w: complete multipart upload: %w", merge.ErrUploadFailed, err)
		return Object{}, err
	}

	lg.Info().Int("parts", len(parts)).Int64("bytes", size).Msg("multipart upload completed")
	return Object{Bucket: u.bucket, Key: key, Size: size, Parts: len(parts)}, nil
}

// abort runs even when ctx is already cancelled.
func (u *Uploader) abort(ctx context.Context, key, uploadID string) error {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortWait)
	defer cancel()
	u.metrics.UploadAborted()
	_, err := u.api.AbortMultipartUpload(actx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	return err
}
