package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// multipartCutover is the payload size above which Put switches from a
// single PutObject request to the concurrent multipart uploader. Monthly
// archive files usually stay well under this.
const multipartCutover = 16 << 20

// uploadPartSize is the part size for multipart uploads. S3 rejects parts
// under 5 MiB.
const uploadPartSize int64 = 8 << 20

// Writer implements domain.BlobWriter against an S3-compatible backend.
type Writer struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// NewWriter creates a Writer that uploads into the client's configured bucket.
func NewWriter(c *Client) *Writer {
	client := c.S3()
	return &Writer{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
		}),
		bucket: c.Bucket(),
	}
}

// Put uploads data under the given key. A payload whose remaining length is
// known and below the multipart cutover goes out as one PutObject call;
// anything larger, or a reader of unknown length, is streamed through the
// multipart uploader, which splits the body into parts and uploads them
// concurrently.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(path),
		Body:        data,
		ContentType: aws.String(contentType),
	}

	if n, ok := payloadLen(data); ok && n < multipartCutover {
		if _, err := w.client.PutObject(ctx, input); err != nil {
			return fmt.Errorf("s3blob: put object %s: %w", path, err)
		}
		return nil
	}

	if _, err := w.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}

// payloadLen reports data's remaining length when the reader exposes one.
// Archive uploads arrive as *bytes.Reader, so the single-request path is
// the common case.
func payloadLen(data io.Reader) (int64, bool) {
	if r, ok := data.(interface{ Len() int }); ok {
		return int64(r.Len()), true
	}
	return 0, false
}
