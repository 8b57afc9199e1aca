package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/hupe1980/balltree/blobstore"
)

// Client is the subset of the S3 API the store uses. *s3.Client
// satisfies it; tests may substitute a fake.
type Client interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Options contains configuration options for the S3 store.
type Options struct {
	// Prefix is prepended to every blob name (e.g. "indexes/").
	Prefix string

	// PartSize overrides the multipart upload part size in bytes.
	// Zero keeps the SDK default.
	PartSize int64

	// Logger receives structured transfer logs. Defaults to a discard
	// logger.
	Logger *slog.Logger
}

// WithPrefix sets the key prefix prepended to every blob name.
func WithPrefix(prefix string) func(*Options) {
	return func(o *Options) {
		o.Prefix = prefix
	}
}

// WithPartSize overrides the multipart upload part size.
func WithPartSize(bytes int64) func(*Options) {
	return func(o *Options) {
		o.PartSize = bytes
	}
}

// WithLogger sets the logger used for transfer logging.
func WithLogger(l *slog.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = l
	}
}

// Store implements blobstore.BlobStore for S3. Snapshots are
// written-once blobs, so uploads go through the transfer manager in a
// single shot and reads use ranged GETs.
type Store struct {
	client   Client
	uploader *manager.Uploader
	bucket   string
	opts     Options
}

// NewStore creates a new S3 blob store for the given bucket.
func NewStore(client Client, bucket string, optFns ...func(*Options)) *Store {
	opts := Options{}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if opts.PartSize > 0 {
			u.PartSize = opts.PartSize
		}
	})

	return &Store{
		client:   client,
		uploader: uploader,
		bucket:   bucket,
		opts:     opts,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.opts.Prefix, name)
}

// mapAPIError translates S3 not-found responses into
// blobstore.ErrNotFound and passes everything else through.
func mapAPIError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: %s", blobstore.ErrNotFound, apiErr.ErrorCode())
		}
	}
	return err
}

// Open opens a blob for reading.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapAPIError(err)
	}

	size := aws.ToInt64(head.ContentLength)
	s.opts.Logger.DebugContext(ctx, "blob opened", "bucket", s.bucket, "key", key, "size", size)

	return &readBlob{store: s, key: key, size: size}, nil
}

// Create returns a write-once blob. Writes accumulate in memory and the
// upload happens on Close; a snapshot is never larger than the index it
// serializes, which the caller already holds in memory.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return &writeBlob{store: s, ctx: ctx, key: s.key(name)}, nil
}

// Put writes a blob in one shot.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	return s.upload(ctx, s.key(name), data)
}

func (s *Store) upload(ctx context.Context, key string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	s.opts.Logger.DebugContext(ctx, "blob uploaded", "bucket", s.bucket, "key", key, "size", len(data), "error", err)
	return err
}

// Delete removes a blob. S3 deletes are idempotent, so deleting a
// missing blob is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil && errors.Is(mapAPIError(err), blobstore.ErrNotFound) {
		return nil
	}
	return err
}

// List returns all blob names with the given prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			if name := s.trimPrefix(aws.ToString(obj.Key)); name != "" {
				names = append(names, name)
			}
		}
	}

	sort.Strings(names)
	return names, nil
}

func (s *Store) trimPrefix(key string) string {
	name := strings.TrimPrefix(key, s.opts.Prefix)
	return strings.TrimPrefix(name, "/")
}

// readBlob serves ranged GETs against one object.
type readBlob struct {
	store *Store
	key   string
	size  int64
}

func (b *readBlob) Close() error { return nil }

func (b *readBlob) Size() int64 { return b.size }

func (b *readBlob) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("s3: negative read offset %d", off)
	}
	if off >= b.size {
		return 0, io.EOF
	}

	want := int64(len(p))
	if rem := b.size - off; want > rem {
		want = rem
	}
	if want == 0 {
		return 0, nil
	}

	out, err := b.store.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.store.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(httpRange(off, want)),
	})
	if err != nil {
		return 0, mapAPIError(err)
	}
	defer func() { _ = out.Body.Close() }()

	n, err := io.ReadFull(out.Body, p[:want])
	if err != nil {
		return n, err
	}
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// httpRange formats an inclusive HTTP byte-range header value.
func httpRange(off, length int64) string {
	return fmt.Sprintf("bytes=%d-%d", off, off+length-1)
}

// writeBlob buffers writes and uploads once on Close.
type writeBlob struct {
	store  *Store
	ctx    context.Context
	key    string
	buf    bytes.Buffer
	closed bool
}

func (b *writeBlob) Write(p []byte) (int, error) {
	if b.closed {
		return 0, errors.New("s3: write after close")
	}
	return b.buf.Write(p)
}

// Sync is a no-op: nothing is durable before Close.
func (b *writeBlob) Sync() error { return nil }

func (b *writeBlob) Close() error {
	if b.closed {
		return errors.New("s3: blob already closed")
	}
	b.closed = true
	return b.store.upload(b.ctx, b.key, b.buf.Bytes())
}
