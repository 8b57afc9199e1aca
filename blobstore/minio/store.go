package minio

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

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/balltree/blobstore"
)

// Options contains configuration options for the MinIO store.
type Options struct {
	// Prefix is prepended to every blob name (e.g. "indexes/").
	Prefix string

	// ContentType is attached to uploaded snapshots. Defaults to
	// "application/octet-stream".
	ContentType string

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

// WithContentType sets the content type attached to uploads.
func WithContentType(contentType string) func(*Options) {
	return func(o *Options) {
		o.ContentType = contentType
	}
}

// WithLogger sets the logger used for transfer logging.
func WithLogger(l *slog.Logger) func(*Options) {
	return func(o *Options) {
		o.Logger = l
	}
}

// Store implements blobstore.BlobStore for MinIO and other
// S3-compatible object stores. Snapshots are written-once blobs:
// uploads happen in one shot with a known length (which lets the
// client skip the unknown-size streaming path) and reads use ranged
// GETs.
type Store struct {
	client *minio.Client
	bucket string
	opts   Options
}

// NewStore creates a new MinIO blob store for the given bucket.
func NewStore(client *minio.Client, bucket string, optFns ...func(*Options)) *Store {
	opts := Options{
		ContentType: "application/octet-stream",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	return &Store{
		client: client,
		bucket: bucket,
		opts:   opts,
	}
}

func (s *Store) key(name string) string {
	return path.Join(s.opts.Prefix, name)
}

// isNotFound reports whether err is a missing-object response.
func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

// Open opens an existing blob for reading.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)

	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", blobstore.ErrNotFound, key)
		}
		return nil, err
	}

	s.opts.Logger.DebugContext(ctx, "blob opened", "bucket", s.bucket, "key", key, "size", info.Size)

	return &readBlob{store: s, key: key, size: info.Size}, nil
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
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: s.opts.ContentType})
	s.opts.Logger.DebugContext(ctx, "blob uploaded", "bucket", s.bucket, "key", key, "size", len(data), "error", err)
	return err
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns all blob names with the given prefix, sorted.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string

	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.key(prefix),
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if name := s.trimPrefix(obj.Key); name != "" {
			names = append(names, name)
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
		return 0, fmt.Errorf("minio: negative read offset %d", off)
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

	getOpts := minio.GetObjectOptions{}
	if err := getOpts.SetRange(off, off+want-1); err != nil {
		return 0, err
	}

	obj, err := b.store.client.GetObject(context.Background(), b.store.bucket, b.key, getOpts)
	if err != nil {
		return 0, err
	}
	defer func() { _ = obj.Close() }()

	n, err := io.ReadFull(obj, p[:want])
	if err != nil {
		return n, err
	}
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
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
		return 0, errors.New("minio: write after close")
	}
	return b.buf.Write(p)
}

// Sync is a no-op: nothing is durable before Close.
func (b *writeBlob) Sync() error { return nil }

func (b *writeBlob) Close() error {
	if b.closed {
		return errors.New("minio: blob already closed")
	}
	b.closed = true
	return b.store.upload(b.ctx, b.key, b.buf.Bytes())
}
