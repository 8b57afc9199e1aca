package persistence

import (
	"bytes"
	"context"
	"io"

	"github.com/hupe1980/balltree"
	"github.com/hupe1980/balltree/blobstore"
	"github.com/hupe1980/balltree/resource"
)

// StoreOptions configures blob store snapshot transfers.
type StoreOptions struct {
	// Codec selects the payload compression. CodecZstd by default.
	Codec Codec

	// Controller, if set, rate-limits snapshot IO against a shared
	// budget.
	Controller *resource.Controller
}

// WithStoreCodec sets the payload compression codec for a transfer.
func WithStoreCodec(c Codec) func(*StoreOptions) {
	return func(o *StoreOptions) {
		o.Codec = c
	}
}

// WithStoreController rate-limits the transfer against a shared
// resource controller.
func WithStoreController(c *resource.Controller) func(*StoreOptions) {
	return func(o *StoreOptions) {
		o.Controller = c
	}
}

// SaveToStore streams a snapshot into the named blob.
func SaveToStore(ctx context.Context, store blobstore.BlobStore, name string, t *balltree.Tree, optFns ...func(*StoreOptions)) error {
	opts := StoreOptions{Codec: DefaultOptions.Codec}
	for _, fn := range optFns {
		fn(&opts)
	}

	w, err := store.Create(ctx, name)
	if err != nil {
		return err
	}

	var dst io.Writer = w
	if opts.Controller != nil {
		dst = &limitedWriter{ctx: ctx, w: w, controller: opts.Controller}
	}

	if err := Save(dst, t, WithCodec(opts.Codec)); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// LoadFromStore reads a snapshot from the named blob.
func LoadFromStore(ctx context.Context, store blobstore.BlobStore, name string, optFns ...func(*StoreOptions)) (*balltree.Tree, error) {
	opts := StoreOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	blob, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	if err := acquireIOChunked(ctx, opts.Controller, int(blob.Size())); err != nil {
		return nil, err
	}

	data, err := blobstore.ReadAll(blob)
	if err != nil {
		return nil, err
	}

	return Load(bytes.NewReader(data))
}

// ioChunk keeps single rate-limiter reservations below any sane burst.
const ioChunk = 256 * 1024

func acquireIOChunked(ctx context.Context, c *resource.Controller, bytes int) error {
	for bytes > 0 {
		n := min(bytes, ioChunk)
		if err := c.AcquireIO(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}

// limitedWriter throttles writes through a resource controller.
type limitedWriter struct {
	ctx        context.Context
	w          io.Writer
	controller *resource.Controller
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n := min(len(p)-written, ioChunk)
		if err := lw.controller.AcquireIO(lw.ctx, n); err != nil {
			return written, err
		}
		m, err := lw.w.Write(p[written : written+n])
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
