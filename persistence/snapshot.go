package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/balltree"
)

// Options contains configuration options for snapshot encoding.
type Options struct {
	// Codec selects the payload compression. CodecZstd by default.
	Codec Codec
}

// DefaultOptions contains the default snapshot options.
var DefaultOptions = Options{
	Codec: CodecZstd,
}

// WithCodec sets the payload compression codec.
func WithCodec(c Codec) func(*Options) {
	return func(o *Options) {
		o.Codec = c
	}
}

// Save serializes the tree to w: a fixed header followed by the point
// matrix, the index permutation, the centroid matrix and the packed
// node records, checksummed and optionally compressed.
func Save(w io.Writer, t *balltree.Tree, optFns ...func(*Options)) error {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	raw, err := encodePayload(t)
	if err != nil {
		return err
	}

	payload, err := compress(raw, opts.Codec)
	if err != nil {
		return err
	}

	header := &FileHeader{
		CodecID:    uint8(opts.Codec),
		NumPoints:  uint64(t.Len()),
		Dimension:  uint32(t.Dim()),
		LeafSize:   uint32(t.LeafSize()),
		NumNodes:   uint64(t.NumNodes()),
		P:          t.P(),
		PayloadLen: uint64(len(payload)),
		Checksum:   CalculateChecksum(payload),
	}
	if err := writeHeader(w, header); err != nil {
		return err
	}

	_, err = w.Write(payload)
	return err
}

// Load deserializes a tree written by Save. Construction options
// (logger, metrics) may be supplied for the restored tree.
func Load(r io.Reader, optFns ...func(*balltree.Options)) (*balltree.Tree, error) {
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	payload := make([]byte, header.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: truncated payload: %w", ErrCorruptSnapshot, err)
	}

	if actual := CalculateChecksum(payload); actual != header.Checksum {
		return nil, &ChecksumMismatchError{Expected: header.Checksum, Actual: actual}
	}

	raw, err := decompress(payload, Codec(header.CodecID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}

	return decodePayload(header, raw, optFns)
}

func encodePayload(t *balltree.Tree) ([]byte, error) {
	nodes := t.Nodes()

	var buf bytes.Buffer
	buf.Grow(len(t.Data())*8 + len(t.IndexArray())*4 + len(t.Centroids())*8 + len(nodes)*nodeRecordSize)

	bw := newBinaryWriter(&buf)
	if err := bw.writeFloat64Slice(t.Data()); err != nil {
		return nil, err
	}
	if err := bw.writeUint32Slice(t.IndexArray()); err != nil {
		return nil, err
	}
	if err := bw.writeFloat64Slice(t.Centroids()); err != nil {
		return nil, err
	}

	rec := make([]byte, nodeRecordSize)
	for _, node := range nodes {
		binary.LittleEndian.PutUint32(rec[0:], node.IdxStart)
		binary.LittleEndian.PutUint32(rec[4:], node.IdxEnd)
		var isLeaf uint32
		if node.IsLeaf {
			isLeaf = 1
		}
		binary.LittleEndian.PutUint32(rec[8:], isLeaf)
		binary.LittleEndian.PutUint64(rec[12:], math.Float64bits(node.Radius))
		buf.Write(rec)
	}

	return buf.Bytes(), nil
}

func decodePayload(header *FileHeader, raw []byte, optFns []func(*balltree.Options)) (*balltree.Tree, error) {
	n := int(header.NumPoints)
	dim := int(header.Dimension)
	numNodes := int(header.NumNodes)

	if n < 1 || dim < 1 || numNodes < 1 {
		return nil, fmt.Errorf("%w: header declares n=%d dim=%d nodes=%d", ErrCorruptSnapshot, n, dim, numNodes)
	}

	want := n*dim*8 + n*4 + numNodes*dim*8 + numNodes*nodeRecordSize
	if len(raw) != want {
		return nil, fmt.Errorf("%w: payload is %d bytes, want %d", ErrCorruptSnapshot, len(raw), want)
	}

	br := newBinaryReader(bytes.NewReader(raw))

	data, err := br.readFloat64Slice(n * dim)
	if err != nil {
		return nil, err
	}
	idx, err := br.readUint32Slice(n)
	if err != nil {
		return nil, err
	}
	centroids, err := br.readFloat64Slice(numNodes * dim)
	if err != nil {
		return nil, err
	}

	nodes := make([]balltree.NodeInfo, numNodes)
	rec := raw[len(raw)-numNodes*nodeRecordSize:]
	for i := range nodes {
		off := i * nodeRecordSize
		nodes[i] = balltree.NodeInfo{
			IdxStart: binary.LittleEndian.Uint32(rec[off:]),
			IdxEnd:   binary.LittleEndian.Uint32(rec[off+4:]),
			IsLeaf:   binary.LittleEndian.Uint32(rec[off+8:]) != 0,
			Radius:   math.Float64frombits(binary.LittleEndian.Uint64(rec[off+12:])),
		}
	}

	t, err := balltree.Restore(data, dim, int(header.LeafSize), header.P, idx, centroids, nodes, optFns...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	return t, nil
}

func compress(raw []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return raw, nil
	case CodecZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	case CodecLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCodec, codec)
	}
}

func decompress(payload []byte, codec Codec) ([]byte, error) {
	switch codec {
	case CodecNone:
		return payload, nil
	case CodecZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(payload, nil)
	case CodecLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidCodec, codec)
	}
}
