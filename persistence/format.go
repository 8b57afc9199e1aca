package persistence

import "errors"

const (
	// MagicNumber identifies ball tree snapshot files (ASCII: "BALT").
	MagicNumber = 0x42414C54
	// Version is the current file format version (v1.0.0).
	Version = 0x00010000

	// headerSize is the fixed on-disk size of FileHeader.
	headerSize = 64

	// nodeRecordSize is the packed size of one node record:
	// {u32 idx_start, u32 idx_end, u32 is_leaf, f64 radius}.
	nodeRecordSize = 20
)

// Codec selects the payload compression.
type Codec uint8

const (
	// CodecNone stores the arrays raw. LoadFromFile accepts every codec.
	CodecNone Codec = iota
	// CodecZstd compresses the payload with zstd (the default for
	// file and blob snapshots).
	CodecZstd
	// CodecLZ4 compresses the payload with lz4; faster to decode than
	// zstd at a worse ratio.
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidMagic    = errors.New("invalid magic number")
	ErrInvalidVersion  = errors.New("unsupported version")
	ErrInvalidCodec    = errors.New("unknown compression codec")
	ErrCorruptSnapshot = errors.New("corrupt snapshot")
)

// FileHeader is the 64-byte header at the start of every snapshot file.
// All multi-byte fields are little-endian.
type FileHeader struct {
	Magic      uint32  // 0x42414C54 ("BALT")
	Version    uint32  // File format version
	CodecID    uint8   // Payload compression codec
	Padding1   [3]byte //
	NumPoints  uint64  // n
	Dimension  uint32  // d
	LeafSize   uint32  // Leaf capacity the tree was built with
	NumNodes   uint64  // Allocated node count
	P          float64 // Minkowski exponent (+Inf for Chebyshev)
	PayloadLen uint64  // Length of the (possibly compressed) payload
	Checksum   uint32  // CRC32 (IEEE) of the payload as stored
	Padding2   [4]byte //
	Reserved   [4]byte // Future use
}
