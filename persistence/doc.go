// Package persistence serializes ball trees to a compact binary
// snapshot format.
//
// A snapshot is a 64-byte header followed by four sections: the point
// matrix (f64), the index permutation (u32), the node centroid matrix
// (f64) and the packed node records (u32 idx_start, u32 idx_end,
// u32 is_leaf, f64 radius). The implicit-heap node numbering makes the
// whole index a direct array dump. The payload carries a CRC32 checksum
// and may be zstd- or lz4-compressed.
//
// Snapshots can go to any io.Writer, to a file (atomic temp-and-rename,
// mmap-backed reads) or to a blobstore.BlobStore.
package persistence
