// Package blobstore abstracts where ball tree snapshots live.
//
// The core implementations are MemoryStore (tests), and LocalStore
// (filesystem, mmap-backed reads). The s3 and minio subpackages provide
// cloud-backed stores with the same interface.
//
// Blobs written by this package are immutable: a snapshot is written
// once via Create/Put and then only ever opened for reading.
package blobstore
