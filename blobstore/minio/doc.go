// Package minio provides a MinIO-backed blob store for ball tree
// snapshots. It works with any S3-compatible endpoint and is the
// natural choice for self-hosted deployments.
package minio
