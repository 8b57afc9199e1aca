// Package s3 stores ball tree snapshots in S3 and coordinates their
// publication through a DynamoDB version ledger.
//
// Store moves bytes: write-once snapshot blobs uploaded via the
// transfer manager and read back with ranged GETs. Publisher moves the
// pointer: S3 has no compare-and-swap, so "which snapshot is current"
// is an append-only (index_id, version) ledger in DynamoDB guarded by
// conditional writes — concurrent publishers get ErrVersionConflict
// instead of clobbering each other, and the ledger doubles as rollback
// history.
//
// Create the ledger table with:
//
//	aws dynamodb create-table \
//	  --table-name balltree-commits \
//	  --attribute-definitions AttributeName=index_id,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=index_id,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package s3
