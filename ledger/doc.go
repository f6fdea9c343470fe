// Package ledger records completed piece builds so a merge can verify that
// every piece finished and that each file still holds what was written.
//
// Two implementations are provided:
//   - BlobLedger stores one JSON document per piece next to the cache files
//     (<hash>.ledger/<piece>.json) in any blobstore.BlobStore.
//   - dynamodb.Ledger stores one item per piece in a DynamoDB table, for
//     deployments where piece processes run on separate machines.
package ledger
