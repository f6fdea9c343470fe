// Package shard splits the construction of a neighbor cache into pieces
// that can be computed independently and merged afterwards.
//
// Row r belongs to piece r mod P + 1. Building piece p computes the
// neighbor list of each of its rows and writes <hash>-p.csv; Merge reads
// pieces 1..P into one cache and writes <hash>-merged.csv, checking that
// every record read was written.
//
// Pieces normally run as separate processes sharing a store directory or
// bucket:
//
//	b, _ := shard.NewBuilder(ds, func(o *shard.Options) {
//	    o.Pieces = 16
//	    o.Store = store
//	})
//	report, err := b.BuildPiece(ctx, 3)
//
// and once all are done:
//
//	merged, err := b.Merge(ctx)
//
// BuildAll builds every piece in one process, bounded by
// MaxConcurrentPieces and MemoryLimitBytes.
//
// A piece keeps its progress in memory only. A killed piece is rebuilt from
// scratch.
package shard
