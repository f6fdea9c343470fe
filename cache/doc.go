// Package cache memoizes neighbor lists and persists them as delimited text
// files in a blobstore.
//
// A Cache is either pass-through (no store, every Apply recomputes) or
// cached (store present, Apply memoizes by the exact query vector). Cached
// mode moves through four states:
//
//	Fresh -> Populated (Apply inserted) -> Merged (Merge) -> Flushed (Write)
//
// Cache files are named <content hash><suffix>.csv, plus .zst or .lz4 when
// compressed. The current format carries the content hash and the feature
// count in a metadata line, so a merge detects files built for another
// dataset:
//
//	#knncache v=2 hash=<sha1> dims=<d> neighbors=256
//	t1|...|td|n|y1|...|y256
//	0.5|2|10|0||...|
//
// Files in the legacy format (no metadata line, no count column, missing
// neighbors written as -1) can still be merged.
//
// # Usage
//
//	store, _ := blobstore.NewLocalStore("./caches")
//	c, _ := cache.New(ds, func(o *cache.Options) {
//	    o.Store = store
//	    o.Suffix = "-3"
//	})
//	ys, _ := c.ApplyRow(ctx, 42)
//	n, _ := c.Write(ctx)
package cache
