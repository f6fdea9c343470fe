// Package mmap provides read-only memory-mapped file access.
//
// Cache files are read front to back exactly once during a merge, so the
// local blob store maps them and hints sequential access to the kernel:
//
//	m, err := mmap.Open("c00ba7b1...-merged.csv")
//	if err != nil { ... }
//	defer m.Close()
//	_ = m.Advise(mmap.AccessSequential)
//	data := m.Bytes()
//
// Unix platforms use mmap(2) and madvise(2); Windows uses
// CreateFileMapping/MapViewOfFile and ignores access hints.
//
// Close is idempotent. Callers must not touch Bytes() after Close returns.
package mmap
