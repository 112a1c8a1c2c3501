// Package disk implements the paged storage substrate: fixed-size page I/O
// against a backing file, page-id allocation/deallocation, and append-only
// writes to a log file. Every call blocks until the kernel returns; errors
// from the OS are fatal and bubble up verbatim, per spec.md §7.
package disk

import "github.com/ryogrid/sharkfin/internal/types"

// Manager is the interface the buffer pool and log manager depend on. It is
// implemented both by a real-file manager (FileManager, in disk_manager_impl.go)
// and by an in-memory manager backed by dsnet/golib/memfile
// (VirtualManager, in virtual_disk_manager_impl.go) so tests never touch
// the filesystem.
type Manager interface {
	ReadPage(id types.PageID, buf []byte) error
	WritePage(id types.PageID, buf []byte) error
	AllocatePage() types.PageID
	DeallocatePage(id types.PageID)

	WriteLog(buf []byte) error
	ReadLog(buf []byte, offset int64) (n int, ok bool)
	LogFileSize() int64

	NumWrites() uint64
	Size() int64
	Shutdown()
}
