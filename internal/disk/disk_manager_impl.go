package disk

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ryogrid/sharkfin/internal/common"
	"github.com/ryogrid/sharkfin/internal/types"
)

// FileManager is the disk.Manager implementation that writes to a real
// database file and a real log file on the local filesystem.
type FileManager struct {
	mu sync.Mutex

	db       *os.File
	dbPath   string
	log      *os.File
	logPath  string

	nextPageID types.PageID
	freeList   []types.PageID
	numWrites  uint64
	size       int64
}

// NewFileManager opens (creating if necessary) dbPath and a sibling log file
// derived by replacing dbPath's extension with ".log".
func NewFileManager(dbPath string) (*FileManager, error) {
	db, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("disk: open db file: %w", err)
	}

	logPath := logPathFor(dbPath)
	logFile, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("disk: open log file: %w", err)
	}

	info, err := db.Stat()
	if err != nil {
		return nil, fmt.Errorf("disk: stat db file: %w", err)
	}

	nPages := info.Size() / common.PageSize
	nextPageID := types.PageID(0)
	if nPages > 0 {
		nextPageID = types.PageID(nPages)
	}

	return &FileManager{
		db:         db,
		dbPath:     dbPath,
		log:        logFile,
		logPath:    logPath,
		nextPageID: nextPageID,
		size:       info.Size(),
	}, nil
}

func logPathFor(dbPath string) string {
	idx := strings.LastIndex(dbPath, ".")
	if idx < 0 {
		return dbPath + ".log"
	}
	return dbPath[:idx] + ".log"
}

// WritePage writes exactly common.PageSize bytes at pageID's offset and
// forces them to stable storage before returning.
func (d *FileManager) WritePage(id types.PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * common.PageSize
	if _, err := d.db.WriteAt(data[:common.PageSize], offset); err != nil {
		return fmt.Errorf("disk: write page %d: %w", id, err)
	}
	if offset+common.PageSize > d.size {
		d.size = offset + common.PageSize
	}
	d.numWrites++
	return d.db.Sync()
}

// ReadPage reads common.PageSize bytes from pageID's offset. Reading past
// the current end of file is a fatal I/O error, per spec.md §4.1/§7; a page
// that has never been written (but lies within the file) reads back as
// zeros, matching a freshly allocated page.
func (d *FileManager) ReadPage(id types.PageID, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	offset := int64(id) * common.PageSize
	info, err := d.db.Stat()
	if err != nil {
		return fmt.Errorf("disk: stat db file: %w", err)
	}
	if offset >= info.Size() {
		return fmt.Errorf("disk: read page %d: past end of file", id)
	}

	n, err := d.db.ReadAt(data[:common.PageSize], offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("disk: read page %d: %w", id, err)
	}
	for i := n; i < common.PageSize; i++ {
		data[i] = 0
	}
	return nil
}

// AllocatePage returns a page id, drawing from the free pool left by a
// prior DeallocatePage before growing the file (spec.md §3, §6).
func (d *FileManager) AllocatePage() types.PageID {
	d.mu.Lock()
	defer d.mu.Unlock()

	if n := len(d.freeList); n > 0 {
		id := d.freeList[n-1]
		d.freeList = d.freeList[:n-1]
		return id
	}
	id := d.nextPageID
	d.nextPageID++
	return id
}

// DeallocatePage returns id to the free pool.
func (d *FileManager) DeallocatePage(id types.PageID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.freeList = append(d.freeList, id)
}

// WriteLog appends buf to the log file and forces it to stable storage —
// the durability barrier spec.md §4.1 requires after every write_log call.
func (d *FileManager) WriteLog(buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(buf) == 0 {
		return nil
	}
	if _, err := d.log.Write(buf); err != nil {
		return fmt.Errorf("disk: write log: %w", err)
	}
	return d.log.Sync()
}

// ReadLog reads len(buf) bytes starting at offset, returning false at end
// of file.
func (d *FileManager) ReadLog(buf []byte, offset int64) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	size, err := d.logSizeLocked()
	if err != nil || offset >= size {
		return 0, false
	}
	n, err := d.log.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return 0, false
	}
	return n, true
}

// LogFileSize returns the current size of the log file.
func (d *FileManager) LogFileSize() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	size, err := d.logSizeLocked()
	if err != nil {
		return -1
	}
	return size
}

func (d *FileManager) logSizeLocked() (int64, error) {
	info, err := d.log.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// NumWrites returns the number of page writes performed so far.
func (d *FileManager) NumWrites() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.numWrites
}

// Size returns the logical size of the database file.
func (d *FileManager) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Shutdown closes both underlying files.
func (d *FileManager) Shutdown() {
	d.db.Close()
	d.log.Close()
}

// RemoveFiles deletes both backing files. Only safe to call after Shutdown.
func (d *FileManager) RemoveFiles() {
	os.Remove(d.dbPath)
	os.Remove(d.logPath)
}
