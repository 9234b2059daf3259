package storage

import (
	"fmt"
	"os"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// Pager
// ───────────────────────────────────────────────────────────────────────────
//
// The Pager is the lowest layer of the storage stack: fixed 4096-byte
// page I/O against a single open file. OurSQL carries no transactions,
// no WAL, and no crash recovery — so there is no LSN, no dirty-page
// lifecycle, and no Checkpoint/Recover. What remains is the essential
// shape (one *os.File, a page-count invariant derived from file length,
// sequential allocation) plus a write-through page cache: a simple page
// cache is fine as long as it never serves a stale page, which a
// write-through policy guarantees for free.

// pageCache is a write-through cache of page contents keyed by PageID.
// There is no dirty-page tracking and no eviction: every write goes to
// disk immediately (write-through), and the cache only exists to avoid
// re-reading a page that was just read or written. There is no LRU
// eviction or pin counting here — those exist elsewhere only to bound
// memory under WAL recovery, a concern this engine does not have.
type pageCache struct {
	mu    sync.Mutex
	pages map[PageID][]byte
}

func newPageCache() *pageCache {
	return &pageCache{pages: make(map[PageID][]byte)}
}

func (c *pageCache) get(id PageID) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf, ok := c.pages[id]
	return buf, ok
}

func (c *pageCache) put(id PageID, buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]byte, PageSize)
	copy(cp, buf)
	c.pages[id] = cp
}

// Pager owns one open file and performs all page-level I/O against it.
type Pager struct {
	mu     sync.RWMutex
	file   *os.File
	path   string
	cache  *pageCache
	closed bool
}

// OpenPager opens (creating if necessary) the file at path as a
// page store.
func OpenPager(path string) (*Pager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIoError, path, err)
	}
	return &Pager{file: f, path: path, cache: newPageCache()}, nil
}

// PageCount returns the number of pages currently in the file.
func (p *Pager) PageCount() (uint32, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fi, err := p.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrIoError, p.path, err)
	}
	return uint32(fi.Size() / PageSize), nil
}

// ReadPage returns the full contents of page id.
func (p *Pager) ReadPage(id PageID) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if buf, ok := p.cache.get(id); ok {
		out := make([]byte, PageSize)
		copy(out, buf)
		return out, nil
	}

	count, err := p.pageCountLocked()
	if err != nil {
		return nil, err
	}
	if uint32(id) >= count {
		return nil, fmt.Errorf("%w: page %d (have %d pages)", ErrOutOfRange, id, count)
	}

	buf := make([]byte, PageSize)
	if _, err := p.file.ReadAt(buf, int64(id)*PageSize); err != nil {
		return nil, fmt.Errorf("%w: read page %d: %v", ErrIoError, id, err)
	}
	p.cache.put(id, buf)
	return buf, nil
}

// WritePage writes exactly PageSize bytes at page id's offset.
func (p *Pager) WritePage(id PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("%w: write page %d: buffer is %d bytes, want %d", ErrIoError, id, len(buf), PageSize)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	count, err := p.pageCountLocked()
	if err != nil {
		return err
	}
	if uint32(id) >= count {
		return fmt.Errorf("%w: page %d (have %d pages)", ErrOutOfRange, id, count)
	}

	if _, err := p.file.WriteAt(buf, int64(id)*PageSize); err != nil {
		return fmt.Errorf("%w: write page %d: %v", ErrIoError, id, err)
	}
	p.cache.put(id, buf)
	return nil
}

// AllocatePage extends the file by one zero-filled page and returns
// its id and contents.
func (p *Pager) AllocatePage() (PageID, []byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	count, err := p.pageCountLocked()
	if err != nil {
		return 0, nil, err
	}
	id := PageID(count)
	buf := make([]byte, PageSize)
	if _, err := p.file.WriteAt(buf, int64(id)*PageSize); err != nil {
		return 0, nil, fmt.Errorf("%w: allocate page %d: %v", ErrIoError, id, err)
	}
	p.cache.put(id, buf)
	return id, buf, nil
}

func (p *Pager) pageCountLocked() (uint32, error) {
	fi, err := p.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: stat %s: %v", ErrIoError, p.path, err)
	}
	return uint32(fi.Size() / PageSize), nil
}

// Flush forces any OS-level buffering to durable storage on a best
// effort basis. Phase scope does not require fsync semantics.
func (p *Pager) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", ErrIoError, p.path, err)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (p *Pager) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.file.Sync(); err != nil {
		_ = p.file.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrIoError, p.path, err)
	}
	return p.file.Close()
}

// Path returns the backing file path.
func (p *Pager) Path() string { return p.path }
