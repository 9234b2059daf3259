package storage

// ───────────────────────────────────────────────────────────────────────────
// Core page-level types
// ───────────────────────────────────────────────────────────────────────────
//
// OurSQL pages are a fixed 4096 bytes. There is no page header beyond
// what each page layout (slotted heap page, B+Tree node) defines for
// itself — unlike a general-purpose pager that stamps every page with a
// type/LSN/CRC header, OurSQL carries no WAL and no crash recovery, so
// that bookkeeping has no job to do here.

const (
	// PageSize is the fixed page size in bytes.
	PageSize = 4096
)

// PageID identifies a page within a single file. Page 0 is the first
// page ever allocated; there is no dedicated file header page.
type PageID uint32

// SlotID identifies a slot within a heap page's slot directory.
type SlotID uint16

// RID (row identifier) locates a row within a HeapFile. It is stable
// for the lifetime of a row: unaffected by in-place updates, and not
// reused after a delete unless a future insert explicitly reclaims the
// tombstoned slot.
type RID struct {
	PageID PageID
	Slot   SlotID
}
