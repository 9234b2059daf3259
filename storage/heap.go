package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// ───────────────────────────────────────────────────────────────────────────
// Slotted heap page
// ───────────────────────────────────────────────────────────────────────────
//
// Layout, all little-endian:
//
//	offset 0   (2 bytes)  num_slots
//	offset 2   (2 bytes)  reserved
//	offset 4   (8*num_slots bytes) slot directory: (offset uint32, length uint32) per slot
//	...                   free space
//	tail       row payload bytes, growing from the end of the page inward
//
// A slot with offset=0, length=0 is a tombstone. Row payloads are the
// UTF-8 JSON encoding of the row: same directory-grows-forward /
// payload-grows-backward shape and tombstone convention as a classic
// slotted page, but with 4-byte offset/length fields instead of 2-byte
// ones.

const (
	heapNumSlotsOff = 0
	heapReservedOff = 2
	heapSlotDirOff  = 4
	heapSlotEntSize = 8 // uint32 offset + uint32 length
)

type slotEntry struct {
	Offset uint32
	Length uint32
}

func isTombstone(e slotEntry) bool { return e.Offset == 0 && e.Length == 0 }

type slottedPage struct {
	buf []byte
}

func wrapSlottedPage(buf []byte) *slottedPage { return &slottedPage{buf: buf} }

func newSlottedPage() *slottedPage {
	buf := make([]byte, PageSize)
	binary.LittleEndian.PutUint16(buf[heapNumSlotsOff:], 0)
	return &slottedPage{buf: buf}
}

func (sp *slottedPage) numSlots() int {
	return int(binary.LittleEndian.Uint16(sp.buf[heapNumSlotsOff:]))
}

func (sp *slottedPage) setNumSlots(n int) {
	binary.LittleEndian.PutUint16(sp.buf[heapNumSlotsOff:], uint16(n))
}

func (sp *slottedPage) slotDirEnd() int {
	return heapSlotDirOff + sp.numSlots()*heapSlotEntSize
}

func (sp *slottedPage) getSlot(i int) slotEntry {
	off := heapSlotDirOff + i*heapSlotEntSize
	return slotEntry{
		Offset: binary.LittleEndian.Uint32(sp.buf[off:]),
		Length: binary.LittleEndian.Uint32(sp.buf[off+4:]),
	}
}

func (sp *slottedPage) setSlot(i int, e slotEntry) {
	off := heapSlotDirOff + i*heapSlotEntSize
	binary.LittleEndian.PutUint32(sp.buf[off:], e.Offset)
	binary.LittleEndian.PutUint32(sp.buf[off+4:], e.Length)
}

// tailOffset is the lowest byte offset currently occupied by a live
// payload (i.e. where the next payload would end). It is derived, not
// stored, as allows ("or equivalently, the gap between the
// end of the slot directory and the lowest live payload offset").
func (sp *slottedPage) tailOffset() int {
	tail := PageSize
	for i := 0; i < sp.numSlots(); i++ {
		e := sp.getSlot(i)
		if isTombstone(e) {
			continue
		}
		if int(e.Offset) < tail {
			tail = int(e.Offset)
		}
	}
	return tail
}

// freeSpace returns bytes available for a new payload plus its slot
// directory entry.
func (sp *slottedPage) freeSpace() int {
	return sp.tailOffset() - sp.slotDirEnd() - heapSlotEntSize
}

// insert writes payload at the page's current tail and points the first
// tombstoned slot at it if one exists (whatever that slot's old length),
// else appends a new slot. Returns the slot index.
func (sp *slottedPage) insert(payload []byte) (int, error) {
	needed := len(payload)

	if sp.freeSpace() < needed {
		return -1, fmt.Errorf("%w: need %d bytes, have %d free", ErrRowTooLarge, needed, sp.freeSpace())
	}
	newTail := sp.tailOffset() - needed
	copy(sp.buf[newTail:], payload)

	for i := 0; i < sp.numSlots(); i++ {
		if isTombstone(sp.getSlot(i)) {
			sp.setSlot(i, slotEntry{Offset: uint32(newTail), Length: uint32(needed)})
			return i, nil
		}
	}
	idx := sp.numSlots()
	sp.setSlot(idx, slotEntry{Offset: uint32(newTail), Length: uint32(needed)})
	sp.setNumSlots(idx + 1)
	return idx, nil
}

func (sp *slottedPage) get(slot int) ([]byte, bool) {
	if slot < 0 || slot >= sp.numSlots() {
		return nil, false
	}
	e := sp.getSlot(slot)
	if isTombstone(e) {
		return nil, false
	}
	return sp.buf[e.Offset : e.Offset+e.Length], true
}

// update overwrites the payload at slot in place. The caller must have
// already verified len(payload) <= the old length.
func (sp *slottedPage) update(slot int, payload []byte) {
	e := sp.getSlot(slot)
	copy(sp.buf[e.Offset:], payload)
	sp.setSlot(slot, slotEntry{Offset: e.Offset, Length: uint32(len(payload))})
}

func (sp *slottedPage) delete(slot int) {
	sp.setSlot(slot, slotEntry{Offset: 0, Length: 0})
}

// ───────────────────────────────────────────────────────────────────────────
// HeapFile
// ───────────────────────────────────────────────────────────────────────────

// HeapFile is a sequence of slotted pages storing JSON-encoded rows,
// addressed by stable RIDs .
type HeapFile struct {
	pager *Pager
}

// OpenHeapFile opens a heap file backed by pager.
func OpenHeapFile(pager *Pager) *HeapFile {
	return &HeapFile{pager: pager}
}

func encodeRow(row Row) ([]byte, error) {
	plain := make(map[string]any, len(row))
	for k, v := range row {
		if v.Type == ColInt {
			plain[k] = v.Int
		} else {
			plain[k] = v.Text
		}
	}
	return json.Marshal(plain)
}

func decodeRow(data []byte, schema Schema) (Row, error) {
	var plain map[string]any
	if err := json.Unmarshal(data, &plain); err != nil {
		return nil, fmt.Errorf("%w: decode row: %v", ErrIoError, err)
	}
	row := make(Row, len(schema.Columns))
	for _, col := range schema.Columns {
		v, ok := plain[col.Name]
		if !ok {
			continue
		}
		switch col.Type {
		case ColInt:
			switch n := v.(type) {
			case float64:
				row[col.Name] = IntValue(int64(n))
			case json.Number:
				i, _ := n.Int64()
				row[col.Name] = IntValue(i)
			}
		case ColText:
			if s, ok := v.(string); ok {
				row[col.Name] = TextValue(s)
			}
		}
	}
	return row, nil
}

// Insert serializes row and appends it to the first page with enough
// free space, allocating a new page if none has room. Returns the new
// row's RID.
func (h *HeapFile) Insert(row Row) (RID, error) {
	payload, err := encodeRow(row)
	if err != nil {
		return RID{}, fmt.Errorf("%w: %v", ErrIoError, err)
	}
	needed := len(payload) + heapSlotEntSize

	count, err := h.pager.PageCount()
	if err != nil {
		return RID{}, err
	}

	for pid := PageID(0); uint32(pid) < count; pid++ {
		buf, err := h.pager.ReadPage(pid)
		if err != nil {
			return RID{}, err
		}
		sp := wrapSlottedPage(buf)
		if sp.freeSpace() < needed {
			continue
		}
		slot, err := sp.insert(payload)
		if err != nil {
			continue
		}
		if err := h.pager.WritePage(pid, sp.buf); err != nil {
			return RID{}, err
		}
		return RID{PageID: pid, Slot: SlotID(slot)}, nil
	}

	pid, buf, err := h.pager.AllocatePage()
	if err != nil {
		return RID{}, err
	}
	sp := wrapSlottedPage(buf)
	binary.LittleEndian.PutUint16(sp.buf[heapNumSlotsOff:], 0)
	slot, err := sp.insert(payload)
	if err != nil {
		return RID{}, fmt.Errorf("%w: row does not fit in a fresh page", ErrRowTooLarge)
	}
	if err := h.pager.WritePage(pid, sp.buf); err != nil {
		return RID{}, err
	}
	return RID{PageID: pid, Slot: SlotID(slot)}, nil
}

// Get returns the row at rid, decoded against schema.
func (h *HeapFile) Get(rid RID, schema Schema) (Row, error) {
	buf, err := h.pager.ReadPage(rid.PageID)
	if err != nil {
		return nil, err
	}
	sp := wrapSlottedPage(buf)
	payload, ok := sp.get(int(rid.Slot))
	if !ok {
		return nil, fmt.Errorf("%w: rid %+v", ErrNotFound, rid)
	}
	return decodeRow(payload, schema)
}

// Update overwrites the row at rid in place. Fails with ErrRowTooLarge
// if the new encoding is larger than the old one (§4.2: in-place only).
func (h *HeapFile) Update(rid RID, row Row) error {
	buf, err := h.pager.ReadPage(rid.PageID)
	if err != nil {
		return err
	}
	sp := wrapSlottedPage(buf)
	if int(rid.Slot) < 0 || int(rid.Slot) >= sp.numSlots() || isTombstone(sp.getSlot(int(rid.Slot))) {
		return fmt.Errorf("%w: rid %+v", ErrNotFound, rid)
	}
	payload, err := encodeRow(row)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIoError, err)
	}
	old := sp.getSlot(int(rid.Slot))
	if uint32(len(payload)) > old.Length {
		return fmt.Errorf("%w: new row is %d bytes, old was %d", ErrRowTooLarge, len(payload), old.Length)
	}
	sp.update(int(rid.Slot), payload)
	return h.pager.WritePage(rid.PageID, sp.buf)
}

// Delete tombstones the slot at rid. Payload bytes are left in place.
func (h *HeapFile) Delete(rid RID) error {
	buf, err := h.pager.ReadPage(rid.PageID)
	if err != nil {
		return err
	}
	sp := wrapSlottedPage(buf)
	if int(rid.Slot) < 0 || int(rid.Slot) >= sp.numSlots() || isTombstone(sp.getSlot(int(rid.Slot))) {
		return fmt.Errorf("%w: rid %+v", ErrNotFound, rid)
	}
	sp.delete(int(rid.Slot))
	return h.pager.WritePage(rid.PageID, sp.buf)
}

// Scan calls fn for every live (RID, row) pair in page, then slot order.
// Iteration stops early if fn returns false.
func (h *HeapFile) Scan(schema Schema, fn func(RID, Row) bool) error {
	count, err := h.pager.PageCount()
	if err != nil {
		return err
	}
	for pid := PageID(0); uint32(pid) < count; pid++ {
		buf, err := h.pager.ReadPage(pid)
		if err != nil {
			return err
		}
		sp := wrapSlottedPage(buf)
		for slot := 0; slot < sp.numSlots(); slot++ {
			payload, ok := sp.get(slot)
			if !ok {
				continue
			}
			row, err := decodeRow(payload, schema)
			if err != nil {
				return err
			}
			if !fn(RID{PageID: pid, Slot: SlotID(slot)}, row) {
				return nil
			}
		}
	}
	return nil
}
