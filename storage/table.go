package storage

import "fmt"

// ───────────────────────────────────────────────────────────────────────────
// Table
// ───────────────────────────────────────────────────────────────────────────
//
// Table composes a HeapFile (row storage) with a PageBTree (primary-key
// index) into PK-indexed CRUD. The two-phase sequencing on Insert and
// Delete is careful about which side (heap or index) is mutated first,
// so a mid-operation failure never leaves an index entry pointing at
// nothing, or a row nothing can find.

// Table is a schema, a heap of rows, and a primary-key index over them.
type Table struct {
	Name   string
	Schema Schema
	heap   *HeapFile
	index  *PageBTree
}

// OpenTable wraps an already-open heap file and B+Tree index as a Table.
func OpenTable(name string, schema Schema, heap *HeapFile, index *PageBTree) *Table {
	return &Table{Name: name, Schema: schema, heap: heap, index: index}
}

func pkValue(schema Schema, row Row) (int64, error) {
	pkCol := schema.PKColumn()
	v, ok := row[pkCol]
	if !ok {
		return 0, fmt.Errorf("%w: row is missing primary key column %q", ErrSchemaError, pkCol)
	}
	if v.Type != ColInt {
		return 0, fmt.Errorf("%w: primary key column %q must be INT", ErrSchemaError, pkCol)
	}
	return v.Int, nil
}

func validateRow(schema Schema, row Row) error {
	if len(row) != len(schema.Columns) {
		return fmt.Errorf("%w: expected %d columns, got %d", ErrSchemaError, len(schema.Columns), len(row))
	}
	for _, col := range schema.Columns {
		v, ok := row[col.Name]
		if !ok {
			return fmt.Errorf("%w: missing column %q", ErrSchemaError, col.Name)
		}
		if v.Type != col.Type {
			return fmt.Errorf("%w: column %q expects %s, got %s", ErrSchemaError, col.Name, col.Type, v.Type)
		}
	}
	return nil
}

// Insert adds a new row. The row must supply every column, including the
// primary key. Fails with ErrDuplicateKey if the primary key is already
// present.
func (t *Table) Insert(row Row) error {
	if err := validateRow(t.Schema, row); err != nil {
		return err
	}
	pk, err := pkValue(t.Schema, row)
	if err != nil {
		return err
	}

	rid, err := t.heap.Insert(row)
	if err != nil {
		return err
	}
	if err := t.index.Insert(pk, rid); err != nil {
		// Compensate: the heap row was written but the index rejected the
		// key (duplicate), so remove the orphaned heap row before
		// surfacing the error.
		_ = t.heap.Delete(rid)
		return err
	}
	return nil
}

// SelectByPK returns the row whose primary key equals pk.
func (t *Table) SelectByPK(pk int64) (Row, error) {
	rid, ok, err := t.index.Search(pk)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: pk %d", ErrNotFound, pk)
	}
	return t.heap.Get(rid, t.Schema)
}

// SelectAll returns every row in heap (insertion-page) order.
func (t *Table) SelectAll() ([]Row, error) {
	var rows []Row
	err := t.heap.Scan(t.Schema, func(_ RID, row Row) bool {
		rows = append(rows, row)
		return true
	})
	return rows, err
}

// RangeByPK returns every row whose primary key falls within [lo, hi]
// (bounds inclusive/exclusive per loIncl/hiIncl), in ascending key order.
func (t *Table) RangeByPK(lo, hi int64, loIncl, hiIncl bool) ([]Row, error) {
	var rows []Row
	err := t.index.RangeScan(lo, hi, loIncl, hiIncl, func(_ int64, rid RID) bool {
		row, err := t.heap.Get(rid, t.Schema)
		if err != nil {
			// The index and heap are expected to agree; if a looked-up rid
			// is gone, skip it defensively rather than fail the whole scan.
			return true
		}
		rows = append(rows, row)
		return true
	})
	return rows, err
}

// UpdateByPK merges changes into the row whose primary key equals pk.
// The primary key column itself cannot be changed (ErrPkImmutable), and
// unknown columns are rejected (ErrSchemaError).
func (t *Table) UpdateByPK(pk int64, changes Row) error {
	pkCol := t.Schema.PKColumn()
	for name := range changes {
		if name == pkCol {
			return fmt.Errorf("%w: column %q", ErrPkImmutable, pkCol)
		}
		if t.Schema.IndexOf(name) < 0 {
			return fmt.Errorf("%w: unknown column %q", ErrSchemaError, name)
		}
	}

	rid, ok, err := t.index.Search(pk)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: pk %d", ErrNotFound, pk)
	}
	row, err := t.heap.Get(rid, t.Schema)
	if err != nil {
		return err
	}
	merged := row.Clone()
	for name, v := range changes {
		merged[name] = v
	}
	if err := validateRow(t.Schema, merged); err != nil {
		return err
	}
	return t.heap.Update(rid, merged)
}

// DeleteByPK removes the row whose primary key equals pk. The index entry
// is removed before the heap row, so a mid-operation failure never
// leaves an index entry pointing at a tombstoned slot; at worst the heap
// row stays live, reachable by a full scan but no longer by the index.
func (t *Table) DeleteByPK(pk int64) error {
	rid, ok, err := t.index.Search(pk)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: pk %d", ErrNotFound, pk)
	}
	if err := t.index.Delete(pk); err != nil {
		return err
	}
	return t.heap.Delete(rid)
}
