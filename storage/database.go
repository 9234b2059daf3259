package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ───────────────────────────────────────────────────────────────────────────
// Database
// ───────────────────────────────────────────────────────────────────────────
//
// Database owns a Catalog plus every currently-open Table, and is the
// entry point for DDL. It lazily opens per-table storage on first
// access rather than eagerly opening every table a database has ever
// seen.
//
// On-disk layout per database directory:
//
//	<data_dir>/catalog.json
//	<data_dir>/<table_name>/heap.db
//	<data_dir>/<table_name>/pk.idx

const (
	defaultBTreeOrder = 4
	heapFileName      = "heap.db"
	indexFileName     = "pk.idx"
	catalogFileName   = "catalog.json"
)

// Database is a directory of tables plus their shared catalog.
type Database struct {
	mu      sync.Mutex
	dir     string
	catalog *Catalog
	tables  map[string]*Table
}

// Open opens (creating if necessary) the database rooted at dir.
func Open(dir string) (*Database, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create data dir %s: %v", ErrIoError, dir, err)
	}
	cat, err := OpenCatalog(filepath.Join(dir, catalogFileName))
	if err != nil {
		return nil, err
	}
	return &Database{dir: dir, catalog: cat, tables: make(map[string]*Table)}, nil
}

func (db *Database) tableDir(name string) string {
	return filepath.Join(db.dir, name)
}

// CreateTable creates a new table with the given schema and opens it.
// Fails with ErrTableExists if name is already registered.
func (db *Database) CreateTable(name string, schema Schema) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, _, err := db.catalog.Get(name); err == nil {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}

	dir := db.tableDir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create table dir %s: %v", ErrIoError, dir, err)
	}

	table, err := db.openTableFiles(name, schema, defaultBTreeOrder)
	if err != nil {
		os.RemoveAll(dir)
		return err
	}

	if err := db.catalog.AddTable(name, schema, defaultBTreeOrder); err != nil {
		os.RemoveAll(dir)
		return err
	}

	db.tables[name] = table
	return nil
}

func (db *Database) openTableFiles(name string, schema Schema, order int) (*Table, error) {
	dir := db.tableDir(name)
	heapPager, err := OpenPager(filepath.Join(dir, heapFileName))
	if err != nil {
		return nil, err
	}
	idxPager, err := OpenPager(filepath.Join(dir, indexFileName))
	if err != nil {
		heapPager.Close()
		return nil, err
	}
	index, err := OpenPageBTree(idxPager, order)
	if err != nil {
		heapPager.Close()
		idxPager.Close()
		return nil, err
	}
	heap := OpenHeapFile(heapPager)
	return OpenTable(name, schema, heap, index), nil
}

// GetTable returns the (lazily opened) table named name.
func (db *Database) GetTable(name string) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if t, ok := db.tables[name]; ok {
		return t, nil
	}
	schema, order, err := db.catalog.Get(name)
	if err != nil {
		return nil, err
	}
	table, err := db.openTableFiles(name, schema, order)
	if err != nil {
		return nil, err
	}
	db.tables[name] = table
	return table, nil
}

// DropTable closes and removes a table, including its files.
func (db *Database) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, _, err := db.catalog.Get(name); err != nil {
		return err
	}
	if t, ok := db.tables[name]; ok {
		t.heap.pager.Close()
		t.index.pager.Close()
		delete(db.tables, name)
	}
	if err := db.catalog.RemoveTable(name); err != nil {
		return err
	}
	return os.RemoveAll(db.tableDir(name))
}

// TableNames returns the names of every table known to the catalog.
func (db *Database) TableNames() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.catalog.ListTables()
}

// TableSchema returns the schema of a known table without opening it.
func (db *Database) TableSchema(name string) (Schema, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	schema, _, err := db.catalog.Get(name)
	return schema, err
}

// Close closes every currently-open table.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	var firstErr error
	for _, t := range db.tables {
		if err := t.heap.pager.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := t.index.pager.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	db.tables = make(map[string]*Table)
	return firstErr
}
