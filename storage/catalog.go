package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ───────────────────────────────────────────────────────────────────────────
// Catalog
// ───────────────────────────────────────────────────────────────────────────
//
// The catalog is a single JSON document listing every table's schema and
// B+Tree order, persisted at <data_dir>/catalog.json. Unlike a catalog
// that is itself just another B+Tree-indexed system table, OurSQL's
// catalog is small enough and changes rarely enough that a flat JSON
// document read fully into memory and rewritten atomically on every
// change is the right fit — there is no schema evolution and no
// concurrent writer to protect against in this phase. The atomic-write
// mechanics (write to a temp path, fsync, close, then os.Rename over the
// real path) guarantee a reader never observes a half-written file.

// catalogDocument is the on-disk shape of the whole catalog file: a
// "tables" object mapping table name to its persisted metadata.
type catalogDocument struct {
	Tables map[string]catalogEntry `json:"tables"`
}

// catalogEntry is one table's persisted metadata. Schema is stored as
// an ordered list of [name, type] pairs rather than a nested object,
// so the on-disk order of columns (first column is always the
// primary key) is preserved without relying on JSON object key order.
type catalogEntry struct {
	Schema     [][2]string `json:"schema"`
	BTreeOrder int         `json:"btree_order"`
}

func schemaToCatalog(s Schema) [][2]string {
	cols := make([][2]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = [2]string{c.Name, c.Type.String()}
	}
	return cols
}

func catalogToSchema(cs [][2]string) (Schema, error) {
	cols := make([]Column, len(cs))
	for i, pair := range cs {
		name, typeName := pair[0], pair[1]
		var t ColType
		switch typeName {
		case "INT":
			t = ColInt
		case "TEXT":
			t = ColText
		default:
			return Schema{}, fmt.Errorf("%w: unknown column type %q", ErrSchemaError, typeName)
		}
		cols[i] = Column{Name: name, Type: t}
	}
	return Schema{Columns: cols}, nil
}

// Catalog is the set of table definitions for one database, backed by a
// single JSON document on disk.
type Catalog struct {
	path   string
	tables map[string]catalogEntry
}

// OpenCatalog loads the catalog at path, or starts an empty one if the
// file does not yet exist.
func OpenCatalog(path string) (*Catalog, error) {
	c := &Catalog{path: path, tables: make(map[string]catalogEntry)}
	buf, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read catalog %s: %v", ErrIoError, path, err)
	}
	if len(buf) == 0 {
		return c, nil
	}
	var doc catalogDocument
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse catalog %s: %v", ErrIoError, path, err)
	}
	if doc.Tables != nil {
		c.tables = doc.Tables
	}
	return c, nil
}

// save atomically rewrites the catalog file.
func (c *Catalog) save() error {
	buf, err := json.MarshalIndent(catalogDocument{Tables: c.tables}, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode catalog: %v", ErrIoError, err)
	}
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".catalog-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp catalog: %v", ErrIoError, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp catalog: %v", ErrIoError, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: sync temp catalog: %v", ErrIoError, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp catalog: %v", ErrIoError, err)
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename temp catalog into place: %v", ErrIoError, err)
	}
	return nil
}

// ListTables returns all known table names, in no particular order.
func (c *Catalog) ListTables() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

// Get returns the schema and B+Tree order for name.
func (c *Catalog) Get(name string) (Schema, int, error) {
	e, ok := c.tables[name]
	if !ok {
		return Schema{}, 0, fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	schema, err := catalogToSchema(e.Schema)
	if err != nil {
		return Schema{}, 0, err
	}
	return schema, e.BTreeOrder, nil
}

// AddTable registers a new table and persists the catalog. Fails with
// ErrTableExists if name is already registered.
func (c *Catalog) AddTable(name string, schema Schema, btreeOrder int) error {
	if _, ok := c.tables[name]; ok {
		return fmt.Errorf("%w: %s", ErrTableExists, name)
	}
	c.tables[name] = catalogEntry{Schema: schemaToCatalog(schema), BTreeOrder: btreeOrder}
	if err := c.save(); err != nil {
		delete(c.tables, name)
		return err
	}
	return nil
}

// RemoveTable deregisters a table and persists the catalog.
func (c *Catalog) RemoveTable(name string) error {
	e, ok := c.tables[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTable, name)
	}
	delete(c.tables, name)
	if err := c.save(); err != nil {
		c.tables[name] = e
		return err
	}
	return nil
}
