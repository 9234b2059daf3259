package storage

import "errors"

// Sentinel errors returned by the storage layer. Callers use errors.Is
// to distinguish them; the executor wraps these with sql.ErrExecution
// before surfacing them to a caller, and errors.Is still matches them.
var (
	ErrIoError      = errors.New("io error")
	ErrOutOfRange   = errors.New("page id out of range")
	ErrRowTooLarge  = errors.New("row too large for in-place update")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
	ErrSchemaError  = errors.New("schema error")
	ErrTypeError    = errors.New("type error")
	ErrPkImmutable  = errors.New("primary key is immutable")
	ErrTableExists  = errors.New("table already exists")
	ErrNoSuchTable  = errors.New("no such table")
)
