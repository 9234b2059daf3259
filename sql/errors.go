package sql

import "errors"

// Sentinel errors for the lexer, parser, and executor. Callers
// discriminate these with errors.Is, matching the storage package's
// own sentinel-error convention.
var (
	ErrLex        = errors.New("lex error")
	ErrParse      = errors.New("parse error")
	ErrUnknownCol = errors.New("unknown column")
	ErrExecution  = errors.New("execution error")
)
