package idb

import "errors"

var (
	ErrNoSchema      = errors.New("unable to open database: schema is required")
	ErrInvalidSchema = errors.New("invalid database schema")
	ErrVersion       = errors.New("requested version is less than the existing version")
	ErrNotFound      = errors.New("not found")
	ErrConstraint    = errors.New("constraint error")
	ErrData          = errors.New("data error")
	ErrReadOnly      = errors.New("transaction is read only")
	ErrClosed        = errors.New("database is closed")
	ErrInvalidState  = errors.New("invalid state")
)

var errSchemaChanged = errors.New("schema changed while opening")
