package object

import "errors"

// ErrNotFound reports a digest that names no object in the store, loose or
// packed. Callers test with errors.Is.
var ErrNotFound = errors.New("object not found")

// ErrMalformed reports stored bytes that do not decode as a valid object:
// a bad codec tag, a payload that fails decompression, a damaged envelope,
// or text that does not parse as the claimed type.
var ErrMalformed = errors.New("malformed object")
