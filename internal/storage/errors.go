package storage

import "errors"

// Backend failure kinds, per spec.md §4.1. The overlay engine and public
// API translate these into the POSIX-flavoured agentfs.Error taxonomy;
// storage itself only knows about the transactional KV contract.
var (
	ErrStorage    = errors.New("storage: backend failure")
	ErrCorruption = errors.New("storage: corrupted database")
	ErrExhausted  = errors.New("storage: resource exhausted")
	ErrConflict   = errors.New("storage: write conflict")
	ErrKeyNotFound = errors.New("storage: key not found")
)
