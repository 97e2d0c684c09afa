package store

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrUniqueConflict            = errors.New("unique conflict")
	ErrBatchAlreadyOpen          = errors.New("a batch is already open")
	ErrNoBatchOpen               = errors.New("no batch is open")
	ErrOutcomeDowngrade          = errors.New("outcome downgrade ignored")
	ErrEmbeddingVersionMismatch = errors.New("embedding model version mismatch")
	ErrIntelligenceOnlyListing  = errors.New("listing is intelligence-only")
)
