package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecordKind is returned by the record factory when the requested
	// transfer kind is neither SERVER nor P2P.
	ErrInvalidRecordKind = errors.New("invalid file upload record kind")

	// ErrInvalidRecordType guards the ingestion/read dispatch against a record
	// whose type field was corrupted after creation.
	ErrInvalidRecordType = errors.New("invalid file upload record type")

	ErrRecordNotFound = errors.New("file upload record not found")

	// ErrChunkOutOfRange rejects a chunk whose index lies outside
	// [0, expectedChunks) for its record. Accepting such an index would grow
	// buffers without bound and let bogus chunks count toward completion.
	ErrChunkOutOfRange = errors.New("chunk index out of range")

	// ErrChunkNotYetAvailable is a retry signal: the requested P2P chunk has not
	// reached the relay buffer yet. Callers should back off and re-request.
	ErrChunkNotYetAvailable = errors.New("chunk not yet available")

	// ErrChunkUnavailable is terminal: the chunk cannot be obtained at all.
	ErrChunkUnavailable = errors.New("chunk could not be obtained")

	ErrAccessDenied = errors.New("user has no access to this record")

	ErrWorkerPanic = errors.New("worker panic")
)

// InvalidStatusTransitionError reports a status-change request that the state
// machine rejects. The record is left untouched when this is returned.
type InvalidStatusTransitionError struct {
	From string
	To   string
}

func (e *InvalidStatusTransitionError) Error() string {
	return fmt.Sprintf("invalid status change to %s from %s", e.To, e.From)
}
