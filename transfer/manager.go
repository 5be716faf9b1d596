package transfer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	errs "github.com/libersoft-org/yellow-server-module-messages/errors"
)

const (
	DefaultPrefetchTolerance = 5
	DefaultForgetTolerance   = 16
)

// Config tunes the manager. Zero values fall back to the defaults used by the
// original deployment (60 s active timeouts, uploads/ folder).
type Config struct {
	Strategies        domain.Strategies
	Timeouts          TimeoutPolicy
	PrefetchTolerance int
}

// Manager implements the file-transfer core: record lifecycle, chunked-upload
// ingestion for SERVER transfers, the P2P relay path, and the stale sweep.
// All record mutation funnels through the store's per-id locks so a chunk, an
// explicit status change and a sweep timeout can never interleave on the same
// record.
type Manager struct {
	store             *Store
	relay             *RelayBuffer
	strategies        domain.Strategies
	timeouts          TimeoutPolicy
	prefetchTolerance int
	log               *slog.Logger
}

func NewManager(store *Store, relay *RelayBuffer, cfg Config, log *slog.Logger) *Manager {
	if cfg.Strategies.FileName == nil || cfg.Strategies.FileFolder == nil {
		cfg.Strategies = domain.DefaultStrategies("uploads")
	}
	if cfg.PrefetchTolerance <= 0 {
		cfg.PrefetchTolerance = DefaultPrefetchTolerance
	}
	return &Manager{
		store:             store,
		relay:             relay,
		strategies:        cfg.Strategies,
		timeouts:          cfg.Timeouts.withDefaults(),
		prefetchTolerance: cfg.PrefetchTolerance,
		log:               log,
	}
}

// Begin builds a BEGUN record of the requested kind and registers it. When
// persistence is enabled the backing row is created before the record becomes
// visible; a backend rejection fails the whole call.
func (m *Manager) Begin(kind domain.FileUploadRecordType, data domain.UploadBeginData) (*domain.FileUploadRecord, error) {
	record, err := domain.NewUploadRecord(kind, data, m.strategies)
	if err != nil {
		return nil, err
	}
	var out *domain.FileUploadRecord
	err = m.store.WithLock(record.ID, func() error {
		if err := m.store.Register(record); err != nil {
			return err
		}
		out = record.Clone()
		return nil
	})
	return out, err
}

// GetRecord returns a snapshot of the record. Callers that need to mutate go
// through ProcessChunk/UpdateStatus/Patch instead; handing out a copy keeps
// reads safe without holding the record lock.
func (m *Manager) GetRecord(id string) (*domain.FileUploadRecord, error) {
	var out *domain.FileUploadRecord
	err := m.store.WithLock(id, func() error {
		record, err := m.store.Get(id)
		if err != nil {
			return err
		}
		out = record.Clone()
		return nil
	})
	return out, err
}

// ResidentRecords snapshots the records currently active in memory; the
// sweeper unions them with the persisted batch.
func (m *Manager) ResidentRecords() []*domain.FileUploadRecord {
	return m.store.Resident()
}

// Patch applies a partial update through the store's patch-and-persist path.
func (m *Manager) Patch(id string, patch domain.UploadPatch) (*domain.FileUploadRecord, error) {
	var out *domain.FileUploadRecord
	err := m.store.WithLock(id, func() error {
		record, err := m.store.Patch(id, patch)
		if err != nil {
			return err
		}
		out = record.Clone()
		return nil
	})
	return out, err
}

// UpdateStatus performs an explicit, validated status transition. A disallowed
// request fails with InvalidStatusTransitionError and leaves the record
// untouched.
func (m *Manager) UpdateStatus(id string, to domain.FileUploadRecordStatus) (*domain.FileUploadRecord, error) {
	var out *domain.FileUploadRecord
	err := m.store.WithLock(id, func() error {
		record, err := m.store.Get(id)
		if err != nil {
			return err
		}
		if err := record.ValidateTransition(to); err != nil {
			return err
		}
		status := to
		patched, err := m.store.Patch(id, domain.UploadPatch{Status: &status})
		if err != nil {
			return err
		}
		if to == domain.UploadStatusCanceled || to == domain.UploadStatusError {
			m.relay.Drop(id)
		}
		out = patched.Clone()
		return nil
	})
	return out, err
}

// ProcessChunk appends an inbound chunk to the record's destination: the
// temp file for SERVER transfers, the relay buffer for P2P. The first chunk
// moves a BEGUN record to UPLOADING; the last distinct chunk finishes the
// transfer. Chunk indices may arrive in any order.
func (m *Manager) ProcessChunk(chunk *domain.FileUploadChunk) (*domain.FileUploadRecord, error) {
	var out *domain.FileUploadRecord
	err := m.store.WithLock(chunk.UploadID, func() error {
		record, err := m.store.Get(chunk.UploadID)
		if err != nil {
			return err
		}
		if record.IsTerminal() {
			return &errs.InvalidStatusTransitionError{From: string(record.Status), To: string(domain.UploadStatusUploading)}
		}
		if chunk.ChunkID < 0 || chunk.ChunkID >= record.ExpectedChunks() {
			return fmt.Errorf("chunk %d of upload %s (expects %d chunks): %w",
				chunk.ChunkID, record.ID, record.ExpectedChunks(), errs.ErrChunkOutOfRange)
		}
		switch record.Type {
		case domain.UploadTypeServer:
			err = m.ingestServerChunk(record, chunk)
		case domain.UploadTypeP2P:
			err = m.ingestP2PChunk(record, chunk)
		default:
			err = errs.ErrInvalidRecordType
		}
		if err != nil {
			return err
		}
		out = record.Clone()
		return nil
	})
	return out, err
}

func (m *Manager) ingestServerChunk(record *domain.FileUploadRecord, chunk *domain.FileUploadChunk) error {
	if record.HasChunk(chunk.ChunkID) {
		if record.IsComplete() {
			// The final chunk was counted but a previous finalize failed.
			return m.finalizeUpload(record)
		}
		return nil
	}
	if err := appendToFile(record.TempFilePath(), chunk.Data); err != nil {
		m.log.Error("failed to append upload chunk",
			"upload_id", record.ID, "chunk_id", chunk.ChunkID, "error", err)
		return fmt.Errorf("append chunk %d to %s: %w", chunk.ChunkID, record.TempFilePath(), err)
	}
	record.AddChunk(chunk.ChunkID)
	m.touch(record)
	if record.IsComplete() {
		return m.finalizeUpload(record)
	}
	return nil
}

func (m *Manager) ingestP2PChunk(record *domain.FileUploadRecord, chunk *domain.FileUploadChunk) error {
	if record.HasChunk(chunk.ChunkID) {
		return nil
	}
	m.relay.Put(chunk)
	record.AddChunk(chunk.ChunkID)
	m.touch(record)
	if record.IsComplete() {
		// No disk finalize for P2P; bytes stay in the relay buffer for any
		// reads still in flight.
		record.Status = domain.UploadStatusFinished
	}
	return nil
}

func (m *Manager) touch(record *domain.FileUploadRecord) {
	if record.Status == domain.UploadStatusBegun {
		record.Status = domain.UploadStatusUploading
	}
	record.Updated = time.Now()
}

// finalizeUpload renames the temp file into place and marks the record
// FINISHED. The received-index bookkeeping is dropped; it has served its
// purpose once the file is whole.
func (m *Manager) finalizeUpload(record *domain.FileUploadRecord) error {
	if err := os.Rename(record.TempFilePath(), record.FilePath()); err != nil {
		m.log.Error("failed to finalize upload",
			"upload_id", record.ID, "path", record.FilePath(), "error", err)
		return fmt.Errorf("finalize upload %s: %w", record.ID, err)
	}
	record.Status = domain.UploadStatusFinished
	record.ChunksReceived = nil
	record.Updated = time.Now()
	m.verifyMimeType(record)
	return nil
}

// verifyMimeType sniffs the finalized file and logs when the content disagrees
// with the declared MIME type. Advisory only; the declared type stands.
func (m *Manager) verifyMimeType(record *domain.FileUploadRecord) {
	if record.FileMimeType == "" {
		return
	}
	detected, err := mimetype.DetectFile(record.FilePath())
	if err != nil {
		return
	}
	if !detected.Is(record.FileMimeType) {
		m.log.Warn("uploaded file content does not match declared mime type",
			"upload_id", record.ID, "declared", record.FileMimeType, "detected", detected.String())
	}
}

// GetFileChunk serves a byte range of a finished SERVER upload straight from
// disk. The chunk id is computed as floor(offset / chunkSize).
func (m *Manager) GetFileChunk(uploadID string, offsetBytes, chunkSize int64) (*domain.FileUploadChunk, error) {
	record, err := m.GetRecord(uploadID)
	if err != nil {
		return nil, err
	}
	if record.Type != domain.UploadTypeServer {
		return nil, errs.ErrInvalidRecordType
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size %d: %w", chunkSize, errs.ErrChunkUnavailable)
	}
	file, err := os.Open(record.FilePath())
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, errs.ErrChunkUnavailable)
	}
	defer file.Close()

	// The buffer is sized from the bytes actually left in the file, never from
	// the caller-supplied chunk size alone.
	readSize := chunkSize
	if remaining := record.FileSize - offsetBytes; remaining < readSize {
		readSize = remaining
	}
	if readSize < 0 {
		readSize = 0
	}
	data := make([]byte, readSize)
	n, err := file.ReadAt(data, offsetBytes)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s at %d: %v: %w", record.FilePath(), offsetBytes, err, errs.ErrChunkUnavailable)
	}
	return &domain.FileUploadChunk{
		ChunkID:  int(offsetBytes / chunkSize),
		UploadID: uploadID,
		Data:     data[:n],
	}, nil
}

// GetFileChunkP2P serves one buffered chunk to the downloading peer. A chunk
// that has not arrived yet is a retry signal (ErrChunkNotYetAvailable), not a
// failure; a chunk requested from a canceled or errored transfer is gone for
// good. Serving a chunk forgets buffer slots behind the forget window.
func (m *Manager) GetFileChunkP2P(uploadID string, chunkID int) (*domain.FileUploadChunk, error) {
	record, err := m.GetRecord(uploadID)
	if err != nil {
		return nil, err
	}
	if record.Type != domain.UploadTypeP2P {
		return nil, errs.ErrInvalidRecordType
	}
	chunk, ok := m.relay.Get(uploadID, chunkID)
	if !ok {
		if record.Status == domain.UploadStatusCanceled || record.Status == domain.UploadStatusError {
			return nil, fmt.Errorf("upload %s is %s: %w", uploadID, record.Status, errs.ErrChunkUnavailable)
		}
		return nil, errs.ErrChunkNotYetAvailable
	}
	m.relay.ForgetThrough(uploadID, chunkID)
	return chunk, nil
}

// PrefetchHint reports whether serving the given chunk drained the buffer
// close to its head, and the highest buffered chunk id to anchor the sender's
// next push. The caller owns the actual ask-for-chunk notification.
func (m *Manager) PrefetchHint(uploadID string, served int) (lastChunkID int, needMore bool) {
	buffered := m.relay.Len(uploadID)
	last := m.relay.LastBuffered(uploadID)
	return last, last >= 0 && served > buffered-m.prefetchTolerance
}

func appendToFile(path string, data []byte) error {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
