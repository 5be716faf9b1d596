package transfer

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	errs "github.com/libersoft-org/yellow-server-module-messages/errors"
)

// Persistence is the narrow backend the store writes through. A deployment may
// run memory-only by passing a nil Persistence to NewStore.
type Persistence interface {
	Create(record *domain.FileUploadRecord) error
	Find(id string) (*domain.FileUploadRecord, error)
	Patch(id string, patch domain.UploadPatch) (*domain.FileUploadRecord, error)
	ListActive() ([]*domain.FileUploadRecord, error)
}

// Store owns the authoritative in-process state of active transfers. Every
// read-validate-write unit on a record must run inside WithLock for that
// record's id; the store never relies on callers remembering to lock around
// individual field accesses elsewhere.
type Store struct {
	mu      sync.Mutex
	records map[string]*domain.FileUploadRecord
	locks   map[string]*sync.Mutex
	repo    Persistence
	log     *slog.Logger
}

func NewStore(repo Persistence, log *slog.Logger) *Store {
	return &Store{
		records: make(map[string]*domain.FileUploadRecord),
		locks:   make(map[string]*sync.Mutex),
		repo:    repo,
		log:     log,
	}
}

// WithLock serializes all mutating operations on one record id. Two chunks
// arriving back-to-back, or a chunk racing a sweep timeout, take turns here.
func (s *Store) WithLock(id string, fn func() error) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// Register adds a freshly built record. When persistence is enabled the
// backing row is created first and a failure fails the whole operation, so
// callers never observe a record the backend rejected.
func (s *Store) Register(record *domain.FileUploadRecord) error {
	if s.repo != nil {
		if err := s.repo.Create(record); err != nil {
			return fmt.Errorf("persist upload record %s: %w", record.ID, err)
		}
	}
	s.mu.Lock()
	s.records[record.ID] = record
	s.mu.Unlock()
	return nil
}

// Get returns the in-memory record, falling back to the backing store (and
// caching the loaded row) when persistence is enabled.
func (s *Store) Get(id string) (*domain.FileUploadRecord, error) {
	s.mu.Lock()
	record, ok := s.records[id]
	s.mu.Unlock()
	if ok {
		return record, nil
	}
	if s.repo == nil {
		return nil, errRecordNotFound(id)
	}
	record, err := s.repo.Find(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.records[id] = record
	s.mu.Unlock()
	return record, nil
}

// Patch applies a partial update. Updated is always server-set here; whatever
// the caller put in the field is discarded. The delta is persisted first (a
// failure is surfaced, never swallowed), then merged into the resident record
// so live chunk state is not clobbered by the re-read.
func (s *Store) Patch(id string, patch domain.UploadPatch) (*domain.FileUploadRecord, error) {
	now := time.Now()
	patch.Updated = &now

	var canonical *domain.FileUploadRecord
	if s.repo != nil {
		merged, err := s.repo.Patch(id, patch)
		if err != nil {
			return nil, fmt.Errorf("persist patch for upload %s: %w", id, err)
		}
		canonical = merged
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if resident, ok := s.records[id]; ok {
		patch.Apply(resident)
		return resident, nil
	}
	if canonical != nil {
		s.records[id] = canonical
		return canonical, nil
	}
	return nil, errRecordNotFound(id)
}

// Forget evicts a record from memory only; the backing row, if any, stays for
// audit and history. The lock entry is kept: a unit already serialized on this
// id must stay serialized, and dropping the mutex here would let a later
// lockFor mint a second one while the first is still held.
func (s *Store) Forget(id string) {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
}

// Resident snapshots all records currently held in memory.
func (s *Store) Resident() []*domain.FileUploadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]*domain.FileUploadRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records
}

func errRecordNotFound(id string) error {
	return fmt.Errorf("upload %s: %w", id, errs.ErrRecordNotFound)
}
