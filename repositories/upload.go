//go:generate go run go.uber.org/mock/mockgen -source=upload.go -destination=../mocks/mock_upload_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	errs "github.com/libersoft-org/yellow-server-module-messages/errors"
)

const uploadKeyPrefix = "upload:"

type IFileUploadRepository interface {
	Create(record *domain.FileUploadRecord) error
	Find(id string) (*domain.FileUploadRecord, error)
	Patch(id string, patch domain.UploadPatch) (*domain.FileUploadRecord, error)
	ListActive() ([]*domain.FileUploadRecord, error)
}

// FileUploadRepository persists transfer rows in BadgerDB as JSON under
// "upload:{id}". JSON keeps the rows readable in the debug inspector; nothing
// outside this process consumes them.
type FileUploadRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewFileUploadRepository(db *badger.DB, log *slog.Logger) *FileUploadRepository {
	return &FileUploadRepository{db: db, log: log}
}

func uploadKey(id string) []byte {
	return []byte(uploadKeyPrefix + id)
}

func (r *FileUploadRepository) Create(record *domain.FileUploadRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal upload row: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(uploadKey(record.ID), data)
	})
}

func (r *FileUploadRepository) Find(id string) (*domain.FileUploadRecord, error) {
	var record *domain.FileUploadRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(uploadKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("upload %s: %w", id, errs.ErrRecordNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			record = &domain.FileUploadRecord{}
			return json.Unmarshal(v, record)
		})
	})
	return record, err
}

// Patch applies the delta and writes the merged row back in one transaction,
// returning the canonical result so callers pick up server-computed fields
// without a second read.
func (r *FileUploadRepository) Patch(id string, patch domain.UploadPatch) (*domain.FileUploadRecord, error) {
	var record *domain.FileUploadRecord
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(uploadKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("upload %s: %w", id, errs.ErrRecordNotFound)
		}
		if err != nil {
			return err
		}
		record = &domain.FileUploadRecord{}
		if err := item.Value(func(v []byte) error { return json.Unmarshal(v, record) }); err != nil {
			return err
		}
		patch.Apply(record)
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal upload row: %w", err)
		}
		return txn.Set(uploadKey(id), data)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListAll returns every persisted row, terminal ones included, newest first.
func (r *FileUploadRepository) ListAll() ([]*domain.FileUploadRecord, error) {
	return r.list(func(*domain.FileUploadRecord) bool { return true })
}

// ListActive returns every persisted row still in a non-terminal status,
// newest first. The stale sweeper unions this with the in-memory records.
func (r *FileUploadRepository) ListActive() ([]*domain.FileUploadRecord, error) {
	return r.list(func(record *domain.FileUploadRecord) bool { return !record.IsTerminal() })
}

func (r *FileUploadRepository) list(keep func(*domain.FileUploadRecord) bool) ([]*domain.FileUploadRecord, error) {
	var records []*domain.FileUploadRecord
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(uploadKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				record := &domain.FileUploadRecord{}
				if err := json.Unmarshal(v, record); err != nil {
					return fmt.Errorf("unmarshal upload row: %w", err)
				}
				if keep(record) {
					records = append(records, record)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Created.After(records[j].Created) })
	return records, nil
}
