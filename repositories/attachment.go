//go:generate go run go.uber.org/mock/mockgen -source=attachment.go -destination=../mocks/mock_attachment_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
)

type IAttachmentRepository interface {
	Create(record domain.AttachmentRecord) error
	ListByUpload(fileTransferID string) ([]domain.AttachmentRecord, error)
}

// AttachmentRepository stores one ownership row per (transfer, user) pair
// under "attachment:{uploadId}:{userId}", so the owner fan-out for a transfer
// is a single prefix scan.
type AttachmentRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewAttachmentRepository(db *badger.DB, log *slog.Logger) *AttachmentRepository {
	return &AttachmentRepository{db: db, log: log}
}

func attachmentKey(fileTransferID string, userID int64) []byte {
	return []byte(fmt.Sprintf("attachment:%s:%d", fileTransferID, userID))
}

func (r *AttachmentRepository) Create(record domain.AttachmentRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal attachment row: %w", err)
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(attachmentKey(record.FileTransferID, record.UserID), data)
	})
}

func (r *AttachmentRepository) ListByUpload(fileTransferID string) ([]domain.AttachmentRecord, error) {
	var records []domain.AttachmentRecord
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("attachment:" + fileTransferID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var record domain.AttachmentRecord
				if err := json.Unmarshal(v, &record); err != nil {
					return fmt.Errorf("unmarshal attachment row: %w", err)
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}
