package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttachmentRecord grants one user access to the file produced by one
// transfer. A record is created per (transfer, recipient) pair at begin time
// and lives independently of the transfer's own lifecycle.
type AttachmentRecord struct {
	ID             string    `json:"id"`
	UserID         int64     `json:"userId"`
	FileTransferID string    `json:"fileTransferId"`
	FilePath       string    `json:"filePath,omitempty"`
	Created        time.Time `json:"created"`
}

func NewAttachmentRecord(userID int64, fileTransferID, filePath string) AttachmentRecord {
	return AttachmentRecord{
		ID:             uuid.NewString(),
		UserID:         userID,
		FileTransferID: fileTransferID,
		FilePath:       filePath,
		Created:        time.Now(),
	}
}
