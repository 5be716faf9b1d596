package domain

import "time"

// UploadPatch is a partial update of a FileUploadRecord. Nil fields are left
// unchanged. The record id is not part of the patch and Updated is always
// stamped by the store, never by callers.
type UploadPatch struct {
	Status         *FileUploadRecordStatus `json:"status,omitempty"`
	ErrorType      *FileUploadErrorType    `json:"errorType,omitempty"`
	ChunksReceived []int                   `json:"chunksReceived,omitempty"`
	Metadata       map[string]any          `json:"metadata,omitempty"`

	Updated *time.Time `json:"updated,omitempty"`
}

// Apply merges the patch into the record in place.
func (p UploadPatch) Apply(r *FileUploadRecord) {
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.ErrorType != nil {
		r.ErrorType = p.ErrorType
	}
	if p.ChunksReceived != nil {
		r.ChunksReceived = p.ChunksReceived
	}
	if p.Metadata != nil {
		r.Metadata = p.Metadata
	}
	if p.Updated != nil {
		r.Updated = *p.Updated
	}
}
