package domain

import (
	"math"
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	errs "github.com/libersoft-org/yellow-server-module-messages/errors"
)

type FileUploadRecordType string

const (
	UploadTypeServer FileUploadRecordType = "SERVER"
	UploadTypeP2P    FileUploadRecordType = "P2P"
)

type FileUploadRecordStatus string

const (
	UploadStatusBegun     FileUploadRecordStatus = "BEGUN"
	UploadStatusUploading FileUploadRecordStatus = "UPLOADING"
	UploadStatusPaused    FileUploadRecordStatus = "PAUSED"
	UploadStatusFinished  FileUploadRecordStatus = "FINISHED"
	UploadStatusCanceled  FileUploadRecordStatus = "CANCELED"
	UploadStatusError     FileUploadRecordStatus = "ERROR"
)

type FileUploadErrorType string

const UploadErrorTimeoutByServer FileUploadErrorType = "TIMEOUT_BY_SERVER"

// FileUploadRecord is the authoritative state of one file transfer attempt.
// The filesystem fields (FileName, FileFolder, FileExtension) are populated for
// SERVER records only; P2P bytes never touch the disk.
type FileUploadRecord struct {
	ID          string               `json:"id"`
	FromUserID  int64                `json:"fromUserId"`
	FromUserUID string               `json:"fromUserUid"`
	Type        FileUploadRecordType `json:"type"`

	Status    FileUploadRecordStatus `json:"status"`
	ErrorType *FileUploadErrorType   `json:"errorType"`

	FileOriginalName string `json:"fileOriginalName"`
	FileMimeType     string `json:"fileMimeType"`
	FileSize         int64  `json:"fileSize"`
	ChunkSize        int64  `json:"chunkSize"`

	FileName      string `json:"fileName,omitempty"`
	FileFolder    string `json:"fileFolder,omitempty"`
	FileExtension string `json:"fileExtension,omitempty"`

	ChunksReceived []int          `json:"chunksReceived"`
	Metadata       map[string]any `json:"metadata,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// ExpectedChunks is the number of distinct chunk indices that completes the
// transfer: ceil(fileSize / chunkSize).
func (r *FileUploadRecord) ExpectedChunks() int {
	if r.ChunkSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(r.FileSize) / float64(r.ChunkSize)))
}

func (r *FileUploadRecord) HasChunk(chunkID int) bool {
	return lo.Contains(r.ChunksReceived, chunkID)
}

// AddChunk records a received chunk index. Redelivered indices are ignored so
// the received count only ever grows by distinct chunks.
func (r *FileUploadRecord) AddChunk(chunkID int) bool {
	if r.HasChunk(chunkID) {
		return false
	}
	r.ChunksReceived = append(r.ChunksReceived, chunkID)
	return true
}

func (r *FileUploadRecord) IsComplete() bool {
	return len(r.ChunksReceived) == r.ExpectedChunks()
}

func (r *FileUploadRecord) IsTerminal() bool {
	switch r.Status {
	case UploadStatusFinished, UploadStatusCanceled, UploadStatusError:
		return true
	}
	return false
}

// ValidateTransition checks an explicit status-change request against the
// current status. FINISHED is reached implicitly by chunk ingestion and can
// never be requested; terminal states have no outbound transitions.
func (r *FileUploadRecord) ValidateTransition(to FileUploadRecordStatus) error {
	allowed := false
	switch to {
	case UploadStatusCanceled:
		allowed = r.Status == UploadStatusBegun || r.Status == UploadStatusUploading || r.Status == UploadStatusPaused
	case UploadStatusPaused:
		allowed = r.Status == UploadStatusUploading
	case UploadStatusUploading:
		allowed = r.Status == UploadStatusPaused
	case UploadStatusError:
		allowed = !r.IsTerminal()
	}
	if !allowed {
		return &errs.InvalidStatusTransitionError{From: string(r.Status), To: string(to)}
	}
	return nil
}

// FilePath is the final on-disk location of a SERVER record.
func (r *FileUploadRecord) FilePath() string {
	return path.Join(r.FileFolder, r.FileName)
}

// TempFilePath is where chunks are appended until the upload finalizes.
func (r *FileUploadRecord) TempFilePath() string {
	return r.FilePath() + ".tmp"
}

func (r *FileUploadRecord) Clone() *FileUploadRecord {
	clone := *r
	clone.ChunksReceived = append([]int(nil), r.ChunksReceived...)
	if r.Metadata != nil {
		clone.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			clone.Metadata[k] = v
		}
	}
	if r.ErrorType != nil {
		et := *r.ErrorType
		clone.ErrorType = &et
	}
	return &clone
}

// FileNameStrategy derives the server-assigned file name for a SERVER record.
// FileFolderStrategy derives the folder the file lands in. Both are injectable
// because storage layout varies by deployment.
type (
	FileNameStrategy   func(r *FileUploadRecord) string
	FileFolderStrategy func(r *FileUploadRecord) string
)

type Strategies struct {
	FileName   FileNameStrategy
	FileFolder FileFolderStrategy
}

// DefaultStrategies names files "<id><ext>" inside a fixed uploads folder.
func DefaultStrategies(folder string) Strategies {
	return Strategies{
		FileName:   func(r *FileUploadRecord) string { return r.ID + r.FileExtension },
		FileFolder: func(r *FileUploadRecord) string { return folder },
	}
}

// UploadBeginData carries the caller-supplied metadata for a new transfer.
type UploadBeginData struct {
	ID               string
	FromUserID       int64
	FromUserUID      string
	FileOriginalName string
	FileMimeType     string
	FileSize         int64
	ChunkSize        int64
	Metadata         map[string]any
}

// NewUploadRecord builds a BEGUN record of the requested kind. The original
// file name is sanitized before it is stored and before the extension is
// derived from it.
func NewUploadRecord(kind FileUploadRecordType, data UploadBeginData, strategies Strategies) (*FileUploadRecord, error) {
	if kind != UploadTypeServer && kind != UploadTypeP2P {
		return nil, errs.ErrInvalidRecordKind
	}

	now := time.Now()
	record := &FileUploadRecord{
		ID:               data.ID,
		FromUserID:       data.FromUserID,
		FromUserUID:      data.FromUserUID,
		Type:             kind,
		Status:           UploadStatusBegun,
		FileOriginalName: SanitizeFileName(data.FileOriginalName),
		FileMimeType:     data.FileMimeType,
		FileSize:         data.FileSize,
		ChunkSize:        data.ChunkSize,
		ChunksReceived:   []int{},
		Metadata:         data.Metadata,
		Created:          now,
		Updated:          now,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	ext := path.Ext(record.FileOriginalName)
	if record.FileMimeType == "" {
		record.FileMimeType = mime.TypeByExtension(ext)
	}

	if kind == UploadTypeServer {
		record.FileExtension = ext
		record.FileName = strategies.FileName(record)
		record.FileFolder = strategies.FileFolder(record)
	}
	return record, nil
}

var unsafeFileNameChars = regexp.MustCompile(`[/\\?<>:*|"\x00-\x1f]`)

// SanitizeFileName strips path separators and characters that are unsafe in a
// file name on common filesystems. Only the base name of the input survives.
func SanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeFileNameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, ". ")
	if name == "" || name == "/" {
		return "unnamed"
	}
	return name
}
