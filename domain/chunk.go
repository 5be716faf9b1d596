package domain

// FileUploadChunk is one fixed-offset slice of a file in flight. Data holds
// raw bytes; the wire encoding (base64) is the gateway's concern.
type FileUploadChunk struct {
	ChunkID  int    `json:"chunkId"`
	UploadID string `json:"uploadId"`
	Checksum string `json:"checksum"`
	Data     []byte `json:"data"`
}

type FileUploadRole string

const (
	UploadRoleSender   FileUploadRole = "SENDER"
	UploadRoleReceiver FileUploadRole = "RECEIVER"
)
