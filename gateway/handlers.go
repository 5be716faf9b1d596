package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	errs "github.com/libersoft-org/yellow-server-module-messages/errors"
	"github.com/libersoft-org/yellow-server-module-messages/repositories"
	"github.com/libersoft-org/yellow-server-module-messages/transfer"
)

// Command is one request frame on the WebSocket channel.
type Command struct {
	RequestID uint64          `json:"requestId,omitempty"`
	Command   string          `json:"command"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Response mirrors the original module's reply shape: error 0 is success,
// everything else is a machine-readable code with a human-readable message.
type Response struct {
	RequestID uint64 `json:"requestId,omitempty"`
	Error     int    `json:"error"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type commandContext struct {
	userID      int64
	userAddress string
	params      json.RawMessage
}

type commandHandler func(c *commandContext) Response

// Config tunes the gateway's admission and persistence batching.
type Config struct {
	// PersistChunksEvery patches chunksReceived to the backing store every Nth
	// chunk instead of on every single one; state transitions always persist.
	PersistChunksEvery int
	// MaxFileSize rejects upload_begin requests above this many bytes.
	// Zero disables the limit.
	MaxFileSize int64
}

// Gateway translates WebSocket commands into core calls and core state
// changes into per-user notify pushes.
type Gateway struct {
	manager     *transfer.Manager
	attachments repositories.IAttachmentRepository
	messages    repositories.IMessageRepository
	directory   Directory
	notifier    Notifier
	hub         *Hub
	validate    *validator.Validate
	commands    map[string]commandHandler
	seenMu      sync.Mutex
	persistEach int
	maxFileSize int64
	log         *slog.Logger
}

// NewGateway wires the command layer. The hub may be nil when the gateway is
// driven without WebSocket sessions (tests); the notifier is what handlers
// push through.
func NewGateway(
	manager *transfer.Manager,
	attachments repositories.IAttachmentRepository,
	messages repositories.IMessageRepository,
	directory Directory,
	notifier Notifier,
	hub *Hub,
	cfg Config,
	log *slog.Logger,
) *Gateway {
	if cfg.PersistChunksEvery <= 0 {
		cfg.PersistChunksEvery = 32
	}
	g := &Gateway{
		manager:     manager,
		attachments: attachments,
		messages:    messages,
		directory:   directory,
		notifier:    notifier,
		hub:         hub,
		validate:    validator.New(),
		persistEach: cfg.PersistChunksEvery,
		maxFileSize: cfg.MaxFileSize,
		log:         log,
	}
	g.commands = map[string]commandHandler{
		"message_send":         g.messageSend,
		"message_seen":         g.messageSeen,
		"messages_list":        g.messagesList,
		"conversations_list":   g.conversationsList,
		"upload_begin":         g.uploadBegin,
		"upload_chunk":         g.uploadChunk,
		"upload_get":           g.uploadGet,
		"upload_cancel":        g.uploadCancel,
		"upload_update_status": g.uploadUpdateStatus,
		"download_chunk":       g.downloadChunk,
	}
	return g
}

// Dispatch routes one command to its handler. Unknown commands and malformed
// params are reported to the caller; no state is mutated for either.
func (g *Gateway) Dispatch(userID int64, userAddress string, command Command) Response {
	handler, ok := g.commands[command.Command]
	if !ok {
		return Response{RequestID: command.RequestID, Error: 999, Message: "Unknown command: " + command.Command}
	}
	response := handler(&commandContext{userID: userID, userAddress: userAddress, params: command.Params})
	response.RequestID = command.RequestID
	return response
}

func (g *Gateway) decodeParams(c *commandContext, dst any) error {
	if len(c.params) == 0 {
		return errors.New("parameters are missing")
	}
	if err := json.Unmarshal(c.params, dst); err != nil {
		return err
	}
	return g.validate.Struct(dst)
}

// OnStaleUpload is plugged into the stale sweeper so timed-out transfers are
// announced to every attachment owner.
func (g *Gateway) OnStaleUpload(record *domain.FileUploadRecord) error {
	g.sendUploadNotification(record)
	return nil
}

// sendUploadNotification fans the record's public view out to everyone with
// an attachment on it, minus the ignore list (typically the acting user, who
// already has the response).
func (g *Gateway) sendUploadNotification(record *domain.FileUploadRecord, ignoreUserIDs ...int64) {
	owners, err := g.attachments.ListByUpload(record.ID)
	if err != nil {
		g.log.Error("failed to list attachment owners", "upload_id", record.ID, "error", err)
		return
	}
	for _, owner := range owners {
		if lo.Contains(ignoreUserIDs, owner.UserID) {
			continue
		}
		g.notifier.NotifyUser(owner.UserID, "upload_update", map[string]any{"record": publicUploadRecord(record)})
	}
}

// publicUploadRecord picks the fields the frontend is allowed to see; the
// server-side path fields stay private.
func publicUploadRecord(record *domain.FileUploadRecord) map[string]any {
	return map[string]any{
		"id":               record.ID,
		"type":             record.Type,
		"status":           record.Status,
		"errorType":        record.ErrorType,
		"fileOriginalName": record.FileOriginalName,
		"fileMimeType":     record.FileMimeType,
		"fileSize":         record.FileSize,
		"chunkSize":        record.ChunkSize,
		"fromUserId":       record.FromUserID,
		"fromUserUid":      record.FromUserUID,
		"metadata":         record.Metadata,
	}
}

type wireChunk struct {
	ChunkID  int    `json:"chunkId" validate:"gte=0"`
	UploadID string `json:"uploadId" validate:"required"`
	Checksum string `json:"checksum"`
	Data     string `json:"data" validate:"required"`
}

type uploadBeginRecordParams struct {
	ID               string         `json:"id" validate:"required"`
	Type             string         `json:"type" validate:"required"`
	FileOriginalName string         `json:"fileOriginalName" validate:"required"`
	FileMimeType     string         `json:"fileMimeType"`
	FileSize         int64          `json:"fileSize" validate:"required,gt=0"`
	ChunkSize        int64          `json:"chunkSize" validate:"required,gt=0"`
	Metadata         map[string]any `json:"metadata"`
}

type uploadBeginParams struct {
	Records    []uploadBeginRecordParams `json:"records" validate:"min=1,dive"`
	Recipients []string                  `json:"recipients" validate:"min=1"`
}

func (g *Gateway) uploadBegin(c *commandContext) Response {
	var params uploadBeginParams
	if err := g.decodeParams(c, &params); err != nil {
		if len(params.Records) == 0 {
			return Response{Error: 1, Message: "Records are missing"}
		}
		return Response{Error: 2, Message: "Recipients are missing"}
	}

	allowed := make([]map[string]any, 0, len(params.Records))
	disallowed := make([]map[string]any, 0)
	for _, requested := range params.Records {
		if g.maxFileSize > 0 && requested.FileSize > g.maxFileSize {
			disallowed = append(disallowed, map[string]any{"id": requested.ID, "reason": "file size exceeds the server limit"})
			continue
		}
		record, err := g.manager.Begin(domain.FileUploadRecordType(requested.Type), domain.UploadBeginData{
			ID:               requested.ID,
			FromUserID:       c.userID,
			FromUserUID:      c.userAddress,
			FileOriginalName: requested.FileOriginalName,
			FileMimeType:     requested.FileMimeType,
			FileSize:         requested.FileSize,
			ChunkSize:        requested.ChunkSize,
			Metadata:         requested.Metadata,
		})
		if err != nil {
			g.log.Error("upload begin rejected", "upload_id", requested.ID, "error", err)
			disallowed = append(disallowed, map[string]any{"id": requested.ID, "reason": err.Error()})
			continue
		}

		if err := g.attachments.Create(domain.NewAttachmentRecord(c.userID, record.ID, record.FilePath())); err != nil {
			g.log.Error("failed to create sender attachment", "upload_id", record.ID, "error", err)
		}
		for _, address := range params.Recipients {
			if _, _, ok := SplitAddress(address); !ok {
				g.log.Error("invalid recipient address format", "address", address)
				continue
			}
			recipientID, err := g.directory.ResolveAddress(address)
			if err != nil {
				g.log.Error("recipient not found on this server", "address", address, "error", err)
				continue
			}
			if err := g.attachments.Create(domain.NewAttachmentRecord(recipientID, record.ID, record.FilePath())); err != nil {
				g.log.Error("failed to create recipient attachment", "upload_id", record.ID, "user_id", recipientID, "error", err)
			}
		}
		allowed = append(allowed, publicUploadRecord(record))
	}

	return Response{Error: 0, Message: "Upload started", Data: map[string]any{
		"allowedRecords":    allowed,
		"disallowedRecords": disallowed,
	}}
}

type uploadChunkParams struct {
	Chunk wireChunk `json:"chunk" validate:"required"`
}

func (g *Gateway) uploadChunk(c *commandContext) Response {
	var params uploadChunkParams
	if err := g.decodeParams(c, &params); err != nil {
		return Response{Error: 1, Message: "Chunk is missing"}
	}
	data, err := base64.StdEncoding.DecodeString(params.Chunk.Data)
	if err != nil {
		return Response{Error: 2, Message: "Chunk data is not valid base64"}
	}

	record, err := g.manager.ProcessChunk(&domain.FileUploadChunk{
		ChunkID:  params.Chunk.ChunkID,
		UploadID: params.Chunk.UploadID,
		Checksum: params.Chunk.Checksum,
		Data:     data,
	})
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrRecordNotFound):
		return Response{Error: 3, Message: "Record not found"}
	case errors.Is(err, errs.ErrChunkOutOfRange):
		return Response{Error: 6, Message: "Chunk is out of range"}
	default:
		var transition *errs.InvalidStatusTransitionError
		if errors.As(err, &transition) {
			return Response{Error: 4, Message: "Upload is not active"}
		}
		// I/O failure: the chunk was not counted, the caller must resend.
		return Response{Error: 5, Message: "Chunk could not be processed"}
	}

	g.persistChunkProgress(record)

	if record.Status == domain.UploadStatusUploading && len(record.ChunksReceived) == 1 {
		g.sendUploadNotification(record)
	}
	if record.Status == domain.UploadStatusFinished {
		g.sendUploadNotification(record)
	}
	return Response{Error: 0, Message: "Chunk accepted"}
}

// persistChunkProgress batches the chunksReceived bookkeeping: transitions
// always persist, steady-state progress every Nth chunk. A crash in between
// loses only bookkeeping that at-least-once redelivery repairs.
func (g *Gateway) persistChunkProgress(record *domain.FileUploadRecord) {
	received := len(record.ChunksReceived)
	transitioned := record.Status == domain.UploadStatusFinished || received == 1
	if !transitioned && received%g.persistEach != 0 {
		return
	}
	status := record.Status
	chunks := record.ChunksReceived
	if chunks == nil {
		chunks = []int{}
	}
	if _, err := g.manager.Patch(record.ID, domain.UploadPatch{Status: &status, ChunksReceived: chunks}); err != nil {
		g.log.Error("failed to persist chunk progress", "upload_id", record.ID, "error", err)
	}
}

type downloadChunkParams struct {
	UploadID    string `json:"uploadId" validate:"required"`
	OffsetBytes int64  `json:"offsetBytes" validate:"gte=0"`
	ChunkSize   int64  `json:"chunkSize" validate:"required,gt=0"`
}

func (g *Gateway) downloadChunk(c *commandContext) Response {
	var params downloadChunkParams
	if err := g.decodeParams(c, &params); err != nil {
		return Response{Error: 1, Message: "Parameters are missing"}
	}
	record, err := g.manager.GetRecord(params.UploadID)
	if err != nil {
		return Response{Error: 1, Message: "Record not found"}
	}

	switch record.Type {
	case domain.UploadTypeServer:
		chunk, err := g.manager.GetFileChunk(params.UploadID, params.OffsetBytes, params.ChunkSize)
		if err != nil {
			return Response{Error: 3, Message: "Chunk could not be obtained"}
		}
		return Response{Error: 0, Data: map[string]any{"chunk": wireChunkFrom(chunk)}}

	case domain.UploadTypeP2P:
		chunkID := int(params.OffsetBytes / params.ChunkSize)
		chunk, err := g.manager.GetFileChunkP2P(params.UploadID, chunkID)
		if errors.Is(err, errs.ErrChunkNotYetAvailable) {
			// Retry signal: ask the sender to push this chunk and have the
			// downloader back off and re-request.
			g.notifier.NotifyUser(record.FromUserID, "ask_for_chunk", map[string]any{
				"uploadId":    params.UploadID,
				"offsetBytes": params.OffsetBytes,
				"chunkSize":   params.ChunkSize,
			})
			return Response{Error: 2, Message: "Wait for chunk"}
		}
		if err != nil {
			return Response{Error: 3, Message: "Chunk could not be obtained"}
		}
		if last, needMore := g.manager.PrefetchHint(params.UploadID, chunk.ChunkID); needMore {
			g.notifier.NotifyUser(record.FromUserID, "ask_for_chunk", map[string]any{
				"uploadId":    params.UploadID,
				"offsetBytes": int64(last) * params.ChunkSize,
				"chunkSize":   params.ChunkSize,
			})
		}
		return Response{Error: 0, Data: map[string]any{"chunk": wireChunkFrom(chunk)}}

	default:
		return Response{Error: 4, Message: "Unknown record type"}
	}
}

func wireChunkFrom(chunk *domain.FileUploadChunk) wireChunk {
	return wireChunk{
		ChunkID:  chunk.ChunkID,
		UploadID: chunk.UploadID,
		Checksum: chunk.Checksum,
		Data:     base64.StdEncoding.EncodeToString(chunk.Data),
	}
}

type uploadGetParams struct {
	ID string `json:"id" validate:"required"`
}

func (g *Gateway) uploadGet(c *commandContext) Response {
	var params uploadGetParams
	if err := g.decodeParams(c, &params); err != nil {
		return Response{Error: 1, Message: "Record id is missing"}
	}
	record, err := g.manager.GetRecord(params.ID)
	if err != nil {
		return Response{Error: 1, Message: "Record not found"}
	}

	owners, err := g.attachments.ListByUpload(record.ID)
	if err != nil {
		g.log.Error("failed to list attachment owners", "upload_id", record.ID, "error", err)
		return Response{Error: 2, Message: "Record not accessible"}
	}
	if !lo.SomeBy(owners, func(o domain.AttachmentRecord) bool { return o.UserID == c.userID }) {
		return Response{Error: 2, Message: "You are not allowed to access this record"}
	}

	role := domain.UploadRoleReceiver
	if c.userID == record.FromUserID {
		role = domain.UploadRoleSender
	}
	return Response{Error: 0, Data: map[string]any{
		"record":     publicUploadRecord(record),
		"uploadData": map[string]any{"role": role},
	}}
}

type uploadCancelParams struct {
	UploadID string `json:"uploadId" validate:"required"`
}

func (g *Gateway) uploadCancel(c *commandContext) Response {
	var params uploadCancelParams
	if err := g.decodeParams(c, &params); err != nil {
		return Response{Error: 1, Message: "Upload id is missing"}
	}
	record, err := g.manager.UpdateStatus(params.UploadID, domain.UploadStatusCanceled)
	if err != nil {
		return g.statusChangeFailure(err)
	}
	g.sendUploadNotification(record, c.userID)
	return Response{Error: 0, Message: "Upload canceled"}
}

type uploadUpdateStatusParams struct {
	UploadID string `json:"uploadId" validate:"required"`
	Status   string `json:"status" validate:"required"`
}

func (g *Gateway) uploadUpdateStatus(c *commandContext) Response {
	var params uploadUpdateStatusParams
	if err := g.decodeParams(c, &params); err != nil {
		return Response{Error: 1, Message: "Parameters are missing"}
	}
	requested := domain.FileUploadRecordStatus(params.Status)
	switch requested {
	case domain.UploadStatusCanceled, domain.UploadStatusPaused, domain.UploadStatusUploading:
	default:
		return Response{Error: 2, Message: "Invalid status: " + params.Status}
	}
	record, err := g.manager.UpdateStatus(params.UploadID, requested)
	if err != nil {
		return g.statusChangeFailure(err)
	}
	g.sendUploadNotification(record)
	return Response{Error: 0, Message: "Upload updated"}
}

func (g *Gateway) statusChangeFailure(err error) Response {
	if errors.Is(err, errs.ErrRecordNotFound) {
		return Response{Error: 1, Message: "Record not found"}
	}
	var transition *errs.InvalidStatusTransitionError
	if errors.As(err, &transition) {
		return Response{Error: 3, Message: transition.Error()}
	}
	return Response{Error: 5, Message: "Status change failed"}
}
