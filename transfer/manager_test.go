package transfer

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	errs "github.com/libersoft-org/yellow-server-module-messages/errors"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewStore(nil, logger)
	relay := NewRelayBuffer(DefaultForgetTolerance)
	return NewManager(store, relay, Config{
		Strategies: domain.DefaultStrategies(t.TempDir()),
	}, logger)
}

func beginData(id string) domain.UploadBeginData {
	return domain.UploadBeginData{
		ID:               id,
		FromUserID:       1,
		FromUserUID:      "alice@example.com",
		FileOriginalName: "photo.png",
		FileSize:         4086,
		ChunkSize:        1024,
	}
}

func chunkData(chunkID int, size int) []byte {
	data := bytes.Repeat([]byte{byte('a' + chunkID)}, size)
	return data
}

func TestManager_ServerUpload_ReverseOrder(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	record, err := manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)
	req.Equal(4, record.ExpectedChunks())

	// 4086 bytes split by 1024: three full chunks and a 1014-byte tail,
	// delivered highest index first.
	sizes := []int{1024, 1024, 1024, 1014}
	for chunkID := 3; chunkID >= 0; chunkID-- {
		record, err = manager.ProcessChunk(&domain.FileUploadChunk{
			ChunkID:  chunkID,
			UploadID: "up-1",
			Data:     chunkData(chunkID, sizes[chunkID]),
		})
		req.NoError(err)
	}

	req.Equal(domain.UploadStatusFinished, record.Status)
	info, err := os.Stat(record.FilePath())
	req.NoError(err)
	req.EqualValues(4086, info.Size())

	_, err = os.Stat(record.TempFilePath())
	req.True(os.IsNotExist(err))
}

func TestManager_ServerUpload_FirstChunkStartsUploading(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)

	record, err := manager.ProcessChunk(&domain.FileUploadChunk{
		ChunkID: 0, UploadID: "up-1", Data: chunkData(0, 1024),
	})
	req.NoError(err)
	req.Equal(domain.UploadStatusUploading, record.Status)
}

func TestManager_ServerUpload_RedeliveryIsIdempotent(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)

	chunk := &domain.FileUploadChunk{ChunkID: 0, UploadID: "up-1", Data: chunkData(0, 1024)}
	record, err := manager.ProcessChunk(chunk)
	req.NoError(err)
	req.Len(record.ChunksReceived, 1)

	// Same chunk again: acknowledged, not re-counted, not re-appended.
	record, err = manager.ProcessChunk(chunk)
	req.NoError(err)
	req.Len(record.ChunksReceived, 1)

	info, err := os.Stat(record.TempFilePath())
	req.NoError(err)
	req.EqualValues(1024, info.Size())
}

func TestManager_ProcessChunk_RejectsTerminalRecord(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)
	_, err = manager.UpdateStatus("up-1", domain.UploadStatusCanceled)
	req.NoError(err)

	_, err = manager.ProcessChunk(&domain.FileUploadChunk{
		ChunkID: 0, UploadID: "up-1", Data: chunkData(0, 1024),
	})
	var transition *errs.InvalidStatusTransitionError
	req.ErrorAs(err, &transition)
	req.Equal(string(domain.UploadStatusCanceled), transition.From)
}

func TestManager_ProcessChunk_UnknownRecord(t *testing.T) {
	manager := newTestManager(t)
	_, err := manager.ProcessChunk(&domain.FileUploadChunk{ChunkID: 0, UploadID: "ghost"})
	require.ErrorIs(t, err, errs.ErrRecordNotFound)
}

func TestManager_GetFileChunk_ReadsBackRanges(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)

	sizes := []int{1024, 1024, 1024, 1014}
	for chunkID := 0; chunkID < 4; chunkID++ {
		_, err = manager.ProcessChunk(&domain.FileUploadChunk{
			ChunkID: chunkID, UploadID: "up-1", Data: chunkData(chunkID, sizes[chunkID]),
		})
		req.NoError(err)
	}

	chunk, err := manager.GetFileChunk("up-1", 0, 1024)
	req.NoError(err)
	req.Equal(0, chunk.ChunkID)
	req.Equal(chunkData(0, 1024), chunk.Data)

	// Last chunk is a partial read; EOF is not an error.
	chunk, err = manager.GetFileChunk("up-1", 3*1024, 1024)
	req.NoError(err)
	req.Equal(3, chunk.ChunkID)
	req.Len(chunk.Data, 1014)

	// Reading past the end yields an empty chunk, still no hard failure.
	chunk, err = manager.GetFileChunk("up-1", 8*1024, 1024)
	req.NoError(err)
	req.Empty(chunk.Data)
}

func TestManager_GetFileChunk_ClampsOversizedChunkSize(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)
	sizes := []int{1024, 1024, 1024, 1014}
	for chunkID := 0; chunkID < 4; chunkID++ {
		_, err = manager.ProcessChunk(&domain.FileUploadChunk{
			ChunkID: chunkID, UploadID: "up-1", Data: chunkData(chunkID, sizes[chunkID]),
		})
		req.NoError(err)
	}

	// The read buffer is bounded by the file, not by the requested size, so an
	// absurd chunk size returns the whole file instead of allocating it.
	chunk, err := manager.GetFileChunk("up-1", 0, 1<<62)
	req.NoError(err)
	req.Len(chunk.Data, 4086)

	chunk, err = manager.GetFileChunk("up-1", 3*1024, 1<<62)
	req.NoError(err)
	req.Len(chunk.Data, 1014)
}

func TestManager_GetFileChunk_MissingFile(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)

	// Not finalized yet: nothing at the final path. The open failure stays in
	// the chain so logs can say why the chunk was unavailable.
	_, err = manager.GetFileChunk("up-1", 0, 1024)
	req.ErrorIs(err, errs.ErrChunkUnavailable)
	req.ErrorContains(err, "no such file")
}

func TestManager_ProcessChunk_RejectsOutOfRangeIndex(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	// 4086/1024 expects indices 0..3; anything else must be rejected before it
	// grows the relay buffer or lands on disk.
	_, err := manager.Begin(domain.UploadTypeP2P, beginData("p2p-1"))
	req.NoError(err)

	_, err = manager.ProcessChunk(&domain.FileUploadChunk{
		ChunkID: 5_000_000, UploadID: "p2p-1", Data: chunkData(0, 1024),
	})
	req.ErrorIs(err, errs.ErrChunkOutOfRange)
	req.Zero(manager.relay.Len("p2p-1"))

	record, err := manager.GetRecord("p2p-1")
	req.NoError(err)
	req.Empty(record.ChunksReceived)

	_, err = manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)

	for _, chunkID := range []int{-1, 4} {
		_, err = manager.ProcessChunk(&domain.FileUploadChunk{
			ChunkID: chunkID, UploadID: "up-1", Data: chunkData(0, 1024),
		})
		req.ErrorIs(err, errs.ErrChunkOutOfRange)
	}
	record, err = manager.GetRecord("up-1")
	req.NoError(err)
	req.Empty(record.ChunksReceived)
	_, err = os.Stat(record.TempFilePath())
	req.True(os.IsNotExist(err))
}

func TestManager_P2PUpload_OutOfOrderRelay(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeP2P, beginData("p2p-1"))
	req.NoError(err)

	// Chunk 2 before chunk 0: 0 is a retry signal until it arrives.
	_, err = manager.ProcessChunk(&domain.FileUploadChunk{
		ChunkID: 2, UploadID: "p2p-1", Data: chunkData(2, 1024),
	})
	req.NoError(err)

	_, err = manager.GetFileChunkP2P("p2p-1", 0)
	req.ErrorIs(err, errs.ErrChunkNotYetAvailable)

	chunk, err := manager.GetFileChunkP2P("p2p-1", 2)
	req.NoError(err)
	req.Equal(chunkData(2, 1024), chunk.Data)

	_, err = manager.ProcessChunk(&domain.FileUploadChunk{
		ChunkID: 0, UploadID: "p2p-1", Data: chunkData(0, 1024),
	})
	req.NoError(err)

	chunk, err = manager.GetFileChunkP2P("p2p-1", 0)
	req.NoError(err)
	req.Equal(0, chunk.ChunkID)
}

func TestManager_P2PUpload_CompletionFinishes(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeP2P, beginData("p2p-1"))
	req.NoError(err)

	sizes := []int{1024, 1024, 1024, 1014}
	var record *domain.FileUploadRecord
	for chunkID := 0; chunkID < 4; chunkID++ {
		record, err = manager.ProcessChunk(&domain.FileUploadChunk{
			ChunkID: chunkID, UploadID: "p2p-1", Data: chunkData(chunkID, sizes[chunkID]),
		})
		req.NoError(err)
	}
	req.Equal(domain.UploadStatusFinished, record.Status)

	// The buffer survives completion so a lagging downloader can drain it.
	chunk, err := manager.GetFileChunkP2P("p2p-1", 3)
	req.NoError(err)
	req.Len(chunk.Data, 1014)
}

func TestManager_P2PUpload_CancelDropsBuffer(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeP2P, beginData("p2p-1"))
	req.NoError(err)
	_, err = manager.ProcessChunk(&domain.FileUploadChunk{
		ChunkID: 0, UploadID: "p2p-1", Data: chunkData(0, 1024),
	})
	req.NoError(err)

	_, err = manager.UpdateStatus("p2p-1", domain.UploadStatusCanceled)
	req.NoError(err)

	_, err = manager.GetFileChunkP2P("p2p-1", 0)
	req.ErrorIs(err, errs.ErrChunkUnavailable)
	req.False(errors.Is(err, errs.ErrChunkNotYetAvailable))
}

func TestManager_UpdateStatus_PauseResume(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)
	_, err = manager.ProcessChunk(&domain.FileUploadChunk{
		ChunkID: 0, UploadID: "up-1", Data: chunkData(0, 1024),
	})
	req.NoError(err)

	record, err := manager.UpdateStatus("up-1", domain.UploadStatusPaused)
	req.NoError(err)
	req.Equal(domain.UploadStatusPaused, record.Status)

	record, err = manager.UpdateStatus("up-1", domain.UploadStatusUploading)
	req.NoError(err)
	req.Equal(domain.UploadStatusUploading, record.Status)
}

func TestManager_UpdateStatus_RejectsCancelOfFinished(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeServer, beginData("up-1"))
	req.NoError(err)
	sizes := []int{1024, 1024, 1024, 1014}
	for chunkID := 0; chunkID < 4; chunkID++ {
		_, err = manager.ProcessChunk(&domain.FileUploadChunk{
			ChunkID: chunkID, UploadID: "up-1", Data: chunkData(chunkID, sizes[chunkID]),
		})
		req.NoError(err)
	}

	_, err = manager.UpdateStatus("up-1", domain.UploadStatusCanceled)
	var transition *errs.InvalidStatusTransitionError
	req.ErrorAs(err, &transition)

	record, err := manager.GetRecord("up-1")
	req.NoError(err)
	req.Equal(domain.UploadStatusFinished, record.Status)
}

func TestManager_PrefetchHint(t *testing.T) {
	req := require.New(t)
	manager := newTestManager(t)

	_, err := manager.Begin(domain.UploadTypeP2P, beginData("p2p-1"))
	req.NoError(err)

	for chunkID := 0; chunkID < 3; chunkID++ {
		_, err = manager.ProcessChunk(&domain.FileUploadChunk{
			ChunkID: chunkID, UploadID: "p2p-1", Data: chunkData(chunkID, 1024),
		})
		req.NoError(err)
	}

	// Three buffered, default tolerance five: serving chunk 0 is already
	// within the window, so more should be requested.
	last, needMore := manager.PrefetchHint("p2p-1", 0)
	req.Equal(2, last)
	req.True(needMore)

	// Nothing buffered at all: no sender to anchor a request on.
	_, needMore = manager.PrefetchHint("empty", 0)
	req.False(needMore)
}
