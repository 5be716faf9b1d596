package transfer

import (
	"sync"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
)

// RelayBuffer holds P2P chunks in memory until the downloading peer picks them
// up. Chunks sit in a sparse per-transfer array indexed by chunk id, so
// out-of-order arrival leaves holes rather than reordering anything. Slots the
// downloader has moved past are forgotten to bound memory.
type RelayBuffer struct {
	mu              sync.Mutex
	chunks          map[string][]*domain.FileUploadChunk
	forgetTolerance int
}

func NewRelayBuffer(forgetTolerance int) *RelayBuffer {
	return &RelayBuffer{
		chunks:          make(map[string][]*domain.FileUploadChunk),
		forgetTolerance: forgetTolerance,
	}
}

// Put stores a chunk at its index, growing the backing array as needed.
func (b *RelayBuffer) Put(chunk *domain.FileUploadChunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slots := b.chunks[chunk.UploadID]
	for len(slots) <= chunk.ChunkID {
		slots = append(slots, nil)
	}
	slots[chunk.ChunkID] = chunk
	b.chunks[chunk.UploadID] = slots
}

func (b *RelayBuffer) Get(uploadID string, chunkID int) (*domain.FileUploadChunk, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slots := b.chunks[uploadID]
	if chunkID < 0 || chunkID >= len(slots) || slots[chunkID] == nil {
		return nil, false
	}
	return slots[chunkID], true
}

// ForgetThrough clears every slot below served-forgetTolerance. Best effort;
// a slot already consumed reads back as absent afterwards.
func (b *RelayBuffer) ForgetThrough(uploadID string, served int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	slots := b.chunks[uploadID]
	limit := served - b.forgetTolerance
	if limit > len(slots) {
		limit = len(slots)
	}
	for i := 0; i < limit; i++ {
		slots[i] = nil
	}
}

// LastBuffered reports the highest chunk id currently buffered, or -1.
func (b *RelayBuffer) LastBuffered(uploadID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	slots := b.chunks[uploadID]
	for i := len(slots) - 1; i >= 0; i-- {
		if slots[i] != nil {
			return i
		}
	}
	return -1
}

// Len reports the length of the backing array (highest seen index + 1).
func (b *RelayBuffer) Len(uploadID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks[uploadID])
}

// Drop releases the whole buffer for a transfer.
func (b *RelayBuffer) Drop(uploadID string) {
	b.mu.Lock()
	delete(b.chunks, uploadID)
	b.mu.Unlock()
}
