package workers

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	"github.com/libersoft-org/yellow-server-module-messages/mocks"
	"github.com/libersoft-org/yellow-server-module-messages/transfer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staleRecord(id string) *domain.FileUploadRecord {
	return &domain.FileUploadRecord{
		ID:        id,
		Type:      domain.UploadTypeServer,
		Status:    domain.UploadStatusUploading,
		FileSize:  2048,
		ChunkSize: 1024,
		Created:   time.Now().Add(-time.Hour),
		Updated:   time.Now().Add(-time.Hour),
	}
}

func TestStaleSweeperWorker_SweepsPersistedRows(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	logger := testLogger()

	// The stale row lives only in the repository, not in memory.
	repo := mocks.NewMockIFileUploadRepository(ctrl)
	repo.EXPECT().ListActive().Return([]*domain.FileUploadRecord{staleRecord("up-1")}, nil).MinTimes(1)
	repo.EXPECT().Find("up-1").Return(staleRecord("up-1"), nil).AnyTimes()
	repo.EXPECT().Patch("up-1", gomock.Any()).DoAndReturn(
		func(id string, patch domain.UploadPatch) (*domain.FileUploadRecord, error) {
			merged := staleRecord(id)
			patch.Apply(merged)
			return merged, nil
		}).MinTimes(1)

	timedOut := make(chan *domain.FileUploadRecord, 4)
	onStale := func(record *domain.FileUploadRecord) error {
		timedOut <- record
		return nil
	}

	store := transfer.NewStore(repo, logger)
	manager := transfer.NewManager(store, transfer.NewRelayBuffer(16), transfer.Config{
		Strategies: domain.DefaultStrategies(t.TempDir()),
	}, logger)

	worker := NewStaleSweeperWorker(manager, repo, onStale, 10*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	select {
	case record := <-timedOut:
		req.Equal("up-1", record.ID)
		req.Equal(domain.UploadStatusError, record.Status)
		req.NotNil(record.ErrorType)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never timed out the stale row")
	}

	cancel()
	req.ErrorIs(<-done, context.Canceled)
}

func TestStaleSweeperWorker_StopsOnCancel(t *testing.T) {
	req := require.New(t)

	logger := testLogger()
	store := transfer.NewStore(nil, logger)
	manager := transfer.NewManager(store, transfer.NewRelayBuffer(16), transfer.Config{
		Strategies: domain.DefaultStrategies(t.TempDir()),
	}, logger)

	worker := NewStaleSweeperWorker(manager, nil, nil, 10*time.Millisecond, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		req.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestStaleSweeperWorker_MemoryCopyWins(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	logger := testLogger()
	repo := mocks.NewMockIFileUploadRepository(ctrl)
	store := transfer.NewStore(repo, logger)
	manager := transfer.NewManager(store, transfer.NewRelayBuffer(16), transfer.Config{
		Strategies: domain.DefaultStrategies(t.TempDir()),
	}, logger)

	// Resident copy is fresh; the persisted row is a stale duplicate of the
	// same id. Deduplication must keep the fresh one, so no timeout fires.
	fresh := staleRecord("up-1")
	fresh.Updated = time.Now()
	repo.EXPECT().Create(fresh).Return(nil)
	req.NoError(store.Register(fresh))
	repo.EXPECT().ListActive().Return([]*domain.FileUploadRecord{staleRecord("up-1")}, nil).MinTimes(1)

	worker := NewStaleSweeperWorker(manager, repo, func(*domain.FileUploadRecord) error {
		t.Error("fresh resident record must not time out")
		return nil
	}, 10*time.Millisecond, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = worker.Run(ctx)
	req.Equal(domain.UploadStatusUploading, fresh.Status)
}
