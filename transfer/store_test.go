package transfer

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	errs "github.com/libersoft-org/yellow-server-module-messages/errors"
	"github.com/libersoft-org/yellow-server-module-messages/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func storeRecord(id string) *domain.FileUploadRecord {
	return &domain.FileUploadRecord{
		ID:        id,
		Type:      domain.UploadTypeServer,
		Status:    domain.UploadStatusBegun,
		FileSize:  2048,
		ChunkSize: 1024,
		Created:   time.Now(),
		Updated:   time.Now(),
	}
}

func TestStore_MemoryOnly_RegisterAndGet(t *testing.T) {
	req := require.New(t)
	store := NewStore(nil, testLogger())

	record := storeRecord("up-1")
	req.NoError(store.Register(record))

	loaded, err := store.Get("up-1")
	req.NoError(err)
	req.Same(record, loaded)

	_, err = store.Get("ghost")
	req.ErrorIs(err, errs.ErrRecordNotFound)
}

func TestStore_Register_PersistenceFailureSurfaces(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIFileUploadRepository(ctrl)

	record := storeRecord("up-1")
	repo.EXPECT().Create(record).Return(errors.New("disk full"))

	store := NewStore(repo, testLogger())
	err := store.Register(record)
	req.ErrorContains(err, "disk full")

	// The rejected record must not be visible.
	repo.EXPECT().Find("up-1").Return(nil, errs.ErrRecordNotFound)
	_, err = store.Get("up-1")
	req.ErrorIs(err, errs.ErrRecordNotFound)
}

func TestStore_Get_FallsBackToRepositoryAndCaches(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIFileUploadRepository(ctrl)

	record := storeRecord("up-1")
	repo.EXPECT().Find("up-1").Return(record, nil).Times(1)

	store := NewStore(repo, testLogger())
	loaded, err := store.Get("up-1")
	req.NoError(err)
	req.Same(record, loaded)

	// Second read is served from memory; Find is not called again.
	loaded, err = store.Get("up-1")
	req.NoError(err)
	req.Same(record, loaded)
}

func TestStore_Patch_StampsUpdatedAndPersistsFirst(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIFileUploadRepository(ctrl)

	record := storeRecord("up-1")
	record.ChunksReceived = []int{0}
	before := record.Updated

	repo.EXPECT().Create(record).Return(nil)
	repo.EXPECT().Patch("up-1", gomock.Any()).DoAndReturn(
		func(id string, patch domain.UploadPatch) (*domain.FileUploadRecord, error) {
			req.NotNil(patch.Updated, "store must stamp Updated")
			merged := record.Clone()
			patch.Apply(merged)
			return merged, nil
		})

	store := NewStore(repo, testLogger())
	req.NoError(store.Register(record))

	status := domain.UploadStatusPaused
	patched, err := store.Patch("up-1", domain.UploadPatch{Status: &status})
	req.NoError(err)

	// The resident record is patched in place, keeping live chunk state.
	req.Same(record, patched)
	req.Equal(domain.UploadStatusPaused, record.Status)
	req.Equal([]int{0}, record.ChunksReceived)
	req.True(record.Updated.After(before) || record.Updated.Equal(before))
}

func TestStore_Patch_PersistenceFailureSurfaces(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIFileUploadRepository(ctrl)

	record := storeRecord("up-1")
	repo.EXPECT().Create(record).Return(nil)
	repo.EXPECT().Patch("up-1", gomock.Any()).Return(nil, errors.New("txn conflict"))

	store := NewStore(repo, testLogger())
	req.NoError(store.Register(record))

	status := domain.UploadStatusPaused
	_, err := store.Patch("up-1", domain.UploadPatch{Status: &status})
	req.ErrorContains(err, "txn conflict")
	req.Equal(domain.UploadStatusBegun, record.Status)
}

func TestStore_Patch_CallerUpdatedIsDiscarded(t *testing.T) {
	req := require.New(t)
	store := NewStore(nil, testLogger())

	record := storeRecord("up-1")
	req.NoError(store.Register(record))

	stale := time.Now().Add(-time.Hour)
	status := domain.UploadStatusPaused
	patched, err := store.Patch("up-1", domain.UploadPatch{Status: &status, Updated: &stale})
	req.NoError(err)
	req.True(patched.Updated.After(stale))
}

func TestStore_Forget_EvictsMemoryOnly(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockIFileUploadRepository(ctrl)

	record := storeRecord("up-1")
	repo.EXPECT().Create(record).Return(nil)

	store := NewStore(repo, testLogger())
	req.NoError(store.Register(record))
	req.Len(store.Resident(), 1)

	store.Forget("up-1")
	req.Empty(store.Resident())

	// A later read reloads the persisted row.
	repo.EXPECT().Find("up-1").Return(record.Clone(), nil)
	loaded, err := store.Get("up-1")
	req.NoError(err)
	req.Equal("up-1", loaded.ID)
}

func TestStore_Forget_KeepsSerializationOnId(t *testing.T) {
	req := require.New(t)
	store := NewStore(nil, testLogger())
	req.NoError(store.Register(storeRecord("up-1")))

	entered := make(chan struct{})
	release := make(chan struct{})
	firstDone := make(chan struct{})
	go func() {
		_ = store.WithLock("up-1", func() error {
			close(entered)
			<-release
			return nil
		})
		close(firstDone)
	}()
	<-entered

	// Evicting while the lock is held must not mint a fresh mutex for the id.
	store.Forget("up-1")

	secondDone := make(chan struct{})
	go func() {
		_ = store.WithLock("up-1", func() error { return nil })
		close(secondDone)
	}()

	select {
	case <-secondDone:
		t.Fatal("second unit ran while the first still held the record lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-secondDone:
	case <-time.After(time.Second):
		t.Fatal("second unit never ran after the lock was released")
	}
	<-firstDone
}
