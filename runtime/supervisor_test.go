package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingWorker struct {
	runs   atomic.Int32
	behave func(run int32, ctx context.Context) error
}

func (w *countingWorker) Run(ctx context.Context) error {
	run := w.runs.Add(1)
	return w.behave(run, ctx)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSupervisor_RestartsFailingWorker(t *testing.T) {
	req := require.New(t)

	worker := &countingWorker{}
	worker.behave = func(run int32, ctx context.Context) error {
		if run < 3 {
			return errors.New("transient failure")
		}
		return nil
	}

	supervisor := NewSupervisor(testLogger()).Add(worker)
	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor never finished")
	}
	req.EqualValues(3, worker.runs.Load())
}

func TestSupervisor_RecoversPanics(t *testing.T) {
	req := require.New(t)

	worker := &countingWorker{}
	worker.behave = func(run int32, ctx context.Context) error {
		if run == 1 {
			panic("worker exploded")
		}
		return nil
	}

	supervisor := NewSupervisor(testLogger()).Add(worker)
	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not recover from the panic")
	}
	req.EqualValues(2, worker.runs.Load())
}

func TestSupervisor_StopCancelsWorkers(t *testing.T) {
	req := require.New(t)

	worker := &countingWorker{}
	worker.behave = func(run int32, ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	supervisor := NewSupervisor(testLogger()).Add(worker)
	done := make(chan struct{})
	go func() {
		supervisor.Run(context.Background())
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	supervisor.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("supervisor did not stop its workers")
	}
	req.EqualValues(1, worker.runs.Load())
}
