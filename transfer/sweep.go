package transfer

import (
	"fmt"
	"time"

	"github.com/libersoft-org/yellow-server-module-messages/domain"
	errs "github.com/libersoft-org/yellow-server-module-messages/errors"
)

// TimeoutPolicy holds the inactivity timeouts per (type, status). Paused
// transfers are intentionally idle, so their timeouts run much longer than the
// active ones.
type TimeoutPolicy struct {
	ServerActive time.Duration
	ServerPaused time.Duration
	P2PActive    time.Duration
	P2PPaused    time.Duration
}

func (p TimeoutPolicy) withDefaults() TimeoutPolicy {
	if p.ServerActive <= 0 {
		p.ServerActive = time.Minute
	}
	if p.ServerPaused <= 0 {
		p.ServerPaused = time.Hour
	}
	if p.P2PActive <= 0 {
		p.P2PActive = time.Minute
	}
	if p.P2PPaused <= 0 {
		p.P2PPaused = time.Hour
	}
	return p
}

// For resolves the applicable timeout for a record's current shape.
func (p TimeoutPolicy) For(t domain.FileUploadRecordType, s domain.FileUploadRecordStatus) time.Duration {
	paused := s == domain.UploadStatusPaused
	if t == domain.UploadTypeP2P {
		if paused {
			return p.P2PPaused
		}
		return p.P2PActive
	}
	if paused {
		return p.ServerPaused
	}
	return p.ServerActive
}

// OnStaleRecord is invoked once per record the sweep force-transitions to
// ERROR. Failures (errors or panics) are logged and never abort the sweep of
// the remaining records.
type OnStaleRecord func(record *domain.FileUploadRecord) error

// Sweep walks a batch of records: terminal ones are evicted from memory and
// skipped, non-terminal ones older than their (type, status) timeout are
// transitioned to ERROR/TIMEOUT_BY_SERVER through the regular patch path.
// Each pass is idempotent; a record touched by live ingestion since the batch
// was assembled is re-checked under its lock and left alone.
func (m *Manager) Sweep(records []*domain.FileUploadRecord, onStale OnStaleRecord) []*domain.FileUploadRecord {
	for _, record := range records {
		if record.IsTerminal() {
			m.store.Forget(record.ID)
			if record.Status != domain.UploadStatusFinished {
				m.relay.Drop(record.ID)
			}
			continue
		}
		if time.Since(record.Updated) <= m.timeouts.For(record.Type, record.Status) {
			continue
		}

		var timedOut *domain.FileUploadRecord
		err := m.store.WithLock(record.ID, func() error {
			current, err := m.store.Get(record.ID)
			if err != nil {
				return err
			}
			if current.IsTerminal() || time.Since(current.Updated) <= m.timeouts.For(current.Type, current.Status) {
				return nil
			}
			status := domain.UploadStatusError
			errorType := domain.UploadErrorTimeoutByServer
			patched, err := m.store.Patch(record.ID, domain.UploadPatch{Status: &status, ErrorType: &errorType})
			if err != nil {
				return err
			}
			timedOut = patched.Clone()
			return nil
		})
		if err != nil {
			m.log.Error("failed to time out stale upload", "upload_id", record.ID, "error", err)
			continue
		}
		if timedOut == nil {
			continue
		}
		m.relay.Drop(record.ID)
		m.log.Info("upload timed out by server",
			"upload_id", record.ID, "type", timedOut.Type, "age", time.Since(record.Updated).Round(time.Second))
		if onStale != nil {
			if err := invokeOnStale(onStale, timedOut); err != nil {
				m.log.Error("stale upload callback failed", "upload_id", record.ID, "error", err)
			}
		}
	}
	return records
}

func invokeOnStale(onStale OnStaleRecord, record *domain.FileUploadRecord) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errs.ErrWorkerPanic, r)
		}
	}()
	return onStale(record)
}
