package reconcile

import (
	"fmt"
)

// Stage identifies where a sync failed.
type Stage string

const (
	// StageDiscover covers endpoint resolution failures: nothing was sent.
	StageDiscover Stage = "DISCOVER"

	// StagePush covers a failed pending-change dispatch. Changes applied
	// before the failure stay applied; the failed change and everything
	// after it stay queued.
	StagePush Stage = "PUSH"

	// StageFetch covers a failed snapshot fetch. The local store is left
	// as-is.
	StageFetch Stage = "FETCH"
)

// SyncError is a failed reconciliation. Partial progress described by the
// stage is durable; a subsequent Sync retries safely from where this one
// stopped.
type SyncError struct {
	Stage   Stage
	EventID int64  // event the failing change targeted (push stage only)
	Kind    string // change kind being dispatched (push stage only)
	Err     error
}

func (e *SyncError) Error() string {
	if e.Stage == StagePush {
		return fmt.Sprintf("sync %s: %s for event %d: %v", e.Stage, e.Kind, e.EventID, e.Err)
	}
	return fmt.Sprintf("sync %s: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
