// Package reconcile replays offline mutations against the authority and
// mirrors its snapshot back into the local store.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tend/internal/discovery"
	"tend/internal/model"
	"tend/internal/remote"
	"tend/internal/store"
)

// RemoteAPI is the slice of the authority client the reconciler dispatches
// against. *remote.Client satisfies it; tests substitute fakes.
type RemoteAPI interface {
	ListEvents(ctx context.Context, historyLimit int) ([]remote.Event, error)
	CreateEvent(ctx context.Context, payload remote.EventPayload) (remote.Event, error)
	UpdateEvent(ctx context.Context, id int64, payload remote.EventPayload) error
	DeleteEvent(ctx context.Context, id int64) error
	CompleteEvent(ctx context.Context, id int64, payload remote.CompletePayload) error
}

// Dialer builds a RemoteAPI for a resolved endpoint and credential.
type Dialer func(endpoint, token string) RemoteAPI

// DiscoverFunc resolves an authority endpoint on the local network.
type DiscoverFunc func(ctx context.Context, timeout time.Duration) (string, error)

// Options configures a Reconciler. Zero values get sensible defaults.
type Options struct {
	// HistoryLimit bounds the per-event history window of the snapshot
	// fetch. Defaults to 10.
	HistoryLimit int

	// CallTimeout bounds each individual remote call. Defaults to
	// remote.DefaultTimeout.
	CallTimeout time.Duration

	// DiscoveryTimeout bounds mDNS browsing. Defaults to 5s.
	DiscoveryTimeout time.Duration

	// Dial overrides the RemoteAPI factory (tests).
	Dial Dialer

	// Discover overrides endpoint discovery (tests).
	Discover DiscoverFunc

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Result summarizes a completed sync.
type Result struct {
	// Pushed counts pending changes confirmed by the authority and
	// removed from the queue.
	Pushed int

	// RemoteCount is the event count of the snapshot that now mirrors the
	// authority.
	RemoteCount int
}

// Reconciler drains the pending-change queue against the authority in
// creation order, remaps identifiers assigned by successful creates, then
// replaces the local store with the authoritative snapshot.
//
// At most one Sync runs at a time; concurrent callers queue behind the
// mutex. The last successfully used endpoint is persisted in the store, not
// process state, so separate instances over the same database agree on it.
type Reconciler struct {
	mu    sync.Mutex
	store *store.Store
	opts  Options
	log   *slog.Logger
}

// New creates a Reconciler over the given store.
func New(st *store.Store, opts Options) *Reconciler {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = remote.DefaultTimeout
	}
	if opts.DiscoveryTimeout <= 0 {
		opts.DiscoveryTimeout = 5 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = func(endpoint, token string) RemoteAPI {
			return remote.New(endpoint, token, opts.CallTimeout)
		}
	}
	if opts.Discover == nil {
		opts.Discover = discovery.Discover
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: st, opts: opts, log: log}
}

// Sync pushes queued changes in order, then pulls the authoritative
// snapshot. endpointOverride takes precedence over the last endpoint used,
// which takes precedence over discovery.
//
// On failure, everything already applied stays applied and everything not
// yet applied stays queued; calling Sync again resumes from the failure
// point. The snapshot fetch is attempted even when the push stopped early.
func (r *Reconciler) Sync(ctx context.Context, token, endpointOverride string) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	endpoint, err := r.resolveEndpoint(ctx, endpointOverride)
	if err != nil {
		return Result{}, &SyncError{Stage: StageDiscover, Err: err}
	}
	api := r.opts.Dial(endpoint, token)

	// Once a dispatch starts, both its remote call and the store write
	// recording the outcome run to completion; caller cancellation is only
	// observed between dispatches. recCtx carries that guarantee to the
	// dispatches and the queue/snapshot bookkeeping after them.
	recCtx := context.WithoutCancel(ctx)

	changes, err := r.store.Pending(ctx)
	if err != nil {
		return Result{}, &SyncError{Stage: StagePush, Err: err}
	}
	r.log.Debug("sync started", "endpoint", endpoint, "pending", len(changes))

	// remap carries authority-assigned IDs forward to later changes that
	// still reference the original negative identifier.
	remap := make(map[int64]int64)
	applied := make([]int64, 0, len(changes))
	var pushErr *SyncError

	for _, ch := range changes {
		// Cancellation is observed between dispatches only; an in-flight
		// call always runs to completion so its outcome can be recorded.
		if err := ctx.Err(); err != nil {
			pushErr = &SyncError{Stage: StagePush, EventID: ch.EventID, Kind: string(ch.Kind), Err: err}
			break
		}

		target := ch.EventID
		if mapped, ok := remap[ch.EventID]; ok {
			target = mapped
		}

		if err := r.applyChange(recCtx, api, ch, target, remap); err != nil {
			pushErr = &SyncError{Stage: StagePush, EventID: target, Kind: string(ch.Kind), Err: err}
			r.log.Warn("sync stopped on failed change",
				"kind", ch.Kind, "event_id", target, "error", err)
			break
		}
		applied = append(applied, ch.ID)
	}

	// Applied entries leave the queue in one batch: a crash mid-loop leaves
	// them queued with their remote effect already recorded, which is safe
	// to retry because every dispatch is idempotent.
	if err := r.store.RemovePending(recCtx, applied); err != nil {
		return Result{Pushed: len(applied)}, &SyncError{Stage: StagePush, Err: err}
	}

	// Fetch the snapshot even after a push failure so the store reflects
	// whatever the authority accepted.
	snapshot, err := r.fetchSnapshot(recCtx, api)
	if err != nil {
		if pushErr != nil {
			return Result{Pushed: len(applied)}, pushErr
		}
		return Result{Pushed: len(applied)}, &SyncError{Stage: StageFetch, Err: err}
	}

	events := make([]model.Event, len(snapshot))
	for i, e := range snapshot {
		events[i] = e.ToModel()
	}
	if err := r.store.ReplaceAll(recCtx, events); err != nil {
		return Result{Pushed: len(applied)}, &SyncError{Stage: StageFetch, Err: err}
	}

	if err := r.store.SetLastEndpoint(recCtx, endpoint); err != nil {
		return Result{Pushed: len(applied)}, &SyncError{Stage: StageFetch, Err: err}
	}

	if pushErr != nil {
		return Result{Pushed: len(applied), RemoteCount: len(events)}, pushErr
	}
	r.log.Info("sync complete", "pushed", len(applied), "remote", len(events))
	return Result{Pushed: len(applied), RemoteCount: len(events)}, nil
}

func (r *Reconciler) resolveEndpoint(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	last, err := r.store.LastEndpoint(ctx)
	if err != nil {
		return "", err
	}
	if last != "" {
		return last, nil
	}
	r.log.Debug("no known endpoint, discovering")
	return r.opts.Discover(ctx, r.opts.DiscoveryTimeout)
}

// applyChange dispatches one pending change. ctx must already be shielded
// from caller cancellation so the store write recording the outcome always
// lands. The change kinds form a closed set; anything else is a corrupt
// queue entry and fails the sync.
func (r *Reconciler) applyChange(ctx context.Context, api RemoteAPI, ch store.PendingChange, target int64, remap map[int64]int64) error {
	// The call itself is additionally bounded by its own timeout.
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	switch ch.Kind {
	case store.KindCreate:
		var fields model.EventFields
		if err := json.Unmarshal(ch.Payload, &fields); err != nil {
			return fmt.Errorf("decode create payload: %w", err)
		}
		// A positive target means a prior run's create already succeeded
		// and rekeyed this entry before it could leave the queue. The
		// event exists on the authority; re-send the fields as an update
		// so the retry stays idempotent.
		if target > 0 {
			err := api.UpdateEvent(callCtx, target, remote.PayloadFromFields(fields))
			if errors.Is(err, remote.ErrNotFound) {
				r.log.Debug("rekeyed create target gone remotely, tombstoning", "event_id", target)
				return r.store.TombstoneRemote(ctx, target)
			}
			return err
		}
		created, err := api.CreateEvent(callCtx, remote.PayloadFromFields(fields))
		if err != nil {
			return err
		}
		remap[ch.EventID] = created.ID
		r.log.Debug("created remotely", "local_id", ch.EventID, "remote_id", created.ID)
		return r.store.Rekey(ctx, ch.EventID, created.ID)

	case store.KindUpdate:
		var fields model.EventFields
		if err := json.Unmarshal(ch.Payload, &fields); err != nil {
			return fmt.Errorf("decode update payload: %w", err)
		}
		err := api.UpdateEvent(callCtx, target, remote.PayloadFromFields(fields))
		if errors.Is(err, remote.ErrNotFound) {
			r.log.Debug("update target gone remotely, tombstoning", "event_id", target)
			return r.store.TombstoneRemote(ctx, target)
		}
		return err

	case store.KindDelete:
		err := api.DeleteEvent(callCtx, target)
		if errors.Is(err, remote.ErrNotFound) {
			// Already gone: idempotent delete.
			return nil
		}
		return err

	case store.KindDone:
		var done store.DonePayload
		if err := json.Unmarshal(ch.Payload, &done); err != nil {
			return fmt.Errorf("decode done payload: %w", err)
		}
		err := api.CompleteEvent(callCtx, target, remote.CompletePayload{DoneDate: &done.DoneDate})
		if errors.Is(err, remote.ErrNotFound) {
			r.log.Debug("complete target gone remotely, tombstoning", "event_id", target)
			return r.store.TombstoneRemote(ctx, target)
		}
		return err
	}

	return fmt.Errorf("unknown change kind %q", ch.Kind)
}

func (r *Reconciler) fetchSnapshot(ctx context.Context, api RemoteAPI) ([]remote.Event, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	return api.ListEvents(callCtx, r.opts.HistoryLimit)
}
