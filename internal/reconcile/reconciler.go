// Package reconcile converges the desktop cache with the remote transaction feed.
//
// One cycle runs Fetching, Merging and Uploading strictly in that order. Remote
// records are only ever added to the local cache, never used to overwrite or delete.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"

	"golang.org/x/sync/singleflight"
)

type State string

const (
	Idle      State = "idle"
	Fetching  State = "fetching"
	Merging   State = "merging"
	Uploading State = "uploading"
	Failed    State = "failed"
)

const (
	DefaultFetchTimeout  = 10 * time.Second
	DefaultUploadTimeout = 30 * time.Second
)

// Remote is the authoritative transaction feed.
type Remote interface {
	Fetch(ctx context.Context) ([]core.Transaction, error)
	CommitBulk(ctx context.Context, txs []core.Transaction) (core.BulkResult, error)
}

// Local is the desktop cache as seen by a sync cycle.
type Local interface {
	Fingerprints(ctx context.Context) (map[core.Fingerprint]struct{}, error)
	InsertSynced(ctx context.Context, batch []core.Transaction) (int, error)
	Unsynced(ctx context.Context) ([]core.Transaction, error)
	MarkSynced(ctx context.Context, ids []string) (int, error)
}

// Result counts what one cycle did.
type Result struct {
	Fetched   int
	Inserted  int
	Uploaded  int // records sent in the bulk commit
	Confirmed int // records marked synced afterwards
}

// Status is the observable state of the reconciler. A cycle that fails passes
// through Failed and returns to Idle, keeping its message and Err until the next
// cycle starts.
type Status struct {
	State    State
	Message  string
	Err      error
	LastSync time.Time // end of the last cycle that completed
}

// CycleFailed reports whether the last finished cycle ended in Failed.
func (s Status) CycleFailed() bool {
	return s.State == Idle && s.Err != nil
}

// Outcome is the terminal state of the last finished cycle.
func (s Status) Outcome() State {
	if s.CycleFailed() {
		return Failed
	}
	return s.State
}

type Reconciler struct {
	local         Local
	remote        Remote
	fetchTimeout  time.Duration
	uploadTimeout time.Duration
	now           func() time.Time
	logger        *log.Logger

	group singleflight.Group

	mu     sync.RWMutex
	status Status
}

type Option func(*Reconciler)

func WithFetchTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.fetchTimeout = d
		}
	}
}

func WithUploadTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.uploadTimeout = d
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func New(local Local, remote Remote, opts ...Option) *Reconciler {
	r := &Reconciler{
		local:         local,
		remote:        remote,
		fetchTimeout:  DefaultFetchTimeout,
		uploadTimeout: DefaultUploadTimeout,
		now:           time.Now,
		status:        Status{State: Idle, Message: "Not synced yet"},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.New(log.DefaultConfig())
	}
	r.logger = r.logger.WithComponent(log.ComponentSync)
	return r
}

// Status returns a snapshot of the current state and last message.
func (r *Reconciler) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Sync runs one cycle. A call made while a cycle is in flight does not start
// another; it waits for the running one and receives its outcome. The running
// cycle uses the context of the call that started it.
func (r *Reconciler) Sync(ctx context.Context) (Result, error) {
	ch := r.group.DoChan("sync", func() (any, error) {
		return r.cycle(ctx)
	})
	select {
	case res := <-ch:
		out, _ := res.Val.(Result)
		return out, res.Err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (r *Reconciler) cycle(ctx context.Context) (Result, error) {
	var res Result
	start := r.now()

	r.setState(Fetching, "Fetching remote transactions", nil)
	remote, err := r.fetch(ctx)
	if err != nil {
		return res, r.fail("Sync failed: remote feed unavailable", err)
	}
	res.Fetched = len(remote)

	r.setState(Merging, fmt.Sprintf("Merging %d remote transactions", len(remote)), nil)
	res.Inserted, err = r.merge(ctx, remote)
	if err != nil {
		return res, r.fail("Sync failed: could not update local cache", err)
	}

	r.setState(Uploading, "Uploading local transactions", nil)
	res.Uploaded, res.Confirmed, err = r.upload(ctx)
	if err != nil {
		msg := "Sync failed: upload did not complete"
		var partial *core.PartialCommitError
		if errors.As(err, &partial) {
			msg = fmt.Sprintf("Sync incomplete: remote saved %d of %d uploaded transactions", partial.Saved, partial.Total)
		}
		return res, r.fail(msg, err)
	}

	msg := fmt.Sprintf("Synced: %d fetched, %d new locally, %d uploaded", res.Fetched, res.Inserted, res.Confirmed)
	r.mu.Lock()
	r.status = Status{State: Idle, Message: msg, LastSync: r.now()}
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "Sync cycle finished",
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"uploaded", res.Uploaded,
		"confirmed", res.Confirmed,
		log.FieldDuration, r.now().Sub(start).Milliseconds())
	return res, nil
}

func (r *Reconciler) fetch(ctx context.Context) ([]core.Transaction, error) {
	fctx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
	defer cancel()
	txs, err := r.remote.Fetch(fctx)
	if err != nil {
		return nil, asRemoteUnavailable("fetch", err)
	}
	return txs, nil
}

// merge inserts remote records whose fingerprint is not cached yet. Duplicates
// within the remote batch are inserted once.
func (r *Reconciler) merge(ctx context.Context, remote []core.Transaction) (int, error) {
	if len(remote) == 0 {
		return 0, nil
	}
	known, err := r.local.Fingerprints(ctx)
	if err != nil {
		return 0, fmt.Errorf("read local fingerprints: %w", err)
	}
	var fresh []core.Transaction
	for _, tx := range remote {
		fp := tx.Fingerprint()
		if _, ok := known[fp]; ok {
			continue
		}
		known[fp] = struct{}{}
		fresh = append(fresh, tx)
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	n, err := r.local.InsertSynced(ctx, fresh)
	if err != nil {
		return 0, fmt.Errorf("insert remote records: %w", err)
	}
	return n, nil
}

// upload commits every unsynced record in one batch and marks synced only the
// records the remote confirmed, either saved or already present.
func (r *Reconciler) upload(ctx context.Context) (sent, confirmed int, err error) {
	pending, err := r.local.Unsynced(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("read unsynced records: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	uctx, cancel := context.WithTimeout(ctx, r.uploadTimeout)
	defer cancel()
	result, err := r.remote.CommitBulk(uctx, pending)
	if err != nil {
		return len(pending), 0, asRemoteUnavailable("commit", err)
	}

	ids, rejected, err := confirmedIDs(pending, result)
	if err != nil {
		return len(pending), 0, err
	}
	if len(ids) > 0 {
		if confirmed, err = r.local.MarkSynced(ctx, ids); err != nil {
			return len(pending), 0, fmt.Errorf("mark records synced: %w", err)
		}
	}
	if len(rejected) > 0 {
		r.logger.WarnContext(ctx, "Remote rejected uploaded transactions",
			"rejected", len(rejected),
			"first_error", rejected[0].Error)
		return len(pending), confirmed, &core.PartialCommitError{Saved: result.Saved, Total: result.Total, Failed: rejected}
	}
	return len(pending), confirmed, nil
}

var errInconsistentCommit = errors.New("bulk commit response does not match the uploaded batch")

// confirmedIDs splits pending by the commit result. Failures flagged as duplicates
// count as confirmed. When the result cannot be matched to the batch nothing is
// confirmed.
func confirmedIDs(pending []core.Transaction, result core.BulkResult) ([]string, []core.BulkFailure, error) {
	if result.Total != len(pending) || result.Saved+len(result.Failed) != result.Total {
		return nil, nil, fmt.Errorf("%w: sent %d, total %d, saved %d, failed %d",
			errInconsistentCommit, len(pending), result.Total, result.Saved, len(result.Failed))
	}

	byID := make(map[string]bool, len(pending))
	for _, tx := range pending {
		byID[tx.ID] = true
	}
	failed := make(map[string]bool, len(result.Failed))
	var rejected []core.BulkFailure
	for _, f := range result.Failed {
		if f.Tx.ID == "" || !byID[f.Tx.ID] {
			return nil, nil, fmt.Errorf("%w: failure for unknown record %q", errInconsistentCommit, f.Tx.ID)
		}
		if f.Duplicate {
			continue
		}
		failed[f.Tx.ID] = true
		rejected = append(rejected, f)
	}

	ids := make([]string, 0, len(pending)-len(failed))
	for _, tx := range pending {
		if !failed[tx.ID] {
			ids = append(ids, tx.ID)
		}
	}
	return ids, rejected, nil
}

func asRemoteUnavailable(op string, err error) error {
	var rerr *core.RemoteUnavailableError
	if errors.As(err, &rerr) {
		return err
	}
	return &core.RemoteUnavailableError{Op: op, Err: err}
}

func (r *Reconciler) setState(s State, msg string, err error) {
	r.mu.Lock()
	r.status.State = s
	r.status.Message = msg
	r.status.Err = err
	r.mu.Unlock()
}

// fail moves the cycle to Failed and straight back to Idle; there is no retry.
func (r *Reconciler) fail(msg string, err error) error {
	r.setState(Failed, msg, err)
	r.logger.Warn("Sync cycle failed", log.FieldSyncState, string(Failed), log.FieldError, err)
	r.setState(Idle, msg, err)
	return err
}
