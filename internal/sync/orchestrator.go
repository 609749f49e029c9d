package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/model"
)

// State is the orchestrator state of one profile.
type State string

const (
	StateIdle     State = "idle"
	StateSyncing  State = "syncing"
	StateSuccess  State = "success"
	StateConflict State = "conflict"
	StateError    State = "error"

	// StatePaused is a sub-state of idle entered while the remote asked to back off.
	StatePaused State = "paused"
)

// Trigger identifies what started an attempt.
type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerStartup   Trigger = "startup"
	TriggerReconnect Trigger = "reconnect"
	TriggerPeriodic  Trigger = "periodic"
	TriggerResolve   Trigger = "resolve"
)

// Options configures an Orchestrator.
type Options struct {
	// Refresher renews credentials after an auth-expired error. Optional.
	Refresher Refresher

	// Timeout bounds every remote call. Zero disables the bound.
	Timeout time.Duration

	// BeforeApply is called with the current local dataset right before a
	// commit replaces it. An error aborts the commit. Optional.
	BeforeApply func(ctx context.Context, current *model.Dataset) error

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns default orchestrator options.
func DefaultOptions() Options {
	return Options{
		Timeout: 30 * time.Second,
		Clock:   time.Now,
	}
}

// Orchestrator drives sync attempts. It allows one attempt per profile at a
// time and is safe for concurrent use.
type Orchestrator struct {
	local  LocalStore
	remote RemoteStore
	opts   Options

	mu      stdsync.Mutex
	states  map[string]State
	pending map[string]*Outcome
	last    map[string]*Outcome
}

// NewOrchestrator creates an orchestrator over the given stores.
func NewOrchestrator(local LocalStore, remote RemoteStore, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Orchestrator{
		local:   local,
		remote:  remote,
		opts:    opts,
		states:  make(map[string]State),
		pending: make(map[string]*Outcome),
		last:    make(map[string]*Outcome),
	}
}

// State returns the current state of a profile.
func (o *Orchestrator) State(profileID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if s, ok := o.states[profileID]; ok {
		return s
	}
	return StateIdle
}

// Pending returns the conflict outcome awaiting resolution for a profile.
func (o *Orchestrator) Pending(profileID string) (*Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out, ok := o.pending[profileID]
	return out, ok
}

// LastOutcome returns the outcome of the most recent attempt for a profile.
func (o *Orchestrator) LastOutcome(profileID string) (*Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out, ok := o.last[profileID]
	return out, ok
}

// Dismiss abandons a pending conflict without committing anything so the
// next trigger detects afresh. It reports whether a conflict was pending.
func (o *Orchestrator) Dismiss(profileID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.pending[profileID]; !ok {
		return false
	}
	delete(o.pending, profileID)
	o.states[profileID] = StateIdle
	return true
}

// Sync runs one attempt for a profile. The returned outcome is never nil; the
// error is non-nil only when the attempt ended in StateError.
//
// An attempt triggered while another one is syncing, or while a conflict is
// awaiting resolution, is skipped.
func (o *Orchestrator) Sync(ctx context.Context, profileID string, trigger Trigger) (*Outcome, error) {
	out := &Outcome{ProfileID: profileID, Trigger: trigger}
	if state, ok := o.begin(profileID, false); !ok {
		out.State = state
		out.Skipped = true
		logging.Debug("sync skipped",
			logging.Profile(profileID),
			logging.Trigger(string(trigger)),
			logging.State(string(state)),
		)
		return out, nil
	}

	logger := logging.WithContext(ctx).With(logging.Profile(profileID), logging.Trigger(string(trigger)))
	logger.Info("sync started")

	o.run(ctx, out, logger)
	o.finish(out, logger)
	return out, out.Err
}

func (o *Orchestrator) run(ctx context.Context, out *Outcome, logger *slog.Logger) {
	profileID := out.ProfileID

	local, err := o.local.ReadDataset(ctx, profileID)
	if err != nil {
		o.fail(ctx, out, NewError(KindLocalStore, "read local dataset", err))
		return
	}

	if local.ResumeAfter != nil {
		if o.now().Before(*local.ResumeAfter) {
			out.State = StatePaused
			out.ResumeAfter = *local.ResumeAfter
			return
		}
		if err := o.local.SetResumeAfter(ctx, profileID, nil); err != nil {
			logger.Warn("failed to clear resume marker", logging.Err(err))
		}
		local.ResumeAfter = nil
	}

	if err := local.Validate(); err != nil {
		o.fail(ctx, out, NewError(KindInvalidDataset, "validate local dataset", err))
		return
	}
	out.Local = local

	handle, byName, err := o.locateRemote(ctx, profileID, local, logger)
	if err != nil {
		o.fail(ctx, out, err)
		return
	}

	var remote *model.Dataset
	if handle != nil {
		err := o.call(ctx, "download", func(ctx context.Context) error {
			var derr error
			remote, derr = o.remote.Download(ctx, *handle)
			return derr
		})
		switch {
		case IsKind(err, KindRemoteNotFound):
			remote = nil
		case err != nil:
			o.fail(ctx, out, err)
			return
		}
		if remote == nil {
			logger.Info("remote file disappeared, treating as first sync")
			handle = nil
		} else if err := remote.Validate(); err != nil {
			o.fail(ctx, out, NewError(KindInvalidDataset, "validate remote dataset", err))
			return
		}
	}
	if remote != nil && byName {
		if err := o.adopt(ctx, profileID, remote, handle, logger); err != nil {
			o.fail(ctx, out, err)
			return
		}
	}
	out.Remote = remote
	out.Handle = handle

	det := Detect(local, remote)
	out.Detection = det
	if det.RequiresManualResolution {
		out.State = StateConflict
		logger.Info("sync needs resolution", logging.Count(len(det.Conflicts)))
		return
	}

	o.commit(ctx, out, det.Merged, handle)
}

// locateRemote finds the profile's remote file, re-discovering it by its
// derived name when the stored link is missing or broken. byName is true when
// the handle came from the name search and has not been linked yet.
func (o *Orchestrator) locateRemote(ctx context.Context, profileID string, local *model.Dataset, logger *slog.Logger) (handle *FileHandle, byName bool, err error) {
	link, err := o.local.RemoteLink(ctx, profileID)
	if err != nil {
		return nil, false, NewError(KindLocalStore, "read remote link", err)
	}

	if link != "" {
		err := o.call(ctx, "find by id", func(ctx context.Context) error {
			var ferr error
			handle, ferr = o.remote.FindByStableID(ctx, link)
			return ferr
		})
		if err != nil && !IsKind(err, KindRemoteNotFound) {
			return nil, false, err
		}
		if handle != nil {
			return handle, false, nil
		}
		logger.Warn("remote link is broken, searching by name", slog.String("file_id", link))
	}

	name := model.RemoteFileName(local.Profile.Name)
	err = o.call(ctx, "find by name", func(ctx context.Context) error {
		var ferr error
		handle, ferr = o.remote.FindByName(ctx, name)
		return ferr
	})
	if err != nil && !IsKind(err, KindRemoteNotFound) {
		return nil, false, err
	}
	if handle == nil {
		return nil, false, nil
	}
	return handle, true, nil
}

// adopt links a file found by name to the profile. A file written by a
// different profile that also lives in this store is refused, since merging
// it would fuse the two profiles.
func (o *Orchestrator) adopt(ctx context.Context, profileID string, remote *model.Dataset, handle *FileHandle, logger *slog.Logger) error {
	if owner := remote.Profile.ID; owner != "" && owner != profileID {
		taken, err := o.local.HasProfile(ctx, owner)
		if err != nil {
			return NewError(KindLocalStore, "look up remote owner", err)
		}
		if taken {
			return NewError(KindRemoteTaken, "adopt remote file",
				fmt.Errorf("%s already syncs profile %s", handle.Name, owner))
		}
	}

	if err := o.local.SetRemoteLink(ctx, profileID, handle.ID); err != nil {
		return NewError(KindLocalStore, "store remote link", err)
	}
	logger.Info("relinked remote file", slog.String("name", handle.Name), slog.String("file_id", handle.ID))
	return nil
}

// call runs a remote operation under the configured timeout, retrying once
// after refreshing credentials if the remote reports them expired.
func (o *Orchestrator) call(ctx context.Context, op string, fn func(context.Context) error) error {
	err := o.attempt(ctx, fn)
	if !IsKind(err, KindAuthExpired) || o.opts.Refresher == nil {
		return remoteError(op, err)
	}

	logging.Info("remote rejected credentials, refreshing", logging.Operation(op))
	if rerr := o.opts.Refresher.Refresh(ctx); rerr != nil {
		return NewError(KindNotAuthenticated, op, rerr)
	}
	return remoteError(op, o.attempt(ctx, fn))
}

func (o *Orchestrator) attempt(ctx context.Context, fn func(context.Context) error) error {
	defer logging.Timer("remote call")()
	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}
	return fn(ctx)
}

func remoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return NewError(KindNetwork, op, err)
}

func (o *Orchestrator) now() time.Time {
	return o.opts.Clock().UTC()
}

// begin claims the profile for an attempt. Commits may proceed while a
// conflict is pending; syncs may not.
func (o *Orchestrator) begin(profileID string, commit bool) (State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	state := o.states[profileID]
	if state == StateSyncing || (state == StateConflict && !commit) {
		return state, false
	}
	o.states[profileID] = StateSyncing
	return state, true
}

func (o *Orchestrator) finish(out *Outcome, logger *slog.Logger) {
	o.mu.Lock()
	switch out.State {
	case StateConflict:
		o.states[out.ProfileID] = StateConflict
		o.pending[out.ProfileID] = out
	case StatePaused:
		o.states[out.ProfileID] = StatePaused
	default:
		o.states[out.ProfileID] = StateIdle
		delete(o.pending, out.ProfileID)
	}
	o.last[out.ProfileID] = out
	o.mu.Unlock()

	switch out.State {
	case StateSuccess:
		logger.Info("sync finished",
			logging.State(string(out.State)),
			slog.Int("created", len(out.Created())),
			slog.Int("updated", len(out.Updated())),
			slog.Int("deleted", len(out.Deleted())),
		)
	case StateError:
		logger.Error("sync failed", logging.Err(out.Err), slog.String("kind", string(KindOf(out.Err))))
	case StatePaused:
		logger.Info("sync paused", slog.Time("resume_after", out.ResumeAfter))
	}
}

// fail ends the attempt in StateError. Rate limited failures also pause the
// profile until the remote's requested delay has passed.
func (o *Orchestrator) fail(ctx context.Context, out *Outcome, err error) {
	out.State = StateError
	out.Err = err

	var se *Error
	if errors.As(err, &se) && se.Kind == KindRateLimited && se.RetryAfter > 0 {
		until := o.now().Add(se.RetryAfter)
		if perr := o.local.SetResumeAfter(ctx, out.ProfileID, &until); perr != nil {
			out.Err = fmt.Errorf("%w (also failed to pause: %v)", err, perr)
			return
		}
		out.ResumeAfter = until
	}
}
