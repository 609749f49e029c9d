package sync

import (
	"context"
	"errors"

	"github.com/klauern/padsync/internal/logging"
	"github.com/klauern/padsync/internal/model"
)

// Commit applies a fully resolved dataset to both sides after a conflict was
// surfaced. handle is the remote file from the conflict outcome, or nil if
// there was none. It runs the same steps as an automatic sync and clears the
// profile's pending conflict.
func (o *Orchestrator) Commit(ctx context.Context, resolved *model.Dataset, handle *FileHandle, profileID string) (*Outcome, error) {
	out := &Outcome{ProfileID: profileID, Trigger: TriggerResolve, Handle: handle}
	if state, ok := o.begin(profileID, true); !ok {
		out.State = state
		out.Skipped = true
		return out, nil
	}

	logger := logging.WithContext(ctx).With(logging.Profile(profileID), logging.Trigger(string(TriggerResolve)))
	logger.Info("committing resolved dataset")

	switch {
	case resolved == nil:
		o.fail(ctx, out, NewError(KindInvalidDataset, "validate resolved dataset", errors.New("no dataset")))
	default:
		if err := resolved.Validate(); err != nil {
			o.fail(ctx, out, NewError(KindInvalidDataset, "validate resolved dataset", err))
			break
		}
		o.commit(ctx, out, resolved, handle)
	}

	o.finish(out, logger)
	return out, out.Err
}

// commit stamps ds, uploads it, applies it locally and finally persists the
// new last sync time. The last sync time is never advanced on failure.
func (o *Orchestrator) commit(ctx context.Context, out *Outcome, ds *model.Dataset, handle *FileHandle) {
	profileID := out.ProfileID

	prev, err := o.local.ReadLastSyncTimestamp(ctx, profileID)
	if err != nil {
		o.fail(ctx, out, NewError(KindLocalStore, "read last sync", err))
		return
	}
	now := o.now()
	if now.Before(prev) {
		now = prev
	}

	final := ds.Clone()
	final.FormatVersion = model.FormatVersion
	final.LastSyncTimestamp = &now
	final.ResumeAfter = nil
	final.Profile.ID = profileID
	final.PruneAssets()

	name := model.RemoteFileName(final.Profile.Name)
	var uploaded *FileHandle
	err = o.call(ctx, "upload", func(ctx context.Context) error {
		var uerr error
		uploaded, uerr = o.remote.Upload(ctx, name, final, handle)
		return uerr
	})
	if err != nil {
		o.fail(ctx, out, err)
		return
	}
	out.Handle = uploaded

	if err := o.local.SetRemoteLink(ctx, profileID, uploaded.ID); err != nil {
		o.fail(ctx, out, NewError(KindLocalStore, "store remote link", err))
		return
	}

	current, err := o.local.ReadDataset(ctx, profileID)
	if err != nil {
		o.fail(ctx, out, NewError(KindLocalStore, "read local dataset", err))
		return
	}
	if o.opts.BeforeApply != nil {
		if err := o.opts.BeforeApply(ctx, current); err != nil {
			o.fail(ctx, out, NewError(KindLocalApply, "snapshot local dataset", err))
			return
		}
	}

	if err := o.local.ApplyDataset(ctx, profileID, final); err != nil {
		o.fail(ctx, out, NewError(KindLocalApply, "apply dataset", err))
		return
	}
	if err := o.local.WriteLastSyncTimestamp(ctx, profileID, now); err != nil {
		o.fail(ctx, out, NewError(KindLocalApply, "write last sync", err))
		return
	}

	out.State = StateSuccess
	out.Committed = final
	out.SyncedAt = now
	out.Changes = DiffChanges(current, final)
}
