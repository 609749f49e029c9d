// Package sync implements two-way synchronization of profile datasets
// between a local store and a remote file.
//
// # Merging
//
// Every mergeable record carries a creation time, a modification time and a
// per-field modification time. MergeRecord compares two versions of one
// record field by field against the other side's last sync time:
//
//   - a field changed on both sides with different values is a conflict
//   - a field changed on one side takes that side's value
//   - otherwise the value of the more recently modified record is kept
//
// DiffCollection matches collection items by logical key and classifies
// unmatched items as new (kept) or deleted elsewhere (a conflict), and Detect
// composes both over a whole dataset.
//
// # Orchestration
//
// The Orchestrator drives one attempt per profile:
//
//	orch := sync.NewOrchestrator(localStore, remoteStore, sync.DefaultOptions())
//	out, err := orch.Sync(ctx, profileID, sync.TriggerManual)
//	if err != nil {
//	    return err
//	}
//	if out.State == sync.StateConflict {
//	    resolved := askUser(out.Detection)
//	    _, err = orch.Commit(ctx, resolved, out.Handle, profileID)
//	}
//
// Conflicting attempts write nothing. Commits upload the resolved dataset,
// apply it locally in one transaction and only then advance the profile's
// last sync time.
package sync
