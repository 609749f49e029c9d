package sync

import (
	"github.com/klauern/padsync/internal/model"
)

// ReconcileAssets returns a copy of remote whose embedded assets and pad
// references are renumbered into local's id space. Ids are allocated above
// every row local holds, including audio no pad references yet.
func ReconcileAssets(local, remote *model.Dataset) *model.Dataset {
	return model.RenumberAssets(local, remote)
}
