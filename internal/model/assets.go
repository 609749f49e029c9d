package model

// AssetRef identifies an audio row held by a local store.
type AssetRef struct {
	ID     int64
	SHA256 string
}

// HeldAssets returns every asset id local knows of: its embedded assets plus
// the rows listed in StoredAssets, keyed by content hash, and the largest id.
func (d *Dataset) HeldAssets() (byHash map[string]int64, maxID int64) {
	byHash = make(map[string]int64, len(d.AudioFiles)+len(d.StoredAssets))
	note := func(id int64, hash string) {
		if _, ok := byHash[hash]; !ok {
			byHash[hash] = id
		}
		maxID = max(maxID, id)
	}
	for _, a := range d.AudioFiles {
		note(a.ID, a.Hash())
	}
	for _, r := range d.StoredAssets {
		note(r.ID, r.SHA256)
	}
	return byHash, maxID
}

// RenumberAssets returns a copy of incoming whose embedded assets and pad
// references are moved into local's id space. An asset whose content matches
// one local already holds takes that id; any other asset gets a fresh id
// above every id local holds, so no stored row is overwritten. References to
// ids incoming does not embed are dropped.
func RenumberAssets(local, incoming *Dataset) *Dataset {
	out := incoming.Clone()
	byHash, next := local.HeldAssets()
	next++

	mapping := make(map[int64]int64, len(out.AudioFiles))
	assets := make([]Asset, 0, len(out.AudioFiles))
	seen := make(map[int64]bool, len(out.AudioFiles))
	for _, a := range out.AudioFiles {
		hash := a.Hash()
		id, ok := byHash[hash]
		if !ok {
			id = next
			next++
			byHash[hash] = id
		}
		mapping[a.ID] = id
		if seen[id] {
			continue
		}
		seen[id] = true
		a.ID = id
		a.SHA256 = hash
		assets = append(assets, a)
	}
	out.AudioFiles = assets

	for i := range out.PadConfigurations {
		pad := &out.PadConfigurations[i]
		if len(pad.AudioFileIDs) == 0 {
			continue
		}
		ids := make([]int64, 0, len(pad.AudioFileIDs))
		for _, id := range pad.AudioFileIDs {
			if mapped, ok := mapping[id]; ok {
				ids = append(ids, mapped)
			}
		}
		pad.AudioFileIDs = ids
	}
	return out
}
