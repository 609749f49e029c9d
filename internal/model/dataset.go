package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"
)

// FormatVersion is the dataset wire format written by this version.
const FormatVersion = 1

// ErrUnsupportedFormat is returned when decoding a dataset written by a newer version.
var ErrUnsupportedFormat = errors.New("unsupported dataset format version")

// Asset is a binary attachment referenced by pads. IDs are scoped to the
// dataset that embeds them.
type Asset struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	SHA256   string `json:"sha256,omitempty"`
	Data     []byte `json:"data"`
}

// Hash returns the hex SHA-256 of the asset payload, computing it if unset.
func (a Asset) Hash() string {
	if a.SHA256 != "" {
		return a.SHA256
	}
	sum := sha256.Sum256(a.Data)
	return hex.EncodeToString(sum[:])
}

// Dataset is the unit exchanged with the remote store.
type Dataset struct {
	FormatVersion     int                `json:"formatVersion"`
	LastSyncTimestamp *time.Time         `json:"lastSyncTimestamp,omitempty"`
	ResumeAfter       *time.Time         `json:"resumeAfter,omitempty"`
	Profile           Profile            `json:"profile"`
	PadConfigurations []PadConfiguration `json:"padConfigurations"`
	PageMetadata      []PageMetadata     `json:"pageMetadata"`
	AudioFiles        []Asset            `json:"audioFiles"`

	// StoredAssets lists every audio row a local store holds for the profile,
	// including rows no pad references. It is never serialized.
	StoredAssets []AssetRef `json:"-"`
}

// LastSync returns the last sync time, or the zero time if never synced.
func (d *Dataset) LastSync() time.Time {
	if d == nil || d.LastSyncTimestamp == nil {
		return time.Time{}
	}
	return *d.LastSyncTimestamp
}

// Clone returns a deep copy of the dataset.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		FormatVersion:     d.FormatVersion,
		LastSyncTimestamp: cloneTime(d.LastSyncTimestamp),
		ResumeAfter:       cloneTime(d.ResumeAfter),
		Profile:           ProfileKind.Clone(&d.Profile),
		PadConfigurations: make([]PadConfiguration, len(d.PadConfigurations)),
		PageMetadata:      make([]PageMetadata, len(d.PageMetadata)),
		AudioFiles:        make([]Asset, len(d.AudioFiles)),
		StoredAssets:      slices.Clone(d.StoredAssets),
	}
	for i := range d.PadConfigurations {
		out.PadConfigurations[i] = PadKind.Clone(&d.PadConfigurations[i])
	}
	for i := range d.PageMetadata {
		out.PageMetadata[i] = PageKind.Clone(&d.PageMetadata[i])
	}
	for i, a := range d.AudioFiles {
		a.Data = slices.Clone(a.Data)
		out.AudioFiles[i] = a
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Validate checks that every logical key resolves to exactly one item.
func (d *Dataset) Validate() error {
	pads := make(map[string]struct{}, len(d.PadConfigurations))
	for i := range d.PadConfigurations {
		key := PadKind.Key(&d.PadConfigurations[i])
		if _, dup := pads[key]; dup {
			return fmt.Errorf("duplicate pad configuration %s", key)
		}
		pads[key] = struct{}{}
	}
	pages := make(map[string]struct{}, len(d.PageMetadata))
	for i := range d.PageMetadata {
		key := PageKind.Key(&d.PageMetadata[i])
		if _, dup := pages[key]; dup {
			return fmt.Errorf("duplicate page metadata %s", key)
		}
		pages[key] = struct{}{}
	}
	assets := make(map[int64]struct{}, len(d.AudioFiles))
	for _, a := range d.AudioFiles {
		if _, dup := assets[a.ID]; dup {
			return fmt.Errorf("duplicate audio file id %d", a.ID)
		}
		assets[a.ID] = struct{}{}
	}
	return nil
}

// Pad returns the pad with the given key, if present.
func (d *Dataset) Pad(page, pad int) (*PadConfiguration, bool) {
	for i := range d.PadConfigurations {
		p := &d.PadConfigurations[i]
		if p.PageIndex == page && p.PadIndex == pad {
			return p, true
		}
	}
	return nil, false
}

// Page returns the page metadata with the given index, if present.
func (d *Dataset) Page(index int) (*PageMetadata, bool) {
	for i := range d.PageMetadata {
		if d.PageMetadata[i].PageIndex == index {
			return &d.PageMetadata[i], true
		}
	}
	return nil, false
}

// ReferencedAssets returns the set of asset ids used by any pad.
func (d *Dataset) ReferencedAssets() map[int64]bool {
	refs := make(map[int64]bool)
	for _, p := range d.PadConfigurations {
		for _, id := range p.AudioFileIDs {
			refs[id] = true
		}
	}
	return refs
}

// PruneAssets drops embedded assets that no pad references.
func (d *Dataset) PruneAssets() {
	refs := d.ReferencedAssets()
	d.AudioFiles = slices.DeleteFunc(d.AudioFiles, func(a Asset) bool {
		return !refs[a.ID]
	})
}

// UnionAssets merges two asset lists by id. Entries in a win over b.
func UnionAssets(a, b []Asset) []Asset {
	seen := make(map[int64]bool, len(a)+len(b))
	out := make([]Asset, 0, len(a)+len(b))
	for _, list := range [][]Asset{a, b} {
		for _, asset := range list {
			if seen[asset.ID] {
				continue
			}
			seen[asset.ID] = true
			out = append(out, asset)
		}
	}
	return out
}

// Decode reads a dataset from JSON.
func Decode(r io.Reader) (*Dataset, error) {
	var ds Dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	if ds.FormatVersion > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, ds.FormatVersion)
	}
	if ds.FormatVersion == 0 {
		ds.FormatVersion = FormatVersion
	}
	return &ds, nil
}

// Encode writes a dataset as indented JSON. The local-only resume marker is
// not written.
func Encode(w io.Writer, ds *Dataset) error {
	out := *ds
	out.ResumeAfter = nil
	if out.FormatVersion == 0 {
		out.FormatVersion = FormatVersion
	}
	for i := range out.AudioFiles {
		if out.AudioFiles[i].SHA256 == "" {
			out.AudioFiles = slices.Clone(out.AudioFiles)
			for j := range out.AudioFiles {
				out.AudioFiles[j].SHA256 = out.AudioFiles[j].Hash()
			}
			break
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	return nil
}
