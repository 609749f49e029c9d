package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// StoreKind names one table of the dataset.
type StoreKind string

const (
	StoreProfile           StoreKind = "profile"
	StorePadConfigurations StoreKind = "padConfigurations"
	StorePageMetadata      StoreKind = "pageMetadata"
)

// Profile is the root record of a dataset. ID identifies the profile in the
// local store and is not a data field.
type Profile struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	GridRows     int      `json:"gridRows"`
	GridColumns  int      `json:"gridColumns"`
	MasterVolume float64  `json:"masterVolume"`
	Tags         []string `json:"tags,omitempty"`
	Record
}

// PadConfiguration describes one pad of the grid, keyed by page and pad index.
type PadConfiguration struct {
	PageIndex    int     `json:"pageIndex"`
	PadIndex     int     `json:"padIndex"`
	Name         string  `json:"name"`
	Color        string  `json:"color,omitempty"`
	AudioFileIDs []int64 `json:"audioFileIds,omitempty"`
	Volume       float64 `json:"volume"`
	FadeInMs     int     `json:"fadeInMs"`
	FadeOutMs    int     `json:"fadeOutMs"`
	PlaybackMode string  `json:"playbackMode,omitempty"`
	Shortcut     string  `json:"shortcut,omitempty"`
	Record
}

// PageMetadata describes one page of pads, keyed by page index.
type PageMetadata struct {
	PageIndex int    `json:"pageIndex"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	Hidden    bool   `json:"hidden,omitempty"`
	Record
}

// PadKey renders the logical key of a pad.
func PadKey(page, pad int) string {
	return fmt.Sprintf("%d:%d", page, pad)
}

// ParsePadKey parses a "page:pad" key.
func ParsePadKey(key string) (page, pad int, err error) {
	p, q, ok := strings.Cut(key, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid pad key %q: want page:pad", key)
	}
	if page, err = strconv.Atoi(p); err != nil {
		return 0, 0, fmt.Errorf("invalid pad key %q: %w", key, err)
	}
	if pad, err = strconv.Atoi(q); err != nil {
		return 0, 0, fmt.Errorf("invalid pad key %q: %w", key, err)
	}
	return page, pad, nil
}

// Field describes one data field of an entity type T.
type Field[T any] struct {
	Name string
	// Get returns the field's value.
	Get func(*T) any
	// Copy sets dst's field to src's value.
	Copy func(dst, src *T)
}

func field[T, V any](name string, ref func(*T) *V) Field[T] {
	return Field[T]{
		Name: name,
		Get:  func(t *T) any { return *ref(t) },
		Copy: func(dst, src *T) { *ref(dst) = *ref(src) },
	}
}

// Kind binds the merge-relevant operations of an entity type.
type Kind[T any] struct {
	Store  StoreKind
	Fields []Field[T]
	Key    func(*T) string
	Meta   func(*T) *Record
	Clone  func(*T) T
}

// FieldNames lists the data fields in declaration order.
func (k Kind[T]) FieldNames() []string {
	names := make([]string, len(k.Fields))
	for i, f := range k.Fields {
		names[i] = f.Name
	}
	return names
}

// Field looks up a data field by name.
func (k Kind[T]) Field(name string) (Field[T], bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field[T]{}, false
}

// TouchChanged stamps every field whose value differs between before and
// after, so an edited copy carries fresh change times.
func (k Kind[T]) TouchChanged(before, after *T, at time.Time) int {
	meta := k.Meta(after)
	changed := 0
	for _, f := range k.Fields {
		if !Equal(f.Get(before), f.Get(after)) {
			meta.Touch(f.Name, at)
			changed++
		}
	}
	return changed
}

// ProfileKind describes Profile records.
var ProfileKind = Kind[Profile]{
	Store: StoreProfile,
	Fields: []Field[Profile]{
		field("name", func(p *Profile) *string { return &p.Name }),
		field("description", func(p *Profile) *string { return &p.Description }),
		field("gridRows", func(p *Profile) *int { return &p.GridRows }),
		field("gridColumns", func(p *Profile) *int { return &p.GridColumns }),
		field("masterVolume", func(p *Profile) *float64 { return &p.MasterVolume }),
		field("tags", func(p *Profile) *[]string { return &p.Tags }),
	},
	Key:  func(p *Profile) string { return p.ID },
	Meta: func(p *Profile) *Record { return &p.Record },
	Clone: func(p *Profile) Profile {
		out := *p
		out.Tags = slices.Clone(p.Tags)
		out.Record = p.Record.Clone()
		return out
	},
}

// PadKind describes PadConfiguration records.
var PadKind = Kind[PadConfiguration]{
	Store: StorePadConfigurations,
	Fields: []Field[PadConfiguration]{
		field("name", func(p *PadConfiguration) *string { return &p.Name }),
		field("color", func(p *PadConfiguration) *string { return &p.Color }),
		field("audioFileIds", func(p *PadConfiguration) *[]int64 { return &p.AudioFileIDs }),
		field("volume", func(p *PadConfiguration) *float64 { return &p.Volume }),
		field("fadeInMs", func(p *PadConfiguration) *int { return &p.FadeInMs }),
		field("fadeOutMs", func(p *PadConfiguration) *int { return &p.FadeOutMs }),
		field("playbackMode", func(p *PadConfiguration) *string { return &p.PlaybackMode }),
		field("shortcut", func(p *PadConfiguration) *string { return &p.Shortcut }),
	},
	Key:  func(p *PadConfiguration) string { return PadKey(p.PageIndex, p.PadIndex) },
	Meta: func(p *PadConfiguration) *Record { return &p.Record },
	Clone: func(p *PadConfiguration) PadConfiguration {
		out := *p
		out.AudioFileIDs = slices.Clone(p.AudioFileIDs)
		out.Record = p.Record.Clone()
		return out
	},
}

// PageKind describes PageMetadata records.
var PageKind = Kind[PageMetadata]{
	Store: StorePageMetadata,
	Fields: []Field[PageMetadata]{
		field("name", func(p *PageMetadata) *string { return &p.Name }),
		field("color", func(p *PageMetadata) *string { return &p.Color }),
		field("hidden", func(p *PageMetadata) *bool { return &p.Hidden }),
	},
	Key:  func(p *PageMetadata) string { return strconv.Itoa(p.PageIndex) },
	Meta: func(p *PageMetadata) *Record { return &p.Record },
	Clone: func(p *PageMetadata) PageMetadata {
		out := *p
		out.Record = p.Record.Clone()
		return out
	},
}
