package model

import (
	"maps"
	"time"
)

// Record is the change-tracking shape embedded in every mergeable entity.
type Record struct {
	CreatedAt       time.Time            `json:"createdAt"`
	ModifiedAt      time.Time            `json:"modifiedAt"`
	FieldModifiedAt map[string]time.Time `json:"fieldModifiedAt,omitempty"`
}

// FieldTime returns the last-change time of field, or the zero time if the
// field has never been stamped.
func (r Record) FieldTime(field string) time.Time {
	return r.FieldModifiedAt[field]
}

// Touch records an edit of field at the given time.
func (r *Record) Touch(field string, at time.Time) {
	if r.FieldModifiedAt == nil {
		r.FieldModifiedAt = make(map[string]time.Time)
	}
	r.FieldModifiedAt[field] = at
	if at.After(r.ModifiedAt) {
		r.ModifiedAt = at
	}
	if r.CreatedAt.IsZero() || r.CreatedAt.After(r.ModifiedAt) {
		r.CreatedAt = r.ModifiedAt
	}
}

// Stamp initializes a newly created record so that every field was last
// changed at creation time.
func (r *Record) Stamp(fields []string, at time.Time) {
	r.CreatedAt = at
	r.ModifiedAt = at
	r.FieldModifiedAt = make(map[string]time.Time, len(fields))
	for _, f := range fields {
		r.FieldModifiedAt[f] = at
	}
}

// Clone returns a copy that shares no map storage with r.
func (r Record) Clone() Record {
	out := r
	if r.FieldModifiedAt != nil {
		out.FieldModifiedAt = maps.Clone(r.FieldModifiedAt)
	}
	return out
}

// Latest returns the greatest field timestamp, or the zero time.
func (r Record) Latest() time.Time {
	var latest time.Time
	for _, ts := range r.FieldModifiedAt {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest
}

// MaxTime returns the later of a and b.
func MaxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// MinTime returns the earlier of a and b, ignoring zero values.
func MinTime(a, b time.Time) time.Time {
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	default:
		return a
	}
}
