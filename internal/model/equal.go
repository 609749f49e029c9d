package model

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

var equalOpts = cmp.Options{
	cmpopts.EquateEmpty(),
	cmpopts.EquateNaNs(),
	cmpopts.IgnoreFields(Dataset{}, "StoredAssets"),
}

// Equal reports whether two field values are structurally equal. Nil and
// empty slices compare equal. A dataset's StoredAssets bookkeeping is ignored.
func Equal(a, b any) bool {
	return cmp.Equal(a, b, equalOpts)
}

// Diff returns a human-readable description of the differences between a
// and b, or "" when they are equal.
func Diff(a, b any) string {
	return cmp.Diff(a, b, equalOpts)
}

// CanonicalKey returns a stable string form of a field value used to order
// values deterministically. Values JSON cannot encode, such as NaN, fall back
// to their Go syntax so distinct values still order apart.
func CanonicalKey(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}
