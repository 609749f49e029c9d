package ui

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/klauern/padsync/internal/model"
)

// TimeLayout is used for field timestamps in conflict views.
const TimeLayout = "2006-01-02 15:04:05"

// FormatValue renders a field value for display. Strings are quoted so empty
// and whitespace values stay visible.
func FormatValue(v any) string {
	if v == nil {
		return "-"
	}
	switch x := v.(type) {
	case string:
		return fmt.Sprintf("%q", x)
	case []string:
		if len(x) == 0 {
			return "[]"
		}
		return "[" + strings.Join(x, ", ") + "]"
	case float64:
		return fmt.Sprintf("%.2f", x)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Len() == 0 {
		return "[]"
	}
	return fmt.Sprint(v)
}

// FormatTime renders a field timestamp in local time, or "never".
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(TimeLayout)
}

// Field is a named, formatted value of a dataset item.
type Field struct {
	Name       string
	Value      string
	ModifiedAt time.Time
}

// ItemFields lists the data fields of a profile, pad or page value.
func ItemFields(item any) []Field {
	switch x := item.(type) {
	case model.Profile:
		return kindFields(model.ProfileKind, &x)
	case *model.Profile:
		return kindFields(model.ProfileKind, x)
	case model.PadConfiguration:
		return kindFields(model.PadKind, &x)
	case *model.PadConfiguration:
		return kindFields(model.PadKind, x)
	case model.PageMetadata:
		return kindFields(model.PageKind, &x)
	case *model.PageMetadata:
		return kindFields(model.PageKind, x)
	default:
		return nil
	}
}

func kindFields[T any](kind model.Kind[T], item *T) []Field {
	meta := kind.Meta(item)
	out := make([]Field, 0, len(kind.Fields))
	for _, f := range kind.Fields {
		out = append(out, Field{
			Name:       f.Name,
			Value:      FormatValue(f.Get(item)),
			ModifiedAt: meta.FieldTime(f.Name),
		})
	}
	return out
}
