package sync

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("sync profile: %w", NewError(KindNetwork, "download", base))

	if !IsKind(err, KindNetwork) {
		t.Error("IsKind should see through wrapping")
	}
	if IsKind(err, KindAuthExpired) {
		t.Error("IsKind matched the wrong kind")
	}
	if KindOf(err) != KindNetwork {
		t.Errorf("KindOf() = %q, want network", KindOf(err))
	}
	if !errors.Is(err, base) {
		t.Error("expected underlying error to be reachable")
	}
	if !strings.Contains(err.Error(), "download: network: boom") {
		t.Errorf("unexpected message: %v", err)
	}
	if KindOf(base) != "" {
		t.Error("plain errors have no kind")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want bool
	}{
		{KindNetwork, true},
		{KindRateLimited, true},
		{KindLocalApply, true},
		{KindNotAuthenticated, false},
		{KindInvalidDataset, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := Retryable(NewError(tt.kind, "op", nil)); got != tt.want {
				t.Errorf("Retryable(%s) = %v, want %v", tt.kind, got, tt.want)
			}
		})
	}
}
