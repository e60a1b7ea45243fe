package eligibility

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"typed auth", NewProviderError("fnb", CategoryAuth, 401, nil), CategoryAuth},
		{"wrapped typed", fmt.Errorf("query: %w", NewProviderError("gaso", CategoryInvalidResponse, 200, errors.New("no rows"))), CategoryInvalidResponse},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), CategoryTimeout},
		{"legacy 403 text", errors.New("upstream returned 403"), CategoryBlocked},
		{"legacy spanish", errors.New("Usuario BLOQUEADO temporalmente"), CategoryBlocked},
		{"plain network", errors.New("connection refused"), CategoryUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestCategoryForStatus(t *testing.T) {
	cases := map[int]Category{
		401: CategoryAuth,
		403: CategoryBlocked,
		429: CategoryBlocked,
		504: CategoryTimeout,
		500: CategoryUnavailable,
	}
	for status, want := range cases {
		if got := CategoryForStatus(status); got != want {
			t.Fatalf("CategoryForStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestParseTestIdentities(t *testing.T) {
	ids, err := ParseTestIdentities(`{"51900000001":{"status":"not_eligible"}}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	res, ok := ids.Lookup("+51900000001")
	if !ok || res.Status != StatusNotEligible {
		t.Fatalf("expected not_eligible identity, got %+v ok=%v", res, ok)
	}

	if _, err := ParseTestIdentities(`{"1":{"status":"maybe"}}`); err == nil {
		t.Fatalf("expected invalid status error")
	}
	empty, err := ParseTestIdentities("  ")
	if err != nil {
		t.Fatalf("empty input should parse: %v", err)
	}
	if _, ok := empty.Lookup("1"); ok {
		t.Fatalf("expected no identities")
	}
}

func TestHealthSnapshotAndUnblock(t *testing.T) {
	h := NewHealthTracker()
	h.RecordFailure("fnb", CategoryBlocked)
	if ok, reason := h.Available("fnb"); ok || reason != "blocked" {
		t.Fatalf("expected fnb blocked, got ok=%v reason=%s", ok, reason)
	}
	h.Unblock("fnb")
	if ok, _ := h.Available("fnb"); !ok {
		t.Fatalf("expected fnb available after unblock")
	}
	h.RecordFailure("gaso", CategoryUnavailable)
	if ok, _ := h.Available("gaso"); !ok {
		t.Fatalf("unavailable failures must not block")
	}
	snap := h.Snapshot()
	if len(snap) != 2 || snap[0].Provider != "fnb" || snap[1].ConsecutiveFailures != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}
