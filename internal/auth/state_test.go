package auth

import (
	"context"
	"testing"
)

func TestStateTracker_IssueGeneratesUniqueTokens(t *testing.T) {
	sessions := newMockSessionRepo()
	tracker := NewStateTracker(sessions)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state, err := tracker.Issue(context.Background(), "sess-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if state == "" {
			t.Fatal("issued state must not be empty")
		}
		if seen[state] {
			t.Fatalf("state %q issued twice", state)
		}
		seen[state] = true
	}
}

func TestStateTracker_ValidateAndConsume(t *testing.T) {
	tests := []struct {
		name     string
		pending  string
		received string
		want     bool
	}{
		{"一致", "state-abc", "state-abc", true},
		{"不一致", "state-abc", "state-xyz", false},
		{"pendingなし", "", "state-abc", false},
		{"受信stateが空", "state-abc", "", false},
		{"両方空", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := newMockSessionRepo()
			if tt.pending != "" {
				sessions.state["sess-1"] = tt.pending
			}
			tracker := NewStateTracker(sessions)

			got, err := tracker.ValidateAndConsume(context.Background(), "sess-1", tt.received)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ValidateAndConsume() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateTracker_StateIsSingleUse(t *testing.T) {
	sessions := newMockSessionRepo()
	tracker := NewStateTracker(sessions)

	state, err := tracker.Issue(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := tracker.ValidateAndConsume(context.Background(), "sess-1", state)
	if err != nil || !ok {
		t.Fatalf("first validation should succeed: ok=%v err=%v", ok, err)
	}

	ok, err = tracker.ValidateAndConsume(context.Background(), "sess-1", state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("second validation with the same state must fail")
	}
}

func TestStateTracker_IssueOverwritesPendingState(t *testing.T) {
	sessions := newMockSessionRepo()
	tracker := NewStateTracker(sessions)

	first, err := tracker.Issue(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := tracker.Issue(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 古いstateは最新の発行で無効になる
	ok, err := tracker.ValidateAndConsume(context.Background(), "sess-1", first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("stale state must not validate after reissue")
	}

	// 消費済みのため最新のstateも使えない（単回使用）
	ok, _ = tracker.ValidateAndConsume(context.Background(), "sess-1", second)
	if ok {
		t.Error("state was already consumed by the previous validation")
	}
}

func TestStateTracker_StatesAreScopedToSession(t *testing.T) {
	sessions := newMockSessionRepo()
	tracker := NewStateTracker(sessions)

	stateA, err := tracker.Issue(context.Background(), "sess-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tracker.Issue(context.Background(), "sess-b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 別セッションのstateでは検証できない
	ok, err := tracker.ValidateAndConsume(context.Background(), "sess-b", stateA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("state issued for another session must not validate")
	}

	// sess-aのstateはまだ有効
	ok, err = tracker.ValidateAndConsume(context.Background(), "sess-a", stateA)
	if err != nil || !ok {
		t.Errorf("state for sess-a should still validate: ok=%v err=%v", ok, err)
	}
}
