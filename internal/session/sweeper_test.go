package session

import (
	"context"
	"testing"
	"time"

	"github.com/cybertechlabs/go-voice-backend/internal/repo"
)

func TestNewSweeper_Defaults(t *testing.T) {
	s := NewSweeper(nil, 0, -time.Second)
	if s.Interval != 60*time.Second {
		t.Fatalf("Interval = %v; want 60s", s.Interval)
	}
	if s.IdleTimeout != 30*time.Minute {
		t.Fatalf("IdleTimeout = %v; want 30m", s.IdleTimeout)
	}
}

func TestSweeper_RunStopsOnContextCancel(t *testing.T) {
	r, _ := newTestRegistry(t)
	s := NewSweeper(r, 10*time.Millisecond, 30*time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit after context cancel")
	}
}

func TestSweeper_StopIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)
	s := NewSweeper(r, 10*time.Millisecond, 30*time.Minute)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background())
		close(done)
	}()

	s.Stop()
	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not exit after Stop")
	}
}

func TestSweeper_TickSweepsIdleSessions(t *testing.T) {
	r, clk := newTestRegistry(t)
	ctx := context.Background()

	sess, _, err := r.CreateSession(ctx, "room-sw", "caller-sw", "fp-sw")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	clk.Advance(31 * time.Minute)

	s := NewSweeper(r, 5*time.Millisecond, 30*time.Minute)
	go s.Run(ctx)
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, err := repo.GetSession(ctx, r.DB, sess.ID)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if got.EndedAt != nil {
			if got.EndReason != EndReasonIdle {
				t.Fatalf("end reason = %q; want %q", got.EndReason, EndReasonIdle)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("idle session was never swept")
}
