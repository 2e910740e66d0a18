package backend

import (
	"errors"
	"testing"
	"time"
)

func TestAuthEmitter(t *testing.T) {
	t.Parallel()

	var emitter AuthEmitter
	var events []AuthEvent

	unsubscribe := emitter.Subscribe(func(event AuthEvent, _ *Session) {
		events = append(events, event)
	})
	if emitter.Len() != 1 {
		t.Fatalf("expected one listener, got %d", emitter.Len())
	}

	emitter.Emit(EventSignedIn, &Session{AccessToken: "tok"})
	unsubscribe()
	unsubscribe()
	emitter.Emit(EventSignedOut, nil)

	if len(events) != 1 || events[0] != EventSignedIn {
		t.Fatalf("expected only the sign-in event, got %v", events)
	}
	if emitter.Len() != 0 {
		t.Fatalf("expected listener to be removed")
	}
}

func TestSessionExpired(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.January, 1, 12, 0, 0, 0, time.UTC)
	var missing *Session
	if !missing.Expired(now) {
		t.Fatalf("expected nil session to count as expired")
	}
	live := &Session{ExpiresAt: now.Add(time.Minute)}
	if live.Expired(now) {
		t.Fatalf("expected live session")
	}
	if !live.Expired(now.Add(time.Minute)) {
		t.Fatalf("expected session to expire at its deadline")
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()

	err := error(&Error{Status: 409, Code: "already_exists", Message: "duplicate", Kind: ErrConflict})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected error to unwrap to ErrConflict")
	}
	if err.Error() != "backend: duplicate" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
