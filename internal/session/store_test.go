package session

import (
	"testing"
	"time"
)

func TestCreateReturnsUniqueID(t *testing.T) {
	st := NewStore()
	a := st.Create()
	b := st.Create()
	if a.ID == b.ID {
		t.Fatal("expected distinct session IDs")
	}
	if len(a.ID) != 32 {
		t.Fatalf("session ID length = %d, want 32", len(a.ID))
	}
}

func TestGetReturnsLiveSession(t *testing.T) {
	st := NewStore()
	sess := st.Create()
	sess.Set("visits", "1")

	got, ok := st.Get(sess.ID)
	if !ok {
		t.Fatal("expected session to be found")
	}
	if got.Get("visits") != "1" {
		t.Fatalf("visits = %q, want 1", got.Get("visits"))
	}
}

func TestGetUnknownIDFails(t *testing.T) {
	st := NewStore()
	if _, ok := st.Get("no-such-id"); ok {
		t.Fatal("expected unknown session ID to miss")
	}
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	st := NewStoreWithTTL(10 * time.Millisecond)
	sess := st.Create()

	time.Sleep(30 * time.Millisecond)

	if _, ok := st.Get(sess.ID); ok {
		t.Fatal("expected session to have expired")
	}
}

func TestTouchExtendsLife(t *testing.T) {
	st := NewStoreWithTTL(40 * time.Millisecond)
	sess := st.Create()

	time.Sleep(20 * time.Millisecond)
	st.Touch(sess.ID)
	time.Sleep(25 * time.Millisecond)

	if _, ok := st.Get(sess.ID); !ok {
		t.Fatal("expected touched session to still be alive")
	}
}

func TestCleanupExpiredRemovesOnlyStale(t *testing.T) {
	st := NewStoreWithTTL(15 * time.Millisecond)
	stale := st.Create()
	time.Sleep(25 * time.Millisecond)
	fresh := st.Create()

	removed := st.CleanupExpired()
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if st.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", st.Len())
	}
	if _, ok := st.Get(fresh.ID); !ok {
		t.Fatal("expected fresh session to survive cleanup")
	}
	_ = stale
}

func TestGetEvictsExpiredOnAccess(t *testing.T) {
	st := NewStoreWithTTL(10 * time.Millisecond)
	sess := st.Create()
	time.Sleep(25 * time.Millisecond)

	st.Get(sess.ID)
	if st.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after lazy eviction", st.Len())
	}
}
