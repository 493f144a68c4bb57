package timeline

import (
	"testing"
	"time"

	"support-chat/internal/domain"
)

func strPtr(s string) *string { return &s }

func msg(id string, at time.Time) domain.Message {
	return domain.Message{
		ID:        id,
		Content:   "m-" + id,
		SenderID:  strPtr("user-1"),
		CreatedAt: at,
		Status:    domain.StatusSent,
	}
}

func TestTimeline_LoadAndOrder(t *testing.T) {
	now := time.Now()
	tl := New()
	tl.Load([]domain.Message{
		msg("b", now.Add(2*time.Second)),
		msg("a", now),
		msg("c", now.Add(time.Second)),
	})

	got := tl.Messages()
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "c" || got[2].ID != "b" {
		t.Errorf("expected order a,c,b got %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestTimeline_OrderBreaksTiesByID(t *testing.T) {
	now := time.Now()
	tl := New()
	tl.Load([]domain.Message{msg("z", now), msg("a", now)})

	got := tl.Messages()
	if got[0].ID != "a" || got[1].ID != "z" {
		t.Errorf("expected tie broken by id, got %s,%s", got[0].ID, got[1].ID)
	}
}

func TestTimeline_ApplyInsert_DeduplicatesByID(t *testing.T) {
	now := time.Now()
	tl := New()

	if !tl.ApplyInsert(msg("a", now)) {
		t.Error("first delivery should be new")
	}
	if tl.ApplyInsert(msg("a", now)) {
		t.Error("redelivery of the same id must be a no-op")
	}
	if tl.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", tl.Len())
	}
}

func TestTimeline_AppendPendingThenConfirm(t *testing.T) {
	tl := New()
	pendingID := tl.AppendPending(domain.Message{Content: "hello", SenderID: strPtr("user-1")})

	if tl.Len() != 1 {
		t.Fatalf("expected pending entry, got %d entries", tl.Len())
	}

	stored := msg("real-1", time.Now())
	stored.Content = "hello"
	tl.Confirm(pendingID, stored)

	got := tl.Messages()
	if len(got) != 1 {
		t.Fatalf("expected 1 message after confirm, got %d", len(got))
	}
	if got[0].ID != "real-1" {
		t.Errorf("expected stored id 'real-1', got %q", got[0].ID)
	}
}

func TestTimeline_ConfirmAfterEchoArrived(t *testing.T) {
	tl := New()
	pendingID := tl.AppendPending(domain.Message{Content: "hello", SenderID: strPtr("user-1")})

	stored := msg("real-1", time.Now())
	// Subscription echo lands before the send response returns.
	tl.ApplyInsert(stored)
	tl.Confirm(pendingID, stored)

	if tl.Len() != 1 {
		t.Errorf("expected 1 entry after echo and confirm, got %d", tl.Len())
	}
}

func TestTimeline_DiscardRollsBackFailedSend(t *testing.T) {
	tl := New()
	pendingID := tl.AppendPending(domain.Message{Content: "hello", SenderID: strPtr("user-1")})
	tl.Discard(pendingID)

	if tl.Len() != 0 {
		t.Errorf("expected empty timeline after discard, got %d entries", tl.Len())
	}
}

func TestTimeline_LoadKeepsPendingEntries(t *testing.T) {
	now := time.Now()
	tl := New()
	pendingID := tl.AppendPending(domain.Message{Content: "in flight", SenderID: strPtr("user-1")})

	tl.Load([]domain.Message{msg("a", now)})

	if tl.Len() != 2 {
		t.Fatalf("expected fetched message plus pending entry, got %d", tl.Len())
	}
	tl.Discard(pendingID)
	if tl.Len() != 1 {
		t.Errorf("expected 1 entry after discarding pending, got %d", tl.Len())
	}
}

func TestTimeline_ApplyUpdate_StatusOnlyMovesForward(t *testing.T) {
	now := time.Now()
	tl := New()
	m := msg("a", now)
	m.Status = domain.StatusRead
	tl.ApplyInsert(m)

	regressed := msg("a", now)
	regressed.Status = domain.StatusDelivered
	tl.ApplyUpdate(regressed)

	got := tl.Messages()
	if got[0].Status != domain.StatusRead {
		t.Errorf("status must not regress, got %q", got[0].Status)
	}

	m2 := msg("b", now)
	m2.Status = domain.StatusSent
	tl.ApplyInsert(m2)
	up := msg("b", now)
	up.Status = domain.StatusDelivered
	tl.ApplyUpdate(up)

	for _, gm := range tl.Messages() {
		if gm.ID == "b" && gm.Status != domain.StatusDelivered {
			t.Errorf("forward transition should apply, got %q", gm.Status)
		}
	}
}

func TestTimeline_ApplyUpdate_UnknownIDIsNoOp(t *testing.T) {
	tl := New()
	tl.ApplyUpdate(msg("ghost", time.Now()))
	if tl.Len() != 0 {
		t.Errorf("update for unknown id must not create an entry, got %d", tl.Len())
	}
}
