package dedup

import (
	"testing"
	"time"

	"github.com/AdeKurniawannnn/wabot/internal/transport"
)

func TestAdmitOncePerID(t *testing.T) {
	d := New(10 * time.Minute)
	ev := transport.InboundEvent{ID: "msg_01", SenderID: "628111", Body: "halo"}

	if !d.Admit(ev) {
		t.Fatalf("Admit() first observation = false, want true")
	}
	for i := 0; i < 3; i++ {
		if d.Admit(ev) {
			t.Fatalf("Admit() repeat observation %d = true, want false", i)
		}
	}
}

func TestAdmitDistinctIDs(t *testing.T) {
	d := New(10 * time.Minute)
	if !d.Admit(transport.InboundEvent{ID: "a", SenderID: "s", Body: "x"}) {
		t.Fatalf("Admit(a) = false, want true")
	}
	if !d.Admit(transport.InboundEvent{ID: "b", SenderID: "s", Body: "x"}) {
		t.Fatalf("Admit(b) = false, want true")
	}
}

func TestHorizonEviction(t *testing.T) {
	now := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	d := New(5*time.Minute, WithClock(func() time.Time { return now }))

	ev := transport.InboundEvent{ID: "msg_01", SenderID: "628111", Body: "halo"}
	if !d.Admit(ev) {
		t.Fatalf("Admit() = false, want true")
	}
	if d.Admit(ev) {
		t.Fatalf("Admit() inside horizon = true, want false")
	}

	now = now.Add(5 * time.Minute)
	if !d.Admit(ev) {
		t.Fatalf("Admit() after horizon = false, want true")
	}
}

func TestEvictionBoundsMemory(t *testing.T) {
	now := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	d := New(time.Minute, WithClock(func() time.Time { return now }))

	for i := 0; i < 100; i++ {
		d.Admit(transport.InboundEvent{ID: string(rune('a' + i%26)), SenderID: "s", Body: "x", ReceivedAt: now})
		now = now.Add(2 * time.Minute)
	}
	if got := d.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1 (only the newest entry survives the horizon)", got)
	}
}

func TestFingerprintSynthesis(t *testing.T) {
	at := time.Date(2026, 2, 8, 10, 0, 30, 0, time.UTC)
	a := transport.InboundEvent{SenderID: "628111", Body: "halo", ReceivedAt: at}
	b := transport.InboundEvent{SenderID: "628111", Body: "halo", ReceivedAt: at.Add(10 * time.Second)}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("same sender+body inside one bucket should share a fingerprint")
	}

	c := transport.InboundEvent{SenderID: "628222", Body: "halo", ReceivedAt: at}
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("different senders must not share a fingerprint")
	}

	d := transport.InboundEvent{SenderID: "628111", Body: "halo", ReceivedAt: at.Add(2 * time.Minute)}
	if Fingerprint(a) == Fingerprint(d) {
		t.Fatalf("different time buckets must not share a fingerprint")
	}
}

func TestAdmitWithoutIDUsesFingerprint(t *testing.T) {
	at := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	d := New(10 * time.Minute)

	ev := transport.InboundEvent{SenderID: "628111", Body: "halo", ReceivedAt: at}
	if !d.Admit(ev) {
		t.Fatalf("Admit() = false, want true")
	}
	dup := transport.InboundEvent{SenderID: "628111", Body: "halo", ReceivedAt: at.Add(5 * time.Second)}
	if d.Admit(dup) {
		t.Fatalf("Admit() same fingerprint = true, want false")
	}
}
