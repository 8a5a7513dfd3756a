package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/AdeKurniawannnn/wabot/llm"
)

func TestAppendAndGetOrder(t *testing.T) {
	s := New(10)
	s.Append("628111", llm.RoleUser, "halo")
	s.Append("628111", llm.RoleAssistant, "Halo juga!")

	got := s.Get("628111")
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "halo"},
		{Role: llm.RoleAssistant, Content: "Halo juga!"},
	}
	if len(got) != len(want) {
		t.Fatalf("Get() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Get()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCapKeepsMostRecentInOrder(t *testing.T) {
	s := New(5)
	for i := 0; i < 12; i++ {
		s.Append("628111", llm.RoleUser, fmt.Sprintf("msg-%d", i))
	}

	got := s.Get("628111")
	if len(got) != 5 {
		t.Fatalf("Get() len = %d, want 5", len(got))
	}
	for i, entry := range got {
		want := fmt.Sprintf("msg-%d", 7+i)
		if entry.Content != want {
			t.Fatalf("Get()[%d].Content = %q, want %q", i, entry.Content, want)
		}
	}
}

func TestCapNeverExceededUnderAnySequence(t *testing.T) {
	s := New(3)
	for i := 0; i < 50; i++ {
		s.Append("628111", llm.RoleUser, "x")
		if n := len(s.Get("628111")); n > 3 {
			t.Fatalf("context length %d exceeds cap 3 after append %d", n, i)
		}
	}
}

func TestResetClearsContext(t *testing.T) {
	s := New(10)
	s.Append("628111", llm.RoleUser, "halo")
	s.Reset("628111")
	if got := s.Get("628111"); len(got) != 0 {
		t.Fatalf("Get() after Reset len = %d, want 0", len(got))
	}
}

func TestResetIsPerSender(t *testing.T) {
	s := New(10)
	s.Append("a", llm.RoleUser, "1")
	s.Append("b", llm.RoleUser, "2")
	s.Reset("a")
	if len(s.Get("a")) != 0 {
		t.Fatalf("sender a context not cleared")
	}
	if len(s.Get("b")) != 1 {
		t.Fatalf("sender b context must survive a's reset")
	}
}

func TestAppendIfVersionDropsStaleWrites(t *testing.T) {
	s := New(10)
	s.Append("628111", llm.RoleUser, "halo")
	v := s.Version("628111")

	s.Reset("628111")

	if s.AppendIfVersion("628111", v, llm.RoleAssistant, "stale reply") {
		t.Fatalf("AppendIfVersion() with stale version = true, want false")
	}
	if got := s.Get("628111"); len(got) != 0 {
		t.Fatalf("stale write landed after reset: %+v", got)
	}

	v = s.Version("628111")
	if !s.AppendIfVersion("628111", v, llm.RoleAssistant, "fresh reply") {
		t.Fatalf("AppendIfVersion() with current version = false, want true")
	}
}

func TestIdleEviction(t *testing.T) {
	now := time.Date(2026, 2, 8, 10, 0, 0, 0, time.UTC)
	s := New(10, WithIdleTTL(30*time.Minute), WithClock(func() time.Time { return now }))

	s.Append("628111", llm.RoleUser, "halo")
	now = now.Add(time.Hour)
	s.evictIdle()

	if got := s.Get("628111"); len(got) != 0 {
		t.Fatalf("idle conversation not evicted: %+v", got)
	}
}
