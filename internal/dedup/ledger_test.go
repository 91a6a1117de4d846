package dedup

import (
	"testing"
	"time"
)

// fakeClock lets tests move time forward explicitly.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLedger() (*Ledger, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewLedger()
	l.now = clock.now
	return l, clock
}

func TestAdmit_FirstCallAdmits(t *testing.T) {
	l, _ := newTestLedger()
	if dup := l.Admit("m1", "hello"); dup {
		t.Fatal("first Admit returned duplicate")
	}
}

func TestAdmit_SameIDIsDuplicate(t *testing.T) {
	l, clock := newTestLedger()
	l.Admit("m1", "hello")

	for i := 0; i < 3; i++ {
		clock.advance(10 * time.Second)
		if dup := l.Admit("m1", "hello"); !dup {
			t.Fatalf("Admit #%d for same id admitted again", i+2)
		}
	}
}

func TestAdmit_SeenExpiresAfterTTL(t *testing.T) {
	l, clock := newTestLedger()
	l.Admit("m1", "hello")
	l.Done("m1")

	clock.advance(seenTTL + time.Second)
	if dup := l.Admit("m1", "different content now"); dup {
		t.Fatal("expired id still treated as duplicate")
	}
}

func TestAdmit_InFlightOutlivesNothingPastCeiling(t *testing.T) {
	l, clock := newTestLedger()
	l.Admit("m1", "hello")
	// No Done: run never signalled completion. Seen TTL (10m) still blocks
	// until it expires; the in-flight ceiling (5m) must not extend that.
	clock.advance(seenTTL + time.Second)
	if dup := l.Admit("m1", "x"); dup {
		t.Fatal("leaked in-flight entry blocked admission past the seen TTL")
	}
}

func TestAdmit_ContentFingerprintSuppression(t *testing.T) {
	l, clock := newTestLedger()
	l.Admit("m1", "same exact content")

	clock.advance(2 * time.Second)
	if dup := l.Admit("m2", "same exact content"); !dup {
		t.Fatal("near-duplicate content under different id admitted within window")
	}

	clock.advance(fingerprintTTL + time.Second)
	if dup := l.Admit("m3", "same exact content"); dup {
		t.Fatal("fingerprint window did not expire")
	}
}

func TestAdmit_FingerprintUsesFirst100Runes(t *testing.T) {
	l, _ := newTestLedger()
	prefix := make([]rune, 100)
	for i := range prefix {
		prefix[i] = 'a'
	}
	base := string(prefix)

	l.Admit("m1", base+" tail one")
	if dup := l.Admit("m2", base+" a totally different tail"); !dup {
		t.Fatal("messages sharing the first 100 runes not suppressed")
	}
}

func TestAdmit_DifferentContentDifferentIDAdmits(t *testing.T) {
	l, _ := newTestLedger()
	l.Admit("m1", "first message")
	if dup := l.Admit("m2", "second message"); dup {
		t.Fatal("unrelated message suppressed")
	}
}
