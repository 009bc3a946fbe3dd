package ai

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestPool(keys []string) (*KeyPool, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
	p := NewKeyPool(keys, time.Minute)
	p.now = clock.Now
	return p, clock
}

func TestNewKeyPool_SkipsBlankKeys(t *testing.T) {
	p := NewKeyPool([]string{"k1", "", "  ", "k4"}, 0)
	if p.Len() != 2 {
		t.Fatalf("expected 2 slots, got %d", p.Len())
	}
	if p.recovery != DefaultRecoveryWindow {
		t.Errorf("expected default recovery window, got %s", p.recovery)
	}
}

func TestKeyPool_AcquireScansInOrder(t *testing.T) {
	p, _ := newTestPool([]string{"k1", "k2", "k3"})

	for i := 0; i < 3; i++ {
		idx, key, ok := p.acquire(nil)
		if !ok || idx != 0 || key != "k1" {
			t.Fatalf("call %d: expected slot 0, got %d %q %v", i, idx, key, ok)
		}
	}

	idx, _, _ := p.acquire(map[int]bool{0: true})
	if idx != 1 {
		t.Errorf("expected slot 1 when slot 0 was tried, got %d", idx)
	}
}

func TestKeyPool_LazyRecovery(t *testing.T) {
	p, clock := newTestPool([]string{"k1", "k2"})

	p.MarkExhausted(0)
	if idx, _, _ := p.acquire(nil); idx != 1 {
		t.Fatalf("expected slot 1 while slot 0 recovers, got %d", idx)
	}

	clock.Advance(59 * time.Second)
	st := p.Status()
	if st[0].Available || st[0].RecoveryInSeconds != 1 {
		t.Errorf("expected first slot unavailable with 1s left, got %+v", st[0])
	}

	clock.Advance(time.Second)
	if idx, _, _ := p.acquire(nil); idx != 0 {
		t.Errorf("expected slot 0 after the window, got %d", idx)
	}
	if !p.slots[0].exhaustedUntil.IsZero() {
		t.Error("expected exhaustion to be cleared on read")
	}
}

func TestKeyPool_AllExhausted(t *testing.T) {
	p, clock := newTestPool([]string{"k1", "k2"})

	p.MarkExhausted(0)
	clock.Advance(20 * time.Second)
	p.MarkExhausted(1)

	if _, _, ok := p.acquire(nil); ok {
		t.Fatal("expected no slot")
	}
	if got := p.SoonestRecovery(); got != 40*time.Second {
		t.Errorf("expected 40s soonest recovery, got %s", got)
	}

	st := p.Status()
	if st[0].Index != 1 || st[1].Index != 2 {
		t.Errorf("expected 1-based indexes, got %d and %d", st[0].Index, st[1].Index)
	}
	if st[1].RecoveryInSeconds != 60 {
		t.Errorf("expected 60s for slot 2, got %d", st[1].RecoveryInSeconds)
	}
}

func TestKeyPool_MarkExhaustedOutOfRange(t *testing.T) {
	p, _ := newTestPool([]string{"k1"})
	p.MarkExhausted(-1)
	p.MarkExhausted(5)
	if _, _, ok := p.acquire(nil); !ok {
		t.Error("expected slot still available")
	}
}

func TestKeysFromEnv(t *testing.T) {
	env := map[string]string{
		"AI_API_KEY_1": "k1",
		"AI_API_KEY_3": " k3 ",
		"AI_API_KEYS":  "k4, k1,,k5",
	}
	got := KeysFromEnv(func(k string) string { return env[k] })

	want := []string{"k1", "k3", "k4", "k5"}
	if len(got) != len(want) {
		t.Fatalf("KeysFromEnv() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d = %q, want %q", i, got[i], want[i])
		}
	}

	if keys := KeysFromEnv(func(string) string { return "" }); len(keys) != 0 {
		t.Errorf("expected no keys, got %v", keys)
	}
}
