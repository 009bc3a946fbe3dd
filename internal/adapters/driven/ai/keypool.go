package ai

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/tamgam-edu/diya-core/internal/core/domain"
)

// DefaultRecoveryWindow is how long a slot stays exhausted after a quota error.
const DefaultRecoveryWindow = 60 * time.Second

type keySlot struct {
	key            string
	exhaustedUntil time.Time
}

// KeyPool holds ordered API key slots. Selection always scans from the
// first slot. Exhaustion clears lazily when a slot is next read.
type KeyPool struct {
	mu       sync.Mutex
	slots    []keySlot
	recovery time.Duration
	now      func() time.Time
}

// NewKeyPool keeps the non-blank keys in order.
func NewKeyPool(keys []string, recovery time.Duration) *KeyPool {
	if recovery <= 0 {
		recovery = DefaultRecoveryWindow
	}
	p := &KeyPool{recovery: recovery, now: time.Now}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			p.slots = append(p.slots, keySlot{key: k})
		}
	}
	return p
}

// Len returns the number of configured slots.
func (p *KeyPool) Len() int {
	return len(p.slots)
}

// availableLocked clears expired exhaustion. Caller holds p.mu.
func (p *KeyPool) availableLocked(i int, now time.Time) bool {
	s := &p.slots[i]
	if s.exhaustedUntil.IsZero() {
		return true
	}
	if !now.Before(s.exhaustedUntil) {
		s.exhaustedUntil = time.Time{}
		return true
	}
	return false
}

// acquire returns the first available slot not in tried.
func (p *KeyPool) acquire(tried map[int]bool) (int, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := range p.slots {
		if tried[i] {
			continue
		}
		if p.availableLocked(i, now) {
			return i, p.slots[i].key, true
		}
	}
	return -1, "", false
}

// MarkExhausted starts the recovery window for slot i.
func (p *KeyPool) MarkExhausted(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i < 0 || i >= len(p.slots) {
		return
	}
	p.slots[i].exhaustedUntil = p.now().Add(p.recovery)
}

// Status snapshots every slot. Indexes are 1-based.
func (p *KeyPool) Status() []domain.CredentialSlotStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	out := make([]domain.CredentialSlotStatus, len(p.slots))
	for i := range p.slots {
		st := domain.CredentialSlotStatus{Index: i + 1, Available: p.availableLocked(i, now)}
		if !st.Available {
			st.RecoveryInSeconds = int(math.Ceil(p.slots[i].exhaustedUntil.Sub(now).Seconds()))
		}
		out[i] = st
	}
	return out
}

// SoonestRecovery returns the shortest wait until any slot is usable again.
func (p *KeyPool) SoonestRecovery() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	var soonest time.Duration = -1
	for i := range p.slots {
		if p.availableLocked(i, now) {
			return 0
		}
		if d := p.slots[i].exhaustedUntil.Sub(now); soonest < 0 || d < soonest {
			soonest = d
		}
	}
	if soonest < 0 {
		return 0
	}
	return soonest
}

// MaxNumberedKeys is how many AI_API_KEY_<n> variables KeysFromEnv reads.
const MaxNumberedKeys = 5

// KeysFromEnv collects keys from AI_API_KEY_1..AI_API_KEY_5 followed by the
// comma separated AI_API_KEYS list. Order is kept and duplicates dropped.
func KeysFromEnv(lookup func(string) string) []string {
	var raw []string
	for i := 1; i <= MaxNumberedKeys; i++ {
		raw = append(raw, lookup(fmt.Sprintf("AI_API_KEY_%d", i)))
	}
	raw = append(raw, strings.Split(lookup("AI_API_KEYS"), ",")...)

	seen := make(map[string]bool)
	var keys []string
	for _, k := range raw {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}
