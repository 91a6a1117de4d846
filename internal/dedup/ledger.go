// Package dedup suppresses duplicate message deliveries. Lark redelivers
// events at-least-once, and retries of the same human message can arrive
// under fresh message ids, so admission checks both the message id and a
// fingerprint of the leading content.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

const (
	seenTTL        = 10 * time.Minute
	inFlightTTL    = 5 * time.Minute
	fingerprintTTL = 5 * time.Second

	fingerprintChars = 100
)

// Ledger tracks seen and in-flight message ids plus recent content
// fingerprints. Safe for concurrent use.
type Ledger struct {
	mu           sync.Mutex
	now          func() time.Time
	seen         map[string]time.Time
	inFlight     map[string]time.Time
	fingerprints map[string]time.Time
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		now:          time.Now,
		seen:         make(map[string]time.Time),
		inFlight:     make(map[string]time.Time),
		fingerprints: make(map[string]time.Time),
	}
}

// Admit reports whether the message is a duplicate that must be dropped.
// On first admission it records the id as seen and in-flight and stores
// the content fingerprint, so any of the three will catch a retry.
func (l *Ledger) Admit(messageID, content string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.purge(now)

	fp := fingerprint(content)
	if _, ok := l.seen[messageID]; ok {
		return true
	}
	if _, ok := l.inFlight[messageID]; ok {
		return true
	}
	if _, ok := l.fingerprints[fp]; ok {
		return true
	}

	l.seen[messageID] = now
	l.inFlight[messageID] = now
	l.fingerprints[fp] = now
	return false
}

// Done clears the in-flight mark once a pipeline run finishes. The seen
// record stays until its TTL so redeliveries keep being dropped.
func (l *Ledger) Done(messageID string) {
	l.mu.Lock()
	delete(l.inFlight, messageID)
	l.mu.Unlock()
}

// purge drops expired entries. Called with the lock held; maps stay small
// (bounded by message arrival rate × TTL) so a full sweep per admission
// is fine.
func (l *Ledger) purge(now time.Time) {
	for id, at := range l.seen {
		if now.Sub(at) > seenTTL {
			delete(l.seen, id)
		}
	}
	for id, at := range l.inFlight {
		if now.Sub(at) > inFlightTTL {
			delete(l.inFlight, id)
		}
	}
	for fp, at := range l.fingerprints {
		if now.Sub(at) > fingerprintTTL {
			delete(l.fingerprints, fp)
		}
	}
}

// fingerprint hashes the first fingerprintChars runes of the content.
func fingerprint(content string) string {
	runes := []rune(content)
	if len(runes) > fingerprintChars {
		runes = runes[:fingerprintChars]
	}
	sum := sha256.Sum256([]byte(string(runes)))
	return hex.EncodeToString(sum[:8])
}
