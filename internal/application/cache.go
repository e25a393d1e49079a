package application

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// availabilityCache stores recently computed slot lists to avoid repeated
// grid resolution for identical queries. Staleness is safe: availability is
// advisory, and every write path re-checks the slot atomically. The TTL just
// bounds how long a booked slot can keep appearing available.
type availabilityCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]availabilityCacheEntry
}

type availabilityCacheEntry struct {
	slots     []AvailableSlot
	expiresAt time.Time
}

func newAvailabilityCache(ttl time.Duration, maxEntries int, now func() time.Time) *availabilityCache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &availabilityCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]availabilityCacheEntry),
	}
}

func (c *availabilityCache) Get(key string) ([]AvailableSlot, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return cloneSlots(entry.slots), true
}

func (c *availabilityCache) Store(key string, slots []AvailableSlot) {
	if c == nil {
		return
	}
	cloned := cloneSlots(slots)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = availabilityCacheEntry{slots: cloned, expiresAt: expiry}
}

func (c *availabilityCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *availabilityCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneSlots(slots []AvailableSlot) []AvailableSlot {
	if len(slots) == 0 {
		return nil
	}
	out := make([]AvailableSlot, len(slots))
	copy(out, slots)
	return out
}

func buildAvailabilityCacheKey(organizationID string, query AvailabilityQuery) string {
	builder := strings.Builder{}
	builder.WriteString(organizationID)
	builder.WriteString("|")
	builder.WriteString(query.DateFrom)
	builder.WriteString("|")
	builder.WriteString(query.DateTo)
	builder.WriteString("|")
	builder.WriteString(strconv.Itoa(query.DurationMinutes))
	builder.WriteString("|")
	builder.WriteString(query.StaffID)
	builder.WriteString("|")
	builder.WriteString(query.RoomID)
	builder.WriteString("|")
	builder.WriteString(query.PatientID)
	return builder.String()
}
