package diag

import (
	"hash/fnv"
	"sync"
)

// internTable collapses repeated strings (spell names, zone names, log
// categories) into a single stored copy per unique content. Append-only:
// entries live for the process lifetime, bounded by the small set of
// repeated strings the server actually encounters.
type internTable struct {
	mu      sync.RWMutex
	entries map[uint64][]string // FNV-1a hash → strings with that hash
	byTag   map[string]int      // category tag → interned count (profiling)
}

var globalIntern = &internTable{
	entries: make(map[uint64][]string, 1024),
	byTag:   make(map[string]int, 16),
}

// Intern returns the canonical stored copy of s.
// Intern(s) == Intern(s) holds across threads: both calls return a string
// header pointing at the same backing storage.
func Intern(s string) string {
	return InternTagged(s, "")
}

// InternTagged interns s and attributes the first insert to a profiling
// category. The read path takes only a shared lock.
func InternTagged(s, tag string) string {
	h := fnv1a(s)

	globalIntern.mu.RLock()
	for _, e := range globalIntern.entries[h] {
		if e == s {
			globalIntern.mu.RUnlock()
			return e
		}
	}
	globalIntern.mu.RUnlock()

	globalIntern.mu.Lock()
	defer globalIntern.mu.Unlock()

	// Re-check under the writer lock: another thread may have inserted.
	for _, e := range globalIntern.entries[h] {
		if e == s {
			return e
		}
	}

	// Clone so we never pin a caller's larger backing array.
	owned := string([]byte(s))
	globalIntern.entries[h] = append(globalIntern.entries[h], owned)
	if tag != "" {
		globalIntern.byTag[tag]++
	}
	return owned
}

// InternStats returns the total unique entries and per-tag insert counts.
func InternStats() (total int, byTag map[string]int) {
	globalIntern.mu.RLock()
	defer globalIntern.mu.RUnlock()

	for _, bucket := range globalIntern.entries {
		total += len(bucket)
	}
	byTag = make(map[string]int, len(globalIntern.byTag))
	for k, v := range globalIntern.byTag {
		byTag[k] = v
	}
	return total, byTag
}

func fnv1a(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
