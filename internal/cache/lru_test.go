// Invigilator - Exam Integrity Monitoring and Incident Escalation
// Copyright 2026 TheInvigilator-dev
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/TheInvigilator-dev/theinvigilator-mvp-sub000

package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newClockedCache(capacity int, ttl time.Duration) (*LRUCache, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	return NewLRUCache(capacity, ttl).WithClock(clk.Now), clk
}

func TestLRUCache_BasicOperations(t *testing.T) {
	c, clk := newClockedCache(10, time.Minute)

	c.Add("sig-1")
	first, ok := c.Get("sig-1")
	if !ok {
		t.Fatal("Expected to find sig-1")
	}
	if !first.Equal(clk.Now()) {
		t.Errorf("first seen = %v, want %v", first, clk.Now())
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected miss for unknown key")
	}
	if !c.Contains("sig-1") || c.Contains("missing") {
		t.Error("Contains misreported")
	}
}

func TestLRUCache_Eviction(t *testing.T) {
	c, _ := newClockedCache(3, time.Minute)

	c.Add("a")
	c.Add("b")
	c.Add("c")
	c.Get("a") // a becomes most recent
	c.Add("d") // evicts b

	if c.Contains("b") {
		t.Error("Expected b to be evicted as least recently used")
	}
	for _, k := range []string{"a", "c", "d"} {
		if !c.Contains(k) {
			t.Errorf("Expected %s to remain", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Expected len 3, got %d", c.Len())
	}
}

func TestLRUCache_TTLExpiration(t *testing.T) {
	c, clk := newClockedCache(10, time.Minute)

	c.Add("sig-1")
	clk.Advance(61 * time.Second)

	if _, ok := c.Get("sig-1"); ok {
		t.Error("Expected sig-1 to have expired")
	}
}

func TestLRUCache_IsDuplicate(t *testing.T) {
	c, clk := newClockedCache(10, time.Minute)

	if c.IsDuplicate("sig-1") {
		t.Fatal("first sighting is not a duplicate")
	}
	if !c.IsDuplicate("sig-1") {
		t.Fatal("second sighting is a duplicate")
	}

	clk.Advance(2 * time.Minute)
	if c.IsDuplicate("sig-1") {
		t.Error("expired key should be treated as new")
	}
}

func TestLRUCache_Remove(t *testing.T) {
	c, _ := newClockedCache(10, time.Minute)
	c.Add("a")

	if !c.Remove("a") {
		t.Error("Expected Remove to report true")
	}
	if c.Remove("a") {
		t.Error("Expected second Remove to report false")
	}
}

func TestLRUCache_CleanupExpired(t *testing.T) {
	c, clk := newClockedCache(10, time.Minute)

	c.Add("old-1")
	c.Add("old-2")
	clk.Advance(45 * time.Second)
	c.Add("fresh")
	clk.Advance(30 * time.Second)

	if removed := c.CleanupExpired(); removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}
	if !c.Contains("fresh") {
		t.Error("fresh entry should survive cleanup")
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c, _ := newClockedCache(10, time.Minute)

	c.IsDuplicate("a") // miss
	c.IsDuplicate("a") // hit
	c.Get("b")         // miss

	hits, misses, size := c.Stats()
	if hits != 1 || misses != 2 || size != 1 {
		t.Errorf("Stats = (%d, %d, %d), want (1, 2, 1)", hits, misses, size)
	}
}

func TestLRUCache_Concurrent(t *testing.T) {
	c := NewLRUCache(1000, time.Minute)

	var wg sync.WaitGroup
	dupes := make([]int, 8)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if c.IsDuplicate(fmt.Sprintf("sig-%d", i)) {
					dupes[g]++
				}
			}
		}(g)
	}
	wg.Wait()

	total := 0
	for _, d := range dupes {
		total += d
	}
	if total != 700 {
		t.Errorf("Expected exactly one first sighting per key (700 duplicates), got %d", total)
	}
}
