// Copyright 2024 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package planner

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheEntry is one fingerprint's cached plan, plus the index names it was
// built against so a later schema change (an index dropped or replaced) can
// be detected and the entry evicted rather than served stale.
type CacheEntry struct {
	Plan              *PreparedPlan
	ReferencedIndexes []string
}

// PlanCache is a fingerprint-keyed LRU of prepared plans, avoiding a full
// Cascades search on every execution of a recurring query shape (§4.5:
// "identical query shapes reuse a cached plan until invalidated").
type PlanCache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, CacheEntry]
}

// NewPlanCache returns a plan cache holding up to capacity entries.
func NewPlanCache(capacity int) *PlanCache {
	c, _ := lru.New[string, CacheEntry](capacity)
	return &PlanCache{lru: c}
}

// Get returns the cached plan for fingerprint if present and still valid
// against the live index set (PlanValidator), evicting it otherwise.
func (pc *PlanCache) Get(fingerprint string, liveIndexes map[string]bool) (*PreparedPlan, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	entry, ok := pc.lru.Get(fingerprint)
	if !ok {
		return nil, false
	}
	if !validate(entry, liveIndexes) {
		pc.lru.Remove(fingerprint)
		return nil, false
	}
	return entry.Plan, true
}

// Put inserts or replaces the cached plan for fingerprint.
func (pc *PlanCache) Put(fingerprint string, plan *PreparedPlan) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.lru.Add(fingerprint, CacheEntry{Plan: plan, ReferencedIndexes: plan.Root.ReferencedIndexes()})
}

// Invalidate removes fingerprint's cached entry unconditionally, used by
// DriftDetector when runtime feedback shows the cached plan's estimates
// have drifted too far from reality.
func (pc *PlanCache) Invalidate(fingerprint string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.lru.Remove(fingerprint)
}

// validate implements PlanValidator: a cached plan is valid iff every index
// it names still exists.
func validate(entry CacheEntry, liveIndexes map[string]bool) bool {
	for _, name := range entry.ReferencedIndexes {
		if !liveIndexes[name] {
			return false
		}
	}
	return true
}
