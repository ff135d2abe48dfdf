// Package slabarena provides the memory budget (Quota) and raw, page-aligned
// slab mapping (Arena) that the slab cache builds on.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package slabarena

import "go.uber.org/atomic"

// Quota is an atomic byte budget shared, potentially, by several Arena
// instances. It never blocks: TryUse either reserves n bytes or fails
// immediately, leaving the caller to treat the failure as out-of-memory.
type Quota struct {
	limit atomic.Int64
	used  atomic.Int64
}

func NewQuota(limit int64) *Quota {
	q := &Quota{}
	q.limit.Store(limit)
	return q
}

// TryUse reserves n bytes against the quota, returning false (without side
// effects) if doing so would exceed the limit.
func (q *Quota) TryUse(n int64) bool {
	for {
		cur := q.used.Load()
		next := cur + n
		if next > q.limit.Load() {
			return false
		}
		if q.used.CAS(cur, next) {
			return true
		}
	}
}

// Release returns n previously-reserved bytes to the quota.
func (q *Quota) Release(n int64) {
	q.used.Sub(n)
}

func (q *Quota) Used() int64  { return q.used.Load() }
func (q *Quota) Limit() int64 { return q.limit.Load() }
