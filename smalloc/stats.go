package smalloc

import "github.com/smalloc/smalloc/mempool"

// Totals is the aggregate {Used, Total} byte count across every pool.
type Totals struct {
	Used  int64
	Total int64
}

// Stats enumerates every pool in class-index order, invoking cb with each
// one's snapshot; cb returning true halts iteration early. cb MUST NOT call
// back into the allocator -- it runs synchronously inside the iteration.
func (a *Allocator) Stats(cb func(mempool.Stats) bool) Totals {
	var t Totals
	for _, p := range a.pools {
		s := p.pool.Stats()
		t.Used += s.Used
		t.Total += s.Total
		if cb != nil && cb(s) {
			break
		}
	}
	return t
}
