package smalloc

import (
	"math/bits"
	"unsafe"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/cmn/debug"
	"github.com/smalloc/smalloc/mempool"
)

// poolPerGroupMax bounds the number of size classes a single group (all
// sharing one backing slab order) may contain.
const poolPerGroupMax = 32

// classPool is a Pool plus the routing state that lets smaller classes
// borrow allocations from a larger donor within their group until they
// accumulate enough waste to activate.
type classPool struct {
	pool *mempool.Pool

	objSizeMin int // one past the previous class's objsize
	group      *group
	idxInGroup int // position within the group, 0 = smallest

	usedPool            *classPool // current donor
	appropriatePoolMask uint32     // bit j set => peer j (group-relative index) is >= this class, a legal donor
	waste               int64      // bytes over-allocated per object due to borrowing, accumulated

	delayedHead    uintptr // intrusive LIFO of delayed-freed objects nominally of this class, 0 if empty
	inDelayedQueue bool    // true while this classPool sits on Allocator.delayedQueue
}

// group is up to poolPerGroupMax classPools sharing one slab order, with a
// waste threshold that activates peers one at a time.
type group struct {
	peers          []*classPool
	activePoolMask uint32
	wasteMax       int64
}

func (g *group) first() *classPool { return g.peers[0] }
func (g *group) last() *classPool  { return g.peers[len(g.peers)-1] }

// activate makes p self-serving: sets its bit in the group's active mask,
// then re-derives the tightest-fitting donor for every peer at or below p's
// index. Peers above p are never affected by an activation at or below them.
func activate(p *classPool) {
	g := p.group
	g.activePoolMask |= 1 << uint(p.idxInGroup)

	for _, q := range g.peers[:p.idxInGroup+1] {
		candidates := g.activePoolMask & q.appropriatePoolMask
		cmn.Assert(candidates != 0) // the group's last peer is always active
		donorIdx := bits.TrailingZeros32(candidates)
		q.usedPool = g.peers[donorIdx]
	}
	debug.Infof("smalloc: activated class objsize=%d in group order=%d (mask=%#x)",
		p.pool.ObjSize(), p.pool.SlabOrder(), g.activePoolMask)
}

// buildGroups partitions pools (already created in increasing objsize order,
// one per size class) into contiguous runs sharing a slab order, splitting
// each run into chunks of at most poolPerGroupMax.
func buildGroups(pools []*classPool) []*group {
	var groups []*group
	i := 0
	for i < len(pools) {
		j := i + 1
		for j < len(pools) && pools[j].pool.SlabOrder() == pools[i].pool.SlabOrder() {
			j++
		}
		// run [i, j) shares one slab order; split into chunks of <= poolPerGroupMax
		for k := i; k < j; k += poolPerGroupMax {
			end := k + poolPerGroupMax
			if end > j {
				end = j
			}
			groups = append(groups, newGroup(pools[k:end]))
		}
		i = j
	}
	return groups
}

func newGroup(peers []*classPool) *group {
	cmn.Assert(len(peers) > 0 && len(peers) <= poolPerGroupMax)
	slabOrder := peers[0].pool.SlabOrder()

	g := &group{peers: peers}
	for idx, p := range peers {
		cmn.Assert(p.pool.SlabOrder() == slabOrder)
		p.group = g
		p.idxInGroup = idx
		p.appropriatePoolMask = ^uint32(0) << uint(idx) // bits idx..31 set
		if len(peers) < 32 {
			p.appropriatePoolMask &= (1 << uint(len(peers))) - 1
		}
		p.pool.SetOwner(unsafe.Pointer(p))
	}
	g.wasteMax = int64(peers[0].pool.SlabSize()) / 4
	activate(g.last()) // seed: the largest pool donates to every peer
	return g
}
