package smalloc

import (
	"github.com/pkg/errors"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/cmn/debug"
	"github.com/smalloc/smalloc/mempool"
	"github.com/smalloc/smalloc/slabcache"
)

// smallMempoolMax safeguards pool-table construction against a degenerate
// (granularity, factor, objsize_min) triple that would never converge
// toward objsize_max.
const smallMempoolMax = 1 << 16

// Config holds the parameters NewAllocator validates before building a
// pool/group table.
type Config struct {
	ObjSizeMin  int     // min_alloc
	Granularity int     // must be a power of two
	AllocFactor float64 // requested_factor, in (1, 2]
}

func (c Config) validate() error {
	if c.Granularity <= 0 || !cmn.IsPowerOfTwo(uint64(c.Granularity)) {
		return errors.Errorf("granularity must be a power of two, got %d", c.Granularity)
	}
	if c.AllocFactor <= 1.0 || c.AllocFactor > 2.0 {
		return errors.Errorf("alloc_factor must be in (1, 2], got %f", c.AllocFactor)
	}
	if c.ObjSizeMin < c.Granularity {
		return errors.Errorf("objsize_min (%d) must be >= granularity (%d)", c.ObjSizeMin, c.Granularity)
	}
	return nil
}

// NewAllocator builds the full size-class/pool/group table over cache and
// returns the allocator plus the actual_factor achieved.
func NewAllocator(cache *slabcache.Cache, cfg Config) (*Allocator, float64, error) {
	if err := cfg.validate(); err != nil {
		return nil, 0, errors.Wrap(err, "smalloc: invalid configuration")
	}

	sc, actualFactor := newSizeClass(cfg.Granularity, cfg.ObjSizeMin, cfg.AllocFactor)

	// objsize_max: the largest object still worth routing through a pool --
	// above it a dedicated slab is cheaper than forcing the biggest slab
	// order to hold fewer than mempool.MinObjCount objects.
	objSizeMax := cache.OrderSize(cache.OrderMax()) / mempool.MinObjCount

	var pools []*classPool
	prevSize := 0
	for i := 0; ; i++ {
		sz := sc.sizeByClass(i)
		if sz > objSizeMax {
			break
		}
		objSizeMin := 0
		if i > 0 {
			objSizeMin = prevSize + 1
		}
		p := &classPool{
			pool:       mempool.Create(cache, sz),
			objSizeMin: objSizeMin,
		}
		pools = append(pools, p)
		prevSize = sz
		cmn.Assertf(len(pools) <= smallMempoolMax,
			"smalloc: size-class table exceeded %d entries -- check granularity/factor/objsize_min", smallMempoolMax)
	}
	cmn.AssertMsg(len(pools) > 0,
		"smalloc: size-class table is empty -- objsize_min exceeds the largest slab order's capacity")

	groups := buildGroups(pools)

	a := &Allocator{
		cache:      cache,
		sizeClass:  sc,
		pools:      pools,
		groups:     groups,
		objSizeMax: pools[len(pools)-1].pool.ObjSize(),
		factor:     actualFactor,
		freeMode:   modeFree,
	}
	debug.Infof("smalloc: created %d size classes in %d groups, objsize_max=%d", len(pools), len(groups), a.objSizeMax)
	return a, actualFactor, nil
}
