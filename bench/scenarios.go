package bench

import (
	"math/rand"
	"sync"
	"time"
	"unsafe"

	"github.com/smalloc/smalloc/cmn"
	"github.com/smalloc/smalloc/mempool"
	"github.com/smalloc/smalloc/slabarena"
	"github.com/smalloc/smalloc/slabcache"
	"github.com/smalloc/smalloc/smalloc"
)

// Config parameterizes the harness every scenario in this file builds its
// own Allocator over, mirroring smalloc.Config plus the slab cache shape.
type Config struct {
	ObjSizeMin  int
	Granularity int
	AllocFactor float64
	BaseSize    int
	OrderMax    int
	Quota       int64
}

func newAllocator(cfg Config) (*smalloc.Allocator, float64) {
	arena := slabarena.NewArena(slabarena.NewQuota(cfg.Quota))
	return newAllocatorOverArena(arena, cfg)
}

func newAllocatorOverArena(arena *slabarena.Arena, cfg Config) (*smalloc.Allocator, float64) {
	cache := slabcache.New(arena, cfg.BaseSize, cfg.OrderMax)
	a, actual, err := smalloc.NewAllocator(cache, smalloc.Config{
		ObjSizeMin:  cfg.ObjSizeMin,
		Granularity: cfg.Granularity,
		AllocFactor: cfg.AllocFactor,
	})
	if err != nil {
		panic(err)
	}
	return a, actual
}

// SameSizeThroughput allocates n objects of a single size, then frees them
// all.
func SameSizeThroughput(cfg Config, n int, objSize int) Result {
	a, actual := newAllocator(cfg)
	start := time.Now()

	ptrs := make([]unsafe.Pointer, n)
	for i := range ptrs {
		ptrs[i] = a.Alloc(objSize)
	}
	for _, p := range ptrs {
		a.Free(p, objSize)
	}

	return Result{Name: "same-size", Allocs: int64(n), Frees: int64(n), Elapsed: time.Since(start),
		Totals: a.Stats(nil), ActualFc: actual}
}

// RandomSizeChurn pre-allocates n objects with sizes drawn uniformly from
// [lo, hi], then churns n more alloc/free pairs against random victims
// before freeing everything that remains.
func RandomSizeChurn(cfg Config, n int, lo, hi int) Result {
	a, actual := newAllocator(cfg)
	start := time.Now()

	type live struct {
		ptr  unsafe.Pointer
		size int
	}
	randSize := func() int { return lo + rand.Intn(hi-lo+1) }

	objs := make([]live, 0, n)
	var allocs, frees int64
	for i := 0; i < n; i++ {
		sz := randSize()
		objs = append(objs, live{a.Alloc(sz), sz})
		allocs++
	}
	for i := 0; i < n; i++ {
		idx := rand.Intn(len(objs))
		a.Free(objs[idx].ptr, objs[idx].size)
		frees++
		objs[idx] = objs[len(objs)-1]
		objs = objs[:len(objs)-1]

		sz := randSize()
		objs = append(objs, live{a.Alloc(sz), sz})
		allocs++
	}
	for _, o := range objs {
		a.Free(o.ptr, o.size)
		frees++
	}

	return Result{Name: "random-churn", Allocs: allocs, Frees: frees, Elapsed: time.Since(start),
		Totals: a.Stats(nil), ActualFc: actual}
}

// DelayedFreeSnapshot delayed-frees every other object of n, then drains
// via COLLECT_GARBAGE before freeing the rest.
func DelayedFreeSnapshot(cfg Config, n int, objSize int) Result {
	a, actual := newAllocator(cfg)
	start := time.Now()

	ptrs := make([]unsafe.Pointer, n)
	for i := range ptrs {
		ptrs[i] = a.Alloc(objSize)
	}

	a.SetDelayedFree(true)
	var frees int64
	for i := 0; i < n; i += 2 {
		a.FreeDelayed(ptrs[i], objSize)
		frees++
	}
	a.SetDelayedFree(false)

	const gcBatch = 100
	for i := 0; i < n/gcBatch+2; i++ {
		p := a.Alloc(objSize)
		a.Free(p, objSize)
	}
	for i := 1; i < n; i += 2 {
		a.Free(ptrs[i], objSize)
		frees++
	}

	return Result{Name: "delayed-free", Allocs: int64(n), Frees: frees, Elapsed: time.Since(start),
		Totals: a.Stats(nil), ActualFc: actual}
}

// ExponentialSweep allocates one object per class index across the whole
// table (at most classCount of them, smallest classes first), then frees in
// the same order.
func ExponentialSweep(cfg Config, classCount int) Result {
	a, actual := newAllocator(cfg)

	// Stats walks the pools in class-index order, one pool per class.
	var sizes []int
	a.Stats(func(s mempool.Stats) bool {
		sizes = append(sizes, s.ObjSize)
		return len(sizes) >= classCount
	})

	start := time.Now()
	ptrs := make([]unsafe.Pointer, len(sizes))
	for i, size := range sizes {
		ptrs[i] = a.Alloc(size)
	}
	for i, p := range ptrs {
		a.Free(p, sizes[i])
	}

	return Result{Name: "exponential-sweep", Allocs: int64(len(ptrs)), Frees: int64(len(ptrs)),
		Elapsed: time.Since(start), Totals: a.Stats(nil), ActualFc: actual}
}

// ConcurrentAllocators runs workers independent, single-writer Allocators
// concurrently, each over its own Cache but sharing one quota-bounded
// Arena -- the sole primitive meant to be shared across allocator
// instances. cmn.LimitedWaitGroup bounds how many workers run at once.
func ConcurrentAllocators(cfg Config, workers, objsPerWorker int, objSize int) Result {
	arena := slabarena.NewArena(slabarena.NewQuota(cfg.Quota))
	start := time.Now()

	var allocs, frees int64
	var mu sync.Mutex
	wg := cmn.NewLimitedWaitGroup(workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, _ := newAllocatorOverArena(arena, cfg)
			ptrs := make([]unsafe.Pointer, objsPerWorker)
			for i := range ptrs {
				ptrs[i] = a.Alloc(objSize)
			}
			for _, p := range ptrs {
				a.Free(p, objSize)
			}
			mu.Lock()
			allocs += int64(objsPerWorker)
			frees += int64(objsPerWorker)
			mu.Unlock()
		}()
	}
	wg.Wait()

	return Result{Name: "concurrent-allocators", Allocs: allocs, Frees: frees, Elapsed: time.Since(start)}
}
