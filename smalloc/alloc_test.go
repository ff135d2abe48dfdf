package smalloc_test

import (
	"math/rand"
	"unsafe"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/smalloc/smalloc/mempool"
	"github.com/smalloc/smalloc/slabarena"
	"github.com/smalloc/smalloc/slabcache"
	"github.com/smalloc/smalloc/smalloc"
)

const (
	testBaseSize = 4096
	testOrderMax = 10 // 4096 << 10 == 4MiB, enough headroom for sustained single-class pressure
	gcPumpBatch  = 100 // mirrors smalloc's internal GC batch size
)

func newHarness(quota int64) *slabcache.Cache {
	arena := slabarena.NewArena(slabarena.NewQuota(quota))
	return slabcache.New(arena, testBaseSize, testOrderMax)
}

var _ = Describe("Allocator", func() {
	var cache *slabcache.Cache

	BeforeEach(func() {
		cache = newHarness(1 << 30)
	})

	It("round-trips same-size throughput (scenario 1)", func() {
		a, _, err := smalloc.NewAllocator(cache, smalloc.Config{ObjSizeMin: 12, Granularity: 8, AllocFactor: 1.05})
		Expect(err).NotTo(HaveOccurred())

		const n = 20000
		ptrs := make([]unsafe.Pointer, n)
		for i := range ptrs {
			ptrs[i] = a.Alloc(1024)
			Expect(ptrs[i]).NotTo(BeNil())
		}
		for _, p := range ptrs {
			a.Free(p, 1024)
		}

		totals := a.Stats(nil)
		Expect(totals.Used).To(BeZero())
	})

	It("round-trips random small sizes under interleaved alloc/free (scenario 2)", func() {
		a, _, err := smalloc.NewAllocator(cache, smalloc.Config{ObjSizeMin: 12, Granularity: 8, AllocFactor: 1.05})
		Expect(err).NotTo(HaveOccurred())

		type live struct {
			ptr  unsafe.Pointer
			size int
		}
		const n = 5000
		objs := make([]live, 0, n)
		randSize := func() int { return 20 + rand.Intn(81) }

		for i := 0; i < n; i++ {
			sz := randSize()
			p := a.Alloc(sz)
			Expect(p).NotTo(BeNil())
			objs = append(objs, live{p, sz})
		}
		for i := 0; i < n; i++ {
			idx := rand.Intn(len(objs))
			a.Free(objs[idx].ptr, objs[idx].size)
			objs[idx] = objs[len(objs)-1]
			objs = objs[:len(objs)-1]

			sz := randSize()
			p := a.Alloc(sz)
			Expect(p).NotTo(BeNil())
			objs = append(objs, live{p, sz})
		}
		for _, o := range objs {
			a.Free(o.ptr, o.size)
		}

		totals := a.Stats(nil)
		Expect(totals.Used).To(BeZero())
	})

	It("routes large random sizes through the large-slab fallback (scenario 3)", func() {
		// Regular slabs capped at 4096 << 2 == 16KiB put objsize_max at 4096,
		// so the 1000..10000 sizes below straddle the large-slab boundary.
		smallSlabs := slabcache.New(slabarena.NewArena(slabarena.NewQuota(1<<30)), testBaseSize, 2)
		a, _, err := smalloc.NewAllocator(smallSlabs, smalloc.Config{ObjSizeMin: 16, Granularity: 16, AllocFactor: 1.5})
		Expect(err).NotTo(HaveOccurred())

		const n = 2000
		type live struct {
			ptr  unsafe.Pointer
			size int
		}
		objs := make([]live, n)
		for i := range objs {
			sz := 1000 + rand.Intn(9001)
			p := a.Alloc(sz)
			Expect(p).NotTo(BeNil())
			objs[i] = live{p, sz}
		}
		for _, o := range objs {
			a.Free(o.ptr, o.size)
		}

		totals := a.Stats(nil)
		Expect(totals.Used).To(BeZero())
	})

	It("preserves bytes of delayed-freed objects until GC drains them (scenario 4)", func() {
		a, _, err := smalloc.NewAllocator(cache, smalloc.Config{ObjSizeMin: 12, Granularity: 8, AllocFactor: 1.05})
		Expect(err).NotTo(HaveOccurred())

		const n = 1000
		// The first word of a delayed-freed object holds the delayed-list
		// link, so the marker byte sits just past it.
		const markerOff = unsafe.Sizeof(uintptr(0))
		ptrs := make([]unsafe.Pointer, n)
		for i := range ptrs {
			ptrs[i] = a.Alloc(64)
			Expect(ptrs[i]).NotTo(BeNil())
			*(*byte)(unsafe.Add(ptrs[i], markerOff)) = byte(i)
		}

		a.SetDelayedFree(true)
		before := a.Stats(nil)
		for i := 0; i < n; i += 2 {
			a.FreeDelayed(ptrs[i], 64)
		}
		after := a.Stats(nil)
		Expect(after.Used).To(Equal(before.Used))

		for i := 0; i < n; i += 2 {
			Expect(*(*byte)(unsafe.Add(ptrs[i], markerOff))).To(Equal(byte(i)))
		}

		a.SetDelayedFree(false)
		// n/2 delayed items, gcBatch=100 per Alloc call: a handful of pumps
		// is more than enough to fully drain and fall back to FREE.
		for i := 0; i < n/gcPumpBatch+2; i++ {
			p := a.Alloc(64)
			Expect(p).NotTo(BeNil())
			a.Free(p, 64)
		}

		for i := 1; i < n; i += 2 {
			a.Free(ptrs[i], 64)
		}
		Expect(a.Stats(nil).Used).To(BeZero())
	})

	It("drains fully after sustained single-class allocation pressure (scenario 6, loose)", func() {
		a, _, err := smalloc.NewAllocator(cache, smalloc.Config{ObjSizeMin: 12, Granularity: 8, AllocFactor: 1.05})
		Expect(err).NotTo(HaveOccurred())

		var ptrs []unsafe.Pointer
		for i := 0; i < 200000; i++ {
			p := a.Alloc(16)
			Expect(p).NotTo(BeNil())
			ptrs = append(ptrs, p)
		}
		Expect(a.Stats(nil).Total).To(BeNumerically(">", 0))

		for _, p := range ptrs {
			a.Free(p, 16)
		}
		Expect(a.Stats(nil).Used).To(BeZero())
	})
})

var _ = Describe("Stats", func() {
	It("reports per-pool Stats in increasing objsize order", func() {
		cache := newHarness(1 << 28)
		a, _, err := smalloc.NewAllocator(cache, smalloc.Config{ObjSizeMin: 12, Granularity: 8, AllocFactor: 1.2})
		Expect(err).NotTo(HaveOccurred())

		var last int
		a.Stats(func(s mempool.Stats) bool {
			Expect(s.ObjSize).To(BeNumerically(">=", last))
			last = s.ObjSize
			return false
		})
	})
})
