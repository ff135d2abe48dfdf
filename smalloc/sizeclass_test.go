package smalloc

import (
	"fmt"
	"math"
	"testing"
)

// blocksForTest bounds how many effSize-wide blocks of classes each property
// test walks -- enough to cross well into the geometric region for every
// case below while class sizes stay far below int overflow (sizes double
// once per block).
const blocksForTest = 16

func classCountForTest(sc *sizeClass) int { return blocksForTest * sc.effSize }

func TestSizeClassRoundTrip(t *testing.T) {
	for _, tc := range sizeClassCases() {
		sc, _ := newSizeClass(tc.granularity, tc.minAlloc, tc.factor)
		for i := 0; i < classCountForTest(sc); i++ {
			s := sc.sizeByClass(i)
			if got := sc.classBySize(s); got != i {
				t.Fatalf("%s: classBySize(sizeByClass(%d)=%d) = %d, want %d", tc.name, i, s, got, i)
			}
		}
	}
}

func TestSizeClassMonotonic(t *testing.T) {
	for _, tc := range sizeClassCases() {
		sc, _ := newSizeClass(tc.granularity, tc.minAlloc, tc.factor)
		prev := sc.sizeByClass(0)
		for i := 1; i < classCountForTest(sc); i++ {
			cur := sc.sizeByClass(i)
			if cur <= prev {
				t.Fatalf("%s: sizeByClass not strictly increasing at %d: %d <= %d", tc.name, i, cur, prev)
			}
			prev = cur
		}

		prevCls := sc.classBySize(0)
		for s := 1; s < sc.sizeByClass(classCountForTest(sc)); s++ {
			cls := sc.classBySize(s)
			if cls < prevCls {
				t.Fatalf("%s: classBySize not nondecreasing at size %d: %d < %d", tc.name, s, cls, prevCls)
			}
			prevCls = cls
		}
	}
}

func TestSizeClassCoverage(t *testing.T) {
	for _, tc := range sizeClassCases() {
		sc, _ := newSizeClass(tc.granularity, tc.minAlloc, tc.factor)
		objSizeMax := sc.sizeByClass(classCountForTest(sc))
		for s := tc.minAlloc; s <= objSizeMax; s += tc.granularity {
			i := sc.classBySize(s)
			if sc.sizeByClass(i) < s {
				t.Fatalf("%s: sizeByClass(classBySize(%d)=%d) = %d < %d", tc.name, s, i, sc.sizeByClass(i), s)
			}
		}
	}
}

func TestSizeClassLinearRegion(t *testing.T) {
	for _, tc := range sizeClassCases() {
		sc, _ := newSizeClass(tc.granularity, tc.minAlloc, tc.factor)
		for i := 0; i < sc.effSize; i++ {
			diff := sc.sizeByClass(i+1) - sc.sizeByClass(i)
			if diff != tc.granularity {
				t.Fatalf("%s: linear region step at %d = %d, want %d", tc.name, i, diff, tc.granularity)
			}
		}
	}
}

func TestSizeClassFactorBound(t *testing.T) {
	for _, tc := range sizeClassCases() {
		sc, actual := newSizeClass(tc.granularity, tc.minAlloc, tc.factor)
		sqrtPhi := math.Sqrt(actual)
		lo, hi := actual/sqrtPhi, actual*sqrtPhi

		for i := sc.effSize; i < classCountForTest(sc); i++ {
			ratio := float64(sc.sizeByClass(i+1)) / float64(sc.sizeByClass(i))
			if ratio < lo-1e-9 || ratio > hi+1e-9 {
				t.Fatalf("%s: ratio at %d = %f, want in [%f, %f]", tc.name, i, ratio, lo, hi)
			}
		}
	}
}

type sizeClassCase struct {
	name        string
	granularity int
	minAlloc    int
	factor      float64
}

func sizeClassCases() []sizeClassCase {
	var cases []sizeClassCase
	for _, g := range []int{1, 4} {
		for _, f := range []float64{1.01, 1.05, 1.5, 1.99} {
			minAlloc := g
			if minAlloc < g {
				minAlloc = g
			}
			cases = append(cases, sizeClassCase{
				name:        fmt.Sprintf("g%d_f%.2f", g, f),
				granularity: g,
				minAlloc:    minAlloc,
				factor:      f,
			})
		}
	}
	return cases
}
