// Package cmn provides common low-level types and utilities shared by the
// allocator packages.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "sync"

type (
	// DynSemaphore implements a semaphore whose size can change during
	// usage. Used by the benchmark harness to bound the number of
	// concurrently running allocator workers.
	DynSemaphore struct {
		size int
		cur  int
		c    *sync.Cond
		mu   sync.Mutex
	}

	// LimitedWaitGroup combines a standard wait group with a semaphore to
	// limit the number of goroutines created at once.
	LimitedWaitGroup struct {
		wg   *sync.WaitGroup
		sema *DynSemaphore
	}
)

func NewDynSemaphore(n int) *DynSemaphore {
	sema := &DynSemaphore{size: n}
	sema.c = sync.NewCond(&sema.mu)
	return sema
}

func (s *DynSemaphore) Size() int {
	s.mu.Lock()
	size := s.size
	s.mu.Unlock()
	return size
}

func (s *DynSemaphore) SetSize(n int) {
	Assert(n >= 1)
	s.mu.Lock()
	s.size = n
	s.mu.Unlock()
}

func (s *DynSemaphore) Acquire(cnts ...int) {
	cnt := 1
	if len(cnts) > 0 {
		cnt = cnts[0]
	}
	s.mu.Lock()
check:
	if s.cur+cnt <= s.size {
		s.cur += cnt
		s.mu.Unlock()
		return
	}
	s.c.Wait()
	goto check
}

func (s *DynSemaphore) Release(cnts ...int) {
	cnt := 1
	if len(cnts) > 0 {
		cnt = cnts[0]
	}
	s.mu.Lock()
	Assert(s.cur >= cnt)
	s.cur -= cnt
	s.c.Signal()
	s.mu.Unlock()
}

func NewLimitedWaitGroup(n int) *LimitedWaitGroup {
	return &LimitedWaitGroup{wg: &sync.WaitGroup{}, sema: NewDynSemaphore(n)}
}

func (wg *LimitedWaitGroup) Add(n int) {
	wg.wg.Add(n)
	wg.sema.Acquire(n)
}

func (wg *LimitedWaitGroup) Done() {
	wg.wg.Done()
	wg.sema.Release()
}

func (wg *LimitedWaitGroup) Wait() {
	wg.wg.Wait()
}
