// Copyright 2026 The maskdetector Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs tasks in goroutines, with a limit on how many run at the same time.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. Create it with New.
type Pool struct {
	// maxParallelism is the limit of tasks running at the same time. If 0, tasks run inline.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
}

// New returns a Pool running up to maxParallelism tasks at a time.
// If maxParallelism < 0, it uses runtime.NumCPU(). If it is 0, tasks are run inline by WaitToStart.
func New(maxParallelism int) *Pool {
	if maxParallelism < 0 {
		maxParallelism = runtime.NumCPU()
	}
	p := &Pool{maxParallelism: maxParallelism}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// MaxParallelism returns the limit of tasks running at the same time.
func (p *Pool) MaxParallelism() int {
	return p.maxParallelism
}

// WaitToStart waits until there is a worker available and starts the task in it.
// If parallelism is disabled, it runs the task inline and returns when it is finished.
func (p *Pool) WaitToStart(task func()) {
	if p.maxParallelism == 0 {
		task()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.numRunning >= p.maxParallelism {
		p.cond.Wait()
	}
	p.numRunning++
	go func() {
		defer func() {
			p.mu.Lock()
			p.numRunning--
			p.cond.Broadcast()
			p.mu.Unlock()
		}()
		task()
	}()
}

// Wait until all started tasks are finished.
func (p *Pool) Wait() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.numRunning > 0 {
		p.cond.Wait()
	}
}
