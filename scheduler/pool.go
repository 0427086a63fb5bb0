// Copyright The Telemetry Channel Authors
// SPDX-License-Identifier: Apache-2.0

// Package scheduler manages named, cancellable, recurring background jobs.
// Commands execute on a fixed-size worker pool so one slow job cannot starve
// the timers of the others. A Pool is explicitly constructed and owned by its
// user; there is no process-wide registry.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// task is one live registration. Identity is the task id alone.
type task struct {
	id     string
	cancel context.CancelFunc

	// running suppresses overlapping executions of the same task.
	running atomic.Bool
}

// Pool runs scheduled tasks on a bounded number of workers.
type Pool struct {
	mu      sync.Mutex
	tasks   map[string]*task
	stopped bool

	// sem bounds the number of concurrently executing commands.
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a started pool with the given number of workers.
func NewPool(workers int) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", workers)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		tasks:  make(map[string]*task),
		sem:    semaphore.NewWeighted(int64(workers)),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Schedule registers command to run after initialDelay and then every period.
// It fails when the id already has a live registration, when the command is
// nil, when the id is empty, when period is non-positive or when initialDelay
// is negative. These are programmer errors and surface synchronously.
func (p *Pool) Schedule(id string, command func(),
	initialDelay, period time.Duration) error {
	if id == "" {
		return fmt.Errorf("task id must be non-empty")
	}
	if command == nil {
		return fmt.Errorf("task %s: command must be non-nil", id)
	}
	if period <= 0 {
		return fmt.Errorf("task %s: period must be positive, got %v", id, period)
	}
	if initialDelay < 0 {
		return fmt.Errorf("task %s: initial delay must be non-negative, got %v",
			id, initialDelay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return fmt.Errorf("task %s: pool is stopped", id)
	}
	if _, exists := p.tasks[id]; exists {
		return fmt.Errorf("task %s: already scheduled", id)
	}

	ctx, cancel := context.WithCancel(p.ctx)
	t := &task{id: id, cancel: cancel}
	p.tasks[id] = t
	p.wg.Add(1)
	go p.run(ctx, t, command, initialDelay, period)
	return nil
}

// run drives the timer for one task until its context is canceled.
func (p *Pool) run(ctx context.Context, t *task, command func(),
	initialDelay, period time.Duration) {
	defer p.wg.Done()
	defer p.deregister(t)

	delay := time.NewTimer(initialDelay)
	defer delay.Stop()
	select {
	case <-ctx.Done():
		return
	case <-delay.C:
	}
	p.dispatch(ctx, t, command)

	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.dispatch(ctx, t, command)
		}
	}
}

// dispatch hands one execution of the task to the worker pool. A tick that
// arrives while a previous execution of the same task is still running is
// skipped; a fixed-rate task never overlaps itself.
func (p *Pool) dispatch(ctx context.Context, t *task, command func()) {
	if !t.running.CompareAndSwap(false, true) {
		log.Debugf("Task %s still running, skipping tick", t.id)
		return
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		t.running.Store(false)
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer t.running.Store(false)
		command()
	}()
}

// deregister removes the task from the registry, unless the id was already
// re-registered by a newer task.
func (p *Pool) deregister(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.tasks[t.id]; ok && cur == t {
		delete(p.tasks, t.id)
	}
}

// Cancel stops the task with the given id and removes it from the registry.
// Cancelling an unknown or already finished task returns false and logs; a
// race between Cancel and natural completion is an expected condition, not
// an error.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	t, ok := p.tasks[id]
	if ok {
		delete(p.tasks, id)
	}
	p.mu.Unlock()

	if !ok {
		log.Debugf("Cannot cancel task %s: not registered or already finished", id)
		return false
	}
	t.cancel()
	return true
}

// StopAll shuts the pool down: no new registrations are accepted, all task
// timers stop, and in-flight commands are waited for up to timeout. The
// registry is cleared unconditionally afterwards, even when the wait times
// out. Commands are plain functions and cannot be interrupted; a command
// still running after the timeout is logged and abandoned.
func (p *Pool) StopAll(timeout time.Duration) {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warnf("Scheduled tasks still running after %v, abandoning them", timeout)
	}

	p.mu.Lock()
	p.tasks = make(map[string]*task)
	p.mu.Unlock()
}

// Live reports whether the id currently has a live registration.
func (p *Pool) Live(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.tasks[id]
	return ok
}
