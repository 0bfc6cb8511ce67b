// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"errors"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
)

// Task states, stored in an atomic word so external awaiters can observe
// settlement without entering the scheduler goroutine.
const (
	taskRunning uint32 = iota
	taskHalting
	taskSettled
)

// waiter is an in-tree awaiter parked on a task's settlement. Halt
// waiters resolve with no value regardless of the target's outcome;
// plain waiters receive the value or re-raise the error.
type waiter struct {
	fr        *frame
	halt      bool
	cancelled bool
}

// resourceEntry pairs an acquired value with its release operation.
type resourceEntry struct {
	value   kont.Resumed
	release func(kont.Resumed) kont.Expr[kont.Resumed]
}

// task is a scheduled, live instance of an operation: identity, parent
// link, ordered children, one frame, and a settlement outcome. All
// fields except state are owned by the scheduler goroutine; state,
// value and err become readable cross-goroutine once state is stored
// as taskSettled.
type task struct {
	sc        *sched
	serial    Serial
	parent    *task
	children  []*task
	fr        *frame
	state     atomix.Uint32
	value     kont.Resumed
	err       error
	awaiters  []*waiter
	resources []resourceEntry

	// shutdown machine
	sdActive   bool
	sdInjected bool
	cause      error
	frValue    kont.Resumed
	frDone     bool
}

func (t *task) halting() bool {
	return t.state.Load() == taskHalting
}

func (t *task) settled() bool {
	return t.state.Load() == taskSettled
}

func (t *task) addResource(v kont.Resumed, release func(kont.Resumed) kont.Expr[kont.Resumed]) {
	t.resources = append(t.resources, resourceEntry{value: v, release: release})
}

// mergeHalt records cancellation as the settlement cause unless a real
// error is already pending. Cause lattice: none < halted < error.
// A task whose body has already returned keeps its value: halting a
// completing task only awaits its settlement.
func (t *task) mergeHalt() {
	if t.cause == nil && !t.frDone && !t.fr.completing() {
		t.cause = ErrHalted
	}
}

// mergeChildErr records a child's escalated error. The first real error
// wins; later simultaneous failures are suppressed (their own cleanup
// still runs).
func (t *task) mergeChildErr(err error) {
	if t.cause == nil || errors.Is(t.cause, ErrHalted) {
		t.cause = err
	}
}

// interrupt begins (or joins) the shutdown of a running task. cause is
// ErrHalted for an explicit halt or parent cascade, or a child's error.
func (t *task) interrupt(cause error) {
	if t.settled() {
		return
	}
	if errors.Is(cause, ErrHalted) {
		t.mergeHalt()
	} else {
		t.mergeChildErr(cause)
	}
	if t.sdActive {
		return
	}
	t.sdActive = true
	t.state.Store(taskHalting)
	t.advanceShutdown()
}

// frameDone receives the root frame's final value or unwound cause and
// moves the task into teardown: remaining children are halted, resources
// released, and the task settles.
func (t *task) frameDone(v kont.Resumed, err error) {
	t.frDone = true
	t.frValue = v
	if err != nil {
		if errors.Is(err, ErrHalted) {
			// The frame unwound with the halt marker: settle Halted
			// unless a real error is already pending.
			if t.cause == nil {
				t.cause = ErrHalted
			}
		} else {
			// The frame's unwound cause dominates: it already reflects
			// cleanup errors replacing earlier causes.
			t.cause = err
		}
	}
	if !t.sdActive {
		t.sdActive = true
		if t.cause != nil {
			t.state.Store(taskHalting)
		}
	}
	t.advanceShutdown()
}

// advanceShutdown is the halt protocol proper. It is re-entered on every
// relevant event (child settled, frame finished, release finished) and
// re-checks children after the frame unwinds, because cleanup may spawn.
func (t *task) advanceShutdown() {
	for {
		if n := len(t.children); n > 0 {
			c := t.children[n-1]
			if c.settled() {
				t.children = t.children[:n-1]
				continue
			}
			c.interrupt(ErrHalted)
			return // resumed by childSettled
		}
		if !t.frDone {
			if !t.sdInjected {
				t.sdInjected = true
				cause := t.cause
				if cause == nil {
					cause = ErrHalted
				}
				t.fr.inject(cause)
			}
			return // resumed by frameDone
		}
		if len(t.children) > 0 {
			continue
		}
		if n := len(t.resources); n > 0 {
			e := t.resources[n-1]
			t.resources = t.resources[:n-1]
			t.fr.begin(e.release(e.value), func(_ kont.Resumed, err error) {
				if err != nil && !errors.Is(err, ErrHalted) {
					// Release errors dominate like any cleanup error.
					t.cause = err
				}
				t.advanceShutdown()
			})
			return // resumed by the release program's completion
		}
		t.settle()
		return
	}
}

// settle finalises the task: outcome published, awaiters resolved in
// registration order, parent notified.
func (t *task) settle() {
	if t.cause == nil {
		t.value = t.frValue
		if t.value == nil {
			t.value = unit
		}
	} else {
		t.err = t.cause
	}
	t.state.Store(taskSettled)
	ws := t.awaiters
	t.awaiters = nil
	for _, w := range ws {
		if w.cancelled {
			continue
		}
		switch {
		case w.halt:
			w.fr.resumeValue(struct{}{})
		case t.err != nil:
			w.fr.resumeThrow(t.err)
		default:
			w.fr.resumeValue(t.value)
		}
	}
	if p := t.parent; p != nil {
		p.childSettled(t)
	}
}

// childSettled removes c from the child list and escalates its error, if
// any. A child that settled Halted is not an error from the parent's
// point of view.
func (t *task) childSettled(c *task) {
	for i, x := range t.children {
		if x == c {
			t.children = append(t.children[:i], t.children[i+1:]...)
			break
		}
	}
	if t.settled() {
		return
	}
	if c.err != nil && !errors.Is(c.err, ErrHalted) {
		if !t.sdActive {
			t.interrupt(c.err)
			return
		}
		t.mergeChildErr(c.err)
	}
	if t.sdActive {
		t.advanceShutdown()
	}
}

// Task is the in-tree handle of a spawned task.
type Task[T any] struct {
	t *task
}

// Await suspends until the task settles, then resumes with its value or
// re-raises its error (ErrHalted for a halted task) at the await point.
func (h *Task[T]) Await() Op[T] {
	return typed[T](kont.Perform(awaitOp{target: h.t}))
}

// Halt requests cancellation and completes once the task has settled.
// Idempotent; the target's outcome is not re-raised here.
func (h *Task[T]) Halt() Op[struct{}] {
	return kont.Perform(haltOp{target: h.t})
}

// Serial returns the serial number assigned to this task.
func (h *Task[T]) Serial() Serial {
	return h.t.serial
}
