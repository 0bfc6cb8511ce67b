// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
)

// Handle is the external face of a running task tree. Apart from
// settling a Future, it is the only part of the package that may be used
// from outside the loop goroutine.
type Handle[T any] struct {
	sc *sched
	t  *task
}

// Run creates a root task from the operation produced by factory and
// starts a dedicated single-threaded loop driving the tree. One Run is
// one isolated cooperative world; create as many as needed. A panic in
// factory becomes the root task's immediate error.
func Run[T any](factory func() Op[T]) *Handle[T] {
	program := func() (p kont.Expr[kont.Resumed]) {
		defer func() {
			if r := recover(); r != nil {
				p = erase(Fail[T](panicError(r)))
			}
		}()
		return erase(factory())
	}()
	return start[T](program)
}

// RunExpr is the Expr-world variant of Run.
func RunExpr[T any](factory func() kont.Expr[T]) *Handle[T] {
	program := func() (p kont.Expr[kont.Resumed]) {
		defer func() {
			if r := recover(); r != nil {
				p = erase(Fail[T](panicError(r)))
			}
		}()
		return kont.ExprMap(factory(), func(v T) kont.Resumed {
			return v
		})
	}()
	return start[T](program)
}

func start[T any](program kont.Expr[kont.Resumed]) *Handle[T] {
	sc := newSched()
	sc.root = sc.spawnTask(nil, program)
	go sc.loop()
	return &Handle[T]{sc: sc, t: sc.root}
}

// Await blocks the calling goroutine until the tree settles, waiting
// with adaptive backoff, and returns the root's value or error. A halted
// root yields ErrHalted.
func (h *Handle[T]) Await() (T, error) {
	var bo iox.Backoff
	for h.t.state.Load() != taskSettled {
		bo.Wait()
	}
	var zero T
	if h.t.err != nil {
		return zero, h.t.err
	}
	if v, ok := h.t.value.(T); ok {
		return v, nil
	}
	return zero, nil
}

// Halt requests cancellation of the whole tree and blocks until it has
// settled, returning the final outcome. Idempotent: halting a settled
// tree just returns its outcome.
func (h *Handle[T]) Halt() (T, error) {
	h.sc.post(hostEvent{halt: h.t})
	return h.Await()
}

// Serial returns the serial number assigned to the root task.
func (h *Handle[T]) Serial() Serial {
	return h.t.serial
}
