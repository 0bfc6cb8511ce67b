// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"code.hybscloud.com/kont"
	"code.hybscloud.com/spin"
)

// Future is a one-shot cell settled from outside the loop: by another
// goroutine, a callback, or before any runtime exists at all. Expect
// converts it into an operation.
//
// Settlement is first-writer-wins; later Resolve/Reject calls are
// ignored. Halting a task that is expecting a future abandons the
// result; the external work itself is not cancelled.
type Future[T any] struct {
	mu   spin.Lock
	done bool
	v    T
	err  error
	subs []*resolver
}

// NewFuture creates an unsettled future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{}
}

// Resolve settles the future with a value.
func (f *Future[T]) Resolve(v T) {
	f.settle(v, nil)
}

// Reject settles the future with an error.
func (f *Future[T]) Reject(err error) {
	var zero T
	f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) {
	f.mu.Lock()
	if f.done {
		f.mu.Unlock()
		return
	}
	f.done = true
	f.v, f.err = v, err
	subs := f.subs
	f.subs = nil
	f.mu.Unlock()
	for _, r := range subs {
		r.fire(v, err)
	}
}

// expectOp bridges an externally-settled future into the frame: resume
// inline if already settled, otherwise park on a resolver the settler
// will fire through the mailbox.
type expectOp[T any] struct {
	kont.Phantom[T]
	f *Future[T]
}

func (o expectOp[T]) DispatchTask(fr *frame, susp *kont.Suspension[kont.Resumed]) next {
	o.f.mu.Lock()
	if o.f.done {
		v, err := o.f.v, o.f.err
		o.f.mu.Unlock()
		if err != nil {
			return throwFrom(susp, err)
		}
		return resumeWith(susp, v)
	}
	r := &resolver{sc: fr.task.sc, fr: fr}
	o.f.subs = append(o.f.subs, r)
	o.f.mu.Unlock()
	return fr.parkAt(susp, func() {
		r.cancelled = true
	})
}

// Expect suspends until f settles, then resumes with its value or
// re-raises its error.
func Expect[T any](f *Future[T]) Op[T] {
	return kont.Perform(expectOp[T]{f: f})
}

// Go runs fn on its own goroutine and expects its result. This is the
// bridge for genuinely blocking or parallel work; halting the expecting
// task abandons the result but does not stop the goroutine.
func Go[T any](fn func() (T, error)) Op[T] {
	return kont.Bind(Do(func() (*Future[T], error) {
		f := NewFuture[T]()
		go func() {
			defer func() {
				if r := recover(); r != nil {
					f.Reject(panicError(r))
				}
			}()
			v, err := fn()
			if err != nil {
				f.Reject(err)
				return
			}
			f.Resolve(v)
		}()
		return f, nil
	}), Expect[T])
}
