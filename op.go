// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"time"

	"code.hybscloud.com/kont"
)

// Op is a suspendable computation producing a value of type A.
// Operations are composed with the kont combinators (Bind, Then, Map,
// Pure) and executed by Run, which drives them one effect at a time.
type Op[A any] = kont.Eff[A]

// taskDispatcher is the structural interface for task effect operations.
// DispatchTask interprets the suspended operation against the frame and
// decides how the computation proceeds: resume in the same turn, park
// until an internal or host event, push a nested program, or unwind.
type taskDispatcher interface {
	DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next
}

// erase reifies a typed operation into the Expr-world shape frames drive.
func erase[T any](op Op[T]) kont.Expr[kont.Resumed] {
	return kont.Reify(kont.Map[kont.Resumed, T, kont.Resumed](op, func(v T) kont.Resumed {
		return v
	}))
}

// typed recovers the static result type after type-erased dispatch.
// A resumption that does not carry the result type — a forever-suspend
// short-circuited by halt resumes with a placeholder — becomes the zero
// value.
func typed[T any](m Op[kont.Resumed]) Op[T] {
	return kont.Map[kont.Resumed, kont.Resumed, T](m, func(v kont.Resumed) T {
		if tv, ok := v.(T); ok {
			return tv
		}
		var zero T
		return zero
	})
}

// unit is the placeholder resumption for suspension points that carry no
// value. Never resume with nil: the typed continuation asserts on it.
var unit kont.Resumed = struct{}{}

// suspendOp is the distinguished forever-suspend instruction.
// While the task is halting it resumes immediately instead of parking,
// so cleanup blocks cannot deadlock a halt.
type suspendOp struct {
	kont.Phantom[kont.Resumed]
}

func (suspendOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	if f.task.halting() {
		return resumeWith(susp, unit)
	}
	return f.parkAt(susp, nil)
}

// Suspend suspends forever. The only ways out are a halt of the
// surrounding task or a failure elsewhere in the tree.
func Suspend[T any]() Op[T] {
	return typed[T](kont.Perform(suspendOp{}))
}

// sleepOp parks the frame on a host timer. Halt stops the timer before
// unparking, so a cancelled sleep never fires into the tree.
type sleepOp struct {
	kont.Phantom[struct{}]
	d time.Duration
}

func (o sleepOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	if o.d <= 0 {
		return resumeWith(susp, struct{}{})
	}
	r := &resolver{sc: f.task.sc, fr: f}
	tm := time.AfterFunc(o.d, func() {
		r.fire(struct{}{}, nil)
	})
	return f.parkAt(susp, func() {
		r.cancelled = true
		tm.Stop()
	})
}

// Sleep pauses the current task for d. Unlike Suspend it is honoured
// inside cleanup blocks of a halting task.
func Sleep(d time.Duration) Op[struct{}] {
	return kont.Perform(sleepOp{d: d})
}

// actionOp runs a synchronous step and resumes (or unwinds) in the same
// turn.
type actionOp struct {
	kont.Phantom[kont.Resumed]
	f func() (kont.Resumed, error)
}

func (o actionOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	v, err := o.f()
	if err != nil {
		return throwFrom(susp, err)
	}
	if v == nil {
		v = unit
	}
	return resumeWith(susp, v)
}

// Do lifts a plain function into an operation. A non-nil error unwinds at
// this point; a panic in f is recovered and raised the same way.
func Do[T any](f func() (T, error)) Op[T] {
	return typed[T](kont.Perform(actionOp{f: func() (v kont.Resumed, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
		}()
		t, e := f()
		if e != nil {
			return nil, e
		}
		return t, nil
	}}))
}

// Fail raises err at this point in the computation.
func Fail[T any](err error) Op[T] {
	return typed[T](kont.Perform(actionOp{f: func() (kont.Resumed, error) {
		return nil, err
	}}))
}

// callOp delegates to another operation in a nested scope segment.
// Results and errors propagate at the call site; errors are catchable.
type callOp struct {
	kont.Phantom[kont.Resumed]
	body kont.Expr[kont.Resumed]
}

func (o callOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	return f.pushSeg(susp, &segment{}, o.body)
}

// Call runs op to completion inline, in its own scope segment.
// Cleanup registered inside op is confined to op's extent.
func Call[T any](op Op[T]) Op[T] {
	return typed[T](kont.Perform(callOp{body: erase(op)}))
}

// catchOp delegates to body and routes its error, if any, to handler.
type catchOp struct {
	kont.Phantom[kont.Resumed]
	body    kont.Expr[kont.Resumed]
	handler func(error) kont.Expr[kont.Resumed]
}

func (o catchOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	return f.pushSeg(susp, &segment{catch: o.handler}, o.body)
}

// Catch runs body; if it raises an error, handler runs in its place and
// its result becomes the result of the whole operation. Works across
// suspension points. Halt is not an error and is never caught.
func Catch[T any](body Op[T], handler func(error) Op[T]) Op[T] {
	return typed[T](kont.Perform(catchOp{
		body: erase(body),
		handler: func(err error) kont.Expr[kont.Resumed] {
			return erase(handler(err))
		},
	}))
}

// ensureOp delegates to body with a cleanup block pre-registered on the
// segment.
type ensureOp struct {
	kont.Phantom[kont.Resumed]
	body    kont.Expr[kont.Resumed]
	cleanup func() kont.Expr[kont.Resumed]
}

func (o ensureOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	return f.pushSeg(susp, &segment{
		cleanups: []func() kont.Expr[kont.Resumed]{o.cleanup},
	}, o.body)
}

// Ensure runs body and then cleanup on every exit path: return, error,
// and halt. Cleanup is a full operation; it may suspend and spawn. An
// error raised by cleanup replaces the pending outcome.
func Ensure[T any](body Op[T], cleanup func() Op[struct{}]) Op[T] {
	return typed[T](kont.Perform(ensureOp{
		body: erase(body),
		cleanup: func() kont.Expr[kont.Resumed] {
			return erase(cleanup())
		},
	}))
}

// deferOp registers a cleanup block on the innermost open segment.
type deferOp struct {
	kont.Phantom[struct{}]
	cleanup func() kont.Expr[kont.Resumed]
}

func (o deferOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	s := f.top()
	// The cleanup list is a stack popped from the end, so a cleanup
	// registered while cleanups are already draining runs next.
	s.cleanups = append(s.cleanups, o.cleanup)
	return resumeWith(susp, struct{}{})
}

// Defer registers cleanup to run when the enclosing segment exits, in
// LIFO order with other registered cleanups.
func Defer(cleanup func() Op[struct{}]) Op[struct{}] {
	return kont.Perform(deferOp{cleanup: func() kont.Expr[kont.Resumed] {
		return erase(cleanup())
	}})
}

// acquireOp runs an acquisition in a segment that, on success, registers
// the release closure on the owning task's resource list.
type acquireOp struct {
	kont.Phantom[kont.Resumed]
	acq kont.Expr[kont.Resumed]
	rel func(kont.Resumed) kont.Expr[kont.Resumed]
}

func (o acquireOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	return f.pushSeg(susp, &segment{resource: o.rel}, o.acq)
}

// Acquire obtains a resource and registers its release with the owning
// task. Releases run in reverse acquisition order before the task
// settles, on every exit path. If acq fails, nothing is registered.
func Acquire[T any](acq Op[T], release func(T) Op[struct{}]) Op[T] {
	return typed[T](kont.Perform(acquireOp{
		acq: erase(acq),
		rel: func(v kont.Resumed) kont.Expr[kont.Resumed] {
			var tv T
			if v != nil {
				tv = v.(T)
			}
			return erase(release(tv))
		},
	}))
}

// spawnOp creates a child task and resumes the parent with its handle in
// the same turn.
type spawnOp struct {
	kont.Phantom[*task]
	body kont.Expr[kont.Resumed]
}

func (o spawnOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	child := f.task.sc.spawnTask(f.task, o.body)
	return resumeWith(susp, child)
}

// Spawn starts op as a child of the current task and returns its handle
// without waiting for it. The child is torn down with the parent: if the
// parent settles first, the child is halted; if the child fails, the
// failure interrupts the parent.
func Spawn[T any](op Op[T]) Op[*Task[T]] {
	return kont.Map[kont.Resumed, *task, *Task[T]](kont.Perform(spawnOp{body: erase(op)}), func(t *task) *Task[T] {
		return &Task[T]{t: t}
	})
}

// awaitOp parks the caller until the target task settles, then resumes
// with its value or re-raises its error at the await point.
type awaitOp struct {
	kont.Phantom[kont.Resumed]
	target *task
}

func (o awaitOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	t := o.target
	if t.settled() {
		if t.err != nil {
			return throwFrom(susp, t.err)
		}
		return resumeWith(susp, t.value)
	}
	w := &waiter{fr: f}
	t.awaiters = append(t.awaiters, w)
	return f.parkAt(susp, func() {
		w.cancelled = true
	})
}

// haltOp requests cancellation of the target and parks the caller until
// the target has settled. Idempotent: a settled target resolves
// immediately, a halting one just gains another awaiter.
type haltOp struct {
	kont.Phantom[struct{}]
	target *task
}

func (o haltOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	t := o.target
	if t.settled() {
		return resumeWith(susp, struct{}{})
	}
	w := &waiter{fr: f, halt: true}
	t.awaiters = append(t.awaiters, w)
	// Deferred to a microtask: the target may be this frame's own task
	// or an ancestor, and interrupting mid-dispatch would tear down the
	// very frame being driven.
	f.task.sc.later(func() {
		t.interrupt(ErrHalted)
	})
	return f.parkAt(susp, func() {
		w.cancelled = true
	})
}

// selfOp resumes with the current task.
type selfOp struct {
	kont.Phantom[*task]
}

func (selfOp) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	return resumeWith(susp, f.task)
}

// Self returns the handle of the task executing the operation. The
// handle's await value is type-erased; Self exists chiefly so a task can
// hand its own handle to children for halt coordination.
func Self() Op[*Task[kont.Resumed]] {
	return kont.Map[kont.Resumed, *task, *Task[kont.Resumed]](kont.Perform(selfOp{}), func(t *task) *Task[kont.Resumed] {
		return &Task[kont.Resumed]{t: t}
	})
}
