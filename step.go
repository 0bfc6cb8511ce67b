// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"errors"

	"code.hybscloud.com/kont"
)

// maxTurnSteps bounds consecutive synchronous resumes on one frame.
// A frame that keeps making inline progress is re-enqueued after this
// many steps so host events and sibling frames interleave.
const maxTurnSteps = 128

type nextKind uint8

const (
	nextIdle nextKind = iota
	nextStart
	nextResume
	nextThrow
	nextPark
	nextDone
)

// next is the driver's continuation: what the frame does on its next
// step. Dispatch methods construct it via resumeWith, throwFrom,
// frame.pushSeg and frame.parkAt.
type next struct {
	kind  nextKind
	expr  kont.Expr[kont.Resumed]
	susp  *kont.Suspension[kont.Resumed]
	value kont.Resumed
	cause error
}

func resumeWith(susp *kont.Suspension[kont.Resumed], v kont.Resumed) next {
	return next{kind: nextResume, susp: susp, value: v}
}

func throwFrom(susp *kont.Suspension[kont.Resumed], err error) next {
	susp.Discard()
	return next{kind: nextThrow, cause: err}
}

type segPhase uint8

const (
	segBody segPhase = iota
	segCleanup
	segCatch
)

// segment is one delimited extent on a frame: a body computation, its
// LIFO cleanup blocks, an optional catch handler, and an optional
// resource registration. Cleanups run on every exit path of the body.
type segment struct {
	susp     *kont.Suspension[kont.Resumed]
	catch    func(error) kont.Expr[kont.Resumed]
	cleanups []func() kont.Expr[kont.Resumed]
	resource func(kont.Resumed) kont.Expr[kont.Resumed]
	phase    segPhase
	value    kont.Resumed
	cause    error
	noCatch  bool
}

// frame drives one reified computation for its owning task.
// All fields are owned by the scheduler goroutine.
type frame struct {
	task       *task
	stack      []*segment
	park       *kont.Suspension[kont.Resumed]
	cancelPark func()
	queued     bool
	pending    next
	finished   bool
	// injectPending holds a teardown cause that arrived while the frame
	// was inside a cleanup block; it is delivered when control would
	// otherwise return to forward code.
	injectPending error
	done          func(v kont.Resumed, err error)
}

// begin arms the frame with a fresh program and enqueues it. The done
// callback receives the program's final value or unwound cause after
// every segment has finished.
func (f *frame) begin(program kont.Expr[kont.Resumed], done func(kont.Resumed, error)) {
	f.finished = false
	f.done = done
	f.stack = append(f.stack[:0], &segment{})
	f.park = nil
	f.cancelPark = nil
	f.injectPending = nil
	f.pending = next{kind: nextStart, expr: program}
	f.task.sc.enqueue(f)
}

func (f *frame) top() *segment {
	return f.stack[len(f.stack)-1]
}

// completing reports whether the frame's root body has already
// returned: only cleanup and resource work remains, so a halt can no
// longer change the outcome.
func (f *frame) completing() bool {
	return f.finished || (len(f.stack) > 0 && f.stack[0].phase != segBody)
}

// inCleanup reports whether any segment is currently unwinding its
// cleanup blocks, i.e. the frame is inside a cleanup's dynamic extent.
func (f *frame) inCleanup() bool {
	for _, s := range f.stack {
		if s.phase == segCleanup {
			return true
		}
	}
	return false
}

// unpark clears the frame's park state and returns the parked
// suspension, or nil if the frame was not parked.
func (f *frame) unpark() *kont.Suspension[kont.Resumed] {
	susp := f.park
	f.park = nil
	f.cancelPark = nil
	return susp
}

// parkAt records the suspension and its cancellation hook; the frame
// stays off the run queue until an event resumes or injects it.
func (f *frame) parkAt(susp *kont.Suspension[kont.Resumed], cancel func()) next {
	f.park = susp
	f.cancelPark = cancel
	return next{kind: nextPark}
}

// pushSeg opens a nested segment whose result resumes susp, and starts
// its body.
func (f *frame) pushSeg(susp *kont.Suspension[kont.Resumed], s *segment, body kont.Expr[kont.Resumed]) next {
	s.susp = susp
	f.stack = append(f.stack, s)
	return next{kind: nextStart, expr: body}
}

// resumeValue delivers a value to the parked frame and enqueues it.
func (f *frame) resumeValue(v kont.Resumed) {
	susp := f.unpark()
	if susp == nil {
		return
	}
	f.pending = resumeWith(susp, v)
	f.task.sc.enqueue(f)
}

// resumeThrow delivers an error to the parked frame and enqueues it.
func (f *frame) resumeThrow(err error) {
	susp := f.unpark()
	if susp == nil {
		return
	}
	f.pending = throwFrom(susp, err)
	f.task.sc.enqueue(f)
}

// inject delivers a teardown cause (halt or escalated child failure)
// into the frame at its current point. Pre-existing segments lose their
// catch handlers: teardown drives cleanup, not recovery. If the frame is
// inside a cleanup block the cause is held until forward code would
// resume, so cleanup always runs to completion.
func (f *frame) inject(cause error) {
	if f.finished {
		return
	}
	if f.inCleanup() {
		if f.injectPending == nil {
			f.injectPending = cause
		}
		return
	}
	for _, s := range f.stack {
		s.noCatch = true
	}
	if f.park != nil {
		cancel := f.cancelPark
		susp := f.unpark()
		if cancel != nil {
			cancel()
		}
		susp.Discard()
		f.pending = next{kind: nextThrow, cause: cause}
		f.task.sc.enqueue(f)
		return
	}
	// Queued with a pending step: override it. A pending body start is
	// forward code that must not run; a pending resume is a suspension
	// point the cause lands on.
	if f.pending.kind == nextResume {
		f.pending.susp.Discard()
	}
	f.pending = next{kind: nextThrow, cause: cause}
	f.task.sc.enqueue(f)
}

// drive advances the frame until it parks, finishes, or exhausts its
// turn budget. Called only by the scheduler loop.
func (f *frame) drive() {
	n := f.pending
	f.pending = next{}
	for steps := 0; ; steps++ {
		if steps >= maxTurnSteps && (n.kind == nextStart || n.kind == nextResume) {
			f.pending = n
			f.task.sc.enqueue(f)
			return
		}
		switch n.kind {
		case nextStart:
			v, susp := kont.StepExpr(n.expr)
			n = f.afterStep(v, susp)
		case nextResume:
			v, susp := n.susp.Resume(n.value)
			n = f.afterStep(v, susp)
		case nextThrow:
			n = f.failed(n.cause)
		default:
			return
		}
	}
}

func (f *frame) afterStep(v kont.Resumed, susp *kont.Suspension[kont.Resumed]) next {
	if susp == nil {
		return f.completed(v)
	}
	d, ok := susp.Op().(taskDispatcher)
	if !ok {
		panic("scope: unhandled effect in frame")
	}
	return d.DispatchTask(f, susp)
}

// completed handles normal completion of the top segment's current
// program.
func (f *frame) completed(v kont.Resumed) next {
	s := f.top()
	switch s.phase {
	case segBody:
		s.value, s.cause = v, nil
		return f.startCleanups(s)
	case segCleanup:
		return f.nextCleanup(s)
	default: // segCatch
		s.value, s.cause = v, nil
		return f.finishSeg(s)
	}
}

// failed handles an error raised by the top segment's current program.
func (f *frame) failed(cause error) next {
	s := f.top()
	switch s.phase {
	case segBody:
		s.cause = cause
		return f.startCleanups(s)
	case segCleanup:
		// A cleanup error replaces the pending cause, halt included.
		s.cause = cause
		return f.nextCleanup(s)
	default: // segCatch
		s.cause = cause
		return f.finishSeg(s)
	}
}

func (f *frame) startCleanups(s *segment) next {
	s.phase = segCleanup
	return f.nextCleanup(s)
}

// nextCleanup pops the cleanup stack: LIFO, and cleanups registered
// while draining run before older ones.
func (f *frame) nextCleanup(s *segment) next {
	if n := len(s.cleanups); n > 0 {
		c := s.cleanups[n-1]
		s.cleanups = s.cleanups[:n-1]
		return next{kind: nextStart, expr: c()}
	}
	if s.cause != nil && s.catch != nil && !s.noCatch &&
		f.injectPending == nil && !errors.Is(s.cause, ErrHalted) {
		h := s.catch
		s.catch = nil
		s.phase = segCatch
		return next{kind: nextStart, expr: h(s.cause)}
	}
	return f.finishSeg(s)
}

// finishSeg closes the top segment and hands its outcome to the
// enclosing one, or to the done callback at the root.
func (f *frame) finishSeg(s *segment) next {
	f.stack = f.stack[:len(f.stack)-1]
	if s.cause == nil && s.resource != nil {
		f.task.addResource(s.value, s.resource)
	}
	if len(f.stack) == 0 {
		f.finished = true
		done := f.done
		f.done = nil
		done(s.value, s.cause)
		return next{kind: nextDone}
	}
	if s.cause == nil {
		if c := f.injectPending; c != nil && !f.inCleanup() {
			// A teardown cause arrived mid-cleanup; deliver it now that
			// control would return to forward code.
			f.injectPending = nil
			for _, seg := range f.stack {
				seg.noCatch = true
			}
			s.susp.Discard()
			return next{kind: nextThrow, cause: c}
		}
		return resumeWith(s.susp, s.value)
	}
	s.susp.Discard()
	return next{kind: nextThrow, cause: s.cause}
}
