// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/lfq"
	"code.hybscloud.com/spin"
)

// mailboxCapacity is the bounded capacity of the host-event ring.
// Producers back off on a full ring, so this only sizes the burst a
// single drain absorbs.
const mailboxCapacity = 256

// hostEvent crosses the host boundary into the scheduler: a fired
// resolver, or an external halt request against a task.
type hostEvent struct {
	r    *resolver
	halt *task
}

// resolver is a one-shot settle callback wired to a parked frame.
// fire may be called from any goroutine, but by exactly one writer; the
// CAS publishes the payload and guards against double settlement.
// cancelled is touched only by the scheduler goroutine.
type resolver struct {
	sc        *sched
	fr        *frame
	state     atomix.Uint32
	v         kont.Resumed
	err       error
	cancelled bool
}

func (r *resolver) fire(v kont.Resumed, err error) {
	r.v, r.err = v, err
	if r.state.CompareAndSwap(0, 1) {
		r.sc.post(hostEvent{r: r})
	}
}

// sched is one single-threaded cooperative world: a FIFO run queue of
// frames, a microtask queue, and the host-event mailbox. Everything but
// post runs on the loop goroutine.
type sched struct {
	root    *task
	runq    []*frame
	micro   []func()
	mu      spin.Lock
	events  lfq.SPSC[hostEvent]
	stopped atomix.Uint32
}

func newSched() *sched {
	sc := &sched{}
	sc.events.Init(mailboxCapacity)
	return sc
}

// post publishes a host event to the loop. The spin mutex serialises
// producers onto the SPSC ring; a full ring is waited out with adaptive
// backoff. Events posted after the loop stopped are dropped: the result
// of external work completing past settlement is abandoned.
func (sc *sched) post(ev hostEvent) {
	var bo iox.Backoff
	for sc.stopped.Load() == 0 {
		sc.mu.Lock()
		err := sc.events.Enqueue(&ev)
		sc.mu.Unlock()
		if err == nil {
			return
		}
		bo.Wait()
	}
}

// later schedules fn to run between frame turns, outside any drive.
func (sc *sched) later(fn func()) {
	sc.micro = append(sc.micro, fn)
}

func (sc *sched) enqueue(f *frame) {
	if f.queued || f.finished {
		return
	}
	f.queued = true
	sc.runq = append(sc.runq, f)
}

// spawnTask creates a task, registers it with its parent, and enqueues
// its frame. The handle is available to the spawner in the same turn.
func (sc *sched) spawnTask(parent *task, body kont.Expr[kont.Resumed]) *task {
	t := &task{sc: sc, serial: nextSerial(), parent: parent}
	t.fr = &frame{task: t}
	if parent != nil {
		parent.children = append(parent.children, t)
	}
	t.fr.begin(body, t.frameDone)
	return t
}

// loop drives the world until the root settles. Host events drain before
// every frame turn, so resolver firing order is resume order; frames run
// FIFO; microtasks run between turns.
func (sc *sched) loop() {
	var bo iox.Backoff
	for {
		progress := false
		for {
			ev, err := sc.events.Dequeue()
			if err != nil {
				break
			}
			sc.handle(ev)
			progress = true
		}
		for len(sc.micro) > 0 {
			fns := sc.micro
			sc.micro = nil
			for _, fn := range fns {
				fn()
			}
			progress = true
		}
		if len(sc.runq) > 0 {
			f := sc.runq[0]
			sc.runq = sc.runq[1:]
			f.queued = false
			if !f.finished {
				f.drive()
			}
			progress = true
		}
		if sc.root.settled() && len(sc.runq) == 0 && len(sc.micro) == 0 {
			sc.stopped.Store(1)
			return
		}
		if progress {
			bo.Reset()
		} else {
			bo.Wait()
		}
	}
}

func (sc *sched) handle(ev hostEvent) {
	if ev.halt != nil {
		ev.halt.interrupt(ErrHalted)
		return
	}
	r := ev.r
	if r.cancelled {
		return
	}
	if r.err != nil {
		r.fr.resumeThrow(r.err)
		return
	}
	r.fr.resumeValue(r.v)
}
