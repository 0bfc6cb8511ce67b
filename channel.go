// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"code.hybscloud.com/kont"
)

// Channel is a multi-producer, multi-subscriber broadcast stream.
// Each subscriber is an independent cursor that receives every message
// sent after its subscription; slow subscribers retain messages in their
// own pending buffer. Send completes synchronously.
//
// Channel state is touched only through operations, i.e. only on the
// loop goroutine, so no locking is involved. A channel must not be
// shared between runtimes.
type Channel[M any] struct {
	closed bool
	subs   []*Subscription[M]
}

// Subscription is one read cursor over a channel's post-subscription
// stream. Concurrent Next calls on the same subscription queue up in
// call order and drain FIFO on send.
type Subscription[M any] struct {
	c       *Channel[M]
	pending []M
	waiters []*waiter
}

// Next is one step of a subscription: a message, or Done once the
// channel has closed and the cursor has drained.
type Next[M any] struct {
	Done  bool
	Value M
}

// NewChannel creates an open channel with no subscribers.
func NewChannel[M any]() *Channel[M] {
	return &Channel[M]{}
}

type sendOp[M any] struct {
	kont.Phantom[struct{}]
	c   *Channel[M]
	msg M
}

func (o sendOp[M]) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	if !o.c.closed {
		for _, s := range o.c.subs {
			s.deliver(o.msg)
		}
	}
	return resumeWith(susp, struct{}{})
}

// Send broadcasts m to every current subscriber and completes in the
// same turn. Sends on a closed channel are dropped.
func (c *Channel[M]) Send(m M) Op[struct{}] {
	return kont.Perform(sendOp[M]{c: c, msg: m})
}

type subscribeOp[M any] struct {
	kont.Phantom[*Subscription[M]]
	c *Channel[M]
}

func (o subscribeOp[M]) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	s := &Subscription[M]{c: o.c}
	o.c.subs = append(o.c.subs, s)
	return resumeWith(susp, s)
}

// Subscribe creates a cursor positioned at the current end of the
// stream: it observes messages sent from this point on.
func (c *Channel[M]) Subscribe() Op[*Subscription[M]] {
	return kont.Perform(subscribeOp[M]{c: c})
}

type closeOp[M any] struct {
	kont.Phantom[struct{}]
	c *Channel[M]
}

func (o closeOp[M]) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	c := o.c
	if !c.closed {
		c.closed = true
		for _, s := range c.subs {
			ws := s.waiters
			s.waiters = nil
			for _, w := range ws {
				if w.cancelled {
					continue
				}
				w.fr.resumeValue(Next[M]{Done: true})
			}
		}
	}
	return resumeWith(susp, struct{}{})
}

// Close ends the stream: parked subscribers observe Done, and cursors
// report Done once their pending buffers drain. Idempotent.
func (c *Channel[M]) Close() Op[struct{}] {
	return kont.Perform(closeOp[M]{c: c})
}

type nextOp[M any] struct {
	kont.Phantom[Next[M]]
	s *Subscription[M]
}

func (o nextOp[M]) DispatchTask(f *frame, susp *kont.Suspension[kont.Resumed]) next {
	s := o.s
	if len(s.pending) > 0 {
		m := s.pending[0]
		s.pending = s.pending[1:]
		return resumeWith(susp, Next[M]{Value: m})
	}
	if s.c.closed {
		return resumeWith(susp, Next[M]{Done: true})
	}
	w := &waiter{fr: f}
	s.waiters = append(s.waiters, w)
	return f.parkAt(susp, func() {
		w.cancelled = true
	})
}

// Next suspends until the cursor has an unconsumed message, or reports
// Done on a closed, drained stream.
func (s *Subscription[M]) Next() Op[Next[M]] {
	return kont.Perform(nextOp[M]{s: s})
}

// deliver hands m to the first live parked waiter, or buffers it on the
// cursor.
func (s *Subscription[M]) deliver(m M) {
	for len(s.waiters) > 0 {
		w := s.waiters[0]
		s.waiters = s.waiters[1:]
		if w.cancelled {
			continue
		}
		w.fr.resumeValue(Next[M]{Value: m})
		return
	}
	s.pending = append(s.pending, m)
}

// ForEach consumes the subscription to its end, running f for every
// message in order. Completes when the channel closes.
func ForEach[M any](s *Subscription[M], f func(M) Op[struct{}]) Op[struct{}] {
	return Loop(struct{}{}, func(struct{}) Op[kont.Either[struct{}, struct{}]] {
		return kont.Bind(s.Next(), func(n Next[M]) Op[kont.Either[struct{}, struct{}]] {
			if n.Done {
				return kont.Pure(kont.Right[struct{}, struct{}](struct{}{}))
			}
			return kont.Then(f(n.Value), kont.Pure(kont.Left[struct{}, struct{}](struct{}{})))
		})
	})
}
