// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope_test

import (
	"errors"
	"testing"
	"testing/quick"
	"time"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/scope"
)

var errNotDone = errors.New("expected done")

func TestChannelTakeEveryUntilCancel(t *testing.T) {
	skipRace(t)
	// A take-every consumer collects messages until a cancel marker;
	// sends after cancellation are not observed.
	type msg struct{ Test int }
	cancel := msg{Test: -1}

	var got []msg
	ch := scope.NewChannel[msg]()

	op := kont.Bind(ch.Subscribe(), func(sub *scope.Subscription[msg]) scope.Op[int] {
		consumer := scope.Loop(struct{}{}, func(struct{}) scope.Op[kont.Either[struct{}, struct{}]] {
			return kont.Bind(sub.Next(), func(n scope.Next[msg]) scope.Op[kont.Either[struct{}, struct{}]] {
				if n.Done || n.Value == cancel {
					return kont.Pure(kont.Right[struct{}, struct{}](struct{}{}))
				}
				got = append(got, n.Value)
				return kont.Pure(kont.Left[struct{}, struct{}](struct{}{}))
			})
		})
		return scope.SpawnBind(consumer, func(c *scope.Task[struct{}]) scope.Op[int] {
			return kont.Then(ch.Send(msg{Test: 1}),
				kont.Then(ch.Send(msg{Test: 2}),
					kont.Then(ch.Send(msg{Test: 3}),
						kont.Then(ch.Send(msg{Test: 4}),
							kont.Then(ch.Send(cancel),
								kont.Then(c.Await(),
									// The handler is finished; this halt is a
									// settled no-op and later sends are unseen.
									kont.Then(c.Halt(),
										kont.Then(ch.Send(msg{Test: 5}),
											kont.Pure(0)))))))))
		})
	})

	if _, err := runOp(t, op); err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("collected %v, want 4 messages", got)
	}
	for i, m := range got {
		if m.Test != i+1 {
			t.Fatalf("collected %v, want tests 1..4 in order", got)
		}
	}
}

func TestChannelSubscriberSeesOnlyPostSubscription(t *testing.T) {
	skipRace(t)
	ch := scope.NewChannel[int]()
	op := kont.Then(ch.Send(1), // no subscriber yet: dropped
		kont.Bind(ch.Subscribe(), func(sub *scope.Subscription[int]) scope.Op[int] {
			return kont.Then(ch.Send(2), kont.Bind(sub.Next(), func(n scope.Next[int]) scope.Op[int] {
				return kont.Pure(n.Value)
			}))
		}))
	v, err := runOp(t, op)
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != 2 {
		t.Fatalf("got %d, want 2", v)
	}
}

func TestChannelIndependentCursors(t *testing.T) {
	skipRace(t)
	// Two cursors over one channel advance independently; a slow cursor
	// retains its backlog.
	ch := scope.NewChannel[int]()
	op := kont.Bind(ch.Subscribe(), func(s1 *scope.Subscription[int]) scope.Op[[2]int] {
		return kont.Bind(ch.Subscribe(), func(s2 *scope.Subscription[int]) scope.Op[[2]int] {
			return kont.Then(ch.Send(10),
				kont.Then(ch.Send(20),
					kont.Bind(s1.Next(), func(a scope.Next[int]) scope.Op[[2]int] {
						return kont.Bind(s1.Next(), func(b scope.Next[int]) scope.Op[[2]int] {
							// s2 has consumed nothing; its cursor still
							// starts at the first message.
							return kont.Bind(s2.Next(), func(c scope.Next[int]) scope.Op[[2]int] {
								return kont.Pure([2]int{a.Value + b.Value, c.Value})
							})
						})
					})))
		})
	})
	v, err := runOp(t, op)
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v[0] != 30 || v[1] != 10 {
		t.Fatalf("got %v, want [30 10]", v)
	}
}

func TestChannelCloseDrainsThenDone(t *testing.T) {
	skipRace(t)
	ch := scope.NewChannel[int]()
	op := kont.Bind(ch.Subscribe(), func(sub *scope.Subscription[int]) scope.Op[[]int] {
		return kont.Then(ch.Send(1),
			kont.Then(ch.Send(2),
				kont.Then(ch.Close(),
					kont.Bind(sub.Next(), func(a scope.Next[int]) scope.Op[[]int] {
						return kont.Bind(sub.Next(), func(b scope.Next[int]) scope.Op[[]int] {
							return kont.Bind(sub.Next(), func(c scope.Next[int]) scope.Op[[]int] {
								if !c.Done {
									return scope.Fail[[]int](errNotDone)
								}
								return kont.Pure([]int{a.Value, b.Value})
							})
						})
					}))))
	})
	v, err := runOp(t, op)
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if len(v) != 2 || v[0] != 1 || v[1] != 2 {
		t.Fatalf("got %v, want [1 2]", v)
	}
}

func TestChannelNextParksUntilSend(t *testing.T) {
	skipRace(t)
	ch := scope.NewChannel[string]()
	op := kont.Bind(ch.Subscribe(), func(sub *scope.Subscription[string]) scope.Op[string] {
		consumer := kont.Bind(sub.Next(), func(n scope.Next[string]) scope.Op[string] {
			return kont.Pure(n.Value)
		})
		return scope.SpawnBind(consumer, func(c *scope.Task[string]) scope.Op[string] {
			// The sleep lets the consumer park on Next before this send
			// runs.
			return scope.SleepThen(time.Millisecond, kont.Then(ch.Send("hello"), c.Await()))
		})
	})
	v, err := runOp(t, op)
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != "hello" {
		t.Fatalf("got %q, want %q", v, "hello")
	}
}

// TestPropertyChannelFIFO proves that for any arbitrarily generated
// sequence of integers, a single cursor observes every message exactly
// once, in send order.
func TestPropertyChannelFIFO(t *testing.T) {
	skipRace(t)

	propertyFIFO := func(payload []int) bool {
		ch := scope.NewChannel[int]()
		var got []int

		op := kont.Bind(ch.Subscribe(), func(sub *scope.Subscription[int]) scope.Op[struct{}] {
			consumer := scope.ForEach(sub, func(m int) scope.Op[struct{}] {
				got = append(got, m)
				return scope.Sleep(0)
			})
			return scope.SpawnBind(consumer, func(c *scope.Task[struct{}]) scope.Op[struct{}] {
				sends := scope.Loop(payload, func(rest []int) scope.Op[kont.Either[[]int, struct{}]] {
					if len(rest) == 0 {
						return kont.Then(ch.Close(), kont.Pure(kont.Right[[]int, struct{}](struct{}{})))
					}
					return kont.Then(ch.Send(rest[0]), kont.Pure(kont.Left[[]int, struct{}](rest[1:])))
				})
				return kont.Then(sends, c.Await())
			})
		})

		if _, err := runOp(t, op); err != nil {
			return false
		}
		if len(got) != len(payload) {
			return false
		}
		for i := range payload {
			if got[i] != payload[i] {
				return false
			}
		}
		return true
	}

	if err := quick.Check(propertyFIFO, nil); err != nil {
		t.Fatal(err)
	}
}
