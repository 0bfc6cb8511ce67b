// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"time"

	"code.hybscloud.com/kont"
)

// SleepThen sleeps for d and then continues with next.
// Fuses Sleep + Then.
func SleepThen[B any](d time.Duration, next Op[B]) Op[B] {
	return kont.Then(Sleep(d), next)
}

// SpawnBind spawns op and passes the child handle to f.
// Fuses Spawn + Bind.
func SpawnBind[T, B any](op Op[T], f func(*Task[T]) Op[B]) Op[B] {
	return kont.Bind(Spawn(op), f)
}

// AwaitBind awaits t and passes its value to f.
// Fuses Task.Await + Bind.
func AwaitBind[T, B any](t *Task[T], f func(T) Op[B]) Op[B] {
	return kont.Bind(t.Await(), f)
}

// HaltThen halts t, waits for it to settle, and continues with next.
// Fuses Task.Halt + Then.
func HaltThen[T, B any](t *Task[T], next Op[B]) Op[B] {
	return kont.Then(t.Halt(), next)
}

// SendThen broadcasts m on c and then continues with next.
// Fuses Channel.Send + Then.
func SendThen[M, B any](c *Channel[M], m M, next Op[B]) Op[B] {
	return kont.Then(c.Send(m), next)
}

// NextBind takes the next step of s and passes it to f.
// Fuses Subscription.Next + Bind.
func NextBind[M, B any](s *Subscription[M], f func(Next[M]) Op[B]) Op[B] {
	return kont.Bind(s.Next(), f)
}
