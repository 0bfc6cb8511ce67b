// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"time"

	"code.hybscloud.com/kont"
)

// Pre-allocated erased frames to eliminate heap escapes when boxing
// empty structs into kont.Frame during Expr-world execution.
var (
	exprReturnFrame kont.Frame  = kont.ReturnFrame{}
	exprSuspendFor  kont.Erased = suspendOp{}
)

// identityResume is the identity resume function for EffectFrame
// construction. Named function produces a static function value,
// consistent with kont convention.
func identityResume(v kont.Erased) kont.Erased { return v }

// ExprSleepThen sleeps for d and then continues with next.
// Fuses sleep dispatch + ExprThen.
func ExprSleepThen[B any](d time.Duration, next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = sleepOp{d: d}
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}

// ExprSendThen broadcasts m on c and then continues with next.
// Fuses send dispatch + ExprThen.
func ExprSendThen[M, B any](c *Channel[M], m M, next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = sendOp[M]{c: c, msg: m}
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}

func nextBindUnwind[M, B any](data, _, _ kont.Erased, current kont.Erased) (kont.Erased, kont.Frame) {
	f := data.(func(Next[M]) kont.Expr[B])
	result := f(current.(Next[M]))
	return kont.Erased(result.Value), result.Frame
}

// ExprNextBind takes the next step of s and passes it to f.
// Fuses next dispatch + ExprBind.
func ExprNextBind[M, B any](s *Subscription[M], f func(Next[M]) kont.Expr[B]) kont.Expr[B] {
	bf := kont.AcquireUnwindFrame()
	bf.Data1 = f
	bf.Unwind = nextBindUnwind[M, B]
	ef := kont.AcquireEffectFrame()
	ef.Operation = nextOp[M]{s: s}
	ef.Resume = identityResume
	ef.Next = bf
	return kont.ExprSuspend[B](ef)
}

// ExprSuspendForever suspends forever (Expr-world); only halt or a
// failure elsewhere in the tree escapes it. The zero value resumed by a
// halt-time short circuit is discarded by the Then chain.
func ExprSuspendForever[B any](next kont.Expr[B]) kont.Expr[B] {
	tf := kont.AcquireThenFrame()
	tf.Second = kont.Expr[kont.Erased]{Value: kont.Erased(next.Value), Frame: next.Frame}
	tf.Next = exprReturnFrame
	ef := kont.AcquireEffectFrame()
	ef.Operation = exprSuspendFor
	ef.Resume = identityResume
	ef.Next = tf
	return kont.ExprSuspend[B](ef)
}
