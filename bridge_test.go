// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope_test

import (
	"errors"
	"testing"
	"time"

	"code.hybscloud.com/kont"
	"code.hybscloud.com/scope"
)

func TestExpectResolvedInline(t *testing.T) {
	skipRace(t)
	f := scope.NewFuture[string]()
	f.Resolve("ready")
	v, err := runOp(t, scope.Expect(f))
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != "ready" {
		t.Fatalf("got %q, want %q", v, "ready")
	}
}

func TestExpectRejected(t *testing.T) {
	skipRace(t)
	f := scope.NewFuture[string]()
	f.Reject(errors.New("denied"))
	_, err := runOp(t, scope.Expect(f))
	if err == nil || err.Error() != "denied" {
		t.Fatalf("expected denied, got %v", err)
	}
}

func TestExpectSettledLater(t *testing.T) {
	skipRace(t)
	f := scope.NewFuture[int]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		f.Resolve(99)
	}()
	v, err := runOp(t, scope.Expect(f))
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != 99 {
		t.Fatalf("got %d, want 99", v)
	}
}

func TestExpectDoubleSettleFirstWins(t *testing.T) {
	skipRace(t)
	f := scope.NewFuture[int]()
	f.Resolve(1)
	f.Resolve(2)
	f.Reject(errors.New("late"))
	v, err := runOp(t, scope.Expect(f))
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != 1 {
		t.Fatalf("got %d, want 1", v)
	}
}

func TestGoBridgesGoroutine(t *testing.T) {
	skipRace(t)
	op := scope.Go(func() (int, error) {
		time.Sleep(time.Millisecond)
		return 21, nil
	})
	v, err := runOp(t, kont.Map[kont.Resumed, int, int](op, func(n int) int {
		return n * 2
	}))
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}

func TestGoError(t *testing.T) {
	skipRace(t)
	op := scope.Go(func() (int, error) {
		return 0, errors.New("worker failed")
	})
	_, err := runOp(t, op)
	if err == nil || err.Error() != "worker failed" {
		t.Fatalf("expected worker failed, got %v", err)
	}
}

func TestHaltAbandonsExternalResult(t *testing.T) {
	skipRace(t)
	// Halting a task that is expecting a future abandons the result;
	// the external settlement after the fact is dropped harmlessly.
	f := scope.NewFuture[int]()
	started := make(chan struct{})
	h := scope.Run(func() scope.Op[int] {
		return kont.Then(scope.Do(func() (struct{}, error) {
			close(started)
			return struct{}{}, nil
		}), scope.Expect(f))
	})
	<-started
	if _, err := h.Halt(); !scope.IsHalted(err) {
		t.Fatalf("expected halted, got %v", err)
	}
	f.Resolve(7)
}

func TestReifyReflectRoundTrip(t *testing.T) {
	skipRace(t)
	op := kont.Bind(scope.Sleep(0), func(struct{}) scope.Op[int] {
		return kont.Pure(11)
	})
	v, err := runOp(t, scope.Reflect(scope.Reify(op)))
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != 11 {
		t.Fatalf("got %d, want 11", v)
	}
}

func TestRunExprFusedSleep(t *testing.T) {
	skipRace(t)
	h := scope.RunExpr(func() kont.Expr[int] {
		return scope.ExprSleepThen(time.Millisecond, kont.ExprReturn(5))
	})
	v, err := h.Await()
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != 5 {
		t.Fatalf("got %d, want 5", v)
	}
}

func TestExprLoopCountdown(t *testing.T) {
	skipRace(t)
	h := scope.RunExpr(func() kont.Expr[string] {
		return scope.ExprLoop(3, func(n int) kont.Expr[kont.Either[int, string]] {
			if n == 0 {
				return kont.ExprReturn(kont.Right[int, string]("lift-off"))
			}
			return scope.ExprSleepThen(0, kont.ExprReturn(kont.Left[int, string](n-1)))
		})
	})
	v, err := h.Await()
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != "lift-off" {
		t.Fatalf("got %q, want %q", v, "lift-off")
	}
}

func TestExprChannelFlow(t *testing.T) {
	skipRace(t)
	ch := scope.NewChannel[int]()
	h := scope.RunExpr(func() kont.Expr[int] {
		return kont.ExprBind(scope.Reify(ch.Subscribe()), func(sub *scope.Subscription[int]) kont.Expr[int] {
			return scope.ExprSendThen(ch, 33,
				scope.ExprNextBind(sub, func(n scope.Next[int]) kont.Expr[int] {
					return kont.ExprReturn(n.Value)
				}))
		})
	})
	v, err := h.Await()
	if err != nil {
		t.Fatalf("Await error: %v", err)
	}
	if v != 33 {
		t.Fatalf("got %d, want 33", v)
	}
}
