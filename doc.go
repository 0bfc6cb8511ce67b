// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package scope provides a structured concurrency runtime via algebraic
// effects on [code.hybscloud.com/kont].
//
// Suspendable computations (operations) execute in a dynamically-growing
// tree of tasks. Every task has a well-defined parent; a task settles
// only after all of its descendants have settled; resources and cleanup
// blocks run on every exit path, including cancellation.
//
// # Architecture
//
//   - Execution: one [Run] is one single-threaded cooperative world. A
//     dedicated loop goroutine steps frames one effect at a time with
//     [code.hybscloud.com/kont.StepExpr]; there is no preemption and no
//     locking inside the tree.
//   - Host boundary: timers, [Future] settlements, and external halt
//     requests enter through a bounded lock-free mailbox
//     ([code.hybscloud.com/lfq] SPSC behind a [code.hybscloud.com/spin]
//     producer lock). Firing order is resume order.
//   - Waiting: idle loops and external awaiters use adaptive backoff
//     via [code.hybscloud.com/iox.Backoff]; settlement is published
//     through [code.hybscloud.com/atomix] state words.
//
// # Operations
//
//   - Structure: [Spawn], [Call], [Self], [Task.Await], [Task.Halt].
//   - Suspension: [Sleep], [Suspend] (forever; only halt or failure
//     escapes), [Expect], [Go].
//   - Cleanup: [Ensure], [Defer], [Catch], [Acquire].
//   - Steps: [Do], [Fail], plus the kont combinators (Bind, Then, Map,
//     Pure).
//   - Coordination: [Channel] broadcast streams with independent
//     [Subscription] cursors; [ForEach] and [Loop] for consumers.
//
// # Cancellation
//
// Halt is cooperative: a halted task runs no more forward code but
// drives every cleanup block (which may suspend and spawn) to
// completion, tears down children in reverse spawn order, and releases
// resources in reverse acquisition order. A child's failure interrupts
// its parent the same way. Settlement causes form a lattice: halted is
// replaced by the first real error, and cleanup errors replace anything.
// Halted tasks surface [ErrHalted].
//
// # Example
//
//	h := scope.Run(func() scope.Op[int] {
//		return scope.SpawnBind(scope.Sleep(time.Millisecond), func(t *scope.Task[struct{}]) scope.Op[int] {
//			return kont.Then(t.Await(), kont.Pure(42))
//		})
//	})
//	v, err := h.Await()
package scope
