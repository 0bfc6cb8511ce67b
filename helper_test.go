// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope_test

import (
	"testing"

	"code.hybscloud.com/scope"
)

// runOp drives op on a fresh runtime and returns its settlement.
// Used by tests that exercise a single operation end to end.
func runOp[T any](tb testing.TB, op scope.Op[T]) (T, error) {
	tb.Helper()
	return scope.Run(func() scope.Op[T] { return op }).Await()
}
