// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package scope

import (
	"errors"
	"fmt"
)

// ErrHalted is the settlement error of a task that was cancelled.
// External awaiters observe it through Handle.Await; inside operations it
// is re-raised at await points on halted tasks. It is never delivered to
// Catch handlers: halting runs cleanup, not recovery.
var ErrHalted = errors.New("halted")

// IsHalted reports whether err marks a halted settlement.
func IsHalted(err error) bool {
	return errors.Is(err, ErrHalted)
}

// panicError boxes a recovered panic value from user code (operation
// factories, Do actions, Go functions) into the task's error world.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("scope: panic: %w", err)
	}
	return fmt.Errorf("scope: panic: %v", r)
}
