package engine

import (
	"errors"
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/vm"
)

// TrapError reports a contract that aborted abnormally: memory violation,
// invalid instruction, division by zero, unknown host function, or a fault
// inside a host call. Out-of-gas is not a trap; it surfaces as
// vm.ErrOutOfGas.
type TrapError struct {
	Cause error
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("contract trapped: %v", e.Cause)
}

func (e *TrapError) Unwrap() error {
	return e.Cause
}

// classifyTrap wraps a VM failure into the engine's error taxonomy.
// Gas exhaustion passes through untouched so callers can match it.
func classifyTrap(err error) error {
	if errors.Is(err, vm.ErrOutOfGas) {
		return err
	}
	return &TrapError{Cause: err}
}
