package session

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/engine"
	"github.com/r0gue-io/pop-drink/pkg/runtime"
	"github.com/r0gue-io/pop-drink/pkg/vm"
)

// Kind classifies an execution failure.
type Kind int

const (
	// KindModule is a runtime module error with a known (module, index)
	// pair.
	KindModule Kind = iota

	// KindReverted is an explicit contract revert.
	KindReverted

	// KindTrapped is a VM trap: bad memory access, invalid instruction,
	// division by zero and the like.
	KindTrapped

	// KindOutOfGas is exhaustion of either gas dimension.
	KindOutOfGas

	// KindDecoding is a failure to decode call output.
	KindDecoding

	// KindUnknown preserves failures the error table cannot name. The raw
	// code survives untouched.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindReverted:
		return "reverted"
	case KindTrapped:
		return "trapped"
	case KindOutOfGas:
		return "out of gas"
	case KindDecoding:
		return "decoding"
	default:
		return "unknown"
	}
}

// revertModuleTag in the first byte of a 4-byte revert payload marks an
// encoded module error: [tag, module index, error index, 0].
const revertModuleTag = 3

// Error is a classified sandbox failure.
type Error struct {
	Kind Kind

	// Module and Name are filled for module errors the table resolves.
	Module string
	Name   string

	// RawModule and RawIndex preserve the wire pair for module errors,
	// resolved or not.
	RawModule uint8
	RawIndex  uint8

	// Code is the u32 revert code, when the revert payload carried one.
	Code uint32

	// Payload is the raw revert payload.
	Payload []byte

	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindModule:
		return fmt.Sprintf("%s.%s", e.Module, e.Name)
	case KindReverted:
		if len(e.Payload) > 0 {
			return fmt.Sprintf("contract reverted, payload %x", e.Payload)
		}
		return "contract reverted"
	case KindUnknown:
		if e.cause != nil {
			return fmt.Sprintf("unclassified failure: %v", e.cause)
		}
		return fmt.Sprintf("unrecognized error code %d:%d", e.RawModule, e.RawIndex)
	default:
		if e.cause != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.cause)
		}
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error {
	return e.cause
}

// classify folds an execution outcome into an *Error, or nil for success.
// Unknown module pairs and unrecognized revert codes are preserved, never
// coerced into a known name.
func classify(table *runtime.Table, res *engine.ExecResult, err error) error {
	if err != nil {
		if errors.Is(err, vm.ErrOutOfGas) {
			return &Error{Kind: KindOutOfGas, cause: err}
		}
		var te *engine.TrapError
		if errors.As(err, &te) {
			return &Error{Kind: KindTrapped, cause: err}
		}
		var de *runtime.DispatchError
		if errors.As(err, &de) {
			return moduleError(table, de.Module, de.Index, err)
		}
		return &Error{Kind: KindUnknown, cause: err}
	}

	if !res.Reverted() {
		return nil
	}
	e := &Error{Kind: KindReverted, Payload: res.Data}
	if len(res.Data) == 4 {
		e.Code = binary.LittleEndian.Uint32(res.Data)
		if res.Data[0] == revertModuleTag && res.Data[3] == 0 {
			me := moduleError(table, res.Data[1], res.Data[2], nil)
			me.Code = e.Code
			me.Payload = res.Data
			return me
		}
	}
	return e
}

func moduleError(table *runtime.Table, module, index uint8, cause error) *Error {
	e := &Error{RawModule: module, RawIndex: index, cause: cause}
	moduleName, errorName, ok := table.Lookup(module, index)
	if !ok {
		e.Kind = KindUnknown
		e.Module = moduleName
		return e
	}
	e.Kind = KindModule
	e.Module = moduleName
	e.Name = errorName
	return e
}
