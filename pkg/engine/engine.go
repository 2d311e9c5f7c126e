// Package engine executes contract code against the ledger.
//
// The engine instantiates and invokes contracts, exposes the host-call
// surface they run against, derives their addresses deterministically, and
// meters execution with a two-dimensional gas budget. Every execution is
// atomic: traps, gas exhaustion and explicit reverts all roll the ledger
// back to the pre-call state.
package engine

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/r0gue-io/pop-drink/pkg/runtime"
	"github.com/r0gue-io/pop-drink/pkg/state"
	"github.com/r0gue-io/pop-drink/pkg/types"
	"github.com/r0gue-io/pop-drink/pkg/vm"
)

// MaxCallDepth bounds contract-to-contract call nesting. The outermost
// call is depth 0.
const MaxCallDepth = 5

// FlagRevert in ExecResult.Flags marks an explicit revert: state is rolled
// back but the returned data is preserved for error decoding.
const FlagRevert = uint32(1)

// addressMarker domain-separates contract address derivation.
var addressMarker = []byte("pop-drink/contract-address/v1")

// ExecResult reports one contract execution.
type ExecResult struct {
	// Flags is the contract's exit flags word (r0). Bit 0 is revert.
	Flags uint32

	// Data is the output the contract handed back, valid on success and
	// on revert.
	Data []byte

	// GasConsumed is the actual spend: RefTime in VM gas units,
	// ProofSize in bytes written to contract storage.
	GasConsumed types.Weight

	// Events emitted by contract code during this execution. Committed
	// to the ledger event log only when the execution succeeds.
	Events []state.EventRecord

	// Debug collects contract debug messages, kept even on failure.
	Debug []string
}

// Reverted reports whether the contract exited with the revert flag.
func (r *ExecResult) Reverted() bool {
	return r != nil && r.Flags&FlagRevert != 0
}

// ContractAddress derives the address a contract will live at. The
// derivation is a pure function of deployer, code hash and salt, so
// identical inputs always collide.
func ContractAddress(deployer types.AccountID, codeHash types.Hash, salt []byte) types.AccountID {
	h, _ := blake2b.New256(nil)
	h.Write(addressMarker)
	h.Write(deployer[:])
	h.Write(codeHash[:])
	h.Write(salt)

	var addr types.AccountID
	h.Sum(addr[:0])
	return addr
}

// Engine executes contracts against a ledger state.
type Engine struct {
	st    *state.State
	disp  *runtime.Dispatcher
	hosts *vm.HostRegistry
}

// New creates an engine. Value transfers performed on behalf of contracts
// go through the given dispatcher, so they carry normal Balances semantics
// and events.
func New(st *state.State, disp *runtime.Dispatcher) *Engine {
	e := &Engine{st: st, disp: disp}
	e.hosts = newHostRegistry()
	return e
}

// Instantiate uploads code, derives the contract address from (origin, code
// hash, salt), endows it and runs the constructor input. The whole
// operation is atomic; on any failure, revert included, the ledger is as
// before, and the returned ExecResult still carries debug output and, for
// reverts, the revert payload.
func (e *Engine) Instantiate(origin types.AccountID, code, input, salt []byte, endowment types.Balance, gasLimit types.Weight) (types.AccountID, *ExecResult, error) {
	snap, err := e.st.Snapshot()
	if err != nil {
		return types.AccountID{}, nil, fmt.Errorf("snapshot: %w", err)
	}
	defer e.st.Discard(snap)

	addr, res, err := e.instantiate(origin, code, input, salt, endowment, gasLimit)
	if err != nil || res.Reverted() {
		if rerr := e.st.Restore(snap); rerr != nil {
			return types.AccountID{}, res, fmt.Errorf("restore: %w", rerr)
		}
		return addr, res, err
	}
	if err := e.commitEvents(res.Events); err != nil {
		return addr, res, err
	}
	return addr, res, nil
}

func (e *Engine) instantiate(origin types.AccountID, code, input, salt []byte, endowment types.Balance, gasLimit types.Weight) (types.AccountID, *ExecResult, error) {
	codeHash, err := e.st.PutCode(code)
	if err != nil {
		return types.AccountID{}, nil, err
	}
	addr := ContractAddress(origin, codeHash, salt)

	acc, err := e.st.Account(addr)
	if err != nil {
		return addr, nil, err
	}
	if acc.IsContract() {
		return addr, nil, &runtime.DispatchError{Module: runtime.ModuleContracts, Index: runtime.ContractsDuplicateContract}
	}
	acc.CodeHash = codeHash
	if err := e.st.PutAccount(addr, acc); err != nil {
		return addr, nil, err
	}
	if _, err := e.st.IncNonce(origin); err != nil {
		return addr, nil, err
	}

	res, err := e.call(origin, addr, codeHash, input, endowment, gasLimit)
	return addr, res, err
}

// Invoke runs a message call against an instantiated contract. Atomic in
// the same way as Instantiate.
func (e *Engine) Invoke(origin, dest types.AccountID, input []byte, value types.Balance, gasLimit types.Weight) (*ExecResult, error) {
	snap, err := e.st.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer e.st.Discard(snap)

	res, err := e.invoke(origin, dest, input, value, gasLimit)
	if err != nil || res.Reverted() {
		if rerr := e.st.Restore(snap); rerr != nil {
			return res, fmt.Errorf("restore: %w", rerr)
		}
		return res, err
	}
	if cerr := e.commitEvents(res.Events); cerr != nil {
		return res, cerr
	}
	return res, nil
}

func (e *Engine) invoke(origin, dest types.AccountID, input []byte, value types.Balance, gasLimit types.Weight) (*ExecResult, error) {
	acc, err := e.st.Account(dest)
	if err != nil {
		return nil, err
	}
	if !acc.IsContract() {
		return nil, &runtime.DispatchError{Module: runtime.ModuleContracts, Index: runtime.ContractsCodeNotFound}
	}
	return e.call(origin, dest, acc.CodeHash, input, value, gasLimit)
}

// call runs one execution frame: endow/transfer value, decode the code
// blob, interpret it, and fold the outcome into an ExecResult. It is the
// common path for constructors, messages and nested calls.
func (e *Engine) call(caller, self types.AccountID, codeHash types.Hash, input []byte, value types.Balance, gasLimit types.Weight) (*ExecResult, error) {
	meter := vm.NewGasMeter(gasLimit.RefTime)
	ec := &execContext{engine: e, gasLimit: gasLimit, meter: meter}
	return e.callFrame(ec, caller, self, codeHash, input, value, 0)
}

func (e *Engine) callFrame(ec *execContext, caller, self types.AccountID, codeHash types.Hash, input []byte, value types.Balance, depth int) (*ExecResult, error) {
	result := func() *ExecResult {
		return &ExecResult{
			GasConsumed: types.Weight{RefTime: ec.meter.Consumed(), ProofSize: ec.storageBytes},
			Events:      ec.events,
			Debug:       ec.debug,
		}
	}

	if depth >= MaxCallDepth {
		return result(), &runtime.DispatchError{Module: runtime.ModuleContracts, Index: runtime.ContractsMaxCallDepthReached}
	}

	if value > 0 {
		_, err := e.disp.Dispatch(e.st, caller, runtime.BalancesTransfer{Dest: self, Value: value})
		if err != nil {
			var derr *runtime.DispatchError
			if errors.As(err, &derr) {
				return result(), derr
			}
			return result(), err
		}
	}

	code, err := e.st.GetCode(codeHash)
	if err != nil {
		if errors.Is(err, state.ErrCodeNotFound) {
			return result(), &runtime.DispatchError{Module: runtime.ModuleContracts, Index: runtime.ContractsCodeNotFound}
		}
		return result(), err
	}
	program, err := vm.UnmarshalProgram(code)
	if err != nil {
		return result(), &runtime.DispatchError{Module: runtime.ModuleContracts, Index: runtime.ContractsDecodingFailed}
	}

	env := &hostEnv{
		ec:     ec,
		self:   self,
		caller: caller,
		value:  value,
		depth:  depth,
	}
	ip := vm.NewInterpreter(program, input, vm.Opts{
		Meter:   ec.meter,
		Hosts:   e.hosts,
		Context: env,
	})

	r0, err := ip.Run()
	if err != nil {
		return result(), classifyTrap(err)
	}

	res := result()
	if res.GasConsumed.AnyGt(ec.gasLimit) {
		return res, vm.ErrOutOfGas
	}
	res.Flags = uint32(r0)
	res.Data = env.returnData
	return res, nil
}

// commitEvents appends contract events from a successful execution to the
// ledger event log.
func (e *Engine) commitEvents(events []state.EventRecord) error {
	for _, ev := range events {
		if err := e.st.EmitEvent(ev); err != nil {
			return err
		}
	}
	return nil
}

// execContext is shared across all frames of one top-level execution.
type execContext struct {
	engine       *Engine
	gasLimit     types.Weight
	meter        *vm.GasMeter
	storageBytes uint64
	events       []state.EventRecord
	debug        []string
}
