// Package runtime implements the administrative module calls of the
// sandboxed ledger and their dispatch semantics.
//
// Calls are explicit descriptor structs, one per operation. Dispatch is
// atomic: a failing call leaves no trace in state, and its failure is a
// (module, error) index pair preserved verbatim for the caller.
package runtime

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/r0gue-io/pop-drink/pkg/state"
	"github.com/r0gue-io/pop-drink/pkg/types"
)

// ErrUnsupportedCall is returned when a call type is not known to the
// dispatcher.
var ErrUnsupportedCall = errors.New("unsupported call")

// Call is a dispatchable runtime operation. The call set is closed: each
// descriptor lives in this package and names its module and operation.
type Call interface {
	// callName returns "Module.operation" for diagnostics.
	callName() string
}

// BalancesTransfer moves Value from the origin to Dest. The origin may be
// drained to zero.
type BalancesTransfer struct {
	Dest  types.AccountID
	Value types.Balance
}

func (BalancesTransfer) callName() string { return "Balances.transfer" }

// BalancesTransferKeepAlive moves Value from the origin to Dest, but fails
// if the origin would drop below the existential deposit.
type BalancesTransferKeepAlive struct {
	Dest  types.AccountID
	Value types.Balance
}

func (BalancesTransferKeepAlive) callName() string { return "Balances.transfer_keep_alive" }

// BalancesSetBalance force-sets Who's balance, ignoring the origin. A
// test-harness convenience mirroring a root-level call.
type BalancesSetBalance struct {
	Who        types.AccountID
	NewBalance types.Balance
}

func (BalancesSetBalance) callName() string { return "Balances.set_balance" }

// TimestampSet moves the current block timestamp to Now (milliseconds).
// Time never goes backwards.
type TimestampSet struct {
	Now uint64
}

func (TimestampSet) callName() string { return "Timestamp.set" }

// Outcome reports a successful dispatch.
type Outcome struct {
	// Events emitted by the call, also appended to the pending log.
	Events []state.EventRecord
}

// Dispatcher executes runtime calls against a ledger state.
type Dispatcher struct {
	existentialDeposit types.Balance
}

// NewDispatcher creates a dispatcher. existentialDeposit bounds
// keep-alive transfers.
func NewDispatcher(existentialDeposit types.Balance) *Dispatcher {
	return &Dispatcher{existentialDeposit: existentialDeposit}
}

// Dispatch executes call with the given origin. On failure the returned
// error is a *DispatchError (or a wrapped store error for infrastructure
// failures) and the state is exactly as before the call.
func (d *Dispatcher) Dispatch(st *state.State, origin types.AccountID, call Call) (*Outcome, error) {
	snap, err := st.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot before %s: %w", call.callName(), err)
	}

	outcome, err := d.apply(st, origin, call)
	if err != nil {
		if rerr := st.Restore(snap); rerr != nil {
			st.Discard(snap)
			return nil, fmt.Errorf("restore after failed %s: %w", call.callName(), rerr)
		}
		st.Discard(snap)
		return nil, err
	}

	st.Discard(snap)
	return outcome, nil
}

func (d *Dispatcher) apply(st *state.State, origin types.AccountID, call Call) (*Outcome, error) {
	switch c := call.(type) {
	case BalancesTransfer:
		return d.transfer(st, origin, c.Dest, c.Value, false)
	case BalancesTransferKeepAlive:
		return d.transfer(st, origin, c.Dest, c.Value, true)
	case BalancesSetBalance:
		return d.setBalance(st, c.Who, c.NewBalance)
	case TimestampSet:
		return d.setTimestamp(st, c.Now)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedCall, call)
	}
}

func (d *Dispatcher) transfer(st *state.State, from, to types.AccountID, value types.Balance, keepAlive bool) (*Outcome, error) {
	src, err := st.Account(from)
	if err != nil {
		return nil, err
	}
	if src.Balance < value {
		return nil, &DispatchError{Module: ModuleBalances, Index: BalancesInsufficientBalance}
	}
	if keepAlive && src.Balance-value < d.existentialDeposit {
		return nil, &DispatchError{Module: ModuleBalances, Index: BalancesExistentialDeposit}
	}

	// A self-transfer passes the same checks but moves nothing.
	if from != to {
		dst, err := st.Account(to)
		if err != nil {
			return nil, err
		}
		if dst.Balance > math.MaxUint64-value {
			return nil, &DispatchError{Module: ModuleBalances, Index: BalancesOverflow}
		}

		src.Balance -= value
		dst.Balance += value
		if err := st.PutAccount(from, src); err != nil {
			return nil, err
		}
		if err := st.PutAccount(to, dst); err != nil {
			return nil, err
		}
	}

	ev := state.EventRecord{
		Module: "Balances",
		Name:   "Transfer",
		Data:   encodeTransfer(from, to, value),
	}
	if err := st.EmitEvent(ev); err != nil {
		return nil, err
	}
	return &Outcome{Events: []state.EventRecord{ev}}, nil
}

func (d *Dispatcher) setBalance(st *state.State, who types.AccountID, newBalance types.Balance) (*Outcome, error) {
	if err := st.SetBalance(who, newBalance); err != nil {
		return nil, err
	}

	data := make([]byte, types.AccountIDSize+8)
	copy(data, who[:])
	binary.LittleEndian.PutUint64(data[types.AccountIDSize:], newBalance)
	ev := state.EventRecord{Module: "Balances", Name: "BalanceSet", Data: data}
	if err := st.EmitEvent(ev); err != nil {
		return nil, err
	}
	return &Outcome{Events: []state.EventRecord{ev}}, nil
}

func (d *Dispatcher) setTimestamp(st *state.State, now uint64) (*Outcome, error) {
	current, err := st.Timestamp()
	if err != nil {
		return nil, err
	}
	if now < current {
		return nil, &DispatchError{Module: ModuleTimestamp, Index: TimestampInvalid}
	}
	block, err := st.BlockNumber()
	if err != nil {
		return nil, err
	}
	if err := st.SetBlockContext(block, now); err != nil {
		return nil, err
	}
	return &Outcome{}, nil
}

// encodeTransfer encodes a Transfer event payload: from, to, value.
func encodeTransfer(from, to types.AccountID, value types.Balance) []byte {
	data := make([]byte, 2*types.AccountIDSize+8)
	copy(data, from[:])
	copy(data[types.AccountIDSize:], to[:])
	binary.LittleEndian.PutUint64(data[2*types.AccountIDSize:], value)
	return data
}
