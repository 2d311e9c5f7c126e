package runtime

import (
	"errors"
	"testing"

	"github.com/r0gue-io/pop-drink/pkg/state"
	"github.com/r0gue-io/pop-drink/pkg/store"
	"github.com/r0gue-io/pop-drink/pkg/types"
)

func newTestLedger(t *testing.T) *state.State {
	t.Helper()
	st := state.New(store.NewMemStore())
	genesis := []state.GenesisAccount{
		{Address: types.Alice, Balance: 1000},
		{Address: types.Bob, Balance: 100},
	}
	if err := st.ResetToGenesis(genesis, 0); err != nil {
		t.Fatalf("ResetToGenesis() failed: %v", err)
	}
	return st
}

func TestTransfer(t *testing.T) {
	st := newTestLedger(t)
	d := NewDispatcher(10)

	outcome, err := d.Dispatch(st, types.Alice, BalancesTransfer{Dest: types.Bob, Value: 400})
	if err != nil {
		t.Fatalf("Dispatch(transfer) failed: %v", err)
	}
	if len(outcome.Events) != 1 || outcome.Events[0].Name != "Transfer" {
		t.Errorf("outcome events = %+v, want one Transfer", outcome.Events)
	}

	bal, _ := st.Balance(types.Alice)
	if bal != 600 {
		t.Errorf("Balance(Alice) = %d, want 600", bal)
	}
	bal, _ = st.Balance(types.Bob)
	if bal != 500 {
		t.Errorf("Balance(Bob) = %d, want 500", bal)
	}

	events, _ := st.Events()
	if len(events) != 1 {
		t.Errorf("pending events = %d, want 1", len(events))
	}
}

func TestSelfTransferPreservesBalance(t *testing.T) {
	st := newTestLedger(t)
	d := NewDispatcher(10)

	outcome, err := d.Dispatch(st, types.Alice, BalancesTransfer{Dest: types.Alice, Value: 400})
	if err != nil {
		t.Fatalf("Dispatch(self-transfer) failed: %v", err)
	}
	if len(outcome.Events) != 1 || outcome.Events[0].Name != "Transfer" {
		t.Errorf("outcome events = %+v, want one Transfer", outcome.Events)
	}

	bal, _ := st.Balance(types.Alice)
	if bal != 1000 {
		t.Errorf("Balance(Alice) after self-transfer = %d, want 1000", bal)
	}

	// The funds checks still apply to a self-transfer.
	_, err = d.Dispatch(st, types.Alice, BalancesTransfer{Dest: types.Alice, Value: 1001})
	want := &DispatchError{Module: ModuleBalances, Index: BalancesInsufficientBalance}
	var derr *DispatchError
	if !errors.As(err, &derr) || *derr != *want {
		t.Errorf("overdrawn self-transfer err = %v, want %v", err, want)
	}
}

func TestTransferToAbsentAccountCreatesIt(t *testing.T) {
	st := newTestLedger(t)
	d := NewDispatcher(10)

	if _, err := d.Dispatch(st, types.Alice, BalancesTransfer{Dest: types.Charlie, Value: 50}); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	bal, _ := st.Balance(types.Charlie)
	if bal != 50 {
		t.Errorf("Balance(Charlie) = %d, want 50", bal)
	}
}

func TestTransferInsufficientBalanceIsAtomic(t *testing.T) {
	st := newTestLedger(t)
	d := NewDispatcher(10)

	_, err := d.Dispatch(st, types.Bob, BalancesTransfer{Dest: types.Alice, Value: 101})
	want := &DispatchError{Module: ModuleBalances, Index: BalancesInsufficientBalance}
	if !errors.Is(err, want) {
		t.Fatalf("Dispatch() err = %v, want %v", err, want)
	}

	// Nothing moved, nothing emitted.
	bal, _ := st.Balance(types.Alice)
	if bal != 1000 {
		t.Errorf("Balance(Alice) = %d, want 1000", bal)
	}
	bal, _ = st.Balance(types.Bob)
	if bal != 100 {
		t.Errorf("Balance(Bob) = %d, want 100", bal)
	}
	events, _ := st.Events()
	if len(events) != 0 {
		t.Errorf("pending events after failed dispatch = %d, want 0", len(events))
	}
}

func TestTransferKeepAlive(t *testing.T) {
	st := newTestLedger(t)
	d := NewDispatcher(10)

	// Bob has 100, ED is 10: moving 91 would leave 9.
	_, err := d.Dispatch(st, types.Bob, BalancesTransferKeepAlive{Dest: types.Alice, Value: 91})
	want := &DispatchError{Module: ModuleBalances, Index: BalancesExistentialDeposit}
	if !errors.Is(err, want) {
		t.Errorf("Dispatch() err = %v, want %v", err, want)
	}

	// Moving 90 leaves exactly the ED.
	if _, err := d.Dispatch(st, types.Bob, BalancesTransferKeepAlive{Dest: types.Alice, Value: 90}); err != nil {
		t.Errorf("Dispatch() failed: %v", err)
	}
	bal, _ := st.Balance(types.Bob)
	if bal != 10 {
		t.Errorf("Balance(Bob) = %d, want 10", bal)
	}
}

func TestPlainTransferMayDrainToZero(t *testing.T) {
	st := newTestLedger(t)
	d := NewDispatcher(10)

	if _, err := d.Dispatch(st, types.Bob, BalancesTransfer{Dest: types.Alice, Value: 100}); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	bal, _ := st.Balance(types.Bob)
	if bal != 0 {
		t.Errorf("Balance(Bob) = %d, want 0", bal)
	}
}

func TestSetBalance(t *testing.T) {
	st := newTestLedger(t)
	d := NewDispatcher(10)

	if _, err := d.Dispatch(st, types.Alice, BalancesSetBalance{Who: types.Dave, NewBalance: 777}); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	bal, _ := st.Balance(types.Dave)
	if bal != 777 {
		t.Errorf("Balance(Dave) = %d, want 777", bal)
	}
}

func TestTimestampSet(t *testing.T) {
	st := newTestLedger(t)
	d := NewDispatcher(10)

	if _, err := d.Dispatch(st, types.Alice, TimestampSet{Now: 6000}); err != nil {
		t.Fatalf("Dispatch() failed: %v", err)
	}
	ts, _ := st.Timestamp()
	if ts != 6000 {
		t.Errorf("Timestamp() = %d, want 6000", ts)
	}

	// Time never goes backwards.
	_, err := d.Dispatch(st, types.Alice, TimestampSet{Now: 5000})
	want := &DispatchError{Module: ModuleTimestamp, Index: TimestampInvalid}
	if !errors.Is(err, want) {
		t.Errorf("Dispatch(backwards) err = %v, want %v", err, want)
	}
}

func TestUnsupportedCall(t *testing.T) {
	st := newTestLedger(t)
	d := NewDispatcher(10)

	_, err := d.Dispatch(st, types.Alice, unknownCall{})
	if !errors.Is(err, ErrUnsupportedCall) {
		t.Errorf("Dispatch(unknown) err = %v, want ErrUnsupportedCall", err)
	}
}

type unknownCall struct{}

func (unknownCall) callName() string { return "Unknown.call" }

func TestTableLookup(t *testing.T) {
	table := DefaultTable()

	tests := []struct {
		name       string
		module     uint8
		index      uint8
		wantModule string
		wantError  string
		wantOK     bool
	}{
		{"known pair", ModuleBalances, BalancesInsufficientBalance, "Balances", "InsufficientBalance", true},
		{"known module unknown index", ModuleBalances, 200, "Balances", "", false},
		{"unknown module", 99, 0, "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotModule, gotError, ok := table.Lookup(tt.module, tt.index)
			if gotModule != tt.wantModule || gotError != tt.wantError || ok != tt.wantOK {
				t.Errorf("Lookup(%d, %d) = %q, %q, %v, want %q, %q, %v",
					tt.module, tt.index, gotModule, gotError, ok, tt.wantModule, tt.wantError, tt.wantOK)
			}
		})
	}
}
