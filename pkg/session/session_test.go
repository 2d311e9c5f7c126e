package session

import (
	"errors"
	"testing"

	"github.com/r0gue-io/pop-drink/pkg/bundle"
	"github.com/r0gue-io/pop-drink/pkg/contracts"
	"github.com/r0gue-io/pop-drink/pkg/engine"
	"github.com/r0gue-io/pop-drink/pkg/runtime"
	"github.com/r0gue-io/pop-drink/pkg/sandbox"
	"github.com/r0gue-io/pop-drink/pkg/types"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	sb, err := sandbox.New(sandbox.DefaultConfig())
	if err != nil {
		t.Fatalf("sandbox.New() failed: %v", err)
	}
	t.Cleanup(func() { sb.Close() })
	return New(sb)
}

func asError(t *testing.T, err error) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("err = %v (%T), want *Error", err, err)
	}
	return e
}

func TestFlipperScenario(t *testing.T) {
	s := newTestSession(t)
	fl := contracts.Flipper()

	err := s.DeployAnd("flipper", fl, "new", nil, true).
		CallAnd("flipper", "flip").
		CallAnd("flipper", "flip").
		CallAnd("flipper", "flip").
		BuildBlockAnd().
		CallAnd("flipper", "get").
		Err()
	if err != nil {
		t.Fatalf("chained scenario failed: %v", err)
	}

	// Initial true flipped an odd number of times.
	if got := s.LastReturn(); got != false {
		t.Errorf("LastReturn() = %v, want false", got)
	}
	rec := s.Record()
	if len(rec.Deploys) != 1 || len(rec.Calls) != 4 || len(rec.Blocks) != 1 {
		t.Errorf("record = %d deploys, %d calls, %d blocks; want 1, 4, 1",
			len(rec.Deploys), len(rec.Calls), len(rec.Blocks))
	}
}

func TestChainShortCircuits(t *testing.T) {
	s := newTestSession(t)
	fl := contracts.Flipper()

	err := s.DeployAnd("flipper", fl, "new", nil, true).
		CallAnd("missing", "flip").
		CallAnd("flipper", "flip").
		Err()
	if err == nil {
		t.Fatal("chain with a bad step reported no error")
	}
	// The step after the failure must not have run.
	if n := len(s.Record().Calls); n != 0 {
		t.Errorf("calls recorded after failure = %d, want 0", n)
	}
}

func TestInsufficientBalanceClassified(t *testing.T) {
	s := newTestSession(t)

	// Dave holds nothing at genesis.
	_, err := s.As(types.Dave).Dispatch(runtime.BalancesTransfer{Dest: types.Alice, Value: 1})
	e := asError(t, err)
	if e.Kind != KindModule || e.Module != "Balances" || e.Name != "InsufficientBalance" {
		t.Errorf("classified as %v %s.%s, want Balances.InsufficientBalance", e.Kind, e.Module, e.Name)
	}
	if e.RawModule != runtime.ModuleBalances || e.RawIndex != runtime.BalancesInsufficientBalance {
		t.Errorf("raw pair = %d:%d, want %d:%d", e.RawModule, e.RawIndex,
			runtime.ModuleBalances, runtime.BalancesInsufficientBalance)
	}
}

func TestTrapClassified(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Deploy("trap", contracts.Trap(), "new", nil); err != nil {
		t.Fatalf("Deploy() failed: %v", err)
	}
	_, err := s.Call("trap", "boom")
	if e := asError(t, err); e.Kind != KindTrapped {
		t.Errorf("Kind = %v, want trapped", e.Kind)
	}
}

func TestOutOfGasClassified(t *testing.T) {
	s := newTestSession(t)
	if _, err := s.Deploy("spin", contracts.Spin(), "new", nil); err != nil {
		t.Fatalf("Deploy() failed: %v", err)
	}
	_, err := s.WithGas(types.Weight{RefTime: 5_000, ProofSize: 1 << 20}).Call("spin", "spin")
	if e := asError(t, err); e.Kind != KindOutOfGas {
		t.Errorf("Kind = %v, want out of gas", e.Kind)
	}
}

func TestRevertClassified(t *testing.T) {
	s := newTestSession(t)
	fl := contracts.Flipper()
	fw := contracts.Forwarder()
	flAddr, err := s.Deploy("flipper", fl, "new", nil, true)
	if err != nil {
		t.Fatalf("Deploy(flipper) failed: %v", err)
	}
	if _, err := s.Deploy("fwd", fw, "new", nil); err != nil {
		t.Fatalf("Deploy(fwd) failed: %v", err)
	}

	// An unknown selector makes the flipper revert; the forwarder
	// propagates it.
	_, err = s.Call("fwd", "forward", flAddr, []byte{0xAA, 0xBB, 0xCC, 0xDD})
	if e := asError(t, err); e.Kind != KindReverted {
		t.Errorf("Kind = %v, want reverted", e.Kind)
	}
}

func TestDuplicateDeployClassified(t *testing.T) {
	s := newTestSession(t)
	fl := contracts.Flipper()
	if _, err := s.Deploy("a", fl, "new", nil, true); err != nil {
		t.Fatalf("Deploy() failed: %v", err)
	}
	_, err := s.Deploy("b", fl, "new", nil, true)
	e := asError(t, err)
	if e.Kind != KindModule || e.Module != "Contracts" || e.Name != "DuplicateContract" {
		t.Errorf("classified as %v %s.%s, want Contracts.DuplicateContract", e.Kind, e.Module, e.Name)
	}
}

func TestDeployRefusesLabelShadowing(t *testing.T) {
	s := newTestSession(t)
	fl := contracts.Flipper()
	if _, err := s.Deploy("flipper", fl, "new", nil, true); err != nil {
		t.Fatalf("Deploy() failed: %v", err)
	}
	if _, err := s.Deploy("flipper", fl, "new", nil, false); err == nil {
		t.Error("second Deploy under the same label succeeded")
	}
}

func TestDeployConstructorAndSalt(t *testing.T) {
	s := newTestSession(t)
	fl := contracts.Flipper()

	first, err := s.Deploy("a", fl, "new", nil, true)
	if err != nil {
		t.Fatalf("Deploy(a) failed: %v", err)
	}

	// Same code and deployer, distinct salt: a second instance at first
	// deploy, no Redeploy needed.
	second, err := s.Deploy("b", fl, "new", []byte("2"), true)
	if err != nil {
		t.Fatalf("Deploy(b) failed: %v", err)
	}
	if first == second {
		t.Error("salted deploy landed on the same address")
	}

	// A constructor other than new.
	if _, err := s.Deploy("d", fl, "default", []byte("3")); err != nil {
		t.Fatalf("Deploy(default) failed: %v", err)
	}
	got, err := s.Call("d", "get")
	if err != nil {
		t.Fatalf("Call(get) failed: %v", err)
	}
	if got != false {
		t.Errorf("default-constructed get = %v, want false", got)
	}
}

func TestRedeployWithSalt(t *testing.T) {
	s := newTestSession(t)
	fl := contracts.Flipper()
	first, err := s.Deploy("flipper", fl, "new", nil, true)
	if err != nil {
		t.Fatalf("Deploy() failed: %v", err)
	}

	second, err := s.Redeploy("flipper", "new", []byte("v2"), false)
	if err != nil {
		t.Fatalf("Redeploy() failed: %v", err)
	}
	if second == first {
		t.Error("redeploy landed on the original address")
	}
	if addr, ok := s.Address("flipper"); !ok || addr != second {
		t.Errorf("handle points at %s, want %s", addr, second)
	}

	// The fresh instance has its own storage.
	got, err := s.Call("flipper", "get")
	if err != nil {
		t.Fatalf("Call(get) failed: %v", err)
	}
	if got != false {
		t.Errorf("redeployed get = %v, want false", got)
	}
}

func TestDeployBundleFromRegistry(t *testing.T) {
	s := newTestSession(t)
	reg := bundle.NewMemoryRegistry()
	reg.Register("flipper", contracts.Flipper())

	if _, err := s.WithRegistry(reg).DeployBundle("flipper", "new", nil, true); err != nil {
		t.Fatalf("DeployBundle() failed: %v", err)
	}
	got, err := s.Call("flipper", "get")
	if err != nil {
		t.Fatalf("Call(get) failed: %v", err)
	}
	if got != true {
		t.Errorf("get = %v, want true", got)
	}

	if _, err := s.DeployBundle("missing", "new", nil); !errors.Is(err, bundle.ErrBundleNotFound) {
		t.Errorf("DeployBundle(missing) err = %v, want ErrBundleNotFound", err)
	}
}

func TestClassifyRevertPayloads(t *testing.T) {
	table := runtime.DefaultTable()
	reverted := func(data []byte) *engine.ExecResult {
		return &engine.ExecResult{Flags: engine.FlagRevert, Data: data}
	}

	t.Run("module tagged", func(t *testing.T) {
		err := classify(table, reverted([]byte{3, 1, 0, 0}), nil)
		e := asError(t, err)
		if e.Kind != KindModule || e.Module != "Balances" || e.Name != "InsufficientBalance" {
			t.Errorf("classified as %v %s.%s", e.Kind, e.Module, e.Name)
		}
	})
	t.Run("unknown module pair preserved", func(t *testing.T) {
		err := classify(table, reverted([]byte{3, 9, 9, 0}), nil)
		e := asError(t, err)
		if e.Kind != KindUnknown {
			t.Errorf("Kind = %v, want unknown", e.Kind)
		}
		if e.RawModule != 9 || e.RawIndex != 9 {
			t.Errorf("raw pair = %d:%d, want 9:9", e.RawModule, e.RawIndex)
		}
		if e.Code != 0x00_09_09_03 {
			t.Errorf("Code = %#x, want the raw u32 preserved", e.Code)
		}
	})
	t.Run("non-module code", func(t *testing.T) {
		err := classify(table, reverted([]byte{7, 0, 0, 0}), nil)
		e := asError(t, err)
		if e.Kind != KindReverted || e.Code != 7 {
			t.Errorf("Kind = %v Code = %d, want reverted 7", e.Kind, e.Code)
		}
	})
	t.Run("opaque payload", func(t *testing.T) {
		err := classify(table, reverted([]byte("whoops")), nil)
		e := asError(t, err)
		if e.Kind != KindReverted || string(e.Payload) != "whoops" {
			t.Errorf("Kind = %v Payload = %q", e.Kind, e.Payload)
		}
	})
	t.Run("success is nil", func(t *testing.T) {
		if err := classify(table, &engine.ExecResult{}, nil); err != nil {
			t.Errorf("classify(success) = %v, want nil", err)
		}
	})
}

func TestClassifyUnknownDispatchPair(t *testing.T) {
	err := classify(runtime.DefaultTable(), nil, &runtime.DispatchError{Module: 42, Index: 7})
	e := asError(t, err)
	if e.Kind != KindUnknown || e.RawModule != 42 || e.RawIndex != 7 {
		t.Errorf("classified as %v %d:%d, want unknown 42:7", e.Kind, e.RawModule, e.RawIndex)
	}
}
