package contracts

import (
	"testing"

	"github.com/r0gue-io/pop-drink/pkg/vm"
)

func TestFixturesDecode(t *testing.T) {
	for _, tt := range []struct {
		name string
		code []byte
	}{
		{"flipper", Flipper().Code},
		{"forwarder", Forwarder().Code},
		{"probe", Probe().Code},
		{"trap", Trap().Code},
		{"spin", Spin().Code},
	} {
		t.Run(tt.name, func(t *testing.T) {
			p, err := vm.UnmarshalProgram(tt.code)
			if err != nil {
				t.Fatalf("UnmarshalProgram() failed: %v", err)
			}
			if len(p.Text) == 0 {
				t.Error("empty program text")
			}
		})
	}
}

func TestBuilderJumpPatching(t *testing.T) {
	// Skip over a poison instruction forward, then bounce back past it.
	b := newBuilder()
	b.mov(0, 1)
	b.jmp(vm.OpJa, 0, 0, 0, "fwd")
	b.label("bad")
	b.mov(0, 99)
	b.exit()
	b.label("fwd")
	b.add(0, 10)
	b.jmp(vm.OpJeqImm, 0, 0, 11, "done")
	b.jmp(vm.OpJa, 0, 0, 0, "bad")
	b.label("done")
	b.exit()

	p, err := vm.UnmarshalProgram(b.assemble(nil))
	if err != nil {
		t.Fatalf("UnmarshalProgram() failed: %v", err)
	}
	ip := vm.NewInterpreter(p, nil, vm.Opts{Meter: vm.NewGasMeter(1000)})
	r0, err := ip.Run()
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if r0 != 11 {
		t.Errorf("r0 = %d, want 11", r0)
	}
}

func TestBuilderUnresolvedLabelPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("assemble() did not panic on unresolved label")
		}
	}()
	b := newBuilder()
	b.jmp(vm.OpJa, 0, 0, 0, "nowhere")
	b.assemble(nil)
}
