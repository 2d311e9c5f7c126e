package contracts

import (
	"github.com/r0gue-io/pop-drink/pkg/bundle"
	"github.com/r0gue-io/pop-drink/pkg/vm"
)

// Trap builds a contract whose boom message dereferences an unmapped
// address. The constructor is well-behaved so the contract deploys.
func Trap() *bundle.Bundle {
	b := newBuilder()

	b.prologue()
	b.ifSelector("new", "new")
	b.lddw(1, 0x5_0000_0000) // outside every memory region
	b.ldxb(0, 1, 0)
	b.exit()

	b.label("new")
	b.mov(0, 0)
	b.exit()

	b.epilogueRevert()

	return &bundle.Bundle{
		Code: b.assemble(nil),
		ABI: bundle.ABI{
			Name: "trap",
			Constructors: []bundle.Message{
				{Label: "new"},
			},
			Messages: []bundle.Message{
				{Label: "boom"},
			},
		},
	}
}

// Spin builds a contract whose spin message never terminates, so any
// invocation runs until the gas meter stops it.
func Spin() *bundle.Bundle {
	b := newBuilder()

	b.prologue()
	b.ifSelector("new", "new")
	b.label("loop")
	b.jmp(vm.OpJa, 0, 0, 0, "loop")

	b.label("new")
	b.mov(0, 0)
	b.exit()

	b.epilogueRevert()

	return &bundle.Bundle{
		Code: b.assemble(nil),
		ABI: bundle.ABI{
			Name: "spin",
			Constructors: []bundle.Message{
				{Label: "new"},
			},
			Messages: []bundle.Message{
				{Label: "spin"},
			},
		},
	}
}
