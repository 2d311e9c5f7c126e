package contracts

import (
	"github.com/r0gue-io/pop-drink/pkg/bundle"
	"github.com/r0gue-io/pop-drink/pkg/vm"
)

// flipperKey is the single storage cell the flipper keeps its bool in.
const flipperKey = int32('v')

// loadCell emits the shared preamble of the flipper handlers: heap base in
// r8, the storage key byte at heap+0, and the cell value read into heap+8.
// Reverts when the cell is absent.
func loadCell(b *builder) {
	b.lddw(8, vm.VaddrHeap)
	b.stb(8, 0, flipperKey)
	b.movReg(1, 8)
	b.mov(2, 1)
	b.movReg(3, 8)
	b.add(3, 8)
	b.mov(4, 1)
	b.call("cv_storage_get")
	b.jmp(vm.OpJeqImm, 0, 0, -1, "revert")
}

// storeCell writes heap+8 back under the key.
func storeCell(b *builder) {
	b.movReg(1, 8)
	b.mov(2, 1)
	b.movReg(3, 8)
	b.add(3, 8)
	b.mov(4, 1)
	b.call("cv_storage_put")
}

// Flipper builds the boolean flipper bundle. new(init) stores an initial
// value and default stores false; flip toggles the cell and emits the new
// value as an event, get returns it. Calling flip or get before the cell
// exists reverts.
func Flipper() *bundle.Bundle {
	b := newBuilder()

	b.prologue()
	b.ifSelector("new", "new")
	b.ifSelector("default", "default")
	b.ifSelector("flip", "flip")
	b.ifSelector("get", "get")
	b.jmp(vm.OpJa, 0, 0, 0, "revert")

	// new(init): store the init byte under the key.
	b.label("new")
	b.lddw(8, vm.VaddrHeap)
	b.stb(8, 0, flipperKey)
	b.ldxb(3, 6, 4)
	b.stxb(8, 3, 8)
	storeCell(b)
	b.mov(0, 0)
	b.exit()

	// default: store false.
	b.label("default")
	b.lddw(8, vm.VaddrHeap)
	b.stb(8, 0, flipperKey)
	b.stb(8, 8, 0)
	storeCell(b)
	b.mov(0, 0)
	b.exit()

	// flip: toggle the cell and emit the new value.
	b.label("flip")
	loadCell(b)
	b.ldxb(3, 8, 8)
	b.xor(3, 1)
	b.stxb(8, 3, 8)
	storeCell(b)
	b.mov(1, 0) // no topics
	b.mov(2, 0)
	b.movReg(3, 8)
	b.add(3, 8)
	b.mov(4, 1)
	b.call("cv_emit")
	b.mov(0, 0)
	b.exit()

	// get: return the cell value.
	b.label("get")
	loadCell(b)
	b.movReg(1, 8)
	b.add(1, 8)
	b.mov(2, 1)
	b.call("cv_return")
	b.mov(0, 0)
	b.exit()

	b.epilogueRevert()

	return &bundle.Bundle{
		Code: b.assemble(nil),
		ABI: bundle.ABI{
			Name: "flipper",
			Constructors: []bundle.Message{
				{Label: "new", Args: []bundle.Arg{{Label: "init", Type: "bool"}}},
				{Label: "default"},
			},
			Messages: []bundle.Message{
				{Label: "flip", Mutates: true},
				{Label: "get", Returns: "bool"},
			},
		},
	}
}
