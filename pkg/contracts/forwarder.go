package contracts

import (
	"github.com/r0gue-io/pop-drink/pkg/bundle"
	"github.com/r0gue-io/pop-drink/pkg/vm"
)

// forwarder input layout after the selector: 32-byte callee address, then a
// u32-prefixed payload.
const (
	fwdCalleeOff  = 4
	fwdLenOff     = 36
	fwdPayloadOff = 40

	// fwdReturnCap bounds how much of the nested return is copied out.
	fwdReturnCap = 4096
)

// Forwarder builds a contract that relays its payload to another contract
// and hands the nested output back, propagating reverts. Used to exercise
// contract-to-contract calls.
func Forwarder() *bundle.Bundle {
	b := newBuilder()

	b.prologue()
	b.ifSelector("new", "new")
	b.ifSelector("forward", "forward")
	b.jmp(vm.OpJa, 0, 0, 0, "revert")

	b.label("new")
	b.mov(0, 0)
	b.exit()

	// forward(callee, payload): relay and mirror the outcome.
	b.label("forward")
	b.movReg(1, 6)
	b.add(1, fwdCalleeOff)
	b.movReg(2, 6)
	b.add(2, fwdPayloadOff)
	b.ldxw(3, 6, fwdLenOff)
	b.mov(4, 0) // no value transfer
	b.call("cv_call")
	b.jmp(vm.OpJeqImm, 0, 0, 0, "relay")
	b.jmp(vm.OpJeqImm, 0, 0, 1, "relayRevert")
	b.jmp(vm.OpJa, 0, 0, 0, "revert")

	// Success: copy the nested return out and exit clean.
	b.label("relay")
	b.mov(7, 0)
	b.jmp(vm.OpJa, 0, 0, 0, "copyOut")

	// Nested revert: same copy, but exit with the revert flag.
	b.label("relayRevert")
	b.mov(7, 1)

	b.label("copyOut")
	b.lddw(8, vm.VaddrHeap)
	b.movReg(1, 8)
	b.mov(2, fwdReturnCap)
	b.call("cv_call_return")
	b.movReg(2, 0)
	b.movReg(1, 8)
	b.call("cv_return")
	b.movReg(0, 7)
	b.exit()

	b.epilogueRevert()

	return &bundle.Bundle{
		Code: b.assemble(nil),
		ABI: bundle.ABI{
			Name: "forwarder",
			Constructors: []bundle.Message{
				{Label: "new"},
			},
			Messages: []bundle.Message{
				{Label: "forward", Mutates: true, Args: []bundle.Arg{
					{Label: "callee", Type: "address"},
					{Label: "payload", Type: "bytes"},
				}},
			},
		},
	}
}
