package contracts

import (
	"github.com/r0gue-io/pop-drink/pkg/bundle"
	"github.com/r0gue-io/pop-drink/pkg/vm"
)

// probeDump is the layout of the probe message's return data.
const (
	probeCallerOff  = 0
	probeAddressOff = 32
	probeValueOff   = 64
	probeBalanceOff = 72
	probeBlockOff   = 80
	probeTimeOff    = 88
	probeDumpLen    = 96
)

// probeDebugMsg is baked into the program's read-only data.
var probeDebugMsg = []byte("probe: constructed")

// Probe builds a contract that reports its execution environment: probe
// returns caller, own address, transferred value, balance, block number and
// timestamp in one 96-byte blob; give pays out via the runtime; hash
// returns the BLAKE3 and Keccak-256 digests of its payload.
func Probe() *bundle.Bundle {
	b := newBuilder()

	b.prologue()
	b.ifSelector("new", "new")
	b.ifSelector("probe", "probe")
	b.ifSelector("give", "give")
	b.ifSelector("hash", "hash")
	b.jmp(vm.OpJa, 0, 0, 0, "revert")

	// new: log a debug line from read-only data.
	b.label("new")
	b.lddw(1, vm.VaddrProgram)
	b.mov(2, int32(len(probeDebugMsg)))
	b.call("cv_debug")
	b.mov(0, 0)
	b.exit()

	// probe: assemble the environment dump on the heap and return it.
	b.label("probe")
	b.lddw(8, vm.VaddrHeap)
	b.movReg(1, 8)
	b.call("cv_caller")
	b.movReg(1, 8)
	b.add(1, probeAddressOff)
	b.call("cv_address")
	b.call("cv_value")
	b.stxdw(8, 0, probeValueOff)
	b.call("cv_balance")
	b.stxdw(8, 0, probeBalanceOff)
	b.call("cv_block_number")
	b.stxdw(8, 0, probeBlockOff)
	b.call("cv_timestamp")
	b.stxdw(8, 0, probeTimeOff)
	b.movReg(1, 8)
	b.mov(2, probeDumpLen)
	b.call("cv_return")
	b.mov(0, 0)
	b.exit()

	// give(dest, amount): transfer from the contract's own balance,
	// reverting when the runtime refuses.
	b.label("give")
	b.movReg(1, 6)
	b.add(1, 4)
	b.ldxdw(2, 6, 36)
	b.call("cv_transfer")
	b.jmp(vm.OpJneImm, 0, 0, 0, "revert")
	b.mov(0, 0)
	b.exit()

	// hash(data): blake3 digest at heap+0, keccak at heap+32.
	b.label("hash")
	b.lddw(8, vm.VaddrHeap)
	b.ldxw(7, 6, 4)
	b.movReg(1, 6)
	b.add(1, 8)
	b.movReg(2, 7)
	b.movReg(3, 8)
	b.call("cv_hash_blake3")
	b.movReg(1, 6)
	b.add(1, 8)
	b.movReg(2, 7)
	b.movReg(3, 8)
	b.add(3, 32)
	b.call("cv_hash_keccak")
	b.movReg(1, 8)
	b.mov(2, 64)
	b.call("cv_return")
	b.mov(0, 0)
	b.exit()

	b.epilogueRevert()

	return &bundle.Bundle{
		Code: b.assemble(probeDebugMsg),
		ABI: bundle.ABI{
			Name: "probe",
			Constructors: []bundle.Message{
				{Label: "new"},
			},
			Messages: []bundle.Message{
				{Label: "probe", Payable: true},
				{Label: "give", Mutates: true, Args: []bundle.Arg{
					{Label: "dest", Type: "address"},
					{Label: "amount", Type: "u64"},
				}},
				{Label: "hash", Args: []bundle.Arg{
					{Label: "data", Type: "bytes"},
				}},
			},
		},
	}
}
