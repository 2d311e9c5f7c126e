// Package contracts provides small hand-assembled contracts used for
// exercising the engine: a boolean flipper, a call forwarder, an
// environment probe, and a pair of deliberately misbehaving programs.
//
// Each fixture is a complete bundle, code plus ABI, so it can be deployed
// through the session layer or registered in any bundle registry.
package contracts

import (
	"encoding/binary"
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/bundle"
	"github.com/r0gue-io/pop-drink/pkg/vm"
)

// builder assembles instruction words with label-resolved jump offsets.
type builder struct {
	words  []uint64
	labels map[string]int
	refs   []labelRef
}

type labelRef struct {
	pos   int
	label string
}

func newBuilder() *builder {
	return &builder{labels: make(map[string]int)}
}

func (b *builder) ins(op, dst, src uint8, off int16, imm int32) {
	b.words = append(b.words, vm.Encode(op, dst, src, off, imm))
}

// lddw emits a two-slot 64-bit immediate load.
func (b *builder) lddw(dst uint8, v uint64) {
	b.ins(vm.OpLddw, dst, 0, 0, int32(uint32(v)))
	b.ins(0, 0, 0, 0, int32(uint32(v>>32)))
}

func (b *builder) call(name string) {
	b.words = append(b.words, vm.EncodeCall(name))
}

func (b *builder) mov(dst uint8, imm int32) { b.ins(vm.OpMovImm, dst, 0, 0, imm) }
func (b *builder) movReg(dst, src uint8)    { b.ins(vm.OpMovReg, dst, src, 0, 0) }
func (b *builder) add(dst uint8, imm int32) { b.ins(vm.OpAddImm, dst, 0, 0, imm) }
func (b *builder) xor(dst uint8, imm int32) { b.ins(vm.OpXorImm, dst, 0, 0, imm) }
func (b *builder) exit()                    { b.ins(vm.OpExit, 0, 0, 0, 0) }

func (b *builder) ldxb(dst, src uint8, off int16)  { b.ins(vm.OpLdxb, dst, src, off, 0) }
func (b *builder) ldxw(dst, src uint8, off int16)  { b.ins(vm.OpLdxw, dst, src, off, 0) }
func (b *builder) ldxdw(dst, src uint8, off int16) { b.ins(vm.OpLdxdw, dst, src, off, 0) }

func (b *builder) stb(dst uint8, off int16, imm int32) { b.ins(vm.OpStb, dst, 0, off, imm) }
func (b *builder) stxb(dst, src uint8, off int16)      { b.ins(vm.OpStxb, dst, src, off, 0) }
func (b *builder) stxdw(dst, src uint8, off int16)     { b.ins(vm.OpStxdw, dst, src, off, 0) }

// label binds a name to the next instruction slot.
func (b *builder) label(name string) {
	b.labels[name] = len(b.words)
}

// jmp emits a jump whose offset is patched when the program is assembled.
func (b *builder) jmp(op, dst, src uint8, imm int32, label string) {
	b.refs = append(b.refs, labelRef{pos: len(b.words), label: label})
	b.ins(op, dst, src, 0, imm)
}

// ifSelector jumps to target when r0 holds the selector of label. Selectors
// are compared through r9 so the full 32-bit word matches regardless of its
// top bit.
func (b *builder) ifSelector(label, target string) {
	sel := bundle.Selector(label)
	b.lddw(9, uint64(binary.LittleEndian.Uint32(sel[:])))
	b.jmp(vm.OpJeqReg, 0, 9, 0, target)
}

// assemble resolves labels and encodes the final program blob.
func (b *builder) assemble(ro []byte) []byte {
	for _, ref := range b.refs {
		target, ok := b.labels[ref.label]
		if !ok {
			panic(fmt.Sprintf("contracts: unresolved label %q", ref.label))
		}
		off := int16(target - ref.pos - 1)
		word := b.words[ref.pos]
		word &^= uint64(0xFFFF) << 16
		word |= uint64(uint16(off)) << 16
		b.words[ref.pos] = word
	}
	return vm.MarshalProgram(&vm.Program{Text: b.words, RO: ro, Entry: 0})
}

// prologue saves the input pointer in r6, rejects inputs shorter than a
// selector, and leaves the selector word in r0.
func (b *builder) prologue() {
	b.movReg(6, 1)
	b.jmp(vm.OpJltImm, 2, 0, bundle.SelectorSize, "revert")
	b.ldxw(0, 6, 0)
}

// epilogueRevert emits the shared unknown-selector/failure tail.
func (b *builder) epilogueRevert() {
	b.label("revert")
	b.mov(0, 1)
	b.exit()
}
