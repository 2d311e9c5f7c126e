// Package vm implements the deterministic register machine that contract
// code runs on.
//
// The machine has 11 64-bit registers (r0-r10, r10 being a read-only frame
// pointer) and a fixed 64-bit instruction word: opcode, destination and
// source register, signed 16-bit offset, signed 32-bit immediate. Memory is
// split into four virtual regions: read-only program data, stack frames,
// heap, and read-only call input.
package vm

// Instruction class bits (bits 0-2).
const (
	ClassLd    = 0x00 // wide immediate load
	ClassLdx   = 0x01 // memory load
	ClassSt    = 0x02 // memory store, immediate operand
	ClassStx   = 0x03 // memory store, register operand
	ClassJmp   = 0x05 // jumps, call, exit
	ClassAlu64 = 0x07 // 64-bit ALU
)

// Source bit (bit 3) selects the second operand.
const (
	SrcImm = 0x00
	SrcReg = 0x08
)

// ALU operation codes (bits 4-7).
const (
	AluAdd  = 0x00
	AluSub  = 0x10
	AluMul  = 0x20
	AluDiv  = 0x30
	AluOr   = 0x40
	AluAnd  = 0x50
	AluLsh  = 0x60
	AluRsh  = 0x70
	AluNeg  = 0x80
	AluMod  = 0x90
	AluXor  = 0xa0
	AluMov  = 0xb0
	AluArsh = 0xc0
)

// Memory access width (bits 3-4 for loads and stores).
const (
	SizeW  = 0x00 // 32-bit word
	SizeH  = 0x08 // 16-bit half-word
	SizeB  = 0x10 // byte
	SizeDW = 0x18 // 64-bit double-word
)

// modeMem marks plain memory addressing (bits 5-7).
const modeMem = 0x60

// Jump operation codes (bits 4-7).
const (
	JmpJa   = 0x00
	JmpJeq  = 0x10
	JmpJgt  = 0x20
	JmpJge  = 0x30
	JmpJset = 0x40
	JmpJne  = 0x50
	JmpJsgt = 0x60
	JmpJsge = 0x70
	JmpCall = 0x80
	JmpExit = 0x90
	JmpJlt  = 0xa0
	JmpJle  = 0xb0
	JmpJslt = 0xc0
	JmpJsle = 0xd0
)

// ALU opcodes, immediate operand.
const (
	OpAddImm  = ClassAlu64 | SrcImm | AluAdd  // 0x07
	OpSubImm  = ClassAlu64 | SrcImm | AluSub  // 0x17
	OpMulImm  = ClassAlu64 | SrcImm | AluMul  // 0x27
	OpDivImm  = ClassAlu64 | SrcImm | AluDiv  // 0x37
	OpOrImm   = ClassAlu64 | SrcImm | AluOr   // 0x47
	OpAndImm  = ClassAlu64 | SrcImm | AluAnd  // 0x57
	OpLshImm  = ClassAlu64 | SrcImm | AluLsh  // 0x67
	OpRshImm  = ClassAlu64 | SrcImm | AluRsh  // 0x77
	OpNeg     = ClassAlu64 | AluNeg           // 0x87
	OpModImm  = ClassAlu64 | SrcImm | AluMod  // 0x97
	OpXorImm  = ClassAlu64 | SrcImm | AluXor  // 0xa7
	OpMovImm  = ClassAlu64 | SrcImm | AluMov  // 0xb7
	OpArshImm = ClassAlu64 | SrcImm | AluArsh // 0xc7
)

// ALU opcodes, register operand.
const (
	OpAddReg  = ClassAlu64 | SrcReg | AluAdd  // 0x0f
	OpSubReg  = ClassAlu64 | SrcReg | AluSub  // 0x1f
	OpMulReg  = ClassAlu64 | SrcReg | AluMul  // 0x2f
	OpDivReg  = ClassAlu64 | SrcReg | AluDiv  // 0x3f
	OpOrReg   = ClassAlu64 | SrcReg | AluOr   // 0x4f
	OpAndReg  = ClassAlu64 | SrcReg | AluAnd  // 0x5f
	OpLshReg  = ClassAlu64 | SrcReg | AluLsh  // 0x6f
	OpRshReg  = ClassAlu64 | SrcReg | AluRsh  // 0x7f
	OpModReg  = ClassAlu64 | SrcReg | AluMod  // 0x9f
	OpXorReg  = ClassAlu64 | SrcReg | AluXor  // 0xaf
	OpMovReg  = ClassAlu64 | SrcReg | AluMov  // 0xbf
	OpArshReg = ClassAlu64 | SrcReg | AluArsh // 0xcf
)

// Memory load opcodes.
const (
	OpLdxb  = ClassLdx | modeMem | SizeB  // 0x71
	OpLdxh  = ClassLdx | modeMem | SizeH  // 0x69
	OpLdxw  = ClassLdx | modeMem | SizeW  // 0x61
	OpLdxdw = ClassLdx | modeMem | SizeDW // 0x79
)

// Memory store opcodes, immediate operand.
const (
	OpStb  = ClassSt | modeMem | SizeB  // 0x72
	OpSth  = ClassSt | modeMem | SizeH  // 0x6a
	OpStw  = ClassSt | modeMem | SizeW  // 0x62
	OpStdw = ClassSt | modeMem | SizeDW // 0x7a
)

// Memory store opcodes, register operand.
const (
	OpStxb  = ClassStx | modeMem | SizeB  // 0x73
	OpStxh  = ClassStx | modeMem | SizeH  // 0x6b
	OpStxw  = ClassStx | modeMem | SizeW  // 0x63
	OpStxdw = ClassStx | modeMem | SizeDW // 0x7b
)

// Jump opcodes. Comparisons are over full 64-bit register values.
const (
	OpJa      = ClassJmp | JmpJa            // 0x05
	OpJeqImm  = ClassJmp | SrcImm | JmpJeq  // 0x15
	OpJeqReg  = ClassJmp | SrcReg | JmpJeq  // 0x1d
	OpJgtImm  = ClassJmp | SrcImm | JmpJgt  // 0x25
	OpJgtReg  = ClassJmp | SrcReg | JmpJgt  // 0x2d
	OpJgeImm  = ClassJmp | SrcImm | JmpJge  // 0x35
	OpJgeReg  = ClassJmp | SrcReg | JmpJge  // 0x3d
	OpJsetImm = ClassJmp | SrcImm | JmpJset // 0x45
	OpJsetReg = ClassJmp | SrcReg | JmpJset // 0x4d
	OpJneImm  = ClassJmp | SrcImm | JmpJne  // 0x55
	OpJneReg  = ClassJmp | SrcReg | JmpJne  // 0x5d
	OpJsgtImm = ClassJmp | SrcImm | JmpJsgt // 0x65
	OpJsgtReg = ClassJmp | SrcReg | JmpJsgt // 0x6d
	OpJsgeImm = ClassJmp | SrcImm | JmpJsge // 0x75
	OpJsgeReg = ClassJmp | SrcReg | JmpJsge // 0x7d
	OpCall    = ClassJmp | JmpCall          // 0x85
	OpExit    = ClassJmp | JmpExit          // 0x95
	OpJltImm  = ClassJmp | SrcImm | JmpJlt  // 0xa5
	OpJltReg  = ClassJmp | SrcReg | JmpJlt  // 0xad
	OpJleImm  = ClassJmp | SrcImm | JmpJle  // 0xb5
	OpJleReg  = ClassJmp | SrcReg | JmpJle  // 0xbd
	OpJsltImm = ClassJmp | SrcImm | JmpJslt // 0xc5
	OpJsltReg = ClassJmp | SrcReg | JmpJslt // 0xcd
	OpJsleImm = ClassJmp | SrcImm | JmpJsle // 0xd5
	OpJsleReg = ClassJmp | SrcReg | JmpJsle // 0xdd
)

// OpLddw loads a 64-bit immediate and occupies two instruction slots.
const OpLddw = 0x18

// callReloc in the src field of OpCall marks a program-relative call; the
// immediate is then a signed instruction offset instead of a host-fn hash.
const callReloc = 1

// Instruction extracts fields from an encoded instruction word.
type Instruction uint64

// Op returns the opcode (bits 0-7).
func (i Instruction) Op() uint8 {
	return uint8(i & 0xFF)
}

// Dst returns the destination register (bits 8-11).
func (i Instruction) Dst() uint8 {
	return uint8((i >> 8) & 0x0F)
}

// Src returns the source register (bits 12-15).
func (i Instruction) Src() uint8 {
	return uint8((i >> 12) & 0x0F)
}

// Off returns the signed offset (bits 16-31).
func (i Instruction) Off() int16 {
	return int16(i >> 16)
}

// Imm returns the signed immediate (bits 32-63).
func (i Instruction) Imm() int32 {
	return int32(i >> 32)
}

// Encode builds an instruction word from its fields.
func Encode(op uint8, dst, src uint8, off int16, imm int32) uint64 {
	return uint64(op) |
		uint64(dst&0x0F)<<8 |
		uint64(src&0x0F)<<12 |
		uint64(uint16(off))<<16 |
		uint64(uint32(imm))<<32
}

// EncodeCall builds a host call instruction for the named host function.
func EncodeCall(name string) uint64 {
	return Encode(OpCall, 0, 0, 0, int32(HashName(name)))
}

// EncodeCallRel builds a program-relative call to pc+1+off.
func EncodeCallRel(off int32) uint64 {
	return Encode(OpCall, 0, callReloc, 0, off)
}
