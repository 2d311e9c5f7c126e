package vm

import (
	"errors"
	"fmt"
	"hash/fnv"
)

// Stack and heap sizing.
const (
	StackFrameSize = 4096 // bytes per frame
	StackDepth     = 64   // max internal call depth
	HeapSize       = 64 * 1024
)

// Trap errors. Every abnormal termination of a program maps to one of
// these, possibly wrapped with position detail.
var (
	ErrOutOfGas           = errors.New("gas budget exhausted")
	ErrMemoryAccess       = errors.New("invalid memory access")
	ErrInvalidInstruction = errors.New("invalid instruction")
	ErrCallDepth          = errors.New("call depth exceeded")
	ErrDivisionByZero     = errors.New("division by zero")
	ErrUnknownHostFn      = errors.New("unknown host function")
)

// HashName returns the registry key for a host function name (FNV-1a).
func HashName(name string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(name))
	return h.Sum32()
}

// HostFunc is a host function callable from program code. Arguments arrive
// in r1-r5; the return value is placed in r0.
type HostFunc func(ip *Interpreter, r1, r2, r3, r4, r5 uint64) (uint64, error)

// HostRegistry maps host function name hashes to implementations.
type HostRegistry struct {
	fns   map[uint32]HostFunc
	names map[uint32]string
}

// NewHostRegistry creates an empty registry.
func NewHostRegistry() *HostRegistry {
	return &HostRegistry{
		fns:   make(map[uint32]HostFunc),
		names: make(map[uint32]string),
	}
}

// Register adds a host function under its name.
func (r *HostRegistry) Register(name string, fn HostFunc) {
	hash := HashName(name)
	r.fns[hash] = fn
	r.names[hash] = name
}

// Lookup resolves a name hash.
func (r *HostRegistry) Lookup(hash uint32) (HostFunc, bool) {
	fn, ok := r.fns[hash]
	return fn, ok
}

// Name returns the registered name for a hash, for diagnostics.
func (r *HostRegistry) Name(hash uint32) string {
	return r.names[hash]
}

// frame holds the saved state of one internal call.
type frame struct {
	framePtr uint64    // caller's r10
	saved    [4]uint64 // callee-saved r6-r9
	retAddr  int64     // caller's resume pc
}

// Opts configures an interpreter.
type Opts struct {
	// Meter is the gas meter for this execution. Required.
	Meter *GasMeter

	// Hosts resolves host calls. Optional; programs without host calls
	// run with a nil registry.
	Hosts *HostRegistry

	// Context is opaque execution context recoverable by host functions.
	Context interface{}
}

// Interpreter executes one program to completion.
type Interpreter struct {
	text  []uint64
	ro    []byte
	entry uint64

	stackMem []byte
	frames   []frame
	heap     []byte
	input    []byte

	meter   *GasMeter
	hosts   *HostRegistry
	context interface{}
}

// NewInterpreter prepares an interpreter for one run of program with the
// given call input.
func NewInterpreter(program *Program, input []byte, opts Opts) *Interpreter {
	return &Interpreter{
		text:     program.Text,
		ro:       program.RO,
		entry:    program.Entry,
		stackMem: make([]byte, StackFrameSize*StackDepth),
		frames:   make([]frame, 0, StackDepth),
		heap:     make([]byte, HeapSize),
		input:    input,
		meter:    opts.Meter,
		hosts:    opts.Hosts,
		context:  opts.Context,
	}
}

// Meter returns the gas meter charged by this execution.
func (ip *Interpreter) Meter() *GasMeter {
	return ip.meter
}

// Context returns the opaque execution context.
func (ip *Interpreter) Context() interface{} {
	return ip.context
}

// InputLen returns the call input length, passed to the program in r2.
func (ip *Interpreter) InputLen() uint64 {
	return uint64(len(ip.input))
}

// Run executes the program. The returned value is r0 at exit. Any trap is
// reported as an error wrapping one of the package trap sentinels; panics
// inside the instruction loop are caught and reported, never propagated.
func (ip *Interpreter) Run() (r0 uint64, err error) {
	var r [11]uint64
	r[1] = VaddrInput
	r[2] = uint64(len(ip.input))
	r[10] = VaddrStack + StackFrameSize

	pc := int64(ip.entry)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: internal fault: %v", ErrInvalidInstruction, rec)
		}
	}()

	for {
		if pc < 0 || pc >= int64(len(ip.text)) {
			return 0, fmt.Errorf("%w: program counter %d out of bounds", ErrInvalidInstruction, pc)
		}

		ins := Instruction(ip.text[pc])
		op := ins.Op()
		dst := ins.Dst()
		src := ins.Src()
		off := ins.Off()
		imm := ins.Imm()

		if err := ip.meter.Consume(instructionCost(op)); err != nil {
			return 0, err
		}
		if dst > 10 || src > 10 {
			return 0, fmt.Errorf("%w: register out of range dst=%d src=%d", ErrInvalidInstruction, dst, src)
		}
		if dst == 10 && (op&0x07 == ClassAlu64 || op&0x07 == ClassLdx || op == OpLddw) {
			return 0, fmt.Errorf("%w: r10 is read-only", ErrInvalidInstruction)
		}

		switch op {
		case OpLddw:
			if pc+1 >= int64(len(ip.text)) {
				return 0, fmt.Errorf("%w: truncated lddw at pc %d", ErrInvalidInstruction, pc)
			}
			next := ip.text[pc+1]
			r[dst] = uint64(uint32(imm)) | (next>>32)<<32
			pc++

		// ALU, immediate operand.
		case OpAddImm:
			r[dst] += uint64(imm)
		case OpSubImm:
			r[dst] -= uint64(imm)
		case OpMulImm:
			r[dst] *= uint64(imm)
		case OpDivImm:
			if imm == 0 {
				return 0, ErrDivisionByZero
			}
			r[dst] /= uint64(uint32(imm))
		case OpOrImm:
			r[dst] |= uint64(imm)
		case OpAndImm:
			r[dst] &= uint64(imm)
		case OpLshImm:
			r[dst] <<= uint64(imm) & 63
		case OpRshImm:
			r[dst] >>= uint64(imm) & 63
		case OpNeg:
			r[dst] = uint64(-int64(r[dst]))
		case OpModImm:
			if imm == 0 {
				return 0, ErrDivisionByZero
			}
			r[dst] %= uint64(uint32(imm))
		case OpXorImm:
			r[dst] ^= uint64(imm)
		case OpMovImm:
			r[dst] = uint64(imm)
		case OpArshImm:
			r[dst] = uint64(int64(r[dst]) >> (uint64(imm) & 63))

		// ALU, register operand.
		case OpAddReg:
			r[dst] += r[src]
		case OpSubReg:
			r[dst] -= r[src]
		case OpMulReg:
			r[dst] *= r[src]
		case OpDivReg:
			if r[src] == 0 {
				return 0, ErrDivisionByZero
			}
			r[dst] /= r[src]
		case OpOrReg:
			r[dst] |= r[src]
		case OpAndReg:
			r[dst] &= r[src]
		case OpLshReg:
			r[dst] <<= r[src] & 63
		case OpRshReg:
			r[dst] >>= r[src] & 63
		case OpModReg:
			if r[src] == 0 {
				return 0, ErrDivisionByZero
			}
			r[dst] %= r[src]
		case OpXorReg:
			r[dst] ^= r[src]
		case OpMovReg:
			r[dst] = r[src]
		case OpArshReg:
			r[dst] = uint64(int64(r[dst]) >> (r[src] & 63))

		// Memory loads.
		case OpLdxb:
			v, err := ip.read8(r[src] + uint64(off))
			if err != nil {
				return 0, err
			}
			r[dst] = uint64(v)
		case OpLdxh:
			v, err := ip.read16(r[src] + uint64(off))
			if err != nil {
				return 0, err
			}
			r[dst] = uint64(v)
		case OpLdxw:
			v, err := ip.read32(r[src] + uint64(off))
			if err != nil {
				return 0, err
			}
			r[dst] = uint64(v)
		case OpLdxdw:
			v, err := ip.read64(r[src] + uint64(off))
			if err != nil {
				return 0, err
			}
			r[dst] = v

		// Memory stores.
		case OpStb:
			if err := ip.write8(r[dst]+uint64(off), uint8(imm)); err != nil {
				return 0, err
			}
		case OpSth:
			if err := ip.write16(r[dst]+uint64(off), uint16(imm)); err != nil {
				return 0, err
			}
		case OpStw:
			if err := ip.write32(r[dst]+uint64(off), uint32(imm)); err != nil {
				return 0, err
			}
		case OpStdw:
			if err := ip.write64(r[dst]+uint64(off), uint64(imm)); err != nil {
				return 0, err
			}
		case OpStxb:
			if err := ip.write8(r[dst]+uint64(off), uint8(r[src])); err != nil {
				return 0, err
			}
		case OpStxh:
			if err := ip.write16(r[dst]+uint64(off), uint16(r[src])); err != nil {
				return 0, err
			}
		case OpStxw:
			if err := ip.write32(r[dst]+uint64(off), uint32(r[src])); err != nil {
				return 0, err
			}
		case OpStxdw:
			if err := ip.write64(r[dst]+uint64(off), r[src]); err != nil {
				return 0, err
			}

		// Jumps.
		case OpJa:
			pc += int64(off)
		case OpJeqImm:
			if r[dst] == uint64(imm) {
				pc += int64(off)
			}
		case OpJeqReg:
			if r[dst] == r[src] {
				pc += int64(off)
			}
		case OpJgtImm:
			if r[dst] > uint64(imm) {
				pc += int64(off)
			}
		case OpJgtReg:
			if r[dst] > r[src] {
				pc += int64(off)
			}
		case OpJgeImm:
			if r[dst] >= uint64(imm) {
				pc += int64(off)
			}
		case OpJgeReg:
			if r[dst] >= r[src] {
				pc += int64(off)
			}
		case OpJltImm:
			if r[dst] < uint64(imm) {
				pc += int64(off)
			}
		case OpJltReg:
			if r[dst] < r[src] {
				pc += int64(off)
			}
		case OpJleImm:
			if r[dst] <= uint64(imm) {
				pc += int64(off)
			}
		case OpJleReg:
			if r[dst] <= r[src] {
				pc += int64(off)
			}
		case OpJneImm:
			if r[dst] != uint64(imm) {
				pc += int64(off)
			}
		case OpJneReg:
			if r[dst] != r[src] {
				pc += int64(off)
			}
		case OpJsetImm:
			if r[dst]&uint64(imm) != 0 {
				pc += int64(off)
			}
		case OpJsetReg:
			if r[dst]&r[src] != 0 {
				pc += int64(off)
			}
		case OpJsgtImm:
			if int64(r[dst]) > int64(imm) {
				pc += int64(off)
			}
		case OpJsgtReg:
			if int64(r[dst]) > int64(r[src]) {
				pc += int64(off)
			}
		case OpJsgeImm:
			if int64(r[dst]) >= int64(imm) {
				pc += int64(off)
			}
		case OpJsgeReg:
			if int64(r[dst]) >= int64(r[src]) {
				pc += int64(off)
			}
		case OpJsltImm:
			if int64(r[dst]) < int64(imm) {
				pc += int64(off)
			}
		case OpJsltReg:
			if int64(r[dst]) < int64(r[src]) {
				pc += int64(off)
			}
		case OpJsleImm:
			if int64(r[dst]) <= int64(imm) {
				pc += int64(off)
			}
		case OpJsleReg:
			if int64(r[dst]) <= int64(r[src]) {
				pc += int64(off)
			}

		case OpCall:
			if src == callReloc {
				// Program-relative call.
				if err := ip.pushFrame(&r, pc+1); err != nil {
					return 0, err
				}
				pc = pc + int64(imm) + 1
				continue
			}
			hash := uint32(imm)
			fn, ok := ip.hostLookup(hash)
			if !ok {
				return 0, fmt.Errorf("%w: 0x%08x", ErrUnknownHostFn, hash)
			}
			result, err := fn(ip, r[1], r[2], r[3], r[4], r[5])
			if err != nil {
				return 0, err
			}
			r[0] = result

		case OpExit:
			retAddr, ok := ip.popFrame(&r)
			if !ok {
				return r[0], nil
			}
			pc = retAddr
			continue

		default:
			return 0, fmt.Errorf("%w: opcode 0x%02x", ErrInvalidInstruction, op)
		}

		pc++
	}
}

func (ip *Interpreter) hostLookup(hash uint32) (HostFunc, bool) {
	if ip.hosts == nil {
		return nil, false
	}
	return ip.hosts.Lookup(hash)
}

func (ip *Interpreter) pushFrame(r *[11]uint64, retAddr int64) error {
	if len(ip.frames) >= StackDepth-1 {
		return ErrCallDepth
	}
	f := frame{framePtr: r[10], retAddr: retAddr}
	copy(f.saved[:], r[6:10])
	ip.frames = append(ip.frames, f)
	r[10] += StackFrameSize
	return nil
}

func (ip *Interpreter) popFrame(r *[11]uint64) (int64, bool) {
	if len(ip.frames) == 0 {
		return 0, false
	}
	f := ip.frames[len(ip.frames)-1]
	ip.frames = ip.frames[:len(ip.frames)-1]
	copy(r[6:10], f.saved[:])
	r[10] = f.framePtr
	return f.retAddr, true
}
