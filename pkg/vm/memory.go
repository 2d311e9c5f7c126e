package vm

import (
	"encoding/binary"
	"fmt"
)

// Virtual memory region base addresses.
const (
	VaddrProgram = uint64(0x1_0000_0000) // read-only program data
	VaddrStack   = uint64(0x2_0000_0000) // stack frames
	VaddrHeap    = uint64(0x3_0000_0000) // heap
	VaddrInput   = uint64(0x4_0000_0000) // read-only call input
)

// regionSpan is the address space reserved per region.
const regionSpan = uint64(0x1_0000_0000)

// Translate maps a virtual address range to host memory. write requests
// fail on the read-only regions.
func (ip *Interpreter) Translate(addr, size uint64, write bool) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	region := addr & ^(regionSpan - 1)
	off := addr - region

	var mem []byte
	var readOnly bool
	switch region {
	case VaddrProgram:
		mem, readOnly = ip.ro, true
	case VaddrStack:
		mem = ip.stackMem
	case VaddrHeap:
		mem = ip.heap
	case VaddrInput:
		mem, readOnly = ip.input, true
	default:
		return nil, fmt.Errorf("%w: address 0x%x", ErrMemoryAccess, addr)
	}

	if write && readOnly {
		return nil, fmt.Errorf("%w: write to read-only region at 0x%x", ErrMemoryAccess, addr)
	}
	if off+size > uint64(len(mem)) || off+size < off {
		return nil, fmt.Errorf("%w: range 0x%x+%d", ErrMemoryAccess, addr, size)
	}
	return mem[off : off+size], nil
}

// ReadBytes copies size bytes out of virtual memory.
func (ip *Interpreter) ReadBytes(addr, size uint64) ([]byte, error) {
	src, err := ip.Translate(addr, size, false)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, src)
	return out, nil
}

// WriteBytes copies p into virtual memory.
func (ip *Interpreter) WriteBytes(addr uint64, p []byte) error {
	dst, err := ip.Translate(addr, uint64(len(p)), true)
	if err != nil {
		return err
	}
	copy(dst, p)
	return nil
}

func (ip *Interpreter) read8(addr uint64) (uint8, error) {
	mem, err := ip.Translate(addr, 1, false)
	if err != nil {
		return 0, err
	}
	return mem[0], nil
}

func (ip *Interpreter) read16(addr uint64) (uint16, error) {
	mem, err := ip.Translate(addr, 2, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(mem), nil
}

func (ip *Interpreter) read32(addr uint64) (uint32, error) {
	mem, err := ip.Translate(addr, 4, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(mem), nil
}

func (ip *Interpreter) read64(addr uint64) (uint64, error) {
	mem, err := ip.Translate(addr, 8, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(mem), nil
}

func (ip *Interpreter) write8(addr uint64, x uint8) error {
	mem, err := ip.Translate(addr, 1, true)
	if err != nil {
		return err
	}
	mem[0] = x
	return nil
}

func (ip *Interpreter) write16(addr uint64, x uint16) error {
	mem, err := ip.Translate(addr, 2, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(mem, x)
	return nil
}

func (ip *Interpreter) write32(addr uint64, x uint32) error {
	mem, err := ip.Translate(addr, 4, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(mem, x)
	return nil
}

func (ip *Interpreter) write64(addr uint64, x uint64) error {
	mem, err := ip.Translate(addr, 8, true)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(mem, x)
	return nil
}
