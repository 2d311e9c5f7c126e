package vm

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Program blob framing.
var programMagic = [4]byte{'C', 'V', 'M', '1'}

const programVersion = uint16(1)

// programHeaderSize: magic (4) + version (2) + reserved (2) + entry (8) +
// text count (4) + ro length (4).
const programHeaderSize = 4 + 2 + 2 + 8 + 4 + 4

// Blob limits. Generous for hand-assembled contracts, tight enough that a
// corrupt header cannot drive a huge allocation.
const (
	maxTextWords = 1 << 20
	maxROBytes   = 1 << 24
)

var (
	// ErrBadProgram is returned when a program blob cannot be decoded.
	ErrBadProgram = errors.New("malformed program blob")
)

// Program is an executable contract: instruction words, optional read-only
// data, and the entry instruction index.
type Program struct {
	Text  []uint64
	RO    []byte
	Entry uint64
}

// MarshalProgram encodes a program into its storable blob form.
func MarshalProgram(p *Program) []byte {
	buf := make([]byte, programHeaderSize+8*len(p.Text)+len(p.RO))
	copy(buf[0:4], programMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], programVersion)
	binary.LittleEndian.PutUint64(buf[8:16], p.Entry)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(p.Text)))
	binary.LittleEndian.PutUint32(buf[20:24], uint32(len(p.RO)))

	off := programHeaderSize
	for _, ins := range p.Text {
		binary.LittleEndian.PutUint64(buf[off:off+8], ins)
		off += 8
	}
	copy(buf[off:], p.RO)
	return buf
}

// UnmarshalProgram decodes a program blob.
func UnmarshalProgram(data []byte) (*Program, error) {
	if len(data) < programHeaderSize {
		return nil, fmt.Errorf("%w: truncated header", ErrBadProgram)
	}
	if [4]byte(data[0:4]) != programMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrBadProgram)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != programVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadProgram, v)
	}

	entry := binary.LittleEndian.Uint64(data[8:16])
	textLen := binary.LittleEndian.Uint32(data[16:20])
	roLen := binary.LittleEndian.Uint32(data[20:24])
	if textLen > maxTextWords || roLen > maxROBytes {
		return nil, fmt.Errorf("%w: oversized sections", ErrBadProgram)
	}
	want := programHeaderSize + 8*int(textLen) + int(roLen)
	if len(data) != want {
		return nil, fmt.Errorf("%w: length %d, want %d", ErrBadProgram, len(data), want)
	}
	if textLen == 0 {
		return nil, fmt.Errorf("%w: empty text", ErrBadProgram)
	}
	if entry >= uint64(textLen) {
		return nil, fmt.Errorf("%w: entry %d outside text", ErrBadProgram, entry)
	}

	p := &Program{
		Text:  make([]uint64, textLen),
		Entry: entry,
	}
	off := programHeaderSize
	for i := range p.Text {
		p.Text[i] = binary.LittleEndian.Uint64(data[off : off+8])
		off += 8
	}
	if roLen > 0 {
		p.RO = make([]byte, roLen)
		copy(p.RO, data[off:])
	}
	return p, nil
}
