package bundle

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/types"
)

var (
	// ErrBadValue is returned when a Go value does not fit its declared
	// ABI type.
	ErrBadValue = errors.New("value does not match abi type")

	// ErrBadEncoding is returned when encoded data cannot be decoded as
	// its declared ABI type.
	ErrBadEncoding = errors.New("malformed abi encoding")
)

// EncodeValue encodes one value per its ABI type. Fixed-width integers are
// little-endian; string and bytes carry a u32 length prefix; addresses are
// raw 32 bytes.
func EncodeValue(typ string, v interface{}) ([]byte, error) {
	switch typ {
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: %T as bool", ErrBadValue, v)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case "u8":
		n, err := asUint64(v)
		if err != nil || n > 0xFF {
			return nil, fmt.Errorf("%w: %v as u8", ErrBadValue, v)
		}
		return []byte{byte(n)}, nil

	case "u32":
		n, err := asUint64(v)
		if err != nil || n > 0xFFFFFFFF {
			return nil, fmt.Errorf("%w: %v as u32", ErrBadValue, v)
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(n))
		return buf, nil

	case "u64":
		n, err := asUint64(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v as u64", ErrBadValue, v)
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, n)
		return buf, nil

	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %T as string", ErrBadValue, v)
		}
		return prefixed([]byte(s)), nil

	case "bytes":
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: %T as bytes", ErrBadValue, v)
		}
		return prefixed(b), nil

	case "address":
		switch a := v.(type) {
		case types.AccountID:
			return a.Bytes(), nil
		case [types.AccountIDSize]byte:
			return a[:], nil
		case []byte:
			if len(a) == types.AccountIDSize {
				out := make([]byte, types.AccountIDSize)
				copy(out, a)
				return out, nil
			}
		}
		return nil, fmt.Errorf("%w: %T as address", ErrBadValue, v)

	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrBadValue, typ)
	}
}

// DecodeValue decodes one value of the given ABI type from the front of
// data, returning the value and the bytes consumed.
func DecodeValue(typ string, data []byte) (interface{}, int, error) {
	switch typ {
	case "bool":
		if len(data) < 1 {
			return nil, 0, short(typ)
		}
		switch data[0] {
		case 0:
			return false, 1, nil
		case 1:
			return true, 1, nil
		}
		return nil, 0, fmt.Errorf("%w: bool byte 0x%02x", ErrBadEncoding, data[0])

	case "u8":
		if len(data) < 1 {
			return nil, 0, short(typ)
		}
		return uint8(data[0]), 1, nil

	case "u32":
		if len(data) < 4 {
			return nil, 0, short(typ)
		}
		return binary.LittleEndian.Uint32(data), 4, nil

	case "u64":
		if len(data) < 8 {
			return nil, 0, short(typ)
		}
		return binary.LittleEndian.Uint64(data), 8, nil

	case "string":
		b, n, err := unprefix(data)
		if err != nil {
			return nil, 0, err
		}
		return string(b), n, nil

	case "bytes":
		b, n, err := unprefix(data)
		if err != nil {
			return nil, 0, err
		}
		return b, n, nil

	case "address":
		if len(data) < types.AccountIDSize {
			return nil, 0, short(typ)
		}
		addr, err := types.AccountIDFromBytes(data[:types.AccountIDSize])
		if err != nil {
			return nil, 0, err
		}
		return addr, types.AccountIDSize, nil

	default:
		return nil, 0, fmt.Errorf("%w: unknown type %q", ErrBadEncoding, typ)
	}
}

// EncodeInput builds the call input for a message: selector followed by
// each argument in declaration order.
func EncodeInput(msg *Message, args ...interface{}) ([]byte, error) {
	if len(args) != len(msg.Args) {
		return nil, fmt.Errorf("%w: %q takes %d args, got %d", ErrBadValue, msg.Label, len(msg.Args), len(args))
	}
	sel, err := msg.SelectorBytes()
	if err != nil {
		return nil, err
	}

	out := append([]byte{}, sel[:]...)
	for i, arg := range msg.Args {
		enc, err := EncodeValue(arg.Type, args[i])
		if err != nil {
			return nil, fmt.Errorf("arg %q: %w", arg.Label, err)
		}
		out = append(out, enc...)
	}
	return out, nil
}

// DecodeReturn decodes a message's return data. Messages without a return
// type yield nil and require empty data.
func DecodeReturn(msg *Message, data []byte) (interface{}, error) {
	if msg.Returns == "" {
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: %q returns nothing, got %d bytes", ErrBadEncoding, msg.Label, len(data))
		}
		return nil, nil
	}
	v, n, err := DecodeValue(msg.Returns, data)
	if err != nil {
		return nil, fmt.Errorf("return of %q: %w", msg.Label, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after return of %q", ErrBadEncoding, len(data)-n, msg.Label)
	}
	return v, nil
}

func prefixed(b []byte) []byte {
	out := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(out, uint32(len(b)))
	copy(out[4:], b)
	return out
}

func unprefix(data []byte) ([]byte, int, error) {
	if len(data) < 4 {
		return nil, 0, fmt.Errorf("%w: truncated length prefix", ErrBadEncoding)
	}
	n := binary.LittleEndian.Uint32(data)
	if uint64(len(data)) < 4+uint64(n) {
		return nil, 0, fmt.Errorf("%w: length %d exceeds data", ErrBadEncoding, n)
	}
	out := make([]byte, n)
	copy(out, data[4:4+n])
	return out, 4 + int(n), nil
}

func short(typ string) error {
	return fmt.Errorf("%w: truncated %s", ErrBadEncoding, typ)
}

func asUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, ErrBadValue
		}
		return uint64(n), nil
	case int32:
		if n < 0 {
			return 0, ErrBadValue
		}
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, ErrBadValue
		}
		return uint64(n), nil
	default:
		return 0, ErrBadValue
	}
}
