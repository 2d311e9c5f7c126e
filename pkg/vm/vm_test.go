package vm

import (
	"bytes"
	"errors"
	"testing"
)

func run(t *testing.T, text []uint64, input []byte, opts Opts) (uint64, error) {
	t.Helper()
	if opts.Meter == nil {
		opts.Meter = NewGasMeter(1_000_000)
	}
	ip := NewInterpreter(&Program{Text: text}, input, opts)
	return ip.Run()
}

func TestALU(t *testing.T) {
	lddwLow := uint32(0x9abcdef0)
	tests := []struct {
		name     string
		program  []uint64
		expected uint64
	}{
		{
			name: "add immediate",
			program: []uint64{
				Encode(OpMovImm, 0, 0, 0, 30),
				Encode(OpAddImm, 0, 0, 0, 12),
				Encode(OpExit, 0, 0, 0, 0),
			},
			expected: 42,
		},
		{
			name: "sub register",
			program: []uint64{
				Encode(OpMovImm, 0, 0, 0, 100),
				Encode(OpMovImm, 1, 0, 0, 58),
				Encode(OpSubReg, 0, 1, 0, 0),
				Encode(OpExit, 0, 0, 0, 0),
			},
			expected: 42,
		},
		{
			name: "mul and mod",
			program: []uint64{
				Encode(OpMovImm, 0, 0, 0, 7),
				Encode(OpMulImm, 0, 0, 0, 13),
				Encode(OpModImm, 0, 0, 0, 49),
				Encode(OpExit, 0, 0, 0, 0),
			},
			expected: 42,
		},
		{
			name: "xor toggles",
			program: []uint64{
				Encode(OpMovImm, 0, 0, 0, 0),
				Encode(OpXorImm, 0, 0, 0, 1),
				Encode(OpXorImm, 0, 0, 0, 1),
				Encode(OpXorImm, 0, 0, 0, 1),
				Encode(OpExit, 0, 0, 0, 0),
			},
			expected: 1,
		},
		{
			name: "shifts",
			program: []uint64{
				Encode(OpMovImm, 0, 0, 0, 1),
				Encode(OpLshImm, 0, 0, 0, 40),
				Encode(OpRshImm, 0, 0, 0, 39),
				Encode(OpExit, 0, 0, 0, 0),
			},
			expected: 2,
		},
		{
			name: "lddw wide immediate",
			program: []uint64{
				Encode(OpLddw, 0, 0, 0, int32(lddwLow)),
				uint64(0x12345678) << 32,
				Encode(OpExit, 0, 0, 0, 0),
			},
			expected: 0x123456789abcdef0,
		},
		{
			name: "neg",
			program: []uint64{
				Encode(OpMovImm, 0, 0, 0, 42),
				Encode(OpNeg, 0, 0, 0, 0),
				Encode(OpNeg, 0, 0, 0, 0),
				Encode(OpExit, 0, 0, 0, 0),
			},
			expected: 42,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := run(t, tt.program, nil, Opts{})
			if err != nil {
				t.Fatalf("Run() failed: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Run() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestJumps(t *testing.T) {
	// Count down from 5, summing into r0.
	program := []uint64{
		Encode(OpMovImm, 0, 0, 0, 0),
		Encode(OpMovImm, 1, 0, 0, 5),
		Encode(OpJeqImm, 1, 0, 3, 0), // while r1 != 0
		Encode(OpAddReg, 0, 1, 0, 0),
		Encode(OpSubImm, 1, 0, 0, 1),
		Encode(OpJa, 0, 0, -4, 0),
		Encode(OpExit, 0, 0, 0, 0),
	}
	got, err := run(t, program, nil, Opts{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got != 15 {
		t.Errorf("Run() = %d, want 15", got)
	}
}

func TestSignedComparison(t *testing.T) {
	// -1 unsigned is huge, signed it is less than 1.
	program := []uint64{
		Encode(OpMovImm, 1, 0, 0, -1),
		Encode(OpMovImm, 0, 0, 0, 0),
		Encode(OpJsltImm, 1, 0, 1, 1),
		Encode(OpExit, 0, 0, 0, 0), // skipped when jump taken
		Encode(OpMovImm, 0, 0, 0, 42),
		Encode(OpExit, 0, 0, 0, 0),
	}
	got, err := run(t, program, nil, Opts{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got != 42 {
		t.Errorf("Run() = %d, want 42", got)
	}
}

func TestStackMemory(t *testing.T) {
	// Spill a value through the frame and load it back.
	program := []uint64{
		Encode(OpMovImm, 1, 0, 0, 42),
		Encode(OpStxdw, 10, 1, -8, 0),
		Encode(OpLdxdw, 0, 10, -8, 0),
		Encode(OpExit, 0, 0, 0, 0),
	}
	got, err := run(t, program, nil, Opts{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got != 42 {
		t.Errorf("Run() = %d, want 42", got)
	}
}

func TestInputRegion(t *testing.T) {
	// r1 = input pointer, r2 = input length. Return input[2] + length.
	program := []uint64{
		Encode(OpLdxb, 0, 1, 2, 0),
		Encode(OpAddReg, 0, 2, 0, 0),
		Encode(OpExit, 0, 0, 0, 0),
	}
	got, err := run(t, program, []byte{1, 2, 40}, Opts{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got != 43 {
		t.Errorf("Run() = %d, want 43", got)
	}
}

func TestInputIsReadOnly(t *testing.T) {
	program := []uint64{
		Encode(OpStb, 1, 0, 0, 7),
		Encode(OpExit, 0, 0, 0, 0),
	}
	_, err := run(t, program, []byte{0}, Opts{})
	if !errors.Is(err, ErrMemoryAccess) {
		t.Errorf("Run() err = %v, want ErrMemoryAccess", err)
	}
}

func TestMemoryViolations(t *testing.T) {
	tests := []struct {
		name    string
		program []uint64
	}{
		{
			name: "unmapped region",
			program: []uint64{
				Encode(OpLddw, 1, 0, 0, 0),
				uint64(0xdead) << 32,
				Encode(OpLdxdw, 0, 1, 0, 0),
				Encode(OpExit, 0, 0, 0, 0),
			},
		},
		{
			name: "stack overrun",
			program: []uint64{
				Encode(OpMovImm, 1, 0, 0, 1),
				Encode(OpLshImm, 1, 0, 0, 33), // VaddrStack base
				Encode(OpLdxdw, 0, 1, -8, 0),  // wraps below region
				Encode(OpExit, 0, 0, 0, 0),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.program, nil, Opts{}); !errors.Is(err, ErrMemoryAccess) {
				t.Errorf("Run() err = %v, want ErrMemoryAccess", err)
			}
		})
	}
}

func TestDivisionByZero(t *testing.T) {
	program := []uint64{
		Encode(OpMovImm, 0, 0, 0, 7),
		Encode(OpMovImm, 1, 0, 0, 0),
		Encode(OpDivReg, 0, 1, 0, 0),
		Encode(OpExit, 0, 0, 0, 0),
	}
	if _, err := run(t, program, nil, Opts{}); !errors.Is(err, ErrDivisionByZero) {
		t.Errorf("Run() err = %v, want ErrDivisionByZero", err)
	}
}

func TestGasExhaustion(t *testing.T) {
	// Infinite loop.
	program := []uint64{
		Encode(OpJa, 0, 0, -1, 0),
	}
	meter := NewGasMeter(100)
	_, err := run(t, program, nil, Opts{Meter: meter})
	if !errors.Is(err, ErrOutOfGas) {
		t.Fatalf("Run() err = %v, want ErrOutOfGas", err)
	}
	if meter.Remaining() != 0 {
		t.Errorf("Remaining() = %d, want 0", meter.Remaining())
	}
	if meter.Consumed() != meter.Limit() {
		t.Errorf("Consumed() = %d, want %d", meter.Consumed(), meter.Limit())
	}
}

func TestGasAccounting(t *testing.T) {
	program := []uint64{
		Encode(OpMovImm, 0, 0, 0, 1), // CostALU
		Encode(OpMulImm, 0, 0, 0, 2), // CostMul
		Encode(OpExit, 0, 0, 0, 0),   // CostExit
	}
	meter := NewGasMeter(1000)
	if _, err := run(t, program, nil, Opts{Meter: meter}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	want := CostALU + CostMul + CostExit
	if meter.Consumed() != want {
		t.Errorf("Consumed() = %d, want %d", meter.Consumed(), want)
	}
}

func TestHostCall(t *testing.T) {
	hosts := NewHostRegistry()
	hosts.Register("test_add", func(_ *Interpreter, r1, r2, _, _, _ uint64) (uint64, error) {
		return r1 + r2, nil
	})

	program := []uint64{
		Encode(OpMovImm, 1, 0, 0, 40),
		Encode(OpMovImm, 2, 0, 0, 2),
		EncodeCall("test_add"),
		Encode(OpExit, 0, 0, 0, 0),
	}
	got, err := run(t, program, nil, Opts{Hosts: hosts})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got != 42 {
		t.Errorf("Run() = %d, want 42", got)
	}
}

func TestUnknownHostCall(t *testing.T) {
	program := []uint64{
		EncodeCall("no_such_fn"),
		Encode(OpExit, 0, 0, 0, 0),
	}
	if _, err := run(t, program, nil, Opts{}); !errors.Is(err, ErrUnknownHostFn) {
		t.Errorf("Run() err = %v, want ErrUnknownHostFn", err)
	}
}

func TestHostCallErrorPropagates(t *testing.T) {
	boom := errors.New("host fault")
	hosts := NewHostRegistry()
	hosts.Register("test_fail", func(_ *Interpreter, _, _, _, _, _ uint64) (uint64, error) {
		return 0, boom
	})

	program := []uint64{
		EncodeCall("test_fail"),
		Encode(OpExit, 0, 0, 0, 0),
	}
	if _, err := run(t, program, nil, Opts{Hosts: hosts}); !errors.Is(err, boom) {
		t.Errorf("Run() err = %v, want host fault", err)
	}
}

func TestRelativeCall(t *testing.T) {
	// main: r6 = 7, call helper, return r0 + r6.
	// helper: r0 = 35, clobbers r6, exit restores it.
	program := []uint64{
		Encode(OpMovImm, 6, 0, 0, 7),
		EncodeCallRel(2), // to pc 3
		Encode(OpAddReg, 0, 6, 0, 0),
		Encode(OpExit, 0, 0, 0, 0),
		// helper at pc 4... relative target = pc+imm+1 = 1+2+1 = 4
		Encode(OpMovImm, 0, 0, 0, 35),
		Encode(OpMovImm, 6, 0, 0, 99),
		Encode(OpExit, 0, 0, 0, 0),
	}
	got, err := run(t, program, nil, Opts{})
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if got != 42 {
		t.Errorf("Run() = %d, want 42", got)
	}
}

func TestCallDepthLimit(t *testing.T) {
	// Entry recurses into itself forever.
	program := []uint64{
		EncodeCallRel(-1), // target = pc+imm+1 = pc, self
		Encode(OpExit, 0, 0, 0, 0),
	}
	if _, err := run(t, program, nil, Opts{}); !errors.Is(err, ErrCallDepth) {
		t.Errorf("Run() err = %v, want ErrCallDepth", err)
	}
}

func TestInvalidInstruction(t *testing.T) {
	tests := []struct {
		name    string
		program []uint64
	}{
		{"bad opcode", []uint64{Encode(0xFE, 0, 0, 0, 0)}},
		{"write to r10", []uint64{Encode(OpMovImm, 10, 0, 0, 1)}},
		{"truncated lddw", []uint64{Encode(OpLddw, 0, 0, 0, 0)}},
		{"pc runs off end", []uint64{Encode(OpMovImm, 0, 0, 0, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.program, nil, Opts{}); !errors.Is(err, ErrInvalidInstruction) {
				t.Errorf("Run() err = %v, want ErrInvalidInstruction", err)
			}
		})
	}
}

func TestProgramBlobRoundTrip(t *testing.T) {
	p := &Program{
		Text: []uint64{
			Encode(OpMovImm, 0, 0, 0, 42),
			Encode(OpExit, 0, 0, 0, 0),
		},
		RO:    []byte("constants"),
		Entry: 0,
	}
	decoded, err := UnmarshalProgram(MarshalProgram(p))
	if err != nil {
		t.Fatalf("UnmarshalProgram() failed: %v", err)
	}
	if len(decoded.Text) != len(p.Text) || decoded.Text[0] != p.Text[0] {
		t.Errorf("decoded text = %v, want %v", decoded.Text, p.Text)
	}
	if !bytes.Equal(decoded.RO, p.RO) {
		t.Errorf("decoded ro = %q, want %q", decoded.RO, p.RO)
	}
	if decoded.Entry != p.Entry {
		t.Errorf("decoded entry = %d, want %d", decoded.Entry, p.Entry)
	}
}

func TestUnmarshalProgramRejectsGarbage(t *testing.T) {
	valid := MarshalProgram(&Program{Text: []uint64{Encode(OpExit, 0, 0, 0, 0)}})

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("XXXX"), valid[4:]...)},
		{"truncated", valid[:len(valid)-3]},
		{"empty text", MarshalProgram(&Program{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalProgram(tt.data); !errors.Is(err, ErrBadProgram) {
				t.Errorf("UnmarshalProgram() err = %v, want ErrBadProgram", err)
			}
		})
	}
}
