package vm

// Instruction costs in gas units.
const (
	CostALU   = uint64(1)
	CostMul   = uint64(4)
	CostDiv   = uint64(12)
	CostLoad  = uint64(2)
	CostStore = uint64(2)
	CostLddw  = uint64(2)
	CostJump  = uint64(1)
	CostCall  = uint64(5)
	CostExit  = uint64(1)
)

// instructionCost returns the gas cost for an opcode.
func instructionCost(op uint8) uint64 {
	switch op & 0x07 {
	case ClassAlu64:
		switch op & 0xF0 {
		case AluMul:
			return CostMul
		case AluDiv, AluMod:
			return CostDiv
		default:
			return CostALU
		}

	case ClassLd, ClassLdx:
		if op == OpLddw {
			return CostLddw
		}
		return CostLoad

	case ClassSt, ClassStx:
		return CostStore

	case ClassJmp:
		switch op & 0xF0 {
		case JmpCall:
			return CostCall
		case JmpExit:
			return CostExit
		default:
			return CostJump
		}

	default:
		return CostALU
	}
}

// GasMeter tracks gas consumption for one execution. Host functions charge
// through the same meter, so one budget covers the whole call.
type GasMeter struct {
	remaining uint64
	limit     uint64
}

// NewGasMeter creates a meter with the given budget.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{remaining: limit, limit: limit}
}

// Consume deducts cost, or returns ErrOutOfGas with the meter drained.
func (g *GasMeter) Consume(cost uint64) error {
	if g.remaining < cost {
		g.remaining = 0
		return ErrOutOfGas
	}
	g.remaining -= cost
	return nil
}

// Remaining returns the unspent budget.
func (g *GasMeter) Remaining() uint64 {
	return g.remaining
}

// Consumed returns the spent budget.
func (g *GasMeter) Consumed() uint64 {
	return g.limit - g.remaining
}

// Limit returns the initial budget.
func (g *GasMeter) Limit() uint64 {
	return g.limit
}
