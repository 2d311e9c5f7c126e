package runtime

import "fmt"

// Module indices. Fixed across versions so error codes stay stable for
// callers that assert on them.
const (
	ModuleSystem    uint8 = 0
	ModuleBalances  uint8 = 1
	ModuleTimestamp uint8 = 2
	ModuleContracts uint8 = 3
)

// Balances module error indices.
const (
	BalancesInsufficientBalance uint8 = 0
	BalancesExistentialDeposit  uint8 = 1
	BalancesUnknownAccount      uint8 = 2
	BalancesOverflow            uint8 = 3
)

// Timestamp module error indices.
const (
	TimestampInvalid uint8 = 0
)

// Contracts module error indices.
const (
	ContractsDuplicateContract   uint8 = 0
	ContractsCodeNotFound        uint8 = 1
	ContractsOutOfGas            uint8 = 2
	ContractsContractTrapped     uint8 = 3
	ContractsMaxCallDepthReached uint8 = 4
	ContractsTransferFailed      uint8 = 5
	ContractsDecodingFailed      uint8 = 6
)

// DispatchError is a module-level failure: a (module index, error index)
// pair. The pair is the wire-level truth; names come from a Table lookup
// and unknown pairs stay representable.
type DispatchError struct {
	Module uint8
	Index  uint8
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("module error %d:%d", e.Module, e.Index)
}

// Is makes DispatchError comparisons work through errors.Is.
func (e *DispatchError) Is(target error) bool {
	t, ok := target.(*DispatchError)
	return ok && *e == *t
}

// ModuleMeta describes one module for error-name resolution.
type ModuleMeta struct {
	Name   string
	Errors map[uint8]string
}

// Table resolves (module, index) pairs to human-readable names. Tables are
// injected so alternate runtimes can carry their own; lookups never fail
// hard — a miss reports ok=false and callers keep the raw pair.
type Table struct {
	Modules map[uint8]ModuleMeta
}

// DefaultTable returns the table for the built-in runtime modules.
func DefaultTable() *Table {
	return &Table{
		Modules: map[uint8]ModuleMeta{
			ModuleSystem: {
				Name:   "System",
				Errors: map[uint8]string{},
			},
			ModuleBalances: {
				Name: "Balances",
				Errors: map[uint8]string{
					BalancesInsufficientBalance: "InsufficientBalance",
					BalancesExistentialDeposit:  "ExistentialDeposit",
					BalancesUnknownAccount:      "UnknownAccount",
					BalancesOverflow:            "Overflow",
				},
			},
			ModuleTimestamp: {
				Name: "Timestamp",
				Errors: map[uint8]string{
					TimestampInvalid: "InvalidTimestamp",
				},
			},
			ModuleContracts: {
				Name: "Contracts",
				Errors: map[uint8]string{
					ContractsDuplicateContract:   "DuplicateContract",
					ContractsCodeNotFound:        "CodeNotFound",
					ContractsOutOfGas:            "OutOfGas",
					ContractsContractTrapped:     "ContractTrapped",
					ContractsMaxCallDepthReached: "MaxCallDepthReached",
					ContractsTransferFailed:      "TransferFailed",
					ContractsDecodingFailed:      "DecodingFailed",
				},
			},
		},
	}
}

// Lookup resolves a (module, index) pair. ok is false when either the
// module or the error index has no entry; callers must then preserve the
// raw pair rather than substitute a guess.
func (t *Table) Lookup(module, index uint8) (moduleName, errorName string, ok bool) {
	meta, found := t.Modules[module]
	if !found {
		return "", "", false
	}
	name, found := meta.Errors[index]
	if !found {
		return meta.Name, "", false
	}
	return meta.Name, name, true
}
