package sandbox

import (
	"errors"
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/chain"
	"github.com/r0gue-io/pop-drink/pkg/runtime"
	"github.com/r0gue-io/pop-drink/pkg/state"
	"github.com/r0gue-io/pop-drink/pkg/types"
)

// Backend selects the key-value store the ledger lives in.
type Backend string

const (
	// BackendMemory keeps the ledger in process memory.
	BackendMemory Backend = "memory"

	// BackendBadger persists the ledger in a Badger database.
	BackendBadger Backend = "badger"
)

// ErrConfigInvalid is wrapped by every configuration validation failure.
var ErrConfigInvalid = errors.New("invalid sandbox config")

// Config holds the sandbox parameters.
type Config struct {
	// Backend selects the store implementation.
	Backend Backend

	// Path is the Badger database directory, required for BackendBadger.
	Path string

	// InitialBalances funds accounts at genesis.
	InitialBalances []state.GenesisAccount

	// GenesisTimestamp is the timestamp of block 1 in milliseconds.
	GenesisTimestamp uint64

	// BlockTime is the timestamp step between blocks in milliseconds.
	BlockTime uint64

	// GasLimit is the default execution budget for contract calls.
	GasLimit types.Weight

	// ExistentialDeposit bounds keep-alive transfers.
	ExistentialDeposit types.Balance

	// OnBlock, when set, observes every sealed block.
	OnBlock func(*chain.Block)

	// OnDispatch, when set, observes every runtime call and its outcome.
	OnDispatch func(call runtime.Call, err error)
}

// DefaultConfig returns a memory-backed sandbox configuration with the
// well-known dev accounts funded.
func DefaultConfig() Config {
	return Config{
		Backend: BackendMemory,
		InitialBalances: []state.GenesisAccount{
			{Address: types.Alice, Balance: 1_000_000_000},
			{Address: types.Bob, Balance: 1_000_000_000},
			{Address: types.Charlie, Balance: 1_000_000_000},
		},
		BlockTime: chain.DefaultBlockTime,
		GasLimit: types.Weight{
			RefTime:   100_000_000,
			ProofSize: 3 << 20,
		},
		ExistentialDeposit: 1,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendBadger:
		if c.Path == "" {
			return fmt.Errorf("%w: badger backend needs a path", ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrConfigInvalid, c.Backend)
	}
	if c.BlockTime == 0 {
		return fmt.Errorf("%w: block time must be positive", ErrConfigInvalid)
	}
	if c.GasLimit.RefTime == 0 {
		return fmt.Errorf("%w: gas limit ref time must be positive", ErrConfigInvalid)
	}
	dup := make(map[types.AccountID]bool, len(c.InitialBalances))
	for _, g := range c.InitialBalances {
		if dup[g.Address] {
			return fmt.Errorf("%w: duplicate genesis account %s", ErrConfigInvalid, g.Address)
		}
		dup[g.Address] = true
	}
	return nil
}
