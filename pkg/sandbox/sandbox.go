// Package sandbox assembles the in-process contract environment: a ledger
// state over a chosen store, the runtime dispatcher, the contract engine
// and the block builder, behind one façade.
package sandbox

import (
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/chain"
	"github.com/r0gue-io/pop-drink/pkg/engine"
	"github.com/r0gue-io/pop-drink/pkg/runtime"
	"github.com/r0gue-io/pop-drink/pkg/state"
	"github.com/r0gue-io/pop-drink/pkg/store"
	"github.com/r0gue-io/pop-drink/pkg/types"
)

// Sandbox is a complete in-process contract environment.
type Sandbox struct {
	cfg     Config
	kv      store.Store
	st      *state.State
	disp    *runtime.Dispatcher
	eng     *engine.Engine
	builder *chain.Builder
}

// New creates a sandbox at genesis.
func New(cfg Config) (*Sandbox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var kv store.Store
	switch cfg.Backend {
	case BackendMemory:
		kv = store.NewMemStore()
	case BackendBadger:
		b, err := store.NewBadgerStore(store.DefaultBadgerConfig(cfg.Path))
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		kv = b
	}
	return NewWithStore(cfg, kv)
}

// NewWithStore creates a sandbox at genesis over a caller-provided store.
// The sandbox takes ownership of the store.
func NewWithStore(cfg Config, kv store.Store) (*Sandbox, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st := state.New(kv)
	if err := st.ResetToGenesis(cfg.InitialBalances, cfg.GenesisTimestamp); err != nil {
		kv.Close()
		return nil, fmt.Errorf("genesis: %w", err)
	}

	disp := runtime.NewDispatcher(cfg.ExistentialDeposit)
	builder, err := chain.NewBuilder(st, cfg.BlockTime)
	if err != nil {
		kv.Close()
		return nil, err
	}

	return &Sandbox{
		cfg:     cfg,
		kv:      kv,
		st:      st,
		disp:    disp,
		eng:     engine.New(st, disp),
		builder: builder,
	}, nil
}

// State exposes the ledger state.
func (s *Sandbox) State() *state.State {
	return s.st
}

// Engine exposes the contract engine.
func (s *Sandbox) Engine() *engine.Engine {
	return s.eng
}

// GasLimit returns the configured default gas budget.
func (s *Sandbox) GasLimit() types.Weight {
	return s.cfg.GasLimit
}

// Dispatch executes a runtime call as origin.
func (s *Sandbox) Dispatch(origin types.AccountID, call runtime.Call) (*runtime.Outcome, error) {
	out, err := s.disp.Dispatch(s.st, origin, call)
	if s.cfg.OnDispatch != nil {
		s.cfg.OnDispatch(call, err)
	}
	return out, err
}

// BuildBlock seals the current block and opens the next one.
func (s *Sandbox) BuildBlock() (*chain.Block, error) {
	blk, err := s.builder.Seal()
	if err != nil {
		return nil, err
	}
	if s.cfg.OnBlock != nil {
		s.cfg.OnBlock(blk)
	}
	return blk, nil
}

// BuildBlocks seals n consecutive blocks and returns the last one.
func (s *Sandbox) BuildBlocks(n int) (*chain.Block, error) {
	var last *chain.Block
	for i := 0; i < n; i++ {
		blk, err := s.BuildBlock()
		if err != nil {
			return nil, err
		}
		last = blk
	}
	if last == nil {
		return nil, fmt.Errorf("build count %d", n)
	}
	return last, nil
}

// DryRun executes fn against the sandbox and rolls every state change back
// afterwards, whether fn succeeded or not. The returned error is fn's.
func (s *Sandbox) DryRun(fn func(*Sandbox) error) error {
	snap, err := s.st.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	defer s.st.Discard(snap)

	ferr := fn(s)

	if err := s.st.Restore(snap); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	return ferr
}

// Reset rewinds the sandbox to genesis.
func (s *Sandbox) Reset() error {
	return s.st.ResetToGenesis(s.cfg.InitialBalances, s.cfg.GenesisTimestamp)
}

// Root returns the ledger state root.
func (s *Sandbox) Root() (types.Hash, error) {
	return s.st.Root()
}

// Close releases the underlying store.
func (s *Sandbox) Close() error {
	return s.kv.Close()
}
