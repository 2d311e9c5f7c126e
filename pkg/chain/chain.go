// Package chain seals blocks over the ledger state: each sealed block
// drains the pending event log and advances the block number and timestamp.
package chain

import (
	"errors"
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/state"
	"github.com/r0gue-io/pop-drink/pkg/types"
)

// DefaultBlockTime is the timestamp step between blocks in milliseconds.
const DefaultBlockTime = uint64(6000)

// ErrBadBlockTime rejects a zero block time.
var ErrBadBlockTime = errors.New("block time must be positive")

// Block describes one sealed block.
type Block struct {
	// Number of the sealed block.
	Number uint64

	// Timestamp of the sealed block in milliseconds.
	Timestamp uint64

	// StateRoot is the ledger root after sealing.
	StateRoot types.Hash

	// Events drained from the pending log when the block was sealed.
	Events []state.EventRecord
}

// Builder seals blocks.
type Builder struct {
	st        *state.State
	blockTime uint64
}

// NewBuilder creates a block builder stepping timestamps by blockTime
// milliseconds.
func NewBuilder(st *state.State, blockTime uint64) (*Builder, error) {
	if blockTime == 0 {
		return nil, ErrBadBlockTime
	}
	return &Builder{st: st, blockTime: blockTime}, nil
}

// Seal finalizes the current block and opens the next one: the pending
// events are drained into the returned Block, the block number increments
// and the timestamp advances by the block time. Sealing is atomic.
func (b *Builder) Seal() (*Block, error) {
	snap, err := b.st.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer b.st.Discard(snap)

	blk, err := b.seal()
	if err != nil {
		if rerr := b.st.Restore(snap); rerr != nil {
			return nil, fmt.Errorf("restore: %w", rerr)
		}
		return nil, err
	}
	return blk, nil
}

func (b *Builder) seal() (*Block, error) {
	number, err := b.st.BlockNumber()
	if err != nil {
		return nil, err
	}
	timestamp, err := b.st.Timestamp()
	if err != nil {
		return nil, err
	}
	events, err := b.st.Events()
	if err != nil {
		return nil, err
	}

	if err := b.st.ResetEvents(); err != nil {
		return nil, err
	}
	if err := b.st.SetBlockContext(number+1, timestamp+b.blockTime); err != nil {
		return nil, err
	}
	root, err := b.st.Root()
	if err != nil {
		return nil, err
	}

	return &Block{
		Number:    number,
		Timestamp: timestamp,
		StateRoot: root,
		Events:    events,
	}, nil
}

// SealMany seals n consecutive blocks and returns the last one.
func (b *Builder) SealMany(n int) (*Block, error) {
	if n <= 0 {
		return nil, fmt.Errorf("seal count %d", n)
	}
	var last *Block
	for i := 0; i < n; i++ {
		blk, err := b.Seal()
		if err != nil {
			return nil, err
		}
		last = blk
	}
	return last, nil
}
