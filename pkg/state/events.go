package state

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/types"
)

// EventRecord is one entry in the pending event log.
type EventRecord struct {
	// Block is the block the event was emitted in.
	Block uint64 `json:"block"`

	// Module names the runtime module that emitted the event, e.g.
	// "Balances". Empty for contract events.
	Module string `json:"module,omitempty"`

	// Name is the event name within its module, e.g. "Transfer".
	Name string `json:"name,omitempty"`

	// Contract is the emitting contract, zero for module events.
	Contract types.AccountID `json:"contract,omitempty"`

	// Topics are the indexed event topics, contract events only.
	Topics []types.Hash `json:"topics,omitempty"`

	// Data is the event payload.
	Data []byte `json:"data,omitempty"`
}

func eventKey(index uint64) []byte {
	// Big-endian index so store iteration yields emission order.
	key := make([]byte, 1+8)
	key[0] = prefixEvent[0]
	binary.BigEndian.PutUint64(key[1:], index)
	return key
}

// EmitEvent appends an event to the pending log. The record's Block field is
// filled in from the current block context.
func (s *State) EmitEvent(rec EventRecord) error {
	block, err := s.BlockNumber()
	if err != nil {
		return err
	}
	rec.Block = block

	count, err := s.metaUint64(metaEventCount)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.kv.Set(eventKey(count), data); err != nil {
		return err
	}
	return s.setMetaUint64(metaEventCount, count+1)
}

// Events returns the pending event log in emission order.
func (s *State) Events() ([]EventRecord, error) {
	var out []EventRecord
	err := s.kv.Iterate(prefixEvent, func(_, value []byte) error {
		var rec EventRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// ResetEvents clears the pending event log. Called when a block is sealed.
func (s *State) ResetEvents() error {
	var keys [][]byte
	err := s.kv.Iterate(prefixEvent, func(key, _ []byte) error {
		k := make([]byte, len(key))
		copy(k, key)
		keys = append(keys, k)
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.kv.Delete(k); err != nil {
			return err
		}
	}
	return s.setMetaUint64(metaEventCount, 0)
}
