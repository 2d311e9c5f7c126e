// Package bundle handles deployable contract bundles: code plus ABI
// metadata, the registries that resolve them by label, and the value codec
// for call arguments and returns.
package bundle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// SelectorSize is the length of a message selector.
const SelectorSize = 4

// Selector computes the default selector for a message label: the first
// four bytes of BLAKE2b-256 over the label.
func Selector(label string) [SelectorSize]byte {
	digest := blake2b.Sum256([]byte(label))
	var sel [SelectorSize]byte
	copy(sel[:], digest[:SelectorSize])
	return sel
}

// Arg describes one message argument.
type Arg struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Message describes one callable entry point, constructor or message.
type Message struct {
	Label string `json:"label"`

	// Selector optionally pins an explicit selector as 0x-prefixed hex.
	// When empty the label-derived default applies.
	Selector string `json:"selector,omitempty"`

	Args []Arg `json:"args,omitempty"`

	// Returns is the return type name, empty for no return value.
	Returns string `json:"returns,omitempty"`

	Mutates bool `json:"mutates,omitempty"`
	Payable bool `json:"payable,omitempty"`
}

// SelectorBytes resolves the message selector.
func (m *Message) SelectorBytes() ([SelectorSize]byte, error) {
	if m.Selector == "" {
		return Selector(m.Label), nil
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(m.Selector, "0x"))
	if err != nil {
		return [SelectorSize]byte{}, fmt.Errorf("selector of %q: %w", m.Label, err)
	}
	if len(raw) != SelectorSize {
		return [SelectorSize]byte{}, fmt.Errorf("selector of %q: need %d bytes, got %d", m.Label, SelectorSize, len(raw))
	}
	var sel [SelectorSize]byte
	copy(sel[:], raw)
	return sel, nil
}

// ABI is the contract metadata shipped in a bundle.
type ABI struct {
	Name         string    `json:"name"`
	Version      string    `json:"version,omitempty"`
	Constructors []Message `json:"constructors"`
	Messages     []Message `json:"messages"`
}

// Constructor finds a constructor by label.
func (a *ABI) Constructor(label string) (*Message, error) {
	for i := range a.Constructors {
		if a.Constructors[i].Label == label {
			return &a.Constructors[i], nil
		}
	}
	return nil, fmt.Errorf("%w: constructor %q", ErrUnknownMessage, label)
}

// Message finds a message by label.
func (a *ABI) Message(label string) (*Message, error) {
	for i := range a.Messages {
		if a.Messages[i].Label == label {
			return &a.Messages[i], nil
		}
	}
	return nil, fmt.Errorf("%w: message %q", ErrUnknownMessage, label)
}

// ParseABI decodes ABI metadata from JSON.
func ParseABI(data []byte) (*ABI, error) {
	var a ABI
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	return &a, nil
}
