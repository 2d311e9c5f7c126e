// Package session is the high-level front door of the sandbox: it deploys
// bundles under labels, encodes and decodes calls through their ABIs,
// seals blocks, and classifies every failure into a stable error shape.
package session

import (
	"fmt"

	"github.com/r0gue-io/pop-drink/pkg/bundle"
	"github.com/r0gue-io/pop-drink/pkg/chain"
	"github.com/r0gue-io/pop-drink/pkg/engine"
	"github.com/r0gue-io/pop-drink/pkg/runtime"
	"github.com/r0gue-io/pop-drink/pkg/sandbox"
	"github.com/r0gue-io/pop-drink/pkg/state"
	"github.com/r0gue-io/pop-drink/pkg/types"
)

// Handle is a deployed contract tracked by the session.
type Handle struct {
	Address types.AccountID
	Bundle  *bundle.Bundle
}

// DeployResult records one deployment.
type DeployResult struct {
	Label       string
	Address     types.AccountID
	GasConsumed types.Weight
}

// CallResult records one contract call.
type CallResult struct {
	Label       string
	Message     string
	Value       interface{}
	Raw         []byte
	GasConsumed types.Weight
	Events      []state.EventRecord
}

// Record is the session history.
type Record struct {
	Deploys []DeployResult
	Calls   []CallResult
	Blocks  []*chain.Block
}

// LastCall returns the most recent call, nil before the first one.
func (r *Record) LastCall() *CallResult {
	if len(r.Calls) == 0 {
		return nil
	}
	return &r.Calls[len(r.Calls)-1]
}

// Session drives a sandbox. The zero actor is Alice and the gas budget is
// the sandbox default; both can be adjusted fluently. Methods ending in
// And chain: after the first failure the remaining chained steps are
// skipped and Err reports the failure.
type Session struct {
	sb       *sandbox.Sandbox
	actor    types.AccountID
	gas      types.Weight
	registry bundle.Registry
	table    *runtime.Table
	handles  map[string]*Handle
	record   Record
	err      error
}

// New opens a session on a sandbox.
func New(sb *sandbox.Sandbox) *Session {
	return &Session{
		sb:      sb,
		actor:   types.Alice,
		gas:     sb.GasLimit(),
		table:   runtime.DefaultTable(),
		handles: make(map[string]*Handle),
	}
}

// As switches the acting account for subsequent operations.
func (s *Session) As(actor types.AccountID) *Session {
	s.actor = actor
	return s
}

// WithGas overrides the gas budget for subsequent operations.
func (s *Session) WithGas(gas types.Weight) *Session {
	s.gas = gas
	return s
}

// WithRegistry attaches a bundle registry for DeployBundle.
func (s *Session) WithRegistry(reg bundle.Registry) *Session {
	s.registry = reg
	return s
}

// WithTable swaps the error-name table, for runtimes with their own module
// layout.
func (s *Session) WithTable(t *runtime.Table) *Session {
	s.table = t
	return s
}

// Record returns the session history.
func (s *Session) Record() *Record {
	return &s.record
}

// Err returns the first failure of a chained sequence, nil when every step
// succeeded.
func (s *Session) Err() error {
	return s.err
}

// Address looks up the address a label was deployed at.
func (s *Session) Address(label string) (types.AccountID, bool) {
	h, ok := s.handles[label]
	if !ok {
		return types.AccountID{}, false
	}
	return h.Address, true
}

// LastReturn returns the decoded output of the most recent call.
func (s *Session) LastReturn() interface{} {
	if c := s.record.LastCall(); c != nil {
		return c.Value
	}
	return nil
}

// Deploy instantiates a bundle through the named constructor and tracks it
// under label. The salt disambiguates the address when the same code is
// deployed more than once; nil is fine for a single instance.
func (s *Session) Deploy(label string, b *bundle.Bundle, constructor string, salt []byte, args ...interface{}) (types.AccountID, error) {
	if _, exists := s.handles[label]; exists {
		return types.AccountID{}, fmt.Errorf("label %q already deployed, use Redeploy", label)
	}
	return s.deploy(label, b, constructor, salt, 0, args...)
}

// DeployWithEndowment is Deploy with an initial balance transferred to the
// new contract.
func (s *Session) DeployWithEndowment(label string, b *bundle.Bundle, constructor string, salt []byte, endowment types.Balance, args ...interface{}) (types.AccountID, error) {
	if _, exists := s.handles[label]; exists {
		return types.AccountID{}, fmt.Errorf("label %q already deployed, use Redeploy", label)
	}
	return s.deploy(label, b, constructor, salt, endowment, args...)
}

// DeployBundle resolves label in the session registry and deploys it.
func (s *Session) DeployBundle(label, constructor string, salt []byte, args ...interface{}) (types.AccountID, error) {
	if s.registry == nil {
		return types.AccountID{}, fmt.Errorf("no bundle registry attached")
	}
	if _, exists := s.handles[label]; exists {
		return types.AccountID{}, fmt.Errorf("label %q already deployed, use Redeploy", label)
	}
	b, err := s.registry.Resolve(label)
	if err != nil {
		return types.AccountID{}, err
	}
	return s.deploy(label, b, constructor, salt, 0, args...)
}

// Redeploy instantiates a label's bundle again under a fresh salt and
// repoints the handle at the new instance.
func (s *Session) Redeploy(label, constructor string, salt []byte, args ...interface{}) (types.AccountID, error) {
	h, ok := s.handles[label]
	if !ok {
		return types.AccountID{}, fmt.Errorf("unknown contract label %q", label)
	}
	return s.deploy(label, h.Bundle, constructor, salt, 0, args...)
}

func (s *Session) deploy(label string, b *bundle.Bundle, constructor string, salt []byte, endowment types.Balance, args ...interface{}) (types.AccountID, error) {
	ctor, err := b.ABI.Constructor(constructor)
	if err != nil {
		return types.AccountID{}, err
	}
	input, err := bundle.EncodeInput(ctor, args...)
	if err != nil {
		return types.AccountID{}, err
	}

	addr, res, err := s.sb.Engine().Instantiate(s.actor, b.Code, input, salt, endowment, s.gas)
	if cerr := classify(s.table, res, err); cerr != nil {
		return addr, cerr
	}

	s.handles[label] = &Handle{Address: addr, Bundle: b}
	s.record.Deploys = append(s.record.Deploys, DeployResult{
		Label:       label,
		Address:     addr,
		GasConsumed: res.GasConsumed,
	})
	return addr, nil
}

// Call invokes a message on a deployed label and decodes its return value
// through the ABI.
func (s *Session) Call(label, message string, args ...interface{}) (interface{}, error) {
	return s.CallWithValue(label, message, 0, args...)
}

// CallWithValue is Call with a balance transfer attached.
func (s *Session) CallWithValue(label, message string, value types.Balance, args ...interface{}) (interface{}, error) {
	h, ok := s.handles[label]
	if !ok {
		return nil, fmt.Errorf("unknown contract label %q", label)
	}
	msg, err := h.Bundle.ABI.Message(message)
	if err != nil {
		return nil, err
	}
	input, err := bundle.EncodeInput(msg, args...)
	if err != nil {
		return nil, err
	}

	res, err := s.sb.Engine().Invoke(s.actor, h.Address, input, value, s.gas)
	if cerr := classify(s.table, res, err); cerr != nil {
		return nil, cerr
	}

	ret, err := bundle.DecodeReturn(msg, res.Data)
	if err != nil {
		return nil, &Error{Kind: KindDecoding, cause: err}
	}
	s.record.Calls = append(s.record.Calls, CallResult{
		Label:       label,
		Message:     message,
		Value:       ret,
		Raw:         res.Data,
		GasConsumed: res.GasConsumed,
		Events:      res.Events,
	})
	return ret, nil
}

// CallRaw invokes a deployed label with pre-encoded input and hands back
// the raw execution result. Failures are still classified, but reverts are
// reported in the result rather than as errors.
func (s *Session) CallRaw(label string, input []byte, value types.Balance) (*engine.ExecResult, error) {
	h, ok := s.handles[label]
	if !ok {
		return nil, fmt.Errorf("unknown contract label %q", label)
	}
	res, err := s.sb.Engine().Invoke(s.actor, h.Address, input, value, s.gas)
	if err != nil {
		return res, classify(s.table, nil, err)
	}
	return res, nil
}

// Dispatch executes a runtime call as the session actor, classifying
// failures.
func (s *Session) Dispatch(call runtime.Call) (*runtime.Outcome, error) {
	out, err := s.sb.Dispatch(s.actor, call)
	if err != nil {
		return nil, classify(s.table, nil, err)
	}
	return out, nil
}

// BuildBlock seals the current block.
func (s *Session) BuildBlock() (*chain.Block, error) {
	blk, err := s.sb.BuildBlock()
	if err != nil {
		return nil, err
	}
	s.record.Blocks = append(s.record.Blocks, blk)
	return blk, nil
}

// DeployAnd chains Deploy.
func (s *Session) DeployAnd(label string, b *bundle.Bundle, constructor string, salt []byte, args ...interface{}) *Session {
	if s.err != nil {
		return s
	}
	_, s.err = s.Deploy(label, b, constructor, salt, args...)
	return s
}

// CallAnd chains Call.
func (s *Session) CallAnd(label, message string, args ...interface{}) *Session {
	if s.err != nil {
		return s
	}
	_, s.err = s.Call(label, message, args...)
	return s
}

// BuildBlockAnd chains BuildBlock.
func (s *Session) BuildBlockAnd() *Session {
	if s.err != nil {
		return s
	}
	_, s.err = s.BuildBlock()
	return s
}
