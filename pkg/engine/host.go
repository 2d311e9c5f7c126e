package engine

import (
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/sha3"

	"github.com/r0gue-io/pop-drink/pkg/runtime"
	"github.com/r0gue-io/pop-drink/pkg/state"
	"github.com/r0gue-io/pop-drink/pkg/types"
	"github.com/r0gue-io/pop-drink/pkg/vm"
)

// Host call gas costs, charged on top of the instruction cost of the call
// opcode itself.
const (
	costHostBase     = uint64(100)
	costStorageRead  = uint64(200)
	costStorageWrite = uint64(250)
	costTransfer     = uint64(500)
	costEmit         = uint64(150)
	costDebug        = uint64(100)
	costHash         = uint64(150)
	costNestedCall   = uint64(1000)
)

// Host call argument limits.
const (
	maxStorageKeyLen   = 512
	maxStorageValueLen = 16 * 1024
	maxDebugLen        = 4 * 1024
	maxCallInputLen    = 64 * 1024
	maxEventTopics     = 4
	maxEventDataLen    = 16 * 1024
)

// Nested call status codes returned to the calling contract.
const (
	callStatusOK       = uint64(0)
	callStatusReverted = uint64(1)
	callStatusFailed   = uint64(2)
)

// storageMissing is returned by cv_storage_get for an absent key.
const storageMissing = ^uint64(0)

// errHostArg marks malformed or oversized host call arguments. It traps
// the contract.
var errHostArg = errors.New("bad host call argument")

// hostEnv is the per-frame execution environment host calls operate on.
type hostEnv struct {
	ec     *execContext
	self   types.AccountID
	caller types.AccountID
	value  types.Balance
	depth  int

	// returnData is set by cv_return and handed back in ExecResult.Data.
	returnData []byte

	// lastReturn is the output of the most recent nested call.
	lastReturn []byte
}

func envOf(ip *vm.Interpreter) *hostEnv {
	return ip.Context().(*hostEnv)
}

// newHostRegistry builds the contract host-call surface. Each function
// recovers its frame environment from the interpreter context.
func newHostRegistry() *vm.HostRegistry {
	r := vm.NewHostRegistry()
	r.Register("cv_storage_get", hostStorageGet)
	r.Register("cv_storage_put", hostStoragePut)
	r.Register("cv_storage_clear", hostStorageClear)
	r.Register("cv_caller", hostCaller)
	r.Register("cv_address", hostAddress)
	r.Register("cv_value", hostValue)
	r.Register("cv_balance", hostBalance)
	r.Register("cv_block_number", hostBlockNumber)
	r.Register("cv_timestamp", hostTimestamp)
	r.Register("cv_transfer", hostTransfer)
	r.Register("cv_emit", hostEmit)
	r.Register("cv_debug", hostDebug)
	r.Register("cv_return", hostReturn)
	r.Register("cv_call", hostNestedCall)
	r.Register("cv_call_return", hostCallReturn)
	r.Register("cv_hash_blake3", hostHashBlake3)
	r.Register("cv_hash_keccak", hostHashKeccak)
	return r
}

// hostStorageGet(keyPtr, keyLen, outPtr, outCap) reads a storage value into
// the output buffer. Returns the full value length, or storageMissing when
// the key is absent. At most outCap bytes are copied.
func hostStorageGet(ip *vm.Interpreter, r1, r2, r3, r4, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costStorageRead); err != nil {
		return 0, err
	}
	if r2 > maxStorageKeyLen {
		return 0, fmt.Errorf("%w: storage key length %d", errHostArg, r2)
	}
	key, err := ip.ReadBytes(r1, r2)
	if err != nil {
		return 0, err
	}

	val, err := env.ec.engine.st.StorageGet(env.self, key)
	if errors.Is(err, state.ErrStorageNotFound) {
		return storageMissing, nil
	}
	if err != nil {
		return 0, err
	}

	n := uint64(len(val))
	if n > r4 {
		n = r4
	}
	if n > 0 {
		if err := ip.WriteBytes(r3, val[:n]); err != nil {
			return 0, err
		}
	}
	return uint64(len(val)), nil
}

// hostStoragePut(keyPtr, keyLen, valPtr, valLen) writes a storage value.
// The written bytes are charged against the proof-size budget.
func hostStoragePut(ip *vm.Interpreter, r1, r2, r3, r4, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costStorageWrite); err != nil {
		return 0, err
	}
	if r2 > maxStorageKeyLen {
		return 0, fmt.Errorf("%w: storage key length %d", errHostArg, r2)
	}
	if r4 > maxStorageValueLen {
		return 0, fmt.Errorf("%w: storage value length %d", errHostArg, r4)
	}
	key, err := ip.ReadBytes(r1, r2)
	if err != nil {
		return 0, err
	}
	val, err := ip.ReadBytes(r3, r4)
	if err != nil {
		return 0, err
	}

	env.ec.storageBytes += r2 + r4
	if env.ec.storageBytes > env.ec.gasLimit.ProofSize {
		return 0, vm.ErrOutOfGas
	}
	if err := env.ec.engine.st.StoragePut(env.self, key, val); err != nil {
		return 0, err
	}
	return 0, nil
}

// hostStorageClear(keyPtr, keyLen) removes a storage key.
func hostStorageClear(ip *vm.Interpreter, r1, r2, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costStorageWrite); err != nil {
		return 0, err
	}
	if r2 > maxStorageKeyLen {
		return 0, fmt.Errorf("%w: storage key length %d", errHostArg, r2)
	}
	key, err := ip.ReadBytes(r1, r2)
	if err != nil {
		return 0, err
	}
	return 0, env.ec.engine.st.StorageDelete(env.self, key)
}

// hostCaller(outPtr) writes the caller account id.
func hostCaller(ip *vm.Interpreter, r1, _, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costHostBase); err != nil {
		return 0, err
	}
	return 0, ip.WriteBytes(r1, env.caller[:])
}

// hostAddress(outPtr) writes the executing contract's account id.
func hostAddress(ip *vm.Interpreter, r1, _, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costHostBase); err != nil {
		return 0, err
	}
	return 0, ip.WriteBytes(r1, env.self[:])
}

// hostValue() returns the value transferred with the current call.
func hostValue(ip *vm.Interpreter, _, _, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costHostBase); err != nil {
		return 0, err
	}
	return env.value, nil
}

// hostBalance() returns the executing contract's free balance.
func hostBalance(ip *vm.Interpreter, _, _, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costHostBase); err != nil {
		return 0, err
	}
	return env.ec.engine.st.Balance(env.self)
}

// hostBlockNumber() returns the current block number.
func hostBlockNumber(ip *vm.Interpreter, _, _, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costHostBase); err != nil {
		return 0, err
	}
	return env.ec.engine.st.BlockNumber()
}

// hostTimestamp() returns the current block timestamp in milliseconds.
func hostTimestamp(ip *vm.Interpreter, _, _, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costHostBase); err != nil {
		return 0, err
	}
	return env.ec.engine.st.Timestamp()
}

// hostTransfer(destPtr, value) moves value from the contract to dest.
// Returns 0 on success, 1 on failure; failure does not trap so contracts
// can handle it.
func hostTransfer(ip *vm.Interpreter, r1, r2, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costTransfer); err != nil {
		return 0, err
	}
	destBytes, err := ip.ReadBytes(r1, types.AccountIDSize)
	if err != nil {
		return 0, err
	}
	dest, err := types.AccountIDFromBytes(destBytes)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errHostArg, err)
	}

	_, derr := env.ec.engine.disp.Dispatch(env.ec.engine.st, env.self, runtime.BalancesTransfer{Dest: dest, Value: r2})
	if derr != nil {
		var de *runtime.DispatchError
		if errors.As(derr, &de) {
			return 1, nil
		}
		return 0, derr
	}
	return 0, nil
}

// hostEmit(topicsPtr, topicCount, dataPtr, dataLen) records a contract
// event. Topics are topicCount consecutive 32-byte words.
func hostEmit(ip *vm.Interpreter, r1, r2, r3, r4, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costEmit); err != nil {
		return 0, err
	}
	if r2 > maxEventTopics {
		return 0, fmt.Errorf("%w: %d event topics", errHostArg, r2)
	}
	if r4 > maxEventDataLen {
		return 0, fmt.Errorf("%w: event data length %d", errHostArg, r4)
	}

	var topics []types.Hash
	if r2 > 0 {
		raw, err := ip.ReadBytes(r1, r2*types.HashSize)
		if err != nil {
			return 0, err
		}
		topics = make([]types.Hash, r2)
		for i := range topics {
			copy(topics[i][:], raw[i*types.HashSize:])
		}
	}
	data, err := ip.ReadBytes(r3, r4)
	if err != nil {
		return 0, err
	}

	env.ec.events = append(env.ec.events, state.EventRecord{
		Contract: env.self,
		Topics:   topics,
		Data:     data,
	})
	return 0, nil
}

// hostDebug(msgPtr, msgLen) records a debug message.
func hostDebug(ip *vm.Interpreter, r1, r2, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costDebug); err != nil {
		return 0, err
	}
	if r2 > maxDebugLen {
		return 0, fmt.Errorf("%w: debug message length %d", errHostArg, r2)
	}
	msg, err := ip.ReadBytes(r1, r2)
	if err != nil {
		return 0, err
	}
	env.ec.debug = append(env.ec.debug, string(msg))
	return 0, nil
}

// hostReturn(dataPtr, dataLen) sets the output of the current frame. The
// exit flags still come from r0 at exit, so a contract may pair return
// data with either success or revert.
func hostReturn(ip *vm.Interpreter, r1, r2, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costHostBase); err != nil {
		return 0, err
	}
	if r2 > maxCallInputLen {
		return 0, fmt.Errorf("%w: return data length %d", errHostArg, r2)
	}
	data, err := ip.ReadBytes(r1, r2)
	if err != nil {
		return 0, err
	}
	env.returnData = data
	return 0, nil
}

// hostNestedCall(calleePtr, inPtr, inLen, value) invokes another contract.
// The nested call runs under the same gas budget; its failure is isolated
// by a snapshot and reported as a status code, except gas exhaustion which
// aborts the whole execution.
func hostNestedCall(ip *vm.Interpreter, r1, r2, r3, r4, _ uint64) (uint64, error) {
	env := envOf(ip)
	e := env.ec.engine
	if err := ip.Meter().Consume(costNestedCall); err != nil {
		return 0, err
	}
	if r3 > maxCallInputLen {
		return 0, fmt.Errorf("%w: call input length %d", errHostArg, r3)
	}
	calleeBytes, err := ip.ReadBytes(r1, types.AccountIDSize)
	if err != nil {
		return 0, err
	}
	callee, err := types.AccountIDFromBytes(calleeBytes)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errHostArg, err)
	}
	input, err := ip.ReadBytes(r2, r3)
	if err != nil {
		return 0, err
	}

	acc, err := e.st.Account(callee)
	if err != nil {
		return 0, err
	}
	if !acc.IsContract() {
		env.lastReturn = nil
		return callStatusFailed, nil
	}

	snap, err := e.st.Snapshot()
	if err != nil {
		return 0, err
	}
	defer e.st.Discard(snap)
	eventMark := len(env.ec.events)

	res, callErr := e.callFrame(env.ec, env.self, callee, acc.CodeHash, input, r4, env.depth+1)
	if callErr != nil {
		if errors.Is(callErr, vm.ErrOutOfGas) {
			return 0, callErr
		}
		if rerr := e.st.Restore(snap); rerr != nil {
			return 0, rerr
		}
		env.ec.events = env.ec.events[:eventMark]
		env.lastReturn = nil
		return callStatusFailed, nil
	}
	if res.Reverted() {
		if rerr := e.st.Restore(snap); rerr != nil {
			return 0, rerr
		}
		env.ec.events = env.ec.events[:eventMark]
		env.lastReturn = res.Data
		return callStatusReverted, nil
	}

	env.lastReturn = res.Data
	return callStatusOK, nil
}

// hostCallReturn(outPtr, outCap) copies the output of the most recent
// nested call and returns its full length.
func hostCallReturn(ip *vm.Interpreter, r1, r2, _, _, _ uint64) (uint64, error) {
	env := envOf(ip)
	if err := ip.Meter().Consume(costHostBase); err != nil {
		return 0, err
	}
	n := uint64(len(env.lastReturn))
	if n > r2 {
		n = r2
	}
	if n > 0 {
		if err := ip.WriteBytes(r1, env.lastReturn[:n]); err != nil {
			return 0, err
		}
	}
	return uint64(len(env.lastReturn)), nil
}

// hostHashBlake3(ptr, len, outPtr) writes the 32-byte BLAKE3 digest.
func hostHashBlake3(ip *vm.Interpreter, r1, r2, r3, _, _ uint64) (uint64, error) {
	if err := ip.Meter().Consume(costHash); err != nil {
		return 0, err
	}
	data, err := ip.ReadBytes(r1, r2)
	if err != nil {
		return 0, err
	}
	digest := blake3.Sum256(data)
	return 0, ip.WriteBytes(r3, digest[:])
}

// hostHashKeccak(ptr, len, outPtr) writes the 32-byte Keccak-256 digest.
func hostHashKeccak(ip *vm.Interpreter, r1, r2, r3, _, _ uint64) (uint64, error) {
	if err := ip.Meter().Consume(costHash); err != nil {
		return 0, err
	}
	data, err := ip.ReadBytes(r1, r2)
	if err != nil {
		return 0, err
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return 0, ip.WriteBytes(r3, h.Sum(nil))
}
