// pop-drink: run contract bundles in an in-process sandbox.
//
// The tool loads a bundle from a file or a registry, deploys it into a
// fresh sandbox, optionally invokes a message and seals blocks, and prints
// the outcome as JSON. Handy for poking at a bundle outside a test suite.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/r0gue-io/pop-drink/pkg/bundle"
	"github.com/r0gue-io/pop-drink/pkg/sandbox"
	"github.com/r0gue-io/pop-drink/pkg/session"
	"github.com/r0gue-io/pop-drink/pkg/types"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Configuration flags
var (
	bundlePath   = flag.String("bundle", "", "Bundle file to load (.bundle or .bundle.zst)")
	registryPath = flag.String("registry", "", "Bolt bundle registry to load from instead of a file")
	label        = flag.String("label", "contract", "Label the bundle is deployed (or resolved) under")
	inspect      = flag.Bool("inspect", false, "Print the bundle ABI and exit without deploying")
	storeTo      = flag.String("store-to", "", "Also store the loaded bundle into this Bolt registry")
	ctorName     = flag.String("ctor", "new", "Constructor to instantiate through")
	ctorArgs     = flag.String("ctor-args", "[]", "Constructor arguments as a JSON array")
	saltHex      = flag.String("salt", "", "Hex salt for address derivation")
	callMsg      = flag.String("call", "", "Message to invoke after deployment")
	callArgs     = flag.String("call-args", "[]", "Call arguments as a JSON array")
	callValue    = flag.Uint64("value", 0, "Balance transferred with the call")
	blocks       = flag.Int("blocks", 0, "Blocks to seal after the call")
	backend      = flag.String("backend", "memory", "State backend: memory or badger")
	dataDir      = flag.String("data-dir", "", "Data directory for the badger backend")
	gasRefTime   = flag.Uint64("gas-ref-time", 0, "Gas budget override, VM units (0 = default)")
	gasProofSize = flag.Uint64("gas-proof-size", 0, "Gas budget override, storage bytes (0 = default)")
	showVersion  = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("pop-drink %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("pop-drink: ")

	b, err := loadBundle()
	if err != nil {
		log.Fatalf("load bundle: %v", err)
	}
	if *storeTo != "" {
		if err := storeBundle(b); err != nil {
			log.Fatalf("store bundle: %v", err)
		}
		log.Printf("stored %q into %s", *label, *storeTo)
	}
	if *inspect {
		printJSON(b.ABI)
		return
	}

	cfg := sandbox.DefaultConfig()
	cfg.Backend = sandbox.Backend(*backend)
	cfg.Path = *dataDir
	if *gasRefTime > 0 {
		cfg.GasLimit.RefTime = *gasRefTime
	}
	if *gasProofSize > 0 {
		cfg.GasLimit.ProofSize = *gasProofSize
	}
	sb, err := sandbox.New(cfg)
	if err != nil {
		log.Fatalf("open sandbox: %v", err)
	}
	defer sb.Close()

	if err := run(session.New(sb), b); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(sess *session.Session, b *bundle.Bundle) error {
	cargs, err := decodeArgs(*ctorArgs)
	if err != nil {
		return fmt.Errorf("ctor args: %w", err)
	}
	var salt []byte
	if *saltHex != "" {
		if salt, err = hex.DecodeString(*saltHex); err != nil {
			return fmt.Errorf("salt: %w", err)
		}
	}
	addr, err := sess.Deploy(*label, b, *ctorName, salt, cargs...)
	if err != nil {
		return fmt.Errorf("deploy: %w", err)
	}
	log.Printf("deployed %q at %s", *label, addr)

	if *callMsg != "" {
		margs, err := decodeArgs(*callArgs)
		if err != nil {
			return fmt.Errorf("call args: %w", err)
		}
		ret, err := sess.CallWithValue(*label, *callMsg, types.Balance(*callValue), margs...)
		if err != nil {
			return fmt.Errorf("call %s: %w", *callMsg, err)
		}
		last := sess.Record().LastCall()
		printJSON(map[string]interface{}{
			"message": *callMsg,
			"return":  ret,
			"gas":     last.GasConsumed,
			"events":  last.Events,
		})
	}

	for i := 0; i < *blocks; i++ {
		blk, err := sess.BuildBlock()
		if err != nil {
			return fmt.Errorf("seal block: %w", err)
		}
		log.Printf("sealed block %d at %d with %d events", blk.Number, blk.Timestamp, len(blk.Events))
	}
	return nil
}

func loadBundle() (*bundle.Bundle, error) {
	switch {
	case *bundlePath != "":
		return bundle.ReadFile(*bundlePath)
	case *registryPath != "":
		reg, err := bundle.OpenBoltRegistry(*registryPath)
		if err != nil {
			return nil, err
		}
		defer reg.Close()
		return reg.Resolve(*label)
	default:
		return nil, fmt.Errorf("need -bundle or -registry")
	}
}

func storeBundle(b *bundle.Bundle) error {
	reg, err := bundle.OpenBoltRegistry(*storeTo)
	if err != nil {
		return err
	}
	defer reg.Close()
	return reg.Put(*label, b)
}

// decodeArgs turns a JSON array into call arguments. JSON numbers arrive
// as float64 and are folded to uint64 so they match the integer ABI types.
func decodeArgs(raw string) ([]interface{}, error) {
	var args []interface{}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	for i, a := range args {
		if f, ok := a.(float64); ok {
			if f < 0 || f != float64(uint64(f)) {
				return nil, fmt.Errorf("argument %d: %v is not an unsigned integer", i, f)
			}
			args[i] = uint64(f)
		}
	}
	return args, nil
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("encode output: %v", err)
	}
	fmt.Println(string(out))
}
