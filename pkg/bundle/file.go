package bundle

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// File extensions for on-disk bundles.
const (
	bundleExt           = ".bundle"
	compressedBundleExt = ".bundle.zst"
)

// bundleFile is the on-disk JSON shape: ABI inline, code as hex.
type bundleFile struct {
	ABI  ABI    `json:"abi"`
	Code string `json:"code"`
}

// WriteFile saves a bundle to path. A path ending in .zst is
// zstd-compressed.
func WriteFile(path string, b *Bundle) error {
	data, err := json.MarshalIndent(bundleFile{ABI: b.ABI, Code: hex.EncodeToString(b.Code)}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}

	if filepath.Ext(path) == ".zst" {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		enc.Close()
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile loads a bundle from path, transparently decompressing .zst
// files.
func ReadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if filepath.Ext(path) == ".zst" {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		data, err = dec.DecodeAll(data, nil)
		dec.Close()
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", path, err)
		}
	}
	return decodeBundleFile(path, data)
}

func decodeBundleFile(path string, data []byte) (*Bundle, error) {
	var bf bundleFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	code, err := hex.DecodeString(bf.Code)
	if err != nil {
		return nil, fmt.Errorf("decode code in %s: %w", path, err)
	}
	return &Bundle{Code: code, ABI: bf.ABI}, nil
}

// DirRegistry resolves bundles from a directory: <label>.bundle, or
// <label>.bundle.zst for compressed files. Plain files win when both
// exist.
type DirRegistry struct {
	dir string
}

// NewDirRegistry creates a registry over dir.
func NewDirRegistry(dir string) *DirRegistry {
	return &DirRegistry{dir: dir}
}

// Resolve loads the bundle file for label.
func (d *DirRegistry) Resolve(label string) (*Bundle, error) {
	for _, ext := range []string{bundleExt, compressedBundleExt} {
		path := filepath.Join(d.dir, label+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return ReadFile(path)
	}
	return nil, fmt.Errorf("%w: %q in %s", ErrBundleNotFound, label, d.dir)
}

// Verify interface conformance.
var _ Registry = (*DirRegistry)(nil)
