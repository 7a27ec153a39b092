package snapshot

import (
	"fmt"
	"io"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxSnapshotFileSize = 64 << 20

// Parse builds a Snapshot from its YAML description.
//
// Example:
//
//	pointer_size: 8
//	types:
//	  - module: app
//	    name: Point
//	    size: 8
//	    fields:
//	      - {name: x, type: int, offset: 0}
//	      - {name: y, type: int, offset: 4}
//	memory:
//	  - {address: 0x1000, width: 4, values: [7, 9]}
//	symbols:
//	  - {module: app, name: g_point, type: Point, address: 0x1000}
func Parse(data []byte) (*Snapshot, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	var spec Spec
	if err := k.Unmarshal("", &spec); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return New(spec)
}

// LoadFile reads and parses the snapshot at path.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	if info.Size() > maxSnapshotFileSize {
		return nil, fmt.Errorf("snapshot %s is %d bytes, limit is %d", path, info.Size(), maxSnapshotFileSize)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}
