// Package checkpoint implements whole-run serialization (spec.md 4.4/6):
// text/xml/binary encodings, overwrite-vs-per-checkpoint naming, and an
// optional Postgres-backed catalog of checkpoint metadata.
package checkpoint

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
)

// Encoding selects the checkpoint file's serialization format.
type Encoding int

const (
	EncodingText Encoding = iota
	EncodingXML
	EncodingBinary
)

// Snapshot is the whole-object serialization sufficient to resume a run at
// the next iteration: population individuals, queues, counters, and RNG
// state are all opaque to this package (callers marshal their own state);
// checkpoint.Snapshot only fixes the envelope fields needed for naming and
// catalog queries.
type Snapshot struct {
	Iteration   uint64  `json:"iteration" xml:"iteration"`
	BestFitness float64 `json:"bestFitness" xml:"bestFitness"`
	State       []byte  `json:"state" xml:"state"`
}

// Config controls file naming and encoding.
type Config struct {
	Directory string
	BaseName  string
	Overwrite bool
	Encoding  Encoding
}

// Write serializes snap and writes it to Directory, returning the path
// written. When Overwrite is true a single file (BaseName) is reused; when
// false the file name encodes "<iteration>_<bestFitness>_<baseName>", and
// final writes should pass final=true to get the "final_" prefix instead.
func Write(cfg Config, snap Snapshot, final bool) (string, error) {
	data, err := encode(cfg.Encoding, snap)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return "", fmt.Errorf("checkpoint: create directory: %w", err)
	}

	name := cfg.BaseName
	if !cfg.Overwrite {
		if final {
			name = fmt.Sprintf("final_%s", cfg.BaseName)
		} else {
			name = fmt.Sprintf("%d_%g_%s", snap.Iteration, snap.BestFitness, cfg.BaseName)
		}
	}

	path := filepath.Join(cfg.Directory, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("checkpoint: write file: %w", err)
	}
	return path, nil
}

// Read loads and decodes a checkpoint file written with the given encoding.
func Read(path string, enc Encoding) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	return decode(enc, data)
}

func encode(enc Encoding, snap Snapshot) ([]byte, error) {
	switch enc {
	case EncodingText:
		return json.MarshalIndent(snap, "", "  ")
	case EncodingXML:
		return xml.MarshalIndent(snap, "", "  ")
	case EncodingBinary:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("checkpoint: unknown encoding %d", enc)
	}
}

func decode(enc Encoding, data []byte) (Snapshot, error) {
	var snap Snapshot
	var err error
	switch enc {
	case EncodingText:
		err = json.Unmarshal(data, &snap)
	case EncodingXML:
		err = xml.Unmarshal(data, &snap)
	case EncodingBinary:
		err = gob.NewDecoder(bytes.NewReader(data)).Decode(&snap)
	default:
		return snap, fmt.Errorf("checkpoint: unknown encoding %d", enc)
	}
	return snap, err
}

// ShouldCheckpoint decides whether an iteration should be checkpointed per
// spec.md 4.4/6's cpInterval rule: positive N means every N iterations;
// -1 means on improvement; 0 disables periodic checkpoints; halted always
// forces one regardless of interval.
func ShouldCheckpoint(interval int, iteration uint64, improved, halted bool) bool {
	if halted {
		return true
	}
	if interval > 0 {
		return iteration%uint64(interval) == 0
	}
	if interval < 0 {
		return improved
	}
	return false
}
