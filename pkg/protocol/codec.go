package protocol

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"encoding/xml"
	"fmt"
)

// WorkPayload is the wire-level representation of a unit of work or its
// result: a flattened parameter vector plus enough metadata for the remote
// side to evaluate it and hand back a matching result.
type WorkPayload struct {
	ID      string    `json:"id" xml:"id"`
	Params  []float64 `json:"params" xml:"params>value"`
	Raw     []float64 `json:"raw,omitempty" xml:"raw>value,omitempty"`
	Valid   float64   `json:"valid,omitempty" xml:"valid,omitempty"`
	Failed  bool      `json:"failed,omitempty" xml:"failed,omitempty"`
}

// Encode serializes p using the given mode.
func Encode(mode SerializationMode, p *WorkPayload) ([]byte, error) {
	switch mode {
	case Text:
		return json.Marshal(p)
	case XML:
		return xml.Marshal(p)
	case Binary:
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(p); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("protocol: unknown serialization mode %d", mode)
	}
}

// Decode deserializes data into a WorkPayload using the given mode. A
// decode failure here is what spec.md 4.5 calls out explicitly: the item is
// discarded and the algorithm will see the slot as unprocessed.
func Decode(mode SerializationMode, data []byte) (*WorkPayload, error) {
	p := &WorkPayload{}
	var err error
	switch mode {
	case Text:
		err = json.Unmarshal(data, p)
	case XML:
		err = xml.Unmarshal(data, p)
	case Binary:
		err = gob.NewDecoder(bytes.NewReader(data)).Decode(p)
	default:
		return nil, fmt.Errorf("protocol: unknown serialization mode %d", mode)
	}
	if err != nil {
		return nil, fmt.Errorf("protocol: decode failed: %w", err)
	}
	return p, nil
}
