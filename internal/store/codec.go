package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// encodeVector packs a float64 vector into a fixed-width little-endian byte
// blob, matching the spec's "embeddings stored as fixed-length byte blobs"
// requirement. A four-byte length prefix is used to fail loudly on decode if
// the record is ever read back misaligned.
func encodeVector(vec []float64) []byte {
	buf := make([]byte, 4+len(vec)*8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(vec)))
	for i, v := range vec {
		binary.LittleEndian.PutUint64(buf[4+i*8:12+i*8], math.Float64bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float64, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf) < 4 {
		return nil, fmt.Errorf("embedding blob too short: %d bytes", len(buf))
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	if len(buf) != 4+n*8 {
		return nil, fmt.Errorf("embedding blob length mismatch: declared %d floats, got %d bytes", n, len(buf))
	}
	vec := make([]float64, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[4+i*8 : 12+i*8]))
	}
	return vec, nil
}

func encodeScores(scores map[Archetype]float64) ([]byte, error) {
	return json.Marshal(scores)
}

func decodeScores(raw []byte) (map[Archetype]float64, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[Archetype]float64
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeStrings(values []string) ([]byte, error) {
	return json.Marshal(values)
}

func decodeStrings(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeDetails(details map[string]any) ([]byte, error) {
	if details == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(details)
}

func decodeDetails(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
