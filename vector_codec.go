package phantomstate

import (
	"encoding/binary"
	"math"
)

// vecAsBlob encodes vec as the raw little-endian float32 blob sqlite-vec's
// vec0 virtual table expects for an embedding column.
func vecAsBlob(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// vecFromBlob decodes a sqlite-vec embedding blob back into a float32 slice.
func vecFromBlob(blob []byte) []float32 {
	n := len(blob) / 4
	vec := make([]float32, n)
	for i := 0; i < n; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
