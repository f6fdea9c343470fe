package cache

import (
	"encoding/binary"
	"math"
)

// key is the canonical encoding of a query vector: the IEEE-754 bit pattern
// of every component, big-endian. Two queries share a key only if every
// component has the same bits, so 0 and -0 are distinct and NaN equals
// itself.
type key string

func keyOf(q []float64) key {
	buf := make([]byte, 8*len(q))
	for i, v := range q {
		binary.BigEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return key(buf)
}

// vector decodes k.
func (k key) vector() []float64 {
	q := make([]float64, len(k)/8)
	for i := range q {
		q[i] = math.Float64frombits(binary.BigEndian.Uint64([]byte(k[8*i : 8*i+8])))
	}
	return q
}
