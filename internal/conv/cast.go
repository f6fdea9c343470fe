package conv

import (
	"fmt"
	"math"

	"github.com/hupe1980/knncache"
)

// IntToUint32 converts a row count or index to uint32.
func IntToUint32(v int) (uint32, error) {
	if v < 0 || uint64(v) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d does not fit in uint32", knncache.ErrInvalidArgument, v)
	}
	return uint32(v), nil
}

// Uint64ToInt converts a bitmap cardinality to int.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("%w: %d does not fit in int", knncache.ErrInvalidArgument, v)
	}
	return int(v), nil
}
