package pipeline

import "github.com/cespare/xxhash/v2"

// DeriveSeed maps a stable group identifier (typically the job id) to a
// deterministic seed in [0, 1<<31). All scenes of one job derive the same
// seed so successive provider calls produce visually consistent output.
func DeriveSeed(groupID string) int64 {
	return int64(xxhash.Sum64String(groupID) % (1 << 31))
}
