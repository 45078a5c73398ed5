package manager

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// randomSeed returns a seed in [0, 2^32) so it fits any sampler generator.
func randomSeed() (int64, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint32(b[:])), nil
}
