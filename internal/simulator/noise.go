package simulator

import (
	"encoding/binary"
	"hash/fnv"
	"math/rand"
)

// Noise returns a random source that depends only on the robot name, the salt
// and the step sequence, so repeated runs from the same state are identical.
func Noise(step Step, salt string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(step.Robot))
	h.Write([]byte{0})
	h.Write([]byte(salt))
	var seq [8]byte
	binary.LittleEndian.PutUint64(seq[:], step.Seq)
	h.Write(seq[:])
	return rand.New(rand.NewSource(int64(h.Sum64())))
}
