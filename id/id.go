package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so ULID entropy is unpredictable.
	// ulid.Monotonic keeps IDs generated within the same millisecond
	// lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string stamped with the current wall clock.
func New() string {
	return At(time.Now())
}

// At returns a ULID stamped with t instead of the wall clock. Replays use the
// bar time so journal rows sort in market order, not in processing order.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(t.UTC()), mono)
	if err != nil {
		// Monotonic entropy overflows only when >2^80 ids share a millisecond,
		// or when t moves backwards within one; fall back to fresh entropy.
		id = ulid.MustNew(ulid.Timestamp(t.UTC()), cryptoRand.Reader)
	}
	return id.String()
}
