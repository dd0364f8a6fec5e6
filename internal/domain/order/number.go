package order

import (
	"encoding/hex"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/google/uuid"
)

// NumberLength is the length of an order number.
const NumberLength = 12

const (
	numberFPR = 0.001
	// numberAttempts bounds the local redraws when the filter reports a
	// number as probably taken.
	numberAttempts = 8
)

// Numbers issues order numbers. A bloom filter of issued numbers avoids most
// round trips that would hit the unique constraint; the database stays the
// authority.
type Numbers struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	random func() string
}

// NewNumbers creates a generator sized for capacity issued numbers.
func NewNumbers(capacity uint) *Numbers {
	if capacity == 0 {
		capacity = 100_000
	}
	return &Numbers{
		filter: bloom.NewWithEstimates(capacity, numberFPR),
		random: randomNumber,
	}
}

// Next returns a number the filter has not seen.
func (n *Numbers) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	var number string
	for range numberAttempts {
		number = n.random()
		if !n.filter.TestString(number) {
			break
		}
	}
	return number
}

// Add records an issued number.
func (n *Numbers) Add(number string) {
	n.mu.Lock()
	n.filter.AddString(number)
	n.mu.Unlock()
}

// randomNumber takes the first six bytes of a v4 UUID, which are all random.
func randomNumber() string {
	id := uuid.New()
	return hex.EncodeToString(id[:NumberLength/2])
}
