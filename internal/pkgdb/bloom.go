// ABOUTME: Bloom filter over snapshot attributes for fast negative lookups
// ABOUTME: Built once at open; a miss proves the attribute is absent

package pkgdb

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// BloomConfig holds configuration for the Bloom filter.
type BloomConfig struct {
	// Expected number of items to be added.
	ExpectedItems uint

	// Desired false positive rate (e.g., 0.01 for 1%).
	FalsePositiveRate float64
}

// DefaultBloomConfig returns the configuration used by Open.
func DefaultBloomConfig(expected uint) BloomConfig {
	if expected == 0 {
		expected = 1
	}
	return BloomConfig{
		ExpectedItems:     expected,
		FalsePositiveRate: 0.01,
	}
}

// BloomStats contains statistics about the Bloom filter.
type BloomStats struct {
	// Configured capacity.
	Capacity uint

	// Configured false positive rate.
	FalsePositiveRate float64

	// Size of the bit set in bytes.
	BitSetSize uint64

	// Number of hash functions used.
	HashFunctions uint
}

// BloomFilter is a write-once attribute filter. Add must not be called
// concurrently with Test; the DB only adds while opening.
type BloomFilter struct {
	filter *bloom.BloomFilter
	config BloomConfig
}

// NewBloomFilter creates an empty filter.
func NewBloomFilter(cfg BloomConfig) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(cfg.ExpectedItems, cfg.FalsePositiveRate),
		config: cfg,
	}
}

// Add adds an attribute.
func (bf *BloomFilter) Add(attribute string) {
	bf.filter.AddString(attribute)
}

// Test reports whether attribute might be present. False is definitive.
func (bf *BloomFilter) Test(attribute string) bool {
	return bf.filter.TestString(attribute)
}

// Stats returns statistics about the filter.
func (bf *BloomFilter) Stats() BloomStats {
	return BloomStats{
		Capacity:          bf.config.ExpectedItems,
		FalsePositiveRate: bf.config.FalsePositiveRate,
		BitSetSize:        uint64(bf.filter.Cap() / 8),
		HashFunctions:     bf.filter.K(),
	}
}
