// Package cache models L1 caches in front of the simulated memory using
// Akita cache components.
//
// A Cache only tracks tags and line states: the machine's memory stays the
// single copy of the data. Installed as an access observer on the MMU, it
// counts hits, misses and evictions and accumulates the latency the
// accesses would have cost on a cached machine.
package cache

import (
	"fmt"
	"io"

	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// Config holds cache configuration parameters.
type Config struct {
	// Size in bytes
	Size int
	// Associativity (number of ways)
	Associativity int
	// BlockSize in bytes (cache line size)
	BlockSize int
	// HitLatency in ticks
	HitLatency uint64
	// MissLatency in ticks (includes memory access time)
	MissLatency uint64
}

// DefaultL1IConfig returns the default instruction cache: 1KB, 2-way,
// 32B lines.
func DefaultL1IConfig() Config {
	return Config{
		Size:          1024,
		Associativity: 2,
		BlockSize:     32,
		HitLatency:    1,
		MissLatency:   10,
	}
}

// DefaultL1DConfig returns the default data cache: 2KB, 4-way, 32B lines.
func DefaultL1DConfig() Config {
	return Config{
		Size:          2048,
		Associativity: 4,
		BlockSize:     32,
		HitLatency:    2,
		MissLatency:   10,
	}
}

// Validate checks that the geometry describes at least one full set.
func (c Config) Validate() error {
	if c.BlockSize < 8 || c.BlockSize&(c.BlockSize-1) != 0 {
		return fmt.Errorf("block size %d must be a power of two of at least 8", c.BlockSize)
	}
	if c.Associativity <= 0 {
		return fmt.Errorf("associativity must be positive")
	}
	if c.Size <= 0 || c.Size%(c.Associativity*c.BlockSize) != 0 {
		return fmt.Errorf("size %d is not a multiple of associativity * block size", c.Size)
	}
	return nil
}

// AccessResult contains the result of a cache access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Latency is the number of ticks this access takes.
	Latency uint64
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the address of the evicted block (if Evicted is true).
	EvictedAddr uint64
	// Writeback is true if the evicted block was dirty.
	Writeback bool
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
	// Latency is the sum of the latencies of all accesses.
	Latency uint64
}

// HitRate returns the fraction of accesses that hit.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a write-back, write-allocate cache directory.
type Cache struct {
	name   string
	config Config

	// Akita cache directory for tag/state management
	directory *akitacache.DirectoryImpl

	stats Statistics
}

// New creates a cache with the given configuration. It panics on an
// invalid geometry.
func New(name string, config Config) *Cache {
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("cache %s: %v", name, err))
	}

	numSets := config.Size / (config.Associativity * config.BlockSize)

	return &Cache{
		name:   name,
		config: config,
		directory: akitacache.NewDirectory(
			numSets,
			config.Associativity,
			config.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Name returns the cache name.
func (c *Cache) Name() string {
	return c.name
}

// Config returns the cache configuration.
func (c *Cache) Config() Config {
	return c.config
}

// Stats returns cache statistics.
func (c *Cache) Stats() Statistics {
	return c.stats
}

// ResetStats clears cache statistics.
func (c *Cache) ResetStats() {
	c.stats = Statistics{}
}

// ObserveAccess records a physical memory access made by the machine.
func (c *Cache) ObserveAccess(phys uint64, _ int, write bool) {
	if write {
		c.Write(phys)
	} else {
		c.Read(phys)
	}
}

func (c *Cache) blockAddr(addr uint64) uint64 {
	return (addr / uint64(c.config.BlockSize)) * uint64(c.config.BlockSize)
}

// Read performs a cache read of the line holding addr.
func (c *Cache) Read(addr uint64) AccessResult {
	c.stats.Reads++
	return c.access(addr, false)
}

// Write performs a cache write of the line holding addr. On a miss the
// line is allocated first.
func (c *Cache) Write(addr uint64) AccessResult {
	c.stats.Writes++
	return c.access(addr, true)
}

func (c *Cache) access(addr uint64, isWrite bool) AccessResult {
	blockAddr := c.blockAddr(addr)

	block := c.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		c.stats.Hits++
		c.stats.Latency += c.config.HitLatency
		c.directory.Visit(block)
		if isWrite {
			block.IsDirty = true
		}
		return AccessResult{Hit: true, Latency: c.config.HitLatency}
	}

	c.stats.Misses++
	return c.handleMiss(blockAddr, isWrite)
}

func (c *Cache) handleMiss(blockAddr uint64, isWrite bool) AccessResult {
	result := AccessResult{Latency: c.config.MissLatency}
	c.stats.Latency += c.config.MissLatency

	victim := c.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	if victim.IsValid {
		c.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag
		if victim.IsDirty {
			c.stats.Writebacks++
			result.Writeback = true
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = isWrite
	c.directory.Visit(victim)

	return result
}

// Invalidate marks the line holding addr as invalid. The kernel calls it
// when a physical page changes owner.
func (c *Cache) Invalidate(addr uint64) {
	block := c.directory.Lookup(0, c.blockAddr(addr))
	if block != nil && block.IsValid {
		block.IsValid = false
		block.IsDirty = false
	}
}

// Flush writes back all dirty lines and invalidates every line.
func (c *Cache) Flush() {
	for _, set := range c.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				c.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all lines without writeback and clears statistics.
func (c *Cache) Reset() {
	c.directory.Reset()
	c.stats = Statistics{}
}

// Report prints the statistics of the cache.
func (c *Cache) Report(w io.Writer) {
	s := c.stats
	fmt.Fprintf(w, "%s: %d reads, %d writes, %d hits, %d misses (%.1f%% hit rate)\n",
		c.name, s.Reads, s.Writes, s.Hits, s.Misses, 100*s.HitRate())
	fmt.Fprintf(w, "%s: %d evictions, %d writebacks, %d ticks\n",
		c.name, s.Evictions, s.Writebacks, s.Latency)
}
