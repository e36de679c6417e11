package cache_test

import (
	"bytes"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/Kyllano/TacOS/config"
	"github.com/Kyllano/TacOS/emu"
	"github.com/Kyllano/TacOS/insts"
	"github.com/Kyllano/TacOS/timing/cache"
)

var _ = Describe("Cache", func() {
	var c *cache.Cache

	BeforeEach(func() {
		// 512B, 2-way, 32B lines: 8 sets, addresses 256 bytes apart share
		// a set.
		c = cache.New("L1D", cache.Config{
			Size:          512,
			Associativity: 2,
			BlockSize:     32,
			HitLatency:    1,
			MissLatency:   10,
		})
	})

	Describe("Read operations", func() {
		It("should miss on cold cache", func() {
			result := c.Read(0x100)
			Expect(result.Hit).To(BeFalse())
			Expect(result.Latency).To(Equal(uint64(10)))

			stats := c.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(BeZero())
		})

		It("should hit on a cached line", func() {
			c.Read(0x100)

			result := c.Read(0x100)
			Expect(result.Hit).To(BeTrue())
			Expect(result.Latency).To(Equal(uint64(1)))
			Expect(c.Stats().Latency).To(Equal(uint64(11)))
		})

		It("should hit on different addresses in same cache line", func() {
			c.Read(0x100)
			Expect(c.Read(0x11C).Hit).To(BeTrue())
			Expect(c.Read(0x120).Hit).To(BeFalse())
		})
	})

	Describe("Write operations", func() {
		It("should write-allocate on miss", func() {
			Expect(c.Write(0x40).Hit).To(BeFalse())
			Expect(c.Read(0x40).Hit).To(BeTrue())
		})
	})

	Describe("Eviction", func() {
		It("should evict the least recently used line", func() {
			c.Read(0x000)
			c.Read(0x100)
			c.Read(0x000)

			result := c.Read(0x200)

			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(0x100)))
			Expect(result.Writeback).To(BeFalse())
			Expect(c.Read(0x000).Hit).To(BeTrue())
			Expect(c.Stats().Evictions).To(Equal(uint64(1)))
		})

		It("should count writebacks of dirty lines", func() {
			c.Write(0x000)
			c.Write(0x100)
			c.Read(0x100)

			result := c.Write(0x200)

			Expect(result.Writeback).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(0x000)))
			Expect(c.Stats().Writebacks).To(Equal(uint64(1)))
		})
	})

	Describe("Invalidate", func() {
		It("should drop the line", func() {
			c.Read(0x80)
			c.Invalidate(0x84)
			Expect(c.Read(0x80).Hit).To(BeFalse())
		})
	})

	Describe("Flush", func() {
		It("should write back dirty lines and empty the cache", func() {
			c.Write(0x000)
			c.Write(0x040)
			c.Read(0x080)

			c.Flush()

			Expect(c.Stats().Writebacks).To(Equal(uint64(2)))
			Expect(c.Read(0x000).Hit).To(BeFalse())
		})
	})

	Describe("Reset", func() {
		It("should clear lines and statistics", func() {
			c.Read(0x000)
			c.Reset()

			Expect(c.Stats()).To(Equal(cache.Statistics{}))
			Expect(c.Read(0x000).Hit).To(BeFalse())
		})
	})

	Describe("Report", func() {
		It("should print the hit rate", func() {
			c.Read(0x000)
			c.Read(0x000)

			var out bytes.Buffer
			c.Report(&out)

			Expect(out.String()).To(ContainSubstring("L1D: 2 reads, 0 writes, 1 hits, 1 misses (50.0% hit rate)"))
		})
	})

	Describe("Default configurations", func() {
		It("should be valid", func() {
			Expect(cache.DefaultL1IConfig().Validate()).To(Succeed())
			Expect(cache.DefaultL1DConfig().Validate()).To(Succeed())
		})

		It("should reject odd geometries", func() {
			Expect(cache.Config{Size: 100, Associativity: 2, BlockSize: 32}.Validate()).NotTo(Succeed())
			Expect(cache.Config{Size: 512, Associativity: 2, BlockSize: 12}.Validate()).NotTo(Succeed())
			Expect(func() { cache.New("bad", cache.Config{}) }).To(Panic())
		})
	})

	Describe("as a machine observer", func() {
		It("should see every fetch and data access", func() {
			logger := logrus.New()
			logger.Out = io.Discard

			cfg := config.Default()
			icache := cache.New("L1I", cache.DefaultL1IConfig())
			dcache := cache.New("L1D", cache.DefaultL1DConfig())
			m := emu.NewMachine(
				emu.WithConfig(cfg),
				emu.WithLogger(logrus.NewEntry(logger)),
				emu.WithInstructionObserver(icache),
				emu.WithDataObserver(dcache),
			)
			table := emu.NewTranslationTable(cfg.NumPhysPages)
			for vpn := range uint64(cfg.NumPhysPages) {
				table.Map(vpn, vpn, true, true)
			}
			m.MMU().SetTranslationTable(table)

			program := []uint32{
				insts.ADDI(5, 0, 0x200),
				insts.Store(insts.StoreSD, 5, 5, 0),
				insts.Load(insts.LoadLD, 6, 5, 0),
				insts.Load(insts.LoadLD, 7, 5, 8),
			}
			for i, w := range program {
				m.Memory().Write(uint64(4*i), 4, uint64(w))
			}
			for range program {
				m.OneInstruction()
			}

			Expect(icache.Stats().Reads).To(Equal(uint64(4)))
			Expect(icache.Stats().Misses).To(Equal(uint64(1)))
			Expect(dcache.Stats().Writes).To(Equal(uint64(1)))
			Expect(dcache.Stats().Reads).To(Equal(uint64(2)))
			Expect(dcache.Stats().Hits).To(Equal(uint64(2)))
		})
	})
})
