package disk_test

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/Kyllano/TacOS/config"
	"github.com/Kyllano/TacOS/disk"
	"github.com/Kyllano/TacOS/interrupt"
)

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.Out = io.Discard
	return logrus.NewEntry(logger)
}

var _ = Describe("Disk", func() {
	var (
		cfg   *config.Config
		intr  *interrupt.Interrupt
		path  string
		done  int
		d     *disk.Disk
		extra []disk.Option
	)

	open := func() *disk.Disk {
		opts := append([]disk.Option{
			disk.WithConfig(cfg),
			disk.WithLogger(quietLogger()),
		}, extra...)
		d, err := disk.Open(path, intr, func() { done++ }, opts...)
		Expect(err).NotTo(HaveOccurred())
		return d
	}

	BeforeEach(func() {
		cfg = config.Default()
		intr = interrupt.New(interrupt.WithConfig(cfg), interrupt.WithLogger(quietLogger()))
		path = filepath.Join(GinkgoT().TempDir(), "DISK")
		done = 0
		extra = nil
	})

	JustBeforeEach(func() {
		d = open()
		DeferCleanup(d.Close)
	})

	Describe("Open", func() {
		It("should format a new image", func() {
			raw, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())

			Expect(raw).To(HaveLen(disk.MagicSize + cfg.NumSectors()*cfg.SectorSize))
			Expect(binary.LittleEndian.Uint32(raw)).To(Equal(disk.MagicNumber))
			Expect(d.NumSectors()).To(Equal(2048))
			Expect(d.SectorSize()).To(Equal(128))
		})

		It("should keep the contents of an existing image", func() {
			data := make([]byte, cfg.SectorSize)
			copy(data, "persistent")
			d.WriteRequest(7, data)
			intr.OneTick(100000, false)
			Expect(d.Close()).To(Succeed())

			d = open()
			DeferCleanup(d.Close)
			got := make([]byte, cfg.SectorSize)
			d.ReadRequest(7, got)
			Expect(got).To(Equal(data))
		})

		It("should reject a file that is not a disk image", func() {
			other := filepath.Join(GinkgoT().TempDir(), "junk")
			Expect(os.WriteFile(other, []byte("not a disk"), 0o644)).To(Succeed())

			_, err := disk.Open(other, intr, nil, disk.WithLogger(quietLogger()))

			Expect(err).To(MatchError(disk.ErrBadMagic))
		})
	})

	Describe("requests", func() {
		It("should complete through the interrupt controller", func() {
			data := make([]byte, cfg.SectorSize)
			for i := range data {
				data[i] = byte(i)
			}

			d.WriteRequest(3, data)
			Expect(d.Busy()).To(BeTrue())
			Expect(done).To(BeZero())

			pending := intr.Pending()
			Expect(pending).To(HaveLen(1))
			Expect(pending[0].Kind).To(Equal(interrupt.DiskInt))

			intr.Idle()
			Expect(d.Busy()).To(BeFalse())
			Expect(done).To(Equal(1))

			got := make([]byte, cfg.SectorSize)
			d.ReadRequest(3, got)
			intr.Idle()

			Expect(got).To(Equal(data))
			Expect(done).To(Equal(2))
			Expect(d.Stats()).To(Equal(disk.Stats{Reads: 1, Writes: 1}))
		})

		It("should refuse a second request while one is in flight", func() {
			buf := make([]byte, cfg.SectorSize)
			d.ReadRequest(0, buf)

			Expect(func() { d.ReadRequest(1, buf) }).To(Panic())
		})

		It("should refuse sectors outside the disk", func() {
			buf := make([]byte, cfg.SectorSize)

			Expect(func() { d.ReadRequest(-1, buf) }).To(Panic())
			Expect(func() { d.WriteRequest(d.NumSectors(), buf) }).To(Panic())
			Expect(d.Busy()).To(BeFalse())
		})

		It("should refuse short buffers", func() {
			Expect(func() { d.ReadRequest(0, make([]byte, 4)) }).To(Panic())
		})

		Context("on a swap disk", func() {
			BeforeEach(func() {
				extra = []disk.Option{disk.WithInterruptKind(interrupt.SwapDiskInt)}
			})

			It("should raise swap disk interrupts", func() {
				d.ReadRequest(0, make([]byte, cfg.SectorSize))
				Expect(intr.Pending()[0].Kind).To(Equal(interrupt.SwapDiskInt))
			})
		})
	})

	Describe("ComputeLatency", func() {
		It("should charge one sector time for the sector under the head", func() {
			Expect(d.ComputeLatency(0, false)).To(Equal(uint64(500)))
		})

		It("should wait for the sector to rotate under the head", func() {
			Expect(d.ComputeLatency(5, true)).To(Equal(uint64(3000)))
		})

		It("should add the seek to another track", func() {
			Expect(d.ComputeLatency(32, false)).To(Equal(uint64(16500)))
		})

		It("should serve reads of a passed sector from the track buffer", func() {
			d.ReadRequest(0, make([]byte, cfg.SectorSize))
			intr.OneTick(3000, false)
			Expect(done).To(Equal(1))

			Expect(d.ComputeLatency(2, false)).To(Equal(uint64(500)))
			Expect(d.ComputeLatency(2, true)).To(Equal(uint64(14500)))
		})

		Context("without a track buffer", func() {
			BeforeEach(func() {
				extra = []disk.Option{disk.WithoutTrackBuffer()}
			})

			It("should wait a full rotation", func() {
				d.ReadRequest(0, make([]byte, cfg.SectorSize))
				intr.OneTick(3000, false)

				Expect(d.ComputeLatency(2, false)).To(Equal(uint64(14500)))
			})
		})
	})
})
