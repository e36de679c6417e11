package drivers_test

import (
	"io"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sirupsen/logrus"

	"github.com/Kyllano/TacOS/config"
	"github.com/Kyllano/TacOS/disk"
	"github.com/Kyllano/TacOS/drivers"
	"github.com/Kyllano/TacOS/interrupt"
)

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.Out = io.Discard
	return logrus.NewEntry(logger)
}

// slowDevice records requests and leaves their completion to the test.
type slowDevice struct {
	mu       sync.Mutex
	inFlight bool
	overlap  bool
	issued   []int
	requests chan int
}

func newSlowDevice() *slowDevice {
	return &slowDevice{requests: make(chan int, 8)}
}

func (s *slowDevice) issue(sector int, data []byte) {
	s.mu.Lock()
	if s.inFlight {
		s.overlap = true
	}
	s.inFlight = true
	s.issued = append(s.issued, sector)
	s.mu.Unlock()

	data[0] = byte(sector)
	s.requests <- sector
}

func (s *slowDevice) ReadRequest(sector int, data []byte)  { s.issue(sector, data) }
func (s *slowDevice) WriteRequest(sector int, data []byte) { s.issue(sector, data) }

func (s *slowDevice) complete(drv *drivers.DiskDriver) {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
	drv.RequestDone()
}

var _ = Describe("DiskDriver", func() {
	It("should serialize concurrent requests", func() {
		dev := newSlowDevice()
		drv := drivers.NewDiskDriver(dev, drivers.WithLogger(quietLogger()))

		var wg sync.WaitGroup
		results := make([][]byte, 2)
		for i := range results {
			results[i] = make([]byte, 8)
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				drv.ReadSector(10+i, results[i])
			}()
		}

		for range results {
			var sector int
			Eventually(dev.requests).Should(Receive(&sector))
			Consistently(dev.requests, "20ms").ShouldNot(Receive())
			dev.complete(drv)
		}
		wg.Wait()

		Expect(dev.overlap).To(BeFalse())
		Expect(dev.issued).To(ConsistOf(10, 11))
		Expect(results[0][0]).To(Equal(byte(10)))
		Expect(results[1][0]).To(Equal(byte(11)))
	})

	It("should block until the completion arrives", func() {
		dev := newSlowDevice()
		drv := drivers.NewDiskDriver(dev, drivers.WithLogger(quietLogger()))

		returned := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			drv.WriteSector(4, make([]byte, 8))
			close(returned)
		}()

		Eventually(dev.requests).Should(Receive())
		Consistently(returned, "20ms").ShouldNot(BeClosed())

		dev.complete(drv)
		Eventually(returned).Should(BeClosed())
	})

	It("should not block in the completion handler", func() {
		drv := drivers.NewDiskDriver(newSlowDevice(), drivers.WithLogger(quietLogger()))

		finished := make(chan struct{})
		go func() {
			drv.RequestDone()
			drv.RequestDone()
			close(finished)
		}()

		Eventually(finished).Should(BeClosed())
	})

	It("should let one early completion release the next request", func() {
		dev := newSlowDevice()
		drv := drivers.NewDiskDriver(dev, drivers.WithLogger(quietLogger()))
		drv.RequestDone()

		returned := make(chan struct{})
		go func() {
			drv.ReadSector(3, make([]byte, 4))
			close(returned)
		}()

		Eventually(returned).Should(BeClosed())
		Expect(dev.issued).To(Equal([]int{3}))
	})

	Context("driven by the interrupt controller", func() {
		var (
			cfg  *config.Config
			intr *interrupt.Interrupt
			drv  *drivers.DiskDriver
		)

		BeforeEach(func() {
			cfg = config.Default()
			intr = interrupt.New(interrupt.WithConfig(cfg), interrupt.WithLogger(quietLogger()))

			path := filepath.Join(GinkgoT().TempDir(), "DISK")
			d, err := disk.Open(path, intr, func() { drv.RequestDone() },
				disk.WithConfig(cfg), disk.WithLogger(quietLogger()))
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(d.Close)

			drv = drivers.NewDiskDriver(d,
				drivers.WithIdle(intr.Idle),
				drivers.WithLogger(quietLogger()))
		})

		It("should idle the machine until the sector is transferred", func() {
			data := make([]byte, cfg.SectorSize)
			copy(data, "hello, disk")

			drv.WriteSector(42, data)
			Expect(intr.Now()).To(BeNumerically(">", 0))

			got := make([]byte, cfg.SectorSize)
			drv.ReadSector(42, got)

			Expect(got).To(Equal(data))
			Expect(intr.Stats().IdleTicks).To(Equal(intr.Now()))
			Expect(intr.Halted()).To(BeFalse())
		})
	})
})
