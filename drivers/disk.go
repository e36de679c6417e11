// Package drivers provides synchronous kernel drivers on top of the
// asynchronous devices of the machine.
package drivers

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// Device is an asynchronous sector device. Requests return immediately
// and completion is reported later through the driver's RequestDone.
type Device interface {
	ReadRequest(sector int, data []byte)
	WriteRequest(sector int, data []byte)
}

// DiskDriver gives a synchronous interface to a Device: ReadSector and
// WriteSector return only once the transfer is complete. Only one request
// is issued to the device at a time.
type DiskDriver struct {
	device Device
	gate   *semaphore.Weighted
	done   chan struct{}
	idle   func()
	logger *logrus.Entry
}

// DiskDriverOption is a functional option for configuring a DiskDriver.
type DiskDriverOption func(*DiskDriver)

// WithIdle sets a function called repeatedly while waiting for a
// completion. A kernel driving the machine from a single goroutine passes
// the interrupt controller's Idle so that simulated time moves on.
func WithIdle(idle func()) DiskDriverOption {
	return func(d *DiskDriver) {
		d.idle = idle
	}
}

// WithLogger sets the logger used for driver traces.
func WithLogger(l *logrus.Entry) DiskDriverOption {
	return func(d *DiskDriver) {
		d.logger = l
	}
}

// NewDiskDriver creates a driver for device. The device completion
// function must call RequestDone.
func NewDiskDriver(device Device, opts ...DiskDriverOption) *DiskDriver {
	d := &DiskDriver{
		device: device,
		gate:   semaphore.NewWeighted(1),
		done:   make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	d.logger = d.logger.WithField("component", "sdisk")

	return d
}

// ReadSector reads sector into data and returns once the data is there.
func (d *DiskDriver) ReadSector(sector int, data []byte) {
	d.logger.WithField("sector", sector).Debug("rd req")
	d.acquire()
	defer d.gate.Release(1)

	d.device.ReadRequest(sector, data)
	d.logger.WithField("sector", sector).Debug("rd req: wait irq")
	d.wait()
	d.logger.WithField("sector", sector).Debug("rd req: wait irq OK")
}

// WriteSector writes data into sector and returns once it is stored.
func (d *DiskDriver) WriteSector(sector int, data []byte) {
	d.logger.WithField("sector", sector).Debug("wr req")
	d.acquire()
	defer d.gate.Release(1)

	d.device.WriteRequest(sector, data)
	d.logger.WithField("sector", sector).Debug("wr req: wait irq")
	d.wait()
	d.logger.WithField("sector", sector).Debug("wr req: wait irq OK")
}

// RequestDone is the device completion handler. It wakes the waiting
// requester and never blocks.
func (d *DiskDriver) RequestDone() {
	d.logger.Debug("req done")
	select {
	case d.done <- struct{}{}:
	default:
		d.logger.Warn("completion without a pending request")
	}
}

func (d *DiskDriver) acquire() {
	// Acquire only fails on context cancellation.
	_ = d.gate.Acquire(context.Background(), 1)
}

func (d *DiskDriver) wait() {
	if d.idle == nil {
		<-d.done
		return
	}

	for {
		select {
		case <-d.done:
			return
		default:
			d.idle()
		}
	}
}
