// Package disk emulates a physical disk backed by a host file.
//
// The disk has a single surface split into tracks, each track split into
// sectors of the same size. Sectors are addressed by a flat number:
// track * SectorsPerTrack + offset within the track.
//
// Like every device of the machine, the disk is asynchronous. ReadRequest
// and WriteRequest return immediately and an interrupt is scheduled for
// when the transfer would have completed. Only one request may be in
// flight at a time.
//
// The simulated latency models seek time, rotational delay and a track
// buffer: the disk always reads the track under the head into a buffer, so
// a read arriving after the head has passed the sector completes in one
// sector time.
package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/Kyllano/TacOS/config"
	"github.com/Kyllano/TacOS/interrupt"
)

// MagicNumber starts every disk image and guards against using an
// arbitrary host file as a disk.
const MagicNumber uint32 = 0x456789ab

// MagicSize is the size of the image header holding MagicNumber.
const MagicSize = 4

// ErrBadMagic is returned when opening a file that is not a disk image.
var ErrBadMagic = errors.New("disk: not a disk image")

// Scheduler is the part of the interrupt controller the disk relies on.
type Scheduler interface {
	Schedule(handler func(), fromNow uint64, kind interrupt.Kind)
	Now() uint64
}

// Stats counts the requests served by a disk.
type Stats struct {
	Reads  uint64
	Writes uint64
}

// Disk is a simulated physical disk.
type Disk struct {
	mu sync.Mutex

	file   *os.File
	name   string
	sched  Scheduler
	onDone func()
	kind   interrupt.Kind

	sectorSize      int64
	sectorsPerTrack int64
	numSectors      int64
	rotationTime    int64
	seekTime        int64
	trackBuffer     bool

	active     bool
	lastSector int64
	bufferInit int64
	reqID      xid.ID

	stats  Stats
	logger *logrus.Entry
}

// Option is a functional option for configuring a Disk.
type Option func(*Disk)

// WithConfig takes the disk geometry and timing from c.
func WithConfig(c *config.Config) Option {
	return func(d *Disk) {
		d.sectorSize = int64(c.SectorSize)
		d.sectorsPerTrack = int64(c.SectorsPerTrack)
		d.numSectors = int64(c.NumSectors())
		d.rotationTime = int64(c.RotationTime)
		d.seekTime = int64(c.SeekTime)
	}
}

// WithLogger sets the logger used for disk traces.
func WithLogger(l *logrus.Entry) Option {
	return func(d *Disk) {
		d.logger = l
	}
}

// WithInterruptKind sets the kind of the completion interrupt, so that a
// swap disk can be told apart from the main disk. Default: DiskInt.
func WithInterruptKind(k interrupt.Kind) Option {
	return func(d *Disk) {
		d.kind = k
	}
}

// WithoutTrackBuffer disables the track buffer in the latency model.
func WithoutTrackBuffer() Option {
	return func(d *Disk) {
		d.trackBuffer = false
	}
}

// Open opens the disk image at path, creating and zero-filling it if it
// does not exist. onDone is called from interrupt context each time a
// request completes. The image is locked against other simulators for as
// long as the disk is open.
func Open(path string, sched Scheduler, onDone func(), opts ...Option) (*Disk, error) {
	d := &Disk{
		name:        path,
		sched:       sched,
		onDone:      onDone,
		kind:        interrupt.DiskInt,
		trackBuffer: true,
	}
	WithConfig(config.Default())(d)

	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	d.logger = d.logger.WithFields(logrus.Fields{
		"component": "disk",
		"disk":      path,
	})

	f, created, err := openImage(path)
	if err != nil {
		return nil, err
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock disk image %s: %w", path, err)
	}
	d.file = f

	if created {
		err = d.format()
	} else {
		err = d.checkMagic()
	}
	if err != nil {
		d.Close()
		return nil, err
	}

	d.logger.WithField("created", created).Debug("disk opened")

	return d, nil
}

func openImage(path string) (*os.File, bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err == nil {
		return f, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("failed to open disk image %s: %w", path, err)
	}

	f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create disk image %s: %w", path, err)
	}
	return f, true, nil
}

func (d *Disk) format() error {
	var header [MagicSize]byte
	binary.LittleEndian.PutUint32(header[:], MagicNumber)
	if _, err := d.file.WriteAt(header[:], 0); err != nil {
		return fmt.Errorf("failed to format disk image %s: %w", d.name, err)
	}
	if err := d.file.Truncate(MagicSize + d.numSectors*d.sectorSize); err != nil {
		return fmt.Errorf("failed to size disk image %s: %w", d.name, err)
	}
	return nil
}

func (d *Disk) checkMagic() error {
	var header [MagicSize]byte
	if _, err := d.file.ReadAt(header[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: %w", d.name, ErrBadMagic)
		}
		return fmt.Errorf("failed to read disk image %s: %w", d.name, err)
	}
	if binary.LittleEndian.Uint32(header[:]) != MagicNumber {
		return fmt.Errorf("%s: %w", d.name, ErrBadMagic)
	}
	return nil
}

// Close unlocks and closes the image file.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}
	unlockFile(d.file)
	err := d.file.Close()
	d.file = nil
	return err
}

// SectorSize returns the number of bytes per sector.
func (d *Disk) SectorSize() int {
	return int(d.sectorSize)
}

// NumSectors returns the number of sectors of the disk.
func (d *Disk) NumSectors() int {
	return int(d.numSectors)
}

// Busy reports whether a request is in flight.
func (d *Disk) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// Stats returns the request counters.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// ReadRequest copies sector into data and schedules the completion
// interrupt. data must hold at least one sector.
func (d *Disk) ReadRequest(sector int, data []byte) {
	d.request(int64(sector), data, false)
}

// WriteRequest copies data into sector and schedules the completion
// interrupt. data must hold at least one sector.
func (d *Disk) WriteRequest(sector int, data []byte) {
	d.request(int64(sector), data, true)
}

func (d *Disk) request(sector int64, data []byte, writing bool) {
	d.mu.Lock()

	if d.active {
		d.mu.Unlock()
		panic("disk: request issued while another one is in flight")
	}
	if sector < 0 || sector >= d.numSectors {
		d.mu.Unlock()
		panic(fmt.Sprintf("disk: sector %d out of range", sector))
	}
	if int64(len(data)) < d.sectorSize {
		d.mu.Unlock()
		panic(fmt.Sprintf("disk: buffer of %d bytes is smaller than a sector", len(data)))
	}

	now := int64(d.sched.Now())
	ticks := d.computeLatency(sector, writing, now)

	d.reqID = xid.New()
	logger := d.logger.WithFields(logrus.Fields{
		"req":     d.reqID.String(),
		"sector":  sector,
		"latency": ticks,
	})

	buf := data[:d.sectorSize]
	off := MagicSize + sector*d.sectorSize
	var err error
	if writing {
		_, err = d.file.WriteAt(buf, off)
		d.stats.Writes++
		logger.Debug("writing sector")
	} else {
		_, err = d.file.ReadAt(buf, off)
		d.stats.Reads++
		logger.Debug("reading sector")
	}
	if err != nil {
		d.mu.Unlock()
		logger.WithError(err).Fatalf("host I/O on disk image failed")
		return
	}

	if logger.Logger.IsLevelEnabled(logrus.TraceLevel) {
		logger.Trace(spew.Sdump(buf))
	}

	d.active = true
	d.updateLast(sector, now)
	d.mu.Unlock()

	d.sched.Schedule(d.HandleInterrupt, uint64(ticks), d.kind)
}

// HandleInterrupt completes the request in flight and calls the
// completion function.
func (d *Disk) HandleInterrupt() {
	d.mu.Lock()
	d.active = false
	d.logger.WithField("req", d.reqID.String()).Debug("request done")
	d.mu.Unlock()

	if d.onDone != nil {
		d.onDone()
	}
}

// ComputeLatency returns how long a request for sector issued now would
// take: seek, rotational delay and transfer.
func (d *Disk) ComputeLatency(sector int, writing bool) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint64(d.computeLatency(int64(sector), writing, int64(d.sched.Now())))
}

func (d *Disk) computeLatency(sector int64, writing bool, now int64) int64 {
	seek, rotation := d.timeToSeek(sector, now)
	timeAfter := now + seek + rotation

	if d.trackBuffer && !writing && seek == 0 &&
		(timeAfter-d.bufferInit)/d.rotationTime >
			d.moduloDiff(sector, d.bufferInit/d.rotationTime) {
		return d.rotationTime
	}

	rotation += d.moduloDiff(sector, timeAfter/d.rotationTime) * d.rotationTime
	return seek + rotation + d.rotationTime
}

// timeToSeek returns the time to move the head to the track of sector and
// the extra rotation needed to reach the start of a sector.
func (d *Disk) timeToSeek(sector, now int64) (seek, rotation int64) {
	newTrack := sector / d.sectorsPerTrack
	oldTrack := d.lastSector / d.sectorsPerTrack
	seek = abs(newTrack-oldTrack) * d.seekTime

	over := (now + seek) % d.rotationTime
	if over > 0 {
		rotation = d.rotationTime - over
	}
	return seek, rotation
}

// moduloDiff returns the number of sectors between the sector position
// from and sector to on the same track.
func (d *Disk) moduloDiff(to, from int64) int64 {
	toOffset := to % d.sectorsPerTrack
	fromOffset := from % d.sectorsPerTrack
	return ((toOffset - fromOffset) + d.sectorsPerTrack) % d.sectorsPerTrack
}

func (d *Disk) updateLast(sector, now int64) {
	seek, rotation := d.timeToSeek(sector, now)
	if seek != 0 {
		d.bufferInit = now + seek + rotation
	}
	d.lastSector = sector
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
