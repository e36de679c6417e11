// Package config holds the tunable parameters of the simulated machine:
// memory geometry, disk geometry and the timing constants used by the
// interrupt controller and devices.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Config describes one simulated machine.
type Config struct {
	// PageSize is the size of a virtual and physical page in bytes. It is
	// also the unit of disk transfers in most kernels. Default: 128.
	PageSize int `json:"page_size" yaml:"page_size"`

	// NumPhysPages is the number of physical memory pages. Default: 20.
	NumPhysPages int `json:"num_phys_pages" yaml:"num_phys_pages"`

	// MaxVirtPages bounds the size of a translation table. Default: 1024.
	MaxVirtPages int `json:"max_virt_pages" yaml:"max_virt_pages"`

	// SectorSize is the number of bytes per disk sector. Default: 128.
	SectorSize int `json:"sector_size" yaml:"sector_size"`

	// SectorsPerTrack is the number of sectors on one disk track.
	// Default: 32.
	SectorsPerTrack int `json:"sectors_per_track" yaml:"sectors_per_track"`

	// NumTracks is the number of tracks on the disk. Default: 64.
	NumTracks int `json:"num_tracks" yaml:"num_tracks"`

	// UserTick is the simulated time charged for one user instruction.
	// Default: 1 tick.
	UserTick uint64 `json:"user_tick" yaml:"user_tick"`

	// SystemTick is the simulated time charged each time interrupts are
	// re-enabled in the kernel. Default: 10 ticks.
	SystemTick uint64 `json:"system_tick" yaml:"system_tick"`

	// RotationTime is the time for the disk to pass one sector under the
	// head. Default: 500 ticks.
	RotationTime uint64 `json:"rotation_time" yaml:"rotation_time"`

	// SeekTime is the time for the disk head to move one track.
	// Default: 500 ticks.
	SeekTime uint64 `json:"seek_time" yaml:"seek_time"`

	// TimerTicks is the period of the hardware timer. Default: 100 ticks.
	TimerTicks uint64 `json:"timer_ticks" yaml:"timer_ticks"`

	// ProcessorFrequency is the clock frequency in MHz used to convert
	// ticks to wall time in statistics. Default: 100.
	ProcessorFrequency uint64 `json:"processor_frequency" yaml:"processor_frequency"`

	// DiskFile is the host file backing the main disk. Default: "DISK".
	DiskFile string `json:"disk_file" yaml:"disk_file"`

	// SwapFile is the host file backing the swap disk. Default: "SWAPDISK".
	SwapFile string `json:"swap_file" yaml:"swap_file"`
}

// Default returns a Config with the classic educational machine values.
func Default() *Config {
	return &Config{
		PageSize:           128,
		NumPhysPages:       20,
		MaxVirtPages:       1024,
		SectorSize:         128,
		SectorsPerTrack:    32,
		NumTracks:          64,
		UserTick:           1,
		SystemTick:         10,
		RotationTime:       500,
		SeekTime:           500,
		TimerTicks:         100,
		ProcessorFrequency: 100,
		DiskFile:           "DISK",
		SwapFile:           "SWAPDISK",
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Load reads a Config from a JSON file, or a YAML file when the path ends in
// .yaml or .yml. Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read machine config file: %w", err)
	}

	c := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, c)
	} else {
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse machine config: %w", err)
	}

	return c, nil
}

// Save writes the Config to path, in YAML when the extension asks for it and
// in indented JSON otherwise.
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize machine config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write machine config file: %w", err)
	}

	return nil
}

// Validate checks that the geometry and timing values are usable.
func (c *Config) Validate() error {
	if c.PageSize < 8 || c.PageSize&(c.PageSize-1) != 0 {
		return fmt.Errorf("page_size must be a power of two >= 8")
	}
	if c.NumPhysPages <= 0 {
		return fmt.Errorf("num_phys_pages must be > 0")
	}
	if c.MaxVirtPages <= 0 {
		return fmt.Errorf("max_virt_pages must be > 0")
	}
	if c.SectorSize <= 0 {
		return fmt.Errorf("sector_size must be > 0")
	}
	if c.SectorsPerTrack <= 0 {
		return fmt.Errorf("sectors_per_track must be > 0")
	}
	if c.NumTracks <= 0 {
		return fmt.Errorf("num_tracks must be > 0")
	}
	if c.UserTick == 0 {
		return fmt.Errorf("user_tick must be > 0")
	}
	if c.SystemTick == 0 {
		return fmt.Errorf("system_tick must be > 0")
	}
	if c.RotationTime == 0 {
		return fmt.Errorf("rotation_time must be > 0")
	}
	if c.TimerTicks == 0 {
		return fmt.Errorf("timer_ticks must be > 0")
	}
	if c.ProcessorFrequency == 0 {
		return fmt.Errorf("processor_frequency must be > 0")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// NumSectors returns the total number of sectors on a disk.
func (c *Config) NumSectors() int {
	return c.SectorsPerTrack * c.NumTracks
}

// MemorySize returns the physical memory size in bytes.
func (c *Config) MemorySize() int {
	return c.NumPhysPages * c.PageSize
}

// TicksToNanos converts simulated ticks to nanoseconds at the configured
// processor frequency.
func (c *Config) TicksToNanos(ticks uint64) uint64 {
	return ticks * 1000 / c.ProcessorFrequency
}
