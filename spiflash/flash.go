// Package spiflash drives W25X/W25Q family SPI NOR flash chips over an
// abstract bus. It only encodes the command protocol: the electrical side
// lives behind the Bus interface (see the spidev package for a Linux
// implementation).
package spiflash

import (
	"encoding/binary"
	"errors"
	"time"
)

// Bus is the SPI transport used by Flash. BeginTransaction asserts the
// chip select line and EndTransaction releases it; Exchange transfers
// bytes while the line is held. out or in may be nil for a half-duplex
// transfer. Transport errors are returned to the caller of the Flash
// operation unchanged.
type Bus interface {
	BeginTransaction() error
	Exchange(out []byte, in []byte) error
	EndTransaction() error
}

var (
	ErrorInvalidLength = errors.New("data does not fit in one page")
	ErrorTimeout       = errors.New("device did not become idle in time")
)

// Config holds the busy-poll tuning of a Flash. The zero value selects
// conservative defaults (1 ms poll interval, roughly 1 s for a page
// program, 2 s for a sector erase and 20 s for a chip erase).
type Config struct {
	PollInterval time.Duration

	/* Maximum number of status reads before giving up */
	ProgramPolls     int
	SectorErasePolls int
	ChipErasePolls   int

	/* Sleep between polls, time.Sleep if nil */
	Sleep func(time.Duration)
}

type Flash struct {
	bus Bus
	cfg Config
}

// New returns a Flash using the default Config. The bus must not be
// shared with another consumer while the Flash exists.
func New(bus Bus) *Flash {
	return NewWithConfig(bus, Config{})
}

func NewWithConfig(bus Bus, cfg Config) *Flash {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	if cfg.ProgramPolls <= 0 {
		cfg.ProgramPolls = 1000
	}
	if cfg.SectorErasePolls <= 0 {
		cfg.SectorErasePolls = 2000
	}
	if cfg.ChipErasePolls <= 0 {
		cfg.ChipErasePolls = 20000
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}

	return &Flash{
		bus: bus,
		cfg: cfg,
	}
}

/* Runs one chip select cycle: send out, then clock in bytes into in if
 * it is not empty. The line is released even if a transfer fails. */
func (f *Flash) command(out []byte, in []byte) error {
	if err := f.bus.BeginTransaction(); err != nil {
		return err
	}

	err := f.bus.Exchange(out, nil)
	if err == nil && len(in) > 0 {
		err = f.bus.Exchange(nil, in)
	}

	if endErr := f.bus.EndTransaction(); err == nil {
		err = endErr
	}
	return err
}

func commandWithAddress(op uint8, address uint32) []byte {
	var cmd [4]byte
	binary.BigEndian.PutUint32(cmd[:], address)
	cmd[0] = op
	return cmd[:]
}

// Read fills buf with flash contents starting at address. Only the low
// 24 bits of address reach the device.
func (f *Flash) Read(address uint32, buf []byte) error {
	return f.command(commandWithAddress(opRead, address), buf)
}

// PageProgram writes up to PageSize bytes starting at address. The
// caller must keep the data inside one page, the device wraps at the
// page boundary otherwise. The target bytes must be in the erased
// state for the result to match data.
func (f *Flash) PageProgram(address uint32, data []byte) error {
	if len(data) > PageSize {
		return ErrorInvalidLength
	}

	if err := f.WriteEnable(); err != nil {
		return err
	}

	cmd := make([]byte, 4, 4+len(data))
	binary.BigEndian.PutUint32(cmd, address)
	cmd[0] = opPageProgram
	cmd = append(cmd, data...)

	if err := f.command(cmd, nil); err != nil {
		return err
	}

	return f.waitIdle(f.cfg.ProgramPolls)
}

// EraseSector erases the sector containing address to 0xFF. The device
// ignores the offset inside the sector.
func (f *Flash) EraseSector(address uint32) error {
	if err := f.WriteEnable(); err != nil {
		return err
	}

	if err := f.command(commandWithAddress(opSectorErase, address), nil); err != nil {
		return err
	}

	return f.waitIdle(f.cfg.SectorErasePolls)
}

// EraseChip erases the whole array to 0xFF. This can take many seconds
// on larger chips.
func (f *Flash) EraseChip() error {
	if err := f.WriteEnable(); err != nil {
		return err
	}

	if err := f.command([]byte{opChipErase}, nil); err != nil {
		return err
	}

	return f.waitIdle(f.cfg.ChipErasePolls)
}

// SoftwareReset returns the device to its power-on state. The device
// requires two back to back commands to arm and execute the reset.
func (f *Flash) SoftwareReset() error {
	if err := f.command([]byte{opEnableReset}, nil); err != nil {
		return err
	}
	return f.command([]byte{opReset}, nil)
}

// WriteEnable sets the write enable latch. All program and erase
// methods do this internally, it is exported for callers composing
// their own sequences. Setting the latch twice is harmless.
func (f *Flash) WriteEnable() error {
	return f.command([]byte{opWriteEnable}, nil)
}

// ReadStatus returns the first status register.
func (f *Flash) ReadStatus() (Status, error) {
	var buf [1]byte
	err := f.command([]byte{opReadStatus}, buf[:])
	return Status(buf[0]), err
}

// IsBusy reports whether a program or erase cycle is in progress.
func (f *Flash) IsBusy() (bool, error) {
	status, err := f.ReadStatus()
	return status.Busy(), err
}

// IsWriteEnabled reports whether the write enable latch is set.
func (f *Flash) IsWriteEnabled() (bool, error) {
	status, err := f.ReadStatus()
	return status.WriteEnabled(), err
}

// ReadManufacturerDeviceID returns the legacy manufacturer and device
// ID bytes (command 0x90).
func (f *Flash) ReadManufacturerDeviceID() (uint8, uint8, error) {
	var buf [2]byte
	err := f.command([]byte{opReadMfDevID, 0, 0, 0}, buf[:])
	return buf[0], buf[1], err
}

// ReadJEDECID returns the JEDEC identification bytes (command 0x9F).
func (f *Flash) ReadJEDECID() (JEDECID, error) {
	var buf [3]byte
	err := f.command([]byte{opReadJEDECID}, buf[:])
	return JEDECID{
		Manufacturer: buf[0],
		MemoryType:   buf[1],
		Capacity:     buf[2],
	}, err
}

func (f *Flash) waitIdle(maxPolls int) error {
	for i := 0; i < maxPolls; i++ {
		status, err := f.ReadStatus()
		if err != nil {
			return err
		}
		if !status.Busy() {
			return nil
		}

		f.cfg.Sleep(f.cfg.PollInterval)
	}

	return ErrorTimeout
}
