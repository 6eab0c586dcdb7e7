package spiflash

import "fmt"

/* Command opcodes of the W25X/W25Q family. The values are fixed by the
 * datasheet and shared by most 25-series chips. */
const (
	opWriteEnable = 0x06
	opReadStatus  = 0x05
	opRead        = 0x03
	opPageProgram = 0x02
	opSectorErase = 0x20
	opChipErase   = 0xC7
	opEnableReset = 0x66
	opReset       = 0x99
	opReadMfDevID = 0x90
	opReadJEDECID = 0x9F
)

const (
	/* Largest payload of one page program command */
	PageSize = 256

	/* Smallest erasable block */
	SectorSize = 4096
)

// Status is the first status register of the device.
type Status uint8

const (
	StatusBusy Status = 1 << 0
	StatusWEL  Status = 1 << 1
)

// Busy reports whether a program or erase cycle is in progress.
func (s Status) Busy() bool {
	return s&StatusBusy != 0
}

// WriteEnabled reports whether the write enable latch is set.
func (s Status) WriteEnabled() bool {
	return s&StatusWEL != 0
}

// JEDECID holds the three identification bytes returned by the 0x9F
// command. Capacity is the raw capacity code, not a byte count.
type JEDECID struct {
	Manufacturer uint8
	MemoryType   uint8
	Capacity     uint8
}

func (id JEDECID) String() string {
	return fmt.Sprintf("%02x %02x %02x", id.Manufacturer, id.MemoryType, id.Capacity)
}
