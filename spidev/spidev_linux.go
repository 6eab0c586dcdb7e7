// Package spidev implements the spiflash bus contract on top of the
// Linux spidev character devices (/dev/spidevN.M).
//
// Exchange calls between BeginTransaction and EndTransaction are queued
// and submitted as a single multi-transfer SPI_IOC_MESSAGE ioctl, so
// chip select stays asserted for the whole transaction window. Receive
// buffers are therefore only filled once EndTransaction returns.
package spidev

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

/* See Linux include/uapi/linux/spi/spidev.h */
const (
	iocWrMode        = 0x40016b01
	iocWrLSBFirst    = 0x40016b02
	iocWrBitsPerWord = 0x40016b03
	iocWrMaxSpeedHz  = 0x40046b04
)

var (
	ErrorTransactionOpen   = errors.New("transaction already open")
	ErrorTransactionClosed = errors.New("no open transaction")
)

/* Kernel struct spi_ioc_transfer */
type iocTransfer struct {
	TxBuf          uint64
	RxBuf          uint64
	Length         uint32
	SpeedHz        uint32
	DelayUsecs     uint16
	BitsPerWord    uint8
	CSChange       uint8
	TxNBits        uint8
	RxNBits        uint8
	WordDelayUsecs uint8
	Pad            uint8
}

// iocMessage is the ioctl number for a message of n transfers.
func iocMessage(n int) uint32 {
	const (
		sizeBits  = 14
		sizeShift = 16
	)
	size := uint32(n * binary.Size(iocTransfer{}))
	if n < 0 || size > (1<<sizeBits) {
		return iocMessage(0)
	}
	return 0x40006b00 | (size << sizeShift)
}

type transfer struct {
	tx []byte
	rx []byte
}

// Device is one spidev chip select. It implements spiflash.Bus.
type Device struct {
	f *os.File

	open  bool
	queue []transfer
}

// Open opens a spidev device such as "/dev/spidev0.0". Remember to call
// Close().
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &Device{f: f}, nil
}

func (d *Device) Close() error {
	return d.f.Close()
}

func (d *Device) ioctl(request uint32, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(request), uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}

// SetMode sets the SPI mode (clock polarity and phase, 0 to 3). The
// W25 family works in mode 0 or 3.
func (d *Device) SetMode(mode uint8) error {
	return d.ioctl(iocWrMode, unsafe.Pointer(&mode))
}

// SetSpeed sets the maximum clock speed in Hz.
func (d *Device) SetSpeed(hz uint32) error {
	return d.ioctl(iocWrMaxSpeedHz, unsafe.Pointer(&hz))
}

func (d *Device) BeginTransaction() error {
	if d.open {
		return ErrorTransactionOpen
	}

	d.open = true
	d.queue = d.queue[:0]
	return nil
}

func (d *Device) Exchange(out []byte, in []byte) error {
	if !d.open {
		return ErrorTransactionClosed
	}
	if len(out) != len(in) && len(out) > 0 && len(in) > 0 {
		return fmt.Errorf("out/in lengths must be equal, or one side empty")
	}
	if len(out) == 0 && len(in) == 0 {
		return nil
	}

	d.queue = append(d.queue, transfer{tx: out, rx: in})
	return nil
}

func (d *Device) EndTransaction() error {
	if !d.open {
		return ErrorTransactionClosed
	}
	d.open = false

	if len(d.queue) == 0 {
		return nil
	}
	return d.submit(d.queue)
}

/* Sends the queued transfers as one message. CSChange stays zero on
 * every segment so the chip select is held from the first byte to the
 * last and released when the message ends. */
func (d *Device) submit(transfers []transfer) error {
	/* The kernel reads and writes the buffers via their physical
	 * address, so use memory the Go runtime will not touch. */
	bufSize := 0
	for _, t := range transfers {
		bufSize += len(t.tx) + len(t.rx)
	}
	buf, err := unix.Mmap(-1, 0, bufSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return err
	}
	defer unix.Munmap(buf)

	it := make([]iocTransfer, 0, len(transfers))
	bufOffset := 0
	for _, t := range transfers {
		copy(buf[bufOffset:], t.tx)

		length := len(t.tx)
		if length == 0 {
			length = len(t.rx)
		}

		tr := iocTransfer{
			Length: uint32(length),
		}
		if len(t.tx) > 0 {
			tr.TxBuf = uint64(uintptr(unsafe.Pointer(&buf[bufOffset])))
		}
		if len(t.rx) > 0 {
			tr.RxBuf = uint64(uintptr(unsafe.Pointer(&buf[bufOffset+len(t.tx)])))
		}
		it = append(it, tr)

		bufOffset += len(t.tx) + len(t.rx)
	}

	if err := d.ioctl(iocMessage(len(transfers)), unsafe.Pointer(&it[0])); err != nil {
		return err
	}

	/* Copy out the received bytes */
	bufOffset = 0
	for _, t := range transfers {
		copy(t.rx, buf[bufOffset+len(t.tx):])
		bufOffset += len(t.tx) + len(t.rx)
	}

	return nil
}
