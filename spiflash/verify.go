package spiflash

import (
	"errors"

	"github.com/snksoft/crc"
)

var ErrorVerifyFailed = errors.New("flash contents do not match data")

var crcTable = crc.NewTable(crc.CRC32)

// Checksum reads length bytes starting at offset and returns their
// CRC32. The region is read in page sized chunks so a large region does
// not need a matching buffer.
func (f *Flash) Checksum(offset uint32, length int) (uint32, error) {
	h := crc.NewHashWithTable(crcTable)

	var buf [PageSize]byte
	for length > 0 {
		chunk := buf[:]
		if length < len(chunk) {
			chunk = chunk[:length]
		}

		if err := f.Read(offset, chunk); err != nil {
			return 0, err
		}
		h.Update(chunk)

		offset += uint32(len(chunk))
		length -= len(chunk)
	}

	return h.CRC32(), nil
}

// Verify checks that the flash contents starting at offset equal data,
// comparing CRC32 values instead of the raw bytes. It fails with
// ErrorVerifyFailed on a mismatch.
func (f *Flash) Verify(offset uint32, data []byte) error {
	got, err := f.Checksum(offset, len(data))
	if err != nil {
		return err
	}

	h := crc.NewHashWithTable(crcTable)
	h.Update(data)
	if got != h.CRC32() {
		return ErrorVerifyFailed
	}
	return nil
}
