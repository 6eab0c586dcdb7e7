package spiflash

// Write programs data starting at offset, splitting it so that no
// single program command crosses a page boundary. It returns the number
// of bytes handled. Bytes that are already in the erased state at both
// ends of a page are not transmitted; the affected range must be erased
// for the contents to match data afterwards.
func (f *Flash) Write(offset uint32, data []byte) (int, error) {
	return completeIO(offset, data, f.writePage)
}

func (f *Flash) writePage(offset uint32, data []byte) (int, error) {
	/* Do not write over page boundary */
	if maxLen := pageCrossLength(offset, PageSize); len(data) > maxLen {
		data = data[:maxLen]
	}

	/* Do not waste time programming 0xFF runs */
	skippedFront := 0
	for i, m := range data {
		if m != 0xFF {
			offset += uint32(i)
			skippedFront = i
			data = data[i:]
			break
		}
	}

	skippedEnd := 0
	for len(data) > 0 && data[len(data)-1] == 0xFF {
		data = data[:len(data)-1]
		skippedEnd++
	}
	if len(data) == 0 {
		return skippedFront + skippedEnd, nil
	}

	if err := f.PageProgram(offset, data); err != nil {
		return 0, err
	}

	return skippedFront + skippedEnd + len(data), nil
}

func completeIO(offset uint32, buf []byte, f func(offset uint32, buf []byte) (int, error)) (int, error) {
	index := 0

	for len(buf) > 0 {
		n, err := f(offset, buf)
		index += n
		offset += uint32(n)

		if err != nil {
			return index, err
		}

		buf = buf[n:]
	}

	return index, nil
}

func pageCrossLength(offset uint32, pageSize uint32) int {
	mask := pageSize - 1
	return int(pageSize - offset&mask)
}
