package spidev

import "testing"

func TestIocMessage(t *testing.T) {
	/* struct spi_ioc_transfer is 32 bytes */
	if got := iocMessage(1); got != 0x40206b00 {
		t.Errorf("iocMessage(1) = %08x", got)
	}
	if got := iocMessage(2); got != 0x40406b00 {
		t.Errorf("iocMessage(2) = %08x", got)
	}
	if got := iocMessage(0); got != 0x40006b00 {
		t.Errorf("iocMessage(0) = %08x", got)
	}

	/* Oversized and negative messages degrade to a zero-transfer number */
	if got := iocMessage(1024); got != iocMessage(0) {
		t.Errorf("iocMessage(1024) = %08x", got)
	}
	if got := iocMessage(-1); got != iocMessage(0) {
		t.Errorf("iocMessage(-1) = %08x", got)
	}
}

func TestTransactionStateMachine(t *testing.T) {
	d := &Device{}

	if err := d.Exchange([]byte{1}, nil); err != ErrorTransactionClosed {
		t.Error("Exchange outside transaction accepted:", err)
	}
	if err := d.EndTransaction(); err != ErrorTransactionClosed {
		t.Error("EndTransaction outside transaction accepted:", err)
	}

	if err := d.BeginTransaction(); err != nil {
		t.Fatal("BeginTransaction failed:", err)
	}
	if err := d.BeginTransaction(); err != ErrorTransactionOpen {
		t.Error("Nested transaction accepted:", err)
	}

	if err := d.Exchange([]byte{1, 2}, make([]byte, 3)); err == nil {
		t.Error("Mismatched full-duplex lengths accepted")
	}
	if err := d.Exchange(nil, nil); err != nil {
		t.Error("Empty exchange failed:", err)
	}

	/* Nothing was queued, so ending must not reach the device */
	if err := d.EndTransaction(); err != nil {
		t.Error("EndTransaction of empty transaction failed:", err)
	}
}
