package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"potion_master/internal/logger"
	"potion_master/internal/models"
)

type fakeWriter struct {
	mu     sync.Mutex
	open   bool
	fail   bool
	writes []byte
}

func (f *fakeWriter) Write(addr byte, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("bus i/o error")
	}
	f.writes = append(f.writes, data[0])
	return nil
}

func (f *fakeWriter) IsOpen() bool { return f.open }

func (f *fakeWriter) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeWriter) last() (byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return 0, false
	}
	return f.writes[len(f.writes)-1], true
}

func newBank() (*Bank, *fakeWriter) {
	w := &fakeWriter{open: true}
	return NewBank(w, 0x20, logger.Nop()), w
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for reg := 0; reg <= 0xFF; reg++ {
		states := Decode(byte(reg))
		if got := Encode(states); got != byte(reg) {
			t.Fatalf("Encode(Decode(0x%02x)) = 0x%02x", reg, got)
		}
	}
	if Encode([models.RelayChannels]bool{}) != AllOff {
		t.Fatalf("all-off state must encode to 0xFF")
	}
	if got := Encode([models.RelayChannels]bool{true}); got != 0xFE {
		t.Fatalf("channel 0 on: got 0x%02x, want 0xFE", got)
	}
}

func TestSetChannel_InvalidIndexLeavesRegister(t *testing.T) {
	b, w := newBank()
	if err := b.SetChannel(2, true); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	before := len(w.writes)

	for _, idx := range []int{-1, 8, 9, 100} {
		err := b.SetChannel(idx, true)
		if !errors.Is(err, models.ErrInvalidChannel) {
			t.Fatalf("idx %d: expected ErrInvalidChannel, got %v", idx, err)
		}
	}
	if len(w.writes) != before {
		t.Fatalf("invalid channel must not write the bus")
	}
	if b.States() != Decode(0xFB) {
		t.Fatalf("state changed: %v", b.States())
	}
}

func TestSetChannel_WireMatchesStateForEverySequence(t *testing.T) {
	b, w := newBank()
	seq := []struct {
		idx int
		on  bool
	}{{0, true}, {3, true}, {7, true}, {0, false}, {3, true}, {5, true}, {7, false}, {5, false}, {3, false}}

	for _, s := range seq {
		if err := b.SetChannel(s.idx, s.on); err != nil {
			t.Fatalf("SetChannel(%d,%v): %v", s.idx, s.on, err)
		}
		reg, _ := w.last()
		if reg != Encode(b.States()) {
			t.Fatalf("wire 0x%02x != encode(state) 0x%02x", reg, Encode(b.States()))
		}
		if Decode(reg) != b.States() {
			t.Fatalf("decode(wire) != state")
		}
	}
	if b.AnyOn() {
		t.Fatalf("expected all channels off at the end")
	}
}

func TestSetChannel_WriteFailureKeepsDesiredState(t *testing.T) {
	b, w := newBank()
	w.setFail(true)

	if err := b.SetChannel(1, true); err == nil {
		t.Fatalf("expected error")
	}
	if b.Reachable() {
		t.Fatalf("bank should be unreachable after failed write")
	}
	if !b.States()[1] {
		t.Fatalf("requested state must be kept after failure")
	}

	w.setFail(false)
	if err := b.Reassert(); err != nil {
		t.Fatalf("reassert: %v", err)
	}
	if reg, _ := w.last(); reg != 0xFD {
		t.Fatalf("reassert wrote 0x%02x, want 0xFD", reg)
	}
	if !b.Reachable() {
		t.Fatalf("reachable should be restored")
	}
}

func TestSetChannel_BusClosed(t *testing.T) {
	b, w := newBank()
	w.open = false
	if err := b.SetChannel(0, true); !errors.Is(err, models.ErrHardwareUnavailable) {
		t.Fatalf("expected ErrHardwareUnavailable, got %v", err)
	}
	if b.States()[0] {
		t.Fatalf("state must not change while hardware is unavailable")
	}
}

func TestAllOff_ToleratesFailure(t *testing.T) {
	b, w := newBank()
	_ = b.SetChannel(4, true)
	w.setFail(true)

	b.AllOff()
	if b.AnyOn() {
		t.Fatalf("AllOff must clear desired state even when the write fails")
	}

	w.setFail(false)
	b.AllOff()
	if reg, _ := w.last(); reg != AllOff {
		t.Fatalf("wrote 0x%02x, want 0xFF", reg)
	}
}

func TestRun_ReassertsAndRecovers(t *testing.T) {
	b, w := newBank()
	_ = b.SetChannel(6, true)
	w.setFail(true)
	_ = b.Reassert()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if b.Reachable() {
		t.Fatalf("should stay unreachable while writes fail")
	}

	w.setFail(false)
	deadline := time.Now().Add(time.Second)
	for !b.Reachable() {
		if time.Now().After(deadline) {
			t.Fatalf("bank never recovered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if reg, _ := w.last(); reg != 0xBF {
		t.Fatalf("re-asserted 0x%02x, want 0xBF", reg)
	}
}
