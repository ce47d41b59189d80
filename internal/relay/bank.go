package relay

import (
	"context"
	"fmt"
	"sync"
	"time"

	"potion_master/internal/logger"
	"potion_master/internal/models"
)

// AllOff is the wire register with every channel released (active-low).
const AllOff byte = 0xFF

// Writer is the slice of the bus adapter the bank needs.
type Writer interface {
	Write(addr byte, data []byte) error
	IsOpen() bool
}

// Encode packs channel states into the active-low register: bit i is 0 when
// channel i is on.
func Encode(states [models.RelayChannels]bool) byte {
	reg := AllOff
	for i, on := range states {
		if on {
			reg &^= 1 << i
		}
	}
	return reg
}

// Decode is the inverse of Encode.
func Decode(reg byte) [models.RelayChannels]bool {
	var states [models.RelayChannels]bool
	for i := range states {
		states[i] = reg&(1<<i) == 0
	}
	return states
}

// Bank owns the desired state of the eight pump relays. The register sent to
// the board is always recomputed from that state, never patched.
type Bank struct {
	bus  Writer
	addr byte
	log  *logger.Logger

	mu        sync.Mutex
	states    [models.RelayChannels]bool
	reachable bool
}

func NewBank(bus Writer, addr byte, log *logger.Logger) *Bank {
	return &Bank{bus: bus, addr: addr, log: log}
}

// SetChannel switches one channel and writes the full register.
// On a write failure the requested state is kept so the next re-assertion
// retries it, and the bank is marked unreachable.
func (b *Bank) SetChannel(idx int, on bool) error {
	if idx < 0 || idx >= models.RelayChannels {
		return fmt.Errorf("%w: %d", models.ErrInvalidChannel, idx)
	}
	if !b.bus.IsOpen() {
		return models.ErrHardwareUnavailable
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.states[idx] = on
	if err := b.writeLocked(); err != nil {
		b.log.Errorw("relay_write_failed", "channel", idx, "on", on, "err", err)
		return fmt.Errorf("relay %d: %w", idx, err)
	}
	b.log.Debugw("relay_set", "channel", idx, "on", on)
	return nil
}

// AllOff releases every channel. Best effort: failures are logged only.
func (b *Bank) AllOff() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.states = [models.RelayChannels]bool{}
	if err := b.writeLocked(); err != nil {
		b.log.Warnw("relay_all_off_failed", "err", err)
		return
	}
	b.log.Debugw("relay_all_off")
}

// Reassert rewrites the current desired state unconditionally.
func (b *Bank) Reassert() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeLocked()
}

// Run re-asserts the register every interval until ctx is done.
// Failures only flip the reachable flag.
func (b *Bank) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			wasReachable := b.Reachable()
			err := b.Reassert()
			switch {
			case err != nil && wasReachable:
				b.log.Warnw("relay_board_unreachable", "err", err)
			case err == nil && !wasReachable:
				b.log.Infow("relay_board_reachable")
			}
		}
	}
}

// States returns a copy of the desired channel states.
func (b *Bank) States() [models.RelayChannels]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states
}

// AnyOn reports whether a pump is currently requested on.
func (b *Bank) AnyOn() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, on := range b.states {
		if on {
			return true
		}
	}
	return false
}

// Reachable reports whether the last register write succeeded.
func (b *Bank) Reachable() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reachable
}

func (b *Bank) writeLocked() error {
	err := b.bus.Write(b.addr, []byte{Encode(b.states)})
	b.reachable = err == nil
	return err
}
