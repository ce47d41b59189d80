package bus

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"potion_master/internal/logger"
	"potion_master/internal/metrics"

	"github.com/reef-pi/rpi/i2c"
)

// Transport errors. Retry policy lives in the callers, never here.
var (
	ErrBusUnavailable = errors.New("bus unavailable")
	ErrBusIO          = errors.New("bus i/o error")
)

// Device is the raw addressed transport. reef-pi's i2c.Bus satisfies it.
type Device interface {
	ReadBytes(addr byte, num int) ([]byte, error)
	WriteBytes(addr byte, value []byte) error
}

// Opener acquires the underlying device.
type Opener func() (Device, error)

// I2C opens the board's primary I2C bus (/dev/i2c-1).
func I2C() Opener {
	return func() (Device, error) {
		b, err := i2c.New()
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

// Adapter owns the bus handle and serialises every operation on it:
// at most one register access is in flight at any time.
type Adapter struct {
	opener  Opener
	log     *logger.Logger
	metrics metrics.Collector

	mu  sync.Mutex
	dev Device
}

func NewAdapter(opener Opener, log *logger.Logger, m metrics.Collector) *Adapter {
	if m == nil {
		m = metrics.Noop()
	}
	return &Adapter{opener: opener, log: log, metrics: m}
}

// Open acquires the device. Opening an open adapter is a no-op.
func (a *Adapter) Open() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev != nil {
		return nil
	}
	dev, err := a.opener()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBusUnavailable, err)
	}
	a.dev = dev
	return nil
}

// IsOpen reports whether a device handle is held.
func (a *Adapter) IsOpen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dev != nil
}

// ReadBlock selects reg on addr and reads n bytes back.
func (a *Adapter) ReadBlock(addr, reg byte, n int) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev == nil {
		return nil, ErrBusUnavailable
	}
	if err := a.dev.WriteBytes(addr, []byte{reg}); err != nil {
		return nil, a.ioErr("read_select", addr, err)
	}
	data, err := a.dev.ReadBytes(addr, n)
	if err != nil {
		return nil, a.ioErr("read", addr, err)
	}
	if len(data) != n {
		return nil, a.ioErr("read", addr, fmt.Errorf("short read: %d of %d bytes", len(data), n))
	}
	return data, nil
}

// WriteBytes writes data to register reg on addr.
func (a *Adapter) WriteBytes(addr, reg byte, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	return a.Write(addr, buf)
}

// Write sends data to addr without a register prefix.
func (a *Adapter) Write(addr byte, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev == nil {
		return ErrBusUnavailable
	}
	if err := a.dev.WriteBytes(addr, data); err != nil {
		return a.ioErr("write", addr, err)
	}
	return nil
}

// Close releases the device. Safe to call repeatedly and after faults.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev == nil {
		return nil
	}
	dev := a.dev
	a.dev = nil
	if c, ok := dev.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("close bus: %w", err)
		}
	}
	return nil
}

func (a *Adapter) ioErr(op string, addr byte, err error) error {
	a.metrics.IncBusError(op)
	if a.log != nil {
		a.log.Debugw("bus_op_failed", "op", op, "addr", fmt.Sprintf("0x%02x", addr), "err", err)
	}
	return fmt.Errorf("%w: %s 0x%02x: %v", ErrBusIO, op, addr, err)
}
