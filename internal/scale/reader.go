package scale

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"potion_master/internal/logger"
	"potion_master/internal/metrics"
	"potion_master/internal/models"
)

// Bus is the slice of the bus adapter the reader needs.
type Bus interface {
	ReadBlock(addr, reg byte, n int) ([]byte, error)
	WriteBytes(addr, reg byte, data []byte) error
	IsOpen() bool
}

// Config holds the load-cell wiring.
type Config struct {
	Addr           byte
	WeightRegister byte
	TareRegister   byte
	TareCommand    byte
	TareSettle     time.Duration
}

// Reader caches the last weight. A failed read clears the weight together
// with the connected flag so a stale value is never reported as live.
type Reader struct {
	bus     Bus
	cfg     Config
	log     *logger.Logger
	metrics metrics.Collector

	mu        sync.RWMutex
	weight    float64
	connected bool
}

func NewReader(bus Bus, cfg Config, log *logger.Logger, m metrics.Collector) *Reader {
	if m == nil {
		m = metrics.Noop()
	}
	return &Reader{bus: bus, cfg: cfg, log: log, metrics: m}
}

// Poll reads the weight register once and updates the cache.
// It returns the fresh reading; ok is false when the scale did not answer.
func (r *Reader) Poll() (float64, bool) {
	w, err := r.read()

	r.mu.Lock()
	wasConnected := r.connected
	if err != nil {
		r.weight = 0
		r.connected = false
	} else {
		r.weight = w
		r.connected = true
	}
	r.mu.Unlock()

	r.metrics.SetWeight(w, err == nil)
	switch {
	case err != nil && wasConnected:
		r.log.Warnw("scale_disconnected", "err", err)
	case err == nil && !wasConnected:
		r.log.Infow("scale_connected", "weight", w)
	}
	return w, err == nil
}

// Run polls every interval until ctx is done. Nothing escapes the loop.
func (r *Reader) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Poll()
		}
	}
}

// Tare zeroes the scale, waits for it to settle and refreshes the cache.
func (r *Reader) Tare(ctx context.Context) error {
	if !r.bus.IsOpen() {
		return models.ErrHardwareUnavailable
	}
	if err := r.bus.WriteBytes(r.cfg.Addr, r.cfg.TareRegister, []byte{r.cfg.TareCommand}); err != nil {
		r.log.Errorw("scale_tare_failed", "err", err)
		return fmt.Errorf("%w: %v", models.ErrTareFailed, err)
	}

	timer := time.NewTimer(r.cfg.TareSettle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	r.Poll()
	r.log.Infow("scale_tared")
	return nil
}

// Weight returns the cached reading; ok is false while disconnected.
func (r *Reader) Weight() (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.weight, r.connected
}

// Connected reports whether the last poll succeeded.
func (r *Reader) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected
}

func (r *Reader) read() (float64, error) {
	data, err := r.bus.ReadBlock(r.cfg.Addr, r.cfg.WeightRegister, 4)
	if err != nil {
		return 0, err
	}
	return decodeWeight(data)
}

// decodeWeight interprets four bytes as a little-endian IEEE-754 float32.
func decodeWeight(data []byte) (float64, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("weight: need 4 bytes, got %d", len(data))
	}
	f := float64(math.Float32frombits(binary.LittleEndian.Uint32(data)))
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("weight: non-finite reading %v", f)
	}
	return f, nil
}
