package bus

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"sync"
	"time"
)

// Simulation defaults.
const (
	DefaultFlowRate = 25.0 // ml/s delivered by one open pump
	relayAllOff     = 0xFF
)

// SimConfig describes the simulated bench wiring.
type SimConfig struct {
	RelayAddr  byte
	ScaleAddr  byte
	WeightReg  byte
	TareReg    byte
	FlowRate   float64          // ml/s per open channel
	Clock      func() time.Time // defaults to time.Now
	StartGross float64          // weight already on the platform
}

// Simulator is an in-memory relay board plus load cell. Weight rises at
// FlowRate for every open channel over elapsed time and resets on tare.
type Simulator struct {
	cfg SimConfig

	mu         sync.Mutex
	relay      byte
	gross      float64
	tareOffset float64
	selected   byte
	updatedAt  time.Time
	relayLog   []byte
	writeHook  func(addr byte, data []byte) error
	readHook   func(addr byte) error
}

func NewSimulator(cfg SimConfig) *Simulator {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.FlowRate <= 0 {
		cfg.FlowRate = DefaultFlowRate
	}
	return &Simulator{
		cfg:       cfg,
		relay:     relayAllOff,
		gross:     cfg.StartGross,
		updatedAt: cfg.Clock(),
	}
}

// Opener hands the simulator to a bus Adapter.
func (s *Simulator) Opener() Opener {
	return func() (Device, error) { return s, nil }
}

// SetWriteHook installs a fault injector consulted before every write.
func (s *Simulator) SetWriteHook(fn func(addr byte, data []byte) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeHook = fn
}

// SetReadHook installs a fault injector consulted before every read.
func (s *Simulator) SetReadHook(fn func(addr byte) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readHook = fn
}

// AddWeight puts ml on the platform, e.g. a glass or noise.
func (s *Simulator) AddWeight(ml float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	s.gross += ml
}

// Net returns the tared weight.
func (s *Simulator) Net() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance()
	return s.gross - s.tareOffset
}

// Relay returns the last register written to the relay board.
func (s *Simulator) Relay() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relay
}

// RelayLog returns every register value written to the relay board, in order.
func (s *Simulator) RelayLog() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]byte, len(s.relayLog))
	copy(out, s.relayLog)
	return out
}

func (s *Simulator) WriteBytes(addr byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writeHook != nil {
		if err := s.writeHook(addr, value); err != nil {
			return err
		}
	}
	if len(value) == 0 {
		return fmt.Errorf("empty write to 0x%02x", addr)
	}
	s.advance()

	switch addr {
	case s.cfg.RelayAddr:
		s.relay = value[0]
		s.relayLog = append(s.relayLog, value[0])
	case s.cfg.ScaleAddr:
		s.selected = value[0]
		if len(value) > 1 && value[0] == s.cfg.TareReg {
			s.tareOffset = s.gross
		}
	default:
		return fmt.Errorf("no device at 0x%02x", addr)
	}
	return nil
}

func (s *Simulator) ReadBytes(addr byte, num int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readHook != nil {
		if err := s.readHook(addr); err != nil {
			return nil, err
		}
	}
	s.advance()

	out := make([]byte, num)
	switch addr {
	case s.cfg.RelayAddr:
		if num > 0 {
			out[0] = s.relay
		}
	case s.cfg.ScaleAddr:
		if s.selected == s.cfg.WeightReg && num >= 4 {
			net := float32(s.gross - s.tareOffset)
			binary.LittleEndian.PutUint32(out, math.Float32bits(net))
		}
	default:
		return nil, fmt.Errorf("no device at 0x%02x", addr)
	}
	return out, nil
}

// advance integrates pump flow since the last update. Caller holds mu.
func (s *Simulator) advance() {
	now := s.cfg.Clock()
	elapsed := now.Sub(s.updatedAt).Seconds()
	s.updatedAt = now
	if elapsed <= 0 {
		return
	}
	open := bits.OnesCount8(^s.relay) // active-low
	s.gross += s.cfg.FlowRate * float64(open) * elapsed
}
