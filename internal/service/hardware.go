package service

import (
	"context"
	"fmt"
	"time"

	"potion_master/internal/logger"
	"potion_master/internal/models"
)

type busLink interface {
	Open() error
	IsOpen() bool
	Close() error
}

type relayBank interface {
	SetChannel(idx int, on bool) error
	AllOff()
	States() [models.RelayChannels]bool
	AnyOn() bool
	Reachable() bool
}

type weightSensor interface {
	Tare(ctx context.Context) error
	Poll() (float64, bool)
	Weight() (float64, bool)
	Connected() bool
}

type preparationState interface {
	Busy() bool
}

// HardwareService reports on and operates the relay board and the scale
// outside of a pour session.
type HardwareService struct {
	bus    busLink
	relays relayBank
	scale  weightSensor
	prep   preparationState
	log    *logger.Logger
}

func NewHardwareService(bus busLink, relays relayBank, scale weightSensor, prep preparationState, log *logger.Logger) *HardwareService {
	return &HardwareService{bus: bus, relays: relays, scale: scale, prep: prep, log: log}
}

// Open acquires the bus, forces every relay off and takes a first weight
// reading. A failure leaves the service running without hardware.
func (h *HardwareService) Open() error {
	if err := h.bus.Open(); err != nil {
		h.log.Warnw("hardware_unavailable", "err", err)
		return err
	}
	h.relays.AllOff()
	w, ok := h.scale.Poll()
	h.log.Infow("hardware_opened",
		"relay_reachable", h.relays.Reachable(),
		"scale_connected", ok,
		"weight", w,
	)
	return nil
}

// Status builds the snapshot published as hardware_status.
func (h *HardwareService) Status() models.HardwareStatus {
	st := models.HardwareStatus{
		Connected:      h.bus.IsOpen(),
		ScaleConnected: h.scale.Connected(),
		RelayStates:    h.relays.States(),
		IsPouring:      h.relays.AnyOn(),
		IsPreparing:    h.prep.Busy(),
		Timestamp:      time.Now(),
	}
	st.RelayConnected = st.Connected && h.relays.Reachable()
	if w, ok := h.scale.Weight(); ok {
		st.Weight = &w
	}
	return st
}

// Tare zeroes the scale. Not allowed while a preparation runs.
func (h *HardwareService) Tare(ctx context.Context) error {
	if h.prep.Busy() {
		return models.ErrAlreadyPreparing
	}
	return h.scale.Tare(ctx)
}

// SetRelay switches one channel by hand. Not allowed while a preparation runs.
func (h *HardwareService) SetRelay(ctx context.Context, idx int, on bool) error {
	if idx < 0 || idx >= models.RelayChannels {
		return fmt.Errorf("%w: %d", models.ErrInvalidChannel, idx)
	}
	if h.prep.Busy() {
		return models.ErrAlreadyPreparing
	}
	if err := h.relays.SetChannel(idx, on); err != nil {
		return err
	}
	h.log.Infow("relay_manual_set", "channel", idx, "on", on)
	return nil
}

// Close forces every relay off and releases the bus.
func (h *HardwareService) Close() error {
	h.relays.AllOff()
	if err := h.bus.Close(); err != nil {
		return fmt.Errorf("close bus: %w", err)
	}
	return nil
}
