package models

import "time"

// RelayChannels is the number of outputs on the relay board.
const RelayChannels = 8

// HardwareStatus is a point-in-time view derived from the bus, relay bank,
// scale reader and sequencer. Weight is nil while the scale is disconnected.
type HardwareStatus struct {
	Connected      bool                `json:"connected"`
	RelayConnected bool                `json:"relayConnected"`
	ScaleConnected bool                `json:"scaleConnected"`
	Weight         *float64            `json:"weight"`
	RelayStates    [RelayChannels]bool `json:"relayStates"`
	IsPouring      bool                `json:"isPouring"`
	IsPreparing    bool                `json:"isPreparing"`
	Timestamp      time.Time           `json:"timestamp"`
}

// WeightUpdate is the payload of the high-frequency weight broadcast.
type WeightUpdate struct {
	Weight    *float64 `json:"weight"`
	Timestamp int64    `json:"timestamp"` // unix ms
}
