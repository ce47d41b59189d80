package models

import "time"

// PrepState is the sequencer state of a pour session.
type PrepState string

const (
	PrepIdle      PrepState = "idle"
	PrepTaring    PrepState = "taring"
	PrepPouring   PrepState = "pouring"
	PrepCompleted PrepState = "completed"
	PrepCancelled PrepState = "cancelled"
	PrepFailed    PrepState = "failed"
)

// Terminal reports whether no further transition can follow.
func (s PrepState) Terminal() bool {
	return s == PrepCompleted || s == PrepCancelled || s == PrepFailed
}

// PrepMode distinguishes a recipe pour from a pump cleaning run.
type PrepMode string

const (
	ModeRecipe   PrepMode = "recipe"
	ModeCleaning PrepMode = "cleaning"
)

type StepProgress struct {
	Ingredient string  `json:"ingredient"`
	Channel    int     `json:"channel"`
	Target     float64 `json:"target"`
	Delivered  float64 `json:"delivered"`
	Completed  bool    `json:"completed"`
}

// Preparation is the snapshot published as `preparation_update`.
type Preparation struct {
	SessionID         string         `json:"sessionId"`
	CocktailID        string         `json:"cocktailId,omitempty"`
	Mode              PrepMode       `json:"mode"`
	State             PrepState      `json:"state"`
	CurrentStep       int            `json:"currentStep"`
	TotalSteps        int            `json:"totalSteps"`
	CurrentIngredient string         `json:"currentIngredient,omitempty"`
	Steps             []StepProgress `json:"steps"`
	Progress          float64        `json:"progress"` // percent of completed steps
	IsPouring         bool           `json:"isPouring"`
	TargetWeight      float64        `json:"targetWeight"`
	Degraded          bool           `json:"degraded,omitempty"` // a step started without a scale reading
	StartedAt         time.Time      `json:"startedAt"`
	Error             string         `json:"error,omitempty"`
}

// PreparationResult is the payload of `preparation_complete`.
type PreparationResult struct {
	Success          bool     `json:"success"`
	SessionID        string   `json:"sessionId"`
	CocktailID       string   `json:"cocktailId,omitempty"`
	Mode             PrepMode `json:"mode"`
	TotalVolume      float64  `json:"totalVolume"`
	DeliveredVolume  float64  `json:"deliveredVolume"`
	PreparationTime  int64    `json:"preparationTime"` // ms
	ManualIngredient string   `json:"manualIngredient,omitempty"`
	Degraded         bool     `json:"degraded,omitempty"`
}

// ErrorPayload is the payload of `error`.
type ErrorPayload struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp"` // unix ms
}
