package models

import "errors"

// Operation and policy errors shared by the hardware, pour and HTTP layers.
var (
	ErrInvalidChannel      = errors.New("invalid relay channel: must be 0-7")
	ErrHardwareUnavailable = errors.New("hardware not connected")
	ErrTareFailed          = errors.New("failed to tare scale")
	ErrAlreadyPreparing    = errors.New("another preparation is already in progress")
	ErrUnmappedIngredient  = errors.New("no relay mapping found for ingredient")
	ErrEmptyRecipe         = errors.New("recipe has no ingredients")
	ErrInvalidAmount       = errors.New("ingredient amount must be a positive number")
	ErrCancelled           = errors.New("preparation cancelled")
	ErrPourTimeout         = errors.New("ingredient did not reach target weight in time")
)
