package models

// Operator is a maintenance user allowed to drive relays by hand and start
// cleaning cycles.
type Operator struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}
