package domain

import "time"

// Operator is the owner of one or more campaigns. Each operator sells under
// its own marketplace account, so every cycle for its campaigns must run
// with its credentials, not the service's.
type Operator struct {
	ID       string
	Name     string
	APIToken string

	UpdatedAt time.Time
}
