package models

import "time"

// Client is a principal identified by an X.509 CN, eligible to call the
// automation API when Automation is true.
type Client struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	CreatedBy   string
	UpdatedAt   time.Time
	UpdatedBy   string
	Automation  bool
}

// Group is a named collection that is simultaneously a set of clients and
// a set of secret series; access follows their cross-product.
type Group struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	CreatedBy   string
	UpdatedAt   time.Time
	UpdatedBy   string
}
