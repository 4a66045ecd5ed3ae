package domain

import "time"

// Total is the running sum of confirmed payments for one product line and
// currency.
type Total struct {
	Kind      Kind      `json:"kind" dynamodbav:"kind"`
	Currency  string    `json:"currency" dynamodbav:"currency"`
	Amount    int64     `json:"amount" dynamodbav:"amount"`
	Count     int64     `json:"count" dynamodbav:"count"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// LeaderboardEntry ranks a payer by cumulative confirmed amount.
type LeaderboardEntry struct {
	Kind      Kind      `json:"kind" dynamodbav:"kind"`
	Currency  string    `json:"currency" dynamodbav:"currency"`
	UserID    string    `json:"userId" dynamodbav:"user_id"`
	Name      string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Amount    int64     `json:"amount" dynamodbav:"amount"`
	Count     int64     `json:"count" dynamodbav:"count"`
	UpdatedAt time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// StatusCounts is the per-status breakdown shown on the admin dashboard.
type StatusCounts struct {
	Pending int `json:"pending"`
	Success int `json:"success"`
	Failure int `json:"failure"`
}

func (c *StatusCounts) Add(s PaymentStatus, n int) {
	switch s {
	case StatusPending:
		c.Pending += n
	case StatusSuccess:
		c.Success += n
	case StatusFailure:
		c.Failure += n
	}
}

func (c StatusCounts) Total() int {
	return c.Pending + c.Success + c.Failure
}
