package domain

import "time"

type State string

const (
	StateSuccess State = "SUCCESS"
	StateFailure State = "FAILURE"
)

// CheckDefinition is a monitored URL plus its check parameters and schedule.
// Frequency is expressed in frequency units (seconds in production).
type CheckDefinition struct {
	ID             int64                 `json:"id"`
	URL            string                `json:"url"`
	Frequency      int                   `json:"frequency"`
	ExpectedStatus int                   `json:"expectedStatus"`
	ExpectedString string                `json:"expectedString,omitempty"`
	EmailAddresses []NotificationAddress `json:"emailAddresses,omitempty"`
}

// Interval converts Frequency into a wall-clock duration.
func (d CheckDefinition) Interval(unit time.Duration) time.Duration {
	return time.Duration(d.Frequency) * unit
}

type CheckResult struct {
	ID          int64     `json:"id"`
	CheckID     int64     `json:"checkId"`
	TimeChecked time.Time `json:"timeChecked"`
	StatusCode  int       `json:"statusCode"`
	State       State     `json:"state"`
}

type NotificationAddress struct {
	ID           int64  `json:"id"`
	CheckID      int64  `json:"checkId"`
	EmailAddress string `json:"emailAddress"`
}

// LatestResult joins a definition with the state of its most recent result.
type LatestResult struct {
	ID             int64     `json:"id"`
	URL            string    `json:"url"`
	Frequency      int       `json:"frequency"`
	ExpectedStatus int       `json:"expectedStatus"`
	ExpectedString string    `json:"expectedString,omitempty"`
	LastState      State     `json:"lastState"`
	LastChecked    time.Time `json:"lastChecked"`
}
