// Package policy decides, from the consecutive-failure counter and the outcome
// of the latest probe, which notifications a monitor task has to fire.
package policy

const DefaultThreshold = 3

// Action is a set of notifications.
type Action uint8

const None Action = 0

const (
	UserAlert Action = 1 << iota
	AdminEscalation
)

func (a Action) Has(x Action) bool { return a&x == x && x != None }

func (a Action) String() string {
	switch a {
	case None:
		return "none"
	case UserAlert:
		return "user_alert"
	case UserAlert | AdminEscalation:
		return "user_alert+admin_escalation"
	case AdminEscalation:
		return "admin_escalation"
	}
	return "unknown"
}

type Policy struct {
	Threshold int
}

// New returns a policy escalating at threshold; values below 1 fall back to
// DefaultThreshold.
func New(threshold int) Policy {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return Policy{Threshold: threshold}
}

// Next returns the counter after the outcome and the notifications to send.
// A pass resets the streak. Every failure alerts users; the admin escalation
// fires only when the streak first reaches the threshold.
func (p Policy) Next(counter int, pass bool) (int, Action) {
	if pass {
		return 0, None
	}
	threshold := p.Threshold
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	if counter < 0 {
		counter = 0
	}
	counter++
	if counter == threshold {
		return counter, UserAlert | AdminEscalation
	}
	return counter, UserAlert
}
