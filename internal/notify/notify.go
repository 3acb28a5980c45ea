package notify

import (
	"context"

	"go.uber.org/multierr"

	"github.com/hamed0406/urlmonitor/internal/domain"
)

// Notifier delivers the two alert kinds a monitor task can raise.
type Notifier interface {
	// AlertUsers tells every recipient that def failed its latest probe.
	AlertUsers(ctx context.Context, def domain.CheckDefinition, recipients []string) error
	// AlertAdmin escalates a failure streak that reached the threshold.
	AlertAdmin(ctx context.Context, def domain.CheckDefinition) error
}

// Multi fans every alert out to all non-nil notifiers and combines their errors.
type Multi []Notifier

func (m Multi) AlertUsers(ctx context.Context, def domain.CheckDefinition, recipients []string) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.AlertUsers(ctx, def, recipients))
	}
	return err
}

func (m Multi) AlertAdmin(ctx context.Context, def domain.CheckDefinition) error {
	var err error
	for _, n := range m {
		if n == nil {
			continue
		}
		err = multierr.Append(err, n.AlertAdmin(ctx, def))
	}
	return err
}
