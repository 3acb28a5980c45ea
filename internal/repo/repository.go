package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/urlmonitor/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateURL = errors.New("url already monitored")
)

// Ports (interfaces); every backend implements all of them.
type DefinitionStore interface {
	// ListDefinitions returns all definitions whose URL contains urlContains
	// (all of them when empty), ordered by id.
	ListDefinitions(ctx context.Context, urlContains string) ([]domain.CheckDefinition, error)
	GetDefinition(ctx context.Context, id int64) (*domain.CheckDefinition, error)
	// CreateDefinition assigns d.ID.
	CreateDefinition(ctx context.Context, d *domain.CheckDefinition) error
	// UpdateDefinition replaces every field of the definition with id d.ID.
	UpdateDefinition(ctx context.Context, d *domain.CheckDefinition) error
	// DeleteDefinition also removes the definition's results and addresses.
	DeleteDefinition(ctx context.Context, id int64) error
}

type ResultStore interface {
	// SaveResult appends an immutable result and assigns r.ID.
	SaveResult(ctx context.Context, r *domain.CheckResult) error
	// ListResults returns results for checkID, or all results when checkID is 0.
	ListResults(ctx context.Context, checkID int64) ([]domain.CheckResult, error)
	LatestResults(ctx context.Context, urlContains string) ([]domain.LatestResult, error)
}

type AddressStore interface {
	// ListAddresses returns addresses for checkID, or all when checkID is 0.
	ListAddresses(ctx context.Context, checkID int64) ([]domain.NotificationAddress, error)
	GetAddress(ctx context.Context, id int64) (*domain.NotificationAddress, error)
	// CreateAddress returns ErrNotFound when a.CheckID does not exist.
	CreateAddress(ctx context.Context, a *domain.NotificationAddress) error
	UpdateAddress(ctx context.Context, a *domain.NotificationAddress) error
	DeleteAddress(ctx context.Context, id int64) error
	// Recipients lists the e-mail addresses registered for checkID.
	Recipients(ctx context.Context, checkID int64) ([]string, error)
}

type Store interface {
	DefinitionStore
	ResultStore
	AddressStore
	Close() error
}
