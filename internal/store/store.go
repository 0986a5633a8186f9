// Package store defines the persistence contracts for secret series,
// secret content, clients, groups, and their membership edges. Concrete
// implementations live in the postgres and memstore subpackages; callers
// depend only on these interfaces so a hermetic backend can stand in for
// tests.
package store

import (
	"context"

	"github.com/sarvex/keywhiz/pkg/models"
)

// SeriesStore persists SecretSeries rows (C3).
type SeriesStore interface {
	// CreateSeries inserts a new series. Returns apperr.Conflict if
	// name already exists.
	CreateSeries(ctx context.Context, name, description, creator, secretType string, generationOptions, metadata map[string]string) (int64, error)
	GetSeriesByID(ctx context.Context, id int64) (*models.SecretSeries, error)
	GetSeriesByName(ctx context.Context, name string) (*models.SecretSeries, error)
	ListAll(ctx context.Context) ([]models.SecretSeries, error)
	// DeleteByName cascades to content rows. Idempotent: absence is success.
	DeleteByName(ctx context.Context, name string) error
}

// ContentStore persists SecretContent rows (C4).
type ContentStore interface {
	// Create inserts a content revision. Returns apperr.Conflict if
	// (seriesID, version) already exists.
	Create(ctx context.Context, seriesID int64, encryptedContent, version, creator string) (int64, error)
	GetContentByID(ctx context.Context, id int64) (*models.SecretContent, error)
	// ListBySeries returns every revision ordered by id ascending.
	ListBySeries(ctx context.Context, seriesID int64) ([]models.SecretContent, error)
	// VersionsOf returns each distinct version string, including "".
	VersionsOf(ctx context.Context, seriesID int64) ([]string, error)
	DeleteBySeries(ctx context.Context, seriesID int64) error
	DeleteBySeriesAndVersion(ctx context.Context, seriesID int64, version string) error
}

// ClientStore persists Client rows.
type ClientStore interface {
	CreateClient(ctx context.Context, name, description, creator string, automation bool) (int64, error)
	GetClientByID(ctx context.Context, id int64) (*models.Client, error)
	GetClientByName(ctx context.Context, name string) (*models.Client, error)
	ListClients(ctx context.Context) ([]models.Client, error)
	DeleteClient(ctx context.Context, id int64) error
}

// GroupStore persists Group rows.
type GroupStore interface {
	CreateGroup(ctx context.Context, name, description, creator string) (int64, error)
	GetGroupByID(ctx context.Context, id int64) (*models.Group, error)
	GetGroupByName(ctx context.Context, name string) (*models.Group, error)
	ListGroups(ctx context.Context) ([]models.Group, error)
	DeleteGroup(ctx context.Context, id int64) error
}

// MembershipStore persists the two bipartite edge relations, ClientInGroup
// and SeriesInGroup (C6). All mutating operations are idempotent
// set-algebra: enrolling twice or evicting an absent edge both succeed.
type MembershipStore interface {
	Enroll(ctx context.Context, clientID, groupID int64) error
	Evict(ctx context.Context, clientID, groupID int64) error
	Allow(ctx context.Context, seriesID, groupID int64) error
	Disallow(ctx context.Context, seriesID, groupID int64) error

	ClientsOf(ctx context.Context, groupID int64) ([]models.Client, error)
	GroupsOfClient(ctx context.Context, clientID int64) ([]models.Group, error)
	SeriesOf(ctx context.Context, groupID int64) ([]models.SecretSeries, error)
	GroupsOfSeries(ctx context.Context, seriesID int64) ([]models.Group, error)

	RemoveClient(ctx context.Context, clientID int64) error
	RemoveGroup(ctx context.Context, groupID int64) error
	RemoveSeries(ctx context.Context, seriesID int64) error
}

// Transactor runs fn as a single atomic unit of work, so a caller doing a
// multi-step SeriesStore/ContentStore sequence (a create, or a series+
// content join read) never observes a torn state from a concurrent
// mutation landing in between the steps. fn must issue its store calls
// using the ctx it is handed, not the ctx passed to WithinTx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store bundles every backend interface a component needs, so a single
// implementation (postgres.Store, memstore.Store) can be passed around
// instead of six separate values.
type Store interface {
	SeriesStore
	ContentStore
	ClientStore
	GroupStore
	MembershipStore
	Transactor
}
