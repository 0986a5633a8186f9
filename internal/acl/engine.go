// Package acl implements the bipartite-graph authorization predicate
// that decides whether a client may access a secret series, and the
// listing queries derived from it.
package acl

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sarvex/keywhiz/internal/apperr"
	"github.com/sarvex/keywhiz/internal/store"
	"github.com/sarvex/keywhiz/pkg/models"
)

// Engine answers "which secrets may client X see?" and "which
// clients/groups see secret Y?" against a MembershipStore.
type Engine struct {
	memberships store.MembershipStore
	series      store.SeriesStore
	content     store.ContentStore
	clients     store.ClientStore
}

// New builds an Engine over the given stores.
func New(memberships store.MembershipStore, series store.SeriesStore, content store.ContentStore, clients store.ClientStore) *Engine {
	return &Engine{memberships: memberships, series: series, content: content, clients: clients}
}

// MayAccess implements mayAccess(client, series) ⇔ ∃g: ClientInGroup(client,g) ∧ SeriesInGroup(series,g).
func (e *Engine) MayAccess(ctx context.Context, clientID, seriesID int64) (bool, error) {
	groups, err := e.memberships.GroupsOfClient(ctx, clientID)
	if err != nil {
		return false, apperr.Wrap(apperr.StoreError, "loading client groups", err)
	}
	for _, g := range groups {
		series, err := e.memberships.SeriesOf(ctx, g.ID)
		if err != nil {
			return false, apperr.Wrap(apperr.StoreError, "loading group series", err)
		}
		for _, s := range series {
			if s.ID == seriesID {
				return true, nil
			}
		}
	}
	return false, nil
}

// SecretsFor returns the union, over the client's groups, of each
// group's series joined with its latest content row. A secret appears
// once even if reachable through multiple groups.
func (e *Engine) SecretsFor(ctx context.Context, clientID int64) ([]models.Secret, error) {
	groups, err := e.memberships.GroupsOfClient(ctx, clientID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "loading client groups", err)
	}

	perGroup := make([][]models.SecretSeries, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			series, err := e.memberships.SeriesOf(gctx, group.ID)
			if err != nil {
				return apperr.Wrap(apperr.StoreError, "loading group series", err)
			}
			perGroup[i] = series
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var seriesList []models.SecretSeries
	for _, list := range perGroup {
		for _, s := range list {
			if !seen[s.ID] {
				seen[s.ID] = true
				seriesList = append(seriesList, s)
			}
		}
	}
	sort.Slice(seriesList, func(i, j int) bool { return seriesList[i].ID < seriesList[j].ID })

	out := make([]models.Secret, 0, len(seriesList))
	for _, series := range seriesList {
		latest, err := e.latestContent(ctx, series.ID)
		if err != nil {
			return nil, err
		}
		if latest == nil {
			continue
		}
		out = append(out, models.Secret{Series: series, Content: *latest})
	}
	return out, nil
}

// latestOf picks the highest content id, breaking ties on created-at,
// per the pinned Open Question decision.
func latestOf(contents []models.SecretContent) *models.SecretContent {
	if len(contents) == 0 {
		return nil
	}
	best := contents[0]
	for _, c := range contents[1:] {
		if c.ID > best.ID || (c.ID == best.ID && c.CreatedAt.After(best.CreatedAt)) {
			best = c
		}
	}
	return &best
}

func (e *Engine) latestContent(ctx context.Context, seriesID int64) (*models.SecretContent, error) {
	contents, err := e.content.ListBySeries(ctx, seriesID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "loading content", err)
	}
	return latestOf(contents), nil
}

// GroupsFor returns the groups linked to a secret's series.
func (e *Engine) GroupsFor(ctx context.Context, seriesID int64) ([]models.Group, error) {
	groups, err := e.memberships.GroupsOfSeries(ctx, seriesID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "loading groups of series", err)
	}
	return groups, nil
}

// ClientsFor returns the distinct clients reachable via any group linked
// to a secret's series.
func (e *Engine) ClientsFor(ctx context.Context, seriesID int64) ([]models.Client, error) {
	groups, err := e.memberships.GroupsOfSeries(ctx, seriesID)
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreError, "loading groups of series", err)
	}

	perGroup := make([][]models.Client, len(groups))
	g, gctx := errgroup.WithContext(ctx)
	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			clients, err := e.memberships.ClientsOf(gctx, group.ID)
			if err != nil {
				return apperr.Wrap(apperr.StoreError, "loading group clients", err)
			}
			perGroup[i] = clients
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[int64]bool)
	var out []models.Client
	for _, list := range perGroup {
		for _, c := range list {
			if !seen[c.ID] {
				seen[c.ID] = true
				out = append(out, c)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetSecretForClient applies the access predicate first and returns
// apperr.NotFound on either denial or absence, per the anti-enumeration
// requirement — access denial and absence are indistinguishable to the
// caller by design.
func (e *Engine) GetSecretForClient(ctx context.Context, clientID int64, name string) (*models.Secret, error) {
	series, err := e.series.GetSeriesByName(ctx, name)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return nil, apperr.New(apperr.NotFound, "secret not found")
		}
		return nil, err
	}

	allowed, err := e.MayAccess(ctx, clientID, series.ID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperr.New(apperr.NotFound, "secret not found")
	}

	content, err := e.latestContent(ctx, series.ID)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, apperr.New(apperr.NotFound, "secret not found")
	}
	return &models.Secret{Series: *series, Content: *content}, nil
}
