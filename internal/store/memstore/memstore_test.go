package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarvex/keywhiz/internal/apperr"
	"github.com/sarvex/keywhiz/internal/store/memstore"
)

func TestCreateSeriesDuplicateNameConflicts(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	id, err := s.CreateSeries(ctx, "DB_Pass", "", "admin", "", nil, nil)
	require.NoError(t, err)
	assert.NotZero(t, id)

	_, err = s.CreateSeries(ctx, "DB_Pass", "", "admin", "", nil, nil)
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestCreateContentDuplicateVersionConflicts(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seriesID, err := s.CreateSeries(ctx, "API_KEY", "", "admin", "", nil, nil)
	require.NoError(t, err)

	_, err = s.Create(ctx, seriesID, "envelope-1", "v1", "admin")
	require.NoError(t, err)

	_, err = s.Create(ctx, seriesID, "envelope-2", "v1", "admin")
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestDeleteSeriesCascadesContent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	seriesID, err := s.CreateSeries(ctx, "X", "", "admin", "", nil, nil)
	require.NoError(t, err)
	contentID, err := s.Create(ctx, seriesID, "envelope", "", "admin")
	require.NoError(t, err)

	require.NoError(t, s.DeleteByName(ctx, "X"))

	_, err = s.GetSeriesByName(ctx, "X")
	assert.True(t, apperr.Is(err, apperr.NotFound))
	_, err = s.GetContentByID(ctx, contentID)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestMembershipEnrollAndAllowAreIdempotent(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clientID, err := s.CreateClient(ctx, "shuttle", "", "admin", true)
	require.NoError(t, err)
	groupID, err := s.CreateGroup(ctx, "Ops", "", "admin")
	require.NoError(t, err)
	seriesID, err := s.CreateSeries(ctx, "DB_Pass", "", "admin", "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Enroll(ctx, clientID, groupID))
	require.NoError(t, s.Enroll(ctx, clientID, groupID))
	require.NoError(t, s.Allow(ctx, seriesID, groupID))

	groups, err := s.GroupsOfClient(ctx, clientID)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, groupID, groups[0].ID)

	series, err := s.SeriesOf(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, seriesID, series[0].ID)
}

func TestDeleteGroupCascadesMemberships(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clientID, _ := s.CreateClient(ctx, "shuttle", "", "admin", true)
	groupID, _ := s.CreateGroup(ctx, "Ops", "", "admin")
	require.NoError(t, s.Enroll(ctx, clientID, groupID))

	require.NoError(t, s.DeleteGroup(ctx, groupID))

	groups, err := s.GroupsOfClient(ctx, clientID)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

// TestRemoveGroupWithoutDeletingRow exercises RemoveGroup directly, the
// edge-cascade primitive DeleteGroup also calls: the group row survives,
// only its client and series edges are cleared.
func TestRemoveGroupWithoutDeletingRow(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clientID, _ := s.CreateClient(ctx, "shuttle", "", "admin", true)
	groupID, _ := s.CreateGroup(ctx, "Ops", "", "admin")
	seriesID, _ := s.CreateSeries(ctx, "DB_Pass", "", "admin", "", nil, nil)
	require.NoError(t, s.Enroll(ctx, clientID, groupID))
	require.NoError(t, s.Allow(ctx, seriesID, groupID))

	require.NoError(t, s.RemoveGroup(ctx, groupID))

	_, err := s.GetGroupByID(ctx, groupID)
	require.NoError(t, err, "RemoveGroup must not delete the group row itself")

	groups, err := s.GroupsOfClient(ctx, clientID)
	require.NoError(t, err)
	assert.Empty(t, groups)

	series, err := s.SeriesOf(ctx, groupID)
	require.NoError(t, err)
	assert.Empty(t, series)
}

func TestRemoveClientCascadesMemberships(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clientID, _ := s.CreateClient(ctx, "shuttle", "", "admin", true)
	groupID, _ := s.CreateGroup(ctx, "Ops", "", "admin")
	require.NoError(t, s.Enroll(ctx, clientID, groupID))

	require.NoError(t, s.RemoveClient(ctx, clientID))

	groups, err := s.GroupsOfClient(ctx, clientID)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

// TestWithinTxSeesItsOwnWrites exercises the lookup-or-create-then-insert
// sequence Controller.Create runs inside WithinTx: a series created earlier
// in the same unit of work must be visible to a later read in that same
// call, and the whole thing must not deadlock against the store's mutex.
func TestWithinTxSeesItsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	var seriesID int64
	err := s.WithinTx(ctx, func(ctx context.Context) error {
		id, err := s.CreateSeries(ctx, "DB_Pass", "", "admin", "", nil, nil)
		if err != nil {
			return err
		}
		seriesID = id
		fetched, err := s.GetSeriesByID(ctx, id)
		if err != nil {
			return err
		}
		assert.Equal(t, "DB_Pass", fetched.Name)
		return nil
	})
	require.NoError(t, err)

	byName, err := s.GetSeriesByName(ctx, "DB_Pass")
	require.NoError(t, err)
	assert.Equal(t, seriesID, byName.ID)
}

func TestRemoveSeriesCascadesGrants(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	groupID, _ := s.CreateGroup(ctx, "Ops", "", "admin")
	seriesID, _ := s.CreateSeries(ctx, "DB_Pass", "", "admin", "", nil, nil)
	require.NoError(t, s.Allow(ctx, seriesID, groupID))

	require.NoError(t, s.RemoveSeries(ctx, seriesID))

	series, err := s.SeriesOf(ctx, groupID)
	require.NoError(t, err)
	assert.Empty(t, series)
}
