package acl_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarvex/keywhiz/internal/acl"
	"github.com/sarvex/keywhiz/internal/apperr"
	"github.com/sarvex/keywhiz/internal/store/memstore"
)

func TestCreateAndRead(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	clientID, err := s.CreateClient(ctx, "shuttle", "", "admin", true)
	require.NoError(t, err)
	groupID, err := s.CreateGroup(ctx, "Ops", "", "admin")
	require.NoError(t, err)
	seriesID, err := s.CreateSeries(ctx, "DB_Pass", "", "admin", "", nil, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, seriesID, "envelope", "", "admin")
	require.NoError(t, err)

	require.NoError(t, s.Enroll(ctx, clientID, groupID))
	require.NoError(t, s.Allow(ctx, seriesID, groupID))

	engine := acl.New(s, s, s, s)
	secret, err := engine.GetSecretForClient(ctx, clientID, "DB_Pass")
	require.NoError(t, err)
	assert.Equal(t, "DB_Pass", secret.Series.Name)
	assert.Equal(t, "envelope", secret.Content.EncryptedContent)
}

func TestAccessDenialIndistinguishableFromAbsence(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	clientID, err := s.CreateClient(ctx, "shuttle", "", "admin", true)
	require.NoError(t, err)
	_, err = s.CreateGroup(ctx, "Ops", "", "admin")
	require.NoError(t, err)
	seriesID, err := s.CreateSeries(ctx, "DB_Pass", "", "admin", "", nil, nil)
	require.NoError(t, err)
	_, err = s.Create(ctx, seriesID, "envelope", "", "admin")
	require.NoError(t, err)
	// no enroll, no allow

	engine := acl.New(s, s, s, s)

	_, err1 := engine.GetSecretForClient(ctx, clientID, "DB_Pass")
	_, err2 := engine.GetSecretForClient(ctx, clientID, "Nonexistent")

	require.True(t, apperr.Is(err1, apperr.NotFound))
	require.True(t, apperr.Is(err2, apperr.NotFound))
}

func TestMayAccessRequiresLengthTwoPath(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clientID, _ := s.CreateClient(ctx, "shuttle", "", "admin", true)
	groupA, _ := s.CreateGroup(ctx, "A", "", "admin")
	groupB, _ := s.CreateGroup(ctx, "B", "", "admin")
	seriesID, _ := s.CreateSeries(ctx, "S", "", "admin", "", nil, nil)

	require.NoError(t, s.Enroll(ctx, clientID, groupA))
	require.NoError(t, s.Allow(ctx, seriesID, groupB)) // different group: no shared g

	engine := acl.New(s, s, s, s)
	ok, err := engine.MayAccess(ctx, clientID, seriesID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Allow(ctx, seriesID, groupA))
	ok, err = engine.MayAccess(ctx, clientID, seriesID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSecretsForDedupesAcrossGroups(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clientID, _ := s.CreateClient(ctx, "shuttle", "", "admin", true)
	groupA, _ := s.CreateGroup(ctx, "A", "", "admin")
	groupB, _ := s.CreateGroup(ctx, "B", "", "admin")
	seriesID, _ := s.CreateSeries(ctx, "S", "", "admin", "", nil, nil)
	_, err := s.Create(ctx, seriesID, "envelope", "", "admin")
	require.NoError(t, err)

	require.NoError(t, s.Enroll(ctx, clientID, groupA))
	require.NoError(t, s.Enroll(ctx, clientID, groupB))
	require.NoError(t, s.Allow(ctx, seriesID, groupA))
	require.NoError(t, s.Allow(ctx, seriesID, groupB))

	engine := acl.New(s, s, s, s)
	secrets, err := engine.SecretsFor(ctx, clientID)
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, "S", secrets[0].Series.Name)
}
