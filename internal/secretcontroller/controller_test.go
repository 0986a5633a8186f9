package secretcontroller_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarvex/keywhiz/internal/apperr"
	"github.com/sarvex/keywhiz/internal/crypto"
	"github.com/sarvex/keywhiz/internal/secretcontroller"
	"github.com/sarvex/keywhiz/internal/store/memstore"
)

func newController(t *testing.T) (*secretcontroller.Controller, *memstore.Store) {
	t.Helper()
	rootKey, err := crypto.GenerateRootKey()
	require.NoError(t, err)
	ring, err := crypto.NewKeyRing("k1", rootKey)
	require.NoError(t, err)
	s := memstore.New()
	return secretcontroller.New(s, s, s, crypto.New(ring)), s
}

func TestCreateAndDecrypt(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newController(t)

	secret, err := ctrl.Build("DB_Pass", []byte("hunter2"), "admin").Create(ctx)
	require.NoError(t, err)

	plaintext, err := ctrl.Decrypt(secret)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(plaintext))
}

func TestCreateDuplicateVersionConflicts(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newController(t)

	_, err := ctrl.Build("X", []byte("p"), "a").WithVersion("").Create(ctx)
	require.NoError(t, err)

	_, err = ctrl.Build("X", []byte("p"), "a").WithVersion("").Create(ctx)
	assert.True(t, apperr.Is(err, apperr.Conflict))
}

func TestVersionedCoexistence(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newController(t)

	_, err := ctrl.Build("API_KEY", []byte("v1data"), "a").WithAutoVersion().Create(ctx)
	require.NoError(t, err)
	second, err := ctrl.Build("API_KEY", []byte("v2data"), "a").WithAutoVersion().Create(ctx)
	require.NoError(t, err)

	series, err := ctrl.GetsByID(ctx, second.Series.ID)
	require.NoError(t, err)
	require.Len(t, series, 2)

	// latest by id is the second content row inserted.
	latest := series[len(series)-1]
	plaintext, err := ctrl.Decrypt(&latest)
	require.NoError(t, err)
	assert.Equal(t, "v2data", string(plaintext))

	require.NoError(t, ctrl.DeleteVersion(ctx, "API_KEY", series[0].Content.Version))
	remaining, err := ctrl.GetsByID(ctx, second.Series.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestEmptyVersionIsUnversionedNotLatest(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newController(t)

	_, err := ctrl.Build("X", []byte("unversioned"), "a").WithVersion("").Create(ctx)
	require.NoError(t, err)
	_, err = ctrl.Build("X", []byte("versioned"), "a").WithVersion("v1").Create(ctx)
	require.NoError(t, err)

	secret, err := ctrl.GetByNameAndVersion(ctx, "X", "")
	require.NoError(t, err)
	plaintext, err := ctrl.Decrypt(secret)
	require.NoError(t, err)
	assert.Equal(t, "unversioned", string(plaintext))
}

func TestInvalidInputRejectsDotDotName(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newController(t)

	_, err := ctrl.Build("a..b", []byte("p"), "admin").Create(ctx)
	assert.True(t, apperr.Is(err, apperr.InvalidInput))
}

func TestRenameIsNotSupported(t *testing.T) {
	ctx := context.Background()
	ctrl, _ := newController(t)

	_, err := ctrl.Build("Old_Name", []byte("secret"), "admin").Create(ctx)
	require.NoError(t, err)

	// No rename method exists; the only path to a new name is delete + recreate.
	require.NoError(t, ctrl.DeleteSeries(ctx, "Old_Name"))
	newSecret, err := ctrl.Build("New_Name", []byte("secret"), "admin").Create(ctx)
	require.NoError(t, err)

	// re-derived content key from the new name still decrypts.
	plaintext, err := ctrl.Decrypt(newSecret)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plaintext))
}

func TestConflictOnDuplicateLeavesTableSizeUnchanged(t *testing.T) {
	ctx := context.Background()
	ctrl, s := newController(t)

	_, err := ctrl.Build("X", []byte("p"), "a").WithVersion("").Create(ctx)
	require.NoError(t, err)
	before, err := s.ListAll(ctx)
	require.NoError(t, err)

	_, err = ctrl.Build("X", []byte("p"), "a").WithVersion("").Create(ctx)
	assert.True(t, apperr.Is(err, apperr.Conflict))

	after, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
