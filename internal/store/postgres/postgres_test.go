package postgres

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixColumns(t *testing.T) {
	got := prefixColumns("s", seriesColumns)
	want := "s.id, s.name, s.description, s.createdat, s.createdby, s.updatedat, s.updatedby, s.type, s.options, s.metadata"
	assert.Equal(t, want, got)
}

func TestSplitColumns(t *testing.T) {
	got := splitColumns("id, name,  description")
	require.Len(t, got, 3)
	assert.Equal(t, []string{"id", "name", "description"}, got)
}

type fakePgError struct{ state string }

func (e *fakePgError) Error() string    { return "pg error" }
func (e *fakePgError) SQLState() string { return e.state }

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&fakePgError{state: uniqueViolation}))
	assert.False(t, isUniqueViolation(&fakePgError{state: "42601"}))
	assert.False(t, isUniqueViolation(errors.New("plain error")))
}
