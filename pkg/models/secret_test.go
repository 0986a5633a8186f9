package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sarvex/keywhiz/pkg/models"
)

func TestDisplayNameRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		version string
	}{
		{"API_KEY", "a1b2c3d4"},
		{"nested.name.with.dots", "0000000000000001"},
		{"no-version", ""},
	}

	for _, c := range cases {
		display := models.DisplayName(c.name, c.version)
		name, version, ok := models.ParseDisplayName(display)
		assert.True(t, ok, "ParseDisplayName(%q) should succeed", display)
		assert.Equal(t, c.name, name)
		assert.Equal(t, c.version, version)
	}
}

func TestParseDisplayNameRejectsPlainNames(t *testing.T) {
	_, _, ok := models.ParseDisplayName("API_KEY")
	assert.False(t, ok, "a name with no \"..\" delimiter should not parse as a composite")
}
