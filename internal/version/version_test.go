package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDev(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	tests := []struct {
		version  string
		expected bool
	}{
		{"dev", true},
		{"1.0.0", false},
		{"v1.2.3", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			Version = tt.version
			assert.Equal(t, tt.expected, IsDev())
		})
	}
}

func TestFull(t *testing.T) {
	original, commit := Version, Commit
	defer func() { Version, Commit = original, commit }()

	Version = "dev"
	assert.Equal(t, "gig version dev (built from source)", Full())

	Version, Commit = "1.4.0", "abc123"
	assert.True(t, strings.HasPrefix(Full(), "gig version 1.4.0 (abc123"))
}

func TestUserAgent(t *testing.T) {
	original := Version
	defer func() { Version = original }()

	Version = "2.0.1"
	assert.True(t, strings.HasPrefix(UserAgent(), "gig/2.0.1 ("))
}
