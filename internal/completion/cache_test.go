package completion

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreEmptyWhenMissing(t *testing.T) {
	s := NewStore(t.TempDir(), "https://gigs.example.com/api/accounts/")
	cache := s.Load()
	assert.Empty(t, cache.Projects)
	assert.Equal(t, CacheVersion, cache.Version)
}

func TestStoreUpdatesSectionsIndependently(t *testing.T) {
	s := NewStore(t.TempDir(), "https://gigs.example.com/api/accounts/")

	require.NoError(t, s.UpdateProjects([]CachedProject{{ID: 1, Title: "Landing page"}}))
	require.NoError(t, s.UpdateContracts([]CachedContract{{ID: 7, ProjectTitle: "Logo", Status: "Active"}}))

	cache := s.Load()
	assert.Equal(t, []CachedProject{{ID: 1, Title: "Landing page"}}, cache.Projects)
	assert.Len(t, cache.Contracts, 1)
	assert.False(t, cache.ProjectsUpdatedAt.IsZero())
	assert.False(t, cache.ContractsUpdatedAt.IsZero())

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestStoreIgnoresOtherOrigin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewStore(dir, "http://127.0.0.1:8000/api/accounts/").
		UpdateProjects([]CachedProject{{ID: 1, Title: "Local"}}))

	assert.Empty(t, NewStore(dir, "https://gigs.example.com/api/accounts/").Load().Projects)
}

func TestStoreCorruptFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, "")
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0600))
	assert.Empty(t, s.Load().Projects)

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear())
}

func TestDefaultDirHonorsEnv(t *testing.T) {
	t.Setenv("GIG_CACHE_DIR", "/tmp/gig-cache")
	assert.Equal(t, "/tmp/gig-cache", DefaultDir())

	t.Setenv("GIG_CACHE_DIR", "")
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg")
	assert.Equal(t, "/tmp/xdg/gig", DefaultDir())
}
