package tui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMissing(t *testing.T) {
	fields := []FormField{
		{Key: "username", Title: "Username"},
		{Key: "password", Title: "Password", Secret: true},
		{Key: "role", Title: "Role", Options: []SelectOption{{Value: "client", Label: "Client"}}},
	}

	got := Missing(fields, map[string]string{"username": "ada", "role": "  "})
	keys := make([]string, len(got))
	for i, f := range got {
		keys[i] = f.Key
	}
	assert.Equal(t, []string{"password", "role"}, keys)

	assert.Empty(t, Missing(fields, map[string]string{"username": "a", "password": "b", "role": "client"}))
}

func TestFormWithNoFields(t *testing.T) {
	got, err := Form("Nothing", nil)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestRequired(t *testing.T) {
	assert.Error(t, required(" "))
	assert.NoError(t, required("x"))
}
