package permission

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidKey(t *testing.T) {
	valid := []string{
		"agenda:edit",
		"agenda:edit:own",
		"agenda:edit:any",
		"user_admin:update_profile",
		"a1:b2:own",
	}
	for _, key := range valid {
		require.True(t, ValidKey(key), "expected %q to be valid", key)
	}

	invalid := []string{
		"",
		"agenda",
		"agenda:",
		":edit",
		"agenda:edit:all",
		"agenda:edit:own:extra",
		"Agenda:Edit",
		"agenda:edit ",
		"agenda edit",
	}
	for _, key := range invalid {
		require.False(t, ValidKey(key), "expected %q to be invalid", key)
	}
}

func TestParseKey(t *testing.T) {
	base, scope := ParseKey("user:update:own")
	require.Equal(t, "user:update", base)
	require.Equal(t, ScopeOwn, scope)

	base, scope = ParseKey("user:update:any")
	require.Equal(t, "user:update", base)
	require.Equal(t, ScopeAny, scope)

	base, scope = ParseKey("user:update")
	require.Equal(t, "user:update", base)
	require.Equal(t, ScopeNone, scope)
}
