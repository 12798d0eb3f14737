package authz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCapabilities(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	require.False(t, a.Can(RoleUser, ObjectWebsite, ActionModerate))
	require.False(t, a.Can(RoleUser, ObjectUser, ActionBan))

	require.True(t, a.Can(RoleAdmin, ObjectWebsite, ActionModerate))
	require.True(t, a.Can(RoleAdmin, ObjectWebsite, ActionDelete))
	require.True(t, a.Can(RoleAdmin, ObjectUser, ActionAdjustCredits))
	require.True(t, a.Can(RoleAdmin, ObjectUser, ActionBan))

	// Owner inherits every admin capability.
	require.True(t, a.Can(RoleOwner, ObjectWebsite, ActionModerate))
	require.True(t, a.Can(RoleOwner, ObjectUser, ActionBan))
}

func TestOutranks(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	require.True(t, a.Outranks(RoleAdmin, RoleUser))
	require.True(t, a.Outranks(RoleOwner, RoleAdmin))

	// Peers and inferiors never outrank.
	require.False(t, a.Outranks(RoleAdmin, RoleAdmin))
	require.False(t, a.Outranks(RoleAdmin, RoleOwner))
	require.False(t, a.Outranks(RoleUser, RoleUser))
}
