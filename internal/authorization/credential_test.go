package authorization

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialForRoleTable(t *testing.T) {
	cases := map[RoleName]CredentialType{
		RoleGlobalAdmin:           CredentialGlobalAdmin,
		RoleGlobalCommunityReader: CredentialGlobalCommunityRead,
		RoleRegistered:            CredentialGlobalRegistered,
		RoleGuest:                 CredentialGlobalGuest,
		RoleAnonymous:             CredentialGlobalAnonymous,
		RolePlatformBetaTester:    CredentialBetaTester,
		RolePlatformVCCampaign:    CredentialVCCampaign,
		RoleGlobalLicenseManager:  CredentialGlobalLicenseManager,
		RoleGlobalSupport:         CredentialGlobalSupport,
		RoleGlobalPlatformManager: CredentialGlobalPlatformManager,
		RoleGlobalSupportManager:  CredentialGlobalSupportManager,
		RoleGlobalSpacesReader:    CredentialGlobalSpacesReader,
	}
	for role, want := range cases {
		t.Run(string(role), func(t *testing.T) {
			got, err := CredentialForRole(role)
			require.NoError(t, err)
			assert.Equal(t, want, got)

			again, err := CredentialForRole(role)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestCredentialForRoleCoversEveryPlatformRole(t *testing.T) {
	seen := make(map[CredentialType]RoleName)
	for _, role := range PlatformRoles() {
		cred, err := CredentialForRole(role)
		require.NoError(t, err, "platform role %s has no credential", role)
		assert.True(t, cred.Valid())
		if prev, dup := seen[cred]; dup {
			t.Fatalf("roles %s and %s share credential %s", prev, role, cred)
		}
		seen[cred] = role
	}
}

func TestCredentialForRoleSetRolesFails(t *testing.T) {
	for _, role := range []RoleName{RoleMember, RoleLead, RoleAdmin, RoleAssociate, RoleOwner, RoleName("SOMETHING_NEW")} {
		t.Run(string(role), func(t *testing.T) {
			cred, err := CredentialForRole(role)
			require.Error(t, err)
			assert.Empty(t, cred)
			assert.True(t, errors.Is(err, ErrRoleMappingNotImplemented))

			var unmapped *UnmappedRoleError
			require.True(t, errors.As(err, &unmapped))
			assert.Equal(t, role, unmapped.Role)
			assert.Contains(t, err.Error(), string(role))
		})
	}
}

func TestParseCredentialType(t *testing.T) {
	c, err := ParseCredentialType(" space_admin ")
	require.NoError(t, err)
	assert.Equal(t, CredentialSpaceAdmin, c)

	_, err = ParseCredentialType("root")
	assert.ErrorIs(t, err, ErrUnknownCredential)
}

func TestParseRoleAndPrivilege(t *testing.T) {
	r, err := ParseRoleName("global_admin")
	require.NoError(t, err)
	assert.Equal(t, RoleGlobalAdmin, r)
	assert.True(t, r.IsPlatform())

	r, err = ParseRoleName("member")
	require.NoError(t, err)
	assert.False(t, r.IsPlatform())

	_, err = ParseRoleName("superuser")
	assert.ErrorIs(t, err, ErrUnknownRole)

	privs, err := ParsePrivileges([]string{"read", "UPDATE"})
	require.NoError(t, err)
	assert.Equal(t, []Privilege{PrivilegeRead, PrivilegeUpdate}, privs)

	_, err = ParsePrivileges([]string{"read", "fly"})
	assert.ErrorIs(t, err, ErrUnknownPrivilege)
}
