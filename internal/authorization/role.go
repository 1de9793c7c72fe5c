package authorization

import (
	"fmt"
	"strings"
)

// RoleName identifies a role within a scope. Platform roles and role-set
// roles are distinct domains that share one type.
type RoleName string

// Platform scope roles.
const (
	RoleGlobalAdmin           RoleName = "GLOBAL_ADMIN"
	RoleGlobalSupport         RoleName = "GLOBAL_SUPPORT"
	RoleGlobalLicenseManager  RoleName = "GLOBAL_LICENSE_MANAGER"
	RoleGlobalCommunityReader RoleName = "GLOBAL_COMMUNITY_READER"
	RoleGlobalSpacesReader    RoleName = "GLOBAL_SPACES_READER"
	RoleGlobalPlatformManager RoleName = "GLOBAL_PLATFORM_MANAGER"
	RoleGlobalSupportManager  RoleName = "GLOBAL_SUPPORT_MANAGER"
	RolePlatformBetaTester    RoleName = "PLATFORM_BETA_TESTER"
	RolePlatformVCCampaign    RoleName = "PLATFORM_VC_CAMPAIGN"
	RoleRegistered            RoleName = "REGISTERED"
	RoleGuest                 RoleName = "GUEST"
	RoleAnonymous             RoleName = "ANONYMOUS"
)

// Role-set scope roles. These never map to a platform credential.
const (
	RoleMember    RoleName = "MEMBER"
	RoleLead      RoleName = "LEAD"
	RoleAdmin     RoleName = "ADMIN"
	RoleAssociate RoleName = "ASSOCIATE"
	RoleOwner     RoleName = "OWNER"
)

var platformRoles = []RoleName{
	RoleGlobalAdmin,
	RoleGlobalSupport,
	RoleGlobalLicenseManager,
	RoleGlobalCommunityReader,
	RoleGlobalSpacesReader,
	RoleGlobalPlatformManager,
	RoleGlobalSupportManager,
	RolePlatformBetaTester,
	RolePlatformVCCampaign,
	RoleRegistered,
	RoleGuest,
	RoleAnonymous,
}

var roleSetRoles = []RoleName{
	RoleMember,
	RoleLead,
	RoleAdmin,
	RoleAssociate,
	RoleOwner,
}

// PlatformRoles returns the platform scope roles in declaration order.
func PlatformRoles() []RoleName {
	out := make([]RoleName, len(platformRoles))
	copy(out, platformRoles)
	return out
}

// IsPlatform reports whether r is a platform scope role.
func (r RoleName) IsPlatform() bool {
	for _, known := range platformRoles {
		if r == known {
			return true
		}
	}
	return false
}

// Valid reports whether r is a known role in any scope.
func (r RoleName) Valid() bool {
	if r.IsPlatform() {
		return true
	}
	for _, known := range roleSetRoles {
		if r == known {
			return true
		}
	}
	return false
}

func (r RoleName) String() string { return string(r) }

// ParseRoleName converts raw input (case-insensitive) into a known role name.
func ParseRoleName(raw string) (RoleName, error) {
	r := RoleName(strings.ToUpper(strings.TrimSpace(raw)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
	return r, nil
}

// RoleAccessDefinition pairs a role with the privileges it currently grants.
// Definitions are supplied per scope; role names are unique within a list.
type RoleAccessDefinition struct {
	RoleName          RoleName    `json:"role" yaml:"role"`
	GrantedPrivileges []Privilege `json:"privileges" yaml:"privileges"`
}
