package authorization

import (
	"fmt"
	"strings"
)

// CredentialType is proof of holding a role. Actors carry credentials; the
// evaluator matches them against the credentials a policy accepts.
type CredentialType string

// Platform credentials, 1:1 with the platform roles.
const (
	CredentialGlobalAdmin           CredentialType = "GLOBAL_ADMIN"
	CredentialGlobalSupport         CredentialType = "GLOBAL_SUPPORT"
	CredentialGlobalLicenseManager  CredentialType = "GLOBAL_LICENSE_MANAGER"
	CredentialGlobalCommunityRead   CredentialType = "GLOBAL_COMMUNITY_READ"
	CredentialGlobalSpacesReader    CredentialType = "GLOBAL_SPACES_READER"
	CredentialGlobalPlatformManager CredentialType = "GLOBAL_PLATFORM_MANAGER"
	CredentialGlobalSupportManager  CredentialType = "GLOBAL_SUPPORT_MANAGER"
	CredentialBetaTester            CredentialType = "BETA_TESTER"
	CredentialVCCampaign            CredentialType = "VC_CAMPAIGN"
	CredentialGlobalRegistered      CredentialType = "GLOBAL_REGISTERED"
	CredentialGlobalGuest           CredentialType = "GLOBAL_GUEST"
	CredentialGlobalAnonymous       CredentialType = "GLOBAL_ANONYMOUS"
)

// Resource scoped credentials.
const (
	CredentialSpaceMember           CredentialType = "SPACE_MEMBER"
	CredentialSpaceLead             CredentialType = "SPACE_LEAD"
	CredentialSpaceAdmin            CredentialType = "SPACE_ADMIN"
	CredentialOrganizationOwner     CredentialType = "ORGANIZATION_OWNER"
	CredentialOrganizationAdmin     CredentialType = "ORGANIZATION_ADMIN"
	CredentialOrganizationAssociate CredentialType = "ORGANIZATION_ASSOCIATE"
	CredentialUserSelfManagement    CredentialType = "USER_SELF_MANAGEMENT"
	CredentialAccountAdmin          CredentialType = "ACCOUNT_ADMIN"
)

var allCredentialTypes = []CredentialType{
	CredentialGlobalAdmin,
	CredentialGlobalSupport,
	CredentialGlobalLicenseManager,
	CredentialGlobalCommunityRead,
	CredentialGlobalSpacesReader,
	CredentialGlobalPlatformManager,
	CredentialGlobalSupportManager,
	CredentialBetaTester,
	CredentialVCCampaign,
	CredentialGlobalRegistered,
	CredentialGlobalGuest,
	CredentialGlobalAnonymous,
	CredentialSpaceMember,
	CredentialSpaceLead,
	CredentialSpaceAdmin,
	CredentialOrganizationOwner,
	CredentialOrganizationAdmin,
	CredentialOrganizationAssociate,
	CredentialUserSelfManagement,
	CredentialAccountAdmin,
}

// Valid reports whether c is a known credential type.
func (c CredentialType) Valid() bool {
	for _, known := range allCredentialTypes {
		if c == known {
			return true
		}
	}
	return false
}

func (c CredentialType) String() string { return string(c) }

// ParseCredentialType converts raw input (case-insensitive) into a known type.
func ParseCredentialType(raw string) (CredentialType, error) {
	c := CredentialType(strings.ToUpper(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCredential, raw)
	}
	return c, nil
}

// AnyResource is the resourceID of platform credentials. As a match
// criterion it accepts a held credential of the same type for any resource.
const AnyResource = ""

// CredentialDescriptor is a credential type bound to an optional resource.
type CredentialDescriptor struct {
	Type       CredentialType `json:"type"`
	ResourceID string         `json:"resource_id"`
}

// CredentialForRole maps a platform role to the credential that represents
// holding it. Roles outside the platform table fail with *UnmappedRoleError.
func CredentialForRole(role RoleName) (CredentialType, error) {
	switch role {
	case RoleGlobalAdmin:
		return CredentialGlobalAdmin, nil
	case RoleGlobalCommunityReader:
		return CredentialGlobalCommunityRead, nil
	case RoleRegistered:
		return CredentialGlobalRegistered, nil
	case RoleGuest:
		return CredentialGlobalGuest, nil
	case RoleAnonymous:
		return CredentialGlobalAnonymous, nil
	case RolePlatformBetaTester:
		return CredentialBetaTester, nil
	case RolePlatformVCCampaign:
		return CredentialVCCampaign, nil
	case RoleGlobalLicenseManager:
		return CredentialGlobalLicenseManager, nil
	case RoleGlobalSupport:
		return CredentialGlobalSupport, nil
	case RoleGlobalPlatformManager:
		return CredentialGlobalPlatformManager, nil
	case RoleGlobalSupportManager:
		return CredentialGlobalSupportManager, nil
	case RoleGlobalSpacesReader:
		return CredentialGlobalSpacesReader, nil
	default:
		return "", &UnmappedRoleError{Role: role}
	}
}
