package authorization

import (
	"fmt"
	"strings"
)

// Privilege is an atomic permission token an operation requires.
type Privilege string

const (
	PrivilegeCreate                   Privilege = "CREATE"
	PrivilegeRead                     Privilege = "READ"
	PrivilegeUpdate                   Privilege = "UPDATE"
	PrivilegeDelete                   Privilege = "DELETE"
	PrivilegeGrant                    Privilege = "GRANT"
	PrivilegePlatformAdmin            Privilege = "PLATFORM_ADMIN"
	PrivilegeReadUsers                Privilege = "READ_USERS"
	PrivilegeReadAbout                Privilege = "READ_ABOUT"
	PrivilegeCreateSpace              Privilege = "CREATE_SPACE"
	PrivilegeCreateSubspace           Privilege = "CREATE_SUBSPACE"
	PrivilegeCreateCallout            Privilege = "CREATE_CALLOUT"
	PrivilegeContribute               Privilege = "CONTRIBUTE"
	PrivilegeCommunityApply           Privilege = "COMMUNITY_APPLY"
	PrivilegeCommunityJoin            Privilege = "COMMUNITY_JOIN"
	PrivilegeCommunityInvite          Privilege = "COMMUNITY_INVITE"
	PrivilegeCommunityAddMember       Privilege = "COMMUNITY_ADD_MEMBER"
	PrivilegeAuthorizationReset       Privilege = "AUTHORIZATION_RESET"
	PrivilegeLicenseReset             Privilege = "LICENSE_RESET"
	PrivilegeAccessInteractiveGuide   Privilege = "ACCESS_INTERACTIVE_GUIDANCE"
	PrivilegeAccessVirtualContributor Privilege = "ACCESS_VIRTUAL_CONTRIBUTOR"
	PrivilegeAccessDashboardRefresh   Privilege = "ACCESS_DASHBOARD_REFRESH"
)

var allPrivileges = []Privilege{
	PrivilegeCreate,
	PrivilegeRead,
	PrivilegeUpdate,
	PrivilegeDelete,
	PrivilegeGrant,
	PrivilegePlatformAdmin,
	PrivilegeReadUsers,
	PrivilegeReadAbout,
	PrivilegeCreateSpace,
	PrivilegeCreateSubspace,
	PrivilegeCreateCallout,
	PrivilegeContribute,
	PrivilegeCommunityApply,
	PrivilegeCommunityJoin,
	PrivilegeCommunityInvite,
	PrivilegeCommunityAddMember,
	PrivilegeAuthorizationReset,
	PrivilegeLicenseReset,
	PrivilegeAccessInteractiveGuide,
	PrivilegeAccessVirtualContributor,
	PrivilegeAccessDashboardRefresh,
}

// AllPrivileges returns every known privilege in declaration order.
func AllPrivileges() []Privilege {
	out := make([]Privilege, len(allPrivileges))
	copy(out, allPrivileges)
	return out
}

// Valid reports whether p belongs to the closed privilege set.
func (p Privilege) Valid() bool {
	for _, known := range allPrivileges {
		if p == known {
			return true
		}
	}
	return false
}

func (p Privilege) String() string { return string(p) }

// ParsePrivilege converts raw input (case-insensitive) into a known privilege.
func ParsePrivilege(raw string) (Privilege, error) {
	p := Privilege(strings.ToUpper(strings.TrimSpace(raw)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPrivilege, raw)
	}
	return p, nil
}

// ParsePrivileges parses every entry, failing on the first unknown value.
func ParsePrivileges(raw []string) ([]Privilege, error) {
	out := make([]Privilege, 0, len(raw))
	for _, r := range raw {
		p, err := ParsePrivilege(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
