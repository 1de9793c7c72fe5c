package roleset

import (
	"context"
	"fmt"
	"sort"

	"alkemio.org/authz/internal/authorization"
)

// Static is an immutable in-memory Source.
type Static struct {
	scopes map[string][]authorization.RoleAccessDefinition
	rules  []authorization.PrivilegeRule
}

var _ Source = (*Static)(nil)

// NewStatic validates and snapshots the given scopes.
func NewStatic(scopes map[string][]authorization.RoleAccessDefinition) (*Static, error) {
	snap := make(map[string][]authorization.RoleAccessDefinition, len(scopes))
	for scope, defs := range scopes {
		name := NormalizeScope(scope)
		if name == "" {
			return nil, fmt.Errorf("%w: empty scope name", ErrInvalidDefinitions)
		}
		if _, dup := snap[name]; dup {
			return nil, fmt.Errorf("%w: duplicate scope %s", ErrInvalidDefinitions, name)
		}
		if err := Validate(defs); err != nil {
			return nil, fmt.Errorf("scope %s: %w", name, err)
		}
		snap[name] = cloneDefinitions(defs)
	}
	return &Static{scopes: snap}, nil
}

func (s *Static) Definitions(_ context.Context, scope string) ([]authorization.RoleAccessDefinition, error) {
	defs, ok := s.scopes[NormalizeScope(scope)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScopeNotFound, scope)
	}
	return cloneDefinitions(defs), nil
}

// PrivilegeRules returns the privilege rules loaded alongside the scopes.
func (s *Static) PrivilegeRules() []authorization.PrivilegeRule {
	out := make([]authorization.PrivilegeRule, len(s.rules))
	for i, r := range s.rules {
		out[i] = r
		out[i].GrantedPrivileges = append([]authorization.Privilege(nil), r.GrantedPrivileges...)
	}
	return out
}

// Scopes lists the configured scope names in sorted order.
func (s *Static) Scopes() []string {
	out := make([]string, 0, len(s.scopes))
	for name := range s.scopes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Default returns the built-in platform and space definitions.
func Default() *Static {
	s, err := NewStatic(map[string][]authorization.RoleAccessDefinition{
		ScopePlatform: DefaultPlatformDefinitions(),
		ScopeSpace:    DefaultSpaceDefinitions(),
	})
	if err != nil {
		panic(err)
	}
	return s
}

// DefaultPlatformDefinitions is the stock platform role set.
func DefaultPlatformDefinitions() []authorization.RoleAccessDefinition {
	return []authorization.RoleAccessDefinition{
		{RoleName: authorization.RoleGlobalAdmin, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeCreate,
			authorization.PrivilegeRead,
			authorization.PrivilegeUpdate,
			authorization.PrivilegeDelete,
			authorization.PrivilegeGrant,
			authorization.PrivilegePlatformAdmin,
			authorization.PrivilegeReadUsers,
			authorization.PrivilegeCreateSpace,
			authorization.PrivilegeAuthorizationReset,
			authorization.PrivilegeLicenseReset,
			authorization.PrivilegeAccessInteractiveGuide,
			authorization.PrivilegeAccessVirtualContributor,
			authorization.PrivilegeAccessDashboardRefresh,
		}},
		{RoleName: authorization.RoleGlobalSupport, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeRead,
			authorization.PrivilegeUpdate,
			authorization.PrivilegePlatformAdmin,
			authorization.PrivilegeReadUsers,
			authorization.PrivilegeCreateSpace,
			authorization.PrivilegeAuthorizationReset,
		}},
		{RoleName: authorization.RoleGlobalLicenseManager, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeRead,
			authorization.PrivilegePlatformAdmin,
			authorization.PrivilegeLicenseReset,
		}},
		{RoleName: authorization.RoleGlobalCommunityReader, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeRead,
			authorization.PrivilegeReadUsers,
		}},
		{RoleName: authorization.RoleGlobalSpacesReader, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeRead,
			authorization.PrivilegeReadAbout,
		}},
		{RoleName: authorization.RoleGlobalPlatformManager, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeRead,
			authorization.PrivilegeUpdate,
			authorization.PrivilegePlatformAdmin,
		}},
		{RoleName: authorization.RoleGlobalSupportManager, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeRead,
			authorization.PrivilegeReadUsers,
			authorization.PrivilegePlatformAdmin,
		}},
		{RoleName: authorization.RolePlatformBetaTester, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeAccessInteractiveGuide,
		}},
		{RoleName: authorization.RolePlatformVCCampaign, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeAccessVirtualContributor,
		}},
		{RoleName: authorization.RoleRegistered, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeReadAbout,
			authorization.PrivilegeAccessDashboardRefresh,
		}},
		{RoleName: authorization.RoleGuest, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeReadAbout,
		}},
		{RoleName: authorization.RoleAnonymous, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeReadAbout,
		}},
	}
}

// DefaultSpaceDefinitions is the stock role set of a space community. Its
// roles are resource scoped and have no platform credential.
func DefaultSpaceDefinitions() []authorization.RoleAccessDefinition {
	return []authorization.RoleAccessDefinition{
		{RoleName: authorization.RoleMember, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeRead,
			authorization.PrivilegeContribute,
		}},
		{RoleName: authorization.RoleLead, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeRead,
			authorization.PrivilegeContribute,
			authorization.PrivilegeCommunityInvite,
		}},
		{RoleName: authorization.RoleAdmin, GrantedPrivileges: []authorization.Privilege{
			authorization.PrivilegeRead,
			authorization.PrivilegeUpdate,
			authorization.PrivilegeDelete,
			authorization.PrivilegeCommunityAddMember,
			authorization.PrivilegeCreateSubspace,
		}},
	}
}
