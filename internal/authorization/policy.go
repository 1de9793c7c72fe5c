package authorization

import (
	"github.com/samber/lo"
)

// CredentialRule grants privileges to any actor holding a credential that
// matches one of the criteria.
type CredentialRule struct {
	Name              string                 `json:"name"`
	Criteria          []CredentialDescriptor `json:"criteria"`
	GrantedPrivileges []Privilege            `json:"granted_privileges"`
}

// PrivilegeRule expands a held privilege into further privileges.
type PrivilegeRule struct {
	Name              string      `json:"name"`
	SourcePrivilege   Privilege   `json:"source_privilege"`
	GrantedPrivileges []Privilege `json:"granted_privileges"`
}

// Policy is the authorization attached to a protected resource.
type Policy struct {
	CredentialRules []CredentialRule `json:"credential_rules"`
	PrivilegeRules  []PrivilegeRule  `json:"privilege_rules"`
}

// CredentialMatches reports whether a held credential satisfies criterion.
// An empty criterion resourceID accepts the credential type on any resource.
func CredentialMatches(held, criterion CredentialDescriptor) bool {
	if held.Type != criterion.Type {
		return false
	}
	return criterion.ResourceID == AnyResource || held.ResourceID == criterion.ResourceID
}

// GrantedPrivileges returns the privileges the held credentials earn under p.
// Credential rules are applied first, then privilege rules in declared order.
func (p Policy) GrantedPrivileges(held []CredentialDescriptor) []Privilege {
	granted := []Privilege{}
	for _, rule := range p.CredentialRules {
		if matchesAny(held, rule.Criteria) {
			granted = append(granted, rule.GrantedPrivileges...)
		}
	}
	for _, rule := range p.PrivilegeRules {
		if lo.Contains(granted, rule.SourcePrivilege) {
			granted = append(granted, rule.GrantedPrivileges...)
		}
	}
	return lo.Uniq(granted)
}

// IsAccessGranted reports whether the held credentials earn privilege.
func (p Policy) IsAccessGranted(held []CredentialDescriptor, privilege Privilege) bool {
	return lo.Contains(p.GrantedPrivileges(held), privilege)
}

// GrantAccessOrFail returns a *ForbiddenError when privilege is not earned.
func (p Policy) GrantAccessOrFail(held []CredentialDescriptor, privilege Privilege, reason string) error {
	if p.IsAccessGranted(held, privilege) {
		return nil
	}
	return &ForbiddenError{Privilege: privilege, Reason: reason}
}

// Criteria lists the criteria of every credential rule, first occurrence
// first.
func (p Policy) Criteria() []CredentialDescriptor {
	return lo.Uniq(lo.FlatMap(p.CredentialRules, func(rule CredentialRule, _ int) []CredentialDescriptor {
		return rule.Criteria
	}))
}

// PolicyForPrivilege builds the policy deciding privilege over defs. Roles
// holding privilege are admitted directly. Roles holding the source of a
// rule that grants privilege are admitted through that rule.
func PolicyForPrivilege(defs []RoleAccessDefinition, privilege Privilege, rules []PrivilegeRule) (Policy, error) {
	sources := []Privilege{privilege}
	var applied []PrivilegeRule
	for _, rule := range rules {
		if !lo.Contains(rule.GrantedPrivileges, privilege) || lo.Contains(sources, rule.SourcePrivilege) {
			continue
		}
		sources = append(sources, rule.SourcePrivilege)
		applied = append(applied, rule)
	}

	p := Policy{PrivilegeRules: applied}
	for _, src := range sources {
		rule, err := CredentialRuleForRoles(string(src), defs, []Privilege{src}, []Privilege{src})
		if err != nil {
			return Policy{}, err
		}
		p.CredentialRules = append(p.CredentialRules, rule)
	}
	return p, nil
}

// CredentialRuleForRoles builds a rule granting granted to holders of any
// role in defs that has one of allowed.
func CredentialRuleForRoles(name string, defs []RoleAccessDefinition, allowed, granted []Privilege) (CredentialRule, error) {
	creds, err := CredentialsForRolesWithAccess(defs, allowed)
	if err != nil {
		return CredentialRule{}, err
	}
	privs := make([]Privilege, len(granted))
	copy(privs, granted)
	return CredentialRule{
		Name:              name,
		Criteria:          creds,
		GrantedPrivileges: privs,
	}, nil
}

// MatchingCredentials returns the held credentials satisfying any criterion,
// in held order.
func MatchingCredentials(held, criteria []CredentialDescriptor) []CredentialDescriptor {
	return lo.Filter(held, func(c CredentialDescriptor, _ int) bool {
		return lo.ContainsBy(criteria, func(criterion CredentialDescriptor) bool {
			return CredentialMatches(c, criterion)
		})
	})
}

func matchesAny(held, criteria []CredentialDescriptor) bool {
	return len(MatchingCredentials(held, criteria)) > 0
}
