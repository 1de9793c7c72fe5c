package authorization

// RolesWithAnyPrivilege returns, in definition order, the roles whose granted
// privileges intersect allowed. An empty allowed set matches nothing.
func RolesWithAnyPrivilege(defs []RoleAccessDefinition, allowed []Privilege) []RoleName {
	roles := make([]RoleName, 0, len(defs))
	if len(defs) == 0 || len(allowed) == 0 {
		return roles
	}
	want := make(map[Privilege]struct{}, len(allowed))
	for _, p := range allowed {
		want[p] = struct{}{}
	}
	for _, def := range defs {
		for _, granted := range def.GrantedPrivileges {
			if _, ok := want[granted]; ok {
				roles = append(roles, def.RoleName)
				break
			}
		}
	}
	return roles
}

// CredentialsForRolesWithAccess maps every qualifying role to its platform
// credential. Any unmapped role fails the whole call; no partial list is
// returned.
func CredentialsForRolesWithAccess(defs []RoleAccessDefinition, allowed []Privilege) ([]CredentialDescriptor, error) {
	roles := RolesWithAnyPrivilege(defs, allowed)
	creds := make([]CredentialDescriptor, 0, len(roles))
	for _, role := range roles {
		credType, err := CredentialForRole(role)
		if err != nil {
			return nil, err
		}
		creds = append(creds, CredentialDescriptor{Type: credType, ResourceID: AnyResource})
	}
	return creds, nil
}

// PrivilegesForRole returns a copy of the privileges granted to role. A role
// absent from defs yields an empty list.
func PrivilegesForRole(defs []RoleAccessDefinition, role RoleName) []Privilege {
	for _, def := range defs {
		if def.RoleName != role {
			continue
		}
		out := make([]Privilege, len(def.GrantedPrivileges))
		copy(out, def.GrantedPrivileges)
		return out
	}
	return []Privilege{}
}

// HasRolePrivilege reports whether role is granted privilege in defs.
func HasRolePrivilege(defs []RoleAccessDefinition, role RoleName, privilege Privilege) bool {
	for _, p := range PrivilegesForRole(defs, role) {
		if p == privilege {
			return true
		}
	}
	return false
}
