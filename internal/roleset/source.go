// Package roleset supplies the role access definitions the authorization
// core resolves against, one list per scope.
package roleset

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"alkemio.org/authz/internal/authorization"
)

const (
	ScopePlatform = "platform"
	ScopeSpace    = "space"
)

var (
	ErrScopeNotFound      = errors.New("roleset: scope not found")
	ErrInvalidDefinitions = errors.New("roleset: invalid definitions")
)

// Source resolves the role access definitions for a scope. Implementations
// return a fresh slice on every call.
type Source interface {
	Definitions(ctx context.Context, scope string) ([]authorization.RoleAccessDefinition, error)
}

// Validate checks role names are known and unique and privileges are known.
func Validate(defs []authorization.RoleAccessDefinition) error {
	seen := make(map[authorization.RoleName]struct{}, len(defs))
	for i, def := range defs {
		if !def.RoleName.Valid() {
			return fmt.Errorf("%w: entry %d: unknown role %q", ErrInvalidDefinitions, i, def.RoleName)
		}
		if _, dup := seen[def.RoleName]; dup {
			return fmt.Errorf("%w: duplicate role %s", ErrInvalidDefinitions, def.RoleName)
		}
		seen[def.RoleName] = struct{}{}
		for _, p := range def.GrantedPrivileges {
			if !p.Valid() {
				return fmt.Errorf("%w: role %s: unknown privilege %q", ErrInvalidDefinitions, def.RoleName, p)
			}
		}
	}
	return nil
}

// NormalizeScope trims and lower-cases a scope name.
func NormalizeScope(scope string) string {
	return strings.ToLower(strings.TrimSpace(scope))
}

func cloneDefinitions(defs []authorization.RoleAccessDefinition) []authorization.RoleAccessDefinition {
	out := make([]authorization.RoleAccessDefinition, len(defs))
	for i, def := range defs {
		privs := make([]authorization.Privilege, len(def.GrantedPrivileges))
		copy(privs, def.GrantedPrivileges)
		out[i] = authorization.RoleAccessDefinition{RoleName: def.RoleName, GrantedPrivileges: privs}
	}
	return out
}
