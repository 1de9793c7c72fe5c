package roleset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"alkemio.org/authz/internal/authorization"
)

type fileDocument struct {
	Scopes         map[string][]fileDefinition `yaml:"scopes"`
	PrivilegeRules []filePrivilegeRule         `yaml:"privilege_rules"`
}

type filePrivilegeRule struct {
	Name   string   `yaml:"name"`
	Source string   `yaml:"source"`
	Grants []string `yaml:"grants"`
}

type fileDefinition struct {
	Role       string   `yaml:"role"`
	Privileges []string `yaml:"privileges"`
}

// LoadFile reads a YAML definitions document from disk.
//
//	scopes:
//	  platform:
//	    - role: GLOBAL_ADMIN
//	      privileges: [READ, UPDATE]
//	privilege_rules:
//	  - name: update-contributes
//	    source: UPDATE
//	    grants: [CONTRIBUTE]
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a YAML definitions document.
func Parse(data []byte) (*Static, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidDefinitions, err)
	}
	if len(doc.Scopes) == 0 {
		return nil, fmt.Errorf("%w: no scopes defined", ErrInvalidDefinitions)
	}
	scopes := make(map[string][]authorization.RoleAccessDefinition, len(doc.Scopes))
	for scope, entries := range doc.Scopes {
		defs := make([]authorization.RoleAccessDefinition, 0, len(entries))
		for _, e := range entries {
			role, err := authorization.ParseRoleName(e.Role)
			if err != nil {
				return nil, fmt.Errorf("%w: scope %s: %v", ErrInvalidDefinitions, scope, err)
			}
			privs, err := authorization.ParsePrivileges(e.Privileges)
			if err != nil {
				return nil, fmt.Errorf("%w: scope %s role %s: %v", ErrInvalidDefinitions, scope, role, err)
			}
			defs = append(defs, authorization.RoleAccessDefinition{RoleName: role, GrantedPrivileges: privs})
		}
		scopes[scope] = defs
	}
	rules, err := parsePrivilegeRules(doc.PrivilegeRules)
	if err != nil {
		return nil, err
	}
	s, err := NewStatic(scopes)
	if err != nil {
		return nil, err
	}
	s.rules = rules
	return s, nil
}

func parsePrivilegeRules(entries []filePrivilegeRule) ([]authorization.PrivilegeRule, error) {
	rules := make([]authorization.PrivilegeRule, 0, len(entries))
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i)
		}
		src, err := authorization.ParsePrivilege(e.Source)
		if err != nil {
			return nil, fmt.Errorf("%w: privilege rule %s: %v", ErrInvalidDefinitions, name, err)
		}
		if len(e.Grants) == 0 {
			return nil, fmt.Errorf("%w: privilege rule %s grants nothing", ErrInvalidDefinitions, name)
		}
		grants, err := authorization.ParsePrivileges(e.Grants)
		if err != nil {
			return nil, fmt.Errorf("%w: privilege rule %s: %v", ErrInvalidDefinitions, name, err)
		}
		rules = append(rules, authorization.PrivilegeRule{Name: name, SourcePrivilege: src, GrantedPrivileges: grants})
	}
	return rules, nil
}
