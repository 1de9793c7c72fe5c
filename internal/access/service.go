// Package access answers authorization questions for transports by
// combining a role definition source with the authorization core.
package access

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"alkemio.org/authz/internal/audit"
	"alkemio.org/authz/internal/authorization"
	"alkemio.org/authz/internal/ids"
	"alkemio.org/authz/internal/obs"
	"alkemio.org/authz/internal/roleset"
)

var ErrInvalidInput = errors.New("access: invalid input")

// CheckRequest asks whether Credentials satisfy Privilege within Scope.
type CheckRequest struct {
	Scope       string
	Privilege   authorization.Privilege
	Actor       string
	Credentials []authorization.CredentialDescriptor
}

// Decision is the outcome of a check.
type Decision struct {
	ID        string                               `json:"id"`
	Scope     string                               `json:"scope"`
	Privilege authorization.Privilege              `json:"privilege"`
	Allowed   bool                                 `json:"allowed"`
	Accepted  []authorization.CredentialDescriptor `json:"accepted"`
	Matched   []authorization.CredentialDescriptor `json:"matched"`
}

type Service struct {
	source roleset.Source
	rules  []authorization.PrivilegeRule
}

// Option configures a Service.
type Option func(*Service)

// WithPrivilegeRules applies rules when deciding checks. A rule admits
// holders of its source privilege to every privilege it grants.
func WithPrivilegeRules(rules ...authorization.PrivilegeRule) Option {
	return func(s *Service) {
		s.rules = append(s.rules, rules...)
	}
}

func NewService(source roleset.Source, opts ...Option) (*Service, error) {
	if source == nil {
		return nil, errors.New("role definition source is required")
	}
	s := &Service{source: source}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Credentials returns the credentials accepted for any of privileges.
func (s *Service) Credentials(ctx context.Context, scope string, privileges []authorization.Privilege) ([]authorization.CredentialDescriptor, error) {
	scope, err := requireScope(scope)
	if err != nil {
		return nil, err
	}
	if len(privileges) == 0 {
		return nil, fmt.Errorf("%w: at least one privilege is required", ErrInvalidInput)
	}
	if err := validPrivileges(privileges); err != nil {
		return nil, err
	}
	defs, err := s.source.Definitions(ctx, scope)
	if err != nil {
		return nil, err
	}
	creds, err := authorization.CredentialsForRolesWithAccess(defs, privileges)
	if err != nil {
		s.reportUnmapped(ctx, scope, err)
		return nil, err
	}
	return creds, nil
}

// Check decides whether req.Credentials earn req.Privilege, either through
// a role holding it or through a privilege rule granting it.
func (s *Service) Check(ctx context.Context, req CheckRequest) (Decision, error) {
	d, _, err := s.decide(ctx, req)
	return d, err
}

// Enforce is Check that fails with a *authorization.ForbiddenError when the
// privilege is not earned. The decision is returned either way.
func (s *Service) Enforce(ctx context.Context, req CheckRequest) (Decision, error) {
	d, policy, err := s.decide(ctx, req)
	if err != nil {
		return d, err
	}
	return d, policy.GrantAccessOrFail(req.Credentials, req.Privilege, "no held credential is accepted in scope "+d.Scope)
}

func (s *Service) decide(ctx context.Context, req CheckRequest) (Decision, authorization.Policy, error) {
	scope, err := requireScope(req.Scope)
	if err != nil {
		return Decision{}, authorization.Policy{}, err
	}
	if !req.Privilege.Valid() {
		return Decision{}, authorization.Policy{}, fmt.Errorf("%w: unknown privilege %q", ErrInvalidInput, req.Privilege)
	}
	defs, err := s.source.Definitions(ctx, scope)
	if err != nil {
		return Decision{}, authorization.Policy{}, err
	}
	policy, err := authorization.PolicyForPrivilege(defs, req.Privilege, s.rules)
	if err != nil {
		s.reportUnmapped(ctx, scope, err)
		obs.ObserveDecision(scope, string(req.Privilege), obs.OutcomeError)
		return Decision{}, authorization.Policy{}, err
	}

	accepted := policy.Criteria()
	d := Decision{
		ID:        ids.Decision(),
		Scope:     scope,
		Privilege: req.Privilege,
		Allowed:   policy.IsAccessGranted(req.Credentials, req.Privilege),
		Accepted:  accepted,
		Matched:   authorization.MatchingCredentials(req.Credentials, accepted),
	}

	outcome := obs.OutcomeDenied
	if d.Allowed {
		outcome = obs.OutcomeAllowed
	}
	obs.ObserveDecision(scope, string(req.Privilege), outcome)
	_ = audit.LogEvent(ctx, "access.check", map[string]any{
		"decision_id": d.ID,
		"scope":       scope,
		"privilege":   string(req.Privilege),
		"actor":       req.Actor,
		"outcome":     outcome,
	})
	return d, policy, nil
}

// PrivilegesForRole lists the privileges role holds in scope. A role not
// defined in scope has none.
func (s *Service) PrivilegesForRole(ctx context.Context, scope string, role authorization.RoleName) ([]authorization.Privilege, error) {
	scope, err := requireScope(scope)
	if err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	defs, err := s.source.Definitions(ctx, scope)
	if err != nil {
		return nil, err
	}
	return authorization.PrivilegesForRole(defs, role), nil
}

// HasRolePrivilege reports whether role holds privilege in scope.
func (s *Service) HasRolePrivilege(ctx context.Context, scope string, role authorization.RoleName, privilege authorization.Privilege) (bool, error) {
	scope, err := requireScope(scope)
	if err != nil {
		return false, err
	}
	if !role.Valid() {
		return false, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if !privilege.Valid() {
		return false, fmt.Errorf("%w: unknown privilege %q", ErrInvalidInput, privilege)
	}
	defs, err := s.source.Definitions(ctx, scope)
	if err != nil {
		return false, err
	}
	return authorization.HasRolePrivilege(defs, role, privilege), nil
}

func (s *Service) reportUnmapped(ctx context.Context, scope string, err error) {
	var unmapped *authorization.UnmappedRoleError
	if !errors.As(err, &unmapped) {
		return
	}
	obs.ObserveUnmappedRole(string(unmapped.Role))
	obs.Logger().Error("role has no credential mapping",
		zap.String("scope", scope),
		zap.String("role", string(unmapped.Role)),
		zap.String("request_id", audit.RequestIDFromContext(ctx)),
	)
}

func requireScope(scope string) (string, error) {
	scope = roleset.NormalizeScope(scope)
	if scope == "" {
		return "", fmt.Errorf("%w: scope is required", ErrInvalidInput)
	}
	return scope, nil
}

func validPrivileges(privileges []authorization.Privilege) error {
	for _, p := range privileges {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown privilege %q", ErrInvalidInput, p)
		}
	}
	return nil
}

// Ready reports whether the source can serve scope.
func (s *Service) Ready(ctx context.Context, scope string) error {
	_, err := s.source.Definitions(ctx, scope)
	obs.SetReady(err == nil)
	if err != nil {
		return fmt.Errorf("definitions for %s: %w", scope, err)
	}
	return nil
}

// ParsePrivileges parses raw privilege names, skipping blanks.
func ParsePrivileges(raw []string) ([]authorization.Privilege, error) {
	cleaned := make([]string, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		cleaned = append(cleaned, r)
	}
	privs, err := authorization.ParsePrivileges(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return privs, nil
}

// ParseCredentials validates credential types supplied by a caller.
func ParseCredentials(raw []authorization.CredentialDescriptor) ([]authorization.CredentialDescriptor, error) {
	out := make([]authorization.CredentialDescriptor, 0, len(raw))
	for _, c := range raw {
		ct, err := authorization.ParseCredentialType(string(c.Type))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		out = append(out, authorization.CredentialDescriptor{Type: ct, ResourceID: strings.TrimSpace(c.ResourceID)})
	}
	return out, nil
}
