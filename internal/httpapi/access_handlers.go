package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"alkemio.org/authz/internal/access"
	"alkemio.org/authz/internal/auth"
	"alkemio.org/authz/internal/authorization"
)

type credentialsRequest struct {
	Scope      string   `json:"scope"`
	Privileges []string `json:"privileges"`
}

type credentialsResponse struct {
	Scope       string                               `json:"scope"`
	Credentials []authorization.CredentialDescriptor `json:"credentials"`
}

type checkRequest struct {
	Scope       string                                `json:"scope"`
	Privilege   string                                `json:"privilege"`
	Credentials *[]authorization.CredentialDescriptor `json:"credentials,omitempty"`
	// Enforce turns a denial into 403 instead of a decision body.
	Enforce bool `json:"enforce,omitempty"`
}

func (a *API) handleCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	privileges, err := access.ParsePrivileges(req.Privileges)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	creds, err := a.access.Credentials(r.Context(), req.Scope, privileges)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, credentialsResponse{
		Scope:       strings.ToLower(strings.TrimSpace(req.Scope)),
		Credentials: creds,
	})
}

func (a *API) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req checkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}
	privilege, err := authorization.ParsePrivilege(req.Privilege)
	if err != nil {
		writeServiceError(w, r, invalidInput(err))
		return
	}

	principal, hasPrincipal := auth.PrincipalFromContext(r.Context())
	var held []authorization.CredentialDescriptor
	switch {
	case req.Credentials != nil:
		held, err = access.ParseCredentials(*req.Credentials)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	case hasPrincipal:
		held = principal.Credentials
	}

	check := access.CheckRequest{
		Scope:       req.Scope,
		Privilege:   privilege,
		Actor:       principal.Subject,
		Credentials: held,
	}
	decide := a.access.Check
	if req.Enforce {
		decide = a.access.Enforce
	}
	decision, err := decide(r.Context(), check)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decision)
}

// handleScopes serves
//
//	GET /v1/scopes/{scope}/roles/{role}/privileges
//	GET /v1/scopes/{scope}/roles/{role}/privileges/{privilege}
func (a *API) handleScopes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/scopes/"), "/"), "/")
	if (len(parts) != 4 && len(parts) != 5) || parts[1] != "roles" || parts[3] != "privileges" {
		writeError(w, r, http.StatusNotFound, "not found")
		return
	}
	scope := parts[0]
	role, err := authorization.ParseRoleName(parts[2])
	if err != nil {
		writeServiceError(w, r, invalidInput(err))
		return
	}

	if len(parts) == 4 {
		privileges, err := a.access.PrivilegesForRole(r.Context(), scope, role)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"scope":      strings.ToLower(scope),
			"role":       role,
			"privileges": privileges,
		})
		return
	}

	privilege, err := authorization.ParsePrivilege(parts[4])
	if err != nil {
		writeServiceError(w, r, invalidInput(err))
		return
	}
	granted, err := a.access.HasRolePrivilege(r.Context(), scope, role, privilege)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scope":     strings.ToLower(scope),
		"role":      role,
		"privilege": privilege,
		"granted":   granted,
	})
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %w", access.ErrInvalidInput, err)
}
