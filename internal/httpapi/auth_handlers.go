package httpapi

import (
	"errors"
	"net/http"
	"time"

	"alkemio.org/authz/internal/audit"
	"alkemio.org/authz/internal/auth"
	"alkemio.org/authz/internal/authorization"
)

type tokenRequest struct {
	Subject     string                               `json:"subject"`
	Credentials []authorization.CredentialDescriptor `json:"credentials"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleAuthToken issues a token carrying the requested credentials. It is
// only routed when token issuance is enabled, which is meant for local
// development.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	token, expiresAt, err := a.tokens.GenerateToken(req.Subject, req.Credentials, a.tokenTTL)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidSubject):
			writeError(w, r, http.StatusBadRequest, "subject is required")
		case errors.Is(err, authorization.ErrUnknownCredential):
			writeError(w, r, http.StatusBadRequest, err.Error())
		default:
			writeError(w, r, http.StatusInternalServerError, "token generation failed")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"subject":     req.Subject,
		"credentials": len(req.Credentials),
		"expires_at":  expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
