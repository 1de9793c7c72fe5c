package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"alkemio.org/authz/internal/access"
	"alkemio.org/authz/internal/auth"
	"alkemio.org/authz/internal/authorization"
	"alkemio.org/authz/internal/obs"
	"alkemio.org/authz/internal/roleset"
)

const serviceName = "alkemio-authz"

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Pinger is a database that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Readiness checks that role definitions can be served, plus the database
// when one is configured.
type Readiness struct {
	Access *access.Service
	Scope  string
	DB     Pinger
}

func (rd Readiness) Check(ctx context.Context) error {
	if rd.DB != nil {
		if err := rd.DB.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if rd.Access == nil {
		return nil
	}
	scope := rd.Scope
	if scope == "" {
		scope = roleset.ScopePlatform
	}
	return rd.Access.Ready(ctx, scope)
}

// Options configures an API.
type Options struct {
	Access    *access.Service
	Readiness readinessChecker
	Version   string

	// Tokens enables bearer authentication. Nil leaves every route open.
	Tokens      *auth.Tokens
	IssueTokens bool
	TokenTTL    time.Duration

	RateBurst     int
	RatePerSecond int
	MaxBodyBytes  int64
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	access    *access.Service
	readiness readinessChecker
	version   string

	tokens      *auth.Tokens
	issueTokens bool
	tokenTTL    time.Duration

	rateBurst     int
	ratePerSecond int
	maxBodyBytes  int64
}

func New(opts Options) *API {
	a := &API{
		mux:           http.NewServeMux(),
		access:        opts.Access,
		readiness:     opts.Readiness,
		version:       opts.Version,
		tokens:        opts.Tokens,
		issueTokens:   opts.IssueTokens,
		tokenTTL:      opts.TokenTTL,
		rateBurst:     opts.RateBurst,
		ratePerSecond: opts.RatePerSecond,
		maxBodyBytes:  opts.MaxBodyBytes,
	}
	if a.readiness == nil {
		a.readiness = Readiness{Access: a.access}
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = 15 * time.Minute
	}
	if a.maxBodyBytes <= 0 {
		a.maxBodyBytes = 1 << 20
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/access/credentials", a.handleCredentials)
	a.mux.HandleFunc("/v1/access/check", a.handleCheck)
	a.mux.HandleFunc("/v1/scopes/", a.handleScopes)
	if a.issueTokens && a.tokens != nil {
		a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})

	return a
}

// Handler returns the fully wrapped handler.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	if a.rateBurst > 0 && a.ratePerSecond > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readiness.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorCode(w, r, code, "", msg)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, code int, errCode, msg string) {
	payload := map[string]any{"error": msg}
	if errCode != "" {
		payload["code"] = errCode
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errBodyTooLarge
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

var errBodyTooLarge = errors.New("request body too large")

func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBodyTooLarge) {
		writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	writeError(w, r, http.StatusBadRequest, err.Error())
}

// writeServiceError maps access and authorization errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var unmapped *authorization.UnmappedRoleError
	switch {
	case errors.Is(err, access.ErrInvalidInput):
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, roleset.ErrScopeNotFound):
		writeErrorCode(w, r, http.StatusNotFound, "scope_not_found", err.Error())
	case errors.As(err, &unmapped):
		writeErrorCode(w, r, http.StatusInternalServerError, "role_mapping_not_implemented", err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		writeErrorCode(w, r, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, authorization.ErrForbidden):
		writeErrorCode(w, r, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeErrorCode(w, r, http.StatusServiceUnavailable, "unavailable", "request cancelled")
	default:
		writeErrorCode(w, r, http.StatusInternalServerError, "internal", "internal error")
	}
}
