package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alkemio.org/authz/internal/access"
	"alkemio.org/authz/internal/auth"
	"alkemio.org/authz/internal/authorization"
	"alkemio.org/authz/internal/roleset"
)

const testSecret = "test-secret"

type testAPI struct {
	server *httptest.Server
	tokens *auth.Tokens
}

type apiOption func(*Options)

func withTokens(t *testing.T, issue bool) apiOption {
	t.Helper()
	tokens, err := auth.NewTokens(testSecret)
	require.NoError(t, err)
	return func(o *Options) {
		o.Tokens = tokens
		o.IssueTokens = issue
	}
}

func newTestAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()
	svc, err := access.NewService(roleset.Default())
	require.NoError(t, err)
	o := Options{Access: svc, Version: "test"}
	for _, fn := range opts {
		fn(&o)
	}
	srv := httptest.NewServer(New(o).Handler())
	t.Cleanup(srv.Close)
	return &testAPI{server: srv, tokens: o.Tokens}
}

func (ta *testAPI) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ta.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ta.server.Client().Do(req)
	require.NoError(t, err, "%s %s", method, path)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (ta *testAPI) post(t *testing.T, path string, body any) *http.Response {
	return ta.do(t, http.MethodPost, path, "", body)
}

func (ta *testAPI) get(t *testing.T, path string) *http.Response {
	return ta.do(t, http.MethodGet, path, "", nil)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func expectStatus(t *testing.T, resp *http.Response, code int) {
	t.Helper()
	require.Equal(t, code, resp.StatusCode)
}

func TestHealthAndInfo(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.get(t, "/healthz")
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, "test", decode[map[string]any](t, resp)["version"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp = ta.get(t, "/v1/info")
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, serviceName, decode[map[string]any](t, resp)["name"])

	expectStatus(t, ta.get(t, "/readyz"), http.StatusOK)
	expectStatus(t, ta.get(t, "/metrics"), http.StatusOK)
	expectStatus(t, ta.get(t, "/nowhere"), http.StatusNotFound)
}

type failingReadiness struct{}

func (failingReadiness) Check(context.Context) error { return errors.New("database unreachable") }

func TestReadyReportsCheckFailure(t *testing.T) {
	ta := newTestAPI(t, func(o *Options) { o.Readiness = failingReadiness{} })
	resp := ta.get(t, "/readyz")
	expectStatus(t, resp, http.StatusServiceUnavailable)
	assert.Equal(t, "not_ready", decode[map[string]any](t, resp)["status"])
}

type pinger struct {
	err   error
	calls int
}

func (p *pinger) Ping(context.Context) error {
	p.calls++
	return p.err
}

func TestReadinessPingsDatabase(t *testing.T) {
	svc, err := access.NewService(roleset.Default())
	require.NoError(t, err)
	db := &pinger{}
	rd := Readiness{Access: svc, DB: db}

	require.NoError(t, rd.Check(context.Background()))
	assert.Equal(t, 1, db.calls)

	db.err = errors.New("connection refused")
	err = rd.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database: connection refused")

	rd = Readiness{Access: svc, Scope: "nowhere"}
	assert.ErrorIs(t, rd.Check(context.Background()), roleset.ErrScopeNotFound)
}

func TestCredentialsEndpoint(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.post(t, "/v1/access/credentials", map[string]any{
		"scope":      "Platform",
		"privileges": []string{"license_reset"},
	})
	expectStatus(t, resp, http.StatusOK)
	body := decode[credentialsResponse](t, resp)
	assert.Equal(t, "platform", body.Scope)
	assert.Equal(t, []authorization.CredentialDescriptor{
		{Type: authorization.CredentialGlobalAdmin},
		{Type: authorization.CredentialGlobalLicenseManager},
	}, body.Credentials)
}

func TestCredentialsEndpointErrors(t *testing.T) {
	ta := newTestAPI(t)

	cases := []struct {
		name string
		body any
		code int
		err  string
	}{
		{"empty body", nil, http.StatusBadRequest, ""},
		{"unknown field", `{"scope":"platform","privileges":["READ"],"x":1}`, http.StatusBadRequest, ""},
		{"trailing data", `{"scope":"platform","privileges":["READ"]} {}`, http.StatusBadRequest, ""},
		{"unknown privilege", map[string]any{"scope": "platform", "privileges": []string{"FLY"}}, http.StatusBadRequest, "invalid_input"},
		{"no privileges", map[string]any{"scope": "platform", "privileges": []string{}}, http.StatusBadRequest, "invalid_input"},
		{"unknown scope", map[string]any{"scope": "organization", "privileges": []string{"READ"}}, http.StatusNotFound, "scope_not_found"},
		{"unmapped role", map[string]any{"scope": "space", "privileges": []string{"READ"}}, http.StatusInternalServerError, "role_mapping_not_implemented"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := ta.post(t, "/v1/access/credentials", tc.body)
			expectStatus(t, resp, tc.code)
			body := decode[map[string]any](t, resp)
			assert.NotEmpty(t, body["error"])
			assert.NotNil(t, body["request_id"])
			if tc.err != "" {
				assert.Equal(t, tc.err, body["code"])
			}
		})
	}

	resp := ta.get(t, "/v1/access/credentials")
	expectStatus(t, resp, http.StatusMethodNotAllowed)
	assert.Equal(t, http.MethodPost, resp.Header.Get("Allow"))
}

func TestCheckEndpoint(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.post(t, "/v1/access/check", map[string]any{
		"scope":     "platform",
		"privilege": "PLATFORM_ADMIN",
		"credentials": []map[string]string{
			{"type": "global_registered"},
			{"type": "GLOBAL_SUPPORT"},
		},
	})
	expectStatus(t, resp, http.StatusOK)
	d := decode[access.Decision](t, resp)
	assert.True(t, d.Allowed)
	assert.Regexp(t, `^dec_`, d.ID)
	assert.Equal(t, []authorization.CredentialDescriptor{{Type: authorization.CredentialGlobalSupport}}, d.Matched)

	resp = ta.post(t, "/v1/access/check", map[string]any{
		"scope":       "platform",
		"privilege":   "PLATFORM_ADMIN",
		"credentials": []map[string]string{{"type": "GLOBAL_GUEST"}},
	})
	expectStatus(t, resp, http.StatusOK)
	assert.False(t, decode[access.Decision](t, resp).Allowed)

	resp = ta.post(t, "/v1/access/check", map[string]any{
		"scope":       "platform",
		"privilege":   "PLATFORM_ADMIN",
		"credentials": []map[string]string{{"type": "GLOBAL_GUEST"}},
		"enforce":     true,
	})
	expectStatus(t, resp, http.StatusForbidden)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "forbidden", body["code"])
	assert.Contains(t, body["error"], "PLATFORM_ADMIN")

	resp = ta.post(t, "/v1/access/check", map[string]any{
		"scope":       "platform",
		"privilege":   "PLATFORM_ADMIN",
		"credentials": []map[string]string{{"type": "GLOBAL_SUPPORT"}},
		"enforce":     true,
	})
	expectStatus(t, resp, http.StatusOK)
	assert.True(t, decode[access.Decision](t, resp).Allowed)

	resp = ta.post(t, "/v1/access/check", map[string]any{
		"scope":       "platform",
		"privilege":   "READ",
		"credentials": []map[string]string{{"type": "WIZARD"}},
	})
	expectStatus(t, resp, http.StatusBadRequest)

	resp = ta.post(t, "/v1/access/check", map[string]any{"scope": "platform", "privilege": "FLY"})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestRolePrivilegeEndpoints(t *testing.T) {
	ta := newTestAPI(t)

	resp := ta.get(t, "/v1/scopes/platform/roles/guest/privileges")
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, []any{"READ_ABOUT"}, decode[map[string]any](t, resp)["privileges"])

	resp = ta.get(t, "/v1/scopes/platform/roles/MEMBER/privileges")
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, []any{}, decode[map[string]any](t, resp)["privileges"])

	resp = ta.get(t, "/v1/scopes/space/roles/LEAD/privileges/community_invite")
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, true, decode[map[string]any](t, resp)["granted"])

	resp = ta.get(t, "/v1/scopes/space/roles/MEMBER/privileges/DELETE")
	expectStatus(t, resp, http.StatusOK)
	assert.Equal(t, false, decode[map[string]any](t, resp)["granted"])

	expectStatus(t, ta.get(t, "/v1/scopes/platform/roles/ROOT/privileges"), http.StatusBadRequest)
	expectStatus(t, ta.get(t, "/v1/scopes/platform/roles/GUEST/privileges/FLY"), http.StatusBadRequest)
	expectStatus(t, ta.get(t, "/v1/scopes/nowhere/roles/GUEST/privileges"), http.StatusNotFound)
	expectStatus(t, ta.get(t, "/v1/scopes/platform/roles"), http.StatusNotFound)
	expectStatus(t, ta.post(t, "/v1/scopes/platform/roles/GUEST/privileges", map[string]any{}), http.StatusMethodNotAllowed)
}

func TestTokenEndpointDisabledByDefault(t *testing.T) {
	ta := newTestAPI(t, withTokens(t, false))
	resp := ta.post(t, "/v1/auth/token", map[string]any{"subject": "u1"})
	expectStatus(t, resp, http.StatusNotFound)
}

func TestBearerAuthFlow(t *testing.T) {
	ta := newTestAPI(t, withTokens(t, true))

	check := map[string]any{"scope": "platform", "privilege": "LICENSE_RESET"}
	resp := ta.post(t, "/v1/access/check", check)
	expectStatus(t, resp, http.StatusUnauthorized)
	assert.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	resp = ta.do(t, http.MethodPost, "/v1/access/check", "not-a-token", check)
	expectStatus(t, resp, http.StatusUnauthorized)

	resp = ta.post(t, "/v1/auth/token", map[string]any{
		"subject":     "license-bot",
		"credentials": []map[string]string{{"type": "GLOBAL_LICENSE_MANAGER"}},
	})
	expectStatus(t, resp, http.StatusOK)
	issued := decode[tokenResponse](t, resp)
	require.NotEmpty(t, issued.Token)
	assert.True(t, issued.ExpiresAt.After(time.Now()))

	resp = ta.do(t, http.MethodPost, "/v1/access/check", issued.Token, check)
	expectStatus(t, resp, http.StatusOK)
	assert.True(t, decode[access.Decision](t, resp).Allowed, "principal credentials grant access")

	resp = ta.post(t, "/v1/auth/token", map[string]any{"subject": " "})
	expectStatus(t, resp, http.StatusBadRequest)
	resp = ta.post(t, "/v1/auth/token", map[string]any{
		"subject":     "u1",
		"credentials": []map[string]string{{"type": "WIZARD"}},
	})
	expectStatus(t, resp, http.StatusBadRequest)
}

func TestBodyTooLarge(t *testing.T) {
	ta := newTestAPI(t, func(o *Options) { o.MaxBodyBytes = 32 })
	resp := ta.post(t, "/v1/access/credentials", map[string]any{
		"scope":      "platform",
		"privileges": []string{"READ", "UPDATE", "DELETE", "GRANT"},
	})
	expectStatus(t, resp, http.StatusRequestEntityTooLarge)
}
