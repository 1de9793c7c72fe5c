package remote

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"alkemio.org/authz/internal/access"
	"alkemio.org/authz/internal/auth"
	"alkemio.org/authz/internal/authorization"
	"alkemio.org/authz/internal/httpapi"
	"alkemio.org/authz/internal/roleset"
)

func TestMapAccessError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{"invalid", status.Error(codes.InvalidArgument, "bad"), access.ErrInvalidInput},
		{"scope", status.Error(codes.NotFound, "no scope"), roleset.ErrScopeNotFound},
		{"unmapped", status.Error(codes.FailedPrecondition, "MEMBER"), authorization.ErrRoleMappingNotImplemented},
		{"unauthenticated", status.Error(codes.Unauthenticated, "no token"), auth.ErrUnauthorized},
		{"deadline", status.Error(codes.DeadlineExceeded, "slow"), context.DeadlineExceeded},
		{"pass through", status.Error(codes.Internal, "internal"), status.Error(codes.Internal, "internal")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := mapAccessError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("mapAccessError() = %v, want %v", got, tc.want)
			}
		})
	}
}

func newClient(t *testing.T, tokens *auth.Tokens) *Client {
	t.Helper()
	svc, err := access.NewService(roleset.Default())
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(httpapi.UnaryAuthInterceptor(tokens)))
	httpapi.NewGRPCServer(svc, nil, "test").Register(server)
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	c, err := Dial("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientRoundTrip(t *testing.T) {
	c := newClient(t, nil)
	ctx, cancel := WithTimeout(context.Background(), 0)
	defer cancel()

	creds, err := c.Credentials(ctx, "platform", []authorization.Privilege{authorization.PrivilegeCreateSpace})
	require.NoError(t, err)
	assert.Equal(t, []authorization.CredentialDescriptor{
		{Type: authorization.CredentialGlobalAdmin},
		{Type: authorization.CredentialGlobalSupport},
	}, creds)

	d, err := c.Check(ctx, "platform", authorization.PrivilegeCreateSpace, []authorization.CredentialDescriptor{
		{Type: authorization.CredentialGlobalSupport},
	})
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, authorization.PrivilegeCreateSpace, d.Privilege)
	assert.Equal(t, []authorization.CredentialDescriptor{{Type: authorization.CredentialGlobalSupport}}, d.Matched)
	assert.Equal(t, []authorization.CredentialDescriptor{
		{Type: authorization.CredentialGlobalAdmin},
		{Type: authorization.CredentialGlobalSupport},
	}, d.Accepted)

	d, err = c.Enforce(ctx, "platform", authorization.PrivilegeLicenseReset, []authorization.CredentialDescriptor{
		{Type: authorization.CredentialGlobalSupport},
	})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	assert.Empty(t, d.ID)

	_, err = c.Credentials(ctx, "space", []authorization.Privilege{authorization.PrivilegeRead})
	assert.ErrorIs(t, err, authorization.ErrRoleMappingNotImplemented)

	ok, err := c.Serving(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientUsesTokenCredentials(t *testing.T) {
	tokens, err := auth.NewTokens("remote-secret")
	require.NoError(t, err)
	c := newClient(t, tokens)

	_, err = c.Check(context.Background(), "platform", authorization.PrivilegeReadUsers, nil)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	token, _, err := tokens.GenerateToken("reader", []authorization.CredentialDescriptor{
		{Type: authorization.CredentialGlobalCommunityRead},
	}, time.Minute)
	require.NoError(t, err)

	d, err := c.Check(WithToken(context.Background(), token), "platform", authorization.PrivilegeReadUsers, nil)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
