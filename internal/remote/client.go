// Package remote calls AccessService of a running authz server.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"alkemio.org/authz/internal/access"
	"alkemio.org/authz/internal/auth"
	"alkemio.org/authz/internal/authorization"
	"alkemio.org/authz/internal/roleset"
)

const serviceName = "alkemio.authorization.v1.AccessService"

// Client wraps a connection to AccessService.
type Client struct {
	conn *grpc.ClientConn
}

// Dial creates a client. Without options the transport is insecure.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// WithToken attaches a bearer token to outgoing calls made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+token)
}

// Credentials asks the server which credentials are accepted for any of
// privileges in scope.
func (c *Client) Credentials(ctx context.Context, scope string, privileges []authorization.Privilege) ([]authorization.CredentialDescriptor, error) {
	names := make([]any, 0, len(privileges))
	for _, p := range privileges {
		names = append(names, string(p))
	}
	out, err := c.invoke(ctx, "CredentialsForPrivileges", map[string]any{
		"scope":      scope,
		"privileges": names,
	})
	if err != nil {
		return nil, err
	}
	return descriptors(out.GetFields()["credentials"]), nil
}

// Check asks the server for a decision. A nil held lets the server fall back
// to the credentials in the caller's token.
func (c *Client) Check(ctx context.Context, scope string, privilege authorization.Privilege, held []authorization.CredentialDescriptor) (access.Decision, error) {
	return c.check(ctx, scope, privilege, held, false)
}

// Enforce is Check that fails with an error matching
// authorization.ErrForbidden when the privilege is not earned.
func (c *Client) Enforce(ctx context.Context, scope string, privilege authorization.Privilege, held []authorization.CredentialDescriptor) (access.Decision, error) {
	return c.check(ctx, scope, privilege, held, true)
}

func (c *Client) check(ctx context.Context, scope string, privilege authorization.Privilege, held []authorization.CredentialDescriptor, enforce bool) (access.Decision, error) {
	in := map[string]any{
		"scope":     scope,
		"privilege": string(privilege),
	}
	if enforce {
		in["enforce"] = true
	}
	if held != nil {
		list := make([]any, 0, len(held))
		for _, h := range held {
			list = append(list, map[string]any{"type": string(h.Type), "resource_id": h.ResourceID})
		}
		in["credentials"] = list
	}
	out, err := c.invoke(ctx, "Check", in)
	if err != nil {
		return access.Decision{}, err
	}
	f := out.GetFields()
	return access.Decision{
		ID:        f["id"].GetStringValue(),
		Scope:     f["scope"].GetStringValue(),
		Privilege: authorization.Privilege(f["privilege"].GetStringValue()),
		Allowed:   f["allowed"].GetBoolValue(),
		Accepted:  descriptors(f["accepted"]),
		Matched:   descriptors(f["matched"]),
	}, nil
}

// Serving reports whether the server's health service says SERVING.
func (c *Client) Serving(ctx context.Context) (bool, error) {
	resp, err := healthpb.NewHealthClient(c.conn).Check(ctx, &healthpb.HealthCheckRequest{Service: serviceName})
	if err != nil {
		return false, err
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING, nil
}

func (c *Client) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+serviceName+"/"+method, req, out); err != nil {
		return nil, mapAccessError(err)
	}
	return out, nil
}

// mapAccessError converts gRPC statuses back into the errors the local
// service would have returned.
func mapAccessError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", access.ErrInvalidInput, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", roleset.ErrScopeNotFound, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", authorization.ErrRoleMappingNotImplemented, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", authorization.ErrForbidden, st.Message())
	case codes.Unauthenticated:
		return fmt.Errorf("%w: %s", auth.ErrUnauthorized, st.Message())
	case codes.DeadlineExceeded:
		return errors.Join(context.DeadlineExceeded, err)
	default:
		return err
	}
}

func descriptors(v *structpb.Value) []authorization.CredentialDescriptor {
	values := v.GetListValue().GetValues()
	out := make([]authorization.CredentialDescriptor, 0, len(values))
	for _, item := range values {
		f := item.GetStructValue().GetFields()
		out = append(out, authorization.CredentialDescriptor{
			Type:       authorization.CredentialType(f["type"].GetStringValue()),
			ResourceID: f["resource_id"].GetStringValue(),
		})
	}
	return out
}

// WithTimeout returns a context with a default timeout for CLI use.
func WithTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(parent, d)
}
