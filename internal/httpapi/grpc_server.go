package httpapi

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"alkemio.org/authz/internal/access"
	"alkemio.org/authz/internal/auth"
	"alkemio.org/authz/internal/authorization"
	"alkemio.org/authz/internal/obs"
	"alkemio.org/authz/internal/roleset"
)

// AccessServiceName is the fully qualified gRPC service name.
const AccessServiceName = "alkemio.authorization.v1.AccessService"

// AccessServiceServer is the server API of AccessService. Messages are
// structpb.Struct so no generated code is needed.
type AccessServiceServer interface {
	CredentialsForPrivileges(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Check(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var accessServiceDesc = grpc.ServiceDesc{
	ServiceName: AccessServiceName,
	HandlerType: (*AccessServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CredentialsForPrivileges", Handler: accessCredentialsHandler},
		{MethodName: "Check", Handler: accessCheckHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alkemio/authorization/v1/access.proto",
}

func accessCredentialsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccessServiceServer).CredentialsForPrivileges(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AccessServiceName + "/CredentialsForPrivileges"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AccessServiceServer).CredentialsForPrivileges(ctx, req.(*structpb.Struct))
	})
}

func accessCheckHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AccessServiceServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AccessServiceName + "/Check"}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AccessServiceServer).Check(ctx, req.(*structpb.Struct))
	})
}

// GRPCServer implements AccessService and owns the health service.
type GRPCServer struct {
	access    *access.Service
	readiness readinessChecker
	health    *health.Server
	version   string
}

var _ AccessServiceServer = (*GRPCServer)(nil)

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(svc *access.Service, r readinessChecker, version string) *GRPCServer {
	if r == nil {
		r = Readiness{Access: svc}
	}
	hs := health.NewServer()
	hs.SetServingStatus(AccessServiceName, healthpb.HealthCheckResponse_SERVING)
	return &GRPCServer{
		access:    svc,
		readiness: r,
		health:    hs,
		version:   version,
	}
}

// Register installs AccessService and the health service on server.
func (s *GRPCServer) Register(server *grpc.Server) {
	server.RegisterService(&accessServiceDesc, s)
	healthpb.RegisterHealthServer(server, s.health)
}

// RefreshHealth re-evaluates readiness and publishes it through the health
// service, both overall and for AccessService.
func (s *GRPCServer) RefreshHealth(ctx context.Context) error {
	st := healthpb.HealthCheckResponse_SERVING
	err := s.readiness.Check(ctx)
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(err == nil)
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(AccessServiceName, st)
	return err
}

// Shutdown marks every service NOT_SERVING.
func (s *GRPCServer) Shutdown() {
	s.health.Shutdown()
}

// CredentialsForPrivileges expects {scope, privileges: [..]} and returns
// {scope, credentials: [{type, resource_id}]}.
func (s *GRPCServer) CredentialsForPrivileges(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.stamp(ctx)
	scope := stringField(in, "scope")
	privileges, err := access.ParsePrivileges(stringListField(in, "privileges"))
	if err != nil {
		return nil, toStatus(err)
	}
	creds, err := s.access.Credentials(ctx, scope, privileges)
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := structpb.NewStruct(map[string]any{
		"scope":       roleset.NormalizeScope(scope),
		"credentials": credentialValues(creds),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// Check expects {scope, privilege, credentials?: [{type, resource_id}],
// enforce?}. Without credentials the caller's token credentials are used.
// With enforce a denial is PermissionDenied.
func (s *GRPCServer) Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	s.stamp(ctx)
	privilege, err := authorization.ParsePrivilege(stringField(in, "privilege"))
	if err != nil {
		return nil, toStatus(invalidInput(err))
	}

	principal, hasPrincipal := auth.PrincipalFromContext(ctx)
	var held []authorization.CredentialDescriptor
	if v, ok := in.GetFields()["credentials"]; ok {
		held, err = access.ParseCredentials(credentialsFromValue(v))
		if err != nil {
			return nil, toStatus(err)
		}
	} else if hasPrincipal {
		held = principal.Credentials
	}

	decide := s.access.Check
	if in.GetFields()["enforce"].GetBoolValue() {
		decide = s.access.Enforce
	}
	d, err := decide(ctx, access.CheckRequest{
		Scope:       stringField(in, "scope"),
		Privilege:   privilege,
		Actor:       principal.Subject,
		Credentials: held,
	})
	if err != nil {
		return nil, toStatus(err)
	}
	out, err := structpb.NewStruct(map[string]any{
		"id":        d.ID,
		"scope":     d.Scope,
		"privilege": string(d.Privilege),
		"allowed":   d.Allowed,
		"accepted":  credentialValues(d.Accepted),
		"matched":   credentialValues(d.Matched),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

// stamp reports the server version in the response header.
func (s *GRPCServer) stamp(ctx context.Context) {
	_ = grpc.SetHeader(ctx, metadata.Pairs("x-authz-version", s.version))
}

// UnaryAuthInterceptor authenticates AccessService calls with the bearer
// token from the "authorization" metadata key. Health checks stay open.
func UnaryAuthInterceptor(tokens *auth.Tokens) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if tokens == nil || !strings.HasPrefix(info.FullMethod, "/"+AccessServiceName+"/") {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		token, err := extractBearerToken(values[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		principal, err := tokens.Authenticate(token)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(auth.ContextWithPrincipal(ctx, principal), req)
	}
}

func toStatus(err error) error {
	var unmapped *authorization.UnmappedRoleError
	switch {
	case errors.Is(err, access.ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, roleset.ErrScopeNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.As(err, &unmapped):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, authorization.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func stringField(in *structpb.Struct, key string) string {
	return in.GetFields()[key].GetStringValue()
}

func stringListField(in *structpb.Struct, key string) []string {
	values := in.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.GetStringValue())
	}
	return out
}

func credentialsFromValue(v *structpb.Value) []authorization.CredentialDescriptor {
	values := v.GetListValue().GetValues()
	out := make([]authorization.CredentialDescriptor, 0, len(values))
	for _, item := range values {
		fields := item.GetStructValue().GetFields()
		out = append(out, authorization.CredentialDescriptor{
			Type:       authorization.CredentialType(fields["type"].GetStringValue()),
			ResourceID: fields["resource_id"].GetStringValue(),
		})
	}
	return out
}

func credentialValues(creds []authorization.CredentialDescriptor) []any {
	out := make([]any, 0, len(creds))
	for _, c := range creds {
		out = append(out, map[string]any{
			"type":        string(c.Type),
			"resource_id": c.ResourceID,
		})
	}
	return out
}
