package grpc

import (
	"context"
	"strings"

	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

type ctxKey string

const identityKey ctxKey = "identity"

// IdentityFromContext returns the identity the interceptor attached to ctx.
func IdentityFromContext(ctx context.Context) (*services.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*services.Identity)
	return id, ok
}

// credentialFromMetadata prefers a bearer token over an API key header.
func credentialFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
		v := values[0]
		if len(v) > len(common.BearerPrefix) && strings.EqualFold(v[:len(common.BearerPrefix)], common.BearerPrefix) {
			return strings.TrimSpace(v[len(common.BearerPrefix):])
		}
	}
	if values := md.Get(common.APIKeyHeaderName); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

// statusFor maps an authentication failure to a gRPC status. The message is
// the reason code only.
func statusFor(err error) error {
	reason := common.ReasonFor(err)
	switch reason {
	case common.ReasonStoreUnavailable, common.ReasonCacheUnavailable:
		return status.Error(codes.Unavailable, string(reason))
	case common.ReasonInternal:
		return status.Error(codes.Internal, string(reason))
	default:
		return status.Error(codes.Unauthenticated, string(reason))
	}
}

func (s *GRPCServer) authenticate(ctx context.Context, method string) (context.Context, error) {
	if strings.HasPrefix(method, healthServicePrefix) {
		return ctx, nil
	}

	credential := credentialFromMetadata(ctx)
	if credential == "" {
		return nil, status.Error(codes.Unauthenticated, "missing credential")
	}

	id, err := s.authn.Authenticate(ctx, credential)
	if err != nil {
		s.logger.Debug(ctx, "authentication failed", "method", method, "reason", string(common.ReasonFor(err)))
		return nil, statusFor(err)
	}

	return context.WithValue(ctx, identityKey, id), nil
}

func (s *GRPCServer) authUnaryInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authedStream) Context() context.Context { return a.ctx }

func (s *GRPCServer) authStreamInterceptor(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}
