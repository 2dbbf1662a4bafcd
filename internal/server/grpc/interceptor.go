package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/openblind/internal/common"
	"github.com/dmitrijs2005/openblind/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type claimsKey struct{}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return c, ok
}

func bearerFromMetadata(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if v := md.Get(common.AccessTokenHeaderName); len(v) > 0 {
		return v[0]
	}
	return ""
}

// adminAuth requires an admin access token on EncryptionAdmin methods.
// Anything else registered on the server, such as health, passes through.
func (s *GRPCServer) adminAuth(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {
		return next(ctx, req)
	}

	raw := bearerFromMetadata(ctx)
	if raw == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := auth.ParseToken(raw, s.jwtSecret)
	switch {
	case errors.Is(err, common.ErrTokenExpired):
		return nil, status.Error(codes.Unauthenticated, "token expired")
	case err != nil:
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	case !claims.IsAdmin():
		return nil, status.Error(codes.PermissionDenied, "admin role required")
	}

	return next(context.WithValue(ctx, claimsKey{}, claims), req)
}

// callLog writes one line per call. Failures other than auth rejections are
// logged at warn level.
func (s *GRPCServer) callLog(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := next(ctx, req)

	code := status.Code(err)
	args := []any{"method", info.FullMethod, "code", code.String(), "duration_ms", time.Since(start).Milliseconds()}
	switch code {
	case codes.OK, codes.Unauthenticated, codes.PermissionDenied:
		s.logger.Info(ctx, "grpc call", args...)
	default:
		s.logger.Warn(ctx, "grpc call failed", append(args, "error", status.Convert(err).Message())...)
	}
	return resp, err
}
