package grpc

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/dmitrijs2005/crosspost/internal/common"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// cronSecretInterceptor guards the trigger service. Other services (health)
// pass through.
func (s *GRPCServer) cronSecretInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") {

		var secret string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(common.CronSecretMetadataKey); len(values) > 0 {
				secret = values[0]
			}
		}
		if secret == "" {
			return nil, status.Error(codes.Unauthenticated, "missing secret")
		}
		if len(s.cronSecret) == 0 || subtle.ConstantTimeCompare([]byte(secret), s.cronSecret) != 1 {
			s.logger.Warn(ctx, "rejected trigger call", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "invalid secret")
		}
	}

	return handler(ctx, req)
}
